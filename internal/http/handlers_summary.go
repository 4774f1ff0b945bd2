package http

import (
	"net/http"
)

// handleMonthSummary renders the monthly overview; defaults to the current month.
func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	params := ParseMonthParams(r.URL.Query(), s.now())
	if err := params.Validate(); err != nil {
		DomainError(r, err).Write(w)
		return
	}
	ov, err := s.summaries.MonthOverview(r.Context(), params.Year, params.Month)
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(ov).Write(w)
}

func (s *Server) handleWalletsSummary(w http.ResponseWriter, r *http.Request) {
	ov, err := s.summaries.WalletsOverview(r.Context())
	if err != nil {
		DomainError(r, err).Write(w)
		return
	}
	NewJSONResponse().Data(ov).Write(w)
}
