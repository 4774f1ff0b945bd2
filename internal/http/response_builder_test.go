package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"carteira/internal/core"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return body
}

func TestJSONResponseBuilder_Success(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/wallets/wal_1").
		Data(map[string]string{"id": "wal_1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("Location") != "/api/wallets/wal_1" {
		t.Errorf("custom header not set")
	}
	body := decodeEnvelope(t, w)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if data, ok := body["data"].(map[string]interface{}); !ok || data["id"] != "wal_1" {
		t.Errorf("data = %v", body["data"])
	}
	if _, ok := body["error"]; ok {
		t.Errorf("success envelope must not carry an error")
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		builder  *JSONResponseBuilder
		wantCode int
		wantKind string
	}{
		{"bad request", BadRequestError("bad"), http.StatusBadRequest, CodeBadRequest},
		{"not found", NotFoundError("missing"), http.StatusNotFound, "not_found"},
		{"method not allowed", MethodNotAllowedError("GET, POST"), http.StatusMethodNotAllowed, CodeMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantCode {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantCode)
			}
			body := decodeEnvelope(t, w)
			if body["success"] != false || body["code"] != tt.wantKind {
				t.Errorf("unexpected envelope %v", body)
			}
		})
	}

	w := httptest.NewRecorder()
	MethodNotAllowedError("GET, POST").Write(w)
	if w.Header().Get("Allow") != "GET, POST" {
		t.Errorf("Allow = %q", w.Header().Get("Allow"))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.WalletNotFound("wal_1"), http.StatusNotFound},
		{&core.ValidationError{Field: "name", Err: core.ErrEmptyName}, http.StatusUnprocessableEntity},
		{&core.AlreadyExecutedError{Count: 2}, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", core.TransactionNotFound("txn_1")), http.StatusNotFound},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDomainErrorHidesInternalErrors(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/wallets", nil)

	w := httptest.NewRecorder()
	DomainError(r, errors.New("pq: connection refused")).Write(w)
	body := decodeEnvelope(t, w)
	if body["error"] != "internal server error" || body["code"] != "internal" {
		t.Errorf("unexpected envelope %v", body)
	}

	w = httptest.NewRecorder()
	DomainError(r, &core.ValidationError{Err: core.ErrSameWallet}).Write(w)
	body = decodeEnvelope(t, w)
	if body["error"] != core.ErrSameWallet.Error() || body["code"] != "validation" {
		t.Errorf("unexpected envelope %v", body)
	}
}

func TestWriteResultAndList(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	w := httptest.NewRecorder()
	WriteResult(w, r, core.Err[int](&core.AlreadyExecutedError{Count: 1}), http.StatusOK)
	if w.Code != http.StatusConflict {
		t.Errorf("Status code = %d, want 409", w.Code)
	}

	w = httptest.NewRecorder()
	WriteResult(w, r, core.Ok(7), http.StatusCreated)
	if w.Code != http.StatusCreated || decodeEnvelope(t, w)["data"] != float64(7) {
		t.Errorf("unexpected result response %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	WriteList[core.Wallet](w, nil)
	if data, ok := decodeEnvelope(t, w)["data"].([]interface{}); !ok || len(data) != 0 {
		t.Errorf("nil list should render as [], got %s", w.Body.String())
	}
}
