package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"carteira/internal/cache"
	"carteira/internal/core"
	"carteira/internal/log"
	"carteira/internal/repository"
)

// Summaries serves the read model. Results are cached until the next
// ledger write invalidates them; concurrent misses for the same key share
// one load.
type Summaries struct {
	repos   repository.Repos
	months  cache.Cache[core.MonthOverview]
	wallets cache.Cache[core.WalletsOverview]
	group   singleflight.Group
	now     func() time.Time

	// gen counts invalidations. A load that saw an older generation must
	// not be cached.
	gen atomic.Uint64
}

func NewSummaries(repos repository.Repos, months cache.Cache[core.MonthOverview], wallets cache.Cache[core.WalletsOverview]) *Summaries {
	return &Summaries{
		repos:   repos,
		months:  months,
		wallets: wallets,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Summaries) MonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	if month < 1 || month > 12 {
		return core.MonthOverview{}, &core.ValidationError{Field: "month", Err: core.ErrInvalidDate}
	}
	if year < 1970 || year > 9999 {
		return core.MonthOverview{}, &core.ValidationError{Field: "year", Err: core.ErrInvalidDate}
	}
	key := fmt.Sprintf("month:%04d-%02d", year, month)
	return cached(ctx, s, s.months, key, func() (core.MonthOverview, error) {
		from, to := core.MonthRange(year, month)
		last := to.AddDate(0, 0, -1)
		txns, err := s.repos.Transactions().FindMany(ctx, repository.TransactionFilters{DateFrom: &from, DateTo: &last})
		if err != nil {
			return core.MonthOverview{}, fmt.Errorf("load month transactions: %w", err)
		}
		cats, err := s.repos.Categories().FindAll(ctx)
		if err != nil {
			return core.MonthOverview{}, fmt.Errorf("load categories: %w", err)
		}
		return core.BuildMonthOverview(year, month, txns, cats, s.now()), nil
	})
}

func (s *Summaries) WalletsOverview(ctx context.Context) (core.WalletsOverview, error) {
	return cached(ctx, s, s.wallets, "wallets", func() (core.WalletsOverview, error) {
		wallets, err := s.repos.Wallets().FindAll(ctx)
		if err != nil {
			return core.WalletsOverview{}, fmt.Errorf("load wallets: %w", err)
		}
		return core.BuildWalletsOverview(wallets), nil
	})
}

// Invalidate drops every cached summary. It is registered as a ledger
// change hook.
func (s *Summaries) Invalidate(ctx context.Context) {
	s.gen.Add(1)
	if s.months != nil {
		if err := s.months.Clear(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to invalidate month overviews", log.FieldError, err)
		}
	}
	if s.wallets != nil {
		if err := s.wallets.Clear(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to invalidate wallets overview", log.FieldError, err)
		}
	}
}

// cached reads key from c, falling back to load. Cache failures degrade to
// a direct load.
func cached[T any](ctx context.Context, s *Summaries, c cache.Cache[T], key string, load func() (T, error)) (T, error) {
	if c != nil {
		v, ok, err := c.Get(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "Summary cache read failed", "key", key, log.FieldError, err)
		} else if ok {
			return v, nil
		}
	}

	gen := s.gen.Load()
	v, err, _ := s.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		v, err := load()
		if err != nil {
			return v, err
		}
		if c == nil || s.gen.Load() != gen {
			return v, nil
		}
		if err := c.Set(ctx, key, v); err != nil {
			slog.WarnContext(ctx, "Summary cache write failed", "key", key, log.FieldError, err)
		}
		// An Invalidate that bumped gen before its Clear could have
		// cleared ahead of the Set above.
		if s.gen.Load() != gen {
			if err := c.Delete(ctx, key); err != nil {
				slog.WarnContext(ctx, "Summary cache delete failed", "key", key, log.FieldError, err)
			}
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
