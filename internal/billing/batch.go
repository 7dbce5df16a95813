package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// EntityFailure records one user whose computation failed in a batch.
type EntityFailure struct {
	UserID  string `json:"uid"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// BatchResult aggregates a recompute run.
type BatchResult struct {
	Period    string          `json:"period"`
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failures  []EntityFailure `json:"failures"`
}

// Err joins every failure, or returns nil when all users succeeded.
func (r BatchResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("uid %s: %w", f.UserID, f.Err))
	}
	return errors.Join(errs...)
}

// RecomputeAll computes the period for every billable user. Each user runs in
// its own transaction; failures are collected and never stop the others.
func (s *Service) RecomputeAll(ctx context.Context, period Period) (BatchResult, error) {
	if err := period.Validate(); err != nil {
		return BatchResult{}, err
	}
	users, err := s.repo.ListBillableUsers(ctx, period)
	if err != nil {
		return BatchResult{}, fmt.Errorf("billing: list billable users: %w", err)
	}
	start := time.Now()
	result := BatchResult{Period: period.String(), Total: len(users), Failures: []EntityFailure{}}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for _, uid := range users {
		uid := uid
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				_, err = s.ComputeInvoice(ctx, uid, period)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, EntityFailure{UserID: uid, Message: err.Error(), Err: err})
				return nil
			}
			result.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].UserID < result.Failures[j].UserID })
	s.logger.Info("recomputed invoices",
		slog.String("period", result.Period),
		slog.Int("total", result.Total),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", len(result.Failures)),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}
