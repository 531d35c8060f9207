package storage

import (
	"context"
	"log/slog"
	"time"

	"ferry/internal/server/database"
)

// SessionSweeper is the slice of the repository the retention service needs.
type SessionSweeper interface {
	FindStale(ctx context.Context, olderThan time.Time, completed bool) ([]*database.UploadSession, error)
	DeleteSession(ctx context.Context, id string) error
}

// FragmentRemover destroys a session's staging fragments.
type FragmentRemover interface {
	RemoveSession(sessionID string) error
}

// RetentionService runs two independent periodic sweeps: abandoned
// incomplete sessions (staging fragments + record) and expired completed
// session records (bookkeeping only; artifacts persist independently).
// Completed is a one-way latch and active sessions keep refreshing
// updated_at, so neither sweep can race destructively with in-flight
// requests for the same session.
type RetentionService struct {
	repo    SessionSweeper
	staging FragmentRemover

	abandonAfter   time.Duration
	abandonEvery   time.Duration
	retainFor      time.Duration
	retentionEvery time.Duration

	done chan struct{}
}

// NewRetentionService creates a retention service.
func NewRetentionService(repo SessionSweeper, staging FragmentRemover,
	abandonAfter, abandonEvery, retainFor, retentionEvery time.Duration) *RetentionService {
	return &RetentionService{
		repo:           repo,
		staging:        staging,
		abandonAfter:   abandonAfter,
		abandonEvery:   abandonEvery,
		retainFor:      retainFor,
		retentionEvery: retentionEvery,
		done:           make(chan struct{}),
	}
}

// Start begins both sweep loops in a background goroutine.
func (rs *RetentionService) Start(ctx context.Context) {
	slog.Info("retention service started",
		"abandon_after", rs.abandonAfter,
		"abandon_every", rs.abandonEvery,
		"retain_for", rs.retainFor,
		"retention_every", rs.retentionEvery,
	)

	go func() {
		abandonTicker := time.NewTicker(rs.abandonEvery)
		defer abandonTicker.Stop()
		retentionTicker := time.NewTicker(rs.retentionEvery)
		defer retentionTicker.Stop()

		// Run once immediately on start
		rs.SweepAbandoned(ctx)
		rs.SweepCompleted(ctx)

		for {
			select {
			case <-abandonTicker.C:
				rs.SweepAbandoned(ctx)
			case <-retentionTicker.C:
				rs.SweepCompleted(ctx)
			case <-ctx.Done():
				slog.Info("retention service stopping")
				close(rs.done)
				return
			}
		}
	}()
}

// Wait blocks until the retention service has fully stopped.
func (rs *RetentionService) Wait() {
	<-rs.done
}

// SweepAbandoned deletes incomplete sessions idle past the abandonment
// timeout: staging fragments first, then the record. One session's failure
// is logged and never aborts the rest of the batch.
func (rs *RetentionService) SweepAbandoned(ctx context.Context) {
	cutoff := time.Now().Add(-rs.abandonAfter)

	stale, err := rs.repo.FindStale(ctx, cutoff, false)
	if err != nil {
		slog.Error("failed to query abandoned sessions", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	var cleaned, failed int
	for _, session := range stale {
		if err := rs.staging.RemoveSession(session.ID); err != nil {
			slog.Error("failed to remove staging fragments",
				"session_id", session.ID,
				"error", err,
			)
			failed++
			continue
		}

		if err := rs.repo.DeleteSession(ctx, session.ID); err != nil {
			slog.Error("failed to delete abandoned session record",
				"session_id", session.ID,
				"error", err,
			)
			failed++
			continue
		}

		cleaned++
		slog.Info("cleaned up abandoned session",
			"session_id", session.ID,
			"owner_id", session.OwnerID,
			"last_activity", session.UpdatedAt,
		)
	}

	slog.Info("abandoned-session sweep complete",
		"cleaned", cleaned,
		"failed", failed,
		"total_stale", len(stale),
	)
}

// SweepCompleted deletes records of sessions completed before the
// retention window. Artifacts and their metadata are untouched.
func (rs *RetentionService) SweepCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-rs.retainFor)

	expired, err := rs.repo.FindStale(ctx, cutoff, true)
	if err != nil {
		slog.Error("failed to query expired completed sessions", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	var cleaned, failed int
	for _, session := range expired {
		if err := rs.repo.DeleteSession(ctx, session.ID); err != nil {
			slog.Error("failed to delete completed session record",
				"session_id", session.ID,
				"error", err,
			)
			failed++
			continue
		}
		cleaned++
	}

	slog.Info("completed-session retention sweep complete",
		"cleaned", cleaned,
		"failed", failed,
		"total_expired", len(expired),
	)
}
