// Package refresh runs the background maintenance pass: proactively
// invalidating a session whose persisted token has expired, and
// refetching the conversation summary list when the push engine marked
// it stale. Scheduling follows a cron expression.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"gramsync/pkg/apiclient"
	"gramsync/pkg/cache"
	"gramsync/pkg/config"
	"gramsync/pkg/logger"
	"gramsync/pkg/session"
	"gramsync/pkg/storage"
	"gramsync/pkg/token"
)

const defaultCron = "*/5 * * * *"

// Runner holds the collaborators one maintenance pass touches.
type Runner struct {
	Store *session.Store
	API   *apiclient.API
	Cache *cache.Cache
	KV    storage.KV
}

// Start launches the scheduler when enabled. Returns a cancel func.
func Start(ctx context.Context, cfg *config.Config, r Runner) (context.CancelFunc, error) {
	if !cfg.Refresh.Enabled {
		logger.Info("refresh_disabled")
		return func() {}, nil
	}
	cronExpr := cfg.Refresh.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("refresh_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid refresh cron expression: %s", cronExpr)
	}
	logger.Info("refresh_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, r)
	return cancel, nil
}

// runScheduler computes the next tick with gronx and sleeps until then.
func runScheduler(ctx context.Context, cronExpr string, r Runner) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("refresh_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("refresh_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("refresh_scheduler_stopping")
			return
		}

		if err := RunOnce(ctx, r); err != nil {
			logger.Error("refresh_run_error", "error", err)
		}
	}
}

// RunOnce performs a single maintenance pass. Exported so an admin
// trigger or test can invoke it on demand.
func RunOnce(ctx context.Context, r Runner) error {
	// Expiry sweep: the skew buffer in token.IsExpired means we log out
	// shortly before the true expiry instead of bouncing off a 401.
	if r.KV != nil && r.Store != nil {
		tok, err := r.KV.Get(session.TokenKey)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// logged out; nothing to sweep
		case err != nil:
			logger.Warn("refresh_token_read_failed", "error", err)
		case token.IsExpired(tok):
			logger.Info("refresh_token_expired_invalidate")
			r.Store.Invalidate(ctx)
		}
	}

	// Summary refetch: only when marked stale, and only with a session.
	if r.Cache != nil && r.API != nil && r.Cache.SummariesStale() {
		if r.Store != nil && !r.Store.State().Authenticated {
			return nil
		}
		convs, err := r.API.Conversations(ctx)
		if err != nil {
			return err
		}
		r.Cache.SetSummaries(convs)
		logger.Info("refresh_summaries_updated", "count", len(convs))
	}
	return nil
}
