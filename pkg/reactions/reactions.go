// Package reactions is the optimistic mutation engine for toggle-style
// reactions: the local cache flips immediately on user intent, the
// request goes out, and a failed request rolls every copy back to the
// pre-toggle snapshot. No success-side reconciliation runs — the
// optimistic value stands until the next full refetch.
package reactions

import (
	"context"

	"gramsync/pkg/apiclient"
	"gramsync/pkg/cache"
	"gramsync/pkg/logger"
	"gramsync/pkg/models"
)

type Engine struct {
	api   *apiclient.API
	cache *cache.Cache
}

func New(api *apiclient.API, c *cache.Cache) *Engine {
	return &Engine{api: api, cache: c}
}

// Toggle inverts the caller's reaction on the post. Every cached copy of
// the entity (detail view, feed listings) is updated in one pass so no
// two views diverge. On any transport or server failure the snapshot is
// restored and the error surfaced.
func (e *Engine) Toggle(ctx context.Context, postID string) error {
	snap := e.cache.SnapshotPost(postID)
	touched := e.cache.UpdatePost(postID, applyToggle)
	logger.Debug("reaction_toggled_local", "post", postID, "copies", touched)

	if err := e.api.ToggleReaction(ctx, postID); err != nil {
		e.cache.RestorePost(snap)
		logger.Warn("reaction_toggle_rolled_back", "post", postID, "error", err)
		return err
	}
	return nil
}

// applyToggle flips HasReacted and moves the count with it, clamped at
// zero so a stale un-react can never drive the count negative.
func applyToggle(p *models.Post) {
	p.HasReacted = !p.HasReacted
	if p.HasReacted {
		p.ReactionCount++
	} else if p.ReactionCount > 0 {
		p.ReactionCount--
	}
}
