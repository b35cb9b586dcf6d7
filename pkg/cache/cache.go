// Package cache holds the local replica of server data: per-peer
// conversation message lists, the conversation summary list, and cached
// post copies. Exactly two writers mutate it (the push engine and the
// optimistic mutation engine) under last-writer-wins per key; merges are
// idempotent so a late result from an abandoned request is harmless.
package cache

import (
	"sync"

	"gramsync/pkg/metrics"
	"gramsync/pkg/models"
)

// Cache is safe for concurrent use.
type Cache struct {
	mu sync.RWMutex

	conversations map[string][]models.Message
	seen          map[string]map[string]struct{}

	summaries      []models.Conversation
	summariesStale bool

	// A post may be cached in several places at once: a detail entry and
	// any number of named list collections (feed, profile grids). All
	// copies of one ID must be updated in the same pass.
	postDetail map[string]models.Post
	postLists  map[string][]models.Post
}

func New() *Cache {
	c := &Cache{}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.conversations = make(map[string][]models.Message)
	c.seen = make(map[string]map[string]struct{})
	c.summaries = nil
	c.summariesStale = false
	c.postDetail = make(map[string]models.Post)
	c.postLists = make(map[string][]models.Post)
}

// Clear wipes the whole replica. Called on logout: cached data is scoped
// to the previous identity and must not leak across accounts.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// MergeMessage appends msg to the peer's conversation in arrival order.
// Idempotent by message ID: re-delivery (reconnect replay) is a no-op.
// Returns true when the message was actually inserted.
func (c *Cache) MergeMessage(peerID string, msg models.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.seen[peerID]
	if !ok {
		ids = make(map[string]struct{})
		c.seen[peerID] = ids
	}
	if _, dup := ids[msg.ID]; dup {
		metrics.CacheMergesTotal.WithLabelValues("duplicate").Inc()
		return false
	}
	ids[msg.ID] = struct{}{}
	c.conversations[peerID] = append(c.conversations[peerID], msg)
	metrics.CacheMergesTotal.WithLabelValues("merged").Inc()
	return true
}

// Messages returns a copy of the peer's message list in arrival order.
func (c *Cache) Messages(peerID string) []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := c.conversations[peerID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// SetSummaries replaces the conversation summary list with the server's
// view and clears the staleness flag. Unread counts come only from here.
func (c *Cache) SetSummaries(s []models.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries = append([]models.Conversation(nil), s...)
	c.summariesStale = false
}

// Summaries returns a copy of the summary list.
func (c *Cache) Summaries() []models.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Conversation(nil), c.summaries...)
}

// MarkSummariesStale flags the summary list for a server refetch. Unread
// counts and ordering need server authority, so they are never
// recomputed locally after a merge.
func (c *Cache) MarkSummariesStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summariesStale = true
}

// SummariesStale reports whether the summary list needs a refetch.
func (c *Cache) SummariesStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.summariesStale
}

// SetPost stores or replaces the detail copy of a post.
func (c *Cache) SetPost(p models.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.postDetail[p.ID] = p
}

// SetPostList replaces a named list collection (e.g. "feed").
func (c *Cache) SetPostList(name string, posts []models.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.postLists[name] = append([]models.Post(nil), posts...)
}

// Post returns a cached copy of the post, preferring the detail entry.
func (c *Cache) Post(id string) (models.Post, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.postDetail[id]; ok {
		return p, true
	}
	for _, list := range c.postLists {
		for _, p := range list {
			if p.ID == id {
				return p, true
			}
		}
	}
	return models.Post{}, false
}

// PostList returns a copy of a named list collection.
func (c *Cache) PostList(name string) []models.Post {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Post(nil), c.postLists[name]...)
}

// UpdatePost applies fn to every cached copy of the post in one pass, so
// a detail view and a feed listing never show divergent states of the
// same entity. Returns the number of copies touched.
func (c *Cache) UpdatePost(id string, fn func(*models.Post)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	if p, ok := c.postDetail[id]; ok {
		fn(&p)
		c.postDetail[id] = p
		n++
	}
	for name, list := range c.postLists {
		for i := range list {
			if list[i].ID == id {
				fn(&list[i])
				n++
			}
		}
		c.postLists[name] = list
	}
	return n
}

// PostSnapshot captures every cached copy of one post so a failed
// optimistic mutation can be rolled back exactly.
type PostSnapshot struct {
	ID         string
	Detail     *models.Post
	ListCopies map[string]map[int]models.Post
}

// SnapshotPost records the current state of all copies of the post.
func (c *Cache) SnapshotPost(id string) PostSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := PostSnapshot{ID: id, ListCopies: make(map[string]map[int]models.Post)}
	if p, ok := c.postDetail[id]; ok {
		cp := p
		snap.Detail = &cp
	}
	for name, list := range c.postLists {
		for i, p := range list {
			if p.ID == id {
				if snap.ListCopies[name] == nil {
					snap.ListCopies[name] = make(map[int]models.Post)
				}
				snap.ListCopies[name][i] = p
			}
		}
	}
	return snap
}

// RestorePost puts every copy captured by SnapshotPost back. Copies that
// disappeared since the snapshot are left alone (last writer wins).
func (c *Cache) RestorePost(snap PostSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.Detail != nil {
		if _, ok := c.postDetail[snap.ID]; ok {
			c.postDetail[snap.ID] = *snap.Detail
		}
	}
	for name, byIdx := range snap.ListCopies {
		list, ok := c.postLists[name]
		if !ok {
			continue
		}
		for i, p := range byIdx {
			if i < len(list) && list[i].ID == snap.ID {
				list[i] = p
			}
		}
		c.postLists[name] = list
	}
}
