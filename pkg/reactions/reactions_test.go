package reactions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"gramsync/pkg/apiclient"
	"gramsync/pkg/cache"
	"gramsync/pkg/config"
	"gramsync/pkg/models"
	"gramsync/pkg/storage"
	"gramsync/pkg/transport"
)

func newEngine(t *testing.T, status int) (*Engine, *cache.Cache) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(ts.Close)

	cfg := &config.Config{}
	cfg.API.Host = ts.URL
	cfg.API.Prefix = "/"
	client, err := transport.NewClient(cfg, storage.NewMemory(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c := cache.New()
	return New(apiclient.New(client), c), c
}

func seed(c *cache.Cache, p models.Post) {
	c.SetPost(p)
	c.SetPostList("feed", []models.Post{p, {ID: "other", ReactionCount: 9}})
}

func TestToggleOnce(t *testing.T) {
	e, c := newEngine(t, http.StatusOK)
	seed(c, models.Post{ID: "p1", ReactionCount: 4, HasReacted: false})

	if err := e.Toggle(context.Background(), "p1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	p, _ := c.Post("p1")
	if !p.HasReacted || p.ReactionCount != 5 {
		t.Errorf("detail = %+v, want {5 true}", p)
	}
	if fp := c.PostList("feed")[0]; !fp.HasReacted || fp.ReactionCount != 5 {
		t.Errorf("feed copy = %+v, want {5 true}", fp)
	}
}

func TestToggleTwiceRoundTrips(t *testing.T) {
	e, c := newEngine(t, http.StatusOK)
	seed(c, models.Post{ID: "p1", ReactionCount: 4, HasReacted: false})

	ctx := context.Background()
	if err := e.Toggle(ctx, "p1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if err := e.Toggle(ctx, "p1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	p, _ := c.Post("p1")
	if p.HasReacted || p.ReactionCount != 4 {
		t.Errorf("post = %+v, want back to {4 false}", p)
	}
}

func TestUnreactClampsAtZero(t *testing.T) {
	e, c := newEngine(t, http.StatusOK)
	// inconsistent server data: reacted with a zero count
	seed(c, models.Post{ID: "p1", ReactionCount: 0, HasReacted: true})

	if err := e.Toggle(context.Background(), "p1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	p, _ := c.Post("p1")
	if p.HasReacted || p.ReactionCount != 0 {
		t.Errorf("post = %+v, count must never go negative", p)
	}
}

func TestFailureRollsBackEveryCopy(t *testing.T) {
	e, c := newEngine(t, http.StatusInternalServerError)
	seed(c, models.Post{ID: "p1", ReactionCount: 4, HasReacted: false})

	if err := e.Toggle(context.Background(), "p1"); err == nil {
		t.Fatal("expected server error")
	}
	p, _ := c.Post("p1")
	if p.HasReacted || p.ReactionCount != 4 {
		t.Errorf("detail = %+v, want rollback to {4 false}", p)
	}
	if fp := c.PostList("feed")[0]; fp.HasReacted || fp.ReactionCount != 4 {
		t.Errorf("feed copy = %+v, want rollback to {4 false}", fp)
	}
}

func TestFailureRollbackRestoresClampedState(t *testing.T) {
	e, c := newEngine(t, http.StatusInternalServerError)
	// the clamped case a naive inverse-toggle cannot undo
	seed(c, models.Post{ID: "p1", ReactionCount: 0, HasReacted: true})

	if err := e.Toggle(context.Background(), "p1"); err == nil {
		t.Fatal("expected server error")
	}
	p, _ := c.Post("p1")
	if !p.HasReacted || p.ReactionCount != 0 {
		t.Errorf("post = %+v, want exact snapshot {0 true}", p)
	}
}

func TestToggleUncachedPostStillSends(t *testing.T) {
	e, c := newEngine(t, http.StatusOK)
	if err := e.Toggle(context.Background(), "ghost"); err != nil {
		t.Fatalf("Toggle on uncached post: %v", err)
	}
	if _, ok := c.Post("ghost"); ok {
		t.Error("toggle must not invent cache entries")
	}
}
