package refresh

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gramsync/pkg/apiclient"
	"gramsync/pkg/cache"
	"gramsync/pkg/config"
	"gramsync/pkg/session"
	"gramsync/pkg/storage"
	"gramsync/pkg/transport"
)

func makeToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	hdr := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(map[string]any{"exp": time.Now().Add(expiresIn).Unix()})
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return hdr + "." + base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

func newAPI(t *testing.T, h http.HandlerFunc) *apiclient.API {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	cfg := &config.Config{}
	cfg.API.Host = ts.URL
	cfg.API.Prefix = "/"
	c, err := transport.NewClient(cfg, storage.NewMemory(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return apiclient.New(c)
}

func TestRunOnceSweepsExpiredToken(t *testing.T) {
	kv := storage.NewMemory()
	_ = kv.Set(session.TokenKey, makeToken(t, time.Hour))
	logouts := 0
	store := session.NewStore(kv, func() { logouts++ })
	store.Restore(context.Background())
	if !store.State().Authenticated {
		t.Fatal("precondition: authenticated")
	}

	// token expires underneath the running session
	_ = kv.Set(session.TokenKey, makeToken(t, -time.Minute))

	if err := RunOnce(context.Background(), Runner{Store: store, KV: kv}); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if store.State().Authenticated {
		t.Error("expired token must invalidate the session")
	}
	if logouts != 1 {
		t.Errorf("logout cascade ran %d times, want 1", logouts)
	}
	if _, err := kv.Get(session.TokenKey); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expired token should be deleted from storage")
	}
}

func TestRunOnceLeavesLiveTokenAlone(t *testing.T) {
	kv := storage.NewMemory()
	_ = kv.Set(session.TokenKey, makeToken(t, time.Hour))
	store := session.NewStore(kv, nil)
	store.Restore(context.Background())

	if err := RunOnce(context.Background(), Runner{Store: store, KV: kv}); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !store.State().Authenticated {
		t.Error("live token must survive the sweep")
	}
}

func TestRunOnceRefetchesStaleSummaries(t *testing.T) {
	calls := 0
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/messages/conversations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"success","code":200,"data":[{"peerUserId":"alice","unreadCount":3}]}`))
	})

	kv := storage.NewMemory()
	_ = kv.Set(session.TokenKey, makeToken(t, time.Hour))
	store := session.NewStore(kv, nil)
	store.Restore(context.Background())

	c := cache.New()
	c.MarkSummariesStale()

	if err := RunOnce(context.Background(), Runner{Store: store, API: api, Cache: c, KV: kv}); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if calls != 1 {
		t.Errorf("summary endpoint hit %d times, want 1", calls)
	}
	if c.SummariesStale() {
		t.Error("refetch must clear the stale flag")
	}
	if got := c.Summaries(); len(got) != 1 || got[0].UnreadCount != 3 {
		t.Errorf("summaries = %+v", got)
	}
}

func TestRunOnceSkipsFreshSummaries(t *testing.T) {
	calls := 0
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	kv := storage.NewMemory()
	_ = kv.Set(session.TokenKey, makeToken(t, time.Hour))
	store := session.NewStore(kv, nil)
	store.Restore(context.Background())

	if err := RunOnce(context.Background(), Runner{Store: store, API: api, Cache: cache.New(), KV: kv}); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if calls != 0 {
		t.Errorf("fresh summaries refetched %d times", calls)
	}
}

func TestRunOnceSkipsRefetchWithoutSession(t *testing.T) {
	calls := 0
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	kv := storage.NewMemory()
	store := session.NewStore(kv, nil)
	store.Restore(context.Background())

	c := cache.New()
	c.MarkSummariesStale()

	if err := RunOnce(context.Background(), Runner{Store: store, API: api, Cache: c, KV: kv}); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if calls != 0 {
		t.Error("unauthenticated pass must not hit the server")
	}
	if !c.SummariesStale() {
		t.Error("stale flag must persist until a real refetch")
	}
}

func TestStartRejectsInvalidCron(t *testing.T) {
	cfg := &config.Config{}
	cfg.Refresh.Enabled = true
	cfg.Refresh.Cron = "not a cron"

	if _, err := Start(context.Background(), cfg, Runner{}); err == nil {
		t.Fatal("invalid cron expression must fail fast")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	cancel, err := Start(context.Background(), &config.Config{}, Runner{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel() // must be callable even when nothing was scheduled
}
