package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gramsync/pkg/storage"
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

func TestRestoreAbsentToken(t *testing.T) {
	kv := storage.NewMemory()
	logouts := 0
	s := NewStore(kv, func() { logouts++ })

	if st := s.State(); !st.Loading {
		t.Fatal("store should start loading")
	}
	s.Restore(context.Background())
	st := s.State()
	if st.Loading || st.Authenticated || st.Token != "" {
		t.Errorf("state after restore = %+v", st)
	}
	if logouts != 0 {
		t.Error("boot-time unauthenticated state must not trigger the logout cascade")
	}
}

func TestRestoreExpiredTokenDeletesIt(t *testing.T) {
	kv := storage.NewMemory()
	_ = kv.Set(TokenKey, makeToken(t, -time.Hour))
	s := NewStore(kv, nil)

	s.Restore(context.Background())
	st := s.State()
	if st.Authenticated || st.Token != "" || st.Loading {
		t.Errorf("state = %+v, want unauthenticated resolved", st)
	}
	if _, err := kv.Get(TokenKey); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expired persisted token should be deleted")
	}
}

func TestRestoreValidToken(t *testing.T) {
	kv := storage.NewMemory()
	tok := makeToken(t, time.Hour)
	_ = kv.Set(TokenKey, tok)
	s := NewStore(kv, nil)

	s.Restore(context.Background())
	st := s.State()
	if !st.Authenticated || st.Token != tok || st.Loading {
		t.Errorf("state = %+v, want authenticated", st)
	}
}

func TestRestoreStorageFailureTreatedAsAbsent(t *testing.T) {
	kv := storage.NewMemory()
	kv.FailGet = errors.New("disk on fire")
	s := NewStore(kv, nil)

	s.Restore(context.Background())
	st := s.State()
	if st.Loading {
		t.Error("loading must resolve even on storage failure")
	}
	if st.Authenticated {
		t.Error("storage failure must not authenticate")
	}
}

func TestAuthenticatePersistsFirst(t *testing.T) {
	kv := storage.NewMemory()
	s := NewStore(kv, nil)
	s.Restore(context.Background())

	tok := makeToken(t, time.Hour)
	if err := s.Authenticate(context.Background(), tok); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got, err := kv.Get(TokenKey); err != nil || got != tok {
		t.Errorf("persisted token = %q, %v", got, err)
	}
	if st := s.State(); !st.Authenticated || st.Token != tok {
		t.Errorf("state = %+v", st)
	}
}

func TestAuthenticatePersistFailureStaysUnauthenticated(t *testing.T) {
	kv := storage.NewMemory()
	kv.FailSet = errors.New("write failed")
	s := NewStore(kv, nil)
	s.Restore(context.Background())

	err := s.Authenticate(context.Background(), makeToken(t, time.Hour))
	if err == nil {
		t.Fatal("expected persistence error")
	}
	var serr *storage.StorageError
	if !errors.As(err, &serr) {
		t.Errorf("error type = %T", err)
	}
	if st := s.State(); st.Authenticated || st.Token != "" {
		t.Errorf("memory claims a session storage did not confirm: %+v", st)
	}
}

func TestFailedReauthenticateRunsLogoutCascade(t *testing.T) {
	kv := storage.NewMemory()
	logouts := 0
	s := NewStore(kv, func() { logouts++ })
	s.Restore(context.Background())
	if err := s.Authenticate(context.Background(), makeToken(t, time.Hour)); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// account switch whose persistence fails: the old session is gone
	// either way, so its cache must go with it
	kv.FailSet = errors.New("write failed")
	if err := s.Authenticate(context.Background(), makeToken(t, time.Hour)); err == nil {
		t.Fatal("expected persistence error")
	}
	if st := s.State(); st.Authenticated || st.Token != "" {
		t.Errorf("state = %+v, want unauthenticated", st)
	}
	if logouts != 1 {
		t.Errorf("logout cascade ran %d times, want 1", logouts)
	}
}

func TestInvalidateIdempotent(t *testing.T) {
	kv := storage.NewMemory()
	logouts := 0
	s := NewStore(kv, func() { logouts++ })
	s.Restore(context.Background())
	if err := s.Authenticate(context.Background(), makeToken(t, time.Hour)); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	s.Invalidate(context.Background())
	s.Invalidate(context.Background())

	st := s.State()
	if st.Authenticated || st.Token != "" {
		t.Errorf("state = %+v, want terminal unauthenticated", st)
	}
	if _, err := kv.Get(TokenKey); !errors.Is(err, storage.ErrNotFound) {
		t.Error("persisted token should be gone")
	}
	if logouts != 1 {
		t.Errorf("logout cascade ran %d times, want exactly 1", logouts)
	}
}

func TestInvalidateSwallowsStorageErrors(t *testing.T) {
	kv := storage.NewMemory()
	s := NewStore(kv, nil)
	s.Restore(context.Background())
	if err := s.Authenticate(context.Background(), makeToken(t, time.Hour)); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	kv.FailDelete = errors.New("delete failed")
	s.Invalidate(context.Background()) // must not panic or surface
	if st := s.State(); st.Authenticated {
		t.Errorf("state = %+v, want unauthenticated despite storage error", st)
	}
}
