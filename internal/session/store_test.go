package session

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"
)

func TestNewIDFormat(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC)
	id := NewID(now)

	pattern := regexp.MustCompile(`^interview_20260301_093015_[0-9a-f]{8}$`)
	if !pattern.MatchString(id) {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID(now) == id {
		t.Fatal("expected distinct ids within the same second")
	}
}

func TestStoreCreateOneSessionPerConnection(t *testing.T) {
	store := NewStore()

	sess, err := store.Create("conn-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.State() != StateAwaitingConnect {
		t.Fatalf("expected initial state AWAITING_CONNECT, got %s", sess.State())
	}

	if _, err := store.Create("conn-1"); !errors.Is(err, ErrConnectionInUse) {
		t.Fatalf("expected ErrConnectionInUse, got %v", err)
	}
	if _, err := store.Create(""); err == nil {
		t.Fatal("expected error for empty connection key")
	}

	got, ok := store.GetByConnection("conn-1")
	if !ok || got != sess {
		t.Fatal("expected lookup by connection key")
	}
}

func TestStoreCreateRetriesIDCollision(t *testing.T) {
	store := NewStore()
	ids := []string{"dup", "dup", "fresh"}
	store.newID = func(time.Time) string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := store.Create("a")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := store.Create("b")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.ID != "dup" || second.ID != "fresh" {
		t.Fatalf("unexpected ids %q %q", first.ID, second.ID)
	}
}

func TestStoreResolveOrder(t *testing.T) {
	store := NewStore()
	a, _ := store.Create("conn-a")
	b, _ := store.Create("conn-b")

	tests := []struct {
		name      string
		sessionID string
		connKey   string
		want      *Session
	}{
		{"session id wins", a.ID, "conn-b", a},
		{"connection key", "unknown", "conn-b", b},
		{"connection key as session id", "", b.ID, b},
		{"nothing", "unknown", "unknown", nil},
		{"empty", "", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := store.Resolve(tt.sessionID, tt.connKey)
			if tt.want == nil {
				if ok {
					t.Fatalf("expected no session, got %s", got.ID)
				}
				return
			}
			if !ok || got != tt.want {
				t.Fatalf("expected %s, got %v", tt.want.ID, got)
			}
		})
	}
}

func TestStoreRemove(t *testing.T) {
	store := NewStore()
	sess, _ := store.Create("conn-1")

	removed, ok := store.Remove(sess.ID)
	if !ok || removed != sess {
		t.Fatal("expected Remove to return the session")
	}
	if _, ok := store.Get(sess.ID); ok {
		t.Fatal("expected session gone by id")
	}
	if _, ok := store.GetByConnection("conn-1"); ok {
		t.Fatal("expected session gone by connection")
	}
	if _, ok := store.Remove(sess.ID); ok {
		t.Fatal("expected second Remove to report false")
	}

	if _, err := store.Create("conn-1"); err != nil {
		t.Fatalf("expected connection key reusable after remove, got %v", err)
	}
}

func TestStoreConcurrentCreate(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sess, err := store.Create(fmt.Sprintf("conn-%d", idx))
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			_, _ = store.Resolve(sess.ID, "")
		}(i)
	}
	wg.Wait()

	if store.Len() != 50 || len(store.IDs()) != 50 {
		t.Fatalf("expected 50 sessions, got %d", store.Len())
	}
}
