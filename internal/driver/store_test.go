package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStoreCreateGet(t *testing.T) {
	store := NewMemoryStore()
	created, err := store.Create(context.Background(), Driver{TelegramID: 7, Passport: Passport{FullName: "Marcus Aurelius"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.Status != StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}
	got, err := store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Passport.FullName != "Marcus Aurelius" {
		t.Fatalf("unexpected full name %q", got.Passport.FullName)
	}
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreUpdateRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	created, _ := store.Create(context.Background(), Driver{})
	_, err := store.Update(context.Background(), created.ID, func(d *Driver) error {
		d.Phone = "+998901234567"
		return ErrConflict
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, _ := store.Get(context.Background(), created.ID)
	if got.Phone != "" {
		t.Fatalf("mutation leaked: %q", got.Phone)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	first, _ := store.Create(ctx, Driver{InvitedBy: 9})
	second, _ := store.Create(ctx, Driver{InvitedBy: 9})

	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	found, _ := store.Find(ctx, Filter{InvitedBy: 9})
	if len(found) != 1 || found[0].ID != second.ID {
		t.Fatalf("unexpected find after delete %+v", found)
	}
}

func TestMemoryStoreConcurrentClaimSingleWinner(t *testing.T) {
	store := NewMemoryStore()
	created, _ := store.Create(context.Background(), Driver{})

	const reviewers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 1; i <= reviewers; i++ {
		wg.Add(1)
		go func(reviewer int64) {
			defer wg.Done()
			_, err := store.Update(context.Background(), created.ID, func(d *Driver) error {
				return d.Claim(reviewer, "")
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one claim winner, got %d", winners)
	}
	got, _ := store.Get(context.Background(), created.ID)
	if got.Status != StatusInProgress || got.ClaimedBy == 0 {
		t.Fatalf("unexpected state %s claimed by %d", got.Status, got.ClaimedBy)
	}
}

func TestMemoryStoreFindByInviterInOrder(t *testing.T) {
	store := NewMemoryStore()
	names := []string{"first", "second", "third"}
	for _, name := range names {
		if _, err := store.Create(context.Background(), Driver{InvitedBy: 42, Passport: Passport{FullName: name}}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := store.Create(context.Background(), Driver{InvitedBy: 43}); err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := store.Find(context.Background(), Filter{InvitedBy: 42})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != len(names) {
		t.Fatalf("expected %d drivers, got %d", len(names), len(found))
	}
	for i, d := range found {
		if d.Passport.FullName != names[i] {
			t.Fatalf("position %d: got %q, want %q", i, d.Passport.FullName, names[i])
		}
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	created, _ := store.Create(context.Background(), Driver{Media: map[string]string{"PASSPORT.photo": "file-1"}})
	created.Media["PASSPORT.photo"] = "tampered"
	got, _ := store.Get(context.Background(), created.ID)
	if got.Media["PASSPORT.photo"] != "file-1" {
		t.Fatalf("store state shared with caller")
	}
}
