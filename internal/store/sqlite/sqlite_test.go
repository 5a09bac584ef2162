package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"driver_bot/internal/driver"
)

func openTestStore(t *testing.T) *DriverStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "drivers.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDriverStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, driver.Driver{
		TelegramID: 42,
		Username:   "marcus",
		Language:   "ru",
		Passport:   driver.Passport{FullName: "Marcus Aurelius", SerialNumber: "AB123456", BirthDate: "26.04.1990"},
		License:    driver.License{Series: "AA", Number: "1234567", IssueDate: "01.02.2015", Categories: "B, C"},
		Phone:      "+998901234567",
		Media:      map[string]string{"photo": "file-1"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Status != driver.StatusPending {
		t.Fatalf("unexpected created driver %+v", created)
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Passport.FullName != "Marcus Aurelius" || got.License.Categories != "B, C" || got.Phone != "+998901234567" {
		t.Fatalf("unexpected stored driver %+v", got)
	}
	if got.Media["photo"] != "file-1" {
		t.Fatalf("media lost: %+v", got.Media)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("created_at mismatch %v != %v", got.CreatedAt, created.CreatedAt)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, driver.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Create(ctx, driver.Driver{ID: created.ID}); !errors.Is(err, driver.ErrConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}
}

func TestDriverStoreUpdateTransitions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	created, err := store.Create(ctx, driver.Driver{TelegramID: 42})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := store.Update(ctx, created.ID, func(d *driver.Driver) error {
		return d.Claim(7, "@reviewer")
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != driver.StatusInProgress || claimed.ClaimedBy != 7 {
		t.Fatalf("unexpected claimed driver %+v", claimed)
	}

	if _, err := store.Update(ctx, created.ID, func(d *driver.Driver) error {
		return d.Claim(8, "@other")
	}); !errors.Is(err, driver.ErrConflict) {
		t.Fatalf("expected conflict on second claim, got %v", err)
	}

	if _, err := store.Update(ctx, created.ID, func(d *driver.Driver) error {
		if err := d.Approve(7, false); err != nil {
			return err
		}
		d.ResolvedByName = "@reviewer"
		return nil
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, _ := store.Get(ctx, created.ID)
	if got.Status != driver.StatusApproved || got.ClaimedBy != 0 || got.ResolvedBy != 7 || got.ResolvedByName != "@reviewer" {
		t.Fatalf("unexpected approved driver %+v", got)
	}

	if _, err := store.Update(ctx, "missing", func(d *driver.Driver) error { return nil }); !errors.Is(err, driver.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDriverStoreConcurrentClaimSingleWinner(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	created, err := store.Create(ctx, driver.Driver{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const reviewers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners, conflicts := 0, 0
	for i := 1; i <= reviewers; i++ {
		wg.Add(1)
		go func(reviewer int64) {
			defer wg.Done()
			_, err := store.Update(ctx, created.ID, func(d *driver.Driver) error {
				return d.Claim(reviewer, "")
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, driver.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()
	if winners != 1 || conflicts != reviewers-1 {
		t.Fatalf("expected one winner, got %d winners and %d conflicts", winners, conflicts)
	}
}

func TestDriverStoreFindKeepsCreationOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	names := []string{"first", "second", "third"}
	for _, name := range names {
		if _, err := store.Create(ctx, driver.Driver{InvitedBy: 99, Passport: driver.Passport{FullName: name}}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if _, err := store.Create(ctx, driver.Driver{InvitedBy: 100}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	found, err := store.Find(ctx, driver.Filter{InvitedBy: 99})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != len(names) {
		t.Fatalf("expected %d drivers, got %d", len(names), len(found))
	}
	for i, d := range found {
		if d.Passport.FullName != names[i] {
			t.Fatalf("position %d: expected %s, got %s", i, names[i], d.Passport.FullName)
		}
	}

	pending, err := store.Find(ctx, driver.Filter{Status: driver.StatusApproved})
	if err != nil {
		t.Fatalf("find by status: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no approved drivers, got %d", len(pending))
	}
}

func TestDriverStoreDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, _ := store.Create(ctx, driver.Driver{TelegramID: 1})
	second, _ := store.Create(ctx, driver.Driver{TelegramID: 2})
	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, first.ID); !errors.Is(err, driver.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(ctx, first.ID); !errors.Is(err, driver.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	left, err := store.Find(ctx, driver.Filter{})
	if err != nil || len(left) != 1 || left[0].ID != second.ID {
		t.Fatalf("unexpected remaining drivers %+v %v", left, err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drivers.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	created, err := first.Create(context.Background(), driver.Driver{TelegramID: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if _, err := second.Get(context.Background(), created.ID); err != nil {
		t.Fatalf("driver lost after reopen: %v", err)
	}
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n")
	if got != "\nCREATE TABLE a (x INT);\n" {
		t.Fatalf("unexpected up section %q", got)
	}
	if upSection("SELECT 1;") != "SELECT 1;" {
		t.Fatalf("plain file must be applied whole")
	}
}
