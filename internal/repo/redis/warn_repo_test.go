package redis

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestIncrementReturnsUniqueMonotonicCounts(t *testing.T) {
	repo, cleanup := newWarnRepo(t)
	defer cleanup()

	ctx := context.Background()
	const n = 25

	var mu sync.Mutex
	seen := make(map[int]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := repo.Increment(ctx, -100500, 42, 1700000000)
			if err != nil {
				t.Errorf("increment: %v", err)
				return
			}
			mu.Lock()
			seen[rec.Count] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct counts, got %d", n, len(seen))
	}
	for k := 1; k <= n; k++ {
		if !seen[k] {
			t.Fatalf("missing count %d in %v", k, seen)
		}
	}
}

func TestIncrementStampsLastWarningAt(t *testing.T) {
	repo, cleanup := newWarnRepo(t)
	defer cleanup()

	ctx := context.Background()
	rec, err := repo.Increment(ctx, -1, 7, 1700000123)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if rec.Count != 1 {
		t.Fatalf("unexpected count: %d", rec.Count)
	}
	if rec.LastWarningAt != 1700000123 {
		t.Fatalf("unexpected last_warning_at: %d", rec.LastWarningAt)
	}

	got, err := repo.Get(ctx, -1, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Exists || got.Count != 1 || got.LastWarningAt != 1700000123 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestResetZeroesCountButKeepsRecord(t *testing.T) {
	repo, cleanup := newWarnRepo(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := repo.Increment(ctx, -1, 7, 1700000000); err != nil {
			t.Fatalf("increment #%d: %v", i+1, err)
		}
	}

	if err := repo.Reset(ctx, -1, 7); err != nil {
		t.Fatalf("reset: %v", err)
	}

	rec, err := repo.Get(ctx, -1, 7)
	if err != nil {
		t.Fatalf("get after reset: %v", err)
	}
	if !rec.Exists {
		t.Fatalf("record should survive reset")
	}
	if rec.Count != 0 {
		t.Fatalf("count should be zero after reset: %d", rec.Count)
	}
	if rec.LastWarningAt != 1700000000 {
		t.Fatalf("last_warning_at should survive reset: %d", rec.LastWarningAt)
	}

	next, err := repo.Increment(ctx, -1, 7, 1700000050)
	if err != nil {
		t.Fatalf("increment after reset: %v", err)
	}
	if next.Count != 1 {
		t.Fatalf("count should restart at 1 after reset: %d", next.Count)
	}
}

func TestGetMissingRecord(t *testing.T) {
	repo, cleanup := newWarnRepo(t)
	defer cleanup()

	rec, err := repo.Get(context.Background(), -1, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Exists || rec.Count != 0 {
		t.Fatalf("expected empty record, got %+v", rec)
	}
}

func TestIncrementRejectsInvalidKey(t *testing.T) {
	repo, cleanup := newWarnRepo(t)
	defer cleanup()

	if _, err := repo.Increment(context.Background(), 0, 7, 0); err == nil {
		t.Fatalf("expected error for zero chat id")
	}
	if _, err := repo.Increment(context.Background(), -1, 0, 0); err == nil {
		t.Fatalf("expected error for zero user id")
	}
}

func newWarnRepo(t *testing.T) (*WarnRepo, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	repo := NewWarnRepo(client)

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return repo, cleanup
}
