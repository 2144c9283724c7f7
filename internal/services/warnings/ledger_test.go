package warnings

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/repo/redis"
)

func TestRecordViolationConcurrentCountsAreDense(t *testing.T) {
	ledger, cleanup := newLedger(t)
	defer cleanup()

	ctx := context.Background()
	const n = 20

	counts := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := ledger.RecordViolation(ctx, -200, 10)
			if err != nil {
				t.Errorf("record violation: %v", err)
				return
			}
			counts <- c
		}()
	}
	wg.Wait()
	close(counts)

	seen := make(map[int]bool, n)
	for c := range counts {
		if seen[c] {
			t.Fatalf("duplicate count %d", c)
		}
		seen[c] = true
	}
	for k := 1; k <= n; k++ {
		if !seen[k] {
			t.Fatalf("missing count %d", k)
		}
	}
}

func TestResetStartsFreshCount(t *testing.T) {
	ledger, cleanup := newLedger(t)
	defer cleanup()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		c, err := ledger.RecordViolation(ctx, -200, 10)
		if err != nil {
			t.Fatalf("record violation #%d: %v", i, err)
		}
		if c != i {
			t.Fatalf("unexpected count: got %d want %d", c, i)
		}
	}

	if err := ledger.ResetWarnings(ctx, -200, 10); err != nil {
		t.Fatalf("reset: %v", err)
	}

	c, err := ledger.RecordViolation(ctx, -200, 10)
	if err != nil {
		t.Fatalf("record violation after reset: %v", err)
	}
	if c != 1 {
		t.Fatalf("count after reset should be 1, got %d", c)
	}
}

func TestWarningsReportsLastWarningTime(t *testing.T) {
	ledger, cleanup := newLedger(t)
	defer cleanup()

	ctx := context.Background()

	empty, err := ledger.Warnings(ctx, -200, 10)
	if err != nil {
		t.Fatalf("warnings on empty key: %v", err)
	}
	if empty.Exists || empty.Count != 0 || empty.LastWarningAt != nil {
		t.Fatalf("unexpected empty record: %+v", empty)
	}

	if _, err := ledger.RecordViolation(ctx, -200, 10); err != nil {
		t.Fatalf("record violation: %v", err)
	}

	rec, err := ledger.Warnings(ctx, -200, 10)
	if err != nil {
		t.Fatalf("warnings: %v", err)
	}
	if !rec.Exists || rec.Count != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.LastWarningAt == nil || rec.LastWarningAt.IsZero() {
		t.Fatalf("expected last warning timestamp")
	}
}

func TestLedgerValidation(t *testing.T) {
	ledger, cleanup := newLedger(t)
	defer cleanup()

	if _, err := ledger.RecordViolation(context.Background(), 0, 10); err != ErrValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := ledger.ResetWarnings(context.Background(), -200, 0); err != ErrValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func newLedger(t *testing.T) (*Ledger, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	ledger := NewLedger(redrepo.NewWarnRepo(client))

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return ledger, cleanup
}
