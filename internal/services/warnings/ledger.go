package warnings

import (
	"context"
	"errors"
	"fmt"
	"time"

	redrepo "github.com/asbhaibsr/UltimateManagerBot-sub000/internal/repo/redis"
)

var ErrValidation = errors.New("validation error")

// Store is the atomic counter primitive the ledger is built on. Increment
// must be a single increment-and-fetch on the backing store; the ledger never
// does a local read-modify-write.
type Store interface {
	Increment(ctx context.Context, chatID, userID int64, nowUnix int64) (redrepo.WarnRecord, error)
	Reset(ctx context.Context, chatID, userID int64) error
	Get(ctx context.Context, chatID, userID int64) (redrepo.WarnRecord, error)
}

type Record struct {
	Count         int
	LastWarningAt *time.Time
	Exists        bool
}

type Ledger struct {
	store Store
	now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
	}
}

// RecordViolation bumps the per-(chat,user) counter and returns the new
// count. Concurrent callers for the same key observe distinct counts.
func (l *Ledger) RecordViolation(ctx context.Context, chatID, userID int64) (int, error) {
	if chatID == 0 || userID <= 0 {
		return 0, ErrValidation
	}
	if l.store == nil {
		return 0, fmt.Errorf("warning store is nil")
	}

	rec, err := l.store.Increment(ctx, chatID, userID, l.now().UTC().Unix())
	if err != nil {
		return 0, err
	}

	return rec.Count, nil
}

// ResetWarnings zeroes the counter. Called once per attempted escalation and
// by the administrative reset surface.
func (l *Ledger) ResetWarnings(ctx context.Context, chatID, userID int64) error {
	if chatID == 0 || userID <= 0 {
		return ErrValidation
	}
	if l.store == nil {
		return fmt.Errorf("warning store is nil")
	}

	return l.store.Reset(ctx, chatID, userID)
}

func (l *Ledger) Warnings(ctx context.Context, chatID, userID int64) (Record, error) {
	if chatID == 0 || userID <= 0 {
		return Record{}, ErrValidation
	}
	if l.store == nil {
		return Record{}, fmt.Errorf("warning store is nil")
	}

	rec, err := l.store.Get(ctx, chatID, userID)
	if err != nil {
		return Record{}, err
	}

	out := Record{Count: rec.Count, Exists: rec.Exists}
	if rec.LastWarningAt > 0 {
		v := time.Unix(rec.LastWarningAt, 0).UTC()
		out.LastWarningAt = &v
	}
	return out, nil
}
