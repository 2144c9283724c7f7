package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// incrScript bumps the violation counter and stamps last_warning_at in the
// same hash write, so a concurrent reader never sees a count without its
// timestamp. Returns {count, last_warning_at}.
const incrScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])

if now == nil or now < 0 then
	now = 0
end

local count = redis.call("HINCRBY", key, "count", 1)
redis.call("HSET", key, "last_warning_at", now)

return {count, now}
`

type WarnRepo struct {
	client *goredis.Client
}

type WarnRecord struct {
	Count         int
	LastWarningAt int64
	Exists        bool
}

func NewWarnRepo(client *goredis.Client) *WarnRepo {
	return &WarnRepo{client: client}
}

// Increment is the single atomic increment-and-fetch the ledger is built on.
// Two concurrent callers for the same key always observe distinct counts.
func (r *WarnRepo) Increment(ctx context.Context, chatID, userID int64, nowUnix int64) (WarnRecord, error) {
	if r.client == nil {
		return WarnRecord{}, fmt.Errorf("redis client is nil")
	}
	if chatID == 0 || userID <= 0 {
		return WarnRecord{}, fmt.Errorf("invalid warning key")
	}

	raw, err := r.client.Eval(ctx, incrScript, []string{warnKey(chatID, userID)}, nowUnix).Result()
	if err != nil {
		return WarnRecord{}, fmt.Errorf("increment warning counter: %w", err)
	}

	arr, ok := raw.([]interface{})
	if !ok || len(arr) < 2 {
		return WarnRecord{}, fmt.Errorf("unexpected warning script result")
	}
	count, ok := asInt(arr[0])
	if !ok {
		return WarnRecord{}, fmt.Errorf("unexpected warning count value")
	}
	lastAt, ok := asInt64(arr[1])
	if !ok {
		return WarnRecord{}, fmt.Errorf("unexpected last_warning_at value")
	}

	return WarnRecord{Count: count, LastWarningAt: lastAt, Exists: true}, nil
}

// Reset zeroes the counter. The record itself survives so last_warning_at
// remains visible to operators.
func (r *WarnRepo) Reset(ctx context.Context, chatID, userID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if chatID == 0 || userID <= 0 {
		return fmt.Errorf("invalid warning key")
	}

	if err := r.client.HSet(ctx, warnKey(chatID, userID), "count", 0).Err(); err != nil {
		return fmt.Errorf("reset warning counter: %w", err)
	}

	return nil
}

func (r *WarnRepo) Get(ctx context.Context, chatID, userID int64) (WarnRecord, error) {
	if r.client == nil {
		return WarnRecord{}, fmt.Errorf("redis client is nil")
	}
	if chatID == 0 || userID <= 0 {
		return WarnRecord{}, fmt.Errorf("invalid warning key")
	}

	values, err := r.client.HGetAll(ctx, warnKey(chatID, userID)).Result()
	if err != nil {
		return WarnRecord{}, fmt.Errorf("get warning record: %w", err)
	}
	if len(values) == 0 {
		return WarnRecord{}, nil
	}

	count, err := parseInt(values["count"])
	if err != nil {
		return WarnRecord{}, fmt.Errorf("parse count: %w", err)
	}
	lastAt, err := parseInt64(values["last_warning_at"])
	if err != nil {
		return WarnRecord{}, fmt.Errorf("parse last_warning_at: %w", err)
	}

	if count < 0 {
		count = 0
	}

	return WarnRecord{Count: count, LastWarningAt: lastAt, Exists: true}, nil
}

func warnKey(chatID, userID int64) string {
	return "warn:" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}

func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
