package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// InviteRepo counts how many members a user has brought into a chat. Bumped
// from membership-change events, read by the force-join gate.
type InviteRepo struct {
	client *goredis.Client
}

func NewInviteRepo(client *goredis.Client) *InviteRepo {
	return &InviteRepo{client: client}
}

func (r *InviteRepo) Increment(ctx context.Context, chatID, referrerID int64) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if chatID == 0 || referrerID <= 0 {
		return 0, fmt.Errorf("invalid invite key")
	}

	count, err := r.client.Incr(ctx, inviteKey(chatID, referrerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment invite counter: %w", err)
	}

	return int(count), nil
}

func (r *InviteRepo) Get(ctx context.Context, chatID, userID int64) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if chatID == 0 || userID <= 0 {
		return 0, fmt.Errorf("invalid invite key")
	}

	count, err := r.client.Get(ctx, inviteKey(chatID, userID)).Int()
	if err != nil && err != goredis.Nil {
		return 0, fmt.Errorf("get invite counter: %w", err)
	}
	if err == goredis.Nil {
		return 0, nil
	}

	return count, nil
}

func inviteKey(chatID, userID int64) string {
	return "invites:" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}
