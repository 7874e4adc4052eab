package identity

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const guestNameTTL = 30 * 24 * time.Hour

// GuestStore keeps guest display names in redis so a returning guest gets the
// name they last played under.
type GuestStore struct {
	rdb *redis.Client
}

// NewGuestStore connects to redis at redisURL and pings it once.
func NewGuestStore(redisURL string) (*GuestStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for guest store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &GuestStore{rdb: rdb}, nil
}

// NewGuestStoreWithClient wraps an existing client. Used by tests.
func NewGuestStoreWithClient(rdb *redis.Client) *GuestStore {
	return &GuestStore{rdb: rdb}
}

func (s *GuestStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *GuestStore) SetName(ctx context.Context, playerID, name string) error {
	playerID = strings.TrimSpace(playerID)
	name = strings.TrimSpace(name)
	if playerID == "" || name == "" {
		return fmt.Errorf("invalid guest name arguments")
	}
	return s.rdb.Set(ctx, keyGuestName(playerID), name, guestNameTTL).Err()
}

func (s *GuestStore) GetName(ctx context.Context, playerID string) (string, error) {
	name, err := s.rdb.Get(ctx, keyGuestName(playerID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// refresh TTL on read so active guests keep their names
	_ = s.rdb.Expire(ctx, keyGuestName(playerID), guestNameTTL).Err()
	return name, nil
}

func keyGuestName(playerID string) string {
	return "guest:name:" + strings.TrimSpace(playerID)
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
