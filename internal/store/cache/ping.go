package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Pinger adapts *redis.Client to the httpapi.Pinger shape (Ping(ctx) error)
// the health handler probes; redis.Client.Ping returns a *StatusCmd, not a
// bare error.
type Pinger struct {
	rdb *redis.Client
}

func NewPinger(rdb *redis.Client) Pinger {
	return Pinger{rdb: rdb}
}

func (p Pinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
