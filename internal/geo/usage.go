// README: Fire-and-forget provider call counters keyed by a per-process session.
package geo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const usageTTL = 30 * 24 * time.Hour

// Usage tracks geocode/route/matrix call volume. Counting is best-effort: a
// dead Redis must never affect a scheduling result.
type Usage struct {
	redis   *redis.Client
	session string
	log     zerolog.Logger
}

func NewUsage(r *redis.Client, log zerolog.Logger) *Usage {
	return &Usage{redis: r, session: uuid.NewString(), log: log}
}

// Session returns the identifier counters are keyed under.
func (u *Usage) Session() string { return u.session }

func (u *Usage) Count(kind string) {
	if u == nil || u.redis == nil {
		return
	}
	key := "usage:" + u.session + ":" + kind
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pipe := u.redis.Pipeline()
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, usageTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			u.log.Debug().Err(err).Str("kind", kind).Msg("usage count failed")
		}
	}()
}
