package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type repo struct {
	rc                  *redis.Client
	maxScoreScript      string
	claimHolderScript   string
	releaseHolderScript string
	expireDuration      time.Duration
	logger              *slog.Logger
}

func NewRepo(rc *redis.Client, expireDuration time.Duration, logger *slog.Logger) *repo {
	return &repo{
		rc: rc,
		maxScoreScript: rc.ScriptLoad(context.Background(), `
			local maxScore = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
			local nextScore = 1
			if #maxScore > 0 then
				nextScore = tonumber(maxScore[2]) + 1
			end
			redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
			return nextScore
		`).Val(),
		// the hold is a compare-and-set so two instances cannot both grant it
		claimHolderScript: rc.ScriptLoad(context.Background(), `
			local cur = redis.call('HGET', KEYS[1], 'holder_id')
			if (not cur) or cur == '' or cur == ARGV[1] then
				redis.call('HSET', KEYS[1], 'holder_id', ARGV[1])
				redis.call('EXPIRE', KEYS[1], ARGV[2])
				return {1, ARGV[1]}
			end
			return {0, cur}
		`).Val(),
		releaseHolderScript: rc.ScriptLoad(context.Background(), `
			local cur = redis.call('HGET', KEYS[1], 'holder_id')
			if (not cur) or cur == '' then
				return 0
			end
			if ARGV[1] ~= '' and cur ~= ARGV[1] then
				return 0
			end
			redis.call('HSET', KEYS[1], 'holder_id', '')
			return 1
		`).Val(),
		expireDuration: expireDuration,
		logger:         logger,
	}
}

// Ping reports whether redis is reachable.
func (r repo) Ping(ctx context.Context) error {
	return r.rc.Ping(ctx).Err()
}
