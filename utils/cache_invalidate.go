package utils

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type CacheInvalidator struct {
	rdb    *redis.Client
	prefix string
}

// NewCacheInvalidator purges every key under prefix. A nil client makes it a
// no-op so callers need not check whether caching is enabled.
func NewCacheInvalidator(rdb *redis.Client, prefix string) *CacheInvalidator {
	return &CacheInvalidator{rdb: rdb, prefix: prefix}
}

// PurgeActivitiesList drops all cached activity listings (one key per query
// string). It returns the number of keys deleted.
func (ci *CacheInvalidator) PurgeActivitiesList(ctx context.Context) (int, error) {
	if ci == nil || ci.rdb == nil {
		return 0, nil
	}
	var n int
	iter := ci.rdb.Scan(ctx, 0, ci.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := ci.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return n, err
		}
		n++
	}
	return n, iter.Err()
}
