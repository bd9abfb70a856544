package geocode

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Newrona-pi/textgame-chatapp/internal/observability"
	"github.com/Newrona-pi/textgame-chatapp/internal/reliability"
)

// CachedResolver fronts a Lookuper with a bounded, expiring cache keyed by
// rounded coordinates. Concurrent misses for one key share a single lookup.
// Failed lookups are logged and not cached.
type CachedResolver struct {
	upstream Lookuper
	cache    *expirable.LRU[string, Address]
	group    singleflight.Group
	log      zerolog.Logger
	metrics  *observability.Metrics
}

func NewCachedResolver(upstream Lookuper, size int, ttl time.Duration, log zerolog.Logger, metrics *observability.Metrics) *CachedResolver {
	if size <= 0 {
		size = 500
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CachedResolver{
		upstream: upstream,
		cache:    expirable.NewLRU[string, Address](size, nil, ttl),
		log:      log.With().Str("component", "geocode").Logger(),
		metrics:  metrics,
	}
}

func (r *CachedResolver) Resolve(ctx context.Context, lat, lon float64) Address {
	key := CacheKey(lat, lon)
	if a, ok := r.cache.Get(key); ok {
		r.metrics.ObserveGeocode("hit")
		return a
	}

	// The lookup is shared by every waiter on key, so one caller going away
	// must not cancel it. The upstream timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		if a, ok := r.cache.Get(key); ok {
			return a, nil
		}
		a, err := r.upstream.Lookup(shared, lat, lon)
		if err != nil {
			return Address{}, err
		}
		r.cache.Add(key, a)
		return a, nil
	})
	if err != nil {
		r.metrics.ObserveGeocode("error")
		r.log.Warn().
			Err(err).
			Str("key", key).
			Str("code", reliability.Classify(err)).
			Bool("retryable", reliability.Retryable(err)).
			Msg("reverse geocode failed")
		return Address{}
	}
	r.metrics.ObserveGeocode("miss")
	return v.(Address)
}

// Len reports the number of live cache entries.
func (r *CachedResolver) Len() int {
	return r.cache.Len()
}
