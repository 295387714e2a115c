// README: Two-tier (Redis + in-process) distance/geocode cache with retry, rate gate, and coalescing.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"voltmate/internal/types"
)

const (
	geocodeKeyPrefix = "geo:pc:"
	legKeyPrefix     = "geo:leg:"

	// maxRetries bounds retry-on-429; other provider errors are not retried.
	maxRetries = 3
)

// GeocodeError marks a location that could not be resolved after retries.
// Travel-time callers degrade to a fixed estimate instead; geocoding callers
// have no reasonable default and see this error.
type GeocodeError struct {
	Location string
	Err      error
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("geocoding %q failed: %v", e.Location, e.Err)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

type geocodeEntry struct {
	Point    types.Point
	StoredAt time.Time
}

type legEntry struct {
	Leg      Leg
	StoredAt time.Time
}

// Service resolves postcodes to coordinates and travel legs, reading through a
// Redis persistent tier and an in-process tier before touching the provider.
// Entries expire purely by age; there is no eviction beyond TTL and Clear.
type Service struct {
	provider Provider
	redis    *redis.Client // nil disables the persistent tier
	clock    types.Clock
	limiter  *rate.Limiter
	usage    *Usage
	log      zerolog.Logger

	geocodeTTL time.Duration
	legTTL     time.Duration
	retryBase  time.Duration

	sf       singleflight.Group
	mu       sync.RWMutex
	geocodes map[string]geocodeEntry
	legs     map[string]legEntry
}

type ServiceOpts struct {
	Redis         *redis.Client
	Clock         types.Clock
	Usage         *Usage
	Log           zerolog.Logger
	RatePerMinute int
	GeocodeTTL    time.Duration
	LegTTL        time.Duration
	RetryBase     time.Duration
}

func NewService(provider Provider, opts ServiceOpts) *Service {
	if opts.Clock == nil {
		opts.Clock = types.RealClock{}
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 100
	}
	if opts.GeocodeTTL <= 0 {
		opts.GeocodeTTL = 24 * time.Hour
	}
	if opts.LegTTL <= 0 {
		opts.LegTTL = time.Hour
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	return &Service{
		provider:   provider,
		redis:      opts.Redis,
		clock:      opts.Clock,
		limiter:    rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60.0), opts.RatePerMinute),
		usage:      opts.Usage,
		log:        opts.Log,
		geocodeTTL: opts.GeocodeTTL,
		legTTL:     opts.LegTTL,
		retryBase:  opts.RetryBase,
		geocodes:   make(map[string]geocodeEntry),
		legs:       make(map[string]legEntry),
	}
}

// NormalizeLocation uppercases and collapses runs of whitespace so "da5  1bj"
// and "DA5 1BJ" share one cache key.
func NormalizeLocation(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// ResolveCoordinates resolves a postcode to coordinates through both cache
// tiers. Provider failures after retries surface as *GeocodeError.
func (s *Service) ResolveCoordinates(ctx context.Context, location string) (types.Point, error) {
	key := NormalizeLocation(location)
	if key == "" {
		return types.Point{}, &GeocodeError{Location: location, Err: fmt.Errorf("empty location")}
	}

	if pt, ok := s.redisGeocode(ctx, key); ok {
		s.storeGeocode(key, pt)
		return pt, nil
	}
	if pt, ok := s.memGeocode(key); ok {
		return pt, nil
	}

	v, err, _ := s.sf.Do(geocodeKeyPrefix+key, func() (any, error) {
		var pt types.Point
		err := s.withRetry(ctx, func() error {
			var err error
			pt, err = s.provider.Geocode(ctx, key)
			return err
		})
		if err != nil {
			return types.Point{}, err
		}
		s.count("geocode")
		s.storeGeocode(key, pt)
		s.redisWrite(geocodeKeyPrefix+key, pt, s.geocodeTTL)
		return pt, nil
	})
	if err != nil {
		return types.Point{}, &GeocodeError{Location: key, Err: err}
	}
	return v.(types.Point), nil
}

// TravelTime returns the travel leg from one location to another. Direction
// matters: the pair key is ordered and A→B is cached independently of B→A.
// Errors propagate; scheduling callers substitute a fixed estimate.
func (s *Service) TravelTime(ctx context.Context, from, to string) (Leg, error) {
	fromKey := NormalizeLocation(from)
	toKey := NormalizeLocation(to)
	if fromKey == toKey {
		return Leg{}, nil
	}
	key := fromKey + "|" + toKey

	if leg, ok := s.redisLeg(ctx, key); ok {
		s.storeLeg(key, leg)
		return leg, nil
	}
	if leg, ok := s.memLeg(key); ok {
		return leg, nil
	}

	v, err, _ := s.sf.Do(legKeyPrefix+key, func() (any, error) {
		fromPt, err := s.ResolveCoordinates(ctx, fromKey)
		if err != nil {
			return Leg{}, err
		}
		toPt, err := s.ResolveCoordinates(ctx, toKey)
		if err != nil {
			return Leg{}, err
		}
		var leg Leg
		err = s.withRetry(ctx, func() error {
			var err error
			leg, err = s.provider.Route(ctx, fromPt, toPt)
			return err
		})
		if err != nil {
			return Leg{}, err
		}
		s.count("route")
		s.storeLeg(key, leg)
		s.redisWrite(legKeyPrefix+key, leg, s.legTTL)
		return leg, nil
	})
	if err != nil {
		return Leg{}, err
	}
	return v.(Leg), nil
}

// Matrix is an N×N travel-time lookup over a deduplicated location set.
type Matrix struct {
	keys  []string
	index map[string]int
	legs  [][]Leg
}

// NewMatrix builds a Matrix from normalized location keys and a square legs
// grid in key order. Mainly useful for fakes and precomputed lookups.
func NewMatrix(keys []string, legs [][]Leg) *Matrix {
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[NormalizeLocation(k)] = i
	}
	return &Matrix{keys: keys, index: index, legs: legs}
}

// Locations returns the deduplicated, normalized location keys in matrix order.
func (m *Matrix) Locations() []string { return m.keys }

// Leg returns the from→to leg. Unknown locations report ok=false.
func (m *Matrix) Leg(from, to string) (Leg, bool) {
	i, ok := m.index[NormalizeLocation(from)]
	if !ok {
		return Leg{}, false
	}
	j, ok := m.index[NormalizeLocation(to)]
	if !ok {
		return Leg{}, false
	}
	return m.legs[i][j], true
}

// TravelMatrix resolves every distinct location once and issues a single
// batched provider request instead of O(N²) pairwise route calls.
func (s *Service) TravelMatrix(ctx context.Context, locations []string) (*Matrix, error) {
	index := make(map[string]int)
	var keys []string
	for _, loc := range locations {
		key := NormalizeLocation(loc)
		if key == "" {
			continue
		}
		if _, seen := index[key]; seen {
			continue
		}
		index[key] = len(keys)
		keys = append(keys, key)
	}

	m := &Matrix{keys: keys, index: index}
	if len(keys) < 2 {
		m.legs = make([][]Leg, len(keys))
		for i := range m.legs {
			m.legs[i] = make([]Leg, len(keys))
		}
		return m, nil
	}

	points := make([]types.Point, len(keys))
	for i, key := range keys {
		pt, err := s.ResolveCoordinates(ctx, key)
		if err != nil {
			return nil, err
		}
		points[i] = pt
	}

	err := s.withRetry(ctx, func() error {
		var err error
		m.legs, err = s.provider.Matrix(ctx, points)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.count("matrix")
	return m, nil
}

// Clear drops the in-process tier. Redis entries are left to their TTLs.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geocodes = make(map[string]geocodeEntry)
	s.legs = make(map[string]legEntry)
}

// withRetry gates provider calls on the shared rate limiter and retries
// rate-limited responses with exponential backoff plus jitter.
func (s *Service) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryBase
	return backoff.Retry(func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err == nil {
			return nil
		}
		if isRateLimited(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}

func (s *Service) memGeocode(key string) (types.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.geocodes[key]
	if !ok || s.clock.Now().Sub(e.StoredAt) >= s.geocodeTTL {
		return types.Point{}, false
	}
	return e.Point, true
}

func (s *Service) memLeg(key string) (Leg, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.legs[key]
	if !ok || s.clock.Now().Sub(e.StoredAt) >= s.legTTL {
		return Leg{}, false
	}
	return e.Leg, true
}

func (s *Service) storeGeocode(key string, pt types.Point) {
	s.mu.Lock()
	s.geocodes[key] = geocodeEntry{Point: pt, StoredAt: s.clock.Now()}
	s.mu.Unlock()
}

func (s *Service) storeLeg(key string, leg Leg) {
	s.mu.Lock()
	s.legs[key] = legEntry{Leg: leg, StoredAt: s.clock.Now()}
	s.mu.Unlock()
}

func (s *Service) redisGeocode(ctx context.Context, key string) (types.Point, bool) {
	if s.redis == nil {
		return types.Point{}, false
	}
	raw, err := s.redis.Get(ctx, geocodeKeyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn().Err(err).Str("key", key).Msg("geo cache read failed")
		}
		return types.Point{}, false
	}
	var pt types.Point
	if err := json.Unmarshal([]byte(raw), &pt); err != nil {
		return types.Point{}, false
	}
	return pt, true
}

func (s *Service) redisLeg(ctx context.Context, key string) (Leg, bool) {
	if s.redis == nil {
		return Leg{}, false
	}
	raw, err := s.redis.Get(ctx, legKeyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn().Err(err).Str("key", key).Msg("geo cache read failed")
		}
		return Leg{}, false
	}
	var leg Leg
	if err := json.Unmarshal([]byte(raw), &leg); err != nil {
		return Leg{}, false
	}
	return leg, true
}

// redisWrite is best-effort: the resolved value is already in hand, so cache
// persistence must never block or fail the caller.
func (s *Service) redisWrite(key string, v any, ttl time.Duration) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.redis.Set(ctx, key, raw, ttl).Err(); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("geo cache write failed")
		}
	}()
}

func (s *Service) count(kind string) {
	if s.usage != nil {
		s.usage.Count(kind)
	}
}
