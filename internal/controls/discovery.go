package controls

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/viego-wallet/viego-backend/internal/clock"
)

// Availability is the set of control types a card supports. Either half may
// have failed on its own; the corresponding error is set and its list is
// empty.
type Availability struct {
	MerchantTypes    []string  `json:"merchant_types"`
	TransactionTypes []string  `json:"transaction_types"`
	FetchedAt        time.Time `json:"fetched_at"`

	MerchantErr    error `json:"-"`
	TransactionErr error `json:"-"`
}

// Complete reports whether both inquiries succeeded.
func (a Availability) Complete() bool {
	return a.MerchantErr == nil && a.TransactionErr == nil
}

// Err joins the per-half errors, or returns nil when both succeeded.
func (a Availability) Err() error {
	return errors.Join(a.MerchantErr, a.TransactionErr)
}

// Supports reports whether controlType was listed by the card. The second
// result is false when the half that would list it failed, so the answer is
// unknown.
func (a Availability) Supports(controlType string) (supported, known bool) {
	list, halfErr := a.TransactionTypes, a.TransactionErr
	if strings.HasPrefix(controlType, "MCT_") {
		list, halfErr = a.MerchantTypes, a.MerchantErr
	}
	if halfErr != nil {
		return false, false
	}
	for _, t := range list {
		if t == controlType {
			return true, true
		}
	}
	return false, true
}

// DiscoveryCache stores complete availability results per card.
type DiscoveryCache interface {
	Get(ctx context.Context, pan string) (Availability, bool)
	Set(ctx context.Context, pan string, a Availability)
	Invalidate(ctx context.Context, pan string)
}

// CacheKey is the cache key for a card. The PAN itself is never used as a
// key.
func CacheKey(pan string) string {
	sum := sha256.Sum256([]byte(pan))
	return "vctc:availability:" + hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	availability Availability
	expires      time.Time
}

// MemoryCache is a process-local DiscoveryCache.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[string]memoryEntry
}

// NewMemoryCache returns a cache whose entries expire after ttl as told by
// clk. A nil clk is the wall clock.
func NewMemoryCache(ttl time.Duration, clk clock.Clock) *MemoryCache {
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryCache{ttl: ttl, clock: clk, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, pan string) (Availability, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[CacheKey(pan)]
	if !ok || c.clock.Now().After(e.expires) {
		return Availability{}, false
	}
	return e.availability, true
}

func (c *MemoryCache) Set(_ context.Context, pan string, a Availability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[CacheKey(pan)] = memoryEntry{availability: a, expires: c.clock.Now().Add(c.ttl)}
}

func (c *MemoryCache) Invalidate(_ context.Context, pan string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, CacheKey(pan))
}

// DiscoverAvailableControls asks the vendor, concurrently, which merchant
// and transaction control types pan supports. A failure of one inquiry does
// not fail the other. Complete results are cached.
func (s *Service) DiscoverAvailableControls(ctx context.Context, pan string) Availability {
	if cached, ok := s.cache.Get(ctx, pan); ok {
		return cached
	}

	var (
		wg     sync.WaitGroup
		result Availability
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.MerchantErr = s.call(ctx, "discover merchant controls", func(ctx context.Context) error {
			types, err := s.gateway.MerchantTypes(ctx, pan)
			result.MerchantTypes = types
			return err
		})
	}()
	go func() {
		defer wg.Done()
		result.TransactionErr = s.call(ctx, "discover transaction controls", func(ctx context.Context) error {
			types, err := s.gateway.TransactionTypes(ctx, pan)
			result.TransactionTypes = types
			return err
		})
	}()
	wg.Wait()

	if result.MerchantErr != nil {
		result.MerchantTypes = nil
	}
	if result.TransactionErr != nil {
		result.TransactionTypes = nil
	}
	result.FetchedAt = s.clock.Now()

	if result.Complete() {
		s.cache.Set(ctx, pan, result)
	} else {
		s.logger.Warn("partial control discovery",
			"merchant_error", result.MerchantErr,
			"transaction_error", result.TransactionErr,
		)
	}
	return result
}
