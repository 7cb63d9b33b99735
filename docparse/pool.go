// ABOUTME: Bounded parser pool with cache-first reads and backoff retries on rate limits.
// ABOUTME: A semaphore caps in-flight parses so upstream services are never hammered by fan-out.
package docparse

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// DefaultWorkers is the parse concurrency ceiling.
const DefaultWorkers = 4

// RetryPolicy configures backoff for transient parse failures.
type RetryPolicy struct {
	// MaxRetries is the retry budget, not counting the initial attempt.
	MaxRetries int
	// BaseDelay is the initial delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration
	// BackoffMultiplier controls exponential growth of the delay.
	BackoffMultiplier float64
	// Jitter randomizes delays to avoid thundering herds.
	Jitter bool
}

// DefaultRetryPolicy returns the pool's standard policy:
// 2 retries, 500ms base delay, 30s max delay, 2x backoff, jitter enabled.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// CalculateDelay computes the backoff delay for a given retry attempt.
func (p RetryPolicy) CalculateDelay(attempt int) time.Duration {
	delayFloat := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if delayFloat > float64(p.MaxDelay) {
		delayFloat = float64(p.MaxDelay)
	}
	delay := time.Duration(delayFloat)
	if p.Jitter && delay > 0 {
		delay = time.Duration(rand.Int63n(int64(delay) + 1))
	}
	return delay
}

// shouldRetry reports whether err is transient and budget remains.
func (p RetryPolicy) shouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxRetries {
		return false
	}
	type retryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}
	return false
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Parser Parser
	// Cache is optional; without one every call parses.
	Cache Cache
	// Workers bounds concurrent parses. Default 4.
	Workers int
	// TTL is the cache entry lifetime, checked lazily on read. Default 30 days.
	TTL time.Duration
	// Retry is the backoff policy for rate-limit failures.
	Retry RetryPolicy
	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// Pool parses documents through a bounded worker budget with a
// content-addressed cache in front.
type Pool struct {
	parser Parser
	cache  Cache
	sem    chan struct{}
	ttl    time.Duration
	retry  RetryPolicy
	now    func() time.Time
}

// NewPool validates the configuration and builds a Pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Parser == nil {
		return nil, fmt.Errorf("docparse: pool requires a parser")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{
		parser: cfg.Parser,
		cache:  cfg.Cache,
		sem:    make(chan struct{}, cfg.Workers),
		ttl:    cfg.TTL,
		retry:  cfg.Retry,
		now:    cfg.Now,
	}, nil
}

// GetOrParse returns the parsed document for data, serving from cache when a
// fresh entry exists. Expired entries are deleted and re-parsed. The parse
// itself runs inside the worker budget with retries on rate limits.
func (p *Pool) GetOrParse(ctx context.Context, data []byte) (*Document, error) {
	hash := Hash(data)

	if p.cache != nil {
		entry, ok, err := p.cache.Get(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("cache read: %w", err)
		}
		if ok {
			if p.now().Sub(entry.CachedAt) < p.ttl {
				return entry.Doc, nil
			}
			// Stale entry: drop it and fall through to a fresh parse.
			if err := p.cache.Delete(ctx, hash); err != nil {
				return nil, fmt.Errorf("cache evict: %w", err)
			}
		}
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	doc, err := p.parseWithRetry(ctx, data)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		entry := &Entry{Hash: hash, Doc: doc, CachedAt: p.now()}
		if err := p.cache.Put(ctx, entry); err != nil {
			return nil, fmt.Errorf("cache write: %w", err)
		}
	}
	return doc, nil
}

// parseWithRetry runs the parser, backing off on retryable errors.
func (p *Pool) parseWithRetry(ctx context.Context, data []byte) (*Document, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		doc, err := p.parser.Parse(ctx, data)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !p.retry.shouldRetry(err, attempt) {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(p.retry.CalculateDelay(attempt)):
		}
	}
}

// Result is the outcome of one document in a batch parse.
type Result struct {
	Index int
	Doc   *Document
	Err   error
}

// ParseAll parses every document concurrently within the worker budget.
// Results are index-aligned with the input; one document failing never
// affects its siblings.
func (p *Pool) ParseAll(ctx context.Context, docs [][]byte) []Result {
	results := make([]Result, len(docs))
	var wg sync.WaitGroup
	for i, data := range docs {
		wg.Add(1)
		go func(i int, data []byte) {
			defer wg.Done()
			doc, err := p.GetOrParse(ctx, data)
			results[i] = Result{Index: i, Doc: doc, Err: err}
		}(i, data)
	}
	wg.Wait()
	return results
}
