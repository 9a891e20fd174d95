package ratelimit

import "sync"

// Default RPM/TPM applied when a model's adapter does not advertise its
// own rate limits, per SPEC_FULL.md §4.4.
const (
	DefaultRPM = 10000
	DefaultTPM = 2000000

	// burstFactor scales the steady-state per-second rate into bucket
	// capacity, allowing short bursts above the sustained rate.
	burstFactor = 2.0
)

// ModelLimits carries the requests-per-minute and tokens-per-minute an
// adapter advertises for one model.
type ModelLimits struct {
	RPM int
	TPM int
}

// pair holds the two buckets BucketCollection tracks per model.
type pair struct {
	requests *Bucket
	tokens   *Bucket
}

// BucketCollection lazily creates and shares a (requests, tokens) Bucket
// pair per model, grounded in the teacher's keyed Limiter.getBucket but
// tracking two buckets per key instead of one, per SPEC_FULL.md §4.4.
type BucketCollection struct {
	mu    sync.Mutex
	pairs map[string]*pair
}

// NewBucketCollection returns an empty collection.
func NewBucketCollection() *BucketCollection {
	return &BucketCollection{pairs: make(map[string]*pair)}
}

// get returns (creating if necessary) the bucket pair for model, applying
// limits on first creation only.
func (c *BucketCollection) get(model string, limits ModelLimits) *pair {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pairs[model]; ok {
		return p
	}

	rpm := limits.RPM
	if rpm <= 0 {
		rpm = DefaultRPM
	}
	tpm := limits.TPM
	if tpm <= 0 {
		tpm = DefaultTPM
	}

	requestsRate := float64(rpm) / 60.0
	tokensRate := float64(tpm) / 60.0

	p := &pair{
		requests: NewBucket(requestsRate*burstFactor, requestsRate),
		tokens:   NewBucket(tokensRate*burstFactor, tokensRate),
	}
	c.pairs[model] = p
	return p
}

// RequestsBucket returns the requests-per-minute bucket for model,
// creating it (with limits applied) on first use.
func (c *BucketCollection) RequestsBucket(model string, limits ModelLimits) *Bucket {
	return c.get(model, limits).requests
}

// TokensBucket returns the tokens-per-minute bucket for model, creating it
// (with limits applied) on first use.
func (c *BucketCollection) TokensBucket(model string, limits ModelLimits) *Bucket {
	return c.get(model, limits).tokens
}
