package githubclient

import (
	"context"
	"errors"

	"github.com/google/go-github/v75/github"
)

// ErrNoUsableToken is returned when every token in the pool is either
// invalid (remaining limit of exactly 60, GitHub's unauthenticated quota,
// which indicates a bad credential) or otherwise unusable.
var ErrNoUsableToken = errors.New("githubclient: no usable token in pool")

// invalidTokenRateLimit is GitHub's unauthenticated REST rate limit; a
// token reporting exactly this remaining count is treated as invalid
// credentials rather than a healthy, simply-rate-limited token (§6).
const invalidTokenRateLimit = 60

// TokenPool selects, at the start of every delivery, the configured token
// with the highest remaining rate limit, skipping any token whose limit
// reads exactly 60 (spec §6: "pick the token with highest remaining
// rate-limit at delivery start, skip tokens whose limit is 60 which
// indicates invalid credentials").
type TokenPool struct {
	tokens []string
}

func NewTokenPool(tokens []string) *TokenPool {
	return &TokenPool{tokens: tokens}
}

// Select probes every configured token's rate limit and returns a Client
// built from the best candidate.
func (p *TokenPool) Select(ctx context.Context) (*Client, string, error) {
	var (
		bestToken     string
		bestRemaining = -1
	)
	for _, tok := range p.tokens {
		c := NewTokenClient(ctx, tok)
		rl, _, err := c.REST.RateLimit.Get(ctx)
		if err != nil || rl == nil || rl.Core == nil {
			continue
		}
		remaining := rl.Core.Remaining
		if remaining == invalidTokenRateLimit {
			continue
		}
		if remaining > bestRemaining {
			bestRemaining = remaining
			bestToken = tok
		}
	}
	if bestToken == "" {
		return nil, "", ErrNoUsableToken
	}
	client := NewTokenClient(ctx, bestToken)
	client.RecordRateLimit(bestRemaining)
	return client, bestToken, nil
}

// compile-time check that go-github's rate limit response shape is what we
// expect; keeps this file honest if the vendored API changes shape.
var _ = (*github.RateLimits)(nil)
