package wsfront

import (
	"sync"
	"time"
)

// tokenBucket rate-limits one session's inbound messages: it accrues
// tokens at a steady rate and spends one per message, dropping messages
// once it runs dry. Disabled unless Config.InputBackoff is set.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	refill   float64 // tokens per second
	last     time.Time
	warned   bool
}

const (
	backoffCapacity   = 20.0
	backoffRefillRate = 5.0 // tokens/sec
)

func newTokenBucket() *tokenBucket {
	return &tokenBucket{
		tokens:   backoffCapacity,
		capacity: backoffCapacity,
		refill:   backoffRefillRate,
		last:     time.Now(),
	}
}

// allow spends one token, refilling for elapsed time first. Returns false
// when the session has exceeded its inbound message budget.
func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now

	b.tokens += elapsed * b.refill
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}

	if b.tokens < 1.0 {
		return false
	}
	b.tokens -= 1.0
	b.warned = false
	return true
}

// shouldWarn reports whether a CHAT_UPDATE warning is due: once per
// backoff episode, not on every dropped message.
func (b *tokenBucket) shouldWarn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.warned {
		return false
	}
	b.warned = true
	return true
}
