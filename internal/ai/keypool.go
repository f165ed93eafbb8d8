package ai

import (
	"sync"
	"time"
)

// Key selection styles.
const (
	KeyStyleRoundRobin = "round_robin"
	KeyStyleDayPair    = "day_pair"
)

// DefaultMaxRotationCycles is how many full passes over the pool a single
// request may make before the rate-limit error is returned.
const DefaultMaxRotationCycles = 3

// KeyPool is an ordered set of API keys with a rotation cursor.
//
// With the day_pair style a request starts at the first key on odd days of
// the month and the second key on even days. Otherwise it starts at the key
// that last succeeded or was rotated to.
type KeyPool struct {
	mu     sync.Mutex
	keys   []string
	style  string
	cursor int
	now    func() time.Time
}

// NewKeyPool creates a pool. Empty keys are dropped.
func NewKeyPool(keys []string, style string) *KeyPool {
	var clean []string
	for _, k := range keys {
		if k != "" {
			clean = append(clean, k)
		}
	}
	if style != KeyStyleDayPair {
		style = KeyStyleRoundRobin
	}
	return &KeyPool{keys: clean, style: style, now: time.Now}
}

// Len returns the number of keys.
func (p *KeyPool) Len() int {
	return len(p.keys)
}

// Current returns the key a new request would start with.
func (p *KeyPool) Current() string {
	if len(p.keys) == 0 {
		return ""
	}
	return p.keys[p.startIndex()]
}

func (p *KeyPool) startIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.style == KeyStyleDayPair && len(p.keys) >= 2 {
		if p.now().Day()%2 == 1 {
			return 0
		}
		return 1
	}
	return p.cursor % len(p.keys)
}

func (p *KeyPool) setCursor(i int) {
	p.mu.Lock()
	p.cursor = i
	p.mu.Unlock()
}

// begin starts the rotation for one logical request.
func (p *KeyPool) begin(maxCycles int) *rotation {
	if maxCycles < 1 {
		maxCycles = DefaultMaxRotationCycles
	}
	return &rotation{pool: p, idx: p.startIndex(), maxCycles: maxCycles}
}

// step is the next action after a rate-limited attempt.
type step int

const (
	stepRetry    step = iota // try the next key now
	stepCooldown             // every key failed this cycle; sleep, then retry
	stepGiveUp               // cycle budget spent
)

// rotation tracks one request's walk over the pool:
// attempt -> rate limited -> next key, and after len(keys) consecutive
// rate limits -> cooldown -> next cycle, until maxCycles are spent.
type rotation struct {
	pool      *KeyPool
	idx       int
	tried     int // keys rate limited in the current cycle
	cycles    int // completed cycles
	maxCycles int
}

func (r *rotation) key() string {
	return r.pool.keys[r.idx]
}

// rateLimited records a rate-limited attempt with the current key and moves
// to the next one.
func (r *rotation) rateLimited() step {
	r.tried++
	r.idx = (r.idx + 1) % len(r.pool.keys)
	r.pool.setCursor(r.idx)
	if r.tried < len(r.pool.keys) {
		return stepRetry
	}
	r.tried = 0
	r.cycles++
	if r.cycles >= r.maxCycles {
		return stepGiveUp
	}
	return stepCooldown
}

// succeeded pins the cursor on the key that worked.
func (r *rotation) succeeded() {
	r.pool.setCursor(r.idx)
}
