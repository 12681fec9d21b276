// Package market provides local order book management.
//
// Book mirrors a venue order book for a single contract. It is fed by a
// stream client with one snapshot followed by offset-sequenced deltas. The
// Book validates sequencing and consistency; the stream client reacts to the
// verdict (resubscribe on a gap, resync on a crossed book).
//
// The Book is concurrency-safe: the mutex is held only across apply,
// validate, and prune, never across network calls.
package market

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhanghongchuang/perp-dex-tools/pkg/types"
)

// ApplyResult is the verdict of applying a delta to the book.
type ApplyResult int

const (
	// Applied means the delta advanced the book by exactly one offset.
	Applied ApplyResult = iota
	// Stale means the delta's offset is at or behind the book and was dropped.
	Stale
	// Gap means at least one delta was missed; the caller must resubscribe
	// and the book is reset until a fresh snapshot arrives.
	Gap
	// Crossed means the update produced best bid >= best ask; the caller
	// must resync from a fresh snapshot.
	Crossed
)

const (
	// maxLevels bounds memory per side; levels beyond the 100 best are pruned.
	maxLevels = 100
	// minNotional filters dust levels out of best-bid/ask selection. A level
	// only counts as "best" if price*size clears this quote-unit threshold.
	minNotional = 40000
)

// Book maintains a local mirror of one contract's order book keyed by
// price string, the way the venue deltas address levels.
type Book struct {
	mu      sync.RWMutex
	ready   bool
	offset  int64
	bids    map[string]types.PriceLevel
	asks    map[string]types.PriceLevel
	updated time.Time
}

// NewBook creates an empty, not-yet-ready order book.
func NewBook() *Book {
	return &Book{
		bids: make(map[string]types.PriceLevel),
		asks: make(map[string]types.PriceLevel),
	}
}

// ApplySnapshot replaces the book contents and resets sequencing to offset.
// The book becomes ready; deltas with offsets at or below this value are stale.
func (b *Book) ApplySnapshot(offset int64, bids, asks []types.PriceLevel) ApplyResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[string]types.PriceLevel, len(bids))
	b.asks = make(map[string]types.PriceLevel, len(asks))
	for _, l := range bids {
		if l.Size.IsPositive() {
			b.bids[l.Price.String()] = l
		}
	}
	for _, l := range asks {
		if l.Size.IsPositive() {
			b.asks[l.Price.String()] = l
		}
	}
	b.offset = offset
	b.ready = true
	b.updated = time.Now()
	b.pruneLocked()

	if b.crossedLocked() {
		b.resetLocked()
		return Crossed
	}
	return Applied
}

// ApplyDelta applies one incremental update. A level with size zero is
// removed. Offsets must advance by exactly one; anything ahead of that is a
// gap, anything at or behind the current offset is stale and ignored.
func (b *Book) ApplyDelta(offset int64, bids, asks []types.PriceLevel) ApplyResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return Gap
	}
	if offset <= b.offset {
		return Stale
	}
	if offset > b.offset+1 {
		b.resetLocked()
		return Gap
	}

	for _, l := range bids {
		if l.Size.IsZero() {
			delete(b.bids, l.Price.String())
		} else {
			b.bids[l.Price.String()] = l
		}
	}
	for _, l := range asks {
		if l.Size.IsZero() {
			delete(b.asks, l.Price.String())
		} else {
			b.asks[l.Price.String()] = l
		}
	}
	b.offset = offset
	b.updated = time.Now()
	b.pruneLocked()

	if b.crossedLocked() {
		b.resetLocked()
		return Crossed
	}
	return Applied
}

// Reset clears the book and marks it not ready, dropping all deltas until
// the next snapshot. Used on disconnect and resubscribe.
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Book) resetLocked() {
	b.bids = make(map[string]types.PriceLevel)
	b.asks = make(map[string]types.PriceLevel)
	b.offset = 0
	b.ready = false
}

// Ready reports whether a snapshot has been applied since the last reset.
func (b *Book) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// Offset returns the last applied sequence offset.
func (b *Book) Offset() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.offset
}

// BestBidAsk returns the best bid and ask among levels whose notional
// clears the dust threshold. ok is false until the book is ready and both
// sides have at least one qualifying level.
func (b *Book) BestBidAsk() (bid, ask decimal.Decimal, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.ready {
		return decimal.Zero, decimal.Zero, false
	}
	bid, bidOK := bestLevel(b.bids, true)
	ask, askOK := bestLevel(b.asks, false)
	if !bidOK || !askOK {
		return decimal.Zero, decimal.Zero, false
	}
	return bid, ask, true
}

// MidPrice returns (bestBid + bestAsk) / 2, false while the book is not ready.
func (b *Book) MidPrice() (decimal.Decimal, bool) {
	bid, ask, ok := b.BestBidAsk()
	if !ok {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// LastUpdated returns the timestamp of the last applied snapshot or delta.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// Depth returns the current number of bid and ask levels.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids), len(b.asks)
}

func bestLevel(levels map[string]types.PriceLevel, highest bool) (decimal.Decimal, bool) {
	threshold := decimal.NewFromInt(minNotional)
	var best decimal.Decimal
	found := false
	for _, l := range levels {
		if l.Notional().LessThan(threshold) {
			continue
		}
		if !found || (highest && l.Price.GreaterThan(best)) || (!highest && l.Price.LessThan(best)) {
			best = l.Price
			found = true
		}
	}
	return best, found
}

func (b *Book) crossedLocked() bool {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return false
	}
	var maxBid, minAsk decimal.Decimal
	first := true
	for _, l := range b.bids {
		if first || l.Price.GreaterThan(maxBid) {
			maxBid = l.Price
		}
		first = false
	}
	first = true
	for _, l := range b.asks {
		if first || l.Price.LessThan(minAsk) {
			minAsk = l.Price
		}
		first = false
	}
	return maxBid.GreaterThanOrEqual(minAsk)
}

// pruneLocked trims each side to the best maxLevels levels: highest bids,
// lowest asks.
func (b *Book) pruneLocked() {
	if len(b.bids) > maxLevels {
		b.bids = pruneSide(b.bids, true)
	}
	if len(b.asks) > maxLevels {
		b.asks = pruneSide(b.asks, false)
	}
}

func pruneSide(levels map[string]types.PriceLevel, highest bool) map[string]types.PriceLevel {
	sorted := make([]types.PriceLevel, 0, len(levels))
	for _, l := range levels {
		sorted = append(sorted, l)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if highest {
			return sorted[i].Price.GreaterThan(sorted[j].Price)
		}
		return sorted[i].Price.LessThan(sorted[j].Price)
	})
	kept := make(map[string]types.PriceLevel, maxLevels)
	for _, l := range sorted[:maxLevels] {
		kept[l.Price.String()] = l
	}
	return kept
}
