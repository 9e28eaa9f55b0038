package book

import (
	"container/heap"
	"math"
	"sort"

	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
)

// Level aggregates resting quantity at one price.
type Level struct {
	Price  float64
	Qty    float64
	Orders int
}

// Book holds the resting orders for one item: a max-heap of bid prices and a
// min-heap of ask prices for O(1) best-price access, with a FIFO queue per
// price level so ties execute earliest-first. Price-time priority therefore
// holds structurally, not by re-sorting.
type Book struct {
	Item ledger.ItemID

	bidHeap maxPriceHeap
	askHeap minPriceHeap

	bids map[float64][]*Order
	asks map[float64][]*Order

	// resting order index for O(1) cancellation
	orders map[OrderID]*Order

	lastPrice  float64
	trades     *tradeRing
	candles    *candleHistory
	spread     float64
	volatility float64
	volWindow  int
}

func newBook(item ledger.ItemID, initialPrice float64, tradeCap, candleCap, volWindow int) *Book {
	b := &Book{
		Item:      item,
		bids:      make(map[float64][]*Order),
		asks:      make(map[float64][]*Order),
		orders:    make(map[OrderID]*Order),
		lastPrice: initialPrice,
		trades:    newTradeRing(tradeCap),
		candles:   newCandleHistory(candleCap),
		volWindow: volWindow,
	}
	heap.Init(&b.bidHeap)
	heap.Init(&b.askHeap)
	return b
}

func (b *Book) bestBid() (float64, bool) {
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.Peek(), true
}

func (b *Book) bestAsk() (float64, bool) {
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.Peek(), true
}

// add rests an order at its price level. Caller has already locked escrow.
func (b *Book) add(o *Order) {
	switch o.Side {
	case Buy:
		if len(b.bids[o.Price]) == 0 {
			heap.Push(&b.bidHeap, o.Price)
		}
		b.bids[o.Price] = append(b.bids[o.Price], o)
	case Sell:
		if len(b.asks[o.Price]) == 0 {
			heap.Push(&b.askHeap, o.Price)
		}
		b.asks[o.Price] = append(b.asks[o.Price], o)
	}
	b.orders[o.ID] = o
	b.refreshMetrics()
}

// remove takes a resting order out of its level. Returns false if the order
// is not resting (already removed), making removal idempotent.
func (b *Book) remove(o *Order) bool {
	if _, ok := b.orders[o.ID]; !ok {
		return false
	}
	delete(b.orders, o.ID)

	switch o.Side {
	case Buy:
		arr := b.bids[o.Price]
		for i, cur := range arr {
			if cur.ID == o.ID {
				b.bids[o.Price] = append(arr[:i], arr[i+1:]...)
				break
			}
		}
		if len(b.bids[o.Price]) == 0 {
			delete(b.bids, o.Price)
			b.dropBidLevel(o.Price)
		}
	case Sell:
		arr := b.asks[o.Price]
		for i, cur := range arr {
			if cur.ID == o.ID {
				b.asks[o.Price] = append(arr[:i], arr[i+1:]...)
				break
			}
		}
		if len(b.asks[o.Price]) == 0 {
			delete(b.asks, o.Price)
			b.dropAskLevel(o.Price)
		}
	}
	b.refreshMetrics()
	return true
}

// dropBidLevel removes a price from the bid heap (O(N) worst case, but rare).
func (b *Book) dropBidLevel(price float64) {
	for i := 0; i < b.bidHeap.Len(); i++ {
		if b.bidHeap[i] == price {
			heap.Remove(&b.bidHeap, i)
			return
		}
	}
}

func (b *Book) dropAskLevel(price float64) {
	for i := 0; i < b.askHeap.Len(); i++ {
		if b.askHeap[i] == price {
			heap.Remove(&b.askHeap, i)
			return
		}
	}
}

// maker returns the first resting order at the best opposite price for a
// taker on side, or nil if that side is empty.
func (b *Book) maker(takerSide Side) *Order {
	switch takerSide {
	case Buy:
		p, ok := b.bestAsk()
		if !ok {
			return nil
		}
		level := b.asks[p]
		if len(level) == 0 {
			return nil
		}
		return level[0]
	case Sell:
		p, ok := b.bestBid()
		if !ok {
			return nil
		}
		level := b.bids[p]
		if len(level) == 0 {
			return nil
		}
		return level[0]
	}
	return nil
}

func (b *Book) recordTrade(t Trade, day uint64) {
	b.lastPrice = t.Price
	b.trades.push(t)
	b.candles.record(day, t.Price, t.Qty)
	b.refreshMetrics()
}

// refreshMetrics recomputes spread and rolling volatility. Called after every
// structural change; cheap because the window is bounded.
func (b *Book) refreshMetrics() {
	bid, hasBid := b.bestBid()
	ask, hasAsk := b.bestAsk()
	if hasBid && hasAsk {
		b.spread = ask - bid
	} else {
		b.spread = 0
	}

	recent := b.trades.recent(b.volWindow)
	if len(recent) < 2 {
		b.volatility = 0
		return
	}
	mean := 0.0
	for _, tr := range recent {
		mean += tr.Price
	}
	mean /= float64(len(recent))
	if mean == 0 {
		b.volatility = 0
		return
	}
	variance := 0.0
	for _, tr := range recent {
		d := tr.Price - mean
		variance += d * d
	}
	variance /= float64(len(recent))
	b.volatility = math.Sqrt(variance) / mean
}

// BidLevels returns bid levels, best (highest) first.
func (b *Book) BidLevels() []Level {
	levels := make([]Level, 0, len(b.bids))
	for price, orders := range b.bids {
		if len(orders) == 0 {
			continue
		}
		qty := 0.0
		for _, o := range orders {
			qty += o.RemainingQty
		}
		levels = append(levels, Level{Price: price, Qty: qty, Orders: len(orders)})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	return levels
}

// AskLevels returns ask levels, best (lowest) first.
func (b *Book) AskLevels() []Level {
	levels := make([]Level, 0, len(b.asks))
	for price, orders := range b.asks {
		if len(orders) == 0 {
			continue
		}
		qty := 0.0
		for _, o := range orders {
			qty += o.RemainingQty
		}
		levels = append(levels, Level{Price: price, Qty: qty, Orders: len(orders)})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	return levels
}

// Resting returns all resting orders in price-time priority, bids first.
func (b *Book) Resting() []*Order {
	out := make([]*Order, 0, len(b.orders))
	for _, lv := range b.BidLevels() {
		out = append(out, b.bids[lv.Price]...)
	}
	for _, lv := range b.AskLevels() {
		out = append(out, b.asks[lv.Price]...)
	}
	return out
}

// Lookup returns a resting order by id, nil if not resting.
func (b *Book) Lookup(id OrderID) *Order { return b.orders[id] }

// LastPrice is the most recent trade price, or the item's reference price
// before any trade.
func (b *Book) LastPrice() float64 { return b.lastPrice }

// SetLastPrice overwrites the reference price. Only valuation repricing and
// the auditor's corruption clamp use this.
func (b *Book) SetLastPrice(p float64) { b.lastPrice = p }

func (b *Book) Spread() float64     { return b.spread }
func (b *Book) Volatility() float64 { return b.volatility }

// BestBid returns 0 when the side is empty.
func (b *Book) BestBid() float64 {
	p, _ := b.bestBid()
	return p
}

func (b *Book) BestAsk() float64 {
	p, _ := b.bestAsk()
	return p
}

// Demand and Supply return total resting quantity per side.
func (b *Book) Demand() float64 {
	total := 0.0
	for _, lv := range b.BidLevels() {
		total += lv.Qty
	}
	return total
}

func (b *Book) Supply() float64 {
	total := 0.0
	for _, lv := range b.AskLevels() {
		total += lv.Qty
	}
	return total
}

// Trades returns up to n recent trades, newest last.
func (b *Book) Trades(n int) []Trade { return b.trades.recent(n) }

// TradeCount is the number of trades currently in the ring.
func (b *Book) TradeCount() int { return b.trades.len() }

// Candles returns closed daily candles, oldest first.
func (b *Book) Candles() []Candle { return b.candles.History() }

// CurrentCandle returns the open daily candle.
func (b *Book) CurrentCandle() Candle { return b.candles.Current() }
