package book

import (
	"fmt"

	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
)

// OrderID is assigned sequentially per engine, never reused.
type OrderID uint64

type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", int8(s))
	}
}

// OrderKind distinguishes resting limit orders from immediate market orders.
// A market order never rests: any unmatched remainder is refunded.
type OrderKind int8

const (
	Limit OrderKind = iota
	Market
)

func (k OrderKind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Market:
		return "market"
	default:
		return fmt.Sprintf("order_kind(%d)", int8(k))
	}
}

// Status is the order lifecycle state.
type Status int8

const (
	Pending Status = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int8(s))
	}
}

// Order is one buy/sell intent. Quantities are float; remaining at or below
// the configured epsilon counts as filled. For buy orders LockedValue records
// the cash currently held in escrow; for sell orders the escrowed quantity is
// always the remaining quantity, so no separate field is needed.
type Order struct {
	ID        OrderID
	Owner     *ledger.Account
	OwnerKind ledger.PartyKind
	Item      ledger.ItemID
	Side      Side
	Kind      OrderKind

	Price        float64 // limit price; ignored for market orders
	OriginalQty  float64
	RemainingQty float64

	Status      Status
	CreatedTick uint64

	LockedValue float64
}

// Filled quantity so far.
func (o *Order) FilledQty() float64 { return o.OriginalQty - o.RemainingQty }

// Terminal reports whether the order has left its book for good.
func (o *Order) Terminal() bool {
	return o.Status == Filled || o.Status == Cancelled
}

// Trade is the immutable record of one match.
type Trade struct {
	Item     ledger.ItemID
	Price    float64
	Qty      float64
	Tick     uint64
	BuyerID  ledger.PartyID
	SellerID ledger.PartyID
}

// tradeRing is the bounded append-only trade history of one book.
type tradeRing struct {
	buf  []Trade
	head int
	size int
}

func newTradeRing(cap int) *tradeRing {
	if cap <= 0 {
		cap = 1
	}
	return &tradeRing{buf: make([]Trade, cap)}
}

func (r *tradeRing) push(t Trade) {
	r.buf[r.head] = t
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// recent returns up to n most recent trades, newest last.
func (r *tradeRing) recent(n int) []Trade {
	if n > r.size {
		n = r.size
	}
	out := make([]Trade, 0, n)
	for i := n; i > 0; i-- {
		idx := (r.head - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

func (r *tradeRing) len() int { return r.size }
