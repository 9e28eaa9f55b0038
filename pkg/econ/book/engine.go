package book

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/minsu-cho/agorasim/params"
	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
	"github.com/minsu-cho/agorasim/pkg/econ/market"
)

var (
	ErrInvalidPrice     = errors.New("price must be positive and finite")
	ErrInvalidQty       = errors.New("quantity must be positive and finite")
	ErrNoOwner          = errors.New("order owner missing")
	ErrUnknownItem      = errors.New("item not in catalog")
	ErrNoReferencePrice = errors.New("market buy with empty ask side")
	ErrEscrow           = errors.New("escrow lock failed")
)

// Engine owns one book per tradable item and settles every match through the
// ledger primitives: escrow is locked before an order enters a book, fills
// move custody, and any terminal transition releases the remainder exactly
// once. The engine is single-threaded by contract; the scheduler is the only
// caller during a cycle.
type Engine struct {
	led *ledger.Ledger
	cat *market.Catalog
	cfg params.Market
	eps float64

	books map[ledger.ItemID]*Book
	order []ledger.ItemID // book creation order, for deterministic sweeps

	nextID  OrderID
	onTrade func(buyer, seller *ledger.Account, item ledger.ItemID, price, qty float64)
	log     *zap.Logger
}

func NewEngine(led *ledger.Ledger, cat *market.Catalog, cfg params.Market, num params.Numeric, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		led:    led,
		cat:    cat,
		cfg:    cfg,
		eps:    num.QtyEpsilon,
		books:  make(map[ledger.ItemID]*Book),
		nextID: 1,
		log:    log,
	}
}

// SetTradeHook registers a callback invoked after every settled fill. Used by
// the scheduler to accumulate expenditure flows without re-walking trade rings.
func (e *Engine) SetTradeHook(fn func(buyer, seller *ledger.Account, item ledger.ItemID, price, qty float64)) {
	e.onTrade = fn
}

// Book returns the item's book, creating it lazily for catalog items.
func (e *Engine) Book(item ledger.ItemID) *Book {
	if b, ok := e.books[item]; ok {
		return b
	}
	it := e.cat.Get(item)
	if it == nil {
		return nil
	}
	b := newBook(item, it.InitialPrice, e.cfg.TradeHistoryCap, e.cfg.CandleHistoryCap, e.cfg.VolatilityWindow)
	e.books[item] = b
	e.order = append(e.order, item)
	return b
}

// Books visits every book in creation order.
func (e *Engine) Books(fn func(*Book)) {
	for _, item := range e.order {
		fn(e.books[item])
	}
}

// Submit validates the order, locks escrow, and matches it against the
// opposite side. A rejected order causes no state change. The returned order
// is owned by the engine; callers keep its ID for cancellation.
func (e *Engine) Submit(owner *ledger.Account, item ledger.ItemID, side Side, kind OrderKind, price, qty float64, tick, day uint64) (*Order, error) {
	if owner == nil {
		return nil, ErrNoOwner
	}
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return nil, fmt.Errorf("qty %g: %w", qty, ErrInvalidQty)
	}
	if kind == Limit && (price <= 0 || math.IsNaN(price) || math.IsInf(price, 0)) {
		return nil, fmt.Errorf("price %g: %w", price, ErrInvalidPrice)
	}
	b := e.Book(item)
	if b == nil {
		return nil, fmt.Errorf("%s: %w", item, ErrUnknownItem)
	}

	o := &Order{
		ID:           e.nextID,
		Owner:        owner,
		OwnerKind:    owner.Kind,
		Item:         item,
		Side:         side,
		Kind:         kind,
		Price:        price,
		OriginalQty:  qty,
		RemainingQty: qty,
		Status:       Pending,
		CreatedTick:  tick,
	}

	if err := e.lock(b, o); err != nil {
		return nil, err
	}
	e.nextID++

	e.match(b, o, tick, day)

	switch {
	case o.RemainingQty <= e.eps:
		e.finish(b, o, Filled)
	case o.Kind == Market:
		// A market order never rests: refund and discard the remainder.
		e.finish(b, o, Cancelled)
	default:
		b.add(o)
	}
	return o, nil
}

// lock computes and places the escrow an order must set aside before it may
// enter a book. Limit buys lock price × qty; market buys lock best-ask × qty
// × a safety buffer since the true execution price is unknown; sells lock the
// physical quantity.
func (e *Engine) lock(b *Book, o *Order) error {
	switch o.Side {
	case Buy:
		var ref float64
		switch o.Kind {
		case Limit:
			ref = o.Price
		case Market:
			ask, ok := b.bestAsk()
			if !ok {
				return ErrNoReferencePrice
			}
			ref = ask * e.cfg.MarketBuyBuffer
		}
		value := ref * o.RemainingQty
		if err := e.led.LockCash(o.Owner, value); err != nil {
			return fmt.Errorf("%w: %v", ErrEscrow, err)
		}
		o.LockedValue = value
	case Sell:
		if err := e.led.LockQty(o.Owner, o.Item, o.RemainingQty); err != nil {
			return fmt.Errorf("%w: %v", ErrEscrow, err)
		}
	}
	return nil
}

// refund releases whatever escrow an order still holds. Idempotent: a second
// call finds nothing outstanding and does nothing.
func (e *Engine) refund(o *Order) {
	switch o.Side {
	case Buy:
		e.led.UnlockCash(o.Owner, o.LockedValue)
		o.LockedValue = 0
	case Sell:
		e.led.UnlockQty(o.Owner, o.Item, o.RemainingQty)
	}
}

// finish refunds residual escrow and marks the order terminal.
func (e *Engine) finish(b *Book, o *Order, st Status) {
	b.remove(o) // no-op if never rested
	e.refund(o)
	o.Status = st
}

// match walks the opposite side from the best price while the taker has
// remaining quantity and the prices are compatible. Every fill executes at
// the resting (maker) order's price.
func (e *Engine) match(b *Book, taker *Order, tick, day uint64) {
	for taker.RemainingQty > e.eps {
		maker := b.maker(taker.Side)
		if maker == nil {
			return
		}
		if !compatible(taker, maker.Price) {
			return
		}

		qty := math.Min(taker.RemainingQty, maker.RemainingQty)
		if taker.Side == Buy && taker.Kind == Market {
			// Cap by remaining escrow so walking a deep book can never
			// overdraw the locked budget.
			budget := taker.LockedValue / maker.Price
			if budget <= e.eps {
				return
			}
			qty = math.Min(qty, budget)
		}
		if qty <= e.eps {
			return
		}

		if err := e.settle(b, taker, maker, maker.Price, qty, tick, day); err != nil {
			// Settlement failure is a kernel defect (escrow should always
			// cover a fill); log and stop the walk rather than corrupt state.
			e.log.Error("fill settlement failed",
				zap.String("item", string(b.Item)),
				zap.Uint64("taker", uint64(taker.ID)),
				zap.Uint64("maker", uint64(maker.ID)),
				zap.Error(err))
			return
		}

		if maker.RemainingQty <= e.eps {
			e.finish(b, maker, Filled)
		} else {
			maker.Status = PartiallyFilled
		}
	}
}

func compatible(taker *Order, makerPrice float64) bool {
	if taker.Kind == Market {
		return true
	}
	switch taker.Side {
	case Buy:
		return makerPrice <= taker.Price
	case Sell:
		return makerPrice >= taker.Price
	}
	return false
}

// settle executes one fill: goods to the buyer, cash to the seller, a
// proportional consumption tax from the seller's proceeds into the treasury,
// quantity decrements on both sides, and the trade record.
func (e *Engine) settle(b *Book, taker, maker *Order, price, qty float64, tick, day uint64) error {
	amount := price * qty

	var buyOrd, sellOrd *Order
	if taker.Side == Buy {
		buyOrd, sellOrd = taker, maker
	} else {
		buyOrd, sellOrd = maker, taker
	}
	buyer, seller := buyOrd.Owner, sellOrd.Owner

	if err := e.led.SpendLocked(buyer, seller, amount); err != nil {
		return err
	}
	buyOrd.LockedValue -= amount
	if buyOrd.LockedValue < 0 {
		buyOrd.LockedValue = 0
	}

	if err := e.led.DeliverLocked(seller, buyer, b.Item, qty); err != nil {
		// Cash already moved; reverse it to keep the failure atomic.
		if rb := e.led.Transfer(ledger.At(seller), ledger.At(buyer), amount); rb == nil {
			if relock := e.led.LockCash(buyer, amount); relock == nil {
				buyOrd.LockedValue += amount
			}
		}
		return err
	}

	if tax := amount * e.cfg.ConsumptionTaxRate; tax > 0 {
		if err := e.led.Transfer(ledger.At(seller), ledger.ToTreasury(), tax); err != nil {
			e.log.Warn("consumption tax transfer failed", zap.Error(err))
		}
	}

	taker.RemainingQty -= qty
	maker.RemainingQty -= qty
	if taker.RemainingQty < 0 {
		taker.RemainingQty = 0
	}
	if maker.RemainingQty < 0 {
		maker.RemainingQty = 0
	}
	if taker.Status == Pending {
		taker.Status = PartiallyFilled
	}

	b.recordTrade(Trade{
		Item:     b.Item,
		Price:    price,
		Qty:      qty,
		Tick:     tick,
		BuyerID:  buyer.ID,
		SellerID: seller.ID,
	}, day)
	if e.onTrade != nil {
		e.onTrade(buyer, seller, b.Item, price, qty)
	}
	return nil
}

// Cancel removes a resting order and refunds its escrow. Idempotent: an
// unknown or already-terminal id is a no-op returning false.
func (e *Engine) Cancel(item ledger.ItemID, id OrderID) bool {
	b, ok := e.books[item]
	if !ok {
		return false
	}
	o := b.Lookup(id)
	if o == nil {
		return false
	}
	e.finish(b, o, Cancelled)
	return true
}

// CancelAll cancels every resting order of one owner in one book. Returns the
// number cancelled.
func (e *Engine) CancelAll(owner ledger.PartyID, item ledger.ItemID) int {
	b, ok := e.books[item]
	if !ok {
		return 0
	}
	n := 0
	for _, o := range b.Resting() {
		if o.Owner.ID == owner {
			e.finish(b, o, Cancelled)
			n++
		}
	}
	return n
}

// Prune cancels and refunds every resting order older than the configured
// TTL, keeping books bounded and escrow from abandoned agents unstuck.
func (e *Engine) Prune(tick uint64) int {
	n := 0
	for _, item := range e.order {
		b := e.books[item]
		for _, o := range b.Resting() {
			if tick > o.CreatedTick && tick-o.CreatedTick > e.cfg.OrderTTLTicks {
				e.finish(b, o, Cancelled)
				n++
			}
		}
	}
	if n > 0 {
		e.log.Debug("pruned stale orders", zap.Int("count", n), zap.Uint64("tick", tick))
	}
	return n
}
