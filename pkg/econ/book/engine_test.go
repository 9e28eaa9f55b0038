package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minsu-cho/agorasim/params"
	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
	"github.com/minsu-cho/agorasim/pkg/econ/market"
)

const testItem = ledger.ItemID("grain")

// newTestEngine builds an engine over a fresh ledger with one catalog item.
// Tax defaults to zero so cash assertions stay simple; tests that exercise
// the consumption tax set it explicitly.
func newTestEngine(t *testing.T, tax float64) (*Engine, *ledger.Ledger) {
	t.Helper()
	cfg := params.Default()
	cfg.Market.ConsumptionTaxRate = tax

	led := ledger.New(cfg.Fiscal.IncomeTaxRate, nil)
	cat := market.NewCatalog()
	require.NoError(t, cat.Register(&market.Item{ID: testItem, Kind: market.Good, BasketWeight: 1, PriceFloor: 0.01, InitialPrice: 2.0}))
	return NewEngine(led, cat, cfg.Market, cfg.Numeric, nil), led
}

func seller(t *testing.T, led *ledger.Ledger, qty float64) *ledger.Account {
	t.Helper()
	a := led.NewAccount(ledger.Firm)
	a.Inventory[testItem] = qty
	return a
}

func buyer(t *testing.T, led *ledger.Ledger, cash float64) *ledger.Account {
	t.Helper()
	a := led.NewAccount(ledger.Household)
	require.NoError(t, led.Mint(a, cash))
	return a
}

func TestLimitSellThenMarketBuy(t *testing.T) {
	// Limit sell 10 @ 2.0, then market buy 5 with ample budget:
	// one trade at the maker's price 2.0 for qty 5, sell left resting with 5.
	e, led := newTestEngine(t, 0)
	s := seller(t, led, 10)
	b := buyer(t, led, 100)

	ask, err := e.Submit(s, testItem, Sell, Limit, 2.0, 10, 1, 0)
	require.NoError(t, err)

	bid, err := e.Submit(b, testItem, Buy, Market, 0, 5, 2, 0)
	require.NoError(t, err)

	bk := e.Book(testItem)
	trades := bk.Trades(10)
	require.Len(t, trades, 1)
	assert.Equal(t, 2.0, trades[0].Price)
	assert.Equal(t, 5.0, trades[0].Qty)
	assert.Equal(t, b.ID, trades[0].BuyerID)
	assert.Equal(t, s.ID, trades[0].SellerID)

	assert.Equal(t, Filled, bid.Status)
	assert.Equal(t, PartiallyFilled, ask.Status)
	assert.Equal(t, 5.0, ask.RemainingQty)
	assert.NotNil(t, bk.Lookup(ask.ID))

	// Settlement: buyer paid 10, got 5 grain; seller has 5 escrowed left.
	assert.InDelta(t, 90.0, b.Cash, 1e-9)
	assert.Equal(t, 5.0, b.Inventory[testItem])
	assert.InDelta(t, 10.0, s.Cash, 1e-9)
	assert.Equal(t, 5.0, s.LockedInv[testItem])
	// Market buy never leaves escrow behind.
	assert.Zero(t, b.LockedCash)
}

func TestBuyLockFailureRejectsWithoutStateChange(t *testing.T) {
	// A party with 90 cash cannot lock 100: the order must be rejected with
	// no book insertion.
	e, led := newTestEngine(t, 0)
	b := buyer(t, led, 90)

	_, err := e.Submit(b, testItem, Buy, Limit, 10.0, 10, 1, 0) // locks 100
	require.ErrorIs(t, err, ErrEscrow)

	bk := e.Book(testItem)
	assert.Empty(t, bk.BidLevels())
	assert.Zero(t, b.LockedCash)
	assert.Equal(t, 90.0, b.Cash)
}

func TestValidationRejections(t *testing.T) {
	e, led := newTestEngine(t, 0)
	b := buyer(t, led, 1000)

	tests := []struct {
		name  string
		side  Side
		kind  OrderKind
		price float64
		qty   float64
		want  error
	}{
		{"zero price limit", Buy, Limit, 0, 5, ErrInvalidPrice},
		{"negative price limit", Buy, Limit, -1, 5, ErrInvalidPrice},
		{"nan price", Buy, Limit, nan(), 5, ErrInvalidPrice},
		{"zero qty", Buy, Limit, 2, 0, ErrInvalidQty},
		{"negative qty", Sell, Limit, 2, -3, ErrInvalidQty},
		{"inf qty", Buy, Limit, 2, inf(), ErrInvalidQty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Submit(b, testItem, tt.side, tt.kind, tt.price, tt.qty, 1, 0)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := e.Submit(nil, testItem, Buy, Limit, 2, 1, 1, 0)
	assert.ErrorIs(t, err, ErrNoOwner)

	_, err = e.Submit(b, "unobtainium", Buy, Limit, 2, 1, 1, 0)
	assert.ErrorIs(t, err, ErrUnknownItem)

	// Market buy against an empty ask side has no reference price.
	_, err = e.Submit(b, testItem, Buy, Market, 0, 1, 1, 0)
	assert.ErrorIs(t, err, ErrNoReferencePrice)
}

func TestMakerPriceExecution(t *testing.T) {
	// Crossing limit buy executes at the resting ask's price, not its own.
	e, led := newTestEngine(t, 0)
	s := seller(t, led, 10)
	b := buyer(t, led, 100)

	_, err := e.Submit(s, testItem, Sell, Limit, 2.0, 10, 1, 0)
	require.NoError(t, err)
	bid, err := e.Submit(b, testItem, Buy, Limit, 3.0, 10, 2, 0)
	require.NoError(t, err)

	trades := e.Book(testItem).Trades(10)
	require.Len(t, trades, 1)
	assert.Equal(t, 2.0, trades[0].Price)
	assert.Equal(t, Filled, bid.Status)

	// Price improvement: buyer locked 30, spent 20, refund on fill.
	assert.InDelta(t, 80.0, b.Cash, 1e-9)
	assert.Zero(t, b.LockedCash)
}

func TestPriceTimePriority(t *testing.T) {
	// Asks at 2.0 (first), 2.0 (second), 3.0. A taker must fill the earliest
	// 2.0 first, then the later 2.0, then 3.0.
	e, led := newTestEngine(t, 0)
	s1 := seller(t, led, 5)
	s2 := seller(t, led, 5)
	s3 := seller(t, led, 5)
	b := buyer(t, led, 1000)

	a1, _ := e.Submit(s1, testItem, Sell, Limit, 2.0, 5, 1, 0)
	a2, _ := e.Submit(s2, testItem, Sell, Limit, 2.0, 5, 2, 0)
	a3, _ := e.Submit(s3, testItem, Sell, Limit, 3.0, 5, 3, 0)

	_, err := e.Submit(b, testItem, Buy, Limit, 3.0, 7, 4, 0)
	require.NoError(t, err)

	assert.Equal(t, Filled, a1.Status)
	assert.Equal(t, PartiallyFilled, a2.Status)
	assert.Equal(t, 3.0, a2.RemainingQty)
	assert.Equal(t, Pending, a3.Status)

	trades := e.Book(testItem).Trades(10)
	require.Len(t, trades, 2)
	assert.Equal(t, 2.0, trades[0].Price)
	assert.Equal(t, 5.0, trades[0].Qty)
	assert.Equal(t, 2.0, trades[1].Price)
	assert.Equal(t, 2.0, trades[1].Qty)
}

func TestBookStaysSortedAfterMutations(t *testing.T) {
	e, led := newTestEngine(t, 0)
	b := buyer(t, led, 10000)
	s := seller(t, led, 100)

	prices := []float64{5, 2, 9, 4, 7}
	for i, p := range prices {
		_, err := e.Submit(b, testItem, Buy, Limit, p, 1, uint64(i), 0)
		require.NoError(t, err)
	}
	for i, p := range []float64{20, 12, 15} {
		_, err := e.Submit(s, testItem, Sell, Limit, p, 1, uint64(i), 0)
		require.NoError(t, err)
	}

	bk := e.Book(testItem)
	bids := bk.BidLevels()
	for i := 1; i < len(bids); i++ {
		assert.GreaterOrEqual(t, bids[i-1].Price, bids[i].Price)
	}
	asks := bk.AskLevels()
	for i := 1; i < len(asks); i++ {
		assert.LessOrEqual(t, asks[i-1].Price, asks[i].Price)
	}
	assert.Equal(t, 9.0, bk.BestBid())
	assert.Equal(t, 12.0, bk.BestAsk())
	assert.InDelta(t, 3.0, bk.Spread(), 1e-9)
}

func TestMarketBuyBudgetCapStopsWalk(t *testing.T) {
	// Deep book at rising prices: a market buy may only consume what its
	// locked budget covers, even though more quantity rests.
	e, led := newTestEngine(t, 0)
	s := seller(t, led, 100)
	_, err := e.Submit(s, testItem, Sell, Limit, 2.0, 1, 1, 0)
	require.NoError(t, err)
	_, err = e.Submit(s, testItem, Sell, Limit, 10.0, 50, 2, 0)
	require.NoError(t, err)

	// Budget locks best-ask 2.0 × qty 4 × 1.10 = 8.8. First fill at 2.0
	// costs 2, leaving 6.8; at 10.0 that caps the second fill at 0.68.
	b := buyer(t, led, 8.8)
	bid, err := e.Submit(b, testItem, Buy, Market, 0, 4, 3, 0)
	require.NoError(t, err)

	assert.Equal(t, Cancelled, bid.Status) // remainder discarded, never rests
	assert.Zero(t, b.LockedCash)
	assert.GreaterOrEqual(t, b.AvailableCash(), 0.0)
	got := b.Inventory[testItem]
	assert.InDelta(t, 1.68, got, 1e-6)
	// Total spend never exceeds the locked budget.
	assert.LessOrEqual(t, 8.8-b.Cash, 8.8+1e-9)
}

func TestConsumptionTaxDeductedFromSeller(t *testing.T) {
	e, led := newTestEngine(t, 0.05)
	s := seller(t, led, 10)
	b := buyer(t, led, 100)

	_, err := e.Submit(s, testItem, Sell, Limit, 2.0, 10, 1, 0)
	require.NoError(t, err)
	_, err = e.Submit(b, testItem, Buy, Limit, 2.0, 10, 2, 0)
	require.NoError(t, err)

	// Gross proceeds 20, tax 1 into the treasury.
	assert.InDelta(t, 19.0, s.Cash, 1e-9)
	assert.InDelta(t, 1.0, led.Treasury().Cash, 1e-9)
	// Conservation: transfers only, base untouched.
	assert.InDelta(t, led.Base(), led.TotalCash(), 1e-9)
}

func TestCancelRefundsAndIsIdempotent(t *testing.T) {
	e, led := newTestEngine(t, 0)
	b := buyer(t, led, 100)

	bid, err := e.Submit(b, testItem, Buy, Limit, 2.0, 10, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, b.LockedCash)

	assert.True(t, e.Cancel(testItem, bid.ID))
	assert.Equal(t, Cancelled, bid.Status)
	assert.Zero(t, b.LockedCash)

	// Second cancel and unknown ids are no-ops.
	assert.False(t, e.Cancel(testItem, bid.ID))
	assert.False(t, e.Cancel(testItem, 9999))
	assert.False(t, e.Cancel("unobtainium", bid.ID))
	assert.Zero(t, b.LockedCash)
}

func TestCancelAllForOwner(t *testing.T) {
	e, led := newTestEngine(t, 0)
	b1 := buyer(t, led, 100)
	b2 := buyer(t, led, 100)

	e.Submit(b1, testItem, Buy, Limit, 2.0, 5, 1, 0)
	e.Submit(b1, testItem, Buy, Limit, 3.0, 5, 2, 0)
	e.Submit(b2, testItem, Buy, Limit, 4.0, 5, 3, 0)

	assert.Equal(t, 2, e.CancelAll(b1.ID, testItem))
	assert.Zero(t, b1.LockedCash)
	assert.Equal(t, 20.0, b2.LockedCash)
	assert.Len(t, e.Book(testItem).BidLevels(), 1)
}

func TestPruneExpiredOrders(t *testing.T) {
	e, led := newTestEngine(t, 0)
	b := buyer(t, led, 100)
	s := seller(t, led, 10)

	old, _ := e.Submit(b, testItem, Buy, Limit, 1.0, 5, 1, 0)
	fresh, _ := e.Submit(s, testItem, Sell, Limit, 9.0, 5, 50, 0)

	ttl := params.Default().Market.OrderTTLTicks // 60
	n := e.Prune(ttl + 2)
	assert.Equal(t, 1, n)
	assert.Equal(t, Cancelled, old.Status)
	assert.Equal(t, Pending, fresh.Status)
	assert.Zero(t, b.LockedCash)
	assert.Equal(t, 5.0, s.LockedInv[testItem])
}

func TestCandleAndMetrics(t *testing.T) {
	e, led := newTestEngine(t, 0)
	s := seller(t, led, 100)
	b := buyer(t, led, 1000)

	e.Submit(s, testItem, Sell, Limit, 2.0, 10, 1, 0)
	e.Submit(b, testItem, Buy, Limit, 2.0, 4, 2, 0)
	e.Submit(s, testItem, Sell, Limit, 3.0, 10, 3, 0)
	e.Submit(b, testItem, Buy, Limit, 3.0, 8, 4, 0)

	bk := e.Book(testItem)
	c := bk.CurrentCandle()
	assert.Equal(t, 2.0, c.Open)
	assert.Equal(t, 3.0, c.High)
	assert.Equal(t, 2.0, c.Low)
	assert.Equal(t, 3.0, c.Close)
	assert.InDelta(t, 12.0, c.Volume, 1e-9)
	assert.Equal(t, 3.0, bk.LastPrice())
	assert.Greater(t, bk.Volatility(), 0.0)

	// Next day's first trade closes the candle.
	e.Submit(s, testItem, Sell, Limit, 3.0, 5, 5, 1)
	e.Submit(b, testItem, Buy, Limit, 3.0, 5, 6, 1)
	hist := bk.Candles()
	require.Len(t, hist, 1)
	assert.Equal(t, uint64(0), hist[0].Day)
	assert.InDelta(t, 12.0, hist[0].Volume, 1e-9)
}

func nan() float64 { z := 0.0; return z / z }
func inf() float64 { z := 0.0; return 1 / z }
