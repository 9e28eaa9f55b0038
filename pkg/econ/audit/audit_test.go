package audit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minsu-cho/agorasim/params"
	"github.com/minsu-cho/agorasim/pkg/econ/book"
	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
	"github.com/minsu-cho/agorasim/pkg/econ/market"
)

type fixedDeposits float64

func (f fixedDeposits) TotalDeposits() float64 { return float64(f) }

func newTestAuditor(t *testing.T, mutate func(*params.Config)) (*Auditor, *ledger.Ledger, *book.Engine, *market.Catalog) {
	t.Helper()
	cfg := params.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	led := ledger.New(cfg.Fiscal.IncomeTaxRate, nil)
	cat := market.NewCatalog()
	for _, it := range market.DefaultGoods() {
		require.NoError(t, cat.Register(it))
	}
	eng := book.NewEngine(led, cat, cfg.Market, cfg.Numeric, nil)
	a := New(cfg.Audit, cfg.Numeric, led, eng, cat, fixedDeposits(0), nil)
	return a, led, eng, cat
}

func TestCleanRunHasNoFindings(t *testing.T) {
	a, led, _, _ := newTestAuditor(t, nil)
	h := led.NewAccount(ledger.Household)
	require.NoError(t, led.Mint(h, 500))

	rep := a.Run(20, Flows{Consumption: 100, Investment: 40, Government: 10}, 9, 10)
	assert.Zero(t, rep.Findings)
	assert.Equal(t, 150.0, rep.GDP)
	assert.InDelta(t, 0.1, rep.Unemployment, 1e-9)
	assert.Equal(t, 500.0, rep.MoneyBase)
	assert.Zero(t, rep.Drift)
}

func TestConservationBreachSelfHeals(t *testing.T) {
	a, led, _, _ := newTestAuditor(t, nil)
	h := led.NewAccount(ledger.Household)
	require.NoError(t, led.Mint(h, 500))

	// Corrupt the ledger behind the mint path's back.
	h.Cash += 50

	rep := a.Run(20, Flows{}, 0, 0)
	assert.Equal(t, 50.0, rep.Drift)
	require.Len(t, a.Findings(), 1)
	assert.Equal(t, CodeMoneyLeak, a.Findings()[0].Code)
	assert.Equal(t, Critical, a.Findings()[0].Severity)

	// Base was re-synced: the next audit is clean again.
	rep = a.Run(40, Flows{}, 0, 0)
	assert.Zero(t, rep.Findings)
	assert.Zero(t, rep.Drift)
	assert.Equal(t, 550.0, led.Base())
}

func TestDriftWithinToleranceIgnored(t *testing.T) {
	a, led, _, _ := newTestAuditor(t, nil)
	h := led.NewAccount(ledger.Household)
	require.NoError(t, led.Mint(h, 500))
	h.Cash += 0.5 // under the 1.0 tolerance

	rep := a.Run(20, Flows{}, 0, 0)
	assert.Zero(t, rep.Findings)
	assert.InDelta(t, 0.5, rep.Drift, 1e-9)
}

func TestCorruptedPricesClampedWithOneFindingEach(t *testing.T) {
	a, _, eng, cat := newTestAuditor(t, nil)
	eng.Book("grain").SetLastPrice(math.NaN())
	eng.Book("goods").SetLastPrice(-3.0)
	eng.Book("services").SetLastPrice(4.5) // healthy

	rep := a.Run(20, Flows{}, 0, 0)
	assert.Equal(t, 2, rep.Findings)
	for _, f := range a.Findings() {
		assert.Equal(t, CodeBadPrice, f.Code)
	}
	assert.Equal(t, cat.Get("grain").PriceFloor, eng.Book("grain").LastPrice())
	assert.Equal(t, cat.Get("goods").PriceFloor, eng.Book("goods").LastPrice())
	assert.Equal(t, 4.5, eng.Book("services").LastPrice())

	// Clamped prices are sane: the follow-up audit raises nothing.
	rep = a.Run(40, Flows{}, 0, 0)
	assert.Zero(t, rep.Findings)
}

func TestUntradedPriceIsNotACorruption(t *testing.T) {
	a, _, _, _ := newTestAuditor(t, nil)
	rep := a.Run(20, Flows{}, 0, 0)
	assert.Zero(t, rep.Findings)
	// CPI falls back to initial prices for untraded items.
	assert.InDelta(t, 0.5*2.0+0.3*5.0+0.2*3.0, rep.CPI, 1e-9)
}

func TestBalanceSanitization(t *testing.T) {
	a, led, _, _ := newTestAuditor(t, nil)
	h := led.NewAccount(ledger.Household)
	require.NoError(t, led.Mint(h, 100))
	h.Cash = math.NaN()
	h.LockedCash = -5
	h.Inventory["grain"] = math.Inf(1)

	a.Run(20, Flows{}, 0, 0)

	assert.Equal(t, 0.0, h.Cash)
	assert.Equal(t, 0.0, h.LockedCash)
	assert.Equal(t, 0.0, h.Inventory["grain"])
	// Zeroing NaN cash shifted the base; conservation healed it in the same run.
	assert.Equal(t, led.Base(), led.TotalCash())

	codes := map[string]int{}
	for _, f := range a.Findings() {
		codes[f.Code]++
	}
	assert.Equal(t, 2, codes[CodeBadBalance])
	assert.Equal(t, 1, codes[CodeBadQty])
	assert.Equal(t, 1, codes[CodeMoneyLeak])
}

func TestNegativeCashClampedAndHealed(t *testing.T) {
	a, led, _, _ := newTestAuditor(t, nil)
	h := led.NewAccount(ledger.Household)
	require.NoError(t, led.Mint(h, 100))
	h.Cash = -100

	a.Run(20, Flows{}, 0, 0)

	assert.Equal(t, 0.0, h.Cash, "negative cash must not survive the audit")
	assert.Equal(t, led.Base(), led.TotalCash())

	codes := map[string]int{}
	for _, f := range a.Findings() {
		codes[f.Code]++
	}
	assert.Equal(t, 1, codes[CodeBadBalance])
	assert.Equal(t, 1, codes[CodeMoneyLeak], "the clamp delta is healed by the re-sync")

	// Follow-up run is clean.
	rep := a.Run(40, Flows{}, 0, 0)
	assert.Zero(t, rep.Findings)
}

func TestEscrowExceedingCashClamped(t *testing.T) {
	a, led, _, _ := newTestAuditor(t, nil)
	h := led.NewAccount(ledger.Household)
	require.NoError(t, led.Mint(h, 100))
	h.LockedCash = 150

	a.Run(20, Flows{}, 0, 0)
	assert.Equal(t, 100.0, h.LockedCash)
}

func TestInflationTracksCPI(t *testing.T) {
	a, _, eng, _ := newTestAuditor(t, nil)

	first := a.Run(20, Flows{}, 0, 0)
	assert.Zero(t, first.Inflation)

	// 10% across the whole basket.
	eng.Book("grain").SetLastPrice(2.2)
	eng.Book("goods").SetLastPrice(5.5)
	eng.Book("services").SetLastPrice(3.3)

	second := a.Run(40, Flows{}, 0, 0)
	assert.InDelta(t, 0.10, second.Inflation, 1e-9)

	// Unchanged prices: inflation back to zero.
	third := a.Run(60, Flows{}, 0, 0)
	assert.InDelta(t, 0.0, third.Inflation, 1e-9)
}

func TestStagnationDetection(t *testing.T) {
	a, _, _, _ := newTestAuditor(t, func(c *params.Config) {
		c.Audit.StagnationWindow = 3
	})

	a.Run(20, Flows{Consumption: 100}, 0, 0)
	a.Run(40, Flows{Consumption: 100}, 0, 0)
	assert.Zero(t, a.TotalFindings(), "window not yet full")

	rep := a.Run(60, Flows{Consumption: 100}, 0, 0)
	require.Equal(t, 1, rep.Findings)
	assert.Equal(t, CodeStagnation, a.Findings()[0].Code)

	// Growth clears the signal.
	rep = a.Run(80, Flows{Consumption: 120}, 0, 0)
	assert.Zero(t, rep.Findings)
}

func TestFindingsRingBounded(t *testing.T) {
	a, led, _, _ := newTestAuditor(t, func(c *params.Config) {
		c.Audit.FindingsCap = 4
	})
	h := led.NewAccount(ledger.Household)
	require.NoError(t, led.Mint(h, 100))

	for i := 0; i < 10; i++ {
		h.Cash += 10 // fresh leak every cycle
		a.Run(uint64(20*(i+1)), Flows{}, 0, 0)
	}
	assert.Len(t, a.Findings(), 4)
	assert.Equal(t, 10, a.TotalFindings())
}
