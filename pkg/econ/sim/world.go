package sim

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/minsu-cho/agorasim/params"
	"github.com/minsu-cho/agorasim/pkg/econ/audit"
	"github.com/minsu-cho/agorasim/pkg/econ/bank"
	"github.com/minsu-cho/agorasim/pkg/econ/book"
	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
	"github.com/minsu-cho/agorasim/pkg/econ/market"
	"github.com/minsu-cho/agorasim/pkg/util"
)

// Household is one labor-supplying, consuming agent. Employer is zero while
// unemployed. Farmers additionally receive the farmer-pool redistribution and
// produce the staple directly.
type Household struct {
	Acct     *ledger.Account
	Employer ledger.PartyID
	Skill    float64 // productivity multiplier around 1
	IsFarmer bool
}

// Employed reports whether the household currently draws a wage. Farmers are
// self-employed.
func (h *Household) Employed() bool { return h.Employer != 0 || h.IsFarmer }

// Firm is one producing agent: it hires, pays wages, produces one good, sells
// it on the book, and lists equity.
type Firm struct {
	Acct     *ledger.Account
	Produces ledger.ItemID
	Share    ledger.ItemID

	Employees []ledger.PartyID
	Wage      float64

	Profitability float64 // recent margin signal in [-1, 1]
	Bankrupt      bool

	lastCash float64
}

// Phase is the current business-cycle position, advanced at the macro rate
// from realized GDP growth.
type Phase int8

const (
	Expansion Phase = iota
	PhasePeak
	Contraction
	Trough
)

func (p Phase) String() string {
	switch p {
	case Expansion:
		return "expansion"
	case PhasePeak:
		return "peak"
	case Contraction:
		return "contraction"
	case Trough:
		return "trough"
	default:
		return fmt.Sprintf("phase(%d)", int8(p))
	}
}

// DemandFactor scales household consumption budgets by cycle position.
func (p Phase) DemandFactor() float64 {
	switch p {
	case Expansion:
		return 1.05
	case Contraction:
		return 0.90
	case Trough:
		return 0.95
	default:
		return 1.0
	}
}

// World is the complete simulation state: the ledger, the books, the bank,
// the auditor, and every agent. All mutation goes through the scheduler's
// single-threaded cycle; the public verbs are not safe for concurrent use.
type World struct {
	cfg params.Config
	log *zap.Logger
	rng *rand.Rand

	led *ledger.Ledger
	cat *market.Catalog
	eng *book.Engine
	bk  *bank.Bank
	aud *audit.Auditor

	households []*Household
	firms      []*Firm
	hhIndex    map[ledger.PartyID]*Household
	firmIndex  map[ledger.PartyID]*Firm

	tick uint64
	day  uint64

	sentiment float64
	phase     Phase
	phaseAge  int
	prevGDP   float64

	flows      audit.Flows
	lastReport audit.Report

	events      EventPolicy
	consumption ConsumptionPolicy
	labor       LaborPolicy
	production  ProductionPolicy
	fiscal      FiscalPolicy
}

// NewWorld builds and endows a fresh world from the parameter set. Policy
// collaborators start nil; SetPolicies wires them before the first step.
func NewWorld(cfg params.Config, log *zap.Logger) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	w := &World{
		cfg:       cfg,
		log:       log,
		rng:       util.NewRand(cfg.Seed),
		led:       ledger.New(cfg.Fiscal.IncomeTaxRate, log),
		cat:       market.NewCatalog(),
		hhIndex:   make(map[ledger.PartyID]*Household),
		firmIndex: make(map[ledger.PartyID]*Firm),
		sentiment: 0.5,
	}
	for _, it := range market.DefaultGoods() {
		if err := w.cat.Register(it); err != nil {
			return nil, err
		}
	}
	w.eng = book.NewEngine(w.led, w.cat, cfg.Market, cfg.Numeric, log)
	w.bk = bank.New(cfg.Bank, w.led, log)
	w.aud = audit.New(cfg.Audit, cfg.Numeric, w.led, w.eng, w.cat, w.bk, log)

	if err := w.led.Mint(w.led.Treasury(), cfg.World.TreasuryCash); err != nil {
		return nil, err
	}
	if err := w.bk.Seed(cfg.World.BankReserves); err != nil {
		return nil, err
	}

	var farmerAccts []*ledger.Account
	for i := 0; i < cfg.World.Households; i++ {
		acct := w.led.NewAccount(ledger.Household)
		if err := w.led.Mint(acct, cfg.World.HouseholdCash); err != nil {
			return nil, err
		}
		h := &Household{
			Acct:     acct,
			Skill:    0.8 + 0.4*w.rng.Float64(),
			IsFarmer: i < cfg.World.Farmers,
		}
		if h.IsFarmer {
			farmerAccts = append(farmerAccts, acct)
		}
		w.households = append(w.households, h)
		w.hhIndex[acct.ID] = h
	}
	w.led.SetFarmers(farmerAccts)

	goods := w.cat.Goods()
	for i := 0; i < cfg.World.Firms; i++ {
		acct := w.led.NewAccount(ledger.Firm)
		if err := w.led.Mint(acct, cfg.World.FirmCash); err != nil {
			return nil, err
		}
		share := market.ShareItem(acct.ID)
		if err := w.cat.Register(share); err != nil {
			return nil, err
		}
		acct.Inventory[share.ID] = cfg.World.SharesOutstanding

		f := &Firm{
			Acct:     acct,
			Produces: goods[i%len(goods)].ID,
			Share:    share.ID,
			Wage:     cfg.World.InitialWage,
			lastCash: acct.Cash,
		}
		w.firms = append(w.firms, f)
		w.firmIndex[acct.ID] = f
	}

	// Open every book at its reference price before the first trade.
	for _, it := range w.cat.List() {
		w.eng.Book(it.ID)
	}
	w.eng.SetTradeHook(w.recordFlow)

	log.Info("world built",
		zap.Int("households", len(w.households)),
		zap.Int("firms", len(w.firms)),
		zap.Float64("monetary_base", w.led.Base()))
	return w, nil
}

// SetPolicies wires the behavioral collaborators. Nil entries leave that
// pipeline stage inert, which the tests use to isolate the kernel.
func (w *World) SetPolicies(e EventPolicy, c ConsumptionPolicy, l LaborPolicy, p ProductionPolicy, f FiscalPolicy) {
	w.events = e
	w.consumption = c
	w.labor = l
	w.production = p
	w.fiscal = f
}

// recordFlow classifies one settled fill into the expenditure accumulators by
// buyer kind. Only goods count toward expenditure: an equity fill changes
// hands, it does not produce anything. The tax accrues on every fill because
// the engine collects it on every fill.
func (w *World) recordFlow(buyer, seller *ledger.Account, item ledger.ItemID, price, qty float64) {
	value := price * qty
	w.flows.TaxRevenue += value * w.cfg.Market.ConsumptionTaxRate

	if it := w.cat.Get(item); it == nil || it.Kind != market.Good {
		return
	}
	switch buyer.Kind {
	case ledger.Household:
		w.flows.Consumption += value
	case ledger.Firm:
		w.flows.Investment += value
	case ledger.Treasury:
		w.flows.Government += value
	}
}

// Accessors used by collaborators and the runner.

func (w *World) Tick() uint64               { return w.tick }
func (w *World) Day() uint64                { return w.day }
func (w *World) Rand() *rand.Rand           { return w.rng }
func (w *World) Params() params.Config      { return w.cfg }
func (w *World) Households() []*Household   { return w.households }
func (w *World) Firms() []*Firm             { return w.firms }
func (w *World) Goods() []*market.Item      { return w.cat.Goods() }
func (w *World) Sentiment() float64         { return w.sentiment }
func (w *World) Phase() Phase               { return w.phase }
func (w *World) TreasuryID() ledger.PartyID { return w.led.Treasury().ID }
func (w *World) Ledger() *ledger.Ledger     { return w.led }
func (w *World) Engine() *book.Engine       { return w.eng }
func (w *World) Bank() *bank.Bank           { return w.bk }
func (w *World) Auditor() *audit.Auditor    { return w.aud }
func (w *World) Catalog() *market.Catalog   { return w.cat }

// HouseholdOf resolves a party id to its household, nil for non-households.
func (w *World) HouseholdOf(id ledger.PartyID) *Household { return w.hhIndex[id] }

// FirmOf resolves a party id to its firm, nil for non-firms.
func (w *World) FirmOf(id ledger.PartyID) *Firm { return w.firmIndex[id] }

// LastPrice returns the item's reference price, zero for unknown items.
func (w *World) LastPrice(item ledger.ItemID) float64 {
	if b := w.eng.Book(item); b != nil {
		return b.LastPrice()
	}
	return 0
}

// BestAsk returns the lowest resting ask, zero when the side is empty.
func (w *World) BestAsk(item ledger.ItemID) float64 {
	if b := w.eng.Book(item); b != nil {
		return b.BestAsk()
	}
	return 0
}

// BestBid returns the highest resting bid, zero when the side is empty.
func (w *World) BestBid(item ledger.ItemID) float64 {
	if b := w.eng.Book(item); b != nil {
		return b.BestBid()
	}
	return 0
}

// Employed counts wage earners plus self-employed farmers.
func (w *World) Employed() int {
	n := 0
	for _, h := range w.households {
		if h.Employed() {
			n++
		}
	}
	return n
}

// ActiveFirms counts firms still trading.
func (w *World) ActiveFirms() int {
	n := 0
	for _, f := range w.firms {
		if !f.Bankrupt {
			n++
		}
	}
	return n
}

// inventoryValue prices a firm's sellable stock at last traded prices. Equity
// held in the firm's own shares is excluded from collateral.
func (w *World) inventoryValue(f *Firm) float64 {
	total := 0.0
	for _, it := range w.cat.Goods() {
		if qty := f.Acct.Qty(it.ID); qty > 0 {
			total += qty * w.LastPrice(it.ID)
		}
	}
	return total
}
