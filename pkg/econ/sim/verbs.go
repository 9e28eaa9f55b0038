package sim

import (
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/minsu-cho/agorasim/params"
	"github.com/minsu-cho/agorasim/pkg/econ/book"
	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
	"github.com/minsu-cho/agorasim/pkg/econ/market"
)

// API is the surface the behavioral collaborators act through. Everything
// that moves money or goods funnels into the four kernel verbs; the rest is
// read-only world state. Implemented by *World.
type API interface {
	Tick() uint64
	Day() uint64
	Rand() *rand.Rand
	Params() params.Config
	Households() []*Household
	Firms() []*Firm
	Goods() []*market.Item
	HouseholdOf(id ledger.PartyID) *Household
	FirmOf(id ledger.PartyID) *Firm
	Sentiment() float64
	Phase() Phase
	TreasuryID() ledger.PartyID
	LastPrice(item ledger.ItemID) float64
	BestAsk(item ledger.ItemID) float64
	BestBid(item ledger.ItemID) float64

	SubmitOrder(owner ledger.PartyID, item ledger.ItemID, side book.Side, kind book.OrderKind, price, qty float64) bool
	CancelOrder(item ledger.ItemID, id book.OrderID) bool
	CancelAllOrders(owner ledger.PartyID, item ledger.ItemID) int
	Transfer(from, to ledger.PartyID, amount float64) bool
	PayTreasury(from ledger.PartyID, amount float64) bool
	PayFarmerPool(from ledger.PartyID, amount float64) bool
	PayWage(firm, worker ledger.PartyID, gross float64) bool
	ProduceGoods(owner ledger.PartyID, item ledger.ItemID, qty float64) bool
	ConsumeGoods(owner ledger.PartyID, item ledger.ItemID, qty float64) bool
	MacroSnapshot() Snapshot
}

// EventPolicy injects exogenous shocks at the top of each daily cycle,
// before any other stage observes the world.
type EventPolicy interface {
	RunEvents(api API)
}

// ConsumptionPolicy plans and places household buy orders each cycle.
type ConsumptionPolicy interface {
	Consume(api API)
}

// LaborPolicy runs the hiring/firing match and then the payroll.
type LaborPolicy interface {
	Match(api API)
	Payroll(api API)
}

// ProductionPolicy turns labor into inventory and places firm sell orders.
type ProductionPolicy interface {
	Produce(api API)
}

// FiscalPolicy runs the treasury at the macro rate.
type FiscalPolicy interface {
	RunFiscal(api API)
}

// MarketDepth is the per-item book summary carried in the snapshot.
type MarketDepth struct {
	LastPrice float64
	Supply    float64
	Demand    float64
	Spread    float64
}

// Snapshot is the read-only macro view returned by the MacroSnapshot verb.
type Snapshot struct {
	Tick uint64
	Day  uint64

	Phase     Phase
	Sentiment float64
	Health    float64

	GDP          float64
	CPI          float64
	Inflation    float64
	Unemployment float64
	Velocity     float64

	MoneyBase    float64
	Deposits     float64
	TotalLoans   float64
	ReserveRatio float64
	Leverage     float64
	WrittenOff   float64

	LoanRate         float64
	DepositRate      float64
	YieldCurve       [3]float64
	LendingSuspended bool

	Prices  map[ledger.ItemID]float64
	Markets map[ledger.ItemID]MarketDepth

	Employed      int
	LaborForce    int
	ActiveFirms   int
	BankruptFirms int
	AvgFirmMargin float64
	AvgFirmCash   float64
	AvgTobinQ     float64
	Findings      int
}

// SubmitOrder is the order-entry verb: resolve the owner, hand it to the
// matching engine, report acceptance. Rejections roll back completely and are
// logged at debug level; agents treat them as "not this cycle".
func (w *World) SubmitOrder(owner ledger.PartyID, item ledger.ItemID, side book.Side, kind book.OrderKind, price, qty float64) bool {
	acct := w.led.Account(owner)
	if acct == nil {
		return false
	}
	if _, err := w.eng.Submit(acct, item, side, kind, price, qty, w.tick, w.day); err != nil {
		w.log.Debug("order rejected",
			zap.Uint64("owner", uint64(owner)),
			zap.String("item", string(item)),
			zap.Error(err))
		return false
	}
	return true
}

// CancelOrder is the cancellation verb. Idempotent.
func (w *World) CancelOrder(item ledger.ItemID, id book.OrderID) bool {
	return w.eng.Cancel(item, id)
}

// CancelAllOrders cancels every resting order a party has on one book,
// or on all books when item is empty.
func (w *World) CancelAllOrders(owner ledger.PartyID, item ledger.ItemID) int {
	if item != "" {
		return w.eng.CancelAll(owner, item)
	}
	n := 0
	for _, it := range w.cat.List() {
		n += w.eng.CancelAll(owner, it.ID)
	}
	return n
}

// Transfer is the direct-payment verb between two parties. Treasury outlays
// are accumulated as government expenditure.
func (w *World) Transfer(from, to ledger.PartyID, amount float64) bool {
	src, dst := w.led.Account(from), w.led.Account(to)
	if src == nil || dst == nil {
		return false
	}
	if err := w.led.Transfer(ledger.At(src), ledger.At(dst), amount); err != nil {
		return false
	}
	if from == w.TreasuryID() {
		w.flows.Government += amount
	}
	return true
}

// PayTreasury routes a tax or fee into the treasury sink.
func (w *World) PayTreasury(from ledger.PartyID, amount float64) bool {
	src := w.led.Account(from)
	if src == nil {
		return false
	}
	if err := w.led.Transfer(ledger.At(src), ledger.ToTreasury(), amount); err != nil {
		return false
	}
	w.flows.TaxRevenue += amount
	return true
}

// PayFarmerPool routes a payment into the farmer pool: income tax is skimmed
// to the treasury and the net is split across registered farmers.
func (w *World) PayFarmerPool(from ledger.PartyID, amount float64) bool {
	src := w.led.Account(from)
	if src == nil {
		return false
	}
	if err := w.led.Transfer(ledger.At(src), ledger.ToFarmerPool(), amount); err != nil {
		return false
	}
	if from == w.TreasuryID() {
		w.flows.Government += amount
	}
	return true
}

// PayWage pays one gross wage: income tax to the treasury, net to the worker.
// Either both legs land or neither does.
func (w *World) PayWage(firm, worker ledger.PartyID, gross float64) bool {
	src, dst := w.led.Account(firm), w.led.Account(worker)
	if src == nil || dst == nil || gross <= 0 {
		return false
	}
	tax := gross * w.cfg.Fiscal.IncomeTaxRate
	if src.AvailableCash() < gross {
		return false
	}
	if err := w.led.Transfer(ledger.At(src), ledger.At(dst), gross-tax); err != nil {
		return false
	}
	if tax > 0 {
		if err := w.led.Transfer(ledger.At(src), ledger.ToTreasury(), tax); err != nil {
			// Undo the net leg so a half-paid wage never stands.
			_ = w.led.Transfer(ledger.At(dst), ledger.At(src), gross-tax)
			return false
		}
	}
	w.flows.Wages += gross
	w.flows.TaxRevenue += tax
	return true
}

// ProduceGoods credits newly produced output to the producer's free
// inventory. Goods are not conserved the way money is: production creates
// them and consumption destroys them.
func (w *World) ProduceGoods(owner ledger.PartyID, item ledger.ItemID, qty float64) bool {
	acct := w.led.Account(owner)
	if acct == nil || qty <= 0 || !w.cat.Has(item) {
		return false
	}
	acct.Inventory[item] += qty
	return true
}

// ConsumeGoods removes purchased goods from free inventory, bounded by what
// the owner actually holds unescrowed.
func (w *World) ConsumeGoods(owner ledger.PartyID, item ledger.ItemID, qty float64) bool {
	acct := w.led.Account(owner)
	if acct == nil || qty <= 0 {
		return false
	}
	avail := acct.AvailableQty(item)
	if avail <= 0 {
		return false
	}
	if qty > avail {
		qty = avail
	}
	acct.Inventory[item] -= qty
	return true
}

// MacroSnapshot is the observation verb: the latest audited aggregates plus
// live bank and market state.
func (w *World) MacroSnapshot() Snapshot {
	prices := make(map[ledger.ItemID]float64, len(w.cat.List()))
	markets := make(map[ledger.ItemID]MarketDepth, len(w.cat.List()))
	for _, it := range w.cat.List() {
		b := w.eng.Book(it.ID)
		prices[it.ID] = b.LastPrice()
		markets[it.ID] = MarketDepth{
			LastPrice: b.LastPrice(),
			Supply:    b.Supply(),
			Demand:    b.Demand(),
			Spread:    b.Spread(),
		}
	}

	var margin, cash, tobinQ float64
	alive := 0
	bankrupt := 0
	for _, f := range w.firms {
		if f.Bankrupt {
			bankrupt++
			continue
		}
		alive++
		margin += f.Profitability
		cash += f.Acct.Cash
		if bv := f.Acct.Cash + w.inventoryValue(f); bv > 0 {
			tobinQ += w.LastPrice(f.Share) * w.cfg.World.SharesOutstanding / bv
		}
	}
	if alive > 0 {
		margin /= float64(alive)
		cash /= float64(alive)
		tobinQ /= float64(alive)
	}

	velocity := 0.0
	if base := w.led.Base(); base > 0 {
		velocity = w.lastReport.GDP / base
	}

	// Health is a 0..1 composite: employment, price stability (inflation
	// within 5 points of target), firm survival, and sentiment.
	empRate := 0.0
	if len(w.households) > 0 {
		empRate = float64(w.Employed()) / float64(len(w.households))
	}
	priceStability := 1 - math.Abs(w.lastReport.Inflation-w.cfg.Bank.TargetInflation)/0.05
	if priceStability < 0 {
		priceStability = 0
	}
	survival := 0.0
	if len(w.firms) > 0 {
		survival = float64(alive) / float64(len(w.firms))
	}
	health := 0.35*empRate + 0.25*priceStability + 0.2*survival + 0.2*w.sentiment
	leverage := 0.0
	if dep := w.bk.TotalDeposits(); dep > 0 {
		leverage = w.bk.TotalLoans() / dep
	}

	return Snapshot{
		Tick:             w.tick,
		Day:              w.day,
		Phase:            w.phase,
		Sentiment:        w.sentiment,
		Health:           health,
		GDP:              w.lastReport.GDP,
		CPI:              w.lastReport.CPI,
		Inflation:        w.lastReport.Inflation,
		Unemployment:     w.lastReport.Unemployment,
		Velocity:         velocity,
		MoneyBase:        w.led.Base(),
		Deposits:         w.bk.TotalDeposits(),
		TotalLoans:       w.bk.TotalLoans(),
		ReserveRatio:     w.bk.ReserveRatio(),
		Leverage:         leverage,
		WrittenOff:       w.bk.WrittenOff(),
		LoanRate:         w.bk.LoanRate(),
		DepositRate:      w.bk.DepositRate(),
		YieldCurve:       w.bk.YieldCurve(),
		LendingSuspended: w.bk.LendingSuspended(),
		Prices:           prices,
		Markets:          markets,
		Employed:         w.Employed(),
		LaborForce:       len(w.households),
		ActiveFirms:      w.ActiveFirms(),
		BankruptFirms:    bankrupt,
		AvgFirmMargin:    margin,
		AvgFirmCash:      cash,
		AvgTobinQ:        tobinQ,
		Findings:         w.aud.TotalFindings(),
	}
}
