package bank

import (
	"go.uber.org/zap"

	"github.com/minsu-cho/agorasim/params"
	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
)

// accrualDays converts the held annual rates into per-cycle growth.
const accrualDays = 365.0

// Loan is one outstanding credit line. Remaining capitalizes accrued interest;
// principalLeft tracks the un-accrued principal so repayment can split the
// interest portion (bank income) from the principal portion (credit
// destruction under the policy-rate regime).
type Loan struct {
	ID        uint64
	Borrower  ledger.PartyID
	Principal float64
	Remaining float64
	Rate      float64
	DueTick   uint64

	principalLeft float64
}

// Deposit is one party's claim on the bank.
type Deposit struct {
	Owner  ledger.PartyID
	Amount float64
	Rate   float64
}

// Macro carries the realized aggregates the policy regimes react to.
type Macro struct {
	Inflation    float64
	Unemployment float64
	Sentiment    float64 // consumer sentiment in [0, 1]
}

// FirmView is the bank's per-cycle window into one solvent firm: its account,
// the inventory-backed collateral value, and a recent profitability signal
// for the risk premium.
type FirmView struct {
	Acct          *ledger.Account
	Collateral    float64
	Profitability float64 // recent margin, roughly [-1, 1]
}

// HistoryEntry is one day's snapshot of the balance sheet.
type HistoryEntry struct {
	Day         uint64
	LoanRate    float64
	DepositRate float64
	Reserves    float64
	Loans       float64
	Deposits    float64
}

// Bank owns the central bank's balance sheet. Reserves live in an ordinary
// ledger account of kind CentralBank so money conservation needs no special
// casing. Rates are set by the selected policy regime once per cycle.
type Bank struct {
	cfg params.Bank
	led *ledger.Ledger

	reserves *ledger.Account

	loans      []*Loan
	nextLoanID uint64

	deposits map[ledger.PartyID]*Deposit
	depOrder []ledger.PartyID

	loanRate    float64
	depositRate float64
	yield       [3]float64 // short / mid / long

	policy           Policy
	lendingSuspended bool

	totalWrittenOff float64

	history []HistoryEntry
	log     *zap.Logger
}

func New(cfg params.Bank, led *ledger.Ledger, log *zap.Logger) *Bank {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bank{
		cfg:        cfg,
		led:        led,
		reserves:   led.NewAccount(ledger.CentralBank),
		nextLoanID: 1,
		deposits:   make(map[ledger.PartyID]*Deposit),
		loanRate:   cfg.NeutralRealRate + cfg.TargetInflation,
		log:        log,
	}
	b.depositRate = clampRate(b.loanRate-cfg.DepositSpread, 0, cfg.MaxRate)
	b.yield = [3]float64{b.loanRate, b.loanRate, b.loanRate}

	switch cfg.Regime {
	case params.RegimePolicyRate:
		b.policy = &PolicyRateRegime{}
	default:
		b.policy = &ReserveRatioRegime{}
	}
	return b
}

// Reserves returns the reserve account.
func (b *Bank) Reserves() *ledger.Account { return b.reserves }

// Seed credits initial reserves through the designated mint path.
func (b *Bank) Seed(amount float64) error { return b.led.Mint(b.reserves, amount) }

// LoanRate returns the current policy loan rate.
func (b *Bank) LoanRate() float64 { return b.loanRate }

// DepositRate returns the current deposit rate.
func (b *Bank) DepositRate() float64 { return b.depositRate }

// YieldCurve returns the 3-point curve (short, mid, long).
func (b *Bank) YieldCurve() [3]float64 { return b.yield }

// YieldSlope returns long minus short.
func (b *Bank) YieldSlope() float64 { return b.yield[2] - b.yield[0] }

// LendingSuspended reports the credit-crunch state.
func (b *Bank) LendingSuspended() bool { return b.lendingSuspended }

// TotalLoans always recomputes the sum of live remaining principals; the
// figure is never trusted incrementally.
func (b *Bank) TotalLoans() float64 {
	total := 0.0
	for _, l := range b.loans {
		total += l.Remaining
	}
	return total
}

// TotalDeposits sums all deposit claims.
func (b *Bank) TotalDeposits() float64 {
	total := 0.0
	for _, id := range b.depOrder {
		total += b.deposits[id].Amount
	}
	return total
}

// ReserveRatio is reserves over deposits; 1 with no deposits.
func (b *Bank) ReserveRatio() float64 {
	dep := b.TotalDeposits()
	if dep <= 0 {
		return 1.0
	}
	return b.reserves.Cash / dep
}

// Equity is assets (reserves + loan book) minus deposit liabilities.
func (b *Bank) Equity() float64 {
	return b.reserves.Cash + b.TotalLoans() - b.TotalDeposits()
}

// CapitalAdequacy is equity over risk-weighted loan exposure; large when the
// loan book is empty.
func (b *Bank) CapitalAdequacy() float64 {
	exposure := b.cfg.LoanRiskWeight * b.TotalLoans()
	if exposure <= 0 {
		return 1.0
	}
	return b.Equity() / exposure
}

// Loans returns the live loan book.
func (b *Bank) Loans() []*Loan { return b.loans }

// LoansOf returns the live loans of one borrower.
func (b *Bank) LoansOf(id ledger.PartyID) []*Loan {
	var out []*Loan
	for _, l := range b.loans {
		if l.Borrower == id {
			out = append(out, l)
		}
	}
	return out
}

// DepositOf returns a party's deposit claim, zero if none.
func (b *Bank) DepositOf(id ledger.PartyID) float64 {
	if d, ok := b.deposits[id]; ok {
		return d.Amount
	}
	return 0
}

// WrittenOff returns the cumulative defaulted principal.
func (b *Bank) WrittenOff() float64 { return b.totalWrittenOff }

// History returns the bounded balance-sheet history, oldest first.
func (b *Bank) History() []HistoryEntry { return b.history }

// SetRates runs the active policy regime against realized aggregates and
// re-evaluates the credit-crunch state.
func (b *Bank) SetRates(m Macro) {
	b.policy.SetRates(b, m)
	b.depositRate = clampRate(b.loanRate-b.cfg.DepositSpread, 0, b.cfg.MaxRate)
}

// AccrueInterest grows every live loan and deposit by its held rate. Pure
// bookkeeping: no cash moves until repayment or withdrawal.
func (b *Bank) AccrueInterest() {
	for _, l := range b.loans {
		l.Remaining *= 1 + l.Rate/accrualDays
	}
	for _, id := range b.depOrder {
		d := b.deposits[id]
		d.Rate = b.depositRate
		d.Amount *= 1 + d.Rate/accrualDays
	}
}

// SweepHouseholds moves household cash above the upper threshold into
// deposits and tops households back up from their deposits when cash falls
// below the lower threshold. Withdrawals are honored only as far as reserves
// allow.
func (b *Bank) SweepHouseholds(households []*ledger.Account) {
	for _, h := range households {
		avail := h.AvailableCash()
		switch {
		case avail > b.cfg.SweepAbove:
			excess := avail - b.cfg.SweepAbove
			if err := b.led.Transfer(ledger.At(h), ledger.At(b.reserves), excess); err != nil {
				continue
			}
			b.credit(h.ID, excess)
		case avail < b.cfg.SweepBelow:
			d, ok := b.deposits[h.ID]
			if !ok || d.Amount <= 0 {
				continue
			}
			want := b.cfg.SweepBelow - avail
			w := min(want, d.Amount)
			w = min(w, b.reserves.AvailableCash())
			if w <= 0 {
				continue
			}
			if err := b.led.Transfer(ledger.At(b.reserves), ledger.At(h), w); err != nil {
				continue
			}
			d.Amount -= w
		}
	}
}

func (b *Bank) credit(owner ledger.PartyID, amount float64) {
	d, ok := b.deposits[owner]
	if !ok {
		d = &Deposit{Owner: owner, Rate: b.depositRate}
		b.deposits[owner] = d
		b.depOrder = append(b.depOrder, owner)
	}
	d.Amount += amount
}

// FirmPass runs the per-cycle credit cycle over solvent firms: attempt
// repayment bounded by the working-cash buffer, then originate a fixed
// increment for under-capitalized firms whose collateral covers their debt,
// if the regime currently permits lending. Returns the ids of firms that
// crossed the insolvency threshold this cycle.
func (b *Bank) FirmPass(firms []*FirmView, tick uint64) []ledger.PartyID {
	var defaulted []ledger.PartyID
	for _, f := range firms {
		if f.Acct.Cash < b.cfg.InsolvencyBuffer {
			defaulted = append(defaulted, f.Acct.ID)
			continue
		}

		b.repay(f, tick)

		debt := 0.0
		for _, l := range b.LoansOf(f.Acct.ID) {
			debt += l.Remaining
		}
		underCapitalized := f.Acct.AvailableCash() < b.cfg.RepayCashBuffer
		if underCapitalized && f.Collateral > debt {
			b.originate(f, tick)
		}
	}
	return defaulted
}

// repay pays down the firm's loans oldest-first with whatever cash exceeds
// the retained buffer. The interest portion is bank income into reserves; the
// principal portion follows the regime's money path.
func (b *Bank) repay(f *FirmView, tick uint64) {
	capacity := f.Acct.AvailableCash() - b.cfg.RepayCashBuffer
	if capacity <= 0 {
		return
	}
	for _, l := range b.LoansOf(f.Acct.ID) {
		if capacity <= 0 {
			break
		}
		pay := min(capacity, l.Remaining)
		if pay <= 0 {
			continue
		}

		interest := l.Remaining - l.principalLeft
		if interest < 0 {
			interest = 0
		}
		payInterest := min(pay, interest)
		payPrincipal := pay - payInterest

		if payInterest > 0 {
			if err := b.led.Transfer(ledger.At(f.Acct), ledger.At(b.reserves), payInterest); err != nil {
				return
			}
		}
		if payPrincipal > 0 {
			if err := b.settlePrincipal(f.Acct, payPrincipal); err != nil {
				return
			}
		}

		l.Remaining -= pay
		l.principalLeft -= payPrincipal
		if l.principalLeft < 0 {
			l.principalLeft = 0
		}
		capacity -= pay
	}
	b.dropClearedLoans()
}

// settlePrincipal moves repaid principal along the regime's money path:
// restored to reserves under the reserve-ratio regime, destroyed under the
// policy-rate regime where origination created it.
func (b *Bank) settlePrincipal(from *ledger.Account, amount float64) error {
	switch b.cfg.Regime {
	case params.RegimePolicyRate:
		return b.led.Burn(from, amount)
	default:
		return b.led.Transfer(ledger.At(from), ledger.At(b.reserves), amount)
	}
}

func (b *Bank) dropClearedLoans() {
	live := b.loans[:0]
	for _, l := range b.loans {
		if l.Remaining > 1e-9 {
			live = append(live, l)
		}
	}
	b.loans = live
}

// originate issues a fixed-increment loan at the policy yield plus a risk
// premium from a simple default-probability heuristic.
func (b *Bank) originate(f *FirmView, tick uint64) {
	amount := b.cfg.LoanIncrement
	if b.lendingSuspended || !b.policy.CanLend(b, amount) {
		return
	}

	rate := b.loanRate + b.riskPremium(f)
	if err := b.fundLoan(f.Acct, amount); err != nil {
		b.log.Warn("loan funding failed", zap.Error(err))
		return
	}
	b.loans = append(b.loans, &Loan{
		ID:            b.nextLoanID,
		Borrower:      f.Acct.ID,
		Principal:     amount,
		Remaining:     amount,
		principalLeft: amount,
		Rate:          rate,
		DueTick:       tick + b.cfg.LoanTermTicks,
	})
	b.nextLoanID++
}

// fundLoan moves fresh credit to the borrower: out of reserves under the
// reserve-ratio regime, minted under the policy-rate regime.
func (b *Bank) fundLoan(to *ledger.Account, amount float64) error {
	switch b.cfg.Regime {
	case params.RegimePolicyRate:
		return b.led.Mint(to, amount)
	default:
		return b.led.Transfer(ledger.At(b.reserves), ledger.At(to), amount)
	}
}

// riskPremium maps profitability, cash level, and asset/debt cover into a
// spread over the policy rate.
func (b *Bank) riskPremium(f *FirmView) float64 {
	debt := 0.0
	for _, l := range b.LoansOf(f.Acct.ID) {
		debt += l.Remaining
	}
	pd := 0.0
	if f.Profitability < 0 {
		pd += 0.4
	}
	if f.Acct.AvailableCash() < b.cfg.RepayCashBuffer/2 {
		pd += 0.3
	}
	if debt > 0 && f.Collateral < 2*debt {
		pd += 0.3
	}
	return b.cfg.BaseRiskPremium * (1 + 4*pd)
}

// WriteOff handles a default: the borrower's live loans are removed and
// their remaining principal is recorded as destroyed, never reassigned. Any
// cash the borrower still holds is seized up to the written-off amount and
// burned, since defaulted credit leaving the books is the one audited
// money-destruction event. Calling it again for the same borrower is a no-op.
func (b *Bank) WriteOff(borrower ledger.PartyID) float64 {
	writeOff := 0.0
	live := b.loans[:0]
	for _, l := range b.loans {
		if l.Borrower == borrower {
			writeOff += l.Remaining
			continue
		}
		live = append(live, l)
	}
	b.loans = live
	if writeOff == 0 {
		return 0
	}

	b.totalWrittenOff += writeOff
	if acct := b.led.Account(borrower); acct != nil {
		if seize := min(acct.AvailableCash(), writeOff); seize > 0 {
			if err := b.led.Burn(acct, seize); err == nil {
				b.log.Info("seized cash from defaulted borrower",
					zap.Uint64("borrower", uint64(borrower)),
					zap.Float64("seized", seize))
			}
		}
	}
	b.log.Warn("loan book write-off",
		zap.Uint64("borrower", uint64(borrower)),
		zap.Float64("principal", writeOff))
	return writeOff
}

// RecordDay appends one balance-sheet snapshot to the bounded history.
func (b *Bank) RecordDay(day uint64) {
	b.history = append(b.history, HistoryEntry{
		Day:         day,
		LoanRate:    b.loanRate,
		DepositRate: b.depositRate,
		Reserves:    b.reserves.Cash,
		Loans:       b.TotalLoans(),
		Deposits:    b.TotalDeposits(),
	})
	if len(b.history) > b.cfg.HistoryCap {
		b.history = b.history[len(b.history)-b.cfg.HistoryCap:]
	}
}

func clampRate(r, lo, hi float64) float64 {
	if r < lo {
		return lo
	}
	if r > hi {
		return hi
	}
	return r
}
