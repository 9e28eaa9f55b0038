package ledger

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrNonPositiveAmount  = errors.New("amount must be positive")
	ErrInsufficientFunds  = errors.New("insufficient available funds")
	ErrInsufficientGoods  = errors.New("insufficient available goods")
	ErrUnknownEndpoint    = errors.New("unknown transfer endpoint")
)

// endpointKind is a closed enumeration of transfer endpoints. Beyond plain
// accounts, payroll-like flows address two synthetic sinks: the treasury, and
// a pool that collects cash, deducts income tax, and redistributes the rest
// equally among registered farmer households.
type endpointKind int8

const (
	epAccount endpointKind = iota
	epTreasury
	epFarmerPool
)

// Endpoint is one side of a transfer.
type Endpoint struct {
	kind endpointKind
	acct *Account
}

// At addresses a concrete account.
func At(a *Account) Endpoint { return Endpoint{kind: epAccount, acct: a} }

// ToTreasury addresses the treasury sink.
func ToTreasury() Endpoint { return Endpoint{kind: epTreasury} }

// ToFarmerPool addresses the collect-and-redistribute sink.
func ToFarmerPool() Endpoint { return Endpoint{kind: epFarmerPool} }

func (e Endpoint) String() string {
	switch e.kind {
	case epAccount:
		if e.acct == nil {
			return "account(nil)"
		}
		return fmt.Sprintf("%s:%d", e.acct.Kind, e.acct.ID)
	case epTreasury:
		return "treasury"
	case epFarmerPool:
		return "farmer_pool"
	default:
		return fmt.Sprintf("endpoint(%d)", int8(e.kind))
	}
}

// Ledger owns every account and the tracked monetary base. All money movement
// is mediated here; nothing mutates a balance directly outside it. Mint and
// Burn are the only paths that change the base.
type Ledger struct {
	accounts map[PartyID]*Account
	order    []PartyID // registration order, for deterministic iteration
	nextID   PartyID

	treasury *Account
	farmers  []*Account

	base          float64 // tracked monetary base (M0 counter)
	incomeTaxRate float64

	log *zap.Logger
}

func New(incomeTaxRate float64, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{
		accounts:      make(map[PartyID]*Account),
		nextID:        1,
		incomeTaxRate: incomeTaxRate,
		log:           log,
	}
	l.treasury = l.NewAccount(Treasury)
	return l
}

// NewAccount registers a fresh zero-balance account of the given kind.
func (l *Ledger) NewAccount(kind PartyKind) *Account {
	a := &Account{
		ID:        l.nextID,
		Kind:      kind,
		Inventory: make(map[ItemID]float64),
		LockedInv: make(map[ItemID]float64),
	}
	l.nextID++
	l.accounts[a.ID] = a
	l.order = append(l.order, a.ID)
	return a
}

// Treasury returns the treasury account.
func (l *Ledger) Treasury() *Account { return l.treasury }

// Account looks up a registered account, nil if unknown.
func (l *Ledger) Account(id PartyID) *Account { return l.accounts[id] }

// SetFarmers registers the accounts the farmer-pool sink redistributes to.
func (l *Ledger) SetFarmers(accounts []*Account) { l.farmers = accounts }

// ForEach visits every account in registration order.
func (l *Ledger) ForEach(fn func(*Account)) {
	for _, id := range l.order {
		fn(l.accounts[id])
	}
}

// Mint credits an account with newly created money. One of the two designated
// paths that move the monetary base.
func (l *Ledger) Mint(to *Account, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("mint %g: %w", amount, ErrNonPositiveAmount)
	}
	to.Cash += amount
	l.base += amount
	return nil
}

// Burn destroys money out of an account's available balance. The other
// designated base-moving path; used for credit destruction on repayment and
// for the audited write-off on default.
func (l *Ledger) Burn(from *Account, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("burn %g: %w", amount, ErrNonPositiveAmount)
	}
	if from.AvailableCash() < amount {
		return fmt.Errorf("burn %g from %s:%d (available %g): %w",
			amount, from.Kind, from.ID, from.AvailableCash(), ErrInsufficientFunds)
	}
	from.Cash -= amount
	l.base -= amount
	return nil
}

// Transfer moves cash between two endpoints. It fails atomically: on any
// error, no balance has changed. The payer side must be a concrete account or
// the treasury; the payee side may also be the farmer pool.
func (l *Ledger) Transfer(from, to Endpoint, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer %g: %w", amount, ErrNonPositiveAmount)
	}

	var payer *Account
	switch from.kind {
	case epAccount:
		payer = from.acct
	case epTreasury:
		payer = l.treasury
	case epFarmerPool:
		return fmt.Errorf("farmer pool cannot pay: %w", ErrUnknownEndpoint)
	default:
		return fmt.Errorf("from %v: %w", from, ErrUnknownEndpoint)
	}
	if payer == nil {
		return fmt.Errorf("from %v: %w", from, ErrUnknownEndpoint)
	}
	if payer.AvailableCash() < amount {
		return fmt.Errorf("transfer %g from %s (available %g): %w",
			amount, from, payer.AvailableCash(), ErrInsufficientFunds)
	}

	switch to.kind {
	case epAccount:
		if to.acct == nil {
			return fmt.Errorf("to %v: %w", to, ErrUnknownEndpoint)
		}
		payer.Cash -= amount
		to.acct.Cash += amount
	case epTreasury:
		payer.Cash -= amount
		l.treasury.Cash += amount
	case epFarmerPool:
		payer.Cash -= amount
		l.creditFarmerPool(amount)
	default:
		return fmt.Errorf("to %v: %w", to, ErrUnknownEndpoint)
	}
	return nil
}

// creditFarmerPool deducts income tax into the treasury and splits the net
// equally among registered farmers. With no farmers the whole amount goes to
// the treasury so no cash is ever dropped.
func (l *Ledger) creditFarmerPool(amount float64) {
	tax := amount * l.incomeTaxRate
	net := amount - tax
	l.treasury.Cash += tax
	if len(l.farmers) == 0 {
		l.treasury.Cash += net
		return
	}
	share := net / float64(len(l.farmers))
	for _, f := range l.farmers {
		f.Cash += share
	}
}

// MoveItem transfers item custody outside the escrow path (production output,
// initial endowments). Fails atomically on insufficient available quantity.
func (l *Ledger) MoveItem(from, to *Account, item ItemID, qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("move %g %s: %w", qty, item, ErrNonPositiveAmount)
	}
	if from.AvailableQty(item) < qty {
		return fmt.Errorf("move %g %s from %s:%d (available %g): %w",
			qty, item, from.Kind, from.ID, from.AvailableQty(item), ErrInsufficientGoods)
	}
	from.Inventory[item] -= qty
	to.Inventory[item] += qty
	return nil
}

// TotalCash sums every account's cash balance, escrowed or not.
func (l *Ledger) TotalCash() float64 {
	total := 0.0
	for _, id := range l.order {
		total += l.accounts[id].Cash
	}
	return total
}

// Base returns the tracked monetary base.
func (l *Ledger) Base() float64 { return l.base }

// ResyncBase overwrites the tracked base with an observed total. Only the
// auditor calls this, after logging the divergence.
func (l *Ledger) ResyncBase(observed float64) {
	l.base = observed
}
