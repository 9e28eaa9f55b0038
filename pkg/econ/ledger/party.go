package ledger

import "fmt"

// PartyID identifies any ledger-holding party. IDs are assigned sequentially
// by the ledger so a world built from the same params replays identically.
type PartyID uint64

// ItemID identifies a tradable item (a good or a firm's shares).
type ItemID string

// PartyKind is a closed enumeration of ledger-holding parties. Every dispatch
// site switches exhaustively over it; an unknown kind is a programming defect,
// not a silent no-op.
type PartyKind int8

const (
	Household PartyKind = iota
	Firm
	Treasury
	CentralBank
)

func (k PartyKind) String() string {
	switch k {
	case Household:
		return "household"
	case Firm:
		return "firm"
	case Treasury:
		return "treasury"
	case CentralBank:
		return "central_bank"
	default:
		return fmt.Sprintf("party_kind(%d)", int8(k))
	}
}

// Account is the ledger-side view of a party: a scalar cash balance, item
// inventories, and the escrow holds against both. Cash never leaves the
// account at lock time; locked amounts are tracked alongside and available
// funds are balance minus locked. All mutation goes through the Ledger.
type Account struct {
	ID   PartyID
	Kind PartyKind

	Cash       float64
	LockedCash float64

	Inventory map[ItemID]float64
	LockedInv map[ItemID]float64
}

// AvailableCash returns cash not held in escrow for open buy orders.
func (a *Account) AvailableCash() float64 {
	return a.Cash - a.LockedCash
}

// AvailableQty returns inventory of item not held in escrow for open sells.
func (a *Account) AvailableQty(item ItemID) float64 {
	return a.Inventory[item] - a.LockedInv[item]
}

// Qty returns the full inventory of item, escrowed or not.
func (a *Account) Qty(item ItemID) float64 {
	return a.Inventory[item]
}

// Validate checks per-account invariants.
func (a *Account) Validate() error {
	if a.LockedCash < 0 {
		return fmt.Errorf("%s %d: negative locked cash %g", a.Kind, a.ID, a.LockedCash)
	}
	if a.LockedCash > a.Cash {
		return fmt.Errorf("%s %d: locked cash %g exceeds balance %g", a.Kind, a.ID, a.LockedCash, a.Cash)
	}
	for item, locked := range a.LockedInv {
		if locked < 0 {
			return fmt.Errorf("%s %d: negative locked %s: %g", a.Kind, a.ID, item, locked)
		}
		if locked > a.Inventory[item] {
			return fmt.Errorf("%s %d: locked %s %g exceeds inventory %g", a.Kind, a.ID, item, locked, a.Inventory[item])
		}
	}
	return nil
}
