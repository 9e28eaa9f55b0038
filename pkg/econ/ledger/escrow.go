package ledger

import (
	"fmt"

	"go.uber.org/zap"
)

// Escrow bookkeeping. Locked cash and goods stay on the owner's account; a
// hold is recorded against them so they cannot be spent twice. The sequencing
// contract is: lock before book insertion, release exactly once on any
// terminal transition (fill, cancel, prune). Release of an already-zero hold
// is a no-op by construction because callers release the order's remaining
// locked value, never a recomputed figure.

// LockCash places a hold on available cash. No cash moves.
func (l *Ledger) LockCash(a *Account, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("lock cash %g: %w", amount, ErrNonPositiveAmount)
	}
	if a.AvailableCash() < amount {
		return fmt.Errorf("lock cash %g on %s:%d (available %g): %w",
			amount, a.Kind, a.ID, a.AvailableCash(), ErrInsufficientFunds)
	}
	a.LockedCash += amount
	return nil
}

// UnlockCash releases a cash hold. Zero or negative amounts are no-ops so a
// refund of an order with nothing outstanding is idempotent.
func (l *Ledger) UnlockCash(a *Account, amount float64) {
	if amount <= 0 {
		return
	}
	a.LockedCash -= amount
	if a.LockedCash < 0 {
		// A release larger than the hold means escrow bookkeeping went wrong
		// upstream; clamp and let the auditor report the residue.
		l.log.Warn("escrow cash hold went negative, clamping",
			zap.Uint64("party", uint64(a.ID)),
			zap.Float64("excess", -a.LockedCash))
		a.LockedCash = 0
	}
}

// SpendLocked settles a buy fill: moves amount from the payer's escrowed cash
// to the payee's free balance.
func (l *Ledger) SpendLocked(from, to *Account, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("spend locked %g: %w", amount, ErrNonPositiveAmount)
	}
	if from.LockedCash < amount || from.Cash < amount {
		return fmt.Errorf("spend locked %g from %s:%d (locked %g, cash %g): %w",
			amount, from.Kind, from.ID, from.LockedCash, from.Cash, ErrInsufficientFunds)
	}
	from.Cash -= amount
	from.LockedCash -= amount
	to.Cash += amount
	return nil
}

// LockQty places a hold on available inventory of item. Nothing moves.
func (l *Ledger) LockQty(a *Account, item ItemID, qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("lock %g %s: %w", qty, item, ErrNonPositiveAmount)
	}
	if a.AvailableQty(item) < qty {
		return fmt.Errorf("lock %g %s on %s:%d (available %g): %w",
			qty, item, a.Kind, a.ID, a.AvailableQty(item), ErrInsufficientGoods)
	}
	a.LockedInv[item] += qty
	return nil
}

// UnlockQty releases an inventory hold; idempotent for zero outstanding.
func (l *Ledger) UnlockQty(a *Account, item ItemID, qty float64) {
	if qty <= 0 {
		return
	}
	a.LockedInv[item] -= qty
	if a.LockedInv[item] < 0 {
		l.log.Warn("escrow inventory hold went negative, clamping",
			zap.Uint64("party", uint64(a.ID)),
			zap.String("item", string(item)),
			zap.Float64("excess", -a.LockedInv[item]))
		a.LockedInv[item] = 0
	}
}

// DeliverLocked settles a sell fill: moves qty of item from the seller's
// escrowed inventory to the buyer's free inventory.
func (l *Ledger) DeliverLocked(from, to *Account, item ItemID, qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("deliver %g %s: %w", qty, item, ErrNonPositiveAmount)
	}
	if from.LockedInv[item] < qty || from.Inventory[item] < qty {
		return fmt.Errorf("deliver %g %s from %s:%d (locked %g, held %g): %w",
			qty, item, from.Kind, from.ID, from.LockedInv[item], from.Inventory[item], ErrInsufficientGoods)
	}
	from.Inventory[item] -= qty
	from.LockedInv[item] -= qty
	to.Inventory[item] += qty
	return nil
}
