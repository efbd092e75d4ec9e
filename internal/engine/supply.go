package engine

import (
	"context"
	"fmt"

	"factoryline/internal/domain"
)

// CreateSupplyOrder opens a standalone supply order bringing parts from
// the parts supply station to a target workstation. Control orders create
// theirs through RequestSupply.
func (e Engine) CreateSupplyOrder(ctx context.Context, priority string, workstationID int, requestedBy, notes string, lines []LineInput) (domain.Order, error) {
	if err := validateLines(lines, domain.ItemPart); err != nil {
		return domain.Order{}, err
	}
	if workstationID < domain.WSDrilling || workstationID > domain.WSProductionControl {
		return domain.Order{}, fmt.Errorf("invalid workstation %d", workstationID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
		Type:          domain.OrderSupply,
		Priority:      priority,
		WorkstationID: &workstationID,
		RequestedBy:   requestedBy,
		Notes:         notes,
		Lines:         lines,
	})
	if err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// ApproveSupplyOrder accepts the request; the transfer is now being picked.
func (e Engine) ApproveSupplyOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.simpleTransition(ctx, id, domain.OrderSupply, domain.StatusInProgress, actorID)
}

// RejectSupplyOrder declines a pending request.
func (e Engine) RejectSupplyOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.simpleTransition(ctx, id, domain.OrderSupply, domain.StatusRejected, actorID)
}

// FulfillSupplyOrder executes the transfer: each part line moves from the
// parts supply station to the target workstation as a SUPPLY_TRANSFER
// pair. A short supply station rejects the whole transfer.
func (e Engine) FulfillSupplyOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderSupply)
	if err != nil {
		return domain.Order{}, err
	}
	if err := ensureTransition(o.Type, o.Status, domain.StatusFulfilled); err != nil {
		return domain.Order{}, err
	}
	if o.WorkstationID == nil {
		return domain.Order{}, fmt.Errorf("supply order %s has no target workstation", o.Number)
	}
	target := *o.WorkstationID
	for i, l := range o.Lines {
		if _, err := e.adjustTx(ctx, tx, AdjustOptions{
			WorkstationID: domain.WSPartsSupply,
			ItemType:      domain.ItemPart,
			ItemID:        l.ItemID,
			Delta:         -l.RequestedQty,
			ReasonCode:    domain.ReasonSupplyTransfer,
			OrderRef:      o.Number,
			ActorID:       actorID,
		}); err != nil {
			return domain.Order{}, err
		}
		if _, err := e.adjustTx(ctx, tx, AdjustOptions{
			WorkstationID: target,
			ItemType:      domain.ItemPart,
			ItemID:        l.ItemID,
			Delta:         l.RequestedQty,
			ReasonCode:    domain.ReasonSupplyTransfer,
			OrderRef:      o.Number,
			ActorID:       actorID,
		}); err != nil {
			return domain.Order{}, err
		}
		if err := e.Repo.SetLineFulfilledTx(ctx, tx, o.ID, l.ItemType, l.ItemID, l.RequestedQty); err != nil {
			return domain.Order{}, err
		}
		o.Lines[i].FulfilledQty = l.RequestedQty
	}
	if err := e.transitionTx(ctx, tx, &o, domain.StatusFulfilled, actorID); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}
