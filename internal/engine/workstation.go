package engine

import (
	"context"
	"errors"
	"fmt"

	"factoryline/internal/domain"
	"factoryline/internal/repo"
)

// StartWorkstationOrder begins a module batch. Each module unit consumes
// one matching part, so the workstation must hold at least the requested
// quantity of parts before work starts; a short station is parked in
// WAITING_FOR_PARTS and the start is rejected. A sufficient start debits
// the parts immediately.
func (e Engine) StartWorkstationOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderWorkstation)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.StatusPending && o.Status != domain.StatusWaitingForParts {
		return domain.Order{}, fmt.Errorf("%w: workstation order %s -> start", ErrIllegalTransition, o.Status)
	}
	if o.WorkstationID == nil {
		return domain.Order{}, fmt.Errorf("workstation order %s has no workstation", o.Number)
	}
	ws := *o.WorkstationID

	for _, l := range o.Lines {
		rec, err := e.Repo.GetStockTx(ctx, tx, ws, domain.ItemPart, l.ItemID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return domain.Order{}, err
		}
		have := 0
		if err == nil {
			have = rec.Quantity
		}
		if have < l.RequestedQty {
			if o.Status == domain.StatusPending {
				if err := e.transitionTx(ctx, tx, &o, domain.StatusWaitingForParts, actorID); err != nil {
					return domain.Order{}, err
				}
				if err := tx.Commit(); err != nil {
					return domain.Order{}, err
				}
			}
			return o, fmt.Errorf("%w: workstation %d part %d holds %d, need %d",
				ErrInsufficientStock, ws, l.ItemID, have, l.RequestedQty)
		}
	}
	for _, l := range o.Lines {
		if _, err := e.adjustTx(ctx, tx, AdjustOptions{
			WorkstationID: ws,
			ItemType:      domain.ItemPart,
			ItemID:        l.ItemID,
			Delta:         -l.RequestedQty,
			ReasonCode:    domain.ReasonFulfillment,
			OrderRef:      o.Number,
			ActorID:       actorID,
		}); err != nil {
			return domain.Order{}, err
		}
	}
	if err := e.transitionTx(ctx, tx, &o, domain.StatusInProgress, actorID); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// HaltWorkstationOrder pauses a running batch.
func (e Engine) HaltWorkstationOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.simpleTransition(ctx, id, domain.OrderWorkstation, domain.StatusHalted, actorID)
}

// ResumeWorkstationOrder restarts a halted batch. Parts were already
// consumed on the original start, so no further stock gate applies.
func (e Engine) ResumeWorkstationOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderWorkstation)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.StatusHalted {
		return domain.Order{}, fmt.Errorf("%w: workstation order %s -> resume", ErrIllegalTransition, o.Status)
	}
	if err := e.transitionTx(ctx, tx, &o, domain.StatusInProgress, actorID); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// CompleteWorkstationOrder finishes the batch: the produced modules are
// credited to the workstation's own stock with a PRODUCTION_COMPLETE
// entry. If this was the last open workstation order under its control
// order, the control order completes too and its modules move to the
// supermarket.
func (e Engine) CompleteWorkstationOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderWorkstation)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.StatusInProgress {
		return domain.Order{}, fmt.Errorf("%w: workstation order %s -> complete", ErrIllegalTransition, o.Status)
	}
	if o.WorkstationID == nil {
		return domain.Order{}, fmt.Errorf("workstation order %s has no workstation", o.Number)
	}
	ws := *o.WorkstationID
	for i, l := range o.Lines {
		if _, err := e.adjustTx(ctx, tx, AdjustOptions{
			WorkstationID: ws,
			ItemType:      domain.ItemModule,
			ItemID:        l.ItemID,
			Delta:         l.RequestedQty,
			ReasonCode:    domain.ReasonProductionComplete,
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
	if err := e.transitionTx(ctx, tx, &o, domain.StatusCompleted, actorID); err != nil {
		return domain.Order{}, err
	}

	if o.ParentID != nil {
		parent, err := e.Repo.GetOrderTx(ctx, tx, *o.ParentID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return domain.Order{}, err
		}
		if err == nil && isControlType(parent.Type) && parent.Status == domain.StatusInProgress {
			siblings, err := e.Repo.ListChildrenTx(ctx, tx, parent.ID, domain.OrderWorkstation)
			if err != nil {
				return domain.Order{}, err
			}
			allDone := true
			for _, s := range siblings {
				if s.Status != domain.StatusCompleted {
					allDone = false
					break
				}
			}
			if allDone {
				if err := e.completeControlTx(ctx, tx, &parent, actorID); err != nil {
					return domain.Order{}, err
				}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}
