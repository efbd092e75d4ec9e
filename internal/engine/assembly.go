package engine

import (
	"context"

	"factoryline/internal/domain"
)

// CreateFinalAssemblyOrder opens a standalone final assembly order at the
// final assembly station. Orders spawned by production completion carry
// the warehouse (or production) parent instead.
func (e Engine) CreateFinalAssemblyOrder(ctx context.Context, priority, requestedBy, notes string, lines []LineInput) (domain.Order, error) {
	if err := validateLines(lines, domain.ItemProduct); err != nil {
		return domain.Order{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	ws := domain.WSFinalAssembly
	o, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
		Type:          domain.OrderFinalAssembly,
		Priority:      priority,
		WorkstationID: &ws,
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

// ConfirmFinalAssemblyOrder acknowledges the assembly job.
func (e Engine) ConfirmFinalAssemblyOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.simpleTransition(ctx, id, domain.OrderFinalAssembly, domain.StatusConfirmed, actorID)
}

// StartFinalAssemblyOrder begins assembly: each product line pulls its
// module from the modules supermarket, so a short supermarket rejects the
// start and nothing moves.
func (e Engine) StartFinalAssemblyOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderFinalAssembly)
	if err != nil {
		return domain.Order{}, err
	}
	if err := ensureTransition(o.Type, o.Status, domain.StatusInProgress); err != nil {
		return domain.Order{}, err
	}
	for _, l := range o.Lines {
		if _, err := e.adjustTx(ctx, tx, AdjustOptions{
			WorkstationID: domain.WSModulesSupermkt,
			ItemType:      domain.ItemModule,
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

// CompleteFinalAssemblyOrder marks the assembly work done. No stock moves
// here: the finished products only enter warehouse stock on submit.
func (e Engine) CompleteFinalAssemblyOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.simpleTransition(ctx, id, domain.OrderFinalAssembly, domain.StatusCompleted, actorID)
}

// SubmitFinalAssemblyOrder hands the finished products over: each line is
// credited to plant warehouse stock as PRODUCTION_COMPLETE. When the
// order's parent is a warehouse order waiting on production and every
// assembly sibling has submitted, the warehouse order moves to
// MODULES_READY.
func (e Engine) SubmitFinalAssemblyOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderFinalAssembly)
	if err != nil {
		return domain.Order{}, err
	}
	if err := ensureTransition(o.Type, o.Status, domain.StatusSubmitted); err != nil {
		return domain.Order{}, err
	}
	for i, l := range o.Lines {
		if _, err := e.adjustTx(ctx, tx, AdjustOptions{
			WorkstationID: domain.WSPlantWarehouse,
			ItemType:      domain.ItemProduct,
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
	if err := e.transitionTx(ctx, tx, &o, domain.StatusSubmitted, actorID); err != nil {
		return domain.Order{}, err
	}

	if o.ParentID != nil {
		parent, err := e.Repo.GetOrderTx(ctx, tx, *o.ParentID)
		if err != nil {
			return domain.Order{}, err
		}
		if parent.Type == domain.OrderWarehouse && parent.Status == domain.StatusAwaitingProduction {
			siblings, err := e.Repo.ListChildrenTx(ctx, tx, parent.ID, domain.OrderFinalAssembly)
			if err != nil {
				return domain.Order{}, err
			}
			allSubmitted := true
			for _, s := range siblings {
				if s.Status != domain.StatusSubmitted {
					allSubmitted = false
					break
				}
			}
			if allSubmitted {
				if err := e.transitionTx(ctx, tx, &parent, domain.StatusModulesReady, actorID); err != nil {
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
