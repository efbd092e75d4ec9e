package engine

import (
	"context"
	"fmt"

	"factoryline/internal/domain"
	"factoryline/internal/events"
	"factoryline/internal/scenario"
)

// CreateCustomerOrder opens a new customer order in PENDING with the
// requested product lines.
func (e Engine) CreateCustomerOrder(ctx context.Context, priority, requestedBy, notes string, lines []LineInput) (domain.Order, error) {
	if err := validateLines(lines, domain.ItemProduct); err != nil {
		return domain.Order{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
		Type:        domain.OrderCustomer,
		Priority:    priority,
		RequestedBy: requestedBy,
		Notes:       notes,
		Lines:       lines,
	})
	if err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// ConfirmCustomerOrder classifies the order against the current plant
// stock and routes it. A DIRECT_FULFILLMENT order stays CONFIRMED and
// waits for an explicit fulfill; every other scenario moves the order to
// PROCESSING and spawns a child warehouse order carrying the same lines.
func (e Engine) ConfirmCustomerOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderCustomer)
	if err != nil {
		return domain.Order{}, err
	}
	if err := e.transitionTx(ctx, tx, &o, domain.StatusConfirmed, actorID); err != nil {
		return domain.Order{}, err
	}
	snap, err := e.stockSnapshotTx(ctx, tx)
	if err != nil {
		return domain.Order{}, err
	}
	o.Scenario = scenario.Classify(scenarioLines(o.Lines), snap, e.lotSizeThreshold())
	if err := e.Repo.UpdateOrderTx(ctx, tx, o); err != nil {
		return domain.Order{}, fmt.Errorf("store scenario: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "customer_order.classified", e.plantID(), "order", o.ID, actorID, events.EventPayload{
		"number":   o.Number,
		"scenario": o.Scenario,
	}); err != nil {
		return domain.Order{}, err
	}

	if o.Scenario != domain.ScenarioDirectFulfillment {
		if err := e.transitionTx(ctx, tx, &o, domain.StatusProcessing, actorID); err != nil {
			return domain.Order{}, err
		}
		child, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
			Type:        domain.OrderWarehouse,
			Priority:    o.Priority,
			ParentID:    &o.ID,
			RequestedBy: actorID,
			Notes:       fmt.Sprintf("for customer order %s", o.Number),
			Lines:       lineInputs(o.Lines),
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("spawn warehouse order: %w", err)
		}
		_ = child
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// FulfillCustomerOrder ships a CONFIRMED direct-fulfillment order: each
// line is debited from plant warehouse stock with a FULFILLMENT ledger
// entry, then the order completes. Any short line rolls the whole thing
// back.
func (e Engine) FulfillCustomerOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderCustomer)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.StatusConfirmed {
		return domain.Order{}, fmt.Errorf("%w: customer order %s -> fulfill", ErrIllegalTransition, o.Status)
	}
	for i, l := range o.Lines {
		if _, err := e.adjustTx(ctx, tx, AdjustOptions{
			WorkstationID: domain.WSPlantWarehouse,
			ItemType:      l.ItemType,
			ItemID:        l.ItemID,
			Delta:         -l.RequestedQty,
			ReasonCode:    domain.ReasonFulfillment,
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
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// CompleteCustomerOrder closes a PROCESSING order once its warehouse
// children are fulfilled, shipping the products out of plant warehouse
// stock.
func (e Engine) CompleteCustomerOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderCustomer)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.StatusProcessing {
		return domain.Order{}, fmt.Errorf("%w: customer order %s -> complete", ErrIllegalTransition, o.Status)
	}
	children, err := e.Repo.ListChildrenTx(ctx, tx, o.ID, domain.OrderWarehouse)
	if err != nil {
		return domain.Order{}, err
	}
	if len(children) == 0 {
		return domain.Order{}, fmt.Errorf("%w: customer order %s has no warehouse order yet", ErrIllegalTransition, o.Number)
	}
	for _, c := range children {
		if c.Status != domain.StatusFulfilled {
			return domain.Order{}, fmt.Errorf("%w: warehouse order %s is %s, not FULFILLED", ErrIllegalTransition, c.Number, c.Status)
		}
	}
	for i, l := range o.Lines {
		if _, err := e.adjustTx(ctx, tx, AdjustOptions{
			WorkstationID: domain.WSPlantWarehouse,
			ItemType:      l.ItemType,
			ItemID:        l.ItemID,
			Delta:         -l.RequestedQty,
			ReasonCode:    domain.ReasonFulfillment,
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
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// CancelCustomerOrder cancels a PENDING or CONFIRMED order. Once
// downstream work exists (PROCESSING and beyond) the order can only run
// to completion.
func (e Engine) CancelCustomerOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderCustomer)
	if err != nil {
		return domain.Order{}, err
	}
	if err := e.transitionTx(ctx, tx, &o, domain.StatusCancelled, actorID); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func lineInputs(lines []domain.OrderLine) []LineInput {
	res := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		res = append(res, LineInput{ItemType: l.ItemType, ItemID: l.ItemID, Quantity: l.RequestedQty})
	}
	return res
}
