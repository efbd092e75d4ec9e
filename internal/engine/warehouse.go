package engine

import (
	"context"
	"fmt"

	"factoryline/internal/domain"
	"factoryline/internal/events"
	"factoryline/internal/scenario"
)

// CreateWarehouseOrder opens a standalone warehouse order. Orders spawned
// by customer confirmation go through createOrderTx directly and carry the
// parent reference.
func (e Engine) CreateWarehouseOrder(ctx context.Context, priority, requestedBy, notes string, lines []LineInput) (domain.Order, error) {
	if err := validateLines(lines, domain.ItemProduct); err != nil {
		return domain.Order{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
		Type:        domain.OrderWarehouse,
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

// ConfirmWarehouseOrder reclassifies the order against current stock.
// When production is needed it spawns a child production order for the
// matching modules and parks the warehouse order in AWAITING_PRODUCTION;
// otherwise the order stays CONFIRMED, ready to fulfill from the modules
// supermarket.
func (e Engine) ConfirmWarehouseOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderWarehouse)
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
	if err := e.Events.Append(ctx, tx, "warehouse_order.classified", e.plantID(), "order", o.ID, actorID, events.EventPayload{
		"number":   o.Number,
		"scenario": o.Scenario,
	}); err != nil {
		return domain.Order{}, err
	}

	if o.Scenario == domain.ScenarioProductionRequired || o.Scenario == domain.ScenarioDirectProduction {
		// Module demand mirrors the product lines one to one.
		moduleLines := make([]LineInput, 0, len(o.Lines))
		for _, l := range o.Lines {
			moduleLines = append(moduleLines, LineInput{ItemType: domain.ItemModule, ItemID: l.ItemID, Quantity: l.RequestedQty})
		}
		child, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
			Type:        domain.OrderProduction,
			Priority:    o.Priority,
			ParentID:    &o.ID,
			RequestedBy: actorID,
			Notes:       fmt.Sprintf("for warehouse order %s", o.Number),
			Lines:       moduleLines,
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("spawn production order: %w", err)
		}
		_ = child
		if err := e.transitionTx(ctx, tx, &o, domain.StatusAwaitingProduction, actorID); err != nil {
			return domain.Order{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// FulfillWarehouseOrder closes out the warehouse order.
//
// From CONFIRMED the modules are still on the shelf: each product line
// pulls its module from the supermarket and lands the finished product in
// plant warehouse stock as a REPLENISHMENT pair.
//
// From MODULES_READY the finished products were already credited to the
// plant warehouse when final assembly submitted, so this only marks the
// lines fulfilled and completes the order.
func (e Engine) FulfillWarehouseOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, domain.OrderWarehouse)
	if err != nil {
		return domain.Order{}, err
	}
	fromConfirmed := o.Status == domain.StatusConfirmed
	if err := ensureTransition(o.Type, o.Status, domain.StatusFulfilled); err != nil {
		return domain.Order{}, err
	}
	for i, l := range o.Lines {
		if fromConfirmed {
			if _, err := e.adjustTx(ctx, tx, AdjustOptions{
				WorkstationID: domain.WSModulesSupermkt,
				ItemType:      domain.ItemModule,
				ItemID:        l.ItemID,
				Delta:         -l.RequestedQty,
				ReasonCode:    domain.ReasonReplenishment,
				OrderRef:      o.Number,
				ActorID:       actorID,
			}); err != nil {
				return domain.Order{}, err
			}
			if _, err := e.adjustTx(ctx, tx, AdjustOptions{
				WorkstationID: domain.WSPlantWarehouse,
				ItemType:      domain.ItemProduct,
				ItemID:        l.ItemID,
				Delta:         l.RequestedQty,
				ReasonCode:    domain.ReasonReplenishment,
				OrderRef:      o.Number,
				ActorID:       actorID,
			}); err != nil {
				return domain.Order{}, err
			}
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
