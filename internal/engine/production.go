package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"factoryline/internal/domain"
	"factoryline/internal/events"
)

// CreateProductionOrder opens a standalone production order for module
// manufacturing. Orders spawned by warehouse confirmation carry the parent
// reference instead.
func (e Engine) CreateProductionOrder(ctx context.Context, priority, requestedBy, notes string, lines []LineInput) (domain.Order, error) {
	if err := validateLines(lines, domain.ItemModule); err != nil {
		return domain.Order{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
		Type:        domain.OrderProduction,
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

// ConfirmProductionOrder moves CREATED to CONFIRMED.
func (e Engine) ConfirmProductionOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.simpleTransition(ctx, id, domain.OrderProduction, domain.StatusConfirmed, actorID)
}

// ScheduleProductionOrder marks a confirmed order ready for dispatch.
func (e Engine) ScheduleProductionOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.simpleTransition(ctx, id, domain.OrderProduction, domain.StatusScheduled, actorID)
}

// CancelProductionOrder cancels the order from any pre-terminal status.
func (e Engine) CancelProductionOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.simpleTransition(ctx, id, domain.OrderProduction, domain.StatusCancelled, actorID)
}

// DispatchProductionOrder asks the scheduler for a task plan and hands the
// work to production control.
//
// The scheduler call happens outside any transaction: a slow or failing
// scheduler must not hold database locks, and on failure the order stays
// SCHEDULED so dispatch can simply be retried. Once a plan comes back the
// write transaction re-checks the status, stores the plan, moves the order
// to DISPATCHED and opens one production-control order per target
// workstation with that workstation's module lines.
func (e Engine) DispatchProductionOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	if e.Scheduler == nil {
		return domain.Order{}, fmt.Errorf("%w: no scheduler configured", ErrSchedulerUnavailable)
	}
	o, err := e.Repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Type != domain.OrderProduction {
		return domain.Order{}, fmt.Errorf("order %s is a %s order, not %s", id, o.Type, domain.OrderProduction)
	}
	if o.Status != domain.StatusScheduled {
		return domain.Order{}, fmt.Errorf("%w: production order %s -> dispatch", ErrIllegalTransition, o.Status)
	}

	sched, err := e.Scheduler.Propose(ctx, o)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrSchedulerUnavailable, err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	// Re-read under the transaction: someone may have moved the order
	// while the scheduler was thinking.
	o, err = e.loadOrderTx(ctx, tx, id, domain.OrderProduction)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.StatusScheduled {
		return domain.Order{}, fmt.Errorf("%w: production order %s -> dispatch", ErrIllegalTransition, o.Status)
	}
	tasksJSON, err := json.Marshal(sched.Tasks)
	if err != nil {
		return domain.Order{}, fmt.Errorf("encode schedule tasks: %w", err)
	}
	if err := e.Repo.UpsertScheduleTx(ctx, tx, o.ID, sched.ProposedAt, string(tasksJSON)); err != nil {
		return domain.Order{}, fmt.Errorf("store schedule: %w", err)
	}
	if err := e.transitionTx(ctx, tx, &o, domain.StatusDispatched, actorID); err != nil {
		return domain.Order{}, err
	}

	// One control order per workstation, in workstation order.
	byWS := map[int][]LineInput{}
	var wsOrder []int
	for _, t := range sched.Tasks {
		if _, ok := byWS[t.WorkstationID]; !ok {
			wsOrder = append(wsOrder, t.WorkstationID)
		}
		byWS[t.WorkstationID] = append(byWS[t.WorkstationID], LineInput{ItemType: t.ItemType, ItemID: t.ItemID, Quantity: t.Quantity})
	}
	for _, ws := range wsOrder {
		wsCopy := ws
		child, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
			Type:          domain.OrderProductionControl,
			Priority:      o.Priority,
			ParentID:      &o.ID,
			WorkstationID: &wsCopy,
			RequestedBy:   actorID,
			Notes:         fmt.Sprintf("for production order %s", o.Number),
			Lines:         byWS[ws],
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("spawn control order for workstation %d: %w", ws, err)
		}
		_ = child
	}
	if err := e.Events.Append(ctx, tx, "production_order.plan_stored", e.plantID(), "order", o.ID, actorID, events.EventPayload{
		"number": o.Number,
		"tasks":  len(sched.Tasks),
	}); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// simpleTransition is the shared single-status move with no side effects.
func (e Engine) simpleTransition(ctx context.Context, id, orderType, to, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadOrderTx(ctx, tx, id, orderType)
	if err != nil {
		return domain.Order{}, err
	}
	if err := e.transitionTx(ctx, tx, &o, to, actorID); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}
