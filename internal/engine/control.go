package engine

import (
	"context"
	"database/sql"
	"fmt"

	"factoryline/internal/domain"
	"factoryline/internal/events"
)

// isControlType reports whether the family uses the control state machine.
func isControlType(orderType string) bool {
	return orderType == domain.OrderProductionControl || orderType == domain.OrderAssemblyControl
}

// CreateControlOrder opens a standalone control order on a workstation.
// Production-control orders are normally spawned by dispatch; assembly
// control uses this entry point to coordinate work at final assembly.
func (e Engine) CreateControlOrder(ctx context.Context, orderType, priority string, workstationID int, requestedBy, notes string, lines []LineInput) (domain.Order, error) {
	if !isControlType(orderType) {
		return domain.Order{}, fmt.Errorf("invalid control order type %q", orderType)
	}
	if err := validateLines(lines, domain.ItemModule); err != nil {
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
		Type:          orderType,
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

func (e Engine) loadControlOrderTx(ctx context.Context, tx *sql.Tx, id string) (domain.Order, error) {
	o, err := e.Repo.GetOrderTx(ctx, tx, id)
	if err != nil {
		return o, err
	}
	if !isControlType(o.Type) {
		return o, fmt.Errorf("order %s is a %s order, not a control order", id, o.Type)
	}
	return o, nil
}

// AssignControlOrder puts the order in an operator's hands.
func (e Engine) AssignControlOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.controlTransition(ctx, id, domain.StatusAssigned, actorID)
}

// HaltControlOrder pauses running work.
func (e Engine) HaltControlOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.controlTransition(ctx, id, domain.StatusHalted, actorID)
}

// ResumeControlOrder restarts halted work.
func (e Engine) ResumeControlOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.controlTransition(ctx, id, domain.StatusInProgress, actorID)
}

// AbandonControlOrder drops the order before or between active work.
func (e Engine) AbandonControlOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	return e.controlTransition(ctx, id, domain.StatusAbandoned, actorID)
}

func (e Engine) controlTransition(ctx context.Context, id, to, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadControlOrderTx(ctx, tx, id)
	if err != nil {
		return domain.Order{}, err
	}
	// Resume is IN_PROGRESS from HALTED only; a fresh start goes through
	// StartControlOrder so the supply gate applies.
	if to == domain.StatusInProgress && o.Status != domain.StatusHalted {
		return domain.Order{}, fmt.Errorf("%w: %s order %s -> resume", ErrIllegalTransition, o.Type, o.Status)
	}
	if err := e.transitionTx(ctx, tx, &o, to, actorID); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// StartControlOrder moves an assigned order into active work. Starting is
// gated on supply: any open supply request for this order blocks the
// start. On start, one workstation order per line is opened so operators
// track each module batch separately. The first control order to start
// also moves its dispatched production order into IN_PRODUCTION.
func (e Engine) StartControlOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadControlOrderTx(ctx, tx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.StatusAssigned {
		return domain.Order{}, fmt.Errorf("%w: %s order %s -> start", ErrIllegalTransition, o.Type, o.Status)
	}
	supplies, err := e.Repo.ListChildrenTx(ctx, tx, o.ID, domain.OrderSupply)
	if err != nil {
		return domain.Order{}, err
	}
	for _, s := range supplies {
		if s.Status == domain.StatusPending || s.Status == domain.StatusInProgress {
			return domain.Order{}, fmt.Errorf("%w: supply order %s is still %s", ErrIllegalTransition, s.Number, s.Status)
		}
	}
	if err := e.transitionTx(ctx, tx, &o, domain.StatusInProgress, actorID); err != nil {
		return domain.Order{}, err
	}
	for _, l := range o.Lines {
		child, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
			Type:          domain.OrderWorkstation,
			Priority:      o.Priority,
			ParentID:      &o.ID,
			WorkstationID: o.WorkstationID,
			RequestedBy:   actorID,
			Notes:         fmt.Sprintf("for control order %s", o.Number),
			Lines:         []LineInput{{ItemType: l.ItemType, ItemID: l.ItemID, Quantity: l.RequestedQty}},
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("spawn workstation order: %w", err)
		}
		_ = child
	}
	if o.Type == domain.OrderProductionControl && o.ParentID != nil {
		parent, err := e.Repo.GetOrderTx(ctx, tx, *o.ParentID)
		if err != nil {
			return domain.Order{}, err
		}
		if parent.Type == domain.OrderProduction && parent.Status == domain.StatusDispatched {
			if err := e.transitionTx(ctx, tx, &parent, domain.StatusInProduction, actorID); err != nil {
				return domain.Order{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// RequestSupply opens a supply order for parts this control order's
// workstation is short on. Only allowed before work starts.
func (e Engine) RequestSupply(ctx context.Context, id, actorID string, lines []LineInput) (domain.Order, error) {
	if err := validateLines(lines, domain.ItemPart); err != nil {
		return domain.Order{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadControlOrderTx(ctx, tx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != domain.StatusPending && o.Status != domain.StatusAssigned {
		return domain.Order{}, fmt.Errorf("%w: %s order %s cannot request supply", ErrIllegalTransition, o.Type, o.Status)
	}
	supply, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
		Type:          domain.OrderSupply,
		Priority:      o.Priority,
		ParentID:      &o.ID,
		WorkstationID: o.WorkstationID,
		RequestedBy:   actorID,
		Notes:         fmt.Sprintf("for control order %s", o.Number),
		Lines:         lines,
	})
	if err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return supply, nil
}

// CompleteControlOrder closes the order once every workstation child is
// done, then moves the finished modules from the workstation to the
// modules supermarket as a REPLENISHMENT pair. The last production-control
// sibling to complete also completes the production order and opens the
// final assembly order for the finished modules.
func (e Engine) CompleteControlOrder(ctx context.Context, id, actorID string) (domain.Order, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer tx.Rollback()

	o, err := e.loadControlOrderTx(ctx, tx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if err := e.completeControlTx(ctx, tx, &o, actorID); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (e Engine) completeControlTx(ctx context.Context, tx *sql.Tx, o *domain.Order, actorID string) error {
	if o.Status != domain.StatusInProgress {
		return fmt.Errorf("%w: %s order %s -> complete", ErrIllegalTransition, o.Type, o.Status)
	}
	children, err := e.Repo.ListChildrenTx(ctx, tx, o.ID, domain.OrderWorkstation)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.Status != domain.StatusCompleted {
			return fmt.Errorf("%w: workstation order %s is %s, not COMPLETED", ErrIllegalTransition, c.Number, c.Status)
		}
	}
	ws := domain.WSProductionControl
	if o.WorkstationID != nil {
		ws = *o.WorkstationID
	}
	for i, l := range o.Lines {
		if _, err := e.adjustTx(ctx, tx, AdjustOptions{
			WorkstationID: ws,
			ItemType:      domain.ItemModule,
			ItemID:        l.ItemID,
			Delta:         -l.RequestedQty,
			ReasonCode:    domain.ReasonReplenishment,
			OrderRef:      o.Number,
			ActorID:       actorID,
		}); err != nil {
			return err
		}
		if _, err := e.adjustTx(ctx, tx, AdjustOptions{
			WorkstationID: domain.WSModulesSupermkt,
			ItemType:      domain.ItemModule,
			ItemID:        l.ItemID,
			Delta:         l.RequestedQty,
			ReasonCode:    domain.ReasonReplenishment,
			OrderRef:      o.Number,
			ActorID:       actorID,
		}); err != nil {
			return err
		}
		if err := e.Repo.SetLineFulfilledTx(ctx, tx, o.ID, l.ItemType, l.ItemID, l.RequestedQty); err != nil {
			return err
		}
		o.Lines[i].FulfilledQty = l.RequestedQty
	}
	if err := e.transitionTx(ctx, tx, o, domain.StatusCompleted, actorID); err != nil {
		return err
	}
	if o.Type == domain.OrderProductionControl && o.ParentID != nil {
		if err := e.completeProductionIfDone(ctx, tx, *o.ParentID, actorID); err != nil {
			return err
		}
	}
	return nil
}

// completeProductionIfDone checks whether every control order of a
// production order has landed in a terminal status, and if all of them
// completed, closes the production order and opens the final assembly
// order at the final assembly station. The assembly order's parent is the
// warehouse order that asked for the production when one exists, so
// submission can unblock it directly.
func (e Engine) completeProductionIfDone(ctx context.Context, tx *sql.Tx, productionID, actorID string) error {
	parent, err := e.Repo.GetOrderTx(ctx, tx, productionID)
	if err != nil {
		return err
	}
	if parent.Type != domain.OrderProduction || parent.Status != domain.StatusInProduction {
		return nil
	}
	siblings, err := e.Repo.ListChildrenTx(ctx, tx, parent.ID, domain.OrderProductionControl)
	if err != nil {
		return err
	}
	for _, s := range siblings {
		switch s.Status {
		case domain.StatusCompleted:
		case domain.StatusAbandoned:
			// Abandoned work never produces; the production order stays
			// open for manual resolution.
			return nil
		default:
			return nil
		}
	}
	if err := e.transitionTx(ctx, tx, &parent, domain.StatusCompleted, actorID); err != nil {
		return err
	}

	assemblyParent := parent.ID
	if parent.ParentID != nil {
		assemblyParent = *parent.ParentID
	}
	ws := domain.WSFinalAssembly
	productLines := make([]LineInput, 0, len(parent.Lines))
	for _, l := range parent.Lines {
		productLines = append(productLines, LineInput{ItemType: domain.ItemProduct, ItemID: l.ItemID, Quantity: l.RequestedQty})
	}
	fa, err := e.createOrderTx(ctx, tx, CreateOrderOptions{
		Type:          domain.OrderFinalAssembly,
		Priority:      parent.Priority,
		ParentID:      &assemblyParent,
		WorkstationID: &ws,
		RequestedBy:   actorID,
		Notes:         fmt.Sprintf("for production order %s", parent.Number),
		Lines:         productLines,
	})
	if err != nil {
		return fmt.Errorf("spawn final assembly order: %w", err)
	}
	return e.Events.Append(ctx, tx, "production_order.assembly_opened", e.plantID(), "order", parent.ID, actorID, events.EventPayload{
		"number":   parent.Number,
		"assembly": fa.Number,
	})
}
