package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"factoryline/internal/domain"
	"factoryline/internal/events"
	"factoryline/internal/repo"
	"factoryline/internal/scenario"
)

// LineInput is one requested order line.
type LineInput struct {
	ItemType string `json:"item_type" enum:"PRODUCT,MODULE,PART"`
	ItemID   int    `json:"item_id" minimum:"1"`
	Quantity int    `json:"quantity" minimum:"1"`
}

// CreateOrderOptions are the caller-supplied parts of a new order.
type CreateOrderOptions struct {
	Type          string
	Priority      string
	ParentID      *string
	WorkstationID *int
	RequestedBy   string
	Notes         string
	Lines         []LineInput
}

func validateLines(lines []LineInput, wantType string) error {
	if len(lines) == 0 {
		return fmt.Errorf("order needs at least one line")
	}
	seen := map[[2]any]bool{}
	for _, l := range lines {
		if !domain.ValidItemType(l.ItemType) {
			return fmt.Errorf("invalid item type %q", l.ItemType)
		}
		if wantType != "" && l.ItemType != wantType {
			return fmt.Errorf("line item type must be %s, got %s", wantType, l.ItemType)
		}
		if l.ItemID < 1 {
			return fmt.Errorf("invalid item id %d", l.ItemID)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("line quantity must be positive, got %d", l.Quantity)
		}
		key := [2]any{l.ItemType, l.ItemID}
		if seen[key] {
			return fmt.Errorf("duplicate line for %s %d", l.ItemType, l.ItemID)
		}
		seen[key] = true
	}
	return nil
}

func toOrderLines(lines []LineInput) []domain.OrderLine {
	res := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		res = append(res, domain.OrderLine{ItemType: l.ItemType, ItemID: l.ItemID, RequestedQty: l.Quantity})
	}
	return res
}

// createOrderTx builds and inserts an order inside the caller's tx, burns a
// number off the family sequence, and appends the created event.
func (e Engine) createOrderTx(ctx context.Context, tx *sql.Tx, opts CreateOrderOptions) (domain.Order, error) {
	if opts.Priority == "" {
		opts.Priority = domain.PriorityNormal
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Order{}, fmt.Errorf("invalid priority %q", opts.Priority)
	}
	number, err := e.Repo.NextOrderNumber(ctx, tx, opts.Type, orderNumberPrefix(opts.Type))
	if err != nil {
		return domain.Order{}, fmt.Errorf("next order number: %w", err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	o := domain.Order{
		ID:            uuid.NewString(),
		Number:        number,
		Type:          opts.Type,
		Status:        initialStatus(opts.Type),
		Priority:      opts.Priority,
		ParentID:      opts.ParentID,
		WorkstationID: opts.WorkstationID,
		RequestedBy:   opts.RequestedBy,
		Notes:         opts.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
		Lines:         toOrderLines(opts.Lines),
	}
	if err := e.Repo.InsertOrderTx(ctx, tx, o); err != nil {
		return domain.Order{}, fmt.Errorf("insert %s order: %w", o.Type, err)
	}
	if err := e.Events.Append(ctx, tx, o.Type+".created", e.plantID(), "order", o.ID, opts.RequestedBy, events.EventPayload{
		"number": o.Number,
		"status": o.Status,
	}); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

// loadOrderTx fetches an order and checks it belongs to the expected family.
func (e Engine) loadOrderTx(ctx context.Context, tx *sql.Tx, id, orderType string) (domain.Order, error) {
	o, err := e.Repo.GetOrderTx(ctx, tx, id)
	if err != nil {
		return o, err
	}
	if o.Type != orderType {
		return o, fmt.Errorf("%w: order %s is a %s order, not %s", repo.ErrNotFound, id, o.Type, orderType)
	}
	return o, nil
}

// transitionTx checks the family table, writes the status change and
// appends the matching event. Terminal timestamps are maintained here.
func (e Engine) transitionTx(ctx context.Context, tx *sql.Tx, o *domain.Order, to, actorID string) error {
	if err := ensureTransition(o.Type, o.Status, to); err != nil {
		return err
	}
	from := o.Status
	now := e.now().UTC().Format(time.RFC3339)
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case domain.StatusConfirmed:
		o.ConfirmedAt = &now
	case domain.StatusCompleted, domain.StatusFulfilled, domain.StatusSubmitted:
		o.CompletedAt = &now
	}
	if err := e.Repo.UpdateOrderTx(ctx, tx, *o); err != nil {
		return fmt.Errorf("update %s order: %w", o.Type, err)
	}
	return e.Events.Append(ctx, tx, o.Type+"."+statusEventName(to), e.plantID(), "order", o.ID, actorID, events.EventPayload{
		"number": o.Number,
		"from":   from,
		"to":     to,
	})
}

func statusEventName(status string) string {
	switch status {
	case domain.StatusConfirmed:
		return "confirmed"
	case domain.StatusProcessing:
		return "processing"
	case domain.StatusCompleted:
		return "completed"
	case domain.StatusCancelled:
		return "cancelled"
	case domain.StatusAwaitingProduction:
		return "awaiting_production"
	case domain.StatusModulesReady:
		return "modules_ready"
	case domain.StatusFulfilled:
		return "fulfilled"
	case domain.StatusScheduled:
		return "scheduled"
	case domain.StatusDispatched:
		return "dispatched"
	case domain.StatusInProduction:
		return "in_production"
	case domain.StatusAssigned:
		return "assigned"
	case domain.StatusInProgress:
		return "started"
	case domain.StatusHalted:
		return "halted"
	case domain.StatusAbandoned:
		return "abandoned"
	case domain.StatusWaitingForParts:
		return "waiting_for_parts"
	case domain.StatusSubmitted:
		return "submitted"
	case domain.StatusRejected:
		return "rejected"
	}
	return "status_changed"
}

// stockSnapshotTx reads the full stock table inside tx so classification
// and the fulfillment that follows see one consistent view.
func (e Engine) stockSnapshotTx(ctx context.Context, tx *sql.Tx) (scenario.Snapshot, error) {
	records, err := e.Repo.ListStockTx(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("read stock snapshot: %w", err)
	}
	return scenario.FromRecords(records), nil
}

func scenarioLines(lines []domain.OrderLine) []scenario.Line {
	res := make([]scenario.Line, 0, len(lines))
	for _, l := range lines {
		res = append(res, scenario.Line{ItemType: l.ItemType, ItemID: l.ItemID, Quantity: l.RequestedQty})
	}
	return res
}

func (e Engine) lotSizeThreshold() int {
	if e.Config != nil && e.Config.Orders.LotSizeThreshold > 0 {
		return e.Config.Orders.LotSizeThreshold
	}
	return 500
}

// partsWorkstationFor maps an item id onto its parts manufacturing
// workstation. Items cycle over workstations 1 through 4.
func partsWorkstationFor(itemID int) int {
	return domain.WSDrilling + (itemID-1)%4
}

// GetOrder returns one order with its lines.
func (e Engine) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return e.Repo.GetOrder(ctx, id)
}

// ListOrders returns orders matching the filters, urgent work first.
func (e Engine) ListOrders(ctx context.Context, f repo.OrderFilters) ([]domain.Order, error) {
	return e.Repo.ListOrders(ctx, f)
}

// GetSchedule returns the stored schedule proposal for a production order.
func (e Engine) GetSchedule(ctx context.Context, orderID string) (domain.Schedule, error) {
	proposedAt, tasksJSON, err := e.Repo.GetSchedule(ctx, orderID)
	if err != nil {
		return domain.Schedule{}, err
	}
	sched := domain.Schedule{OrderID: orderID, ProposedAt: proposedAt}
	if err := json.Unmarshal([]byte(tasksJSON), &sched.Tasks); err != nil {
		return domain.Schedule{}, fmt.Errorf("decode schedule tasks: %w", err)
	}
	return sched, nil
}
