package engine_test

import (
	"context"
	"errors"
	"testing"

	"factoryline/internal/domain"
	"factoryline/internal/engine"
	"factoryline/internal/repo"
)

func createCustomerOrder(t *testing.T, env testEnv, lines []engine.LineInput) domain.Order {
	t.Helper()
	o, err := env.Engine.CreateCustomerOrder(env.Ctx, domain.PriorityNormal, "tester", "", lines)
	if err != nil {
		t.Fatalf("create customer order: %v", err)
	}
	return o
}

func TestCustomerOrderDirectFulfillment(t *testing.T) {
	env := newTestEnv(t)
	mustAdjust(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 1, 50)

	o := createCustomerOrder(t, env, []engine.LineInput{{ItemType: domain.ItemProduct, ItemID: 1, Quantity: 5}})
	o, err := env.Engine.ConfirmCustomerOrder(env.Ctx, o.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if o.Scenario != domain.ScenarioDirectFulfillment {
		t.Fatalf("scenario = %s, want DIRECT_FULFILLMENT", o.Scenario)
	}
	if o.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", o.Status)
	}

	o, err = env.Engine.FulfillCustomerOrder(env.Ctx, o.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", o.Status)
	}
	if q := stockQty(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 1); q != 45 {
		t.Fatalf("warehouse stock = %d, want 45", q)
	}
	entries, err := env.Engine.History(env.Ctx, repo.LedgerFilters{ItemType: domain.ItemProduct})
	if err != nil {
		t.Fatal(err)
	}
	last := entries[0]
	if last.Delta != -5 || last.BalanceAfter != 45 || last.ReasonCode != domain.ReasonFulfillment {
		t.Fatalf("last entry = %+v, want delta -5 balance 45 FULFILLMENT", last)
	}
	if last.OrderRef != o.Number {
		t.Fatalf("order ref = %s, want %s", last.OrderRef, o.Number)
	}
}

func TestCustomerOrderShortStockSpawnsWarehouseOrder(t *testing.T) {
	env := newTestEnv(t)
	// modules on the shelf, no finished products
	mustAdjust(t, env, domain.WSModulesSupermkt, domain.ItemModule, 1, 10)

	o := createCustomerOrder(t, env, []engine.LineInput{{ItemType: domain.ItemProduct, ItemID: 1, Quantity: 5}})
	o, err := env.Engine.ConfirmCustomerOrder(env.Ctx, o.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if o.Scenario != domain.ScenarioWarehouseOrderNeeded {
		t.Fatalf("scenario = %s, want WAREHOUSE_ORDER_NEEDED", o.Scenario)
	}
	if o.Status != domain.StatusProcessing {
		t.Fatalf("status = %s, want PROCESSING", o.Status)
	}
	children, err := env.Engine.ListOrders(env.Ctx, repo.OrderFilters{Type: domain.OrderWarehouse, ParentID: o.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 {
		t.Fatalf("warehouse children = %d, want 1", len(children))
	}
	if children[0].Status != domain.StatusPending {
		t.Fatalf("child status = %s, want PENDING", children[0].Status)
	}
}

func TestCustomerOrderLotSizeForcesDirectProduction(t *testing.T) {
	env := newTestEnv(t)
	// plenty of finished products, but the lot size wins
	mustAdjust(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 1, 2000)

	o := createCustomerOrder(t, env, []engine.LineInput{{ItemType: domain.ItemProduct, ItemID: 1, Quantity: 1000}})
	o, err := env.Engine.ConfirmCustomerOrder(env.Ctx, o.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if o.Scenario != domain.ScenarioDirectProduction {
		t.Fatalf("scenario = %s, want DIRECT_PRODUCTION", o.Scenario)
	}
}

func TestWarehouseOrderFulfillFromSupermarket(t *testing.T) {
	env := newTestEnv(t)
	mustAdjust(t, env, domain.WSModulesSupermkt, domain.ItemModule, 2, 8)

	o, err := env.Engine.CreateWarehouseOrder(env.Ctx, domain.PriorityNormal, "tester", "",
		[]engine.LineInput{{ItemType: domain.ItemProduct, ItemID: 2, Quantity: 3}})
	if err != nil {
		t.Fatal(err)
	}
	o, err = env.Engine.ConfirmWarehouseOrder(env.Ctx, o.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", o.Status)
	}
	o, err = env.Engine.FulfillWarehouseOrder(env.Ctx, o.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != domain.StatusFulfilled {
		t.Fatalf("status = %s, want FULFILLED", o.Status)
	}
	if q := stockQty(t, env, domain.WSModulesSupermkt, domain.ItemModule, 2); q != 5 {
		t.Fatalf("supermarket modules = %d, want 5", q)
	}
	if q := stockQty(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 2); q != 3 {
		t.Fatalf("warehouse products = %d, want 3", q)
	}
}

func TestIllegalTransitionsRejected(t *testing.T) {
	env := newTestEnv(t)
	o := createCustomerOrder(t, env, []engine.LineInput{{ItemType: domain.ItemProduct, ItemID: 1, Quantity: 1}})

	// fulfill before confirm
	if _, err := env.Engine.FulfillCustomerOrder(env.Ctx, o.ID, "tester"); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("want ErrIllegalTransition, got %v", err)
	}
	// complete before confirm
	if _, err := env.Engine.CompleteCustomerOrder(env.Ctx, o.ID, "tester"); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("want ErrIllegalTransition, got %v", err)
	}
	// cancel, then confirm the cancelled order
	if _, err := env.Engine.CancelCustomerOrder(env.Ctx, o.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ConfirmCustomerOrder(env.Ctx, o.ID, "tester"); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("want ErrIllegalTransition, got %v", err)
	}
}

// seedParts puts parts where the manufacturing workstations will need them.
func seedParts(t *testing.T, env testEnv, itemID, qty int) {
	t.Helper()
	ws := domain.WSDrilling + (itemID-1)%4
	mustAdjust(t, env, ws, domain.ItemPart, itemID, qty)
}

func TestProductionPipelineEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	seedParts(t, env, 1, 10)

	// nothing in stock -> confirming the customer order cascades into a
	// warehouse order, confirming that spawns production.
	co := createCustomerOrder(t, env, []engine.LineInput{{ItemType: domain.ItemProduct, ItemID: 1, Quantity: 4}})
	co, err := env.Engine.ConfirmCustomerOrder(env.Ctx, co.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if co.Scenario != domain.ScenarioProductionRequired {
		t.Fatalf("scenario = %s, want PRODUCTION_REQUIRED", co.Scenario)
	}
	whs, err := env.Engine.ListOrders(env.Ctx, repo.OrderFilters{Type: domain.OrderWarehouse, ParentID: co.ID})
	if err != nil || len(whs) != 1 {
		t.Fatalf("warehouse children: %v %d", err, len(whs))
	}
	wo, err := env.Engine.ConfirmWarehouseOrder(env.Ctx, whs[0].ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if wo.Status != domain.StatusAwaitingProduction {
		t.Fatalf("warehouse status = %s, want AWAITING_PRODUCTION", wo.Status)
	}

	pos, err := env.Engine.ListOrders(env.Ctx, repo.OrderFilters{Type: domain.OrderProduction, ParentID: wo.ID})
	if err != nil || len(pos) != 1 {
		t.Fatalf("production children: %v %d", err, len(pos))
	}
	po := pos[0]
	if po.Status != domain.StatusCreated {
		t.Fatalf("production status = %s, want CREATED", po.Status)
	}
	if po.Lines[0].ItemType != domain.ItemModule || po.Lines[0].RequestedQty != 4 {
		t.Fatalf("production line = %+v, want MODULE x4", po.Lines[0])
	}

	if po, err = env.Engine.ConfirmProductionOrder(env.Ctx, po.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if po, err = env.Engine.ScheduleProductionOrder(env.Ctx, po.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if po, err = env.Engine.DispatchProductionOrder(env.Ctx, po.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if po.Status != domain.StatusDispatched {
		t.Fatalf("production status = %s, want DISPATCHED", po.Status)
	}
	sched, err := env.Engine.GetSchedule(env.Ctx, po.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sched.Tasks) != 1 || sched.Tasks[0].WorkstationID != domain.WSDrilling {
		t.Fatalf("schedule = %+v, want one drilling task", sched.Tasks)
	}

	ctrls, err := env.Engine.ListOrders(env.Ctx, repo.OrderFilters{Type: domain.OrderProductionControl, ParentID: po.ID})
	if err != nil || len(ctrls) != 1 {
		t.Fatalf("control children: %v %d", err, len(ctrls))
	}
	ctrl := ctrls[0]
	if ctrl, err = env.Engine.AssignControlOrder(env.Ctx, ctrl.ID, "operator"); err != nil {
		t.Fatal(err)
	}
	if ctrl, err = env.Engine.StartControlOrder(env.Ctx, ctrl.ID, "operator"); err != nil {
		t.Fatal(err)
	}
	if ctrl.Status != domain.StatusInProgress {
		t.Fatalf("control status = %s, want IN_PROGRESS", ctrl.Status)
	}
	// starting the first control order pulls production into IN_PRODUCTION
	po, err = env.Engine.GetOrder(env.Ctx, po.ID)
	if err != nil || po.Status != domain.StatusInProduction {
		t.Fatalf("production status = %s, want IN_PRODUCTION (%v)", po.Status, err)
	}

	wsos, err := env.Engine.ListOrders(env.Ctx, repo.OrderFilters{Type: domain.OrderWorkstation, ParentID: ctrl.ID})
	if err != nil || len(wsos) != 1 {
		t.Fatalf("workstation children: %v %d", err, len(wsos))
	}
	wso := wsos[0]
	if wso, err = env.Engine.StartWorkstationOrder(env.Ctx, wso.ID, "operator"); err != nil {
		t.Fatal(err)
	}
	// parts were consumed on start
	if q := stockQty(t, env, domain.WSDrilling, domain.ItemPart, 1); q != 6 {
		t.Fatalf("parts at drilling = %d, want 6", q)
	}
	if wso, err = env.Engine.CompleteWorkstationOrder(env.Ctx, wso.ID, "operator"); err != nil {
		t.Fatal(err)
	}
	if wso.Status != domain.StatusCompleted {
		t.Fatalf("workstation status = %s, want COMPLETED", wso.Status)
	}

	// the last workstation order completed its control order, which moved
	// the modules to the supermarket and closed production, opening final
	// assembly under the warehouse order.
	ctrl, err = env.Engine.GetOrder(env.Ctx, ctrl.ID)
	if err != nil || ctrl.Status != domain.StatusCompleted {
		t.Fatalf("control status = %s, want COMPLETED (%v)", ctrl.Status, err)
	}
	if q := stockQty(t, env, domain.WSModulesSupermkt, domain.ItemModule, 1); q != 4 {
		t.Fatalf("supermarket modules = %d, want 4", q)
	}
	po, err = env.Engine.GetOrder(env.Ctx, po.ID)
	if err != nil || po.Status != domain.StatusCompleted {
		t.Fatalf("production status = %s, want COMPLETED (%v)", po.Status, err)
	}

	fas, err := env.Engine.ListOrders(env.Ctx, repo.OrderFilters{Type: domain.OrderFinalAssembly, ParentID: wo.ID})
	if err != nil || len(fas) != 1 {
		t.Fatalf("assembly children: %v %d", err, len(fas))
	}
	fa := fas[0]
	if fa, err = env.Engine.ConfirmFinalAssemblyOrder(env.Ctx, fa.ID, "assembler"); err != nil {
		t.Fatal(err)
	}
	if fa, err = env.Engine.StartFinalAssemblyOrder(env.Ctx, fa.ID, "assembler"); err != nil {
		t.Fatal(err)
	}
	// assembly pulled the modules back out of the supermarket
	if q := stockQty(t, env, domain.WSModulesSupermkt, domain.ItemModule, 1); q != 0 {
		t.Fatalf("supermarket modules = %d, want 0", q)
	}
	if fa, err = env.Engine.CompleteFinalAssemblyOrder(env.Ctx, fa.ID, "assembler"); err != nil {
		t.Fatal(err)
	}
	// completing assembly moves no stock
	if q := stockQty(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 1); q != 0 {
		t.Fatalf("warehouse products = %d before submit, want 0", q)
	}
	if fa, err = env.Engine.SubmitFinalAssemblyOrder(env.Ctx, fa.ID, "assembler"); err != nil {
		t.Fatal(err)
	}
	if fa.Status != domain.StatusSubmitted {
		t.Fatalf("assembly status = %s, want SUBMITTED", fa.Status)
	}
	if q := stockQty(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 1); q != 4 {
		t.Fatalf("warehouse products = %d after submit, want 4", q)
	}

	// submit unblocked the warehouse order
	wo, err = env.Engine.GetOrder(env.Ctx, wo.ID)
	if err != nil || wo.Status != domain.StatusModulesReady {
		t.Fatalf("warehouse status = %s, want MODULES_READY (%v)", wo.Status, err)
	}
	if wo, err = env.Engine.FulfillWarehouseOrder(env.Ctx, wo.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	// fulfill from MODULES_READY moves no stock, products were credited on submit
	if q := stockQty(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 1); q != 4 {
		t.Fatalf("warehouse products = %d, want 4", q)
	}

	if co, err = env.Engine.CompleteCustomerOrder(env.Ctx, co.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if co.Status != domain.StatusCompleted {
		t.Fatalf("customer status = %s, want COMPLETED", co.Status)
	}
	if q := stockQty(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 1); q != 0 {
		t.Fatalf("warehouse products = %d after shipping, want 0", q)
	}
}

func TestWorkstationOrderWaitsForParts(t *testing.T) {
	env := newTestEnv(t)
	ctrl, err := env.Engine.CreateControlOrder(env.Ctx, domain.OrderProductionControl, domain.PriorityNormal,
		domain.WSDrilling, "tester", "", []engine.LineInput{{ItemType: domain.ItemModule, ItemID: 1, Quantity: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if ctrl, err = env.Engine.AssignControlOrder(env.Ctx, ctrl.ID, "operator"); err != nil {
		t.Fatal(err)
	}
	if ctrl, err = env.Engine.StartControlOrder(env.Ctx, ctrl.ID, "operator"); err != nil {
		t.Fatal(err)
	}
	wsos, err := env.Engine.ListOrders(env.Ctx, repo.OrderFilters{Type: domain.OrderWorkstation, ParentID: ctrl.ID})
	if err != nil || len(wsos) != 1 {
		t.Fatalf("workstation children: %v %d", err, len(wsos))
	}
	wso := wsos[0]

	// no parts anywhere: start fails and parks the order
	if _, err := env.Engine.StartWorkstationOrder(env.Ctx, wso.ID, "operator"); !errors.Is(err, engine.ErrInsufficientStock) {
		t.Fatalf("want ErrInsufficientStock, got %v", err)
	}
	wso, err = env.Engine.GetOrder(env.Ctx, wso.ID)
	if err != nil || wso.Status != domain.StatusWaitingForParts {
		t.Fatalf("status = %s, want WAITING_FOR_PARTS (%v)", wso.Status, err)
	}

	// partial stock still fails
	mustAdjust(t, env, domain.WSDrilling, domain.ItemPart, 1, 2)
	if _, err := env.Engine.StartWorkstationOrder(env.Ctx, wso.ID, "operator"); !errors.Is(err, engine.ErrInsufficientStock) {
		t.Fatalf("want ErrInsufficientStock, got %v", err)
	}
	if q := stockQty(t, env, domain.WSDrilling, domain.ItemPart, 1); q != 2 {
		t.Fatalf("parts = %d, rejected start must not consume", q)
	}

	mustAdjust(t, env, domain.WSDrilling, domain.ItemPart, 1, 1)
	wso, err = env.Engine.StartWorkstationOrder(env.Ctx, wso.ID, "operator")
	if err != nil {
		t.Fatal(err)
	}
	if wso.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", wso.Status)
	}
	if q := stockQty(t, env, domain.WSDrilling, domain.ItemPart, 1); q != 0 {
		t.Fatalf("parts = %d, want 0", q)
	}
}

func TestSupplyOrderTransfersParts(t *testing.T) {
	env := newTestEnv(t)
	mustAdjust(t, env, domain.WSPartsSupply, domain.ItemPart, 2, 30)

	ctrl, err := env.Engine.CreateControlOrder(env.Ctx, domain.OrderProductionControl, domain.PriorityNormal,
		domain.WSMilling, "tester", "", []engine.LineInput{{ItemType: domain.ItemModule, ItemID: 2, Quantity: 6}})
	if err != nil {
		t.Fatal(err)
	}
	if ctrl, err = env.Engine.AssignControlOrder(env.Ctx, ctrl.ID, "operator"); err != nil {
		t.Fatal(err)
	}
	so, err := env.Engine.RequestSupply(env.Ctx, ctrl.ID, "operator",
		[]engine.LineInput{{ItemType: domain.ItemPart, ItemID: 2, Quantity: 6}})
	if err != nil {
		t.Fatal(err)
	}

	// open supply blocks the start
	if _, err := env.Engine.StartControlOrder(env.Ctx, ctrl.ID, "operator"); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("want ErrIllegalTransition while supply pending, got %v", err)
	}

	if so, err = env.Engine.ApproveSupplyOrder(env.Ctx, so.ID, "supplier"); err != nil {
		t.Fatal(err)
	}
	if so, err = env.Engine.FulfillSupplyOrder(env.Ctx, so.ID, "supplier"); err != nil {
		t.Fatal(err)
	}
	if so.Status != domain.StatusFulfilled {
		t.Fatalf("supply status = %s, want FULFILLED", so.Status)
	}
	if q := stockQty(t, env, domain.WSPartsSupply, domain.ItemPart, 2); q != 24 {
		t.Fatalf("supply station parts = %d, want 24", q)
	}
	if q := stockQty(t, env, domain.WSMilling, domain.ItemPart, 2); q != 6 {
		t.Fatalf("milling parts = %d, want 6", q)
	}

	if _, err := env.Engine.StartControlOrder(env.Ctx, ctrl.ID, "operator"); err != nil {
		t.Fatalf("start after supply fulfilled: %v", err)
	}
}

func TestRejectedSupplyDoesNotBlockStart(t *testing.T) {
	env := newTestEnv(t)
	ctrl, err := env.Engine.CreateControlOrder(env.Ctx, domain.OrderProductionControl, domain.PriorityNormal,
		domain.WSFinishing, "tester", "", []engine.LineInput{{ItemType: domain.ItemModule, ItemID: 4, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if ctrl, err = env.Engine.AssignControlOrder(env.Ctx, ctrl.ID, "operator"); err != nil {
		t.Fatal(err)
	}
	so, err := env.Engine.RequestSupply(env.Ctx, ctrl.ID, "operator",
		[]engine.LineInput{{ItemType: domain.ItemPart, ItemID: 4, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RejectSupplyOrder(env.Ctx, so.ID, "supplier"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartControlOrder(env.Ctx, ctrl.ID, "operator"); err != nil {
		t.Fatalf("start after supply rejected: %v", err)
	}
}

func TestDispatchRequiresScheduledAndSurvivesSchedulerFailure(t *testing.T) {
	env := newTestEnv(t)
	po, err := env.Engine.CreateProductionOrder(env.Ctx, domain.PriorityNormal, "tester", "",
		[]engine.LineInput{{ItemType: domain.ItemModule, ItemID: 1, Quantity: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.DispatchProductionOrder(env.Ctx, po.ID, "tester"); !errors.Is(err, engine.ErrIllegalTransition) {
		t.Fatalf("want ErrIllegalTransition, got %v", err)
	}
	if po, err = env.Engine.ConfirmProductionOrder(env.Ctx, po.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if po, err = env.Engine.ScheduleProductionOrder(env.Ctx, po.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	env.Engine.Scheduler = failingScheduler{}
	if _, err := env.Engine.DispatchProductionOrder(env.Ctx, po.ID, "tester"); !errors.Is(err, engine.ErrSchedulerUnavailable) {
		t.Fatalf("want ErrSchedulerUnavailable, got %v", err)
	}
	// order untouched, dispatch is retriable
	po, err = env.Engine.GetOrder(env.Ctx, po.ID)
	if err != nil || po.Status != domain.StatusScheduled {
		t.Fatalf("status = %s, want SCHEDULED (%v)", po.Status, err)
	}

	env.Engine.Scheduler = &engine.SequentialScheduler{}
	if po, err = env.Engine.DispatchProductionOrder(env.Ctx, po.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if po.Status != domain.StatusDispatched {
		t.Fatalf("status = %s, want DISPATCHED", po.Status)
	}
}

type failingScheduler struct{}

func (failingScheduler) Propose(ctx context.Context, o domain.Order) (domain.Schedule, error) {
	return domain.Schedule{}, context.DeadlineExceeded
}

func TestOrderNumbersArePerFamily(t *testing.T) {
	env := newTestEnv(t)
	a := createCustomerOrder(t, env, []engine.LineInput{{ItemType: domain.ItemProduct, ItemID: 1, Quantity: 1}})
	b := createCustomerOrder(t, env, []engine.LineInput{{ItemType: domain.ItemProduct, ItemID: 2, Quantity: 1}})
	if a.Number != "CO-000001" || b.Number != "CO-000002" {
		t.Fatalf("numbers = %s, %s", a.Number, b.Number)
	}
	so, err := env.Engine.CreateSupplyOrder(env.Ctx, domain.PriorityNormal, domain.WSDrilling, "tester", "",
		[]engine.LineInput{{ItemType: domain.ItemPart, ItemID: 1, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if so.Number != "SO-000001" {
		t.Fatalf("supply number = %s, want SO-000001", so.Number)
	}
}

func TestListOrdersReturnsLines(t *testing.T) {
	env := newTestEnv(t)
	created := createCustomerOrder(t, env, []engine.LineInput{
		{ItemType: domain.ItemProduct, ItemID: 1, Quantity: 5},
		{ItemType: domain.ItemProduct, ItemID: 2, Quantity: 3},
	})

	orders, err := env.Engine.ListOrders(env.Ctx, repo.OrderFilters{Type: domain.OrderCustomer})
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	got := orders[0]
	if got.ID != created.ID {
		t.Fatalf("order id = %s, want %s", got.ID, created.ID)
	}
	if len(got.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(got.Lines))
	}
	if got.Lines[0].ItemID != 1 || got.Lines[0].RequestedQty != 5 {
		t.Fatalf("line 0 = %+v, want item 1 qty 5", got.Lines[0])
	}
	if got.Lines[1].ItemID != 2 || got.Lines[1].RequestedQty != 3 {
		t.Fatalf("line 1 = %+v, want item 2 qty 3", got.Lines[1])
	}
}

func TestCompleteWorkstationOrderSkipsNonControlParent(t *testing.T) {
	env := newTestEnv(t)
	parent := createCustomerOrder(t, env, []engine.LineInput{{ItemType: domain.ItemProduct, ItemID: 1, Quantity: 1}})

	// A workstation order hand-wired under a customer order; completion
	// must not try to treat the parent as a control order.
	ws := domain.WSDrilling
	now := "2026-01-01T00:00:00Z"
	stray := domain.Order{
		ID:            "ws-stray-1",
		Number:        "WS-900001",
		Type:          domain.OrderWorkstation,
		Status:        domain.StatusInProgress,
		Priority:      domain.PriorityNormal,
		ParentID:      &parent.ID,
		WorkstationID: &ws,
		Lines:         []domain.OrderLine{{ItemType: domain.ItemModule, ItemID: 1, RequestedQty: 2}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.InsertOrderTx(env.Ctx, tx, stray); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	done, err := env.Engine.CompleteWorkstationOrder(env.Ctx, stray.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", done.Status)
	}
	if q := stockQty(t, env, ws, domain.ItemModule, 1); q != 2 {
		t.Fatalf("module stock = %d, want 2", q)
	}
	got, err := env.Engine.GetOrder(env.Ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("parent status = %s, want PENDING", got.Status)
	}
}
