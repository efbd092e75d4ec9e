package domain

// Workstation ids are fixed for the nine-station plant. Display names live
// in the plant config; quantity logic only ever uses the ids.
const (
	WSDrilling          = 1
	WSMilling           = 2
	WSAssemblyPrep      = 3
	WSFinishing         = 4
	WSModulesSupermkt   = 5
	WSFinalAssembly     = 6
	WSPlantWarehouse    = 7
	WSPartsSupply       = 8
	WSProductionControl = 9
)

// Item types.
const (
	ItemProduct = "PRODUCT"
	ItemModule  = "MODULE"
	ItemPart    = "PART"
)

// Ledger reason codes.
const (
	ReasonProductionComplete = "PRODUCTION_COMPLETE"
	ReasonFulfillment        = "FULFILLMENT"
	ReasonReplenishment      = "REPLENISHMENT"
	ReasonAdjustment         = "ADJUSTMENT"
	ReasonAdminReset         = "ADMIN_RESET"
	ReasonSupplyTransfer     = "SUPPLY_TRANSFER"
)

// Order families.
const (
	OrderCustomer          = "customer"
	OrderWarehouse         = "warehouse"
	OrderProduction        = "production"
	OrderProductionControl = "production_control"
	OrderAssemblyControl   = "assembly_control"
	OrderWorkstation       = "workstation"
	OrderFinalAssembly     = "final_assembly"
	OrderSupply            = "supply"
)

// Fulfillment scenarios.
const (
	ScenarioDirectFulfillment    = "DIRECT_FULFILLMENT"
	ScenarioWarehouseOrderNeeded = "WAREHOUSE_ORDER_NEEDED"
	ScenarioProductionRequired   = "PRODUCTION_REQUIRED"
	ScenarioDirectProduction     = "DIRECT_PRODUCTION"
)

// Order statuses. Which of these are legal for a given family, and which
// transitions between them are permitted, is defined by the engine's
// transition tables.
const (
	StatusPending            = "PENDING"
	StatusConfirmed          = "CONFIRMED"
	StatusProcessing         = "PROCESSING"
	StatusCompleted          = "COMPLETED"
	StatusCancelled          = "CANCELLED"
	StatusAwaitingProduction = "AWAITING_PRODUCTION"
	StatusModulesReady       = "MODULES_READY"
	StatusFulfilled          = "FULFILLED"
	StatusCreated            = "CREATED"
	StatusScheduled          = "SCHEDULED"
	StatusDispatched         = "DISPATCHED"
	StatusInProduction       = "IN_PRODUCTION"
	StatusAssigned           = "ASSIGNED"
	StatusInProgress         = "IN_PROGRESS"
	StatusHalted             = "HALTED"
	StatusAbandoned          = "ABANDONED"
	StatusWaitingForParts    = "WAITING_FOR_PARTS"
	StatusSubmitted          = "SUBMITTED"
	StatusRejected           = "REJECTED"
)

// Priorities.
const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

type StockRecord struct {
	WorkstationID int    `json:"workstation_id"`
	ItemType      string `json:"item_type" enum:"PRODUCT,MODULE,PART"`
	ItemID        int    `json:"item_id"`
	Quantity      int    `json:"quantity"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

type LedgerEntry struct {
	ID            int64  `json:"id"`
	WorkstationID int    `json:"workstation_id"`
	ItemType      string `json:"item_type" enum:"PRODUCT,MODULE,PART"`
	ItemID        int    `json:"item_id"`
	Delta         int    `json:"delta"`
	BalanceAfter  int    `json:"balance_after"`
	ReasonCode    string `json:"reason_code" enum:"PRODUCTION_COMPLETE,FULFILLMENT,REPLENISHMENT,ADJUSTMENT,ADMIN_RESET,SUPPLY_TRANSFER"`
	OrderRef      string `json:"order_ref,omitempty"`
	Notes         string `json:"notes,omitempty"`
	ActorID       string `json:"actor_id"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type LowStockThreshold struct {
	ID            int64  `json:"id"`
	WorkstationID *int   `json:"workstation_id,omitempty"`
	ItemType      string `json:"item_type" enum:"PRODUCT,MODULE,PART"`
	ItemID        *int   `json:"item_id,omitempty"`
	Threshold     int    `json:"threshold"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

// LowStockAlert is derived from a stock record and its resolved threshold;
// never persisted.
type LowStockAlert struct {
	WorkstationID int    `json:"workstation_id"`
	ItemType      string `json:"item_type"`
	ItemID        int    `json:"item_id"`
	Quantity      int    `json:"quantity"`
	Threshold     int    `json:"threshold"`
	Deficit       int    `json:"deficit"`
}

type OrderLine struct {
	ItemType     string `json:"item_type" enum:"PRODUCT,MODULE,PART"`
	ItemID       int    `json:"item_id"`
	RequestedQty int    `json:"requested_qty"`
	FulfilledQty int    `json:"fulfilled_qty"`
}

type Order struct {
	ID            string      `json:"id"`
	Number        string      `json:"number"`
	Type          string      `json:"type" enum:"customer,warehouse,production,production_control,assembly_control,workstation,final_assembly,supply"`
	Status        string      `json:"status"`
	Priority      string      `json:"priority" enum:"LOW,NORMAL,HIGH,URGENT"`
	ParentID      *string     `json:"parent_id,omitempty"`
	WorkstationID *int        `json:"workstation_id,omitempty"`
	Scenario      string      `json:"scenario,omitempty"`
	RequestedBy   string      `json:"requested_by,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	Lines         []OrderLine `json:"lines,omitempty"`
	CreatedAt     string      `json:"created_at" format:"date-time"`
	UpdatedAt     string      `json:"updated_at" format:"date-time"`
	ConfirmedAt   *string     `json:"confirmed_at,omitempty" format:"date-time"`
	CompletedAt   *string     `json:"completed_at,omitempty" format:"date-time"`
}

// ScheduleTask is one slot of a proposed production schedule.
type ScheduleTask struct {
	WorkstationID int    `json:"workstation_id"`
	ItemType      string `json:"item_type"`
	ItemID        int    `json:"item_id"`
	Quantity      int    `json:"quantity"`
	Start         string `json:"start" format:"date-time"`
	End           string `json:"end" format:"date-time"`
}

type Schedule struct {
	OrderID    string         `json:"order_id"`
	ProposedAt string         `json:"proposed_at" format:"date-time"`
	Tasks      []ScheduleTask `json:"tasks"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	PlantID    string `json:"plant_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type Plant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ValidPriority reports whether p is a known priority value.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ValidItemType reports whether t is a known item type.
func ValidItemType(t string) bool {
	switch t {
	case ItemProduct, ItemModule, ItemPart:
		return true
	}
	return false
}
