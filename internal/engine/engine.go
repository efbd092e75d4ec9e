package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"factoryline/internal/config"
	"factoryline/internal/domain"
	"factoryline/internal/events"
	"factoryline/internal/repo"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Scheduler Scheduler
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Scheduler: &SequentialScheduler{},
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) plantID() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Plant.ID
}

// InitPlant initializes a new plant with migrations already run. The plant
// config default low-stock threshold is seeded as one wildcard threshold
// row per item type so alert evaluation works out of the box.
func (e Engine) InitPlant(ctx context.Context, plantID, name, actorID string) (domain.Plant, error) {
	if e.Config == nil {
		return domain.Plant{}, errors.New("config not loaded")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Plant{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	if name == "" {
		name = e.Config.Plant.Name
	}
	p := domain.Plant{
		ID:        plantID,
		Name:      name,
		Status:    "active",
		CreatedAt: now,
	}
	if err := e.Repo.InsertPlant(ctx, tx, p); err != nil {
		return domain.Plant{}, fmt.Errorf("insert plant: %w", err)
	}
	if err := e.Repo.UpsertPlantConfigTx(ctx, tx, p.ID, e.Config); err != nil {
		return domain.Plant{}, fmt.Errorf("insert plant config: %w", err)
	}
	if e.Config.Stock.DefaultLowThreshold > 0 {
		for _, itemType := range []string{domain.ItemProduct, domain.ItemModule, domain.ItemPart} {
			t := domain.LowStockThreshold{
				ItemType:  itemType,
				Threshold: e.Config.Stock.DefaultLowThreshold,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := e.Repo.InsertThresholdTx(ctx, tx, t); err != nil {
				return domain.Plant{}, fmt.Errorf("seed threshold for %s: %w", itemType, err)
			}
		}
	}
	if err := e.Events.Append(ctx, tx, "plant.init", p.ID, "plant", p.ID, actorID, events.EventPayload{"status": p.Status}); err != nil {
		return domain.Plant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Plant{}, err
	}
	return p, nil
}

// AdjustOptions are parameters for one ledger adjustment.
type AdjustOptions struct {
	WorkstationID int
	ItemType      string
	ItemID        int
	Delta         int
	ReasonCode    string
	OrderRef      string
	Notes         string
	ActorID       string
}

// Adjust applies a single signed quantity change and appends the matching
// ledger entry as one atomic unit.
func (e Engine) Adjust(ctx context.Context, opts AdjustOptions) (domain.LedgerEntry, error) {
	if !domain.ValidItemType(opts.ItemType) {
		return domain.LedgerEntry{}, fmt.Errorf("invalid item type %q", opts.ItemType)
	}
	if opts.ReasonCode == "" {
		opts.ReasonCode = domain.ReasonAdjustment
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	defer tx.Rollback()

	entry, err := e.adjustTx(ctx, tx, opts)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

// adjustTx is the ledger critical section: read current quantity (creating
// the record at zero on first touch), compute the new quantity, reject a
// negative result, then write the record and append the entry. Callers own
// the transaction, so an order transition and its stock effects commit or
// fail together.
func (e Engine) adjustTx(ctx context.Context, tx *sql.Tx, opts AdjustOptions) (domain.LedgerEntry, error) {
	current := 0
	rec, err := e.Repo.GetStockTx(ctx, tx, opts.WorkstationID, opts.ItemType, opts.ItemID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.LedgerEntry{}, err
	}
	if err == nil {
		current = rec.Quantity
	}
	newQty := current + opts.Delta
	if newQty < 0 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: workstation %d %s %d holds %d, delta %d",
			ErrInsufficientStock, opts.WorkstationID, opts.ItemType, opts.ItemID, current, opts.Delta)
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpsertStockTx(ctx, tx, domain.StockRecord{
		WorkstationID: opts.WorkstationID,
		ItemType:      opts.ItemType,
		ItemID:        opts.ItemID,
		Quantity:      newQty,
		UpdatedAt:     now,
	}); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("write stock record: %w", err)
	}
	entry := domain.LedgerEntry{
		WorkstationID: opts.WorkstationID,
		ItemType:      opts.ItemType,
		ItemID:        opts.ItemID,
		Delta:         opts.Delta,
		BalanceAfter:  newQty,
		ReasonCode:    opts.ReasonCode,
		OrderRef:      opts.OrderRef,
		Notes:         opts.Notes,
		ActorID:       opts.ActorID,
		CreatedAt:     now,
	}
	entry.ID, err = e.Repo.AppendLedgerEntryTx(ctx, tx, entry)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

// SetStockLevel is the administrative "set level" write. It does not bypass
// the ledger: the target is converted to a delta against the current value
// and recorded as an ADMIN_RESET entry, so the audit trail stays complete.
// A no-op target returns the current record without writing anything.
func (e Engine) SetStockLevel(ctx context.Context, workstationID int, itemType string, itemID, target int, actorID string) (domain.StockRecord, *domain.LedgerEntry, error) {
	if target < 0 {
		return domain.StockRecord{}, nil, fmt.Errorf("target quantity must not be negative")
	}
	if !domain.ValidItemType(itemType) {
		return domain.StockRecord{}, nil, fmt.Errorf("invalid item type %q", itemType)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StockRecord{}, nil, err
	}
	defer tx.Rollback()

	current := 0
	rec, err := e.Repo.GetStockTx(ctx, tx, workstationID, itemType, itemID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.StockRecord{}, nil, err
	}
	if err == nil {
		current = rec.Quantity
	}
	if target == current {
		return rec, nil, tx.Commit()
	}
	entry, err := e.adjustTx(ctx, tx, AdjustOptions{
		WorkstationID: workstationID,
		ItemType:      itemType,
		ItemID:        itemID,
		Delta:         target - current,
		ReasonCode:    domain.ReasonAdminReset,
		Notes:         fmt.Sprintf("level set from %d to %d", current, target),
		ActorID:       actorID,
	})
	if err != nil {
		return domain.StockRecord{}, nil, err
	}
	if err := e.Events.Append(ctx, tx, "stock.level_set", e.plantID(), "stock",
		fmt.Sprintf("%d/%s/%d", workstationID, itemType, itemID), actorID, events.EventPayload{
			"from": current,
			"to":   target,
		}); err != nil {
		return domain.StockRecord{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StockRecord{}, nil, err
	}
	rec = domain.StockRecord{
		WorkstationID: workstationID,
		ItemType:      itemType,
		ItemID:        itemID,
		Quantity:      target,
		UpdatedAt:     entry.CreatedAt,
	}
	return rec, &entry, nil
}

// History returns ledger entries most-recent-first filtered by any subset
// of the key fields.
func (e Engine) History(ctx context.Context, f repo.LedgerFilters) ([]domain.LedgerEntry, error) {
	return e.Repo.ListLedger(ctx, f)
}

// Recent returns the most recent ledger entries, bounded by limit
// (default 20).
func (e Engine) Recent(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return e.Repo.ListLedger(ctx, repo.LedgerFilters{Limit: limit})
}
