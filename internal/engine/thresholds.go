package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"factoryline/internal/domain"
	"factoryline/internal/events"
	"factoryline/internal/repo"
)

// ThresholdUpsert is one element of an upsert batch. With an ID it updates
// that row; without one it resolves to the existing row for the same
// (workstation, item-type, item) key if present, else inserts.
type ThresholdUpsert struct {
	ID            *int64 `json:"id,omitempty"`
	WorkstationID *int   `json:"workstation_id,omitempty" minimum:"1" maximum:"9"`
	ItemType      string `json:"item_type" enum:"PRODUCT,MODULE,PART"`
	ItemID        *int   `json:"item_id,omitempty" minimum:"1"`
	Threshold     int    `json:"threshold" minimum:"0"`
}

// UpsertThresholds saves a batch of threshold rows, upholding the one-row-
// per-key invariant. A lost race between two inserts for the same key is
// retried once as an update; only a failed retry surfaces as
// ErrDuplicateThreshold.
func (e Engine) UpsertThresholds(ctx context.Context, items []ThresholdUpsert, actorID string) ([]domain.LowStockThreshold, error) {
	saved := make([]domain.LowStockThreshold, 0, len(items))
	for _, item := range items {
		if !domain.ValidItemType(item.ItemType) {
			return nil, fmt.Errorf("invalid item type %q", item.ItemType)
		}
		if item.Threshold < 0 {
			return nil, fmt.Errorf("threshold must not be negative")
		}
		t, err := e.upsertThreshold(ctx, item, actorID)
		if err != nil {
			return nil, err
		}
		saved = append(saved, t)
	}
	return saved, nil
}

func (e Engine) upsertThreshold(ctx context.Context, item ThresholdUpsert, actorID string) (domain.LowStockThreshold, error) {
	t, err := e.tryUpsertThreshold(ctx, item, actorID)
	if err != nil && isUniqueViolation(err) && item.ID == nil {
		// Another writer inserted the same key first; retry as an update.
		retry, retryErr := e.tryUpsertThreshold(ctx, item, actorID)
		if retryErr != nil {
			return domain.LowStockThreshold{}, fmt.Errorf("%w: %v", ErrDuplicateThreshold, retryErr)
		}
		return retry, nil
	}
	return t, err
}

func (e Engine) tryUpsertThreshold(ctx context.Context, item ThresholdUpsert, actorID string) (domain.LowStockThreshold, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LowStockThreshold{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	var t domain.LowStockThreshold
	if item.ID != nil {
		existing, err := e.Repo.GetThreshold(ctx, *item.ID)
		if err != nil {
			return t, err
		}
		if err := e.Repo.UpdateThresholdTx(ctx, tx, existing.ID, item.Threshold, now); err != nil {
			return t, err
		}
		existing.Threshold = item.Threshold
		existing.UpdatedAt = now
		t = existing
	} else {
		existing, err := e.Repo.FindThresholdByKeyTx(ctx, tx, item.WorkstationID, item.ItemType, item.ItemID)
		switch {
		case err == nil:
			if err := e.Repo.UpdateThresholdTx(ctx, tx, existing.ID, item.Threshold, now); err != nil {
				return t, err
			}
			existing.Threshold = item.Threshold
			existing.UpdatedAt = now
			t = existing
		case errors.Is(err, repo.ErrNotFound):
			t = domain.LowStockThreshold{
				WorkstationID: item.WorkstationID,
				ItemType:      item.ItemType,
				ItemID:        item.ItemID,
				Threshold:     item.Threshold,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			t.ID, err = e.Repo.InsertThresholdTx(ctx, tx, t)
			if err != nil {
				return domain.LowStockThreshold{}, err
			}
		default:
			return t, err
		}
	}
	if err := e.Events.Append(ctx, tx, "threshold.saved", e.plantID(), "threshold",
		fmt.Sprintf("%d", t.ID), actorID, events.EventPayload{"threshold": t.Threshold}); err != nil {
		return t, err
	}
	return t, tx.Commit()
}

// DeleteThreshold removes a threshold row and logs the removal.
func (e Engine) DeleteThreshold(ctx context.Context, id int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteThresholdTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "threshold.deleted", e.plantID(), "threshold",
		fmt.Sprintf("%d", id), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ListThresholds returns every threshold row.
func (e Engine) ListThresholds(ctx context.Context) ([]domain.LowStockThreshold, error) {
	return e.Repo.ListThresholds(ctx)
}

// EvaluateThresholds compares stock records against the applicable
// thresholds and emits an alert per record below its threshold. Resolution
// is most-specific-first: exact (workstation, item), then (workstation,
// any item), then (any workstation, item), then the per-type wildcard.
// Records with no applicable threshold are skipped.
func (e Engine) EvaluateThresholds(ctx context.Context, workstationID *int) ([]domain.LowStockAlert, error) {
	records, err := e.Repo.ListStock(ctx, repo.StockFilters{WorkstationID: workstationID})
	if err != nil {
		return nil, err
	}
	thresholds, err := e.Repo.ListThresholds(ctx)
	if err != nil {
		return nil, err
	}
	var alerts []domain.LowStockAlert
	for _, rec := range records {
		threshold, ok := resolveThreshold(thresholds, rec)
		if !ok {
			continue
		}
		if rec.Quantity < threshold {
			alerts = append(alerts, domain.LowStockAlert{
				WorkstationID: rec.WorkstationID,
				ItemType:      rec.ItemType,
				ItemID:        rec.ItemID,
				Quantity:      rec.Quantity,
				Threshold:     threshold,
				Deficit:       threshold - rec.Quantity,
			})
		}
	}
	return alerts, nil
}

func resolveThreshold(thresholds []domain.LowStockThreshold, rec domain.StockRecord) (int, bool) {
	// Specificity ranks: 0 exact, 1 workstation wildcard-item, 2 item
	// wildcard-workstation, 3 both wildcards.
	best := -1
	value := 0
	for _, t := range thresholds {
		if t.ItemType != rec.ItemType {
			continue
		}
		wsMatch := t.WorkstationID == nil || *t.WorkstationID == rec.WorkstationID
		itemMatch := t.ItemID == nil || *t.ItemID == rec.ItemID
		if !wsMatch || !itemMatch {
			continue
		}
		rank := 3
		switch {
		case t.WorkstationID != nil && t.ItemID != nil:
			rank = 0
		case t.WorkstationID != nil:
			rank = 1
		case t.ItemID != nil:
			rank = 2
		}
		if best == -1 || rank < best {
			best = rank
			value = t.Threshold
		}
	}
	return value, best != -1
}
