package repo

import (
	"context"
	"database/sql"

	"factoryline/internal/domain"
)

func scanThreshold(scan func(dest ...any) error) (domain.LowStockThreshold, error) {
	var t domain.LowStockThreshold
	var wsID, itemID sql.NullInt64
	err := scan(&t.ID, &wsID, &t.ItemType, &itemID, &t.Threshold, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if wsID.Valid {
		v := int(wsID.Int64)
		t.WorkstationID = &v
	}
	if itemID.Valid {
		v := int(itemID.Int64)
		t.ItemID = &v
	}
	return t, nil
}

func (r Repo) GetThreshold(ctx context.Context, id int64) (domain.LowStockThreshold, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,workstation_id,item_type,item_id,threshold,created_at,updated_at FROM low_stock_thresholds WHERE id=?`, id)
	t, err := scanThreshold(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// FindThresholdByKeyTx resolves the row matching an exact key, treating NULL
// as a key value (not a wildcard) so upserts land on the right row.
func (r Repo) FindThresholdByKeyTx(ctx context.Context, tx *sql.Tx, workstationID *int, itemType string, itemID *int) (domain.LowStockThreshold, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,workstation_id,item_type,item_id,threshold,created_at,updated_at FROM low_stock_thresholds
WHERE COALESCE(workstation_id,-1)=COALESCE(?,-1) AND item_type=? AND COALESCE(item_id,-1)=COALESCE(?,-1)`,
		nullableIntPtr(workstationID), itemType, nullableIntPtr(itemID))
	t, err := scanThreshold(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertThresholdTx(ctx context.Context, tx *sql.Tx, t domain.LowStockThreshold) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO low_stock_thresholds(workstation_id,item_type,item_id,threshold,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		nullableIntPtr(t.WorkstationID), t.ItemType, nullableIntPtr(t.ItemID), t.Threshold, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateThresholdTx(ctx context.Context, tx *sql.Tx, id int64, threshold int, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE low_stock_thresholds SET threshold=?, updated_at=? WHERE id=?`, threshold, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteThresholdTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM low_stock_thresholds WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListThresholds(ctx context.Context) ([]domain.LowStockThreshold, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,workstation_id,item_type,item_id,threshold,created_at,updated_at FROM low_stock_thresholds ORDER BY item_type, workstation_id, item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LowStockThreshold
	for rows.Next() {
		t, err := scanThreshold(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}
