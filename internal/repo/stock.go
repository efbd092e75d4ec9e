package repo

import (
	"context"
	"database/sql"
	"strings"

	"factoryline/internal/domain"
)

// GetStockTx reads the current record for a key inside the caller's
// transaction. Ledger adjusts must read through this so the
// read-compute-write sequence stays in one critical section.
func (r Repo) GetStockTx(ctx context.Context, tx *sql.Tx, workstationID int, itemType string, itemID int) (domain.StockRecord, error) {
	var s domain.StockRecord
	err := tx.QueryRowContext(ctx, `SELECT workstation_id,item_type,item_id,quantity,updated_at FROM stock_records WHERE workstation_id=? AND item_type=? AND item_id=?`,
		workstationID, itemType, itemID).
		Scan(&s.WorkstationID, &s.ItemType, &s.ItemID, &s.Quantity, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) GetStock(ctx context.Context, workstationID int, itemType string, itemID int) (domain.StockRecord, error) {
	var s domain.StockRecord
	err := r.DB.QueryRowContext(ctx, `SELECT workstation_id,item_type,item_id,quantity,updated_at FROM stock_records WHERE workstation_id=? AND item_type=? AND item_id=?`,
		workstationID, itemType, itemID).
		Scan(&s.WorkstationID, &s.ItemType, &s.ItemID, &s.Quantity, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// UpsertStockTx writes the new quantity for a key, creating the record on
// first adjustment.
func (r Repo) UpsertStockTx(ctx context.Context, tx *sql.Tx, s domain.StockRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stock_records(workstation_id,item_type,item_id,quantity,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(workstation_id,item_type,item_id) DO UPDATE SET quantity=excluded.quantity, updated_at=excluded.updated_at`,
		s.WorkstationID, s.ItemType, s.ItemID, s.Quantity, s.UpdatedAt)
	return err
}

type StockFilters struct {
	WorkstationID *int
	ItemType      string
}

func (r Repo) ListStock(ctx context.Context, f StockFilters) ([]domain.StockRecord, error) {
	var clauses []string
	var args []any
	if f.WorkstationID != nil {
		clauses = append(clauses, "workstation_id=?")
		args = append(args, *f.WorkstationID)
	}
	if f.ItemType != "" {
		clauses = append(clauses, "item_type=?")
		args = append(args, f.ItemType)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT workstation_id,item_type,item_id,quantity,updated_at FROM stock_records `+where+` ORDER BY workstation_id, item_type, item_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StockRecord
	for rows.Next() {
		var s domain.StockRecord
		if err := rows.Scan(&s.WorkstationID, &s.ItemType, &s.ItemID, &s.Quantity, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

// ListStockTx reads all stock records inside the caller's transaction, for
// classification snapshots taken at decision points.
func (r Repo) ListStockTx(ctx context.Context, tx *sql.Tx) ([]domain.StockRecord, error) {
	rows, err := tx.QueryContext(ctx, `SELECT workstation_id,item_type,item_id,quantity,updated_at FROM stock_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StockRecord
	for rows.Next() {
		var s domain.StockRecord
		if err := rows.Scan(&s.WorkstationID, &s.ItemType, &s.ItemID, &s.Quantity, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

// AppendLedgerEntryTx inserts an immutable ledger row and returns its id.
func (r Repo) AppendLedgerEntryTx(ctx context.Context, tx *sql.Tx, e domain.LedgerEntry) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO ledger_entries(workstation_id,item_type,item_id,delta,balance_after,reason_code,order_ref,notes,actor_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.WorkstationID, e.ItemType, e.ItemID, e.Delta, e.BalanceAfter, e.ReasonCode, nullable(e.OrderRef), nullable(e.Notes), e.ActorID, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type LedgerFilters struct {
	WorkstationID *int
	ItemType      string
	ItemID        *int
	Limit         int
}

// ListLedger returns entries most-recent-first filtered by any subset of
// the optional keys.
func (r Repo) ListLedger(ctx context.Context, f LedgerFilters) ([]domain.LedgerEntry, error) {
	var clauses []string
	var args []any
	if f.WorkstationID != nil {
		clauses = append(clauses, "workstation_id=?")
		args = append(args, *f.WorkstationID)
	}
	if f.ItemType != "" {
		clauses = append(clauses, "item_type=?")
		args = append(args, f.ItemType)
	}
	if f.ItemID != nil {
		clauses = append(clauses, "item_id=?")
		args = append(args, *f.ItemID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,workstation_id,item_type,item_id,delta,balance_after,reason_code,order_ref,notes,actor_id,created_at FROM ledger_entries ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var orderRef, notes sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkstationID, &e.ItemType, &e.ItemID, &e.Delta, &e.BalanceAfter, &e.ReasonCode, &orderRef, &notes, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if orderRef.Valid {
			e.OrderRef = orderRef.String
		}
		if notes.Valid {
			e.Notes = notes.String
		}
		res = append(res, e)
	}
	return res, nil
}
