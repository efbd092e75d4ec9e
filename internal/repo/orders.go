package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"factoryline/internal/domain"
)

const orderColumns = `id,number,type,status,priority,parent_id,workstation_id,scenario,requested_by,notes,created_at,updated_at,confirmed_at,completed_at`

func scanOrder(scan func(dest ...any) error) (domain.Order, error) {
	var o domain.Order
	var parentID, scenario, requestedBy, notes, confirmedAt, completedAt sql.NullString
	var wsID sql.NullInt64
	err := scan(&o.ID, &o.Number, &o.Type, &o.Status, &o.Priority, &parentID, &wsID, &scenario, &requestedBy, &notes, &o.CreatedAt, &o.UpdatedAt, &confirmedAt, &completedAt)
	if err != nil {
		return o, err
	}
	if parentID.Valid {
		o.ParentID = &parentID.String
	}
	if wsID.Valid {
		v := int(wsID.Int64)
		o.WorkstationID = &v
	}
	if scenario.Valid {
		o.Scenario = scenario.String
	}
	if requestedBy.Valid {
		o.RequestedBy = requestedBy.String
	}
	if notes.Valid {
		o.Notes = notes.String
	}
	if confirmedAt.Valid {
		o.ConfirmedAt = &confirmedAt.String
	}
	if completedAt.Valid {
		o.CompletedAt = &completedAt.String
	}
	return o, nil
}

// NextOrderNumber burns one value off the per-family sequence. Must run in
// the transaction that inserts the order so numbers stay gapless per commit.
func (r Repo) NextOrderNumber(ctx context.Context, tx *sql.Tx, orderType, prefix string) (string, error) {
	if _, err := tx.ExecContext(ctx, `INSERT INTO order_numbers(order_type,seq) VALUES (?,0) ON CONFLICT(order_type) DO NOTHING`, orderType); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE order_numbers SET seq=seq+1 WHERE order_type=?`, orderType); err != nil {
		return "", err
	}
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT seq FROM order_numbers WHERE order_type=?`, orderType).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", prefix, seq), nil
}

func (r Repo) InsertOrderTx(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO orders(`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Number, o.Type, o.Status, o.Priority, nullableStringPtr(o.ParentID), nullableIntPtr(o.WorkstationID),
		nullable(o.Scenario), nullable(o.RequestedBy), nullable(o.Notes), o.CreatedAt, o.UpdatedAt,
		nullableStringPtr(o.ConfirmedAt), nullableStringPtr(o.CompletedAt))
	if err != nil {
		return err
	}
	for _, l := range o.Lines {
		if _, err := tx.ExecContext(ctx, `INSERT INTO order_lines(order_id,item_type,item_id,requested_qty,fulfilled_qty) VALUES (?,?,?,?,?)`,
			o.ID, l.ItemType, l.ItemID, l.RequestedQty, l.FulfilledQty); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) UpdateOrderTx(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	_, err := tx.ExecContext(ctx, `UPDATE orders SET status=?, priority=?, scenario=?, notes=?, updated_at=?, confirmed_at=?, completed_at=? WHERE id=?`,
		o.Status, o.Priority, nullable(o.Scenario), nullable(o.Notes), o.UpdatedAt,
		nullableStringPtr(o.ConfirmedAt), nullableStringPtr(o.CompletedAt), o.ID)
	return err
}

func (r Repo) SetLineFulfilledTx(ctx context.Context, tx *sql.Tx, orderID, itemType string, itemID, fulfilledQty int) error {
	_, err := tx.ExecContext(ctx, `UPDATE order_lines SET fulfilled_qty=? WHERE order_id=? AND item_type=? AND item_id=?`,
		fulfilledQty, orderID, itemType, itemID)
	return err
}

func (r Repo) listLines(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, orderID string) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, `SELECT item_type,item_id,requested_qty,fulfilled_qty FROM order_lines WHERE order_id=? ORDER BY item_type, item_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ItemType, &l.ItemID, &l.RequestedQty, &l.FulfilledQty); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, nil
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.Lines, err = r.listLines(ctx, r.DB, id)
	return o, err
}

func (r Repo) GetOrderTx(ctx context.Context, tx *sql.Tx, id string) (domain.Order, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.Lines, err = r.listLines(ctx, tx, id)
	return o, err
}

type OrderFilters struct {
	Type          string
	Status        string
	ParentID      string
	WorkstationID *int
	Limit         int
}

func (r Repo) ListOrders(ctx context.Context, f OrderFilters) ([]domain.Order, error) {
	var clauses []string
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.ParentID)
	}
	if f.WorkstationID != nil {
		clauses = append(clauses, "workstation_id=?")
		args = append(args, *f.WorkstationID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	// URGENT work surfaces first within a family, then newest.
	query := `SELECT ` + orderColumns + ` FROM orders ` + where + ` ORDER BY
		CASE priority WHEN 'URGENT' THEN 0 WHEN 'HIGH' THEN 1 WHEN 'NORMAL' THEN 2 ELSE 3 END,
		created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Lines, err = r.listLines(ctx, r.DB, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// ListChildrenTx returns child orders of a parent, optionally filtered to
// one family. Used by transitions that gate on sibling/lineage completion.
func (r Repo) ListChildrenTx(ctx context.Context, tx *sql.Tx, parentID, orderType string) ([]domain.Order, error) {
	clauses := []string{"parent_id=?"}
	args := []any{parentID}
	if orderType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, orderType)
	}
	rows, err := tx.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Lines, err = r.listLines(ctx, tx, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) UpsertScheduleTx(ctx context.Context, tx *sql.Tx, orderID, proposedAt, tasksJSON string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO schedules(order_id,proposed_at,tasks_json) VALUES (?,?,?)
ON CONFLICT(order_id) DO UPDATE SET proposed_at=excluded.proposed_at, tasks_json=excluded.tasks_json`, orderID, proposedAt, tasksJSON)
	return err
}

func (r Repo) GetSchedule(ctx context.Context, orderID string) (string, string, error) {
	var proposedAt, tasksJSON string
	err := r.DB.QueryRowContext(ctx, `SELECT proposed_at,tasks_json FROM schedules WHERE order_id=?`, orderID).Scan(&proposedAt, &tasksJSON)
	if err == sql.ErrNoRows {
		return "", "", ErrNotFound
	}
	return proposedAt, tasksJSON, err
}
