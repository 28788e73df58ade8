package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/port"
)

var ErrOptimisticLock = fmt.Errorf("optimistic lock conflict: %w", port.ErrConflict)

// MySQL error numbers that mean another writer got to the row first.
const (
	errDuplicateEntry = 1062
	errLockWait       = 1205
	errDeadlock       = 1213
)

// liveRows is the tombstone filter applied by every read.
const liveRows = "deleted_at IS NULL"

//go:embed schema.sql
var schema string

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables if they do not exist yet.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Begin(ctx context.Context) (port.Transaction, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &mysqlTx{tx: tx}, nil
}

type mysqlTx struct {
	tx        *sql.Tx
	committed bool
}

func (t *mysqlTx) Inventories() port.InventoryRepository { return mysqlInventories{t.tx} }
func (t *mysqlTx) Sales() port.SaleRepository            { return mysqlSales{t.tx} }
func (t *mysqlTx) Returns() port.ReturnRepository        { return mysqlReturns{t.tx} }

func (t *mysqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.committed = true
	return nil
}

func (t *mysqlTx) Rollback() error {
	if t.committed {
		return nil
	}
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func affectedOne(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func isLockError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && (mysqlErr.Number == errDeadlock || mysqlErr.Number == errLockWait)
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

type mysqlInventories struct{ tx *sql.Tx }

func (r mysqlInventories) GetByProductID(ctx context.Context, productID string) (*domain.Inventory, error) {
	var (
		st      domain.InventoryState
		deleted sql.NullTime
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT id, product_id, stock, low_stock_threshold, version, created_at, updated_at, deleted_at
		FROM inventory WHERE product_id = ? AND `+liveRows, productID,
	).Scan(&st.ID, &st.ProductID, &st.Stock, &st.Threshold, &st.Version, &st.CreatedAt, &st.UpdatedAt, &deleted)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("inventory", productID)
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	st.DeletedAt = nullTime(deleted)
	return domain.RestoreInventory(st)
}

func (r mysqlInventories) Add(ctx context.Context, inv *domain.Inventory) error {
	st := inv.State()
	result, err := r.tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, stock, low_stock_threshold, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		st.ProductID, st.Stock, st.Threshold, st.CreatedAt, st.UpdatedAt,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
		return r.duplicateProduct(ctx, st.ProductID)
	}
	if err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("inventory id: %w", err)
	}
	if err := inv.AssignID(id); err != nil {
		return err
	}
	inv.MarkSaved(1)
	return nil
}

// duplicateProduct tells a retired row apart from a concurrent first insert.
func (r mysqlInventories) duplicateProduct(ctx context.Context, productID string) error {
	var retired bool
	err := r.tx.QueryRowContext(ctx,
		`SELECT deleted_at IS NOT NULL FROM inventory WHERE product_id = ?`, productID,
	).Scan(&retired)
	if err == nil && retired {
		return fmt.Errorf("insert inventory %s: %w", productID, domain.ErrProductRetired)
	}
	return fmt.Errorf("insert inventory %s: %w", productID, ErrOptimisticLock)
}

func (r mysqlInventories) Update(ctx context.Context, inv *domain.Inventory) error {
	st := inv.State()
	result, err := r.tx.ExecContext(ctx, `
		UPDATE inventory
		SET stock = ?, low_stock_threshold = ?, version = version + 1, updated_at = ?, deleted_at = ?
		WHERE id = ? AND version = ?`,
		st.Stock, st.Threshold, st.UpdatedAt, st.DeletedAt, st.ID, st.Version,
	)
	if isLockError(err) {
		return fmt.Errorf("update inventory %s: %w", st.ProductID, ErrOptimisticLock)
	}
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	if err := affectedOne(result); err != nil {
		return fmt.Errorf("update inventory %s: %w", st.ProductID, err)
	}
	inv.MarkSaved(st.Version + 1)
	return nil
}

type mysqlSales struct{ tx *sql.Tx }

func (r mysqlSales) GetByID(ctx context.Context, id int64) (*domain.Sale, error) {
	var (
		st                 domain.SaleState
		cancelled, deleted sql.NullTime
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT id, customer_id, user_id, total_amount, is_cancelled, cancelled_at,
		       cancelled_by_user_id, cancellation_reason, created_at, updated_at, deleted_at
		FROM sales WHERE id = ? AND `+liveRows, id,
	).Scan(&st.ID, &st.CustomerID, &st.UserID, &st.TotalAmount, &st.IsCancelled, &cancelled,
		&st.CancelledByUserID, &st.CancellationReason, &st.CreatedAt, &st.UpdatedAt, &deleted)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("sale", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("query sale: %w", err)
	}
	st.CancelledAt = nullTime(cancelled)
	st.DeletedAt = nullTime(deleted)

	rows, err := r.tx.QueryContext(ctx, `
		SELECT sale_id, product_id, quantity, unit_price
		FROM sale_details WHERE sale_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query sale details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d domain.SaleDetailState
		if err := rows.Scan(&d.SaleID, &d.ProductID, &d.Quantity, &d.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan sale detail: %w", err)
		}
		st.Details = append(st.Details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale details: %w", err)
	}

	return domain.RestoreSale(st)
}

func (r mysqlSales) Add(ctx context.Context, sale *domain.Sale) error {
	st := sale.State()
	result, err := r.tx.ExecContext(ctx, `
		INSERT INTO sales (customer_id, user_id, total_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		st.CustomerID, st.UserID, st.TotalAmount, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sale id: %w", err)
	}
	if err := sale.AssignID(id); err != nil {
		return err
	}
	if err := sale.FinalizeDetails(); err != nil {
		return fmt.Errorf("finalize sale details: %w", err)
	}

	for _, d := range sale.Details() {
		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO sale_details (sale_id, product_id, quantity, unit_price, total)
			VALUES (?, ?, ?, ?, ?)`,
			d.SaleID(), d.ProductID(), d.Quantity(), d.UnitPrice().Decimal(), d.Total().Decimal(),
		)
		if err != nil {
			return fmt.Errorf("insert sale detail %s: %w", d.ProductID(), err)
		}
	}
	return nil
}

// Update persists a cancellation. The row must still be uncancelled.
func (r mysqlSales) Update(ctx context.Context, sale *domain.Sale) error {
	st := sale.State()
	result, err := r.tx.ExecContext(ctx, `
		UPDATE sales
		SET is_cancelled = ?, cancelled_at = ?, cancelled_by_user_id = ?, cancellation_reason = ?, updated_at = ?
		WHERE id = ? AND is_cancelled = FALSE AND `+liveRows,
		st.IsCancelled, st.CancelledAt, st.CancelledByUserID, st.CancellationReason, st.UpdatedAt, st.ID,
	)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	if err := affectedOne(result); err != nil {
		return fmt.Errorf("update sale %d: %w", st.ID, err)
	}
	return nil
}

type mysqlReturns struct{ tx *sql.Tx }

const returnColumns = `id, sale_id, customer_id, processed_by_user_id, type, reason, status, total_refund,
		       approved_by_user_id, approved_at, rejected_by_user_id, rejected_at, rejection_reason,
		       created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReturn(row rowScanner) (domain.ReturnState, error) {
	var (
		st                          domain.ReturnState
		approved, rejected, deleted sql.NullTime
	)
	err := row.Scan(&st.ID, &st.SaleID, &st.CustomerID, &st.ProcessedByUserID, &st.Type, &st.Reason,
		&st.Status, &st.TotalRefund, &st.ApprovedByUserID, &approved, &st.RejectedByUserID, &rejected,
		&st.RejectionReason, &st.CreatedAt, &st.UpdatedAt, &deleted)
	if err != nil {
		return st, err
	}
	st.ApprovedAt = nullTime(approved)
	st.RejectedAt = nullTime(rejected)
	st.DeletedAt = nullTime(deleted)
	return st, nil
}

func (r mysqlReturns) loadDetails(ctx context.Context, st *domain.ReturnState) error {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT return_id, product_id, quantity, unit_price
		FROM return_details WHERE return_id = ? ORDER BY id`, st.ID)
	if err != nil {
		return fmt.Errorf("query return details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d domain.ReturnDetailState
		if err := rows.Scan(&d.ReturnID, &d.ProductID, &d.Quantity, &d.UnitPrice); err != nil {
			return fmt.Errorf("scan return detail: %w", err)
		}
		st.Details = append(st.Details, d)
	}
	return rows.Err()
}

func (r mysqlReturns) GetByID(ctx context.Context, id int64) (*domain.Return, error) {
	st, err := scanReturn(r.tx.QueryRowContext(ctx,
		`SELECT `+returnColumns+` FROM returns WHERE id = ? AND `+liveRows, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("return", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("query return: %w", err)
	}
	if err := r.loadDetails(ctx, &st); err != nil {
		return nil, err
	}
	return domain.RestoreReturn(st)
}

func (r mysqlReturns) ListBySale(ctx context.Context, saleID int64) ([]*domain.Return, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT `+returnColumns+` FROM returns WHERE sale_id = ? AND `+liveRows+` ORDER BY id`, saleID)
	if err != nil {
		return nil, fmt.Errorf("query returns: %w", err)
	}

	var states []domain.ReturnState
	for rows.Next() {
		st, err := scanReturn(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan return: %w", err)
		}
		states = append(states, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate returns: %w", err)
	}

	out := make([]*domain.Return, 0, len(states))
	for i := range states {
		if err := r.loadDetails(ctx, &states[i]); err != nil {
			return nil, err
		}
		ret, err := domain.RestoreReturn(states[i])
		if err != nil {
			return nil, fmt.Errorf("restore return %d: %w", states[i].ID, err)
		}
		out = append(out, ret)
	}
	return out, nil
}

func (r mysqlReturns) Add(ctx context.Context, ret *domain.Return) error {
	st := ret.State()
	result, err := r.tx.ExecContext(ctx, `
		INSERT INTO returns (sale_id, customer_id, processed_by_user_id, type, reason, status, total_refund,
		                     created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.SaleID, st.CustomerID, st.ProcessedByUserID, st.Type, st.Reason, st.Status, st.TotalRefund,
		st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert return: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("return id: %w", err)
	}
	if err := ret.AssignID(id); err != nil {
		return err
	}
	if err := ret.FinalizeDetails(); err != nil {
		return fmt.Errorf("finalize return details: %w", err)
	}

	for _, d := range ret.Details() {
		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO return_details (return_id, product_id, quantity, unit_price, total)
			VALUES (?, ?, ?, ?, ?)`,
			d.ReturnID(), d.ProductID(), d.Quantity(), d.UnitPrice().Decimal(), d.Total().Decimal(),
		)
		if err != nil {
			return fmt.Errorf("insert return detail %s: %w", d.ProductID(), err)
		}
	}
	return nil
}

// Update persists an approval or rejection. The row must still be pending.
func (r mysqlReturns) Update(ctx context.Context, ret *domain.Return) error {
	st := ret.State()
	result, err := r.tx.ExecContext(ctx, `
		UPDATE returns
		SET status = ?, approved_by_user_id = ?, approved_at = ?, rejected_by_user_id = ?, rejected_at = ?,
		    rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = ? AND `+liveRows,
		st.Status, st.ApprovedByUserID, st.ApprovedAt, st.RejectedByUserID, st.RejectedAt,
		st.RejectionReason, st.UpdatedAt, st.ID, domain.ReturnStatusPending,
	)
	if err != nil {
		return fmt.Errorf("update return: %w", err)
	}
	if err := affectedOne(result); err != nil {
		return fmt.Errorf("update return %d: %w", st.ID, err)
	}
	return nil
}
