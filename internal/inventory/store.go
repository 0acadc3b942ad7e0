package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/database"
)

const timeLayout = database.TimeLayout

// Store is the mutation interface to catalog item stock.
//
// SetStock and AddStock are atomic with respect to other writers of the
// same item: each is a compare-and-swap on the quantity column, retried
// until it wins. Both report the value they replaced so callers can record
// the exact delta they applied.
type Store interface {
	// GetItem returns the stock record for an item.
	// Returns ErrItemNotFound if the item does not exist.
	GetItem(ctx context.Context, id string) (*Item, error)

	// CreateItem inserts a stock record. Catalog management lives elsewhere;
	// this is used for seeding and tests.
	CreateItem(ctx context.Context, item *Item) error

	// SetStock replaces the quantity.
	SetStock(ctx context.Context, id string, value int) (previous, current int, err error)

	// AddStock applies a signed delta, clamping the result at zero.
	AddStock(ctx context.Context, id string, delta int) (previous, current int, err error)

	// CompareAndSetStock sets the quantity only if it still equals expected.
	CompareAndSetStock(ctx context.Context, id string, expected, value int) (bool, error)

	// RecordMovement appends a ledger entry.
	RecordMovement(ctx context.Context, m *StockMovement) error

	// ListMovements returns an item's ledger, newest first.
	ListMovements(ctx context.Context, filter MovementFilter) (*MovementList, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-backed stock store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GetItem returns the stock record for an item.
func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*Item, error) {
	var it Item
	var stockUpdatedAt sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, quantity, low_stock_threshold, unit_weight,
			stock_updated_at, created_at, updated_at
		FROM catalog_items WHERE id = ?`, id).Scan(
		&it.ID, &it.Name, &it.Quantity, &it.LowStockThreshold, &it.UnitWeight,
		&stockUpdatedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("querying catalog item: %w", err)
	}

	if stockUpdatedAt.Valid {
		if t, err := time.Parse(timeLayout, stockUpdatedAt.String); err == nil {
			it.StockUpdatedAt = &t
		}
	}
	if it.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if it.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &it, nil
}

// CreateItem inserts a stock record.
func (s *SQLiteStore) CreateItem(ctx context.Context, item *Item) error {
	if item.Quantity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, item.Quantity)
	}

	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_items (id, name, quantity, low_stock_threshold, unit_weight, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Quantity, item.LowStockThreshold, item.UnitWeight,
		item.CreatedAt.UTC().Format(timeLayout), item.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrItemExists
		}
		return fmt.Errorf("inserting catalog item: %w", err)
	}
	return nil
}

// SetStock replaces the quantity.
func (s *SQLiteStore) SetStock(ctx context.Context, id string, value int) (int, int, error) {
	if value < 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidQuantity, value)
	}
	return s.update(ctx, id, func(int) int { return value })
}

// AddStock applies a signed delta clamped at zero.
func (s *SQLiteStore) AddStock(ctx context.Context, id string, delta int) (int, int, error) {
	return s.update(ctx, id, func(prev int) int { return max(0, prev+delta) })
}

// update runs a compare-and-swap loop until the computed value sticks.
func (s *SQLiteStore) update(ctx context.Context, id string, next func(prev int) int) (int, int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		var prev int
		err := s.db.QueryRowContext(ctx, `SELECT quantity FROM catalog_items WHERE id = ?`, id).Scan(&prev)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, 0, ErrItemNotFound
			}
			return 0, 0, fmt.Errorf("reading stock: %w", err)
		}

		cur := next(prev)
		ok, err := s.CompareAndSetStock(ctx, id, prev, cur)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			return prev, cur, nil
		}
	}
}

// CompareAndSetStock sets the quantity only if it still equals expected.
func (s *SQLiteStore) CompareAndSetStock(ctx context.Context, id string, expected, value int) (bool, error) {
	if value < 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidQuantity, value)
	}

	ts := s.now().Format(timeLayout)
	result, err := s.db.ExecContext(ctx, `
		UPDATE catalog_items
		SET quantity = ?, stock_updated_at = ?, updated_at = ?
		WHERE id = ? AND quantity = ?`,
		value, ts, ts, id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("updating stock: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	if _, err := s.GetItem(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
