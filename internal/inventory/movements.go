package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Movement page limits.
const (
	defaultMovementLimit = 50
	maxMovementLimit     = 200
)

// RecordMovement appends a ledger entry. The ID and CreatedAt are
// generated if empty.
func (s *SQLiteStore) RecordMovement(ctx context.Context, m *StockMovement) error {
	if m.ID == "" {
		m.ID = "mov-" + uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_movements (id, item_id, reading_id, device_id, source, previous, current, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ItemID, m.ReadingID, m.DeviceID, string(m.Source),
		m.Previous, m.Current, m.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting stock movement: %w", err)
	}
	return nil
}

// ListMovements returns an item's movements, newest first.
func (s *SQLiteStore) ListMovements(ctx context.Context, filter MovementFilter) (*MovementList, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultMovementLimit
	}
	if filter.Limit > maxMovementLimit {
		filter.Limit = maxMovementLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stock_movements WHERE item_id = ?`, filter.ItemID).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting stock movements: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, reading_id, device_id, source, previous, current, created_at
		FROM stock_movements
		WHERE item_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		filter.ItemID, filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stock movements: %w", err)
	}
	defer rows.Close()

	movements := []StockMovement{}
	for rows.Next() {
		var m StockMovement
		var source, createdAt string
		var readingID, deviceID sql.NullString

		if err := rows.Scan(&m.ID, &m.ItemID, &readingID, &deviceID, &source,
			&m.Previous, &m.Current, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning stock movement: %w", err)
		}
		m.ReadingID = readingID.String
		m.DeviceID = deviceID.String
		m.Source = MovementSource(source)

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing movement timestamp %q: %w", createdAt, err)
		}
		m.CreatedAt = t

		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stock movements: %w", err)
	}

	return &MovementList{
		Movements: movements,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}, nil
}
