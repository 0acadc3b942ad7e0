package reading

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/storefront-telemetry/internal/alert"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

const timeLayout = database.TimeLayout

// Repository defines the persistence contract for readings.
type Repository interface {
	// Insert stores a new reading.
	// Returns ErrReadingExists if the ID is already stored.
	Insert(ctx context.Context, r *Reading) error

	// GetByID retrieves a reading.
	// Returns ErrReadingNotFound if the reading does not exist.
	GetByID(ctx context.Context, id string) (*Reading, error)

	// Query returns readings matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]Reading, error)

	// MarkProcessed flips processed from false to true.
	// Returns ErrAlreadyProcessed on any later call and
	// ErrReadingNotFound for unknown IDs.
	MarkProcessed(ctx context.Context, id string) error

	// Delete removes a reading. Only ingestion compensation uses this.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
		SELECT id, device_id, sensor_kind, catalog_item_id, value_num, value_text,
			unit, warehouse, zone, latitude, longitude, metadata,
			alert_triggered, alert_severity, alert_message, alert_origin,
			processed, created_at
		FROM readings`

// Insert stores a new reading.
func (r *SQLiteRepository) Insert(ctx context.Context, rd *Reading) error {
	if rd.CreatedAt.IsZero() {
		rd.CreatedAt = time.Now().UTC()
	}

	var valueNum sql.NullFloat64
	var valueText sql.NullString
	if f, ok := rd.Value.Float(); ok {
		valueNum = sql.NullFloat64{Float64: f, Valid: true}
	} else {
		s, _ := rd.Value.Text()
		valueText = sql.NullString{String: s, Valid: true}
	}

	var metadata sql.NullString
	if !rd.Metadata.IsZero() {
		raw, err := json.Marshal(rd.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	var triggered int
	var severity, message, origin sql.NullString
	if a := rd.Alert; a != nil {
		if a.Triggered {
			triggered = 1
		}
		severity = sql.NullString{String: string(a.Severity), Valid: true}
		message = sql.NullString{String: a.Message, Valid: true}
		origin = sql.NullString{String: string(a.Origin), Valid: true}
	}

	var lat, lng sql.NullFloat64
	if c := rd.Location.Coordinates; c != nil {
		lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.Lng, Valid: true}
	}

	var itemID sql.NullString
	if rd.CatalogItemID != nil {
		itemID = sql.NullString{String: *rd.CatalogItemID, Valid: true}
	}

	query := `
		INSERT INTO readings (
			id, device_id, sensor_kind, catalog_item_id, value_num, value_text,
			unit, warehouse, zone, latitude, longitude, metadata,
			alert_triggered, alert_severity, alert_message, alert_origin,
			processed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	processed := 0
	if rd.Processed {
		processed = 1
	}

	_, err := r.db.ExecContext(ctx, query,
		rd.ID, rd.DeviceID, string(rd.SensorKind), itemID, valueNum, valueText,
		rd.Unit, rd.Location.Warehouse, rd.Location.Zone, lat, lng, metadata,
		triggered, severity, message, origin,
		processed, rd.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrReadingExists
		}
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// GetByID retrieves a reading by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Reading, error) {
	rd, err := scanReading(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReadingNotFound
		}
		return nil, fmt.Errorf("querying reading by id: %w", err)
	}
	return rd, nil
}

// Query returns readings matching f, newest first.
func (r *SQLiteRepository) Query(ctx context.Context, f Filter) ([]Reading, error) {
	var where []string
	var args []any

	if f.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.CatalogItemID != "" {
		where = append(where, "catalog_item_id = ?")
		args = append(args, f.CatalogItemID)
	}
	if f.AlertTriggered != nil {
		where = append(where, "alert_triggered = ?")
		if *f.AlertTriggered {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UTC().Format(timeLayout))
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, f.EffectiveLimit())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		readings = append(readings, *rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}

// MarkProcessed flips processed to true exactly once.
func (r *SQLiteRepository) MarkProcessed(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE readings SET processed = 1 WHERE id = ? AND processed = 0`, id)
	if err != nil {
		return fmt.Errorf("marking reading processed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing changed: either unknown or already processed.
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking reading exists: %w", err)
	}
	if exists == 0 {
		return ErrReadingNotFound
	}
	return ErrAlreadyProcessed
}

// Delete removes a reading.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM readings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting reading: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrReadingNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(scanner rowScanner) (*Reading, error) {
	var rd Reading
	var kind, createdAt string
	var itemID, valueText, metadata sql.NullString
	var severity, message, origin sql.NullString
	var valueNum, lat, lng sql.NullFloat64
	var triggered, processed int

	err := scanner.Scan(
		&rd.ID, &rd.DeviceID, &kind, &itemID, &valueNum, &valueText,
		&rd.Unit, &rd.Location.Warehouse, &rd.Location.Zone, &lat, &lng, &metadata,
		&triggered, &severity, &message, &origin,
		&processed, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	rd.SensorKind = sensor.Kind(kind)
	rd.Processed = processed != 0
	if lat.Valid && lng.Valid {
		rd.Location.Coordinates = &sensor.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	if itemID.Valid {
		rd.CatalogItemID = &itemID.String
	}

	if valueNum.Valid {
		rd.Value = sensor.Number(valueNum.Float64)
	} else {
		rd.Value = sensor.Text(valueText.String)
	}

	if metadata.Valid && metadata.String != "" {
		var raw map[string]any
		if err := json.Unmarshal([]byte(metadata.String), &raw); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
		rd.Metadata = ParseMetadata(rd.SensorKind, raw)
	}

	if severity.Valid {
		rd.Alert = &alert.Alert{
			Triggered: triggered != 0,
			Severity:  alert.Severity(severity.String),
			Message:   message.String,
			Origin:    alert.Origin(origin.String),
		}
	}

	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	rd.CreatedAt = ts

	return &rd, nil
}
