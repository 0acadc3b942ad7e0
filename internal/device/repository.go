package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

const timeLayout = database.TimeLayout

// Repository persists devices. Each mutating call is one statement, so
// callers never observe a half-applied update.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Device, error)
	List(ctx context.Context) ([]Device, error)
	ListByKind(ctx context.Context, kind sensor.Kind) ([]Device, error)
	ListByWarehouse(ctx context.Context, warehouse string) ([]Device, error)

	// Create fails with ErrDeviceExists on a duplicate ID.
	Create(ctx context.Context, device *Device) error

	// UpdateStatus, RecordReading fail with ErrDeviceNotFound for an
	// unknown ID. RecordReading also marks the device online.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate, at time.Time) error
	RecordReading(ctx context.Context, id string, last LastReading) error

	// ListStale returns the IDs of online devices last seen before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]string, error)

	// MarkOfflineIfStale flips one device offline if it is online and was
	// last seen before cutoff. Reports whether it changed.
	MarkOfflineIfStale(ctx context.Context, id string, cutoff, now time.Time) (bool, error)
}

// SQLiteRepository is the Repository over the devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository expects a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
		SELECT id, name, kind, warehouse, zone, latitude, longitude,
			status, is_online, battery_level,
			last_value, last_unit, last_reading_at,
			threshold_min, threshold_max, catalog_item_id,
			last_seen_at, created_at, updated_at
		FROM devices`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	device, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectColumns+` ORDER BY name`)
}

// ListByKind retrieves all devices of a sensor kind.
func (r *SQLiteRepository) ListByKind(ctx context.Context, kind sensor.Kind) ([]Device, error) {
	return r.queryDevices(ctx, selectColumns+` WHERE kind = ? ORDER BY name`, string(kind))
}

// ListByWarehouse retrieves all devices in a warehouse.
func (r *SQLiteRepository) ListByWarehouse(ctx context.Context, warehouse string) ([]Device, error) {
	return r.queryDevices(ctx, selectColumns+` WHERE warehouse = ? ORDER BY name`, warehouse)
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	var lat, lng sql.NullFloat64
	if c := device.Location.Coordinates; c != nil {
		lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.Lng, Valid: true}
	}

	var thMin, thMax sql.NullFloat64
	if th := device.Thresholds; th != nil {
		thMin = nullableFloat(th.Min)
		thMax = nullableFloat(th.Max)
	}

	lastValue, lastUnit, lastAt, err := encodeLastReading(device.LastReading)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO devices (
			id, name, kind, warehouse, zone, latitude, longitude,
			status, is_online, battery_level,
			last_value, last_unit, last_reading_at,
			threshold_min, threshold_max, catalog_item_id,
			last_seen_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		string(device.Kind),
		device.Location.Warehouse,
		device.Location.Zone,
		lat,
		lng,
		string(device.Status),
		boolToInt(device.IsOnline),
		nullableInt(device.BatteryLevel),
		lastValue,
		lastUnit,
		lastAt,
		thMin,
		thMax,
		nullableString(device.CatalogItemID),
		nullableTime(device.LastSeenAt),
		device.CreatedAt.UTC().Format(timeLayout),
		device.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// UpdateStatus applies a partial status update in one statement.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, update StatusUpdate, at time.Time) error {
	sets := []string{"updated_at = ?"}
	args := []any{at.UTC().Format(timeLayout)}

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.IsOnline != nil {
		sets = append(sets, "is_online = ?")
		args = append(args, boolToInt(*update.IsOnline))
	}
	if update.BatteryLevel != nil {
		sets = append(sets, "battery_level = ?")
		args = append(args, *update.BatteryLevel)
	}
	args = append(args, id)

	query := "UPDATE devices SET " + strings.Join(sets, ", ") + " WHERE id = ?" //nolint:gosec // column names are fixed literals
	return r.execOne(ctx, "updating device status", query, args...)
}

// RecordReading marks the device online and stores its last reading.
func (r *SQLiteRepository) RecordReading(ctx context.Context, id string, last LastReading) error {
	lastValue, lastUnit, lastAt, err := encodeLastReading(&last)
	if err != nil {
		return err
	}

	query := `
		UPDATE devices
		SET is_online = 1, last_value = ?, last_unit = ?, last_reading_at = ?,
			last_seen_at = ?, updated_at = ?
		WHERE id = ?`

	return r.execOne(ctx, "recording device reading", query,
		lastValue, lastUnit, lastAt, lastAt, lastAt, id)
}

// ListStale returns online devices last seen before cutoff.
func (r *SQLiteRepository) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT id FROM devices
		WHERE is_online = 1 AND COALESCE(last_seen_at, created_at) < ?
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("listing stale devices: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning stale device id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale devices: %w", err)
	}
	return ids, nil
}

// MarkOfflineIfStale re-checks staleness in the UPDATE itself, so a
// reading recorded after ListStale keeps the device online.
func (r *SQLiteRepository) MarkOfflineIfStale(ctx context.Context, id string, cutoff, now time.Time) (bool, error) {
	query := `
		UPDATE devices
		SET is_online = 0, updated_at = ?
		WHERE id = ? AND is_online = 1 AND COALESCE(last_seen_at, created_at) < ?`

	result, err := r.db.ExecContext(ctx, query,
		now.UTC().Format(timeLayout), id, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("marking device offline: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// execOne runs a statement expected to touch exactly one device row.
func (r *SQLiteRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDeviceRow scans a row or rows result into a Device.
func scanDeviceRow(scanner rowScanner) (*Device, error) { //nolint:gocognit,gocyclo // scans many nullable columns into Device struct
	var d Device
	var kind, status string
	var lat, lng, thMin, thMax sql.NullFloat64
	var isOnline int
	var battery sql.NullInt64
	var lastValue, lastUnit, lastReadingAt sql.NullString
	var catalogItemID, lastSeenAt sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&kind,
		&d.Location.Warehouse,
		&d.Location.Zone,
		&lat,
		&lng,
		&status,
		&isOnline,
		&battery,
		&lastValue,
		&lastUnit,
		&lastReadingAt,
		&thMin,
		&thMax,
		&catalogItemID,
		&lastSeenAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Kind = sensor.Kind(kind)
	d.Status = Status(status)
	d.IsOnline = isOnline != 0

	if lat.Valid && lng.Valid {
		d.Location.Coordinates = &sensor.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	if battery.Valid {
		b := int(battery.Int64)
		d.BatteryLevel = &b
	}
	if thMin.Valid || thMax.Valid {
		d.Thresholds = &Thresholds{}
		if thMin.Valid {
			d.Thresholds.Min = &thMin.Float64
		}
		if thMax.Valid {
			d.Thresholds.Max = &thMax.Float64
		}
	}
	if catalogItemID.Valid {
		d.CatalogItemID = &catalogItemID.String
	}

	if lastValue.Valid && lastReadingAt.Valid {
		var v sensor.Value
		if err := json.Unmarshal([]byte(lastValue.String), &v); err != nil {
			return nil, fmt.Errorf("unmarshalling last_value: %w", err)
		}
		ts, err := time.Parse(timeLayout, lastReadingAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_reading_at: %w", err)
		}
		d.LastReading = &LastReading{Value: v, Unit: lastUnit.String, Timestamp: ts}
	}

	if lastSeenAt.Valid {
		t, err := time.Parse(timeLayout, lastSeenAt.String)
		if err == nil {
			d.LastSeenAt = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(timeLayout, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(timeLayout, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// encodeLastReading converts a last-reading snapshot into column values.
// The value is stored as JSON so numbers and RFID tags round-trip.
func encodeLastReading(lr *LastReading) (value, unit, at sql.NullString, err error) {
	if lr == nil {
		return value, unit, at, nil
	}
	raw, err := json.Marshal(lr.Value)
	if err != nil {
		return value, unit, at, fmt.Errorf("marshalling last reading value: %w", err)
	}
	value = sql.NullString{String: string(raw), Valid: true}
	unit = sql.NullString{String: lr.Unit, Valid: true}
	at = sql.NullString{String: lr.Timestamp.UTC().Format(timeLayout), Valid: true}
	return value, unit, at, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
