package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/storefront-telemetry/internal/keylock"
	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// Logger is satisfied by logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the cached view of the device table.
//
// Reads are served from memory. Writes go to the repository as a single
// atomic statement, then the cached copy is replaced. Writes for the same
// device are serialised by a striped per-device lock so the cache never
// goes backwards relative to the store; writes for different devices run
// in parallel.
type Registry struct {
	repo    Repository
	cacheMu sync.RWMutex
	cache   map[string]*Device
	locks   *keylock.Striped
	logger  Logger
	now     func() time.Time
}

// NewRegistry returns an empty registry; call RefreshCache before use.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		locks:  keylock.New(keylock.DefaultStripes),
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache replaces the cache with the repository contents.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a device added by another process)
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	if _, raced := r.cache[id]; !raced {
		r.cache[id] = device.DeepCopy()
	}
	r.cacheMu.Unlock()

	return device, nil
}

// ListDevices retrieves all devices ordered by name.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	return r.filter(ctx, func(*Device) bool { return true }, r.repo.List)
}

// ListByKind retrieves all devices carrying a sensor kind.
func (r *Registry) ListByKind(ctx context.Context, kind sensor.Kind) ([]Device, error) {
	return r.filter(ctx,
		func(d *Device) bool { return d.Kind == kind },
		func(ctx context.Context) ([]Device, error) { return r.repo.ListByKind(ctx, kind) },
	)
}

// ListByWarehouse retrieves all devices located in a warehouse.
func (r *Registry) ListByWarehouse(ctx context.Context, warehouse string) ([]Device, error) {
	return r.filter(ctx,
		func(d *Device) bool { return d.Location.Warehouse == warehouse },
		func(ctx context.Context) ([]Device, error) { return r.repo.ListByWarehouse(ctx, warehouse) },
	)
}

// filter serves a listing from the cache when it is populated, otherwise
// from the repository.
func (r *Registry) filter(ctx context.Context, match func(*Device) bool, fallback func(context.Context) ([]Device, error)) ([]Device, error) {
	r.cacheMu.RLock()
	if len(r.cache) == 0 {
		r.cacheMu.RUnlock()
		return fallback(ctx)
	}

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		if match(d) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name == devices[j].Name {
			return devices[i].ID < devices[j].ID
		}
		return devices[i].Name < devices[j].Name
	})
	return devices, nil
}

// CreateDevice validates and persists a new device.
// Devices are provisioned outside the telemetry core; this is used for
// seeding and tests.
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	if device.ID == "" {
		device.ID = GenerateID()
	}
	if device.Status == "" {
		device.Status = StatusActive
	}

	if err := ValidateDevice(device); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "id", device.ID, "name", device.Name, "kind", device.Kind)
	return nil
}

// UpdateStatus applies a partial update of status, online flag and battery.
// Returns the updated device.
func (r *Registry) UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*Device, error) {
	if err := ValidateStatusUpdate(update); err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	now := r.now()
	if err := r.repo.UpdateStatus(ctx, id, update, now); err != nil {
		return nil, err
	}

	updated, err := r.mutateCached(ctx, id, func(d *Device) {
		if update.Status != nil {
			d.Status = *update.Status
		}
		if update.IsOnline != nil {
			d.IsOnline = *update.IsOnline
		}
		if update.BatteryLevel != nil {
			b := *update.BatteryLevel
			d.BatteryLevel = &b
		}
		d.UpdatedAt = now
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("device status updated", "id", id)
	return updated, nil
}

// RecordReading marks a device online and overwrites its last-reading
// snapshot and last-seen time. The store update is a single statement and
// the cache swap happens under the device's lock.
// Returns the updated device.
func (r *Registry) RecordReading(ctx context.Context, id string, last LastReading) (*Device, error) {
	if last.Timestamp.IsZero() {
		last.Timestamp = r.now()
	}

	unlock := r.locks.Lock(id)
	defer unlock()

	if err := r.repo.RecordReading(ctx, id, last); err != nil {
		return nil, err
	}

	updated, err := r.mutateCached(ctx, id, func(d *Device) {
		lr := last
		seen := last.Timestamp
		d.IsOnline = true
		d.LastReading = &lr
		d.LastSeenAt = &seen
		d.UpdatedAt = seen
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("device reading recorded", "id", id)
	return updated, nil
}

// MarkOffline flips devices that have been silent for longer than silence
// to offline. Returns the IDs that changed.
//
// Each candidate is re-checked and flipped under its device lock, so a
// reading recorded concurrently wins and the device stays online.
func (r *Registry) MarkOffline(ctx context.Context, silence time.Duration, now time.Time) ([]string, error) {
	cutoff := now.Add(-silence)
	candidates, err := r.repo.ListStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, id := range candidates {
		changed, err := r.markOffline(ctx, id, cutoff, now)
		if err != nil {
			return ids, err
		}
		if changed {
			ids = append(ids, id)
		}
	}

	if len(ids) > 0 {
		r.logger.Info("devices marked offline", "count", len(ids))
	}
	return ids, nil
}

func (r *Registry) markOffline(ctx context.Context, id string, cutoff, now time.Time) (bool, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	changed, err := r.repo.MarkOfflineIfStale(ctx, id, cutoff, now)
	if err != nil || !changed {
		return false, err
	}

	_, cacheErr := r.mutateCached(ctx, id, func(d *Device) {
		d.IsOnline = false
		d.UpdatedAt = now
	})
	if cacheErr != nil {
		r.logger.Warn("refreshing offline device in cache failed", "id", id, "error", cacheErr)
	}
	return true, nil
}

// mutateCached replaces the cached device with a mutated deep copy.
// When the device is not cached it is loaded from the repository instead,
// which already reflects the mutation. Callers hold the device's lock.
func (r *Registry) mutateCached(ctx context.Context, id string, mutate func(*Device)) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	var updated *Device
	if ok {
		updated = cached.DeepCopy()
		mutate(updated)
	} else {
		fresh, err := r.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		updated = fresh
	}

	r.cacheMu.Lock()
	r.cache[id] = updated.DeepCopy()
	r.cacheMu.Unlock()

	return updated, nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats summarises the registry for monitoring.
type Stats struct {
	TotalDevices int                 `json:"total_devices"`
	Online       int                 `json:"online"`
	ByKind       map[sensor.Kind]int `json:"by_kind"`
	ByStatus     map[Status]int      `json:"by_status"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.cache),
		ByKind:       make(map[sensor.Kind]int),
		ByStatus:     make(map[Status]int),
	}

	for _, d := range r.cache {
		stats.ByKind[d.Kind]++
		stats.ByStatus[d.Status]++
		if d.IsOnline {
			stats.Online++
		}
	}

	return stats
}
