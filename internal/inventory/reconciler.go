package inventory

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/storefront-telemetry/internal/alert"
	"github.com/nerrad567/storefront-telemetry/internal/keylock"
	"github.com/nerrad567/storefront-telemetry/internal/reading"
)

// Logger defines the logging interface used by the Reconciler.
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

// Default reconciliation settings.
const (
	DefaultDeadBand     = 5
	DefaultRFIDQuantity = 1
)

// Config tunes the Reconciler. Zero values fall back to defaults.
type Config struct {
	// DeadBand is the largest |stock - estimate| that weight readings ignore.
	DeadBand int

	// DefaultUnitWeight is used when an item has no positive unit weight.
	DefaultUnitWeight float64
}

// Origin identifies the reading that triggered a reconciliation. It is
// copied into the movement ledger.
type Origin struct {
	ReadingID string
	DeviceID  string
}

// WeightResult describes a weight reconciliation.
type WeightResult struct {
	ItemID   string
	Estimate int
	Previous int
	Current  int
	Changed  bool
	LowStock *alert.Alert
}

// RFIDResult describes an RFID reconciliation.
type RFIDResult struct {
	ItemID   string
	Action   reading.RFIDAction
	Quantity int
	Previous int
	Current  int
	Changed  bool
}

// Reconciler derives stock changes from weight and RFID readings.
//
// Stock changes go through the Store's compare-and-swap, so concurrent
// reconciliations never lose an update. Weight reconciliation additionally
// holds a striped per-item lock across its read-compare-set; RFID deltas
// need no lock. Nothing blocks across items.
type Reconciler struct {
	store             Store
	deadBand          int
	defaultUnitWeight float64
	locks             *keylock.Striped
	logger            Logger
}

// NewReconciler creates a Reconciler over a Store.
func NewReconciler(store Store, cfg Config) *Reconciler {
	if cfg.DeadBand <= 0 {
		cfg.DeadBand = DefaultDeadBand
	}
	if cfg.DefaultUnitWeight <= 0 {
		cfg.DefaultUnitWeight = 1
	}
	return &Reconciler{
		store:             store,
		deadBand:          cfg.DeadBand,
		defaultUnitWeight: cfg.DefaultUnitWeight,
		locks:             keylock.New(keylock.DefaultStripes),
		logger:            noopLogger{},
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// EstimateQuantity converts a shelf weight into a unit count.
// Non-positive unit weights fall back to fallback; negative weights
// estimate zero.
func EstimateQuantity(weight, unitWeight, fallback float64) int {
	if unitWeight <= 0 {
		unitWeight = fallback
	}
	if unitWeight <= 0 {
		unitWeight = 1
	}
	est := math.Floor(weight / unitWeight)
	if est < 0 || math.IsNaN(est) {
		return 0
	}
	if est > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(est)
}

// ReconcileWeight estimates the on-shelf quantity from a weight reading.
//
// Stock is set to the estimate only when it differs from the current
// stock by more than the dead-band. The low-stock check always runs on the
// estimate, whether or not stock changed.
//
// Returns ErrItemNotFound if the item does not exist.
func (r *Reconciler) ReconcileWeight(ctx context.Context, itemID string, weight float64, origin Origin) (*WeightResult, error) {
	unlock := r.locks.Lock(itemID)
	defer unlock()

	for {
		item, err := r.store.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}

		estimate := EstimateQuantity(weight, item.UnitWeight, r.defaultUnitWeight)
		res := &WeightResult{
			ItemID:   itemID,
			Estimate: estimate,
			Previous: item.Quantity,
			Current:  item.Quantity,
			LowStock: alert.EvaluateLowStock(estimate, item.LowStockThreshold),
		}

		if abs(item.Quantity-estimate) <= r.deadBand {
			return res, nil
		}

		ok, err := r.store.CompareAndSetStock(ctx, itemID, item.Quantity, estimate)
		if err != nil {
			return nil, fmt.Errorf("setting stock from weight: %w", err)
		}
		if !ok {
			// An RFID delta landed between read and set; re-evaluate.
			continue
		}

		res.Current = estimate
		res.Changed = true
		r.recordMovement(ctx, itemID, SourceWeight, res.Previous, res.Current, origin)

		r.logger.Info("stock reconciled from weight",
			"item_id", itemID, "previous", res.Previous, "current", res.Current)
		return res, nil
	}
}

// ReconcileRFID applies an inbound (+quantity) or outbound (-quantity)
// scan. A quantity of zero or less means one unit. Outbound scans clamp at
// zero.
//
// Returns ErrItemNotFound if the item does not exist.
func (r *Reconciler) ReconcileRFID(ctx context.Context, itemID string, action reading.RFIDAction, quantity int, origin Origin) (*RFIDResult, error) {
	if quantity <= 0 {
		quantity = DefaultRFIDQuantity
	}

	delta := quantity
	if action == reading.ActionOutbound {
		delta = -quantity
	} else {
		action = reading.ActionInbound
	}

	prev, cur, err := r.store.AddStock(ctx, itemID, delta)
	if err != nil {
		return nil, err
	}

	res := &RFIDResult{
		ItemID:   itemID,
		Action:   action,
		Quantity: quantity,
		Previous: prev,
		Current:  cur,
		Changed:  prev != cur,
	}

	if res.Changed {
		r.recordMovement(ctx, itemID, SourceRFID, prev, cur, origin)
	}

	r.logger.Debug("stock reconciled from rfid",
		"item_id", itemID, "action", action, "quantity", quantity, "previous", prev, "current", cur)
	return res, nil
}

// Revert undoes a change made by ReconcileWeight or ReconcileRFID whose
// reading was then rejected. It reports whether stock was changed back.
//
// An RFID change is undone with the inverse delta, so deltas applied by
// other readings in between are kept. A weight change is undone only
// while stock still holds the value it set; a later reconciliation has
// otherwise superseded it and nothing is done.
func (r *Reconciler) Revert(ctx context.Context, itemID string, source MovementSource, previous, current int, origin Origin) (bool, error) {
	if previous == current {
		return false, nil
	}

	switch source {
	case SourceRFID:
		prev, cur, err := r.store.AddStock(ctx, itemID, previous-current)
		if err != nil {
			return false, fmt.Errorf("reverting rfid change: %w", err)
		}
		if prev == cur {
			return false, nil
		}
		r.recordMovement(ctx, itemID, SourceReversal, prev, cur, origin)
		r.logger.Info("stock change reverted",
			"item_id", itemID, "source", source, "previous", prev, "current", cur)
		return true, nil

	case SourceWeight:
		unlock := r.locks.Lock(itemID)
		defer unlock()

		ok, err := r.store.CompareAndSetStock(ctx, itemID, current, previous)
		if err != nil {
			return false, fmt.Errorf("reverting weight change: %w", err)
		}
		if !ok {
			r.logger.Warn("weight change superseded, not reverted",
				"item_id", itemID, "set", current, "reading_id", origin.ReadingID)
			return false, nil
		}
		r.recordMovement(ctx, itemID, SourceReversal, current, previous, origin)
		r.logger.Info("stock change reverted",
			"item_id", itemID, "source", source, "previous", current, "current", previous)
		return true, nil
	}
	return false, fmt.Errorf("inventory: cannot revert %q movement", source)
}

// recordMovement appends to the ledger. Failures are logged, not returned:
// the stock change has already been applied.
func (r *Reconciler) recordMovement(ctx context.Context, itemID string, source MovementSource, prev, cur int, origin Origin) {
	m := &StockMovement{
		ItemID:    itemID,
		ReadingID: origin.ReadingID,
		DeviceID:  origin.DeviceID,
		Source:    source,
		Previous:  prev,
		Current:   cur,
	}
	if err := r.store.RecordMovement(ctx, m); err != nil {
		r.logger.Warn("recording stock movement failed", "item_id", itemID, "error", err)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
