package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/storefront-telemetry/internal/alert"
	"github.com/nerrad567/storefront-telemetry/internal/broadcast"
	"github.com/nerrad567/storefront-telemetry/internal/device"
	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/storefront-telemetry/internal/inventory"
	"github.com/nerrad567/storefront-telemetry/internal/keylock"
	"github.com/nerrad567/storefront-telemetry/internal/reading"
	"github.com/nerrad567/storefront-telemetry/internal/sensor"
)

// DefaultOperationTimeout bounds each store and reconciliation call.
const DefaultOperationTimeout = 2 * time.Second

// compensationTimeout bounds the calls that undo a rejected submission:
// deleting its stored reading and reverting its stock change. They run on
// a fresh context because the request context may be done.
const compensationTimeout = 5 * time.Second

// Logger defines the logging interface used by the pipeline.
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

// DeviceRegistry is the part of *device.Registry the pipeline uses.
type DeviceRegistry interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	RecordReading(ctx context.Context, id string, last device.LastReading) (*device.Device, error)
}

// Reconciler is the part of *inventory.Reconciler the pipeline uses.
type Reconciler interface {
	ReconcileWeight(ctx context.Context, itemID string, weight float64, origin inventory.Origin) (*inventory.WeightResult, error)
	ReconcileRFID(ctx context.Context, itemID string, action reading.RFIDAction, quantity int, origin inventory.Origin) (*inventory.RFIDResult, error)
	Revert(ctx context.Context, itemID string, source inventory.MovementSource, previous, current int, origin inventory.Origin) (bool, error)
}

// Publisher fans events out to observers. *broadcast.Hub satisfies it.
type Publisher interface {
	Publish(e broadcast.Event)
}

// PointWriter records time-series points. *influxdb.Client satisfies it.
type PointWriter interface {
	WriteReading(s influxdb.Sample)
	WriteStockLevel(itemID string, quantity int, source string, at time.Time)
}

// Deps are the collaborators of a Pipeline. Devices and Readings are
// required; the rest are optional.
type Deps struct {
	Devices    DeviceRegistry
	Readings   reading.Repository
	Reconciler Reconciler
	Publisher  Publisher
	Points     PointWriter
	Logger     Logger

	// OperationTimeout bounds each store and reconciliation call.
	// Zero means DefaultOperationTimeout.
	OperationTimeout time.Duration
}

// Stats are cumulative pipeline counters.
type Stats struct {
	Accepted     uint64 `json:"accepted"`
	Rejected     uint64 `json:"rejected"`
	Alerts       uint64 `json:"alerts"`
	StockChanges uint64 `json:"stock_changes"`
}

// Pipeline validates, evaluates, persists and broadcasts readings.
//
// Submissions run independently. Two submissions for the same device are
// serialised only around persisting the reading and updating the device,
// so the device's last reading always matches its newest stored reading.
// Stock changes serialise per catalog item inside the reconciler.
type Pipeline struct {
	devices    DeviceRegistry
	readings   reading.Repository
	reconciler Reconciler
	publisher  Publisher
	points     PointWriter
	logger     Logger
	timeout    time.Duration
	locks      *keylock.Striped
	now        func() time.Time

	accepted     atomic.Uint64
	rejected     atomic.Uint64
	alerts       atomic.Uint64
	stockChanges atomic.Uint64
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	p := &Pipeline{
		devices:    deps.Devices,
		readings:   deps.Readings,
		reconciler: deps.Reconciler,
		publisher:  deps.Publisher,
		points:     deps.Points,
		logger:     deps.Logger,
		timeout:    deps.OperationTimeout,
		locks:      keylock.New(keylock.DefaultStripes),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	if p.timeout <= 0 {
		p.timeout = DefaultOperationTimeout
	}
	return p
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Accepted:     p.accepted.Load(),
		Rejected:     p.rejected.Load(),
		Alerts:       p.alerts.Load(),
		StockChanges: p.stockChanges.Load(),
	}
}

// outcome carries the secondary results of one submission.
type outcome struct {
	thresholdAlert *alert.Alert
	lowStockAlert  *alert.Alert
	stock          *broadcast.StockChange
	reconciled     bool
}

// Ingest runs one submission through the pipeline and returns the stored
// reading, including any alert annotation.
//
// Stages: validate; evaluate the threshold alert and reconcile inventory
// concurrently; then, holding the device's lock, persist the reading,
// update the device, mark the reading processed if reconciliation ran and
// publish events. Readings of one device are therefore published in
// CreatedAt order.
//
// Errors:
//   - ErrInvalidSubmission, ErrUnknownDevice: nothing was changed.
//   - ErrIngestionTimeout, ErrPersistenceFailure: no reading is visible,
//     the device is unchanged and a stock change made by reconciliation
//     is reverted (see inventory.Reconciler.Revert).
//
// Reconciliation failures (including ErrCatalogItemNotFound) and
// broadcast are best effort and never fail the submission.
func (p *Pipeline) Ingest(ctx context.Context, sub Submission) (*reading.Reading, error) {
	rd, err := p.ingest(ctx, sub)
	if err != nil {
		p.rejected.Add(1)
		return nil, err
	}
	p.accepted.Add(1)
	return rd, nil
}

func (p *Pipeline) ingest(ctx context.Context, sub Submission) (*reading.Reading, error) {
	rd, dev, err := p.validate(ctx, sub)
	if err != nil {
		return nil, err
	}

	var out outcome
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.thresholdAlert = alert.EvaluateThreshold(rd.SensorKind, rd.Value, rd.Unit, rangeOf(dev.Thresholds))
		return nil
	})
	g.Go(func() error {
		p.reconcile(gctx, rd, &out)
		return nil
	})
	_ = g.Wait() // stages only log

	rd.Alert = alert.Merge(out.thresholdAlert, out.lowStockAlert)

	err = p.commit(ctx, rd, func() {
		if out.reconciled {
			opCtx, cancel := p.opContext(ctx)
			if err := p.readings.MarkProcessed(opCtx, rd.ID); err != nil {
				p.logger.Warn("marking reading processed failed", "reading_id", rd.ID, "error", err)
			} else {
				rd.Processed = true
			}
			cancel()
		}
		p.emit(rd, out)
	})
	if err != nil {
		p.revertStock(ctx, rd, out.stock)
		return nil, err
	}
	return rd, nil
}

// revertStock undoes the stock change of a rejected submission.
func (p *Pipeline) revertStock(ctx context.Context, rd *reading.Reading, ch *broadcast.StockChange) {
	if ch == nil || p.reconciler == nil {
		return
	}
	revCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	_, err := p.reconciler.Revert(revCtx, ch.ItemID, inventory.MovementSource(ch.Source),
		ch.Previous, ch.Current, inventory.Origin{ReadingID: rd.ID, DeviceID: rd.DeviceID})
	if err != nil {
		p.logger.Error("reverting stock change of rejected reading",
			"reading_id", rd.ID, "item_id", ch.ItemID,
			"previous", ch.Previous, "current", ch.Current, "error", err)
	}
}

// commit persists the reading and then records it on the device, under
// the device's lock, and runs committed before releasing it. If the
// device update fails the stored reading is deleted so no half-applied
// submission is visible.
func (p *Pipeline) commit(ctx context.Context, rd *reading.Reading, committed func()) error {
	unlock := p.locks.Lock(rd.DeviceID)
	defer unlock()

	rd.CreatedAt = p.now()

	// CreatedAt must order after the device's current snapshot even if
	// the clock has not advanced.
	opCtx, cancel := p.opContext(ctx)
	if cur, err := p.devices.GetDevice(opCtx, rd.DeviceID); err == nil &&
		cur.LastReading != nil && !rd.CreatedAt.After(cur.LastReading.Timestamp) {
		rd.CreatedAt = cur.LastReading.Timestamp.Add(time.Nanosecond)
	}
	cancel()

	opCtx, cancel = p.opContext(ctx)
	err := p.readings.Insert(opCtx, rd)
	cancel()
	if err != nil {
		return classify("storing reading", err)
	}

	opCtx, cancel = p.opContext(ctx)
	_, err = p.devices.RecordReading(opCtx, rd.DeviceID, device.LastReading{
		Value:     rd.Value,
		Unit:      rd.Unit,
		Timestamp: rd.CreatedAt,
	})
	cancel()
	if err == nil {
		committed()
		return nil
	}

	delCtx, delCancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer delCancel()
	if delErr := p.readings.Delete(delCtx, rd.ID); delErr != nil {
		p.logger.Error("removing reading after device update failure",
			"reading_id", rd.ID, "device_id", rd.DeviceID, "error", delErr)
	}
	return classify("updating device", err)
}

// reconcile applies weight and RFID readings to catalog stock.
func (p *Pipeline) reconcile(ctx context.Context, rd *reading.Reading, out *outcome) {
	if p.reconciler == nil || rd.CatalogItemID == nil {
		return
	}
	itemID := *rd.CatalogItemID
	origin := inventory.Origin{ReadingID: rd.ID, DeviceID: rd.DeviceID}

	opCtx, cancel := p.opContext(ctx)
	defer cancel()

	switch rd.SensorKind {
	case sensor.KindWeight:
		weight, ok := rd.Value.Float()
		if !ok {
			return
		}
		res, err := p.reconciler.ReconcileWeight(opCtx, itemID, weight, origin)
		if err != nil {
			p.logReconcileError(rd, itemID, err)
			return
		}
		out.reconciled = true
		out.lowStockAlert = res.LowStock

		est := res.Estimate
		if rd.Metadata.Weight == nil {
			rd.Metadata.Weight = &reading.WeightSample{}
		}
		rd.Metadata.Weight.EstimatedQuantity = &est

		if res.Changed {
			out.stock = &broadcast.StockChange{
				ItemID: itemID, Previous: res.Previous, Current: res.Current,
				Source: string(inventory.SourceWeight), ReadingID: rd.ID, DeviceID: rd.DeviceID,
			}
		}

	case sensor.KindRFID:
		scan := rd.Metadata.RFID
		if scan == nil {
			scan = &reading.RFIDScan{Action: reading.ActionInbound}
			rd.Metadata.RFID = scan
		}
		res, err := p.reconciler.ReconcileRFID(opCtx, itemID, scan.Action, scan.Quantity, origin)
		if err != nil {
			p.logReconcileError(rd, itemID, err)
			return
		}
		out.reconciled = true

		prev, cur := res.Previous, res.Current
		scan.Action = res.Action
		scan.Quantity = res.Quantity
		scan.PreviousStock = &prev
		scan.CurrentStock = &cur

		if res.Changed {
			out.stock = &broadcast.StockChange{
				ItemID: itemID, Previous: prev, Current: cur,
				Source: string(inventory.SourceRFID), ReadingID: rd.ID, DeviceID: rd.DeviceID,
			}
		}
	}
}

func (p *Pipeline) logReconcileError(rd *reading.Reading, itemID string, err error) {
	if errors.Is(err, ErrCatalogItemNotFound) {
		p.logger.Warn("catalog item not found, skipping reconciliation",
			"reading_id", rd.ID, "device_id", rd.DeviceID, "item_id", itemID)
		return
	}
	p.logger.Error("inventory reconciliation failed",
		"reading_id", rd.ID, "device_id", rd.DeviceID, "item_id", itemID, "error", err)
}

// AlertRaised is the payload of an alert.raised event.
type AlertRaised struct {
	ReadingID string       `json:"reading_id"`
	DeviceID  string       `json:"device_id"`
	Alert     *alert.Alert `json:"alert"`
}

// emit publishes events and time-series points for an accepted reading.
func (p *Pipeline) emit(rd *reading.Reading, out outcome) {
	itemID := ""
	if rd.CatalogItemID != nil {
		itemID = *rd.CatalogItemID
	}

	// The reading carries one merged annotation, but each rule that fired
	// is raised on its own so threshold and low-stock severities stay
	// distinct.
	var raised []*alert.Alert
	for _, a := range []*alert.Alert{out.thresholdAlert, out.lowStockAlert} {
		if a != nil {
			raised = append(raised, a)
		}
	}
	p.alerts.Add(uint64(len(raised)))
	if out.stock != nil {
		p.stockChanges.Add(1)
	}

	if p.publisher != nil {
		p.publisher.Publish(broadcast.NewEvent(broadcast.KindReadingIngested, rd.DeviceID, itemID, rd))
		for _, a := range raised {
			p.publisher.Publish(broadcast.NewEvent(broadcast.KindAlertRaised, rd.DeviceID, itemID,
				AlertRaised{ReadingID: rd.ID, DeviceID: rd.DeviceID, Alert: a}))
		}
		if out.stock != nil {
			p.publisher.Publish(broadcast.NewEvent(broadcast.KindStockChanged, rd.DeviceID, itemID, *out.stock))
		}
	}

	if p.points != nil {
		if v, ok := rd.Value.Float(); ok {
			p.points.WriteReading(influxdb.Sample{
				DeviceID:       rd.DeviceID,
				Kind:           string(rd.SensorKind),
				Unit:           rd.Unit,
				Warehouse:      rd.Location.Warehouse,
				CatalogItemID:  itemID,
				Value:          v,
				AlertTriggered: rd.Alert != nil,
				At:             rd.CreatedAt,
			})
		}
		if out.stock != nil {
			p.points.WriteStockLevel(out.stock.ItemID, out.stock.Current, out.stock.Source, rd.CreatedAt)
		}
	}
}

func (p *Pipeline) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

// classify maps a store error onto the ingestion taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrIngestionTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistenceFailure, op, err)
}

func rangeOf(t *device.Thresholds) *alert.Range {
	if t == nil {
		return nil
	}
	return &alert.Range{Min: t.Min, Max: t.Max}
}
