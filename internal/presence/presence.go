// Package presence clears the online flag of devices that stop reporting.
//
// Ingestion only ever sets a device online. The Sweeper runs on a gocron
// schedule and marks devices offline once they have been silent for
// longer than the configured window, publishing a device.status_changed
// event for each.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/nerrad567/storefront-telemetry/internal/broadcast"
)

// Logger defines the logging interface used by the Sweeper.
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

// OfflineMarker is the part of *device.Registry the sweeper uses.
type OfflineMarker interface {
	MarkOffline(ctx context.Context, silence time.Duration, now time.Time) ([]string, error)
}

// Publisher receives status change events. *broadcast.Hub satisfies it.
type Publisher interface {
	Publish(e broadcast.Event)
}

// StatusChange is the payload of a device.status_changed event raised by
// the sweeper.
type StatusChange struct {
	DeviceID string `json:"device_id"`
	IsOnline bool   `json:"is_online"`
	Reason   string `json:"reason"`
}

// Sweeper periodically marks silent devices offline.
type Sweeper struct {
	devices   OfflineMarker
	publisher Publisher
	silence   time.Duration
	interval  time.Duration
	logger    Logger
	now       func() time.Time
}

// NewSweeper creates a sweeper. publisher may be nil.
func NewSweeper(devices OfflineMarker, publisher Publisher, silence, interval time.Duration) *Sweeper {
	return &Sweeper{
		devices:   devices,
		publisher: publisher,
		silence:   silence,
		interval:  interval,
		logger:    noopLogger{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// Sweep runs one pass and returns the devices it marked offline.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	ids, err := s.devices.MarkOffline(ctx, s.silence, s.now())
	if err != nil {
		return nil, fmt.Errorf("presence sweep: %w", err)
	}

	if s.publisher != nil {
		for _, id := range ids {
			s.publisher.Publish(broadcast.NewEvent(broadcast.KindDeviceStatusChanged, id, "",
				StatusChange{DeviceID: id, IsOnline: false, Reason: "silent"}))
		}
	}
	return ids, nil
}

// Run sweeps every interval until ctx is cancelled. Overlapping runs are
// skipped rather than queued.
func (s *Sweeper) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating presence scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("presence sweep failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling presence sweep: %w", err)
	}

	scheduler.Start()
	s.logger.Info("presence sweeper started", "silence", s.silence, "interval", s.interval)

	<-ctx.Done()

	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stopping presence scheduler: %w", err)
	}
	return nil
}
