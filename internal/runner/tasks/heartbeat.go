package tasks

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fte-hq/fte-connectors/internal/metrics"
	"github.com/fte-hq/fte-connectors/internal/whatsapp"
)

// StatusSource reports the WhatsApp session state.
type StatusSource interface {
	Status() whatsapp.Status
}

// PendingCounter counts action records awaiting follow-up.
type PendingCounter interface {
	Pending() (int, error)
}

// HeartbeatTask publishes session readiness and the action backlog as
// gauges and logs a line when either needs attention.
type HeartbeatTask struct {
	session  StatusSource
	pending  PendingCounter
	schedule string
	logger   *log.Logger
}

// NewHeartbeatTask creates the heartbeat. pending may be nil.
func NewHeartbeatTask(session StatusSource, pending PendingCounter, schedule string) *HeartbeatTask {
	if schedule == "" {
		schedule = "0 * * * * *"
	}
	return &HeartbeatTask{
		session:  session,
		pending:  pending,
		schedule: schedule,
		logger:   log.New(os.Stderr, "[HEARTBEAT] ", log.LstdFlags),
	}
}

// Name returns the task name
func (t *HeartbeatTask) Name() string {
	return "whatsapp-heartbeat"
}

// Schedule returns the cron schedule
func (t *HeartbeatTask) Schedule() string {
	return t.schedule
}

// Timeout returns the task timeout
func (t *HeartbeatTask) Timeout() time.Duration {
	return 10 * time.Second
}

// Run samples the session and the action directory.
func (t *HeartbeatTask) Run(ctx context.Context) error {
	status := t.session.Status()
	if status.Ready {
		metrics.SessionReady.Set(1)
	} else {
		metrics.SessionReady.Set(0)
		if status.Initialized {
			t.logger.Println("WhatsApp client initialized but not ready; scan the QR code if pairing is pending")
		}
	}

	if t.pending == nil {
		return nil
	}
	n, err := t.pending.Pending()
	if err != nil {
		return fmt.Errorf("failed to count action records: %w", err)
	}
	metrics.ActionRecordsPending.Set(float64(n))
	return nil
}
