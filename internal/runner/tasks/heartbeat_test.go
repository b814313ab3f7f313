package tasks

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fte-hq/fte-connectors/internal/metrics"
	"github.com/fte-hq/fte-connectors/internal/whatsapp"
)

type staticStatus whatsapp.Status

func (s staticStatus) Status() whatsapp.Status { return whatsapp.Status(s) }

type staticPending struct {
	n   int
	err error
}

func (p staticPending) Pending() (int, error) { return p.n, p.err }

func TestHeartbeatTaskMetadata(t *testing.T) {
	task := NewHeartbeatTask(staticStatus{}, nil, "")
	assert.Equal(t, "whatsapp-heartbeat", task.Name())
	assert.Equal(t, "0 * * * * *", task.Schedule())
	assert.Positive(t, task.Timeout())

	assert.Equal(t, "@every 30s", NewHeartbeatTask(staticStatus{}, nil, "@every 30s").Schedule())
}

func TestHeartbeatTaskReady(t *testing.T) {
	task := NewHeartbeatTask(staticStatus{Initialized: true, Ready: true}, staticPending{n: 4}, "")

	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionReady))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.ActionRecordsPending))
}

func TestHeartbeatTaskNotReady(t *testing.T) {
	var logs bytes.Buffer
	task := NewHeartbeatTask(staticStatus{Initialized: true}, nil, "")
	task.logger = log.New(&logs, "", 0)

	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SessionReady))
	assert.Contains(t, logs.String(), "not ready")
}

func TestHeartbeatTaskPendingError(t *testing.T) {
	task := NewHeartbeatTask(staticStatus{}, staticPending{err: errors.New("permission denied")}, "")

	err := task.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
