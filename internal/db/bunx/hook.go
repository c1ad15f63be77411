package bunx

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// QueryRecorder receives one observation per executed statement.
type QueryRecorder interface {
	RecordQuery(ctx context.Context, operation string, durationMs float64, err error)
}

// MetricsHook forwards bun query events to a QueryRecorder.
type MetricsHook struct {
	recorder QueryRecorder
}

var _ bun.QueryHook = (*MetricsHook)(nil)

// NewMetricsHook returns a hook reporting to rec, or nil when rec is nil.
func NewMetricsHook(rec QueryRecorder) *MetricsHook {
	if rec == nil {
		return nil
	}
	return &MetricsHook{recorder: rec}
}

// BeforeQuery implements bun.QueryHook
func (h *MetricsHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery implements bun.QueryHook. sql.ErrNoRows is a lookup miss, not a failure.
func (h *MetricsHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	err := event.Err
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	ms := float64(time.Since(event.StartTime)) / float64(time.Millisecond)
	h.recorder.RecordQuery(ctx, event.Operation(), ms, err)
}
