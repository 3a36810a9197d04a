package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/opensourcewtf/waaah/internal/common/logger"
	"github.com/opensourcewtf/waaah/internal/events/bus"
	v1 "github.com/opensourcewtf/waaah/pkg/api/v1"
)

// ActivityStore is the durable sink for activity records.
type ActivityStore interface {
	AppendLog(ctx context.Context, entry *v1.LogEntry) error
}

// Recorder mirrors human-readable activity to the durable log and the
// activity topic. The database write happens before the publish so
// subscribers never observe an event that is not yet durable.
type Recorder struct {
	store  ActivityStore
	bus    bus.EventBus
	logger *logger.Logger
}

// NewRecorder creates an activity recorder.
func NewRecorder(store ActivityStore, eventBus bus.EventBus, log *logger.Logger) *Recorder {
	return &Recorder{store: store, bus: eventBus, logger: log}
}

// Record appends one activity entry and publishes it on the activity topic.
func (r *Recorder) Record(ctx context.Context, category, message string, metadata map[string]interface{}) {
	entry := &v1.LogEntry{
		Category: category,
		Message:  message,
		Metadata: metadata,
	}
	if err := r.store.AppendLog(ctx, entry); err != nil {
		r.logger.Error("failed to append activity log",
			zap.String("category", category),
			zap.Error(err),
		)
		return
	}

	data := map[string]interface{}{
		"id":       entry.ID,
		"category": category,
		"message":  message,
	}
	for k, v := range metadata {
		data[k] = v
	}
	if err := r.bus.Publish(ctx, TopicActivity, bus.NewEvent("activity.logged", "core", data)); err != nil {
		r.logger.Warn("failed to publish activity event", zap.Error(err))
	}
}
