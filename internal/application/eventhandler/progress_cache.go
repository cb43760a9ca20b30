// Package eventhandler contains post-commit reactions to domain events.
package eventhandler

import (
	"context"
	"errors"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/application/query"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
	"github.com/wingtsun-academy/progression-engine/pkg/retry"
)

// ProgressEvents are the event types after which a student's progress view
// is stale.
var ProgressEvents = []shared.EventType{
	shared.EventAttendanceCredited,
	shared.EventAttendanceReverted,
	shared.EventGradeChanged,
	shared.EventProgressCreated,
	shared.EventSeminarEvaluated,
}

// ProgressCacheInvalidator drops cached progress views of every student an
// event touched.
type ProgressCacheInvalidator struct {
	cache   query.ProgressCache
	log     *logger.Logger
	timeout time.Duration
	retrier *retry.Retrier
}

// NewProgressCacheInvalidator creates a new invalidator.
func NewProgressCacheInvalidator(cache query.ProgressCache, log *logger.Logger) *ProgressCacheInvalidator {
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressCacheInvalidator{
		cache:   cache,
		log:     log.With(logger.Component("progress_cache_invalidator")),
		timeout: 2 * time.Second,
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(200*time.Millisecond),
			retry.WithRetryIf(func(error) bool { return true }),
		),
	}
}

// Register subscribes the invalidator to every progress-changing event.
func (h *ProgressCacheInvalidator) Register(bus shared.EventSubscriber) error {
	for _, t := range ProgressEvents {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle invalidates the views named by the event payload.
func (h *ProgressCacheInvalidator) Handle(event shared.Event) error {
	ids := StudentIDs(event)
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var errs []error
	for _, id := range ids {
		err := h.retrier.Do(ctx, func(ctx context.Context) error {
			return h.cache.Invalidate(ctx, id)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	h.log.Debug("progress views invalidated",
		logger.String("event_type", string(event.EventType())),
		logger.Count(len(ids)))
	return errors.Join(errs...)
}

// StudentIDs extracts the affected student ids from an event payload. It
// accepts both typed payloads and payloads decoded from JSON.
func StudentIDs(event shared.Event) []string {
	payload := event.Payload()
	var ids []string
	if id, ok := payload["student_id"].(string); ok && id != "" {
		ids = append(ids, id)
	}
	switch list := payload["student_ids"].(type) {
	case []string:
		ids = append(ids, list...)
	case []interface{}:
		for _, v := range list {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	return ids
}
