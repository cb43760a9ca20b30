package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingtsun-academy/progression-engine/internal/application/query"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) Get(context.Context, string) (*query.ProgressView, error) { return nil, nil }
func (c *recordingCache) Set(context.Context, *query.ProgressView) error          { return nil }
func (c *recordingCache) Invalidate(_ context.Context, id string) error {
	c.invalidated = append(c.invalidated, id)
	return nil
}

type jsonEvent struct {
	shared.BaseEvent
	payload map[string]interface{}
}

func (e jsonEvent) Payload() map[string]interface{} { return e.payload }

func TestProgressCacheInvalidator(t *testing.T) {
	cache := &recordingCache{}
	h := NewProgressCacheInvalidator(cache, nil)

	l, err := lesson.NewLesson("school", shared.BranchWingTsun, lesson.TypeGroup, time.Now(), 2, "u", "")
	require.NoError(t, err)

	require.NoError(t, h.Handle(lesson.NewAttendanceCreditedEvent(l, []string{"s1", "s2"})))
	require.NoError(t, h.Handle(progression.NewGradeChangedEvent("s3", shared.BranchEscrima, 1, 2, progression.ReasonManual)))
	require.NoError(t, h.Handle(jsonEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventSeminarEvaluated, "e1"),
		payload:   map[string]interface{}{"student_ids": []interface{}{"s4"}},
	}))

	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, cache.invalidated)
}

type subscriber struct {
	types []shared.EventType
}

func (s *subscriber) Subscribe(t shared.EventType, _ shared.EventHandler) error {
	s.types = append(s.types, t)
	return nil
}

func (s *subscriber) SubscribeAll(shared.EventHandler) error { return nil }

func TestProgressCacheInvalidator_Register(t *testing.T) {
	sub := &subscriber{}
	require.NoError(t, NewProgressCacheInvalidator(&recordingCache{}, nil).Register(sub))
	assert.ElementsMatch(t, ProgressEvents, sub.types)
}

type flakyCache struct {
	recordingCache
	failures int
}

func (c *flakyCache) Invalidate(ctx context.Context, id string) error {
	if c.failures > 0 {
		c.failures--
		return errors.New("i/o timeout")
	}
	return c.recordingCache.Invalidate(ctx, id)
}

func TestProgressCacheInvalidator_RetriesTransientFailures(t *testing.T) {
	cache := &flakyCache{failures: 2}
	h := NewProgressCacheInvalidator(cache, nil)

	require.NoError(t, h.Handle(progression.NewGradeChangedEvent("s1", shared.BranchWingTsun, 1, 2, progression.ReasonManual)))
	assert.Equal(t, []string{"s1"}, cache.invalidated)

	cache.failures = 10
	assert.Error(t, h.Handle(progression.NewGradeChangedEvent("s2", shared.BranchWingTsun, 2, 3, progression.ReasonManual)))
}
