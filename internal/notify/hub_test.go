package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/models"
	"strata/internal/notify"
)

func event(kind notify.Kind) notify.Event {
	return notify.Event{
		Kind:     kind,
		ConfigID: uuid.New(),
		Status:   models.StatusModified,
		At:       time.Now(),
	}
}

func TestHubDeliversByKind(t *testing.T) {
	hub := notify.NewHub()
	defer hub.Close()

	var content, status []notify.Event
	hub.Subscribe(notify.ConfigContentChanged, func(ev notify.Event) error {
		content = append(content, ev)
		return nil
	})
	hub.Subscribe(notify.ConfigStatusChanged, func(ev notify.Event) error {
		status = append(status, ev)
		return nil
	})

	ev := event(notify.ConfigContentChanged)
	require.NoError(t, hub.Publish(context.Background(), ev))

	require.Len(t, content, 1)
	assert.Equal(t, ev.ConfigID, content[0].ConfigID)
	assert.Empty(t, status)
}

func TestHubSubscriberErrorPropagates(t *testing.T) {
	hub := notify.NewHub()
	defer hub.Close()

	boom := errors.New("cache poisoned")
	hub.Subscribe(notify.ConfigContentChanged, func(notify.Event) error {
		return boom
	})

	err := hub.Publish(context.Background(), event(notify.ConfigContentChanged))
	require.Error(t, err)
}

func TestHubNoSubscribers(t *testing.T) {
	hub := notify.NewHub()
	defer hub.Close()

	assert.NoError(t, hub.Publish(context.Background(), event(notify.ConfigStatusChanged)))
}

type recordSink struct {
	name string
	log  *[]string
	err  error
}

func (s recordSink) Publish(context.Context, notify.Event) error {
	*s.log = append(*s.log, s.name)
	return s.err
}

func TestMultiStopsAtFirstError(t *testing.T) {
	var calls []string
	boom := errors.New("nats down")
	m := notify.Multi{
		recordSink{name: "log", log: &calls},
		recordSink{name: "nats", log: &calls, err: boom},
		recordSink{name: "hub", log: &calls},
	}

	err := m.Publish(context.Background(), event(notify.ConfigContentChanged))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"log", "nats"}, calls)
}

func TestMultiEmptyAndDiscard(t *testing.T) {
	assert.NoError(t, notify.Multi{}.Publish(context.Background(), event(notify.ConfigContentChanged)))
	assert.NoError(t, notify.Discard{}.Publish(context.Background(), event(notify.ConfigContentChanged)))
}
