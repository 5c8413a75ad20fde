package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for _, m := range f.msgs {
		keys = append(keys, m.key)
	}
	return keys
}

func TestPublisherLifecycle(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, nil)
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	job := &models.ExportJob{ID: "j1", Status: models.JobStatusPending, Metadata: models.ExportMetadata{Title: "Demo"}}
	p.JobUpdated(job)
	job.Status = models.JobStatusProcessing
	p.JobUpdated(job)
	p.JobUpdated(job) // progress updates keep the status
	job.Status = models.JobStatusCompleted
	job.OutputPath = "/exports/Demo.mp4"
	p.JobUpdated(job)

	require.Equal(t, []string{RoutingKeyStarted, RoutingKeyCompleted}, ch.keys())

	last := ch.msgs[1]
	assert.Equal(t, ExchangeName, last.exchange)
	assert.Equal(t, "application/json", last.msg.ContentType)
	assert.Equal(t, amqp.Persistent, last.msg.DeliveryMode)
	assert.Equal(t, "j1.export.completed", last.msg.MessageId)

	var event models.JobEvent
	require.NoError(t, json.Unmarshal(last.msg.Body, &event))
	assert.Equal(t, "export.completed", event.Event)
	assert.Equal(t, "Demo", event.Title)
	assert.Equal(t, "/exports/Demo.mp4", event.OutputPath)
	assert.True(t, fixed.Equal(event.Timestamp))
}

func TestPublisherFailureAndCancel(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, nil)

	p.JobUpdated(&models.ExportJob{ID: "a", Status: models.JobStatusCancelled})
	p.JobUpdated(&models.ExportJob{ID: "b", Status: models.JobStatusFailed,
		Error: &models.JobErrorInfo{Kind: "fatal", Message: "Insufficient disk space"}})

	require.Equal(t, []string{RoutingKeyCancelled, RoutingKeyFailed}, ch.keys())
	var event models.JobEvent
	require.NoError(t, json.Unmarshal(ch.msgs[1].msg.Body, &event))
	require.NotNil(t, event.Error)
	assert.Equal(t, "Insufficient disk space", event.Error.Message)
}

func TestPublisherErrorsAreNotFatal(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisher(ch, nil)

	assert.NotPanics(t, func() {
		p.JobUpdated(&models.ExportJob{ID: "a", Status: models.JobStatusProcessing})
	})
	err := p.Publish(context.Background(), RoutingKeyFailed, models.JobEvent{JobID: "a"})
	assert.Error(t, err)
}

func TestRoutingKey(t *testing.T) {
	for _, s := range []models.JobStatus{models.JobStatusPending, models.JobStatusCancelling} {
		_, ok := routingKey(s)
		assert.False(t, ok, s)
	}
	key, ok := routingKey(models.JobStatusProcessing)
	assert.True(t, ok)
	assert.Equal(t, RoutingKeyStarted, key)
}
