package services

import (
	"errors"
	"testing"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/ingest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	connected bool
	err       error
	topics    []string
	payloads  []interface{}
}

func (p *fakePublisher) IsConnected() bool { return p.connected }

func (p *fakePublisher) Publish(topic string, payload interface{}) error {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func TestNotifyIngestionPublishesSummary(t *testing.T) {
	pub := &fakePublisher{connected: true}
	n := NewNotifierService(pub, "cctv")

	n.NotifyIngestion(&ingest.Result{RunID: "r1", Model: models.ModelYOLO, RowsParsed: 3, RowsWritten: 2, RowsSkipped: 1})

	require.Len(t, pub.topics, 1)
	assert.Equal(t, "cctv/ingestion", pub.topics[0])
	event, ok := pub.payloads[0].(IngestionEvent)
	require.True(t, ok)
	assert.Equal(t, "r1", event.RunID)
	assert.Equal(t, "yolo", event.Model)
	assert.Equal(t, int64(1), event.RowsSkipped)
}

func TestNotifyIngestionSkipsWhenDisconnected(t *testing.T) {
	pub := &fakePublisher{}
	NewNotifierService(pub, "cctv").NotifyIngestion(&ingest.Result{RunID: "r1"})
	assert.Empty(t, pub.topics)

	NewNotifierService(nil, "cctv").NotifyIngestion(&ingest.Result{RunID: "r1"})
}

func TestNotifyIngestionSwallowsPublishErrors(t *testing.T) {
	pub := &fakePublisher{connected: true, err: errors.New("broker gone")}
	NewNotifierService(pub, "cctv").NotifyIngestion(&ingest.Result{RunID: "r1"})
	assert.Len(t, pub.topics, 1)
}
