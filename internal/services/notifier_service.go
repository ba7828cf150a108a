package services

import (
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/ingest"

	log "github.com/sirupsen/logrus"
)

// Publisher is the part of the MQTT client the notifier needs.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, payload interface{}) error
}

// IngestionEvent is the message published after every successful ingestion.
type IngestionEvent struct {
	RunID              string `json:"run_id"`
	Source             string `json:"source,omitempty"`
	Model              string `json:"model"`
	Overwrite          bool   `json:"overwrite"`
	RowsParsed         int    `json:"rows_parsed"`
	RowsWritten        int64  `json:"rows_written"`
	RowsSkipped        int64  `json:"rows_skipped"`
	HaveUnknownCameras bool   `json:"have_unknown_cameras"`
}

// NotifierService publishes ingestion summaries to <topic>/ingestion.
type NotifierService struct {
	publisher Publisher
	topic     string
}

// NewNotifierService creates a notifier. A nil publisher disables publishing.
func NewNotifierService(publisher Publisher, baseTopic string) *NotifierService {
	log.Info("Initializing NotifierService")
	return &NotifierService{publisher: publisher, topic: baseTopic + "/ingestion"}
}

// NotifyIngestion implements ingest.Notifier. Publishing failures are logged only.
func (s *NotifierService) NotifyIngestion(result *ingest.Result) {
	if s.publisher == nil || !s.publisher.IsConnected() {
		log.Debug("NotifierService: publisher not connected, skipping ingestion event")
		return
	}

	event := IngestionEvent{
		RunID:              result.RunID,
		Source:             result.Source,
		Model:              string(result.Model),
		Overwrite:          result.Overwrite,
		RowsParsed:         result.RowsParsed,
		RowsWritten:        result.RowsWritten,
		RowsSkipped:        result.RowsSkipped,
		HaveUnknownCameras: result.HaveUnknownCameras,
	}
	if err := s.publisher.Publish(s.topic, event); err != nil {
		log.WithError(err).WithField("run_id", result.RunID).Warn("Failed to publish ingestion event")
	}
}
