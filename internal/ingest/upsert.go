package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/cameras"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	StatusOK       = "ok"
	StatusError    = "error"
	SuccessMessage = "Report file was processed successfully"

	DefaultBatchSize = 1000
)

// Options controls one ingestion run.
type Options struct {
	Overwrite bool
	Source    string
}

// Result summarizes an ingestion run.
type Result struct {
	Status              string               `json:"status"`
	Message             string               `json:"message"`
	HaveUnknownCameras  bool                 `json:"have_unknown_cameras"`
	PKsOfUnknownCameras []uint               `json:"pks_of_unknown_cameras"`
	RunID               string               `json:"run_id"`
	Source              string               `json:"source,omitempty"`
	Model               models.DetectorModel `json:"model"`
	Overwrite           bool                 `json:"overwrite"`
	RowsParsed          int                  `json:"rows_parsed"`
	RowsWritten         int64                `json:"rows_written"`
	RowsSkipped         int64                `json:"rows_skipped"`
	CamerasCreated      []string             `json:"cameras_created,omitempty"`
}

// Notifier is told about every successful ingestion.
type Notifier interface {
	NotifyIngestion(result *Result)
}

// Ingester turns report files into stored detection records.
type Ingester struct {
	repo      repository.Repository
	cameras   *cameras.Service
	batchSize int
	notifiers []Notifier
}

// NewIngester creates an ingester. A non-positive batchSize uses DefaultBatchSize.
func NewIngester(repo repository.Repository, cams *cameras.Service, batchSize int, notifiers ...Notifier) *Ingester {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Ingester{repo: repo, cameras: cams, batchSize: batchSize, notifiers: notifiers}
}

// Ingest decompresses, parses and stores one uploaded report. Nothing is written unless
// the whole file is valid.
func (i *Ingester) Ingest(ctx context.Context, data []byte, opts Options) (*Result, error) {
	runID := uuid.NewString()
	logger := log.WithFields(log.Fields{"run_id": runID, "source": opts.Source, "overwrite": opts.Overwrite})

	report, err := i.parse(data)
	if err != nil {
		logger.WithError(err).Warn("Rejected report file")
		i.audit(ctx, &models.ReportUpload{
			RunID: runID, Source: opts.Source, Overwrite: opts.Overwrite,
			Status: StatusError, Error: err.Error(),
		}, nil)
		return nil, err
	}

	result, err := i.Store(ctx, report, opts)
	if err != nil {
		logger.WithError(err).Error("Failed to store report")
		i.audit(ctx, &models.ReportUpload{
			RunID: runID, Source: opts.Source, Model: report.Schema.Model(), Overwrite: opts.Overwrite,
			RowsParsed: len(report.Rows), Status: StatusError, Error: err.Error(),
		}, nil)
		return nil, err
	}
	result.RunID = runID

	i.audit(ctx, &models.ReportUpload{
		RunID: runID, Source: opts.Source, Model: result.Model, Overwrite: opts.Overwrite,
		RowsParsed: result.RowsParsed, RowsWritten: result.RowsWritten, RowsSkipped: result.RowsSkipped,
		Status: StatusOK,
	}, result)

	for _, n := range i.notifiers {
		n.NotifyIngestion(result)
	}

	logger.WithFields(log.Fields{
		"model":   result.Model,
		"parsed":  result.RowsParsed,
		"written": result.RowsWritten,
		"skipped": result.RowsSkipped,
	}).Info("Report file processed")
	return result, nil
}

func (i *Ingester) parse(data []byte) (*Report, error) {
	rc, err := OpenReport(data)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Parse(rc)
}

// Store upserts the rows of a parsed report in a single transaction.
func (i *Ingester) Store(ctx context.Context, report *Report, opts Options) (*Result, error) {
	model := report.Schema.Model()
	rows := slices.Clone(report.Rows)
	slices.SortStableFunc(rows, func(a, b Row) int {
		return strings.Compare(a.CameraRef, b.CameraRef)
	})

	result := &Result{
		Status:     StatusOK,
		Message:    SuccessMessage,
		Source:     opts.Source,
		Model:      model,
		Overwrite:  opts.Overwrite,
		RowsParsed: len(rows),
	}

	err := i.repo.Transaction(ctx, func(tx repository.Repository) error {
		cams := i.cameras.With(tx)
		values := make([]models.RecordValues, 0, len(rows))

		for start := 0; start < len(rows); {
			end := start + 1
			for end < len(rows) && rows[end].CameraRef == rows[start].CameraRef {
				end++
			}

			camera, created, err := cams.GetOrCreate(ctx, rows[start].CameraRef)
			if err != nil {
				return err
			}
			if created {
				result.CamerasCreated = append(result.CamerasCreated, camera.Ref)
			}
			for _, row := range rows[start:end] {
				values = append(values, models.RecordValues{
					CameraID:  camera.ID,
					Timestamp: row.Timestamp(),
					CameraOK:  row.CameraOK(),
					Counts:    row.CanonicalCounts(),
				})
			}
			start = end
		}

		written, err := tx.UpsertRecords(ctx, model, values, opts.Overwrite, i.batchSize)
		if err != nil {
			return err
		}
		result.RowsWritten = written
		if !opts.Overwrite {
			result.RowsSkipped = int64(len(values)) - written
		}

		unknown, err := tx.IncompleteCameraIDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list incomplete cameras: %w", err)
		}
		result.PKsOfUnknownCameras = unknown
		result.HaveUnknownCameras = len(unknown) > 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IngestReader is Ingest for callers holding a stream, such as the CLI.
func (i *Ingester) IngestReader(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return i.Ingest(ctx, data, opts)
}

func (i *Ingester) audit(ctx context.Context, upload *models.ReportUpload, result *Result) {
	if result != nil {
		summary, err := json.Marshal(result)
		if err == nil {
			upload.Summary = datatypes.JSON(summary)
		}
	}
	if err := i.repo.SaveUpload(ctx, upload); err != nil {
		log.WithError(err).WithField("run_id", upload.RunID).Warn("Failed to record report upload")
	}
}
