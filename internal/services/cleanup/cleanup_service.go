package cleanup

import (
	"context"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/config"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// CleanupService removes ingestion audit rows older than the retention period.
// Detection records and exclusion ranges are never touched.
type CleanupService struct {
	repo          repository.Repository
	config        config.CleanupConfig
	checkInterval time.Duration
	now           func() time.Time
}

func NewCleanupService(repo repository.Repository, cfg config.CleanupConfig) *CleanupService {
	return &CleanupService{
		repo:          repo,
		config:        cfg,
		checkInterval: 24 * time.Hour,
		now:           time.Now,
	}
}

// Start runs a cleanup immediately and then once per interval until ctx ends.
func (s *CleanupService) Start(ctx context.Context) {
	log.Info("Cleanup service started")

	if _, err := s.RunCleanup(ctx); err != nil {
		log.Errorf("Initial cleanup failed: %v", err)
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Info("Running scheduled cleanup")
			if _, err := s.RunCleanup(ctx); err != nil {
				log.Errorf("Scheduled cleanup failed: %v", err)
			}
		case <-ctx.Done():
			log.Info("Cleanup service stopped")
			return
		}
	}
}

// RunCleanup deletes expired upload audit rows and returns how many were removed.
func (s *CleanupService) RunCleanup(ctx context.Context) (int64, error) {
	if s.config.RetentionDays <= 0 {
		log.Info("Cleanup disabled (retention days <= 0)")
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	log.Infof("Cleaning up report uploads older than %s", cutoff.Format("2006-01-02"))

	deleted, err := s.repo.DeleteUploadsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	log.Infof("Cleanup completed: deleted %d report upload entries", deleted)
	return deleted, nil
}
