// -----------------------------------------------------------------------
// Refresh Scheduler - Periodically re-queues stale indexed documents
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/interfaces"
	"github.com/ternarybob/lexa/internal/models"
)

// sweepBatchLimit caps how many documents one tier contributes per
// sweep so a backlog cannot flood the queue.
const sweepBatchLimit = 500

// refreshTiers are the policies with a staleness threshold. Documents
// with RefreshNever are excluded by construction.
var refreshTiers = []models.RefreshPolicy{
	models.RefreshWeekly,
	models.RefreshMonthly,
	models.RefreshQuarterly,
}

// Service runs the daily refresh sweep on a cron schedule.
type Service struct {
	config    *common.SchedulerConfig
	documents interfaces.DocumentStorage
	queue     interfaces.JobQueue
	logger    arbor.ILogger
	cron      *cron.Cron
}

// NewService creates a new refresh scheduler
func NewService(config *common.SchedulerConfig, documents interfaces.DocumentStorage, queue interfaces.JobQueue, logger arbor.ILogger) *Service {
	return &Service{
		config:    config,
		documents: documents,
		queue:     queue,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start registers the cron entry and begins scheduling.
func (s *Service) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Refresh scheduler disabled")
		return nil
	}

	schedule := s.config.RefreshSchedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunRefreshSweep(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Refresh sweep failed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", schedule).Msg("Refresh scheduler started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Refresh scheduler stopped")
}

// RunRefreshSweep selects indexed documents past their staleness
// threshold and re-queues them as refresh jobs. Documents with no
// retrievable raw content are skipped with a warning rather than
// failing the sweep.
func (s *Service) RunRefreshSweep(ctx context.Context) error {
	now := time.Now()
	queued := 0
	skipped := 0

	for _, policy := range refreshTiers {
		cutoff := now.AddDate(0, 0, -policy.StalenessDays())
		stale, err := s.documents.ListStale(policy, cutoff, sweepBatchLimit)
		if err != nil {
			return err
		}

		for _, doc := range stale {
			if doc.RawPath == "" {
				s.logger.Warn().
					Str("document_id", doc.ID).
					Str("policy", string(policy)).
					Msg("Stale document has no raw content, skipping refresh")
				skipped++
				continue
			}

			msg, err := models.NewIngestMessage(models.JobTypeRefresh, models.IngestPayload{
				DocumentID: doc.ID,
				FilePath:   doc.RawPath,
			})
			if err != nil {
				return err
			}
			if err := s.queue.EnqueueDeduped(ctx, msg, doc.ID); err != nil {
				return err
			}
			queued++
		}
	}

	s.logger.Info().
		Int("queued", queued).
		Int("skipped", skipped).
		Msg("Refresh sweep completed")
	return nil
}
