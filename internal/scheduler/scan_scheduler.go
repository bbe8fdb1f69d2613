package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/service"
)

// ScanScheduler runs the breach scan on a cron schedule for every owner that
// has at least one active policy. A per-owner redis lock keeps replicas from
// scanning the same owner at the same time; it is advisory only, since
// at-most-once breach reporting is guaranteed by the sla_breached flag.
type ScanScheduler struct {
	cron     *cron.Cron
	scanner  *service.BreachScanner
	policies repository.PolicyRepository
	redis    *persistence.Redis
	logger   *zap.Logger
	lockTTL  time.Duration
}

// New builds a scheduler.
func New(scanner *service.BreachScanner, policies repository.PolicyRepository, redis *persistence.Redis, logger *zap.Logger, lockTTL time.Duration) *ScanScheduler {
	return &ScanScheduler{
		cron:     cron.New(),
		scanner:  scanner,
		policies: policies,
		redis:    redis,
		logger:   logger,
		lockTTL:  lockTTL,
	}
}

// Start registers the scan job and starts the cron loop. An empty spec
// disables scheduling.
func (s *ScanScheduler) Start(spec string) error {
	if spec == "" {
		s.logger.Info("scan scheduler disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.runAllOwners); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scan scheduler started", zap.String("cron", spec))
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *ScanScheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *ScanScheduler) runAllOwners() {
	ctx := context.Background()

	ownerIDs, err := s.policies.ListOwnerIDsWithActive(ctx)
	if err != nil {
		s.logger.Error("list owners for scan", zap.Error(err))
		return
	}

	for _, ownerID := range ownerIDs {
		if !s.acquireLock(ctx, ownerID) {
			s.logger.Debug("scan already in progress elsewhere", zap.String("owner_id", ownerID))
			continue
		}
		if _, err := s.scanner.CheckBreaches(ctx, ownerID); err != nil {
			s.logger.Error("scheduled scan failed", zap.String("owner_id", ownerID), zap.Error(err))
		}
		s.releaseLock(ctx, ownerID)
	}
}

func (s *ScanScheduler) acquireLock(ctx context.Context, ownerID string) bool {
	if s.redis == nil || s.redis.Client == nil {
		return true
	}
	acquired, err := s.redis.Client.SetNX(ctx, lockKey(ownerID), "1", s.lockTTL).Result()
	if err != nil {
		// Lock is best effort; scan anyway when redis is unreachable.
		s.logger.Warn("scan lock unavailable", zap.Error(err))
		return true
	}
	return acquired
}

func (s *ScanScheduler) releaseLock(ctx context.Context, ownerID string) {
	if s.redis == nil || s.redis.Client == nil {
		return
	}
	_ = s.redis.Client.Del(ctx, lockKey(ownerID)).Err()
}

func lockKey(ownerID string) string {
	return "sla:scan:" + ownerID
}
