package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fitmirror/fitmirror/internal/clock"
	"github.com/fitmirror/fitmirror/internal/ratelimit"
	shopdomain "github.com/fitmirror/fitmirror/internal/shop/domain"
)

const (
	defaultCheckInterval = time.Hour
	usageResetLockKey    = "scheduler:usage_reset"
	usageResetLockTTL    = 5 * time.Minute
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	ShopRepo shopdomain.Repository
	Limiter  *ratelimit.IngestLimiter `optional:"true"`
}

// Scheduler runs the monthly usage rollover. Every shop's tryons_this_month
// counter goes back to zero at the start of a UTC calendar month; the reset
// statement itself is idempotent, the lock only avoids duplicate work when
// several instances tick at once.
type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	shopRepo shopdomain.Repository
	locker   *ratelimit.Locker

	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.ShopRepo == nil {
		return nil, ErrInvalidConfig
	}

	var locker *ratelimit.Locker
	if p.Limiter != nil {
		locker = p.Limiter.Lock()
	}

	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		clock:    p.Clock,
		shopRepo: p.ShopRepo,
		locker:   locker,
		interval: defaultCheckInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, usageResetLockKey, usageResetLockTTL)
		if err != nil {
			s.log.Warn("usage reset lock", zap.Error(err))
		} else if !ok {
			return
		} else {
			defer func() {
				if err := s.locker.Release(ctx, usageResetLockKey, token); err != nil {
					s.log.Warn("usage reset unlock", zap.Error(err))
				}
			}()
		}
	}

	if err := s.ResetUsage(ctx); err != nil {
		s.log.Error("monthly usage reset", zap.Error(err))
	}
}

// ResetUsage zeroes counters for shops whose last reset precedes the start
// of the current UTC month.
func (s *Scheduler) ResetUsage(ctx context.Context) error {
	now := s.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	affected, err := s.shopRepo.ResetMonthlyUsage(ctx, s.db, monthStart, now)
	if err != nil {
		return err
	}
	if affected > 0 {
		s.log.Info("monthly usage counters reset",
			zap.Int64("shops", affected),
			zap.Time("month_start", monthStart),
		)
	}
	return nil
}
