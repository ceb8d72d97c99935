package service

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/fitmirror/fitmirror/internal/analytics/domain"
	"github.com/fitmirror/fitmirror/internal/clock"
	productdomain "github.com/fitmirror/fitmirror/internal/product/domain"
	tryondomain "github.com/fitmirror/fitmirror/internal/tryon/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	TryonRepo   tryondomain.Repository
	ProductRepo productdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	tryonRepo   tryondomain.Repository
	productRepo productdomain.Repository
}

func New(p Params) analyticsdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("analytics.service"),
		clock:       p.Clock,
		tryonRepo:   p.TryonRepo,
		productRepo: p.ProductRepo,
	}
}

// Overview aggregates the current window against the previous adjacent one.
// The two windows are independent reads and are fetched concurrently.
func (s *Service) Overview(ctx context.Context, shopID snowflake.ID, days int) (*analyticsdomain.PeriodOverview, error) {
	now := s.clock.Now()
	currentFrom := now.AddDate(0, 0, -days)
	previousFrom := now.AddDate(0, 0, -2*days)

	var (
		wg               sync.WaitGroup
		current, prev    []tryondomain.TryonEvent
		currErr, prevErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		current, currErr = s.tryonRepo.ListBetween(ctx, s.db, shopID, currentFrom, now)
	}()
	go func() {
		defer wg.Done()
		prev, prevErr = s.tryonRepo.ListBetween(ctx, s.db, shopID, previousFrom, currentFrom)
	}()
	wg.Wait()

	if currErr != nil {
		return nil, currErr
	}
	if prevErr != nil {
		return nil, prevErr
	}

	overview := ComputeOverview(current, prev)
	overview.PeriodDays = days

	if err := s.enrichProductNames(ctx, shopID, overview.TopProducts); err != nil {
		// Titles are cosmetic; the raw id fallback is already in place.
		s.log.Warn("top product name lookup failed", zap.Error(err))
	}

	return &overview, nil
}

// Timeseries returns one bucket per calendar day in the window.
func (s *Service) Timeseries(ctx context.Context, shopID snowflake.ID, days int) (*analyticsdomain.Timeseries, error) {
	now := s.clock.Now()
	from := now.AddDate(0, 0, -days)

	events, err := s.tryonRepo.ListBetween(ctx, s.db, shopID, from, now)
	if err != nil {
		return nil, err
	}

	series := BucketByDay(events, days, now)
	total := 0
	for _, bucket := range series {
		total += bucket.Tryons
	}

	return &analyticsdomain.Timeseries{
		Series:     series,
		PeriodDays: days,
		Total:      total,
	}, nil
}

func (s *Service) enrichProductNames(ctx context.Context, shopID snowflake.ID, top []analyticsdomain.TopProduct) error {
	ids := make([]string, 0, len(top))
	for _, entry := range top {
		if entry.ProductID != unknownProductKey {
			ids = append(ids, entry.ProductID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	titles, err := s.productRepo.TitlesByExternalIDs(ctx, s.db, shopID, ids)
	if err != nil {
		return err
	}
	for i := range top {
		if title, ok := titles[top[i].ProductID]; ok && title != "" {
			top[i].Name = title
		}
	}
	return nil
}
