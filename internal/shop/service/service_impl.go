package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fitmirror/fitmirror/internal/config"
	"github.com/fitmirror/fitmirror/internal/notify"
	shopdomain "github.com/fitmirror/fitmirror/internal/shop/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     shopdomain.Repository
	Plans    *config.PlanCatalogHolder
	Notifier *notify.Dispatcher `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     shopdomain.Repository
	plans    *config.PlanCatalogHolder
	notifier *notify.Dispatcher
}

func New(p Params) shopdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("shop.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		plans:    p.Plans,
		notifier: p.Notifier,
	}
}

// Install upserts the tenant record after a verified OAuth callback. New
// shops start on the trial tier; a re-install only refreshes the token and
// contact fields, it never touches billing state.
func (s *Service) Install(ctx context.Context, req shopdomain.InstallRequest) (*shopdomain.Shop, error) {
	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if domain == "" {
		return nil, shopdomain.ErrInvalidDomain
	}

	existing, err := s.repo.FindByDomain(ctx, s.db, domain)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	trial := s.plans.Catalog().Trial()
	shop := &shopdomain.Shop{
		ID:                s.genID.Generate(),
		Domain:            domain,
		Name:              strings.TrimSpace(req.Name),
		Email:             strings.TrimSpace(req.Email),
		Plan:              trial.Key,
		MonthlyTryonLimit: trial.MonthlyTryonLimit,
		PartnerToken:      req.AccessToken,
		IsActive:          true,
		InstalledAt:       now,
		LastUsageResetAt:  now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	stored, err := s.repo.Upsert(ctx, s.db, shop)
	if err != nil {
		return nil, err
	}

	if existing == nil && s.notifier != nil && stored.Email != "" {
		s.notifier.Enqueue(notify.Task{
			Kind:    "welcome",
			To:      []string{stored.Email},
			Subject: "Welcome to FitMirror",
			Body: fmt.Sprintf("<p>Hi %s, your virtual try-on widget is ready. Grab an API key in the dashboard to get started.</p>",
				stored.Name),
		})
	}

	s.log.Info("shop installed",
		zap.String("shop_id", stored.ID.String()),
		zap.String("domain", stored.Domain),
		zap.Bool("reinstall", existing != nil),
	)

	return stored, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*shopdomain.Shop, error) {
	shop, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, shopdomain.ErrNotFound
	}
	return shop, nil
}

func (s *Service) GetByDomain(ctx context.Context, domain string) (*shopdomain.Shop, error) {
	shop, err := s.repo.FindByDomain(ctx, s.db, domain)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, shopdomain.ErrNotFound
	}
	return shop, nil
}

// RecordUsage consumes one unit of the monthly quota.
func (s *Service) RecordUsage(ctx context.Context, id snowflake.ID) error {
	ok, err := s.repo.IncrementUsage(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !ok {
		shop, ferr := s.repo.FindByID(ctx, s.db, id)
		if ferr != nil {
			return ferr
		}
		if shop == nil {
			return shopdomain.ErrNotFound
		}
		return shopdomain.ErrLimitExceeded
	}
	return nil
}
