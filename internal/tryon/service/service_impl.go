package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/fitmirror/fitmirror/internal/observability/metrics"
	shopdomain "github.com/fitmirror/fitmirror/internal/shop/domain"
	tryondomain "github.com/fitmirror/fitmirror/internal/tryon/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       tryondomain.Repository
	ShopSvc    shopdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       tryondomain.Repository
	shopSvc    shopdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) tryondomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("tryon.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		shopSvc:    p.ShopSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// Record stores a new try-on event and consumes one unit of the shop's
// monthly quota. The quota check happens first so an over-limit shop never
// accumulates events it is not entitled to.
func (s *Service) Record(ctx context.Context, req tryondomain.RecordRequest) (*tryondomain.TryonEvent, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		status = tryondomain.StatusPending
	}
	if !tryondomain.ValidStatus(status) {
		return nil, tryondomain.ErrInvalidStatus
	}

	if err := s.shopSvc.RecordUsage(ctx, req.ShopID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	event := &tryondomain.TryonEvent{
		ID:        s.genID.Generate(),
		ShopID:    req.ShopID,
		Status:    status,
		Converted: req.Converted,
		CreatedAt: now,
	}
	if productID := strings.TrimSpace(req.ProductID); productID != "" {
		event.ProductID = &productID
	}
	if event.Terminal() {
		event.CompletedAt = &now
	}

	if err := s.repo.Insert(ctx, s.db, event); err != nil {
		return nil, err
	}

	s.obsMetrics.RecordTryonEvent(ctx, status)
	return event, nil
}

// Complete moves an event to a terminal status. Terminal events are
// immutable; completed_at is set exactly once.
func (s *Service) Complete(ctx context.Context, req tryondomain.CompleteRequest) (*tryondomain.TryonEvent, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != tryondomain.StatusSucceeded && status != tryondomain.StatusFailed && status != tryondomain.StatusProcessing {
		return nil, tryondomain.ErrInvalidStatus
	}

	event, err := s.repo.FindByID(ctx, s.db, req.ShopID, req.EventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, tryondomain.ErrNotFound
	}
	if event.Terminal() {
		return nil, tryondomain.ErrEventFinal
	}

	event.Status = status
	if req.Converted != nil {
		event.Converted = *req.Converted
	}
	if event.Terminal() && event.CompletedAt == nil {
		now := time.Now().UTC()
		event.CompletedAt = &now
	}

	if err := s.repo.UpdateStatus(ctx, s.db, event); err != nil {
		return nil, err
	}

	s.obsMetrics.RecordTryonEvent(ctx, status)
	return event, nil
}
