package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*TryonEvent, error)
	Complete(ctx context.Context, req CompleteRequest) (*TryonEvent, error)
}

// RecordRequest is the widget ingest payload.
type RecordRequest struct {
	ShopID    snowflake.ID
	ProductID string
	Status    string
	Converted bool
}

// CompleteRequest transitions an event to a terminal status.
type CompleteRequest struct {
	ShopID    snowflake.ID
	EventID   snowflake.ID
	Status    string
	Converted *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *TryonEvent) error
	FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*TryonEvent, error)
	ListBetween(ctx context.Context, db *gorm.DB, shopID snowflake.ID, from, to time.Time) ([]TryonEvent, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, event *TryonEvent) error
}

var (
	ErrInvalidStatus = errors.New("invalid_status")
	ErrNotFound      = errors.New("tryon_not_found")
	ErrEventFinal    = errors.New("tryon_already_final")
)
