package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

// Store is the write side of the persisted store.
type Store interface {
	InsertSale(ctx context.Context, table string, sale models.SaleRecord) ([]models.SaleRecord, error)
}

// Publisher announces recorded sales to downstream consumers.
type Publisher interface {
	PublishSale(ctx context.Context, sale models.SaleRecord) error
}

// Invalidator drops cached report views made stale by a new sale.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Service struct {
	Store     Store
	Table     string
	Publisher Publisher
	Cache     Invalidator
	Logger    *logger.Logger
}

func NewService(store Store, table string, publisher Publisher, log *logger.Logger) *Service {
	return &Service{
		Store:     store,
		Table:     table,
		Publisher: publisher,
		Logger:    log,
	}
}

// Ingest validates payload and writes it as a single row. Nothing touches the
// store unless validation passes.
func (s *Service) Ingest(ctx context.Context, payload map[string]interface{}) ([]models.SaleRecord, error) {
	sale, err := Validate(payload)
	if err != nil {
		s.Logger.Warn("WEBHOOK", fmt.Sprintf("Rejected payload: %v", err))
		return nil, err
	}

	if b, err := json.Marshal(sale); err == nil {
		s.Logger.LogSale("TRANSFORMED", sale.TransID, string(b))
	}

	s.Logger.LogDatabase("INSERT", s.Table, fmt.Sprintf("Attempting to insert sale %s", sale.TransID))
	rows, err := s.Store.InsertSale(ctx, s.Table, sale)
	if err != nil {
		s.Logger.Error("DATABASE", fmt.Sprintf("Error inserting sale %s into %s: %v", sale.TransID, s.Table, err))
		return nil, &StoreWriteError{Table: s.Table, Err: err}
	}
	s.Logger.LogDatabase("INSERT", s.Table, fmt.Sprintf("Insertion successful, %d row(s) returned", len(rows)))

	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx); err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Failed to invalidate report cache: %v", err))
		}
	}

	if s.Publisher != nil {
		for _, row := range rows {
			if err := s.Publisher.PublishSale(ctx, row); err != nil {
				s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish sale %s: %v", row.TransID, err))
			}
		}
	}

	return rows, nil
}

// WithCache makes Ingest drop cached report views after each insert.
func (s *Service) WithCache(c Invalidator) *Service {
	s.Cache = c
	return s
}
