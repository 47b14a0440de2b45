package ingest

import (
	"context"
	"fmt"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

// MirrorTo returns a handler that copies each recorded sale into table. The
// store assigns the copy its own id. A non-nil cache is invalidated after
// every copy, as Ingest does.
func MirrorTo(store Store, cache Invalidator, table string, log *logger.Logger) func(ctx context.Context, sale models.SaleRecord) error {
	return func(ctx context.Context, sale models.SaleRecord) error {
		rows, err := store.InsertSale(ctx, table, sale)
		if err != nil {
			return &StoreWriteError{Table: table, Err: err}
		}
		log.LogDatabase("MIRROR", table, fmt.Sprintf("Copied sale %s, %d row(s)", sale.TransID, len(rows)))

		if cache != nil {
			if err := cache.Invalidate(ctx); err != nil {
				log.Warn("CACHE", fmt.Sprintf("Failed to invalidate report cache: %v", err))
			}
		}
		return nil
	}
}
