package main

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
)

type sampleEvent struct {
	name  string
	price float64
}

var sampleEvents = []sampleEvent{
	{"X1 Entertainment presents: Midnight Orchestra", 45},
	{"X1 Entertainment presents: Comedy Cellar Live", 30},
	{"X1 Entertainment presents: The Harbour Lights Tour", 65},
	{"Summer Jazz Nights", 25},
}

var sampleBoxOffices = []string{"Main Foyer", "North Gate", "Online Kiosk"}

var samplePayments = []string{models.PaymentCreditCard, models.PaymentCash, "voucher"}

type saleInserter interface {
	InsertSale(ctx context.Context, table string, sale models.SaleRecord) ([]models.SaleRecord, error)
}

// SampleSales builds n sales for a performance on the given day. Sales are
// spread over the 24 hours before now so the hourly view has data.
func SampleSales(n int, performance, now time.Time, seed int64) []models.SaleRecord {
	rng := rand.New(rand.NewSource(seed))
	startAt := performance.Format("2006-01-02") + "T19:30:00Z"

	sales := make([]models.SaleRecord, 0, n)
	for i := 0; i < n; i++ {
		event := sampleEvents[rng.Intn(len(sampleEvents))]
		quantity := 1 + rng.Intn(6)
		sales = append(sales, models.SaleRecord{
			Quantity:      strconv.Itoa(quantity),
			Amount:        strconv.FormatFloat(float64(quantity)*event.price, 'f', 2, 64),
			TransID:       uuid.NewString(),
			BoxOffice:     sampleBoxOffices[rng.Intn(len(sampleBoxOffices))],
			EventName:     event.name,
			CreatedAt:     now.Add(-time.Duration(rng.Int63n(int64(24 * time.Hour)))).Truncate(time.Second),
			PaymentMethod: samplePayments[rng.Intn(len(samplePayments))],
			StartAt:       startAt,
		})
	}
	return sales
}

func seedStreams(ctx context.Context, store saleInserter, tables []string, sales []models.SaleRecord, log *logger.Logger) error {
	for _, table := range tables {
		for _, sale := range sales {
			if _, err := store.InsertSale(ctx, table, sale); err != nil {
				return fmt.Errorf("seed %s: %w", table, err)
			}
		}
		log.LogDatabase("SEED", table, fmt.Sprintf("Inserted %d sample sales", len(sales)))
	}
	return nil
}
