package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ms-boxoffice/internal/cache"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/sales/db"
)

const (
	// DefaultRecentLimit is how many sales RecentSales returns when asked for none.
	DefaultRecentLimit = 5
	// MaxRecentLimit caps RecentSales.
	MaxRecentLimit = 100

	dateLayout          = "2006-01-02"
	formattedDateLayout = "January 2, 2006"
	lookback            = 24 * time.Hour
)

var (
	ErrInvalidDate  = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidLimit = fmt.Errorf("limit must be between 1 and %d", MaxRecentLimit)
)

// StoreReadError is returned when a view's query fails. No partial result
// accompanies it.
type StoreReadError struct {
	Message string
	Err     error
}

func (e *StoreReadError) Error() string { return e.Message }

func (e *StoreReadError) Unwrap() error { return e.Err }

// Store is the read side of the persisted store.
type Store interface {
	SelectSales(ctx context.Context, q db.Query) ([]models.SaleRecord, error)
}

// Cache holds rendered views between reads.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// Window selects the rows of Table whose Column lies in [From, To). A nil
// bound is open.
type Window struct {
	Table  string
	Column string
	From   interface{}
	To     interface{}
}

func (w Window) filters() []db.Filter {
	var filters []db.Filter
	if w.From != nil {
		filters = append(filters, db.Filter{Column: w.Column, Op: db.OpGte, Value: w.From})
	}
	if w.To != nil {
		filters = append(filters, db.Filter{Column: w.Column, Op: db.OpLt, Value: w.To})
	}
	return filters
}

// EventDate is a calendar day on which at least one sold event starts
type EventDate struct {
	Date      string `json:"date"`
	Formatted string `json:"formatted"`
}

// SummaryReport is the per-event sales breakdown of one day
type SummaryReport struct {
	Date        string         `json:"date"`
	Formatted   string         `json:"formatted"`
	Events      []EventSummary `json:"events"`
	TicketCount int            `json:"ticket_count"`
	TotalSales  float64        `json:"total_sales"`
}

// HourlyReport is the revenue of the last 24 hours per clock hour
type HourlyReport struct {
	Points      []HourlyPoint `json:"points"`
	TotalAmount float64       `json:"total_amount"`
}

// DistributionReport is the ticket split across events in the last 24 hours
type DistributionReport struct {
	Slices       []DistributionSlice `json:"slices"`
	TotalTickets int                 `json:"total_tickets"`
}

// RecentSale is one row of the recent sales table, ready for display
type RecentSale struct {
	EventName       string    `json:"event_name"`
	Quantity        int       `json:"quantity"`
	Amount          float64   `json:"amount"`
	FormattedAmount string    `json:"formatted_amount"`
	PaymentMethod   string    `json:"payment_method"`
	CreatedAt       time.Time `json:"created_at"`
}

// DashboardReport combines every view. A view that failed is nil and its
// message is listed under Errors.
type DashboardReport struct {
	Summary      *SummaryReport      `json:"summary"`
	Hourly       *HourlyReport       `json:"hourly"`
	Distribution *DistributionReport `json:"distribution"`
	Recent       []RecentSale        `json:"recent"`
	Errors       map[string]string   `json:"errors,omitempty"`
}

type Service struct {
	Store       Store
	Cache       Cache
	Logger      *logger.Logger
	SalesTable  string
	LiveTable   string
	Location    *time.Location
	RecentLimit int
	Now         func() time.Time
}

func NewService(store Store, salesTable, liveTable string, loc *time.Location, log *logger.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		Store:       store,
		Logger:      log,
		SalesTable:  salesTable,
		LiveTable:   liveTable,
		Location:    loc,
		RecentLimit: DefaultRecentLimit,
		Now:         time.Now,
	}
}

// WithCache enables read-through caching of rendered views.
func (s *Service) WithCache(c Cache) *Service {
	s.Cache = c
	return s
}

func (s *Service) read(ctx context.Context, view string, q db.Query) ([]models.SaleRecord, error) {
	start := time.Now()
	rows, err := s.Store.SelectSales(ctx, q)
	if err != nil {
		s.Logger.Error("REPORTS", fmt.Sprintf("Error fetching %s data from %s: %v", view, q.Table, err))
		return nil, &StoreReadError{Message: "Failed to fetch data", Err: err}
	}
	s.Logger.LogDatabase("SELECT", q.Table, fmt.Sprintf("%s: %d row(s) in %s", view, len(rows), time.Since(start)))
	s.warnMalformed(view, q, rows)
	return rows, nil
}

// warnMalformed counts projected quantity and amount values that do not
// parse cleanly. They still count as zero in the view.
func (s *Service) warnMalformed(view string, q db.Query, rows []models.SaleRecord) {
	checkQty, checkAmt := len(q.Columns) == 0, len(q.Columns) == 0
	for _, c := range q.Columns {
		switch c {
		case models.ColumnQuantity:
			checkQty = true
		case models.ColumnAmount:
			checkAmt = true
		}
	}

	malformed := 0
	for _, row := range rows {
		if checkQty && !cleanInt(row.Quantity) || checkAmt && !cleanFloat(row.Amount) {
			malformed++
		}
	}
	if malformed > 0 {
		s.Logger.Warn("REPORTS", fmt.Sprintf("%s: %d row(s) with malformed quantity or amount counted as zero", view, malformed))
	}
}

func cleanInt(v string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(v))
	return err == nil
}

func cleanFloat(v string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil
}

// cached serves key from the cache when possible and stores fresh results.
// Cache failures are logged and bypassed.
func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	if s.Cache != nil {
		var hit T
		ok, err := s.Cache.Get(ctx, key, &hit)
		if err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Bypassing cache for %s: %v", key, err))
		} else if ok {
			return hit, nil
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, v); err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Failed to cache %s: %v", key, err))
		}
	}
	return v, nil
}

// EventDates lists the distinct start days of sold events, newest first.
func (s *Service) EventDates(ctx context.Context) ([]EventDate, error) {
	return cached(ctx, s, cache.Key("dates"), s.eventDates)
}

func (s *Service) eventDates(ctx context.Context) ([]EventDate, error) {
	rows, err := s.read(ctx, "dates", db.Query{
		Table:      s.SalesTable,
		Columns:    []string{models.ColumnStartAt},
		OrderBy:    models.ColumnStartAt,
		Descending: true,
	})
	if err != nil {
		var readErr *StoreReadError
		if errors.As(err, &readErr) {
			readErr.Message = "Failed to fetch dates"
		}
		return nil, err
	}

	seen := make(map[string]bool)
	var days []time.Time
	for _, row := range rows {
		day, ok := startDay(row.StartAt)
		if !ok {
			continue
		}
		key := day.Format(dateLayout)
		if !seen[key] {
			seen[key] = true
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	dates := make([]EventDate, 0, len(days))
	for _, d := range days {
		dates = append(dates, EventDate{Date: d.Format(dateLayout), Formatted: d.Format(formattedDateLayout)})
	}
	return dates, nil
}

// startDay reads the calendar day an ISO start_at value begins with.
func startDay(startAt string) (time.Time, bool) {
	startAt = strings.TrimSpace(startAt)
	if len(startAt) < len(dateLayout) {
		return time.Time{}, false
	}
	day, err := time.Parse(dateLayout, startAt[:len(dateLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// ParseDate checks a YYYY-MM-DD day parameter.
func ParseDate(date string) (time.Time, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return day, nil
}

// SalesSummary totals the sales of events starting on date. An empty date
// selects the newest day with sales.
func (s *Service) SalesSummary(ctx context.Context, date string) (*SummaryReport, error) {
	if date == "" {
		dates, err := s.EventDates(ctx)
		if err != nil {
			return nil, err
		}
		if len(dates) == 0 {
			return &SummaryReport{Events: []EventSummary{}}, nil
		}
		date = dates[0].Date
	}

	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}

	return cached(ctx, s, cache.Key("summary", date), func(ctx context.Context) (*SummaryReport, error) {
		return s.salesSummary(ctx, day)
	})
}

func (s *Service) salesSummary(ctx context.Context, day time.Time) (*SummaryReport, error) {
	w := Window{
		Table:  s.SalesTable,
		Column: models.ColumnStartAt,
		From:   day.Format(dateLayout),
		To:     day.AddDate(0, 0, 1).Format(dateLayout),
	}
	rows, err := s.read(ctx, "summary", db.Query{
		Table: w.Table,
		Columns: []string{
			models.ColumnEventName,
			models.ColumnQuantity,
			models.ColumnAmount,
			models.ColumnPaymentMethod,
		},
		Filters: w.filters(),
	})
	if err != nil {
		return nil, err
	}

	report := &SummaryReport{
		Date:      day.Format(dateLayout),
		Formatted: day.Format(formattedDateLayout),
		Events:    SummarizeByEvent(rows),
	}
	for _, e := range report.Events {
		report.TicketCount += e.TicketCount
		report.TotalSales += e.TotalSales
	}
	return report, nil
}

// HourlySales buckets the last 24 hours of the live stream by hour.
func (s *Service) HourlySales(ctx context.Context) (*HourlyReport, error) {
	return cached(ctx, s, cache.Key("hourly"), s.hourlySales)
}

func (s *Service) hourlySales(ctx context.Context) (*HourlyReport, error) {
	w := Window{
		Table:  s.LiveTable,
		Column: models.ColumnCreatedAt,
		From:   s.Now().UTC().Add(-lookback),
	}
	rows, err := s.read(ctx, "hourly", db.Query{
		Table:   w.Table,
		Columns: []string{models.ColumnCreatedAt, models.ColumnAmount},
		Filters: w.filters(),
		OrderBy: models.ColumnCreatedAt,
	})
	if err != nil {
		return nil, err
	}

	points := SummarizeByHour(rows, s.Location)
	return &HourlyReport{Points: points, TotalAmount: HourlyTotal(points)}, nil
}

// TicketBreakdown splits the tickets sold in the last 24 hours by event.
func (s *Service) TicketBreakdown(ctx context.Context) (*DistributionReport, error) {
	return cached(ctx, s, cache.Key("distribution"), s.ticketBreakdown)
}

func (s *Service) ticketBreakdown(ctx context.Context) (*DistributionReport, error) {
	w := Window{
		Table:  s.SalesTable,
		Column: models.ColumnCreatedAt,
		From:   s.Now().UTC().Add(-lookback),
	}
	rows, err := s.read(ctx, "distribution", db.Query{
		Table:   w.Table,
		Columns: []string{models.ColumnEventName, models.ColumnQuantity},
		Filters: w.filters(),
	})
	if err != nil {
		return nil, err
	}

	slices := TicketDistribution(rows)
	return &DistributionReport{Slices: slices, TotalTickets: TotalTickets(slices)}, nil
}

// RecentSales returns the newest n sales. n <= 0 uses the configured default
// and n is capped at MaxRecentLimit.
func (s *Service) RecentSales(ctx context.Context, n int) ([]RecentSale, error) {
	if n <= 0 {
		n = s.RecentLimit
		if n <= 0 {
			n = DefaultRecentLimit
		}
	}
	if n > MaxRecentLimit {
		n = MaxRecentLimit
	}

	return cached(ctx, s, cache.Key("recent", strconv.Itoa(n)), func(ctx context.Context) ([]RecentSale, error) {
		return s.recentSales(ctx, n)
	})
}

func (s *Service) recentSales(ctx context.Context, n int) ([]RecentSale, error) {
	rows, err := s.read(ctx, "recent", db.Query{
		Table: s.SalesTable,
		Columns: []string{
			models.ColumnQuantity,
			models.ColumnAmount,
			models.ColumnCreatedAt,
			models.ColumnEventName,
			models.ColumnPaymentMethod,
		},
		OrderBy:    models.ColumnCreatedAt,
		Descending: true,
		Limit:      n,
	})
	if err != nil {
		return nil, err
	}

	sales := make([]RecentSale, 0, len(rows))
	for _, row := range rows {
		amount := ParseAmount(row.Amount)
		sales = append(sales, RecentSale{
			EventName:       TrimEventName(row.EventName),
			Quantity:        ParseQuantity(row.Quantity),
			Amount:          amount,
			FormattedAmount: FormatCurrency(amount),
			PaymentMethod:   row.PaymentMethod,
			CreatedAt:       row.CreatedAt,
		})
	}
	return sales, nil
}

// Dashboard renders every view concurrently. A failing view leaves the
// others intact.
func (s *Service) Dashboard(ctx context.Context) *DashboardReport {
	report := &DashboardReport{}
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errMap = make(map[string]string)
	)

	run := func(view string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				errMap[view] = err.Error()
				mu.Unlock()
			}
		}()
	}

	run("summary", func() (err error) {
		report.Summary, err = s.SalesSummary(ctx, "")
		return err
	})
	run("hourly", func() (err error) {
		report.Hourly, err = s.HourlySales(ctx)
		return err
	})
	run("distribution", func() (err error) {
		report.Distribution, err = s.TicketBreakdown(ctx)
		return err
	})
	run("recent", func() (err error) {
		report.Recent, err = s.RecentSales(ctx, 0)
		return err
	})

	wg.Wait()
	if len(errMap) > 0 {
		report.Errors = errMap
	}
	return report
}
