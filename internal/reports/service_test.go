package reports_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/reports"
	"ms-boxoffice/internal/sales/db"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) SelectSales(ctx context.Context, q db.Query) ([]models.SaleRecord, error) {
	args := m.Called(q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SaleRecord), args.Error(1)
}

var fixedNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func newService(store *MockStore) *reports.Service {
	svc := reports.NewService(store, "flicks", "elysian", time.UTC, logger.Discard())
	svc.Now = func() time.Time { return fixedNow }
	return svc
}

func onTable(table string) interface{} {
	return mock.MatchedBy(func(q db.Query) bool { return q.Table == table })
}

func TestEventDatesDistinctNewestFirst(t *testing.T) {
	store := new(MockStore)
	store.On("SelectSales", mock.MatchedBy(func(q db.Query) bool {
		return q.Table == "flicks" && q.OrderBy == models.ColumnStartAt && q.Descending
	})).Return([]models.SaleRecord{
		{StartAt: "2024-05-03T21:00:00Z"},
		{StartAt: "2024-05-03T18:00:00Z"},
		{StartAt: "garbage"},
		{StartAt: "2024-04-30T10:00:00Z"},
		{StartAt: "2024-05-01T20:00:00Z"},
	}, nil)

	dates, err := newService(store).EventDates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []reports.EventDate{
		{Date: "2024-05-03", Formatted: "May 3, 2024"},
		{Date: "2024-05-01", Formatted: "May 1, 2024"},
		{Date: "2024-04-30", Formatted: "April 30, 2024"},
	}, dates)
}

func TestEventDatesReadFailure(t *testing.T) {
	store := new(MockStore)
	store.On("SelectSales", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := newService(store).EventDates(context.Background())
	var readErr *reports.StoreReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, "Failed to fetch dates", err.Error())
}

func TestSalesSummaryWindowsStartAtByDay(t *testing.T) {
	store := new(MockStore)
	store.On("SelectSales", mock.MatchedBy(func(q db.Query) bool {
		return q.Table == "flicks" &&
			len(q.Filters) == 2 &&
			q.Filters[0] == db.Filter{Column: models.ColumnStartAt, Op: db.OpGte, Value: "2024-05-01"} &&
			q.Filters[1] == db.Filter{Column: models.ColumnStartAt, Op: db.OpLt, Value: "2024-05-02"}
	})).Return([]models.SaleRecord{
		{EventName: "Show", Quantity: "1", Amount: "10", PaymentMethod: "credit_card"},
		{EventName: "Show", Quantity: "1", Amount: "5", PaymentMethod: "cash"},
		{EventName: "Show", Quantity: "1", Amount: "2", PaymentMethod: "other"},
	}, nil).Once()

	report, err := newService(store).SalesSummary(context.Background(), "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "May 1, 2024", report.Formatted)
	require.Len(t, report.Events, 1)
	assert.Equal(t, 10.0, report.Events[0].CreditCardSales)
	assert.Equal(t, 5.0, report.Events[0].CashSales)
	assert.Equal(t, 17.0, report.TotalSales)
	assert.Equal(t, 3, report.TicketCount)
	store.AssertExpectations(t)
}

func TestSalesSummaryDefaultsToNewestDate(t *testing.T) {
	store := new(MockStore)
	store.On("SelectSales", mock.MatchedBy(func(q db.Query) bool { return len(q.Filters) == 0 })).
		Return([]models.SaleRecord{{StartAt: "2024-05-04T20:00:00Z"}, {StartAt: "2024-05-02T20:00:00Z"}}, nil).Once()
	store.On("SelectSales", mock.MatchedBy(func(q db.Query) bool {
		return len(q.Filters) == 2 && q.Filters[0].Value == "2024-05-04"
	})).Return([]models.SaleRecord{}, nil).Once()

	report, err := newService(store).SalesSummary(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-04", report.Date)
	assert.Empty(t, report.Events)
	store.AssertExpectations(t)
}

func TestSalesSummaryNoDates(t *testing.T) {
	store := new(MockStore)
	store.On("SelectSales", mock.Anything).Return([]models.SaleRecord{}, nil).Once()

	report, err := newService(store).SalesSummary(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, report.Date)
	assert.Empty(t, report.Events)
}

func TestSalesSummaryRejectsBadDate(t *testing.T) {
	store := new(MockStore)
	_, err := newService(store).SalesSummary(context.Background(), "05/01/2024")
	assert.ErrorIs(t, err, reports.ErrInvalidDate)
	store.AssertNotCalled(t, "SelectSales", mock.Anything)
}

func TestHourlySalesReadsLiveStream(t *testing.T) {
	store := new(MockStore)
	store.On("SelectSales", mock.MatchedBy(func(q db.Query) bool {
		return q.Table == "elysian" &&
			q.OrderBy == models.ColumnCreatedAt && !q.Descending &&
			len(q.Filters) == 1 &&
			q.Filters[0].Op == db.OpGte &&
			q.Filters[0].Value == fixedNow.Add(-24*time.Hour)
	})).Return([]models.SaleRecord{
		{CreatedAt: fixedNow.Add(-3 * time.Hour), Amount: "12.50"},
		{CreatedAt: fixedNow.Add(-170 * time.Minute), Amount: "7.5"},
		{CreatedAt: fixedNow.Add(-time.Hour), Amount: "1"},
	}, nil).Once()

	report, err := newService(store).HourlySales(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Points, 2)
	assert.Equal(t, 9, report.Points[0].Hour)
	assert.Equal(t, 20.0, report.Points[0].TotalAmount)
	assert.Equal(t, 21.0, report.TotalAmount)
	store.AssertExpectations(t)
}

func TestTicketBreakdown(t *testing.T) {
	store := new(MockStore)
	store.On("SelectSales", mock.MatchedBy(func(q db.Query) bool {
		return q.Table == "flicks" && len(q.Filters) == 1 && q.Filters[0].Column == models.ColumnCreatedAt
	})).Return([]models.SaleRecord{
		{EventName: "A", Quantity: "0"},
		{EventName: "B", Quantity: "5"},
		{EventName: "C", Quantity: "10"},
	}, nil).Once()

	report, err := newService(store).TicketBreakdown(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Slices, 2)
	assert.Equal(t, "C", report.Slices[0].Name)
	assert.Equal(t, 15, report.TotalTickets)
}

func TestRecentSalesLimitAndPresentation(t *testing.T) {
	store := new(MockStore)
	created := fixedNow.Add(-time.Minute)
	store.On("SelectSales", mock.MatchedBy(func(q db.Query) bool {
		return q.Limit == 5 && q.OrderBy == models.ColumnCreatedAt && q.Descending
	})).Return([]models.SaleRecord{
		{EventName: "X1 Entertainment presents: Late Show", Quantity: "2", Amount: "30", PaymentMethod: "cash", CreatedAt: created},
	}, nil).Once()
	store.On("SelectSales", mock.MatchedBy(func(q db.Query) bool { return q.Limit == 100 })).
		Return([]models.SaleRecord{}, nil).Once()

	svc := newService(store)
	sales, err := svc.RecentSales(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, reports.RecentSale{
		EventName:       "Late Show",
		Quantity:        2,
		Amount:          30,
		FormattedAmount: "$30.00",
		PaymentMethod:   "cash",
		CreatedAt:       created,
	}, sales[0])

	_, err = svc.RecentSales(context.Background(), 1000)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestDashboardIsolatesFailingViews(t *testing.T) {
	store := new(MockStore)
	store.On("SelectSales", onTable("elysian")).Return(nil, errors.New("relation \"elysian\" does not exist"))
	store.On("SelectSales", onTable("flicks")).Return([]models.SaleRecord{
		{EventName: "Show", Quantity: "2", Amount: "20", PaymentMethod: "cash",
			StartAt: "2024-05-02T20:00:00Z", CreatedAt: fixedNow.Add(-time.Hour)},
	}, nil)

	report := newService(store).Dashboard(context.Background())

	assert.Nil(t, report.Hourly)
	assert.Equal(t, map[string]string{"hourly": "Failed to fetch data"}, report.Errors)
	require.NotNil(t, report.Summary)
	assert.Equal(t, "2024-05-02", report.Summary.Date)
	require.NotNil(t, report.Distribution)
	assert.Equal(t, 2, report.Distribution.TotalTickets)
	assert.Len(t, report.Recent, 1)
}

type memoryCache struct {
	values map[string]interface{}
	gets   int
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.gets++
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	switch d := dest.(type) {
	case **reports.DistributionReport:
		*d = v.(*reports.DistributionReport)
	default:
		return false, errors.New("unexpected type")
	}
	return true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}) error {
	c.values[key] = value
	return nil
}

func TestCachedViewSkipsStoreOnHit(t *testing.T) {
	store := new(MockStore)
	store.On("SelectSales", mock.Anything).Return([]models.SaleRecord{{EventName: "A", Quantity: "4"}}, nil).Once()

	c := &memoryCache{values: map[string]interface{}{}}
	svc := newService(store).WithCache(c)

	first, err := svc.TicketBreakdown(context.Background())
	require.NoError(t, err)
	second, err := svc.TicketBreakdown(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, c.values, "boxoffice:report:distribution")
	assert.Equal(t, 2, c.gets)
	store.AssertNumberOfCalls(t, "SelectSales", 1)
}

func TestReadFailureIsNotCached(t *testing.T) {
	store := new(MockStore)
	store.On("SelectSales", mock.Anything).Return(nil, errors.New("timeout"))

	c := &memoryCache{values: map[string]interface{}{}}
	_, err := newService(store).WithCache(c).TicketBreakdown(context.Background())
	require.Error(t, err)
	assert.Empty(t, c.values)
}
