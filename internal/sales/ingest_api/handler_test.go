package ingest_api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/sales/ingest"
	"ms-boxoffice/internal/sales/ingest_api"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) InsertSale(ctx context.Context, table string, sale models.SaleRecord) ([]models.SaleRecord, error) {
	args := m.Called(table, sale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SaleRecord), args.Error(1)
}

const validBody = `{
	"quantity": "3",
	"amount": "45.00",
	"trans_id": "T-1",
	"box_office": "BO-1",
	"event_name": "X1 Entertainment presents: Late Show",
	"created_at": "2024-05-01T18:30:00Z",
	"payment_method": "credit_card",
	"start_at": "2024-05-01T21:00:00Z"
}`

func newRouter(store *MockStore) http.Handler {
	log := logger.Discard()
	h := ingest_api.NewHandler(ingest.NewService(store, "flicks", nil, log), log)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func do(t *testing.T, handler http.Handler, method, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, "/webhook/sales", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var errBody map[string]interface{}
	if rec.Code != http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	}
	return rec, errBody
}

func TestReceiveSaleSuccess(t *testing.T) {
	store := new(MockStore)
	stored := models.SaleRecord{ID: 42, Quantity: "3", Amount: "45.00", TransID: "T-1"}
	store.On("InsertSale", "flicks", mock.MatchedBy(func(s models.SaleRecord) bool {
		return s.Quantity == "3" && s.Amount == "45.00" && s.PaymentMethod == "credit_card"
	})).Return([]models.SaleRecord{stored}, nil).Once()

	rec, _ := do(t, newRouter(store), http.MethodPost, validBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []models.SaleRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(42), rows[0].ID)
	store.AssertExpectations(t)
}

func TestReceiveSaleMethodNotAllowed(t *testing.T) {
	store := new(MockStore)
	router := newRouter(store)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec, body := do(t, router, method, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, "Method not allowed", body["error"])
	}
	store.AssertNotCalled(t, "InsertSale", mock.Anything, mock.Anything)
}

func TestReceiveSaleMissingFields(t *testing.T) {
	store := new(MockStore)

	rec, body := do(t, newRouter(store), http.MethodPost, `{"quantity":"1","event_name":"x","payment_method":"cash"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields: amount, trans_id, box_office, created_at, start_at", body["error"])
	store.AssertNotCalled(t, "InsertSale", mock.Anything, mock.Anything)
}

func TestReceiveSaleInvalidFields(t *testing.T) {
	store := new(MockStore)
	body := strings.Replace(validBody, `"2024-05-01T18:30:00Z"`, `"sometime"`, 1)
	body = strings.Replace(body, `"45.00"`, `true`, 1)

	rec, errBody := do(t, newRouter(store), http.MethodPost, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid data types for fields: amount, created_at", errBody["error"])
	store.AssertNotCalled(t, "InsertSale", mock.Anything, mock.Anything)
}

func TestReceiveSaleMalformedJSON(t *testing.T) {
	store := new(MockStore)
	router := newRouter(store)

	for _, body := range []string{`{"quantity": `, `[1,2,3]`, `not json`} {
		rec, errBody := do(t, router, http.MethodPost, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotEmpty(t, errBody["error"])
	}
	store.AssertNotCalled(t, "InsertSale", mock.Anything, mock.Anything)
}

func TestReceiveSaleStoreFailure(t *testing.T) {
	store := new(MockStore)
	store.On("InsertSale", "flicks", mock.Anything).
		Return(nil, errors.New("duplicate key value violates unique constraint")).Once()

	rec, body := do(t, newRouter(store), http.MethodPost, validBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "duplicate key value violates unique constraint", body["error"])
}
