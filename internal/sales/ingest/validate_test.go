package ingest

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"quantity":       "3",
		"amount":         "45.00",
		"trans_id":       "T-1001",
		"box_office":     "BO-7",
		"event_name":     "X1 Entertainment presents: Night Show",
		"created_at":     "2024-05-01T18:30:00Z",
		"payment_method": "credit_card",
		"start_at":       "2024-05-01T20:00:00Z",
	}
}

func decode(t *testing.T, body string) map[string]interface{} {
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}

func TestValidateAcceptsCompletePayload(t *testing.T) {
	sale, err := Validate(validPayload())
	require.NoError(t, err)

	assert.Equal(t, "3", sale.Quantity)
	assert.Equal(t, "45.00", sale.Amount)
	assert.Equal(t, "T-1001", sale.TransID)
	assert.Equal(t, "BO-7", sale.BoxOffice)
	assert.Equal(t, "credit_card", sale.PaymentMethod)
	assert.Equal(t, "2024-05-01T20:00:00Z", sale.StartAt)
	assert.Equal(t, time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC), sale.CreatedAt)
}

func TestValidateReportsAllMissingFieldsInOrder(t *testing.T) {
	p := validPayload()
	delete(p, "start_at")
	delete(p, "quantity")
	delete(p, "box_office")

	_, err := Validate(p)
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"quantity", "box_office", "start_at"}, missing.Fields)
	assert.Equal(t, "Missing required fields: quantity, box_office, start_at", err.Error())
}

func TestValidateMissingWinsOverInvalid(t *testing.T) {
	p := validPayload()
	delete(p, "amount")
	p["created_at"] = "not a date"

	_, err := Validate(p)
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"amount"}, missing.Fields)
}

func TestValidateNullCountsAsPresentButInvalid(t *testing.T) {
	p := decode(t, `{"quantity":null,"amount":"1","trans_id":"t","box_office":"b",
		"event_name":"e","created_at":"2024-05-01","payment_method":"cash","start_at":"s"}`)

	_, err := Validate(p)
	var invalid *InvalidFieldError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"quantity"}, invalid.Fields)
}

func TestValidateReportsEveryInvalidField(t *testing.T) {
	p := validPayload()
	p["created_at"] = "yesterday-ish"
	p["amount"] = true
	p["event_name"] = []interface{}{"a"}
	p["start_at"] = map[string]interface{}{"x": 1}

	_, err := Validate(p)
	var invalid *InvalidFieldError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"amount", "event_name", "created_at", "start_at"}, invalid.Fields)
	assert.Equal(t, "Invalid data types for fields: amount, event_name, created_at, start_at", err.Error())
}

func TestValidateCreatedAtMustBeString(t *testing.T) {
	p := validPayload()
	p["created_at"] = float64(1714588200000)

	_, err := Validate(p)
	var invalid *InvalidFieldError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"created_at"}, invalid.Fields)
}

func TestValidateCoercesNumbers(t *testing.T) {
	p := decode(t, `{"quantity":3,"amount":45.5,"trans_id":123456789,"box_office":7,
		"event_name":"Show","created_at":"2024-05-01 18:30:00","payment_method":"cash","start_at":"2024-05-01T20:00:00Z"}`)

	sale, err := Validate(p)
	require.NoError(t, err)
	assert.Equal(t, "3", sale.Quantity)
	assert.Equal(t, "45.5", sale.Amount)
	assert.Equal(t, "123456789", sale.TransID)
	assert.Equal(t, "7", sale.BoxOffice)
}

func TestValidateCoercesJSONNumber(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{"quantity":2.50}`))
	dec.UseNumber()
	var m map[string]interface{}
	require.NoError(t, dec.Decode(&m))

	s, ok := coerceString(m["quantity"])
	require.True(t, ok)
	assert.Equal(t, "2.5", s)
}

func TestValidateOutOfRangeNumbers(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{"quantity":1e400,"amount":-1e400}`))
	dec.UseNumber()
	var m map[string]interface{}
	require.NoError(t, dec.Decode(&m))

	p := validPayload()
	for k, v := range m {
		p[k] = v
	}
	sale, err := Validate(p)
	require.NoError(t, err)
	assert.Equal(t, "Infinity", sale.Quantity)
	assert.Equal(t, "-Infinity", sale.Amount)

	_, ok := coerceString(json.Number("not-a-number"))
	assert.False(t, ok)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-05-01T18:30:00Z",
		"2024-05-01T18:30:00.000Z",
		"2024-05-01T20:30:00+02:00",
		"2024-05-01T18:30:00",
		"2024-05-01T18:30",
		"2024-05-01 18:30:00",
		"2024-05-01 18:30:00+00",
	} {
		got, ok := ParseTimestamp(in)
		require.True(t, ok, in)
		assert.True(t, want.Equal(got), "%s parsed as %s", in, got)
	}

	got, ok := ParseTimestamp("2024-05-01")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), got)

	for _, in := range []string{"", "tomorrow", "2024-13-01", "01/05/2024"} {
		_, ok := ParseTimestamp(in)
		assert.False(t, ok, in)
	}
}
