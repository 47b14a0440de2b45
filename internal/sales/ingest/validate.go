package ingest

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"ms-boxoffice/internal/models"
)

// timestampLayouts are tried in order when parsing created_at. Values without
// a zone offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp parses an ISO-8601 style timestamp.
func ParseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Validate checks payload against the sale record contract and coerces it.
// All missing fields are reported together; if none are missing, every field
// is coerced and all invalid ones are reported together.
func Validate(payload map[string]interface{}) (models.SaleRecord, error) {
	var missing []string
	for _, field := range models.RequiredFields {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return models.SaleRecord{}, &MissingFieldError{Fields: missing}
	}

	var (
		sale    models.SaleRecord
		invalid []string
		values  = make(map[string]string, len(models.RequiredFields))
	)

	for _, field := range models.RequiredFields {
		value := payload[field]

		if field == models.ColumnCreatedAt {
			s, ok := value.(string)
			if !ok {
				invalid = append(invalid, field)
				continue
			}
			t, ok := ParseTimestamp(s)
			if !ok {
				invalid = append(invalid, field)
				continue
			}
			sale.CreatedAt = t
			continue
		}

		s, ok := coerceString(value)
		if !ok {
			invalid = append(invalid, field)
			continue
		}
		values[field] = s
	}

	if len(invalid) > 0 {
		return models.SaleRecord{}, &InvalidFieldError{Fields: invalid}
	}

	sale.Quantity = values[models.ColumnQuantity]
	sale.Amount = values[models.ColumnAmount]
	sale.TransID = values[models.ColumnTransID]
	sale.BoxOffice = values[models.ColumnBoxOffice]
	sale.EventName = values[models.ColumnEventName]
	sale.PaymentMethod = values[models.ColumnPaymentMethod]
	sale.StartAt = values[models.ColumnStartAt]
	return sale, nil
}

// coerceString accepts strings and JSON numbers. Numbers are rendered in
// their shortest decimal form; numbers beyond float64 range become
// "Infinity" or "-Infinity".
func coerceString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		f, err := v.Float64()
		switch {
		case math.IsInf(f, 1):
			return "Infinity", true
		case math.IsInf(f, -1):
			return "-Infinity", true
		case err != nil:
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	}
	return "", false
}
