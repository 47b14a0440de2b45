package reports

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"ms-boxoffice/internal/models"
)

// EventNamePrefix is the promoter prefix stripped from display names.
const EventNamePrefix = "X1 Entertainment presents:"

// UnknownEvent labels distribution slices whose event name is empty.
const UnknownEvent = "Unknown Event"

const hourLabelLayout = "3:04 PM"

// EventSummary represents the sales of one event on a given day
type EventSummary struct {
	EventName       string  `json:"event_name"`
	TicketCount     int     `json:"ticket_count"`
	CreditCardSales float64 `json:"credit_card_sales"`
	CashSales       float64 `json:"cash_sales"`
	TotalSales      float64 `json:"total_sales"`
}

// HourlyPoint is the revenue of one clock hour
type HourlyPoint struct {
	Hour        int     `json:"hour"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	TotalAmount float64 `json:"total_amount"`
}

// DistributionSlice is one event's share of the tickets sold
type DistributionSlice struct {
	Name    string  `json:"name"`
	Value   int     `json:"value"`
	Share   float64 `json:"share"`
	Percent int     `json:"percent"`
}

// SummarizeByEvent groups rows by event name, in the order each name first
// appears.
func SummarizeByEvent(rows []models.SaleRecord) []EventSummary {
	summaries := []EventSummary{}
	index := make(map[string]int)

	for _, row := range rows {
		i, ok := index[row.EventName]
		if !ok {
			i = len(summaries)
			index[row.EventName] = i
			summaries = append(summaries, EventSummary{EventName: row.EventName})
		}

		amount := ParseAmount(row.Amount)
		s := &summaries[i]
		s.TicketCount += ParseQuantity(row.Quantity)
		s.TotalSales += amount
		switch row.PaymentMethod {
		case models.PaymentCreditCard:
			s.CreditCardSales += amount
		case models.PaymentCash:
			s.CashSales += amount
		}
	}
	return summaries
}

// SummarizeByHour buckets rows by the clock hour of created_at in loc. Rows
// are expected in ascending created_at order; buckets keep first-seen order
// and hours without sales are not emitted.
func SummarizeByHour(rows []models.SaleRecord, loc *time.Location) []HourlyPoint {
	if loc == nil {
		loc = time.UTC
	}

	type bucket struct {
		start time.Time
		total float64
	}
	var buckets []*bucket
	index := make(map[int64]*bucket)

	for _, row := range rows {
		t := row.CreatedAt.In(loc)
		// truncate the instant, not the wall clock, so a repeated DST hour
		// stays a separate bucket
		start := t.Add(-time.Duration(t.Minute())*time.Minute -
			time.Duration(t.Second())*time.Second -
			time.Duration(t.Nanosecond()))
		b, ok := index[start.Unix()]
		if !ok {
			b = &bucket{start: start}
			index[start.Unix()] = b
			buckets = append(buckets, b)
		}
		b.total += ParseAmount(row.Amount)
	}

	points := make([]HourlyPoint, 0, len(buckets))
	for _, b := range buckets {
		end := b.start.Add(59*time.Minute + 59*time.Second)
		points = append(points, HourlyPoint{
			Hour:        b.start.Hour(),
			StartTime:   b.start.Format(hourLabelLayout),
			EndTime:     end.Format(hourLabelLayout),
			TotalAmount: round2(b.total),
		})
	}
	return points
}

// HourlyTotal sums the already rounded point values.
func HourlyTotal(points []HourlyPoint) float64 {
	var total float64
	for _, p := range points {
		total += p.TotalAmount
	}
	return total
}

// TicketDistribution sums quantity per event, drops events with no tickets and
// orders the rest from largest to smallest. Ties keep first-seen order.
func TicketDistribution(rows []models.SaleRecord) []DistributionSlice {
	slices := []DistributionSlice{}
	index := make(map[string]int)

	for _, row := range rows {
		name := row.EventName
		if name == "" {
			name = UnknownEvent
		}
		i, ok := index[name]
		if !ok {
			i = len(slices)
			index[name] = i
			slices = append(slices, DistributionSlice{Name: name})
		}
		slices[i].Value += ParseQuantity(row.Quantity)
	}

	kept := slices[:0]
	total := 0
	for _, s := range slices {
		if s.Value > 0 {
			kept = append(kept, s)
			total += s.Value
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Value > kept[j].Value
	})

	for i := range kept {
		kept[i].Share = float64(kept[i].Value) / float64(total)
		kept[i].Percent = int(math.Round(kept[i].Share * 100))
	}
	return kept
}

// TotalTickets sums the slice values.
func TotalTickets(slices []DistributionSlice) int {
	total := 0
	for _, s := range slices {
		total += s.Value
	}
	return total
}

// TrimEventName removes the promoter prefix, repeated or not, and the
// whitespace after it. Names without the prefix are returned untouched.
func TrimEventName(name string) string {
	for strings.HasPrefix(name, EventNamePrefix) {
		name = strings.TrimSpace(strings.TrimPrefix(name, EventNamePrefix))
	}
	return name
}

// FormatCurrency renders v as dollars with two decimals.
func FormatCurrency(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// ParseQuantity reads the leading integer of s. Anything unparseable is 0.
func ParseQuantity(s string) int {
	s = strings.TrimSpace(s)
	end := signEnd(s)
	end = digitsEnd(s, end)
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// ParseAmount reads the leading decimal number of s. Anything unparseable is 0.
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	start := signEnd(s)
	end := digitsEnd(s, start)
	intDigits := end - start
	fracDigits := 0
	if end < len(s) && s[end] == '.' {
		fracEnd := digitsEnd(s, end+1)
		fracDigits = fracEnd - end - 1
		end = fracEnd
	}
	if intDigits == 0 && fracDigits == 0 {
		return 0
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		expStart := signEnd(s[end+1:]) + end + 1
		if expEnd := digitsEnd(s, expStart); expEnd > expStart {
			end = expEnd
		}
	}

	f, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

func signEnd(s string) int {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		return 1
	}
	return 0
}

func digitsEnd(s string, i int) int {
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
