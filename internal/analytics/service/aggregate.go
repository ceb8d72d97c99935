package service

import (
	"math"
	"sort"
	"time"

	analyticsdomain "github.com/fitmirror/fitmirror/internal/analytics/domain"
	tryondomain "github.com/fitmirror/fitmirror/internal/tryon/domain"
)

const (
	bucketKeyLayout   = "2006-01-02"
	bucketLabelLayout = "Jan 2"

	// unknownProductKey buckets events recorded without a product id.
	unknownProductKey = "unknown"

	topProductsLimit = 5
)

// BucketByDay distributes events into one bucket per UTC calendar day. The
// window covers windowDays days ending on referenceNow's day; days with no
// events still produce a bucket. Events dated outside the window are dropped.
func BucketByDay(events []tryondomain.TryonEvent, windowDays int, referenceNow time.Time) []analyticsdomain.DailyBucket {
	if windowDays < 1 {
		windowDays = 1
	}

	end := referenceNow.UTC().Truncate(24 * time.Hour)
	buckets := make([]analyticsdomain.DailyBucket, windowDays)
	index := make(map[string]int, windowDays)
	for i := 0; i < windowDays; i++ {
		day := end.AddDate(0, 0, -(windowDays - 1 - i))
		key := day.Format(bucketKeyLayout)
		buckets[i] = analyticsdomain.DailyBucket{
			Date:  key,
			Label: day.Format(bucketLabelLayout),
		}
		index[key] = i
	}

	for _, event := range events {
		if event.CreatedAt.IsZero() {
			continue
		}
		key := event.CreatedAt.UTC().Format(bucketKeyLayout)
		i, ok := index[key]
		if !ok {
			continue
		}
		buckets[i].Tryons++
		switch event.Status {
		case tryondomain.StatusSucceeded:
			buckets[i].Succeeded++
		case tryondomain.StatusFailed:
			buckets[i].Failed++
		}
		if event.Converted {
			buckets[i].Conversions++
		}
	}

	return buckets
}

// PctChange returns the relative change between two counts as a percentage.
// Growth from zero is reported as a capped +100 rather than an undefined
// ratio; zero to zero has no meaningful delta and returns nil.
func PctChange(curr, prev int) *float64 {
	switch {
	case prev == 0 && curr == 0:
		return nil
	case prev == 0:
		v := 100.0
		return &v
	default:
		v := round1(float64(curr-prev) / float64(prev) * 100)
		return &v
	}
}

// ComputeOverview aggregates two adjacent equal-length periods. Rate deltas
// are percentage-point differences, not relative changes.
func ComputeOverview(current, previous []tryondomain.TryonEvent) analyticsdomain.PeriodOverview {
	currTotal, currSucceeded, currConverted := countEvents(current)
	prevTotal, prevSucceeded, prevConverted := countEvents(previous)

	conversionRate := rate(currConverted, currTotal)
	prevConversionRate := rate(prevConverted, prevTotal)
	successRate := rate(currSucceeded, currTotal)
	prevSuccessRate := rate(prevSucceeded, prevTotal)

	return analyticsdomain.PeriodOverview{
		TryonsThisPeriod:      currTotal,
		TryonsLastPeriod:      prevTotal,
		TryonsChange:          PctChange(currTotal, prevTotal),
		ConversionsThisPeriod: currConverted,
		ConversionsLastPeriod: prevConverted,
		ConversionsChange:     PctChange(currConverted, prevConverted),
		ConversionRate:        conversionRate,
		PrevConversionRate:    prevConversionRate,
		ConversionRateChange:  round1(conversionRate - prevConversionRate),
		SuccessRate:           successRate,
		PrevSuccessRate:       prevSuccessRate,
		SuccessRateChange:     round1(successRate - prevSuccessRate),
		TopProducts:           TopProducts(current),
	}
}

// TopProducts ranks current-period products by try-on count, descending.
// Ties keep first-encounter order; output is capped at five entries. Names
// default to the raw id until enriched from the catalog.
func TopProducts(current []tryondomain.TryonEvent) []analyticsdomain.TopProduct {
	order := make([]string, 0)
	grouped := make(map[string]*analyticsdomain.TopProduct)

	for _, event := range current {
		key := unknownProductKey
		if event.ProductID != nil && *event.ProductID != "" {
			key = *event.ProductID
		}
		entry, ok := grouped[key]
		if !ok {
			entry = &analyticsdomain.TopProduct{ProductID: key, Name: key}
			grouped[key] = entry
			order = append(order, key)
		}
		entry.Tryons++
		if event.Converted {
			entry.Conversions++
		}
	}

	ranked := make([]analyticsdomain.TopProduct, 0, len(order))
	for _, key := range order {
		entry := grouped[key]
		entry.ConversionRate = rate(entry.Conversions, entry.Tryons)
		ranked = append(ranked, *entry)
	}

	// Stable sort preserves encounter order between equal counts.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Tryons > ranked[j].Tryons
	})

	if len(ranked) > topProductsLimit {
		ranked = ranked[:topProductsLimit]
	}
	return ranked
}

func countEvents(events []tryondomain.TryonEvent) (total, succeeded, converted int) {
	total = len(events)
	for _, event := range events {
		if event.Status == tryondomain.StatusSucceeded {
			succeeded++
		}
		if event.Converted {
			converted++
		}
	}
	return total, succeeded, converted
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

// round1 rounds to one decimal, half away from zero.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
