package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// DailyBucket is one calendar day of aggregated try-on activity. A window of
// N days always yields exactly N buckets, empty days included.
type DailyBucket struct {
	Date        string `json:"date"`
	Label       string `json:"label"`
	Tryons      int    `json:"tryons"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Conversions int    `json:"conversions"`
}

// TopProduct ranks one product within the current period.
type TopProduct struct {
	ProductID      string  `json:"product_id"`
	Name           string  `json:"name"`
	Tryons         int     `json:"tryons"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// PeriodOverview compares the current window against the equal-length window
// immediately before it. Count changes are relative percentages (nil when
// both periods are zero); rate changes are absolute percentage points.
type PeriodOverview struct {
	TryonsThisPeriod      int      `json:"tryons_this_period"`
	TryonsLastPeriod      int      `json:"tryons_last_period"`
	TryonsChange          *float64 `json:"tryons_change"`
	ConversionsThisPeriod int      `json:"conversions_this_period"`
	ConversionsLastPeriod int      `json:"conversions_last_period"`
	ConversionsChange     *float64 `json:"conversions_change"`
	ConversionRate        float64  `json:"conversion_rate"`
	PrevConversionRate    float64  `json:"prev_conversion_rate"`
	ConversionRateChange  float64  `json:"conversion_rate_change"`
	SuccessRate           float64  `json:"success_rate"`
	PrevSuccessRate       float64  `json:"prev_success_rate"`
	SuccessRateChange     float64  `json:"success_rate_change"`

	TopProducts []TopProduct `json:"top_products"`
	PeriodDays  int          `json:"period_days"`
}

// Timeseries is the daily-bucket response for the dashboard chart.
type Timeseries struct {
	Series     []DailyBucket `json:"series"`
	PeriodDays int           `json:"period_days"`
	Total      int           `json:"total"`
}

type Service interface {
	Overview(ctx context.Context, shopID snowflake.ID, days int) (*PeriodOverview, error)
	Timeseries(ctx context.Context, shopID snowflake.ID, days int) (*Timeseries, error)
}
