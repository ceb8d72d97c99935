package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// Period lengths the analytics endpoints accept. Anything else falls back
// to the default so a tampered query can never request an unbounded scan.
const defaultPeriodDays = 30

var allowedPeriodDays = map[string]int{
	"7":  7,
	"30": 30,
	"90": 90,
}

func parseShopIDParam(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Query("shop_id"))
	if raw == "" {
		return 0, newValidationError("shop_id", "missing_shop_id", "shop_id is required")
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, newValidationError("shop_id", "invalid_shop_id", "shop_id is not a valid id")
	}
	return id, nil
}

func parsePeriodDays(c *gin.Context) int {
	raw := strings.TrimSpace(c.Query("days"))
	if raw == "" {
		return defaultPeriodDays
	}
	if days, ok := allowedPeriodDays[raw]; ok {
		return days
	}
	return defaultPeriodDays
}
