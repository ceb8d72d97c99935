package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) HandleAnalyticsOverview(c *gin.Context) {
	shopID, err := parseShopIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	days := parsePeriodDays(c)

	overview, err := s.analyticsSvc.Overview(c.Request.Context(), shopID, days)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

func (s *Server) HandleAnalyticsTimeseries(c *gin.Context) {
	shopID, err := parseShopIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	days := parsePeriodDays(c)

	series, err := s.analyticsSvc.Timeseries(c.Request.Context(), shopID, days)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, series)
}
