package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	apikeydomain "github.com/fitmirror/fitmirror/internal/apikey/domain"
	tryondomain "github.com/fitmirror/fitmirror/internal/tryon/domain"
)

func (s *Server) resolvePlanKey(c *gin.Context, shopID snowflake.ID) (string, error) {
	if s.resolverCache != nil {
		if plan, ok := s.resolverCache.GetShopPlan(shopID.String()); ok {
			return plan, nil
		}
	}
	shop, err := s.shopSvc.Get(c.Request.Context(), shopID)
	if err != nil {
		return "", err
	}
	if s.resolverCache != nil {
		s.resolverCache.SetShopPlan(shopID.String(), shop.Plan)
	}
	return shop.Plan, nil
}

type recordTryonRequest struct {
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
	Converted bool   `json:"converted"`
}

type completeTryonRequest struct {
	Status    string `json:"status"`
	Converted *bool  `json:"converted"`
}

// HandleRecordTryon ingests one widget render. The per-shop token bucket
// sheds bursts before the monthly cap check touches the database.
func (s *Server) HandleRecordTryon(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil || !identity.HasScope(apikeydomain.ScopeTryonsWrite) {
		AbortWithError(c, ErrForbidden)
		return
	}

	if s.ingestLimiter.Enabled() {
		planKey, err := s.resolvePlanKey(c, identity.ShopID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		result, err := s.ingestLimiter.AllowShop(c.Request.Context(), identity.ShopID.String(), planKey)
		if err != nil {
			// Redis being down must not take ingestion with it.
			s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), identity.ShopID.String(), "tryons")
		} else if !result.Allowed {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), identity.ShopID.String(), "tryons", "burst")
			if result.RetryAfter > 0 {
				c.Header("Retry-After", formatRetryAfter(result.RetryAfter))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
	}

	var req recordTryonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.tryonSvc.Record(c.Request.Context(), tryondomain.RecordRequest{
		ShopID:    identity.ShopID,
		ProductID: strings.TrimSpace(req.ProductID),
		Status:    strings.TrimSpace(req.Status),
		Converted: req.Converted,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     event.ID.String(),
		"status": event.Status,
	})
}

func (s *Server) HandleCompleteTryon(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil || !identity.HasScope(apikeydomain.ScopeTryonsWrite) {
		AbortWithError(c, ErrForbidden)
		return
	}

	eventID, err := snowflake.ParseString(strings.TrimSpace(c.Param("tryon_id")))
	if err != nil || eventID == 0 {
		AbortWithError(c, newValidationError("tryon_id", "invalid_tryon_id", "tryon_id is not a valid id"))
		return
	}

	var req completeTryonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.tryonSvc.Complete(c.Request.Context(), tryondomain.CompleteRequest{
		ShopID:    identity.ShopID,
		EventID:   eventID,
		Status:    strings.TrimSpace(req.Status),
		Converted: req.Converted,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     event.ID.String(),
		"status": event.Status,
	})
}
