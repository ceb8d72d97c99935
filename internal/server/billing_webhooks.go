package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	billingdomain "github.com/fitmirror/fitmirror/internal/billing/domain"
)

// HandleStripeWebhook ingests provider billing callbacks. The provider
// retries on any non-2xx, so everything that passed signature verification
// acks with 200 even when it was a duplicate.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.billingSvc.IngestWebhook(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		if errors.Is(err, billingdomain.ErrInvalidSignature) || errors.Is(err, billingdomain.ErrNotConfigured) {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: errorPayload{
				Type:    "invalid_signature",
				Message: "webhook signature verification failed",
			}})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
