package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apikeydomain "github.com/fitmirror/fitmirror/internal/apikey/domain"
	productdomain "github.com/fitmirror/fitmirror/internal/product/domain"
)

type upsertProductRequest struct {
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
}

// HandleUpsertProduct keeps the local catalog mirror fresh so analytics can
// label top products by title instead of raw platform ids.
func (s *Server) HandleUpsertProduct(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil || !identity.HasScope(apikeydomain.ScopeTryonsWrite) {
		AbortWithError(c, ErrForbidden)
		return
	}

	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		AbortWithError(c, newValidationError("external_id", "invalid_external_id", "external_id is required"))
		return
	}

	var req upsertProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	product := &productdomain.Product{
		ID:         s.genID.Generate(),
		ShopID:     identity.ShopID,
		ExternalID: externalID,
		Title:      strings.TrimSpace(req.Title),
		ImageURL:   strings.TrimSpace(req.ImageURL),
	}
	if err := s.productRepo.Upsert(c.Request.Context(), s.db, product); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"external_id": externalID})
}
