package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	apikeydomain "github.com/fitmirror/fitmirror/internal/apikey/domain"
)

func (s *Server) HandleListAPIKeys(c *gin.Context) {
	shopID, err := parseShopIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	keys, err := s.apiKeySvc.List(c.Request.Context(), shopID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

type createAPIKeyRequest struct {
	ShopID string   `json:"shop_id"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

// HandleCreateAPIKey returns the raw key exactly once. It is hashed at rest
// and can never be retrieved again.
func (s *Server) HandleCreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	raw := strings.TrimSpace(req.ShopID)
	if raw == "" {
		AbortWithError(c, newValidationError("shop_id", "missing_shop_id", "shop_id is required"))
		return
	}
	shopID, err := snowflake.ParseString(raw)
	if err != nil || shopID == 0 {
		AbortWithError(c, newValidationError("shop_id", "invalid_shop_id", "shop_id is not a valid id"))
		return
	}

	secret, err := s.apiKeySvc.Create(c.Request.Context(), shopID, apikeydomain.CreateRequest{
		Name:   req.Name,
		Scopes: req.Scopes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, secret)
}

func (s *Server) HandleRotateAPIKey(c *gin.Context) {
	shopID, err := parseShopIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	secret, err := s.apiKeySvc.Rotate(c.Request.Context(), shopID, strings.TrimSpace(c.Param("key_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, secret)
}

func (s *Server) HandleRevokeAPIKey(c *gin.Context) {
	shopID, err := parseShopIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.apiKeySvc.Revoke(c.Request.Context(), shopID, strings.TrimSpace(c.Param("key_id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": true})
}
