package server

import (
	"strings"

	"github.com/gin-gonic/gin"

	apikeydomain "github.com/fitmirror/fitmirror/internal/apikey/domain"
	obscontext "github.com/fitmirror/fitmirror/internal/observability/context"
)

const contextIdentityKey = "api_key_identity"

// APIKeyRequired authenticates widget requests with a bearer key. Shop
// identity is derived solely from the api_keys table, never from the
// request body.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		keyHash := apikeydomain.HashAPIKey(raw)
		identity, cached := s.cachedIdentity(keyHash)
		if !cached {
			var err error
			identity, err = s.apiKeySvc.Authenticate(c.Request.Context(), raw)
			if err != nil {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			if s.resolverCache != nil {
				s.resolverCache.SetIdentity(keyHash, identity)
			}
		}

		ctx := obscontext.WithShopID(c.Request.Context(), identity.ShopID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextIdentityKey, identity)
		c.Next()
	}
}

func (s *Server) cachedIdentity(keyHash string) (*apikeydomain.Identity, bool) {
	if s.resolverCache == nil {
		return nil, false
	}
	return s.resolverCache.GetIdentity(keyHash)
}

func identityFromContext(c *gin.Context) *apikeydomain.Identity {
	value, ok := c.Get(contextIdentityKey)
	if !ok {
		return nil
	}
	identity, ok := value.(*apikeydomain.Identity)
	if !ok {
		return nil
	}
	return identity
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(c.GetHeader("X-Api-Key"))
}
