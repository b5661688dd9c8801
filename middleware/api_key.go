package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edgekit/captchad/auth"
	"github.com/edgekit/captchad/utils"
)

const (
	// ContextAPIKeyKey stores the presented API key in Gin context.
	ContextAPIKeyKey = "api_key"
	// ContextKeyIDKey stores the credential fingerprint used to key stored settings.
	ContextKeyIDKey = "api_key_id"

	apiKeyHeader = "X-API-Key"
)

// APIKeyRequired gates privileged endpoints behind the encrypted credential
// set. A missing key and an invalid key are distinct failures for caller
// diagnostics.
func APIKeyRequired(keys *auth.KeyStore) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := strings.TrimSpace(ctx.GetHeader(apiKeyHeader))
		if key == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "api key is required")
			ctx.Abort()
			return
		}
		if !keys.IsValid(key) {
			utils.Error(ctx, http.StatusUnauthorized, 40111, "the provided api key is invalid")
			ctx.Abort()
			return
		}
		ctx.Set(ContextAPIKeyKey, key)
		ctx.Set(ContextKeyIDKey, keys.Fingerprint(key))
		ctx.Next()
	}
}
