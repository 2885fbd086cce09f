package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/internal/utils"
)

const (
	APIKeyHeader = "X-API-Key"

	// gin context keys set on successful authentication
	ContextDomain     = "Domain"
	ContextDomainID   = "DomainID"
	ContextDomainName = "DomainName"
)

// DomainAPIKeyMiddleware authenticates tenant requests. Keys are never
// stored in plaintext: the presented key is hashed and looked up by
// hash, then recompared in constant time.
func DomainAPIKeyMiddleware(domainRepository repository.DomainRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader(APIKeyHeader))

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing API key",
			})
			c.Abort()
			return
		}

		if !strings.HasPrefix(apiKey, utils.APIKeyPrefix) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			c.Abort()
			return
		}

		hash := utils.HashAPIKey(apiKey)
		domain, err := domainRepository.GetByAPIKeyHash(c.Request.Context(), hash)
		if err != nil || domain == nil || !utils.SecureCompare(domain.APIKeyHash, hash) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			c.Abort()
			return
		}

		c.Set(ContextDomain, domain)
		c.Set(ContextDomainID, domain.ID)
		c.Set(ContextDomainName, domain.Domain)
		c.Next()
	}
}

// AdminAPIKeyConfig holds the configuration for admin key authentication
type AdminAPIKeyConfig struct {
	HeaderName  string
	ValidAPIKey string
}

// AdminAPIKeyMiddleware guards the admin surface with a single
// operator-held key.
func AdminAPIKeyMiddleware(config AdminAPIKeyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader(config.HeaderName))

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing API key",
			})
			c.Abort()
			return
		}

		if !utils.SecureCompare(apiKey, config.ValidAPIKey) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
