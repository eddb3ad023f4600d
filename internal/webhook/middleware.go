package webhook

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const (
	apiKeyHeader    = "X-Webhook-API-Key"
	ctxTenantKey    = "webhookTenantID"
	ctxAPIKeyIDKey  = "webhookKeyID"
	ctxSourceDomain = "webhookSourceDomain"
)

// KeyLookup finds an active key by hash.
type KeyLookup interface {
	GetByHash(ctx context.Context, keyHash string) (APIKey, error)
}

// APIKeyAuthMiddleware validates the X-Webhook-API-Key header and sets the
// tenant context on the gin context.
func APIKeyAuthMiddleware(keys KeyLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(apiKeyHeader)
		if apiKey == "" {
			abort(c, apperr.Unauthorized("missing API key"))
			return
		}

		key, err := keys.GetByHash(c.Request.Context(), HashKey(apiKey))
		if errors.Is(err, ErrAPIKeyNotFound) {
			abort(c, apperr.Unauthorized("invalid API key"))
			return
		}
		if err != nil {
			abort(c, err)
			return
		}

		// Browsers send Origin; server-side callers may only send Referer.
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = c.GetHeader("Referer")
		}
		if len(key.AllowedDomains) > 0 && !isDomainAllowed(origin, key.AllowedDomains) {
			abort(c, apperr.Forbidden("domain not allowed"))
			return
		}

		c.Set(ctxTenantKey, key.TenantID)
		c.Set(ctxAPIKeyIDKey, key.ID)
		c.Set(ctxSourceDomain, hostOf(origin))
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	httpkit.HandleError(c, err)
	c.Abort()
}

// isDomainAllowed checks if the origin matches any of the allowed domains.
// Supports exact match and wildcard subdomains (e.g., "*.example.com").
func isDomainAllowed(origin string, allowedDomains []string) bool {
	host := hostOf(origin)
	if host == "" {
		return false
	}

	for _, domain := range allowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		switch {
		case domain == "*":
			return true
		case strings.HasPrefix(domain, "*."):
			if strings.HasSuffix(host, domain[1:]) || host == domain[2:] {
				return true
			}
		case host == domain:
			return true
		}
	}
	return false
}

func hostOf(origin string) string {
	if origin == "" {
		return ""
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
