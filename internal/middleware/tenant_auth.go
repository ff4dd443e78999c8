// Package middleware provides the request authentication layers: tenant
// API keys on the ingestion and reporting surface, staff JWTs on the
// operational admin surface.
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"rtoshield/internal/models"
	"rtoshield/internal/repositories"
	"rtoshield/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyHeader carries the tenant API key on every inbound request.
	APIKeyHeader = "X-API-Key"

	// TenantLocal is the fiber locals key the authenticated tenant is
	// stored under.
	TenantLocal = "tenant"

	authCacheTTL = 5 * time.Minute
)

// TenantAuth resolves the API key header to an active tenant. Keys are
// stored hashed; the SHA-256 digest is only the lookup index, the
// bcrypt hash is the credential check.
type TenantAuth struct {
	tenants repositories.TenantRepository
	cache   repositories.CacheRepository
	logger  *zap.Logger
}

func NewTenantAuth(tenants repositories.TenantRepository, cache repositories.CacheRepository, logger *zap.Logger) *TenantAuth {
	if tenants == nil {
		panic("tenant repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantAuth{tenants: tenants, cache: cache, logger: logger}
}

// Handler authenticates the request and stores the tenant in locals.
func (m *TenantAuth) Handler(c *fiber.Ctx) error {
	key := c.Get(APIKeyHeader)
	if key == "" {
		return response.Unauthorized(c, "missing API key")
	}

	digest := keyDigest(key)

	// A cache hit means this exact key already passed the bcrypt
	// compare, so it can be skipped here.
	cacheKey := fmt.Sprintf("tenant:auth:%s", digest)
	if m.cache != nil {
		var cached models.Tenant
		if err := m.cache.Get(c.Context(), cacheKey, &cached); err == nil {
			if !cached.Active {
				return response.Unauthorized(c, "tenant is disabled")
			}
			c.Locals(TenantLocal, &cached)
			return c.Next()
		}
	}

	tenant, err := m.tenants.GetByAPIKeyDigest(c.Context(), digest)
	if err != nil {
		if errors.Is(err, repositories.ErrTenantNotFound) {
			return response.Unauthorized(c, "invalid API key")
		}
		m.logger.Error("tenant lookup failed", zap.Error(err))
		return response.ServerError(c, "authentication unavailable")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(tenant.APIKeyHash), []byte(key)); err != nil {
		return response.Unauthorized(c, "invalid API key")
	}
	if !tenant.Active {
		return response.Unauthorized(c, "tenant is disabled")
	}

	if m.cache != nil {
		if err := m.cache.Set(c.Context(), cacheKey, tenant, authCacheTTL); err != nil {
			m.logger.Warn("tenant auth cache write failed", zap.Error(err))
		}
	}

	c.Locals(TenantLocal, tenant)
	return c.Next()
}

// TenantFromCtx returns the tenant stored by Handler.
func TenantFromCtx(c *fiber.Ctx) (*models.Tenant, bool) {
	tenant, ok := c.Locals(TenantLocal).(*models.Tenant)
	return tenant, ok
}

func keyDigest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
