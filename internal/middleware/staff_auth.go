package middleware

import (
	"strings"

	"rtoshield/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// StaffLocal is the fiber locals key the validated staff claims are
// stored under.
const StaffLocal = "staff"

// StaffClaims is the JWT payload issued to operations staff.
type StaffClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// StaffAuth validates staff bearer tokens for the admin surface.
type StaffAuth struct {
	secret []byte
	logger *zap.Logger
}

func NewStaffAuth(secret string, logger *zap.Logger) *StaffAuth {
	if secret == "" {
		panic("JWT secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffAuth{secret: []byte(secret), logger: logger}
}

// Handler validates the Authorization bearer token and stores the
// claims in locals.
func (m *StaffAuth) Handler(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return response.Unauthorized(c, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return response.Unauthorized(c, "invalid authorization format")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	claims := &StaffClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		m.logger.Debug("staff token rejected", zap.Error(err))
		return response.Unauthorized(c, "invalid or expired token")
	}

	c.Locals(StaffLocal, claims)
	return c.Next()
}

// RequireAdmin gates an already-authenticated route to the admin role.
func (m *StaffAuth) RequireAdmin(c *fiber.Ctx) error {
	claims, ok := c.Locals(StaffLocal).(*StaffClaims)
	if !ok || claims.Role != "admin" {
		return response.Error(c, fiber.StatusForbidden, "admin role required")
	}
	return c.Next()
}
