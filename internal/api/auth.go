package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

// Auth modes.
const (
	AuthModeNone   = "none"
	AuthModeAPIKey = "api-key"
	AuthModeJWT    = "jwt"
)

// UserHeader names the workspace owner when auth does not carry one.
const UserHeader = "X-User-ID"

const (
	anonymousUser = "anonymous"
	defaultLocale = "en"
	identityKey   = "identity"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode      string // "none", "api-key" or "jwt"
	APIKey    string
	JWTSecret string
	JWTIssuer string
}

// NewAuthMiddleware authenticates the request and stores the caller's
// workspace.Identity in c.Locals.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	parser := jwt.NewParser(jwtOptions(cfg)...)

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		// Header values alias the request buffer; the identity outlives it.
		locale := utils.CopyString(resolveLocale(c.Get(fiber.HeaderAcceptLanguage)))

		if cfg.Mode == AuthModeNone {
			c.Locals(identityKey, workspace.Identity{UserID: headerUser(c), Locale: locale})
			return c.Next()
		}

		token, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return problemResponse(c, fiber.StatusUnauthorized, "missing_auth", "Unauthorized", err.Error())
		}

		var userID string
		switch cfg.Mode {
		case AuthModeJWT:
			claims := &jwt.RegisteredClaims{}
			if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
				return []byte(cfg.JWTSecret), nil
			}); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("unauthorized request: invalid token")
				return problemResponse(c, fiber.StatusUnauthorized, "invalid_token", "Unauthorized", "Invalid bearer token")
			}
			if claims.Subject == "" {
				return problemResponse(c, fiber.StatusUnauthorized, "invalid_token", "Unauthorized", "Token has no subject")
			}
			userID = claims.Subject
		default:
			if cfg.APIKey == "" || token != cfg.APIKey {
				logger.Warn().Str("path", path).Str("method", c.Method()).Msg("unauthorized request: invalid API key")
				return problemResponse(c, fiber.StatusUnauthorized, "invalid_api_key", "Unauthorized", "Invalid API key")
			}
			userID = headerUser(c)
		}

		c.Locals(identityKey, workspace.Identity{UserID: userID, Locale: locale})
		return c.Next()
	}
}

func jwtOptions(cfg AuthConfig) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	return opts
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("Authorization header is required")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("Authorization header must use Bearer scheme")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("Bearer token is empty")
	}
	return token, nil
}

func headerUser(c *fiber.Ctx) string {
	if u := strings.TrimSpace(c.Get(UserHeader)); u != "" {
		return utils.CopyString(u)
	}
	return anonymousUser
}

// resolveLocale returns the primary language subtag of the first
// Accept-Language entry, lower-cased, or "en".
func resolveLocale(header string) string {
	first, _, _ := strings.Cut(header, ",")
	first, _, _ = strings.Cut(first, ";")
	first = strings.TrimSpace(first)
	if first == "" || first == "*" {
		return defaultLocale
	}
	lang, _, _ := strings.Cut(first, "-")
	return strings.ToLower(lang)
}

// identityFrom returns the identity stored by the auth middleware.
func identityFrom(c *fiber.Ctx) (workspace.Identity, bool) {
	id, ok := c.Locals(identityKey).(workspace.Identity)
	return id, ok
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
