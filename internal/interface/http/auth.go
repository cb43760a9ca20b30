package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

const (
	headerAPIKey = "X-API-Key"
	ctxActor     = "actor"

	tokenTypeAccess = "access"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATOR
// ══════════════════════════════════════════════════════════════════════════════

// APIKey is a machine credential. Callers send "name:secret"; only the bcrypt
// hash of the secret is kept.
type APIKey struct {
	Name string
	Role shared.Role
	Hash string
}

// Claims are the JWT claims of an access token.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Type string `json:"type"`
}

// Authenticator turns bearer tokens and API keys into actors.
type Authenticator struct {
	secret []byte
	issuer string
	keys   map[string]APIKey
}

// NewAuthenticator creates an Authenticator. An empty secret disables bearer
// tokens.
func NewAuthenticator(secret, issuer string, keys []APIKey) *Authenticator {
	a := &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		keys:   make(map[string]APIKey, len(keys)),
	}
	for _, k := range keys {
		a.keys[k.Name] = k
	}
	return a
}

var errUnauthenticated = shared.NewDomainError("http", "Authenticate", shared.ErrUnauthorized, "valid credentials required")

// IssueToken signs an access token for a user.
func (a *Authenticator) IssueToken(userID string, role shared.Role, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("bearer tokens are disabled")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(role),
		Type: tokenTypeAccess,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates an access token and returns its actor.
func (a *Authenticator) ParseToken(raw string) (shared.Actor, error) {
	if len(a.secret) == 0 {
		return shared.Actor{}, errUnauthenticated
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return shared.Actor{}, shared.WrapError("http", "ParseToken", shared.ErrUnauthorized, "invalid or expired token", err)
	}
	if claims.Type != tokenTypeAccess || claims.Subject == "" {
		return shared.Actor{}, errUnauthenticated
	}
	role, err := shared.ParseRole(claims.Role)
	if err != nil {
		return shared.Actor{}, errUnauthenticated
	}
	return shared.Actor{UserID: claims.Subject, Role: role}, nil
}

// CheckAPIKey validates a "name:secret" key.
func (a *Authenticator) CheckAPIKey(raw string) (shared.Actor, error) {
	name, secret, ok := strings.Cut(raw, ":")
	if !ok {
		return shared.Actor{}, errUnauthenticated
	}
	key, found := a.keys[name]
	if !found || bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(secret)) != nil {
		return shared.Actor{}, errUnauthenticated
	}
	return shared.Actor{UserID: "apikey:" + key.Name, Role: key.Role}, nil
}

// HashAPIKey hashes a key secret for the API_KEYS configuration.
func HashAPIKey(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(h), err
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// authMiddleware resolves the caller and stores the actor on the context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Auth == nil {
			writeJSONError(c, http.StatusUnauthorized, "unauthorized", "authentication is not configured")
			c.Abort()
			return
		}

		var actor shared.Actor
		var err error = errUnauthenticated
		if key := c.GetHeader(headerAPIKey); key != "" {
			actor, err = s.deps.Auth.CheckAPIKey(key)
		} else if header := c.GetHeader("Authorization"); header != "" {
			scheme, token, ok := strings.Cut(header, " ")
			if ok && strings.EqualFold(scheme, "bearer") {
				actor, err = s.deps.Auth.ParseToken(strings.TrimSpace(token))
			}
		}
		if err != nil {
			s.writeError(c, "authenticate", err)
			c.Abort()
			return
		}

		c.Set(ctxActor, actor)
		ctx := c.Request.Context()
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(logger.ActorID(actor.UserID)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// actorFrom returns the authenticated actor.
func actorFrom(c *gin.Context) shared.Actor {
	if v, ok := c.Get(ctxActor); ok {
		if actor, ok := v.(shared.Actor); ok {
			return actor
		}
	}
	return shared.Actor{}
}
