package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/keyfold/keyfold/constants"
	"github.com/pkg/errors"
)

const (
	callerAddressKey = "callerAddress"
	callerRoleKey    = "callerRole"
)

// ErrInvalidToken is returned when the provided token is invalid.
var ErrInvalidToken = errors.New("invalid token")

// CallerClaims is the JWT payload the API expects. The subject is the
// caller's address; the role is advisory only, authorization is enforced
// by the account itself.
type CallerClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// AuthMiddleware validates a bearer token signed with the shared secret
// and exposes the caller's address to the handlers. Tokens whose subject
// is not a 20-byte hex address are rejected.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := parseCallerToken(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(callerAddressKey, common.HexToAddress(claims.Subject))
		c.Set(callerRoleKey, claims.Role)
		c.Next()
	}
}

func parseCallerToken(token string, secret []byte) (*CallerClaims, error) {
	claims := &CallerClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if !common.IsHexAddress(claims.Subject) {
		return nil, errors.Wrap(ErrInvalidToken, "subject is not an address")
	}
	return claims, nil
}

// IssueCallerToken mints a token for caller, used by tests and the local
// development flow. An empty role defaults to the signer role.
func IssueCallerToken(secret []byte, caller common.Address, role string, ttl time.Duration) (string, error) {
	if role == "" {
		role = constants.SignerRole
	}
	now := time.Now()
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// CallerAddress returns the authenticated caller set by AuthMiddleware.
func CallerAddress(c *gin.Context) (common.Address, bool) {
	v, exists := c.Get(callerAddressKey)
	if !exists {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

// CallerRole returns the advisory role claim, or "" when absent.
func CallerRole(c *gin.Context) string {
	if v, exists := c.Get(callerRoleKey); exists {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

// IsAdminRole reports whether the caller presented the admin role claim.
func IsAdminRole(c *gin.Context) bool {
	return CallerRole(c) == constants.AdminRole
}
