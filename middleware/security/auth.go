package security

import (
	"net/http"
	"strings"
	"sync"

	"PSession/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Downstream handlers read the validated token through these keys.
const (
	CtxAuthKey   = "authorization" // raw token string
	CtxClaimsKey = "authClaims"    // jwt.MapClaims
)

var (
	secretMu sync.RWMutex
	secret   []byte
)

// SetSecret installs the HMAC key used to validate inbound tokens. Call it
// once at startup before any authenticated route is served.
func SetSecret(b []byte) {
	secretMu.Lock()
	secret = b
	secretMu.Unlock()
}

type Options struct {
	HeaderToken               string // default "authorization"
	EnableAuthorizationBearer bool   // default true
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               CtxAuthKey,
		EnableAuthorizationBearer: true,
	}
}

func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
				if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					token = strings.TrimSpace(authz[len("bearer "):])
				}
			}
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenNotFound)
			return
		}

		secretMu.RLock()
		key := secret
		secretMu.RUnlock()

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errs.New("unexpected signing method", "alg", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil || !parsed.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenNotFound)
			return
		}

		c.Set(CtxAuthKey, token)
		if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
			c.Set(CtxClaimsKey, claims)
		}
		c.Next()
	}
}
