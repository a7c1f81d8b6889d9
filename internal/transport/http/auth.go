package http

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/cimillas/library-lending/internal/auth"
	"github.com/cimillas/library-lending/internal/directory"
)

const (
	tokenContextKey     = "user"
	principalContextKey = "principal"
)

// authenticate verifies the HS256 bearer token and stores the caller's
// principal on the echo context. The raw token is forwarded to the student
// directory through the request context.
func authenticate(secret string) []echo.MiddlewareFunc {
	verify := echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: jwt.SigningMethodHS256.Alg(),
		ContextKey:    tokenContextKey,
		TokenLookup:   "header:Authorization:Bearer ",
		NewClaimsFunc: func(echo.Context) jwt.Claims { return jwt.MapClaims{} },
		ErrorHandler: func(c echo.Context, _ error) error {
			return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "missing or invalid token")
		},
	})

	attach := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := c.Get(tokenContextKey).(*jwt.Token)
			if !ok || token == nil {
				return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "missing or invalid token")
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "missing or invalid token")
			}
			principal, err := auth.FromClaims(claims)
			if err != nil {
				return writeError(c, http.StatusUnauthorized, codeUnauthenticated, "missing or invalid token")
			}

			c.Set(principalContextKey, principal)
			req := c.Request()
			c.SetRequest(req.WithContext(directory.WithBearer(req.Context(), token.Raw)))
			return next(c)
		}
	}

	return []echo.MiddlewareFunc{verify, attach}
}

func principalOf(c echo.Context) auth.Principal {
	p, _ := c.Get(principalContextKey).(auth.Principal)
	return p
}
