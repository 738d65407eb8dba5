package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ceremony-admission/internal/config"
)

const testSecret = "test-secret"

func token(t *testing.T, sub uint64, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func whoami(c echo.Context) error {
	id, err := UserID(c)
	if err != nil {
		return c.JSON(http.StatusOK, echo.Map{"role": Role(c)})
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
}

func serve(e *echo.Echo, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/", whoami, JWTAuth(testSecret), RequireRole("ADMIN"))

	assert.Equal(t, http.StatusUnauthorized, serve(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, "Bearer garbage").Code)
	assert.Equal(t, http.StatusForbidden, serve(e, "Bearer "+token(t, 7, "STAFF")).Code)

	rec := serve(e, "Bearer "+token(t, 7, "ADMIN"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"role":"ADMIN"}`, rec.Body.String())
}

func TestOptionalJWTLeavesInvalidTokensAnonymous(t *testing.T) {
	e := echo.New()
	e.GET("/", whoami, OptionalJWT(testSecret))

	rec := serve(e, "Bearer garbage")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"role":""}`, rec.Body.String())

	rec = serve(e, "Bearer "+token(t, 3, "STAFF"))
	assert.JSONEq(t, `{"id":3,"role":"STAFF"}`, rec.Body.String())
}

func TestTokenBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 5 * time.Minute, KeyStrategy: "ip", Prefix: "rl",
	}
	e := echo.New()
	e.GET("/", whoami, NewTokenBucket(cfg, rdb, nil))

	assert.Equal(t, http.StatusOK, serve(e, "").Code)
	rec := serve(e, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(e, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	e := echo.New()
	e.GET("/", whoami, NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, "").Code)
	}
}

func TestBuildRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/graduate/invitations", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/graduate/invitations")
	c.Set(ctxUserID, float64(4))

	cases := map[string]string{
		"ip":            "rl:ip:10.0.0.9",
		"user":          "rl:user:4",
		"ip_user":       "rl:ip:10.0.0.9:user:4",
		"user_route":    "rl:user:4:route:POST /v1/graduate/invitations",
		"ip_user_route": "rl:ip:10.0.0.9:user:4:route:POST /v1/graduate/invitations",
		"":              "rl:ip:10.0.0.9:user:4:route:POST /v1/graduate/invitations",
	}
	for strategy, want := range cases {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		assert.Equal(t, want, got, strategy)
	}
}
