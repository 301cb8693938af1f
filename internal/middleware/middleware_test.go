package middleware

import (
    "context"
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
    "go.uber.org/zap"

    "github.com/iliyamo/hostel-occupancy/internal/config"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
    t.Helper()
    s, err := jwt.NewWithClaims(method, claims).SignedString(key)
    require.NoError(t, err)
    return s
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return mr, rdb
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, nil)
    if token != "" {
        req.Header.Set("Authorization", "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestJWTAuthAndRequireRole(t *testing.T) {
    e := echo.New()
    g := e.Group("/v1", JWTAuth(testSecret), RequireRole(RoleAdmin))
    g.GET("/who", func(c echo.Context) error {
        return c.JSON(http.StatusOK, echo.Map{"user": userID(c), "role": c.Get("role")})
    })

    valid := jwt.MapClaims{"sub": "17", "role": "admin", "exp": time.Now().Add(time.Hour).Unix()}
    tests := []struct {
        name   string
        token  string
        status int
    }{
        {"missing token", "", http.StatusUnauthorized},
        {"garbage", "not-a-jwt", http.StatusUnauthorized},
        {"wrong secret", signToken(t, jwt.SigningMethodHS256, []byte("other"), valid), http.StatusUnauthorized},
        {"wrong alg", signToken(t, jwt.SigningMethodHS512, []byte(testSecret), valid), http.StatusUnauthorized},
        {"expired", signToken(t, jwt.SigningMethodHS256, []byte(testSecret),
            jwt.MapClaims{"sub": "17", "role": "ADMIN", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
        {"wrong role", signToken(t, jwt.SigningMethodHS256, []byte(testSecret),
            jwt.MapClaims{"sub": "17", "role": RoleStudent}), http.StatusForbidden},
        {"no role", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "17"}), http.StatusForbidden},
        {"ok", signToken(t, jwt.SigningMethodHS256, []byte(testSecret), valid), http.StatusOK},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            rec := serve(e, http.MethodGet, "/v1/who", tt.token)
            assert.Equal(t, tt.status, rec.Code, rec.Body.String())
            if tt.status == http.StatusOK {
                assert.JSONEq(t, `{"user":"17","role":"ADMIN"}`, rec.Body.String())
            }
        })
    }
}

func TestUserID(t *testing.T) {
    e := echo.New()
    c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
    assert.Equal(t, "anon", userID(c))
    c.Set("user_id", float64(42))
    assert.Equal(t, "42", userID(c))
    c.Set("user_id", "abc")
    assert.Equal(t, "abc", userID(c))
}

func cacheConfig() config.CacheConfig {
    return config.CacheConfig{
        Enabled:     true,
        Methods:     map[string]bool{http.MethodGet: true},
        TTL:         time.Minute,
        KeyStrategy: "route_query",
        Prefix:      "cache",
    }
}

func TestRedisCache_HitMissAndInvalidate(t *testing.T) {
    mr, rdb := newRedis(t)
    cfg := cacheConfig()

    calls := 0
    e := echo.New()
    e.GET("/rooms/:id", func(c echo.Context) error {
        calls++
        return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "calls": calls})
    }, NewRedisCache(cfg, rdb, "rooms"))
    e.POST("/rooms/:id", func(c echo.Context) error {
        return c.NoContent(http.StatusNoContent)
    }, InvalidateOnWrite(cfg, rdb, "rooms", zap.NewNop()))
    e.PUT("/rooms/:id", func(c echo.Context) error {
        return c.JSON(http.StatusConflict, echo.Map{"error": "room is full"})
    }, InvalidateOnWrite(cfg, rdb, "rooms", zap.NewNop()))

    first := serve(e, http.MethodGet, "/rooms/1", "")
    assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
    second := serve(e, http.MethodGet, "/rooms/1", "")
    assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
    assert.Equal(t, first.Body.String(), second.Body.String())
    assert.Contains(t, second.Header().Get(echo.HeaderContentType), "application/json")
    assert.Equal(t, 1, calls)

    // Different id is a different entry.
    other := serve(e, http.MethodGet, "/rooms/2", "")
    assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
    assert.Len(t, mr.Keys(), 2)

    // Rejected writes keep the cache.
    serve(e, http.MethodPut, "/rooms/1", "")
    assert.Len(t, mr.Keys(), 2)

    serve(e, http.MethodPost, "/rooms/1", "")
    assert.Empty(t, mr.Keys())
    again := serve(e, http.MethodGet, "/rooms/1", "")
    assert.Equal(t, "MISS", again.Header().Get("X-Cache"))
    assert.Equal(t, 3, calls)
}

func TestRedisCache_SkipsErrorsAndDisabled(t *testing.T) {
    mr, rdb := newRedis(t)
    cfg := cacheConfig()

    e := echo.New()
    e.GET("/missing", func(c echo.Context) error {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
    }, NewRedisCache(cfg, rdb, "rooms"))
    serve(e, http.MethodGet, "/missing", "")
    assert.Empty(t, mr.Keys())

    off := cfg
    off.Enabled = false
    e.GET("/off", func(c echo.Context) error { return c.String(http.StatusOK, "x") }, NewRedisCache(off, rdb, "rooms"))
    rec := serve(e, http.MethodGet, "/off", "")
    assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestInvalidateCache_OnlyNamespace(t *testing.T) {
    mr, rdb := newRedis(t)
    cfg := cacheConfig()
    require.NoError(t, mr.Set("cache:rooms:a", "1"))
    require.NoError(t, mr.Set("cache:rooms:b", "1"))
    require.NoError(t, mr.Set("cache:students:a", "1"))

    require.NoError(t, InvalidateCache(context.Background(), rdb, cfg, "rooms"))
    assert.Equal(t, []string{"cache:students:a"}, mr.Keys())
    assert.NoError(t, InvalidateCache(context.Background(), nil, cfg, "rooms"))
}

func TestPayloadRoundTrip(t *testing.T) {
    hdr := http.Header{"Content-Type": {"application/json"}}
    bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
    require.NoError(t, err)
    status, got, body, ok := decodePayload(bs)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, hdr, got)
    assert.Equal(t, `{"ok":true}`, string(body))

    _, _, _, ok = decodePayload([]byte{0, 1})
    assert.False(t, ok)
}

func TestTokenBucket(t *testing.T) {
    _, rdb := newRedis(t)
    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       2,
        RefillTokens:   1,
        RefillInterval: time.Hour,
        TTL:            5 * time.Hour,
        KeyStrategy:    "ip",
        Prefix:         "rl",
    }
    e := echo.New()
    e.GET("/rooms", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, NewTokenBucket(cfg, rdb, zap.NewNop()))

    assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/rooms", "").Code)
    rec := serve(e, http.MethodGet, "/rooms", "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

    blocked := serve(e, http.MethodGet, "/rooms", "")
    assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
    assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
}

func TestTokenBucket_FailsOpen(t *testing.T) {
    mr, rdb := newRedis(t)
    mr.Close()
    cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
    e := echo.New()
    e.GET("/rooms", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, NewTokenBucket(cfg, rdb, zap.NewNop()))
    for i := 0; i < 3; i++ {
        assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/rooms", "").Code)
    }
}

func TestBuildRateKey(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/rooms/3/students", nil)
    req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/rooms/:id/students")
    c.Set("user_id", "9")

    cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user_route"}
    assert.Equal(t, "rl:ip:10.0.0.1:user:9:route:POST /v1/rooms/:id/students", buildRateKey(cfg, c))
    cfg.KeyStrategy = "user"
    assert.Equal(t, "rl:user:9", buildRateKey(cfg, c))
}

func TestRequestLoggerPassesThrough(t *testing.T) {
    e := echo.New()
    e.Use(RequestLogger(zap.NewNop()))
    e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "nope") })
    rec := serve(e, http.MethodGet, "/boom", "")
    assert.Equal(t, http.StatusTeapot, rec.Code)
}
