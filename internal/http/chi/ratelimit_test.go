package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/marcelsud/webhook-dispatch/internal/user"
	"github.com/marcelsud/webhook-dispatch/ratelimit"
	ratelimitmocks "github.com/marcelsud/webhook-dispatch/ratelimit/mocks"
	ratelimitredis "github.com/marcelsud/webhook-dispatch/ratelimit/redis"
	"github.com/marcelsud/webhook-dispatch/routes"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/mocks"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const policies = `
routes:
  - {route_id: "login", path: "/v1/auth/login", limit: 1, window_seconds: 60, identify: "ip"}
  - {route_id: "sync", path: "/v1/sync", limit: 2, window_seconds: 60}
  - {route_id: "checkout", path: "/v1/checkout", limit: 3, window_seconds: 60, identify: "user"}
`

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func loadPolicies(t *testing.T) *routes.Loader {
	t.Helper()
	loader := routes.NewLoader()
	require.NoError(t, loader.Parse([]byte(policies)))
	return loader
}

func newLimitedRouter(t *testing.T, store ratelimit.Store, clock *testClock, tokens *user.TokenService) http.Handler {
	t.Helper()
	limiter := ratelimit.NewLimiter(store, zerolog.Nop(), ratelimit.WithClock(clock.Now))
	return newRouter(t, mocks.NewUseCase(t), &fakeDispatcher{}, func(d *Dependencies) {
		d.Limiter = limiter
		d.Routes = loadPolicies(t)
		d.Tokens = tokens
	})
}

func newRedisStore(t *testing.T) ratelimit.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return ratelimitredis.NewStore(client, ratelimitredis.DefaultPrefix)
}

func TestRateLimit_SecondRequestRejected(t *testing.T) {
	clock := &testClock{now: start}
	h := newLimitedRouter(t, newRedisStore(t), clock, nil)

	first := do(t, h, http.MethodPost, "/v1/auth/login", `{"user_id":"u-1"}`, "X-Forwarded-For", "10.0.0.1, 172.16.0.1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get(HeaderLimit))
	assert.Equal(t, "0", first.Header().Get(HeaderRemaining))
	assert.Equal(t, start.Add(time.Minute).Format(time.RFC3339), first.Header().Get(HeaderReset))
	assert.Empty(t, first.Header().Get(HeaderRetryAfter))

	clock.now = start.Add(100 * time.Millisecond)
	second := do(t, h, http.MethodPost, "/v1/auth/login", `{"user_id":"u-1"}`, "X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "0", second.Header().Get(HeaderRemaining))

	retryAfter, err := strconv.Atoi(second.Header().Get(HeaderRetryAfter))
	require.NoError(t, err)
	assert.LessOrEqual(t, retryAfter, 60)
	assert.GreaterOrEqual(t, retryAfter, 1)

	var body errorResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Error)
	assert.Equal(t, float64(retryAfter), body.Details["retry_after_seconds"])
	assert.Contains(t, body.Message, strconv.Itoa(retryAfter)+" seconds")

	other := do(t, h, http.MethodPost, "/v1/auth/login", `{"user_id":"u-1"}`, "X-Forwarded-For", "10.0.0.2")
	assert.Equal(t, http.StatusOK, other.Code, "another client keeps its own window")
}

func TestRateLimit_WindowSlides(t *testing.T) {
	clock := &testClock{now: start}
	h := newLimitedRouter(t, newRedisStore(t), clock, nil)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/sync", "", "X-Real-IP", "10.0.0.9").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/v1/sync", "", "X-Real-IP", "10.0.0.9").Code)

	clock.now = start.Add(61 * time.Second)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/sync", "", "X-Real-IP", "10.0.0.9").Code)
}

func TestRateLimit_UnprotectedRoute(t *testing.T) {
	store := ratelimitmocks.NewStore(t)
	s := mocks.NewUseCase(t)
	s.On("GetStats", mock.Anything).Return(webhook.Stats{TotalWebhooks: 1}, nil)
	limiter := ratelimit.NewLimiter(store, zerolog.Nop())
	h := newRouter(t, s, &fakeDispatcher{}, func(d *Dependencies) {
		d.Limiter = limiter
		d.Routes = loadPolicies(t)
	})

	w := do(t, h, http.MethodGet, "/v1/stats", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(HeaderLimit))
	store.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRateLimit_ByUser(t *testing.T) {
	tokens := user.NewTokenService("test-secret", time.Hour)
	store := ratelimitmocks.NewStore(t)
	store.On("Record", mock.Anything, "checkout:user:u-1", start, time.Minute).
		Return(ratelimit.Window{Count: 0, Oldest: start}, nil)
	h := newLimitedRouter(t, store, &testClock{now: start}, tokens)

	t.Run("anonymous caller is refused", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/v1/checkout", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token is refused", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/v1/checkout", "", "Authorization", "Bearer not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("authenticated caller is counted by user id", func(t *testing.T) {
		token, err := tokens.Generate("u-1")
		require.NoError(t, err)

		w := do(t, h, http.MethodPost, "/v1/checkout", "", "Authorization", "Bearer "+token)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get(HeaderRemaining))
	})
}

func TestRateLimit_UserOrIPPrefersUser(t *testing.T) {
	tokens := user.NewTokenService("test-secret", time.Hour)
	store := ratelimitmocks.NewStore(t)
	store.On("Record", mock.Anything, "sync:user:u-7", start, time.Minute).
		Return(ratelimit.Window{Count: 0, Oldest: start}, nil)
	store.On("Record", mock.Anything, "sync:ip:192.0.2.1", start, time.Minute).
		Return(ratelimit.Window{Count: 0, Oldest: start}, nil)
	h := newLimitedRouter(t, store, &testClock{now: start}, tokens)
	token, err := tokens.Generate("u-7")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK,
		do(t, h, http.MethodPost, "/v1/sync", "", "Authorization", "Bearer "+token, "X-Forwarded-For", "192.0.2.1").Code)
	assert.Equal(t, http.StatusOK,
		do(t, h, http.MethodPost, "/v1/sync", "", "X-Forwarded-For", "192.0.2.1").Code)
}

func TestRateLimit_FailOpen(t *testing.T) {
	store := ratelimitmocks.NewStore(t)
	store.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(ratelimit.Window{}, errors.New("connection refused"))
	h := newLimitedRouter(t, store, &testClock{now: start}, nil)

	for i := 0; i < 3; i++ {
		w := do(t, h, http.MethodPost, "/v1/auth/login", `{"user_id":"u-1"}`, "X-Forwarded-For", "10.0.0.1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1", w.Header().Get(HeaderLimit))
	}
}

func TestRateLimit_DisabledReportsFullLimit(t *testing.T) {
	h := newRouter(t, mocks.NewUseCase(t), &fakeDispatcher{}, func(d *Dependencies) {
		d.Routes = loadPolicies(t)
	})

	for i := 0; i < 3; i++ {
		w := do(t, h, http.MethodPost, "/v1/sync", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get(HeaderLimit))
		assert.Equal(t, "2", w.Header().Get(HeaderRemaining))
		_, err := time.Parse(time.RFC3339, w.Header().Get(HeaderReset))
		assert.NoError(t, err)
	}
}

func TestResetLimit(t *testing.T) {
	clock := &testClock{now: start}
	h := newLimitedRouter(t, newRedisStore(t), clock, nil)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/auth/login", `{"user_id":"u"}`, "X-Forwarded-For", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/v1/auth/login", `{"user_id":"u"}`, "X-Forwarded-For", "10.0.0.1").Code)

	w := do(t, h, http.MethodDelete, "/v1/ratelimit/login:ip:10.0.0.1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/auth/login", `{"user_id":"u"}`, "X-Forwarded-For", "10.0.0.1").Code)
}

func TestHealth_DegradedStore(t *testing.T) {
	store := ratelimitmocks.NewStore(t)
	store.On("Ping", mock.Anything).Return(errors.New("connection refused"))
	h := newLimitedRouter(t, store, &testClock{now: start}, nil)

	w := do(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "enforcing", resp.RateLimit.Mode)
	assert.False(t, resp.RateLimit.Healthy)
}

func TestLogin_IssuesToken(t *testing.T) {
	tokens := user.NewTokenService("test-secret", time.Hour)
	h := newRouter(t, mocks.NewUseCase(t), &fakeDispatcher{}, func(d *Dependencies) {
		d.Tokens = tokens
		d.LoginPassword = "hunter2"
	})

	w := do(t, h, http.MethodPost, "/v1/auth/login", `{"user_id":"u-3","password":"hunter2"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := tokens.Validate(resp["token"])
	require.NoError(t, err)
	assert.Equal(t, "u-3", claims.UserID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/auth/login", `{}`).Code)
}

func TestLogin_RejectsSelfAssertedUsers(t *testing.T) {
	tokens := user.NewTokenService("test-secret", time.Hour)

	t.Run("wrong password", func(t *testing.T) {
		h := newRouter(t, mocks.NewUseCase(t), &fakeDispatcher{}, func(d *Dependencies) {
			d.Tokens = tokens
			d.LoginPassword = "hunter2"
		})

		for _, body := range []string{`{"user_id":"u-4"}`, `{"user_id":"u-4","password":"guess"}`} {
			w := do(t, h, http.MethodPost, "/v1/auth/login", body)
			assert.Equal(t, http.StatusUnauthorized, w.Code, body)
			assert.NotContains(t, w.Body.String(), "token")
		}
	})

	t.Run("no credential configured", func(t *testing.T) {
		h := newRouter(t, mocks.NewUseCase(t), &fakeDispatcher{}, func(d *Dependencies) { d.Tokens = tokens })

		w := do(t, h, http.MethodPost, "/v1/auth/login", `{"user_id":"u-5","password":""}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("fresh user ids share the caller's ip window on user_or_ip routes", func(t *testing.T) {
		clock := &testClock{now: start}
		h := newLimitedRouter(t, newRedisStore(t), clock, tokens)

		assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/sync", "", "X-Forwarded-For", "10.0.0.8").Code)
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/sync", "", "X-Forwarded-For", "10.0.0.8").Code)
		for i, id := range []string{"u-a", "u-b", "u-c"} {
			login := do(t, h, http.MethodPost, "/v1/auth/login", `{"user_id":"`+id+`"}`, "X-Forwarded-For", "10.1.0."+strconv.Itoa(i))
			assert.Equal(t, http.StatusOK, login.Code)
			assert.NotContains(t, login.Body.String(), "token")
		}
		assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/v1/sync", "", "X-Forwarded-For", "10.0.0.8").Code)
	})
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"first forwarded entry", map[string]string{"X-Forwarded-For": " 10.0.0.1 , 10.0.0.2"}, "127.0.0.1:1234", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.3"}, "127.0.0.1:1234", "10.0.0.3"},
		{"peer address", nil, "192.0.2.4:5555", "192.0.2.4"},
		{"nothing known", nil, "", "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(req))
		})
	}
}
