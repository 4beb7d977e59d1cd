package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"writes": {RequestsPerMinute: 1, Burst: 1},
	}, nil)

	handler := limiter.Middleware("writes")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/bonds", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesKeys(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"writes": {RequestsPerMinute: 1, Burst: 1},
		"reads":  {RequestsPerMinute: 1, Burst: 1},
	}, nil)

	writes := limiter.Middleware("writes")(okHandler())
	reads := limiter.Middleware("reads")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/bonds", nil)
	res := httptest.NewRecorder()
	writes.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected write to succeed, got %d", res.Code)
	}

	readReq := httptest.NewRequest(http.MethodGet, "/v1/bonds/0", nil)
	readRes := httptest.NewRecorder()
	reads.ServeHTTP(readRes, readReq)
	if readRes.Code != http.StatusOK {
		t.Fatalf("expected read on separate budget to succeed, got %d", readRes.Code)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"writes": {RequestsPerMinute: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("writes")(okHandler())

	reqA := httptest.NewRequest(http.MethodPost, "/v1/bonds", nil)
	reqA.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.0.1")
	resA := httptest.NewRecorder()
	handler.ServeHTTP(resA, reqA)

	reqB := httptest.NewRequest(http.MethodPost, "/v1/bonds", nil)
	reqB.Header.Set("X-Real-IP", "10.0.0.2")
	resB := httptest.NewRecorder()
	handler.ServeHTTP(resB, reqB)

	if resA.Code != http.StatusOK || resB.Code != http.StatusOK {
		t.Fatalf("expected both clients to pass, got %d and %d", resA.Code, resB.Code)
	}
}

func TestRateLimiterUnknownKeyPassesThrough(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("writes")(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d: expected pass-through, got %d", i, res.Code)
		}
	}
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(map[string]RateLimit{
		"writes": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("writes")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/bonds", nil)
	req.Header.Set("X-Real-IP", "10.0.0.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got := limiter.visitorCount(); got != 1 {
		t.Fatalf("expected one visitor, got %d", got)
	}

	now = now.Add(2 * visitorTTL)
	other := httptest.NewRequest(http.MethodPost, "/v1/bonds", nil)
	other.Header.Set("X-Real-IP", "10.0.0.10")
	handler.ServeHTTP(httptest.NewRecorder(), other)
	if got := limiter.visitorCount(); got != 1 {
		t.Fatalf("expected idle visitor to be swept, got %d visitors", got)
	}
}
