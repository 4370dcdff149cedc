package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func serveFrom(h http.Handler, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 2, 2)
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, serveFrom(handler, "192.168.1.1:1234"))
	assert.Equal(t, http.StatusOK, serveFrom(handler, "192.168.1.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(handler, "192.168.1.1:1234"))
}

func TestRateLimiter_PortsShareBucket(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, serveFrom(handler, "10.0.0.1:1111"))
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(handler, "10.0.0.1:2222"))
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, serveFrom(handler, "10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, serveFrom(handler, "10.0.0.2:1111"))
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(handler, "10.0.0.1:1111"))
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 20, 1)
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, serveFrom(handler, "10.0.0.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(handler, "10.0.0.1:1"))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, http.StatusOK, serveFrom(handler, "10.0.0.1:1"))
}

func TestRateLimiter_RejectionBody(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	serveFrom(handler, "10.0.0.1:1")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimiter_CleanupDropsIdle(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	defer rl.Stop()

	rl.getLimiter("10.0.0.1")
	rl.getLimiter("10.0.0.2")
	assert.Equal(t, 2, rl.size())

	rl.cleanup(time.Now())
	assert.Equal(t, 2, rl.size(), "recently used limiters stay")

	rl.cleanup(time.Now().Add(limiterTTL + time.Minute))
	assert.Equal(t, 0, rl.size())
}

func TestRateLimiter_CleanupCapsSize(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	defer rl.Stop()

	for i := 0; i < maxLimiters+10; i++ {
		rl.getLimiter(fmt.Sprintf("10.%d.%d.%d", i>>16&0xff, i>>8&0xff, i&0xff))
	}
	rl.cleanup(time.Now())

	assert.Equal(t, maxLimiters/2, rl.size())
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1000, 1000)
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			serveFrom(handler, fmt.Sprintf("10.0.0.%d:80", i%5))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, rl.size())
}
