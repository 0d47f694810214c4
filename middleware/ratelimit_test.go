package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(rl *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func limitedGet(router *gin.Engine, forwardedFor string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("allows requests within rate limit", func(t *testing.T) {
		router := newLimitedRouter(NewRateLimiter(10, 20))

		for i := 0; i < 10; i++ {
			w := limitedGet(router, "192.168.1.1")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
			assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		}
	})

	t.Run("blocks requests exceeding rate limit", func(t *testing.T) {
		router := newLimitedRouter(NewRateLimiter(1, 2))

		var lastCode int
		for i := 0; i < 3; i++ {
			lastCode = limitedGet(router, "192.168.1.2").Code
		}
		assert.Equal(t, http.StatusTooManyRequests, lastCode)
	})

	t.Run("different clients have separate limits", func(t *testing.T) {
		router := newLimitedRouter(NewRateLimiter(1, 1))

		assert.Equal(t, http.StatusOK, limitedGet(router, "192.168.1.3").Code)
		assert.Equal(t, http.StatusOK, limitedGet(router, "192.168.1.4").Code)
		assert.Equal(t, http.StatusTooManyRequests, limitedGet(router, "192.168.1.3").Code)
	})

	t.Run("authenticated callers are limited per address", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		callerA := common.HexToAddress("0x00000000000000000000000000000000000000a1")
		callerB := common.HexToAddress("0x00000000000000000000000000000000000000a2")

		router := gin.New()
		current := callerA
		router.Use(func(c *gin.Context) {
			c.Set(callerAddressKey, current)
			c.Next()
		})
		router.Use(rl.Middleware())
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Same address exhausts its own bucket regardless of source IP.
		assert.Equal(t, http.StatusOK, limitedGet(router, "192.168.1.5").Code)
		assert.Equal(t, http.StatusTooManyRequests, limitedGet(router, "192.168.1.6").Code)

		// A different caller still has a full bucket.
		current = callerB
		assert.Equal(t, http.StatusOK, limitedGet(router, "192.168.1.5").Code)
	})

	t.Run("health endpoints bypass rate limiting", func(t *testing.T) {
		router := newLimitedRouter(NewRateLimiter(1, 1))

		for i := 0; i < 10; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/health", nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("rate limit headers are set correctly", func(t *testing.T) {
		router := newLimitedRouter(NewRateLimiter(10, 20))

		w := limitedGet(router, "")
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("concurrent requests handling", func(t *testing.T) {
		router := newLimitedRouter(NewRateLimiter(10, 20))

		var wg sync.WaitGroup
		var mu sync.Mutex
		successCount := 0
		rateLimitedCount := 0

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w := limitedGet(router, "192.168.1.100")
				mu.Lock()
				switch w.Code {
				case http.StatusOK:
					successCount++
				case http.StatusTooManyRequests:
					rateLimitedCount++
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.GreaterOrEqual(t, successCount, 20)
		assert.Greater(t, rateLimitedCount, 0)
		assert.Equal(t, 50, successCount+rateLimitedCount)
	})

	t.Run("cleanup removes old limiters", func(t *testing.T) {
		rl := &RateLimiter{
			rate:            10,
			burst:           20,
			cleanupInterval: 100 * time.Millisecond,
		}
		go rl.cleanup()

		limiter := rl.getLimiter("test-client")
		assert.NotNil(t, limiter)

		rl.limiters.Store("old-client", &limiterEntry{
			limiter:    limiter,
			lastAccess: time.Now().Add(-15 * time.Minute),
		})

		time.Sleep(200 * time.Millisecond)

		_, exists := rl.limiters.Load("old-client")
		assert.False(t, exists)
		_, exists = rl.limiters.Load("test-client")
		assert.True(t, exists)
	})
}
