package middleware

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"bazaar/leadhub/internal/config"
)

const (
	cleanupInterval = 10 * time.Minute
	clientIdleTTL   = 30 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet is one token bucket per client for a single rate.
type limiterSet struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
}

func newLimiterSet(rps, burst int) *limiterSet {
	return &limiterSet{clients: make(map[string]*clientLimiter), limit: rate.Limit(rps), burst: burst}
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

func (s *limiterSet) evictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, cl := range s.clients {
		if now.Sub(cl.lastSeen) > clientIdleTTL {
			delete(s.clients, key)
			removed++
		}
	}
	return removed
}

// RateLimiterMiddleware applies a hard per-client limit to every request and a
// softer one that humans (see CaptchaMiddleware) bypass.
type RateLimiterMiddleware struct {
	hard *limiterSet
	soft *limiterSet
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewRateLimiterMiddleware creates the limiter and starts its cleanup goroutine.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	rm := &RateLimiterMiddleware{
		hard: newLimiterSet(cfg.RateLimitRPS, cfg.RateLimitBurst),
		soft: newLimiterSet(cfg.RateLimitSoftRPS, cfg.RateLimitSoftBurst),
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go rm.cleanupClients()
	return rm
}

// Close stops the cleanup goroutine.
func (rm *RateLimiterMiddleware) Close() {
	rm.once.Do(func() { close(rm.stop) })
}

func (rm *RateLimiterMiddleware) cleanupClients() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stop:
			return
		case <-ticker.C:
			if n := rm.evictIdle(rm.now()); n > 0 {
				log.Printf("Rate limiter cleanup removed %d idle client entries.", n)
			}
		}
	}
}

func (rm *RateLimiterMiddleware) evictIdle(now time.Time) int {
	return rm.hard.evictIdle(now) + rm.soft.evictIdle(now)
}

// clientKey is IP, browser fingerprint and SPA session, plus the user id once
// AuthMiddleware has run.
func clientKey(c *gin.Context) string {
	key := fmt.Sprintf("%s|%s|%s", c.ClientIP(), c.GetHeader("X-BFP"), c.GetHeader("X-SPA"))
	if user := CurrentUser(c); user != nil {
		key += "|" + user.ID.String()
	}
	return key
}

// Limit enforces the hard limit with 429.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)
		if !rm.hard.allow(key, rm.now()) {
			log.Printf("Hard rate limit exceeded for client %s on %s", key, c.FullPath())
			abort(c, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded")
			return
		}
		c.Next()
	}
}

// SoftLimit answers 418 once the soft budget is spent, unless the client
// proved it is human.
func (rm *RateLimiterMiddleware) SoftLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ContextKeyIsHumanVerified) {
			c.Next()
			return
		}
		key := clientKey(c)
		if !rm.soft.allow(key, rm.now()) {
			log.Printf("Soft rate limit exceeded for client %s on %s (captcha required)", key, c.FullPath())
			abort(c, http.StatusTeapot, "captcha_required", "Captcha validation required")
			return
		}
		c.Next()
	}
}
