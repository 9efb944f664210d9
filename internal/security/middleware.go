package security

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/twbeatles/navernews-tabsearch/internal/config"
)

// RateLimiter stores rate limit information per IP
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	r        rate.Limit
	b        int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        r,
		b:        b,
	}
}

// GetLimiter returns the rate limiter for the given key (IP address)
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.r, rl.b)
		rl.limiters[key] = limiter
	}

	return limiter
}

// SetupSecurityMiddleware configures all security middleware
func SetupSecurityMiddleware(router *gin.Engine, cfg config.SecurityConfig) {
	if cfg.EnableRequestID {
		router.Use(requestid.New())
	}

	if cfg.EnableSecurityHeaders {
		router.Use(secure.New(secure.Config{
			SSLRedirect:           false,
			STSSeconds:            31536000,
			STSIncludeSubdomains:  true,
			FrameDeny:             true,
			ContentTypeNosniff:    true,
			BrowserXssFilter:      true,
			ContentSecurityPolicy: "default-src 'self'",
			ReferrerPolicy:        "strict-origin-when-cross-origin",
		}))
	}

	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
		corsConfig.ExposeHeaders = []string{"X-Request-ID"}
		router.Use(cors.New(corsConfig))
	}

	if cfg.EnableRateLimit {
		limiter := NewRateLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
		router.Use(RateLimitMiddleware(limiter))
	}

	router.Use(RequestSizeMiddleware(cfg.MaxRequestSize))
	router.Use(InputValidationMiddleware())
	router.Use(SecurityLoggingMiddleware())
}

// RateLimitMiddleware implements rate limiting per IP
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := getClientIP(c)
		limiter := limiter.GetLimiter(ip)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "Request too large",
				"message": "Request body exceeds maximum allowed size",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// InputValidationMiddleware validates query parameters
func InputValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := validateQueryParams(c); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid query parameters",
				"message": err.Error(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// SecurityLoggingMiddleware logs security-relevant information
func SecurityLoggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		securityInfo := []string{
			"ip=" + param.ClientIP,
			"method=" + param.Method,
			"path=" + param.Path,
			"status=" + fmt.Sprintf("%d", param.StatusCode),
			"latency=" + param.Latency.String(),
			"user_agent=" + param.Request.UserAgent(),
		}

		if param.StatusCode >= 400 {
			securityInfo = append(securityInfo, "error=true")
		}

		return strings.Join(securityInfo, " ") + "\n"
	})
}

func validateQueryParams(c *gin.Context) error {
	for _, param := range []string{"limit", "offset", "days"} {
		if value := c.Query(param); value != "" {
			if !isValidNumber(value) {
				return fmt.Errorf("invalid %s parameter: must be a non-negative integer", param)
			}
		}
	}

	if keyword := c.Query("keyword"); len(keyword) > 200 {
		return fmt.Errorf("keyword parameter too long: maximum 200 characters")
	}

	if filter := c.Query("filter"); len(filter) > 500 {
		return fmt.Errorf("filter parameter too long: maximum 500 characters")
	}

	for _, param := range []string{"start_date", "end_date"} {
		if value := c.Query(param); value != "" {
			if !isValidDate(value) {
				return fmt.Errorf("invalid %s parameter: expected YYYY-MM-DD", param)
			}
		}
	}

	if link := c.Query("link"); link != "" {
		if !isValidArticleLink(link) {
			return fmt.Errorf("invalid link parameter: must be an http(s) URL")
		}
	}

	return nil
}

// getClientIP extracts the real client IP address
func getClientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		if commaIndex := strings.Index(ip, ","); commaIndex != -1 {
			return strings.TrimSpace(ip[:commaIndex])
		}
		return strings.TrimSpace(ip)
	}

	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	return c.ClientIP()
}

// isValidNumber checks if a string is a valid non-negative integer
func isValidNumber(s string) bool {
	if s == "" {
		return false
	}

	for _, char := range s {
		if char < '0' || char > '9' {
			return false
		}
	}

	return true
}

func isValidDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func isValidArticleLink(s string) bool {
	if len(s) > 2000 {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
