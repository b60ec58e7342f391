package httpx

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/edgecoder/edgeauth/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines one token-bucket profile.
type RateLimitConfig struct {
	// RequestsPerWindow is how many requests refill over one Window.
	RequestsPerWindow int
	// Window is the refill period.
	Window time.Duration
	// Burst is how many requests may land at once on a full bucket.
	Burst int
}

// The four profiles routes are wired with. Credential endpoints (login,
// signup, passkey assertion, wallet confirmation) take the strict profile;
// authenticated mutations like node enrollment take moderate; reads take
// lenient; liveness probes and node heartbeat validation take public.
//
// Each profile can be overridden through RATELIMIT_<NAME>_REQUESTS,
// RATELIMIT_<NAME>_WINDOW_SEC and RATELIMIT_<NAME>_BURST.
var (
	StrictLimit = RateLimitConfig{
		RequestsPerWindow: 5,
		Window:            time.Minute,
		Burst:             5,
	}

	ModerateLimit = RateLimitConfig{
		RequestsPerWindow: 20,
		Window:            time.Minute,
		Burst:             20,
	}

	LenientLimit = RateLimitConfig{
		RequestsPerWindow: 100,
		Window:            time.Minute,
		Burst:             100,
	}

	PublicLimit = RateLimitConfig{
		RequestsPerWindow: 1000,
		Window:            time.Minute,
		Burst:             1000,
	}
)

func init() {
	StrictLimit = ParseRateLimitFromEnv("STRICT", StrictLimit)
	ModerateLimit = ParseRateLimitFromEnv("MODERATE", ModerateLimit)
	LenientLimit = ParseRateLimitFromEnv("LENIENT", LenientLimit)
	PublicLimit = ParseRateLimitFromEnv("PUBLIC", PublicLimit)
}

// ParseRateLimitFromEnv overlays RATELIMIT_<prefix>_* environment variables
// onto fallback. Unset, zero or unparseable values keep the fallback field.
func ParseRateLimitFromEnv(prefix string, fallback RateLimitConfig) RateLimitConfig {
	config := fallback

	if n, ok := positiveIntEnv("RATELIMIT_" + prefix + "_REQUESTS"); ok {
		config.RequestsPerWindow = n
	}
	if n, ok := positiveIntEnv("RATELIMIT_" + prefix + "_WINDOW_SEC"); ok {
		config.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveIntEnv("RATELIMIT_" + prefix + "_BURST"); ok {
		config.Burst = n
	}

	return config
}

func positiveIntEnv(key string) (int, bool) {
	val := os.Getenv(key)
	if val == "" {
		return 0, false
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// KeyExtractor derives the bucket key for a request: an IP, a user ID, or a
// combination. An empty key means the request cannot be attributed and is
// let through.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys by client IP, trusting X-Forwarded-For and X-Real-IP
// from the fronting proxy before falling back to the socket address.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// UserIDKeyExtractor keys by the authenticated user on the request context.
// It only works downstream of the session middleware; elsewhere it returns
// the empty string.
func UserIDKeyExtractor(r *http.Request) string {
	if userID, ok := UserIDFromCtx(r.Context()); ok {
		return userID
	}
	return ""
}

// CompositeKeyExtractor joins the non-empty results of several extractors,
// e.g. "user-123:203.0.113.7" for a logged-in caller behind a proxy.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extract := range extractors {
			if key := extract(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// bucketTable holds one token bucket per key, created lazily and swept when
// idle so ephemeral keys (one-off IPs, expired sessions) do not accumulate.
type bucketTable struct {
	buckets sync.Map // map[string]*rate.Limiter
	limit   rate.Limit
	burst   int

	sweepMu   sync.Mutex
	lastSweep time.Time
}

func (bt *bucketTable) bucket(key string) *rate.Limiter {
	if b, ok := bt.buckets.Load(key); ok {
		return b.(*rate.Limiter)
	}

	b, loaded := bt.buckets.LoadOrStore(key, rate.NewLimiter(bt.limit, bt.burst))
	if !loaded {
		bt.sweep()
	}
	return b.(*rate.Limiter)
}

// sweep drops buckets that have refilled completely, at most once every five
// minutes. A full bucket means the key has been idle for at least a window.
func (bt *bucketTable) sweep() {
	bt.sweepMu.Lock()
	defer bt.sweepMu.Unlock()

	if time.Since(bt.lastSweep) < 5*time.Minute {
		return
	}
	bt.lastSweep = time.Now()

	bt.buckets.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(bt.burst) {
			bt.buckets.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware enforces config per key. Over-limit requests get a 429
// with Retry-After; requests with no extractable key pass through with a
// warning so a header-stripping proxy cannot lock everyone out.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	table := &bucketTable{
		limit:     rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:     config.Burst,
		lastSweep: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			limiter := table.bucket(key)
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			// Tell the client when the next token lands without actually
			// consuming the reservation.
			reservation := limiter.Reserve()
			delay := reservation.Delay()
			reservation.Cancel()

			retryAfter := max(int(delay.Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", config.Window.String())

			log.Warn("rate limit exceeded",
				"key", key,
				"endpoint", r.URL.Path,
				"retry_after", retryAfter,
			)

			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": fmt.Sprintf("Too many requests. Retry in %ds.", retryAfter),
			})
		})
	}
}

// RateLimitByIP buckets purely by client IP, for unauthenticated endpoints.
func RateLimitByIP(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, IPKeyExtractor)
}

// RateLimitByUser buckets by authenticated user plus IP, so users behind a
// shared NAT do not eat each other's quota. Must sit downstream of the
// session middleware; unauthenticated requests fall back to the IP alone.
func RateLimitByUser(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		UserIDKeyExtractor,
		IPKeyExtractor,
	))
}
