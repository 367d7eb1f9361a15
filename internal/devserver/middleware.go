package devserver

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type contextKey string

const userIDKey contextKey = "user_id"

// contextWithUserID は認証済みユーザーIDをコンテキストへ格納する。
func contextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// userIDFromContext はリクエストコンテキストから認証済みユーザーIDを取り出す。
func userIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// newLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、user_id（認証済みの場合）を含む。
func newLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			durationMs := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)
			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}
			if userID, ok := userIDFromContext(r.Context()); ok {
				args = append(args, slog.String("user_id", userID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}

// newRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500レスポンスを返すミドルウェアを返す。
func newRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// newSecurityHeadersMiddleware はセキュリティ関連のレスポンスヘッダーを付与する
// ミドルウェアを返す。
func newSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// tokenLimiter はトークンごとのレートリミッターとアクセス時刻を保持する。
type tokenLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// rateLimiter はBearerトークン単位のレート制限を管理する。
type rateLimiter struct {
	ratePerMin int
	logger     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*tokenLimiter
}

func newRateLimiter(ratePerMin int, logger *slog.Logger) *rateLimiter {
	if ratePerMin <= 0 {
		ratePerMin = 120
	}
	return &rateLimiter{
		ratePerMin: ratePerMin,
		logger:     logger,
		limiters:   make(map[string]*tokenLimiter),
	}
}

// middleware はレート制限ミドルウェアを返す。認証ミドルウェアの後に配置する。
func (rl *rateLimiter) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if !rl.get(token).Allow() {
				rl.logger.Warn("rate limit exceeded",
					slog.String("path", r.URL.Path),
				)
				writeRateLimitResponse(w, rl.ratePerMin)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *rateLimiter) get(token string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if tl, ok := rl.limiters[token]; ok {
		tl.lastAccess = time.Now()
		return tl.limiter
	}
	limiter := rate.NewLimiter(rate.Limit(float64(rl.ratePerMin)/60.0), rl.ratePerMin)
	rl.limiters[token] = &tokenLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

// cleanup は最終アクセスがttlを超えたエントリを削除する。
func (rl *rateLimiter) cleanup(ttl time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for token, tl := range rl.limiters {
		if now.Sub(tl.lastAccess) > ttl {
			delete(rl.limiters, token)
		}
	}
}

// writeRateLimitResponse は429レスポンスを書き込む。
// Retry-Afterには1トークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, ratePerMin int) {
	retryAfterSec := int(math.Ceil(60.0 / float64(ratePerMin)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "リクエストが多すぎます。しばらく待ってから再試行してください")
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return token
}
