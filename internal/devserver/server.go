// Package devserver はリモートAPIのインメモリスタブを提供する。
// 開発時の動作確認と結合テスト用で、本番APIと同じエンドポイント・
// レスポンス形式・401の挙動を再現する。データは起動時のフィクスチャで
// 初期化され、プロセス終了で消える。
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/chintai/internal/model"
)

// Config はServerの構築パラメータ。
type Config struct {
	Logger *slog.Logger
	// RatePerMin はトークンごとのAPI全般レート制限（req/min）。0以下はデフォルト120。
	RatePerMin int
	// Metrics が指定された場合、/metrics で公開する。
	Metrics http.Handler
}

// Server は物件管理APIのインメモリスタブ。
type Server struct {
	logger  *slog.Logger
	limiter *rateLimiter
	router  chi.Router

	mu       sync.Mutex
	data     *dataset
	sessions map[string]string // トークン -> ユーザーID
}

// New はフィクスチャで初期化したServerを生成する。
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:   logger,
		limiter:  newRateLimiter(cfg.RatePerMin, logger),
		data:     seedDataset(),
		sessions: make(map[string]string),
	}
	s.router = s.buildRouter(cfg.Metrics)
	return s
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run は指定アドレスでHTTPサーバーを起動し、ctxのキャンセルで
// グレースフルシャットダウンする。レートリミッターの期限切れエントリも
// 定期的にクリーンアップする。
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.limiter.cleanup(10 * time.Minute)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("開発サーバーを起動します", slog.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("開発サーバーの停止に失敗しました: %w", err)
		}
		s.logger.Info("開発サーバーを停止しました")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("開発サーバーの起動に失敗しました: %w", err)
		}
		return nil
	}
}

// buildRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成する。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → (認証ルートのみ) Auth → RateLimit
func (s *Server) buildRouter(metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(newRecoveryMiddleware(s.logger))
	r.Use(newSecurityHeadersMiddleware())
	r.Use(newLoggingMiddleware(s.logger))

	// 認証不要のルート
	r.Get("/health", s.handleHealth)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	r.Post("/auth/login", s.handleLogin)

	// 認証が必要なルート
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.limiter.middleware())

		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/me", s.handleMe)

		r.Get("/properties", s.handleListProperties)
		r.Get("/leases", s.handleListLeases)
		r.Get("/rents", s.handleListRents)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Get("/unread-count", s.handleUnreadCount)
			r.Patch("/read-all", s.handleMarkAllRead)
			r.Patch("/{id}/read", s.handleMarkRead)
			r.Delete("/{id}", s.handleDeleteNotification)
		})
	})

	return r
}

// authMiddleware はBearerトークンを検証し、ユーザーIDをコンテキストへ格納する。
// 未知または欠落したトークンには401とセッション失効エラーを返す。
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		s.mu.Lock()
		userID, ok := s.sessions[token]
		s.mu.Unlock()
		if token == "" || !ok {
			writeErrorBody(w, http.StatusUnauthorized, model.NewSessionExpiredError())
			return
		}
		ctx := contextWithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "リクエストボディを解析できません")
		return
	}

	s.mu.Lock()
	acct, ok := s.data.findAccount(req.Email, req.Password)
	if !ok {
		s.mu.Unlock()
		writeErrorBody(w, http.StatusUnauthorized, model.NewLoginFailedError("認証情報が一致しません"))
		return
	}
	token := uuid.New().String()
	s.sessions[token] = acct.Identity.ID
	identity := acct.Identity
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"user":        identity,
		"accessToken": token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	s.mu.Lock()
	identity, ok := s.data.findIdentity(userID)
	s.mu.Unlock()
	if !ok {
		writeErrorBody(w, http.StatusUnauthorized, model.NewSessionExpiredError())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": identity})
}

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID := q.Get("ownerId")
	managerID := q.Get("managerId")
	tenantID := q.Get("tenantId")

	s.mu.Lock()
	defer s.mu.Unlock()

	// 入居者の場合はリース契約経由で物件を解決する
	tenantProps := make(map[string]bool)
	if tenantID != "" {
		for _, l := range s.data.leases {
			if l.TenantID == tenantID {
				tenantProps[l.PropertyID] = true
			}
		}
	}

	out := make([]model.Property, 0, len(s.data.properties))
	for _, p := range s.data.properties {
		switch {
		case ownerID != "" && p.OwnerID != ownerID:
		case managerID != "" && p.ManagerID != managerID:
		case tenantID != "" && !tenantProps[p.ID]:
		default:
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": out})
}

func (s *Server) handleListLeases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	propertyID := q.Get("propertyId")
	tenantID := q.Get("tenantId")

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Lease, 0, len(s.data.leases))
	for _, l := range s.data.leases {
		switch {
		case propertyID != "" && l.PropertyID != propertyID:
		case tenantID != "" && l.TenantID != tenantID:
		default:
			out = append(out, l)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleListRents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	propertyID := q.Get("propertyId")
	tenantID := q.Get("tenantId")

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Rent, 0, len(s.data.rents))
	for _, rent := range s.data.rents {
		switch {
		case propertyID != "" && rent.PropertyID != propertyID:
		case tenantID != "" && rent.TenantID != tenantID:
		default:
			out = append(out, rent)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := append([]model.Notification(nil), s.data.notifications[userID]...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	totalPages := (len(all) + limit - 1) / limit
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":        all[start:end],
		"page":        page,
		"totalPages":  totalPages,
		"unreadCount": countUnread(all),
	})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	s.mu.Lock()
	count := countUnread(s.data.notifications[userID])
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.data.notifications[userID]
	for i := range list {
		if list[i].ID == id {
			list[i].IsRead = true
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOTIFICATION_NOT_FOUND", "指定された通知が見つかりません")
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	s.mu.Lock()
	list := s.data.notifications[userID]
	for i := range list {
		list[i].IsRead = true
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.data.notifications[userID]
	for i := range list {
		if list[i].ID == id {
			s.data.notifications[userID] = append(list[:i], list[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOTIFICATION_NOT_FOUND", "指定された通知が見つかりません")
}

func countUnread(list []model.Notification) int {
	count := 0
	for _, n := range list {
		if !n.IsRead {
			count++
		}
	}
	return count
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeErrorBody は統一エラーフォーマットのエンベロープでエラーを返す。
func writeErrorBody(w http.ResponseWriter, status int, apiErr *model.APIError) {
	writeJSON(w, status, map[string]any{"error": apiErr})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorBody(w, status, &model.APIError{
		Code:     code,
		Message:  message,
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
