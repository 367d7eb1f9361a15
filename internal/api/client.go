// Package api はリモート物件管理APIの型付きクライアントを提供する。
// 認証・物件・リース・家賃・通知の各エンドポイントの薄いラッパーで、
// Bearerトークンの付与、レート制限、エラー分類を一元的に行う。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hitoshi/chintai/internal/model"
)

// TokenSource は認可用のBearerトークンの供給元。
// credstore.Storeが実装する。トークンが無い場合は空文字列を返す。
type TokenSource interface {
	Token() string
}

// Client は物件管理APIのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// reqPerSecが0以下の場合はレート制限を行わない。
func NewClient(httpClient *http.Client, baseURL string, tokens TokenSource, reqPerSec float64, burst int, logger *slog.Logger) *Client {
	var limiter *rate.Limiter
	if reqPerSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(reqPerSec), burst)
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		limiter:    limiter,
		logger:     logger,
	}
}

// LoginResult はログイン成功時のレスポンスを表す。
type LoginResult struct {
	User        *model.Identity `json:"user"`
	AccessToken string          `json:"accessToken"`
}

// Login はメールアドレスとパスワードでログインする。
// 認証失敗（401）はログイン失敗エラーとして返し、セッション破棄の対象としない。
// 未承認アカウント等の業務エラーはサーバーのAPIErrorをそのまま返す。
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var result LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &result, false)
	if err != nil {
		if IsUnauthorized(err) {
			// ログイン時の401は資格情報の誤りであり、セッション失効ではない
			return nil, model.NewLoginFailedError("メールアドレスまたはパスワードが正しくありません")
		}
		return nil, err
	}
	if result.User == nil || result.AccessToken == "" {
		return nil, model.NewInvalidResponseError("ログイン応答にユーザーまたはトークンがありません")
	}
	return &result, nil
}

// Logout はサーバー側のセッションを破棄する。ベストエフォートで呼び出される。
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil, true)
}

// GetMe は現在のトークンに対応するIdentityを取得する。
// トークンが失効している場合はUnauthorizedErrorを返す。
func (c *Client) GetMe(ctx context.Context) (*model.Identity, error) {
	var result struct {
		User *model.Identity `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &result, true); err != nil {
		return nil, err
	}
	if result.User == nil {
		return nil, model.NewInvalidResponseError("ユーザー情報がありません")
	}
	return result.User, nil
}

// ListProperties は物件一覧を取得する。
// サーバーのバージョンにより素の配列と{"properties": [...]}の
// 両方のレスポンス形式が存在するため、双方を受理する。
func (c *Client) ListProperties(ctx context.Context, filters map[string]string) ([]model.Property, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, "/properties", toQuery(filters), nil, true)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Properties []model.Property `json:"properties"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Properties != nil {
		return envelope.Properties, nil
	}

	var bare []model.Property
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}
	return nil, model.NewInvalidResponseError("物件一覧の形式が不正です")
}

// ListLeases はリース契約一覧を取得する。
func (c *Client) ListLeases(ctx context.Context, filters map[string]string) ([]model.Lease, error) {
	var result struct {
		Data []model.Lease `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/leases", toQuery(filters), nil, &result, true); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// ListRents は家賃請求一覧を取得する。
func (c *Client) ListRents(ctx context.Context, filters map[string]string) ([]model.Rent, error) {
	var result struct {
		Data []model.Rent `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/rents", toQuery(filters), nil, &result, true); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// ListNotifications は通知一覧をページネーション付きで取得する。
func (c *Client) ListNotifications(ctx context.Context, page, limit int, filters map[string]string) (*model.NotificationPage, error) {
	q := toQuery(filters)
	if q == nil {
		q = url.Values{}
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var result struct {
		Data        []model.Notification `json:"data"`
		Page        int                  `json:"page"`
		TotalPages  int                  `json:"totalPages"`
		UnreadCount int                  `json:"unreadCount"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications", q, nil, &result, true); err != nil {
		return nil, err
	}
	return &model.NotificationPage{
		Items:       result.Data,
		Page:        result.Page,
		TotalPages:  result.TotalPages,
		UnreadCount: result.UnreadCount,
	}, nil
}

// MarkNotificationRead は指定通知を既読にする。
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(id)+"/read", nil, nil, nil, true)
}

// MarkAllNotificationsRead は全通知を既読にする。
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPatch, "/notifications/read-all", nil, nil, nil, true)
}

// DeleteNotification は指定通知を削除する。
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil, nil, true)
}

// GetUnreadCount は未読通知数のみを取得する。ポーリング用の軽量な呼び出し。
func (c *Client) GetUnreadCount(ctx context.Context) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/unread-count", nil, nil, &result, true); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// do はリクエストを実行し、レスポンスボディをoutにデコードする。
// outがnilの場合はボディを破棄する。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, authorized bool) error {
	raw, err := c.doRaw(ctx, method, path, query, body, authorized)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Error("APIレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewInvalidResponseError(err.Error())
	}
	return nil
}

// doRaw はリクエストを実行し、成功時のレスポンスボディをそのまま返す。
// レート制限・Bearerトークン付与・ステータス分類を行う。
func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body any, authorized bool) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// キャンセルはエラーログの対象としない
		if !IsCanceled(err) {
			c.logger.Error("APIリクエストに失敗しました",
				slog.String("method", method),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		// http.Clientはctxのエラーをラップして返すため、そのまま伝播させる
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &UnauthorizedError{Endpoint: path}
	default:
		if apiErr := decodeAPIError(raw); apiErr != nil {
			return nil, apiErr
		}
		c.logger.Error("APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("APIがステータス %d を返しました: %s", resp.StatusCode, path)
	}
}

// decodeAPIError はエラーレスポンスボディからAPIErrorのデコードを試みる。
// {"error": {...}} 形式とトップレベル形式の両方を受理し、
// デコードできない場合はnilを返す。
func decodeAPIError(raw []byte) *model.APIError {
	var envelope struct {
		Error *model.APIError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil && envelope.Error.Code != "" {
		return envelope.Error
	}

	var direct model.APIError
	if err := json.Unmarshal(raw, &direct); err == nil && direct.Code != "" {
		return &direct
	}
	return nil
}

// toQuery はフィルタマップをクエリパラメータに変換する。
func toQuery(filters map[string]string) url.Values {
	if len(filters) == 0 {
		return nil
	}
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}
