// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string `json:"code"`     // エラーコード
	Message  string `json:"message"`  // エラーメッセージ
	Category string `json:"category"` // カテゴリ: auth, validation, resource, system
	Action   string `json:"action"`   // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeLoginFailed        = "LOGIN_FAILED"
	ErrCodeAccountNotApproved = "ACCOUNT_NOT_APPROVED"
	ErrCodeFetchFailed        = "FETCH_FAILED"
	ErrCodeNotificationFailed = "NOTIFICATION_FAILED"
	ErrCodePropertyNotFound   = "PROPERTY_NOT_FOUND"
	ErrCodeInvalidResponse    = "INVALID_RESPONSE"
)

// NewSessionExpiredError はセッション失効エラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
func NewLoginFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  fmt.Sprintf("ログインに失敗しました: %s", reason),
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewAccountNotApprovedError は未承認アカウントエラーを生成する。
func NewAccountNotApprovedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotApproved,
		Message:  "このアカウントはまだ承認されていません。",
		Category: "validation",
		Action:   "管理者による承認をお待ちください。",
	}
}

// NewFetchFailedError はリソース取得失敗エラーを生成する。
func NewFetchFailedError(resource, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("%sの取得に失敗しました: %s", resource, reason),
		Category: "resource",
		Action:   "通信環境を確認し、しばらく待ってから再読み込みしてください。",
	}
}

// NewNotificationFailedError は通知操作の失敗エラーを生成する。
func NewNotificationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNotificationFailed,
		Message:  fmt.Sprintf("通知の更新に失敗しました: %s", reason),
		Category: "resource",
		Action:   "通知一覧を再読み込みして最新の状態を確認してください。",
	}
}

// NewPropertyNotFoundError は物件未検出エラーを生成する。
func NewPropertyNotFoundError(propertyID string) *APIError {
	return &APIError{
		Code:     ErrCodePropertyNotFound,
		Message:  fmt.Sprintf("指定された物件が見つかりません: %s", propertyID),
		Category: "resource",
		Action:   "物件IDを確認してください。",
	}
}

// NewInvalidResponseError はAPIレスポンスの解析失敗エラーを生成する。
func NewInvalidResponseError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidResponse,
		Message:  fmt.Sprintf("サーバーからの応答を解析できませんでした: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
