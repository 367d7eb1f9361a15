package api

import (
	"context"
	"errors"
	"fmt"
)

// UnauthorizedError は認可拒否（トークン失効・無効）を表す。
// どのストアの呼び出しであっても、このエラーはセッション破棄の対象となる。
type UnauthorizedError struct {
	Endpoint string
}

// Error はerrorインターフェースを実装する。
func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("認可が拒否されました: %s", e.Endpoint)
}

// IsUnauthorized はエラーが認可拒否かどうかを判定する。
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// IsCanceled はエラーがリクエストのキャンセル（後続トリガーによる置き換え、
// またはアンマウント）によるものかどうかを判定する。
// キャンセルはユーザーに表示せず、状態遷移も発生させない。
// タイムアウト（DeadlineExceeded）はキャンセルではなく通常の失敗として扱う。
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
