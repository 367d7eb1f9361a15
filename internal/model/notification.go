// Package model はドメインモデルを定義する。
package model

import "time"

// Notification はユーザー宛の通知を表す。
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"` // サニタイズ済みHTML
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationPage は通知一覧のページネーション付きレスポンスを表す。
type NotificationPage struct {
	Items       []Notification
	Page        int
	TotalPages  int
	UnreadCount int
}
