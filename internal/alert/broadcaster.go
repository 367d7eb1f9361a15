// Package alert はプロセス全体で共有する一時メッセージチャネルを提供する。
// 各ストアの操作結果（成功・失敗）をUIに通知するために使用され、
// 新しいメッセージは表示中のメッセージを常に置き換える。
package alert

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/chintai/internal/metrics"
)

// Kind はアラートの種別を表す。
type Kind string

const (
	// KindSuccess は操作成功の通知を表す。
	KindSuccess Kind = "success"
	// KindError は操作失敗の通知を表す。
	KindError Kind = "error"
	// KindInfo は補足情報の通知を表す。
	KindInfo Kind = "info"
)

// Alert は表示中の一時メッセージを表す。
type Alert struct {
	ID      string
	Kind    Kind
	Message string
}

// Broadcaster はアラートの発行と購読者への配信を行う。
// 同時に表示されるアラートは常に1件で、新しい発行は前のアラートを置き換え、
// 自動消去タイマーを再スタートする。
type Broadcaster struct {
	mu          sync.Mutex
	current     *Alert
	subscribers map[string]chan *Alert
	dismiss     *time.Timer
	defaultTTL  time.Duration
	closed      bool

	logger    *slog.Logger
	collector metrics.MetricsCollector
}

// NewBroadcaster はBroadcasterを生成する。
// defaultTTLが0以下の場合は5秒を使用する。
func NewBroadcaster(defaultTTL time.Duration, logger *slog.Logger, collector metrics.MetricsCollector) *Broadcaster {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Second
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Broadcaster{
		subscribers: make(map[string]chan *Alert),
		defaultTTL:  defaultTTL,
		logger:      logger,
		collector:   collector,
	}
}

// Subscribe はアラートの購読チャネルと購読解除関数を返す。
// チャネルにはアラートのスナップショットが届き、nilは消去を意味する。
// 受信が追いつかない購読者への配信はドロップされる（ブロックしない）。
func (b *Broadcaster) Subscribe() (<-chan *Alert, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan *Alert, 8)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Current は表示中のアラートを返す。表示中でない場合はnil。
func (b *Broadcaster) Current() *Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil
	}
	copied := *b.current
	return &copied
}

// ShowSuccess は成功アラートを表示する。
func (b *Broadcaster) ShowSuccess(msg string) {
	b.show(KindSuccess, msg, b.defaultTTL)
}

// ShowError はエラーアラートを表示する。
func (b *Broadcaster) ShowError(msg string) {
	b.show(KindError, msg, b.defaultTTL)
}

// ShowInfo は情報アラートを指定の表示時間で表示する。
// ttlが0以下の場合はデフォルトの表示時間を使用する。
func (b *Broadcaster) ShowInfo(msg string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = b.defaultTTL
	}
	b.show(KindInfo, msg, ttl)
}

// Clear は表示中のアラートを即時に消去する。
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

// Close は全購読チャネルを閉じ、タイマーを停止する。
// Close後のShow呼び出しは無視される。
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.stopTimerLocked()
	b.current = nil
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

// show はアラートを発行し、自動消去タイマーを（再）スタートする。
func (b *Broadcaster) show(kind Kind, msg string, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.stopTimerLocked()

	a := &Alert{
		ID:      uuid.New().String(),
		Kind:    kind,
		Message: msg,
	}
	b.current = a
	b.collector.RecordAlert(string(kind))
	if kind == KindError {
		b.logger.Warn("alert shown",
			slog.String("kind", string(kind)),
			slog.String("message", msg),
		)
	}
	b.publishLocked(a)

	id := a.ID
	b.dismiss = time.AfterFunc(ttl, func() {
		b.dismissByID(id)
	})
}

// dismissByID は自動消去タイマーの発火時に呼ばれる。
// 表示中のアラートが発火時点のものと同一である場合のみ消去する。
func (b *Broadcaster) dismissByID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.current == nil || b.current.ID != id {
		return
	}
	b.clearLocked()
}

func (b *Broadcaster) clearLocked() {
	if b.current == nil {
		return
	}
	b.stopTimerLocked()
	b.current = nil
	b.publishLocked(nil)
}

func (b *Broadcaster) stopTimerLocked() {
	if b.dismiss != nil {
		b.dismiss.Stop()
		b.dismiss = nil
	}
}

// publishLocked は全購読者にスナップショットを配信する。
// 満杯のチャネルへの送信はドロップする。
func (b *Broadcaster) publishLocked(a *Alert) {
	for _, ch := range b.subscribers {
		var snapshot *Alert
		if a != nil {
			copied := *a
			snapshot = &copied
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
