// Package notification は通知コレクションのストアを提供する。
// ページネーション付きフェッチ、楽観的な既読・削除ミューテーション、
// 未読件数のバックグラウンドポーリングを扱う。
// ミューテーションはローカル状態へ先行適用され、リモート呼び出しの失敗時は
// 部分的なロールバックではなくフルリフレッシュで照合する。
package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/chintai/internal/api"
	"github.com/hitoshi/chintai/internal/metrics"
	"github.com/hitoshi/chintai/internal/model"
	"github.com/hitoshi/chintai/internal/resource"
	"github.com/hitoshi/chintai/internal/session"
)

const storeName = "notification"

// API は通知エンドポイント群の契約。
type API interface {
	ListNotifications(ctx context.Context, page, limit int, filters map[string]string) (*model.NotificationPage, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
	GetUnreadCount(ctx context.Context) (int, error)
}

// MutationState は楽観的ミューテーションの進行状態を表す。
// Applyingでローカル状態へ先行適用し、リモート呼び出しが成功すれば
// そのままCommittedへ、失敗すればReconciling（フルリフレッシュによる照合）を
// 経てCommittedへ遷移する。
type MutationState string

const (
	// MutationIdle はミューテーション未実行の初期状態。
	MutationIdle MutationState = "idle"
	// MutationApplying はローカル適用済みでリモート呼び出しの解決待ち。
	MutationApplying MutationState = "applying"
	// MutationReconciling はリモート失敗後のフルリフレッシュによる照合中。
	MutationReconciling MutationState = "reconciling"
	// MutationCommitted はミューテーションが確定した状態。
	MutationCommitted MutationState = "committed"
)

// authState はセッション状態から導出される監視ループの評価キー。
type authState int

const (
	authPending authState = iota // セッション解決待ち
	authNone                     // 未認証が確定
	authReady                    // 認証済み
)

// Snapshot は通知ストア状態の読み取り専用コピーを表す。
type Snapshot struct {
	Items       []model.Notification
	Status      resource.Status
	Err         error
	Page        int
	TotalPages  int
	UnreadCount int
	Mutation    MutationState
}

// FetchOptions はフェッチの挙動を指定する。
type FetchOptions struct {
	// Reset が真の場合は1ページ目からコレクションを置き換える。
	// 偽の場合は次ページを末尾へ追記する。
	Reset bool
	// Filters は以降のフェッチに引き継がれるクエリフィルタ。nilなら現状維持。
	Filters map[string]string
}

// Config はStoreの構築パラメータ。
type Config struct {
	API          API
	Session      resource.SessionSource
	Alerts       session.Alerter
	PollInterval time.Duration
	PageLimit    int
	Logger       *slog.Logger
	Collector    metrics.MetricsCollector
}

// Store は通知コレクションを保持するストア。
type Store struct {
	apiClient    API
	session      resource.SessionSource
	alerts       session.Alerter
	policy       *bluemonday.Policy
	pollInterval time.Duration
	pageLimit    int
	logger       *slog.Logger
	collector    metrics.MetricsCollector

	mu          sync.Mutex
	items       []model.Notification
	status      resource.Status
	err         error
	page        int
	totalPages  int
	unreadCount int
	mutation    MutationState
	filters     map[string]string
	gen         int64 // 置き換えられたフェッチのコミットを防ぐ世代カウンタ
	cancel      context.CancelFunc
	subscribers map[string]chan Snapshot

	lastAuthState authState
	evaluated     bool

	pollMu   sync.Mutex
	polling  bool
	stopPoll context.CancelFunc
}

// NewStore はStoreを生成する。初期状態はIdleで、コレクションは空。
func NewStore(cfg Config) *Store {
	collector := cfg.Collector
	if collector == nil {
		collector = metrics.Noop{}
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 60 * time.Second
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = 20
	}
	return &Store{
		apiClient:    cfg.API,
		session:      cfg.Session,
		alerts:       cfg.Alerts,
		policy:       newMessagePolicy(),
		pollInterval: pollInterval,
		pageLimit:    pageLimit,
		logger:       cfg.Logger,
		collector:    collector,
		status:       resource.StatusIdle,
		mutation:     MutationIdle,
		subscribers:  make(map[string]chan Snapshot),
	}
}

// newMessagePolicy は通知メッセージ用のサニタイズポリシーを構築する。
// 許可するのは軽微な装飾タグのみで、script・iframe・styleタグおよび
// on*イベント属性は許可リスト外として除去される。
func newMessagePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("br", "strong", "em")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https")
	p.RequireNoFollowOnLinks(true)
	return p
}

// Snapshot は現在のストア状態のコピーを返す。
func (st *Store) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked()
}

// Subscribe はストア状態の購読チャネルと購読解除関数を返す。
func (st *Store) Subscribe() (<-chan Snapshot, func()) {
	st.mu.Lock()
	defer st.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Snapshot, 16)
	st.subscribers[id] = ch

	cancel := func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if sub, ok := st.subscribers[id]; ok {
			delete(st.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Start はセッション状態の監視を開始する。
// 認証の確定でフルリフレッシュとポーリングを開始し、
// 未認証の確定（サインアウト含む）でコレクションのクリアとポーリング停止を行う。
func (st *Store) Start(ctx context.Context) {
	go st.watch(ctx)
}

func (st *Store) watch(ctx context.Context) {
	ch, cancelSub := st.session.Changes()
	defer cancelSub()

	st.evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			st.StopPolling()
			st.mu.Lock()
			st.cancelInFlightLocked()
			st.mu.Unlock()
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			st.evaluate(ctx)
		}
	}
}

// evaluate はセッション状態の評価キーが実際に変化した場合のみ
// フェッチ・クリア・ポーリング制御を行う。
func (st *Store) evaluate(ctx context.Context) {
	snap := st.session.Snapshot()
	state := authPending
	if snap.Status == session.StatusReady || snap.Status == session.StatusFailed {
		if snap.Authenticated() {
			state = authReady
		} else {
			state = authNone
		}
	}

	st.mu.Lock()
	if st.evaluated && st.lastAuthState == state {
		st.mu.Unlock()
		return
	}
	st.evaluated = true
	st.lastAuthState = state
	st.mu.Unlock()

	switch state {
	case authPending:
		// セッション解決待ち。何もしない。
	case authNone:
		st.StopPolling()
		st.Clear()
	case authReady:
		go st.Fetch(ctx, FetchOptions{Reset: true})
		st.StartPolling(ctx)
	}
}

// Refresh はコレクションを1ページ目からフルリフレッシュする。
// 失敗時の手動リトライの入口でもある。
func (st *Store) Refresh(ctx context.Context) {
	st.Fetch(ctx, FetchOptions{Reset: true})
}

// LoadMore は次ページを取得してコレクション末尾へ追記する。
// 最終ページ到達後は何もしない。
func (st *Store) LoadMore(ctx context.Context) {
	st.Fetch(ctx, FetchOptions{})
}

// Fetch は通知一覧を取得する。Resetまたは1ページ目の結果はコレクションを
// 置き換え、以降のページは到着順のまま末尾へ追記する。
// 呼び出しのたびに前回の進行中フェッチをキャンセルし、最新の世代のみが
// 状態をコミットできる。未読件数はフルリフレッシュのたびにサーバー値で照合される。
func (st *Store) Fetch(ctx context.Context, opts FetchOptions) {
	if !st.session.Snapshot().Authenticated() {
		st.Clear()
		return
	}

	st.mu.Lock()
	page := 1
	if !opts.Reset {
		if st.totalPages > 0 && st.page >= st.totalPages {
			st.mu.Unlock()
			return
		}
		page = st.page + 1
	}
	if opts.Filters != nil {
		st.filters = opts.Filters
	}
	filters := st.filters
	st.cancelInFlightLocked()
	st.gen++
	gen := st.gen
	fetchCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	st.status = resource.StatusLoading
	st.publishLocked()
	st.mu.Unlock()

	start := time.Now()
	result, err := st.apiClient.ListNotifications(fetchCtx, page, st.pageLimit, filters)
	elapsed := time.Since(start)

	st.mu.Lock()
	defer st.mu.Unlock()

	// 置き換えられたフェッチの結果は成功・失敗を問わず破棄する
	if st.gen != gen {
		st.collector.RecordRefreshCanceled(storeName)
		return
	}
	st.cancel = nil

	switch {
	case err == nil:
		sanitized := make([]model.Notification, len(result.Items))
		for i, n := range result.Items {
			n.Message = st.policy.Sanitize(n.Message)
			sanitized[i] = n
		}
		if opts.Reset || page == 1 {
			st.items = sanitized
		} else {
			st.items = append(st.items, sanitized...)
		}
		st.page = page
		st.totalPages = result.TotalPages
		st.unreadCount = result.UnreadCount
		st.err = nil
		st.status = resource.StatusReady
		st.collector.RecordRefreshSuccess(storeName)
		st.collector.RecordRefreshLatency(storeName, elapsed)
		st.logger.Debug("通知一覧を更新しました",
			slog.Int("page", page),
			slog.Int("count", len(sanitized)),
			slog.Int("unread", st.unreadCount),
		)
		st.publishLocked()
	case api.IsCanceled(err):
		// キャンセルは失敗ではない: 状態・アラートとも変更なし
		st.collector.RecordRefreshCanceled(storeName)
	case api.IsUnauthorized(err):
		// セッション破棄とアラートはセッションストアに集約する
		st.resetLocked()
		st.err = err
		st.status = resource.StatusFailed
		st.publishLocked()
		st.session.HandleUnauthorized()
	default:
		st.resetLocked()
		st.err = err
		st.status = resource.StatusFailed
		st.collector.RecordRefreshFailure(storeName)
		st.logger.Warn("通知一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		st.alerts.ShowError(model.NewNotificationFailedError(err.Error()).Message)
		st.publishLocked()
	}
}

// MarkAsRead は通知を既読化する。ローカル状態へ先行適用してから
// リモート呼び出しを行い、失敗時はアラートを1回発行して
// フルリフレッシュで照合する。
func (st *Store) MarkAsRead(ctx context.Context, id string) error {
	st.mu.Lock()
	for i := range st.items {
		if st.items[i].ID == id && !st.items[i].IsRead {
			st.items[i].IsRead = true
			if st.unreadCount > 0 {
				st.unreadCount--
			}
			break
		}
	}
	st.mutation = MutationApplying
	st.publishLocked()
	st.mu.Unlock()

	return st.settleMutation(ctx, st.apiClient.MarkNotificationRead(ctx, id))
}

// MarkAllAsRead は全通知を既読化する。楽観的適用と失敗時の照合は
// MarkAsReadと同じプロトコルに従う。
func (st *Store) MarkAllAsRead(ctx context.Context) error {
	st.mu.Lock()
	for i := range st.items {
		st.items[i].IsRead = true
	}
	st.unreadCount = 0
	st.mutation = MutationApplying
	st.publishLocked()
	st.mu.Unlock()

	return st.settleMutation(ctx, st.apiClient.MarkAllNotificationsRead(ctx))
}

// Delete は通知を削除する。楽観的適用と失敗時の照合は
// MarkAsReadと同じプロトコルに従う。
func (st *Store) Delete(ctx context.Context, id string) error {
	st.mu.Lock()
	for i := range st.items {
		if st.items[i].ID == id {
			if !st.items[i].IsRead && st.unreadCount > 0 {
				st.unreadCount--
			}
			st.items = append(st.items[:i], st.items[i+1:]...)
			break
		}
	}
	st.mutation = MutationApplying
	st.publishLocked()
	st.mu.Unlock()

	return st.settleMutation(ctx, st.apiClient.DeleteNotification(ctx, id))
}

// settleMutation はリモート呼び出しの結果に応じてミューテーションを確定する。
// 失敗時は楽観的に適用済みのローカル状態を手計算で巻き戻すのではなく、
// フルリフレッシュをもって照合する（サーバー側の並行変更があり得るため）。
func (st *Store) settleMutation(ctx context.Context, err error) error {
	switch {
	case err == nil:
		st.mu.Lock()
		st.mutation = MutationCommitted
		st.publishLocked()
		st.mu.Unlock()
		return nil
	case api.IsCanceled(err):
		// キャンセルはアラートを出さない。楽観的適用の巻き戻しは
		// 次回フルリフレッシュの照合に委ねる。
		st.mu.Lock()
		st.mutation = MutationCommitted
		st.publishLocked()
		st.mu.Unlock()
		return err
	case api.IsUnauthorized(err):
		st.mu.Lock()
		st.mutation = MutationCommitted
		st.publishLocked()
		st.mu.Unlock()
		st.session.HandleUnauthorized()
		return err
	default:
		st.mu.Lock()
		st.mutation = MutationReconciling
		st.publishLocked()
		st.mu.Unlock()
		st.collector.RecordReconciliation()
		st.logger.Warn("通知の更新に失敗しました。再取得で照合します",
			slog.String("error", err.Error()),
		)
		st.alerts.ShowError(model.NewNotificationFailedError(err.Error()).Message)
		st.Fetch(ctx, FetchOptions{Reset: true})
		st.mu.Lock()
		st.mutation = MutationCommitted
		st.publishLocked()
		st.mu.Unlock()
		return err
	}
}

// RefreshUnreadCount は未読件数のみを再取得する。一覧の取得より軽量で、
// ポーリングから定期的に呼ばれる。投げっぱなしの経路のため、
// 失敗してもアラートは発行しない。
func (st *Store) RefreshUnreadCount(ctx context.Context) {
	if !st.session.Snapshot().Authenticated() {
		return
	}
	count, err := st.apiClient.GetUnreadCount(ctx)
	switch {
	case err == nil:
		st.mu.Lock()
		st.unreadCount = count
		st.publishLocked()
		st.mu.Unlock()
		st.collector.RecordPollCycle()
	case api.IsCanceled(err):
	case api.IsUnauthorized(err):
		st.session.HandleUnauthorized()
	default:
		st.logger.Debug("未読件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// StartPolling は未読件数の定期ポーリングを開始する。
// 既にポーリング中の場合は何もしない（単一インスタンスガード）。
// ctxのキャンセルまたはStopPollingで停止する。
func (st *Store) StartPolling(ctx context.Context) {
	st.pollMu.Lock()
	defer st.pollMu.Unlock()
	if st.polling {
		return
	}
	st.polling = true
	pollCtx, cancel := context.WithCancel(ctx)
	st.stopPoll = cancel

	go func() {
		defer func() {
			st.pollMu.Lock()
			st.polling = false
			st.stopPoll = nil
			st.pollMu.Unlock()
		}()
		st.poll(pollCtx)
	}()

	st.logger.Info("未読件数ポーリングを開始しました",
		slog.Duration("interval", st.pollInterval),
	)
}

// StopPolling は未読件数ポーリングを停止する。未開始の場合は何もしない。
func (st *Store) StopPolling() {
	st.pollMu.Lock()
	defer st.pollMu.Unlock()
	if st.stopPoll != nil {
		st.stopPoll()
		st.stopPoll = nil
	}
}

func (st *Store) poll(ctx context.Context) {
	ticker := time.NewTicker(st.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			st.logger.Info("未読件数ポーリングを停止しました")
			return
		case <-ticker.C:
			st.RefreshUnreadCount(ctx)
		}
	}
}

// Clear はコレクションとページネーション状態を空にしてReadyへ遷移する。
// サインアウト時および認証済みIdentityが無い場合に使用される。
func (st *Store) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cancelInFlightLocked()
	st.gen++ // 進行中フェッチの遅延コミットを無効化
	st.resetLocked()
	st.err = nil
	st.status = resource.StatusReady
	st.mutation = MutationIdle
	st.publishLocked()
}

func (st *Store) resetLocked() {
	st.items = nil
	st.page = 0
	st.totalPages = 0
	st.unreadCount = 0
}

func (st *Store) cancelInFlightLocked() {
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
}

func (st *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Items:       append([]model.Notification(nil), st.items...),
		Status:      st.status,
		Err:         st.err,
		Page:        st.page,
		TotalPages:  st.totalPages,
		UnreadCount: st.unreadCount,
		Mutation:    st.mutation,
	}
}

func (st *Store) publishLocked() {
	snap := st.snapshotLocked()
	for _, ch := range st.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
