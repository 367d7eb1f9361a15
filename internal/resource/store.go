// Package resource は現在のIdentityにスコープされたコレクションを保持する
// 汎用ストアを提供する。Property・Lease・Rentの各ストアはこのパターンの
// インスタンスであり、上流（セッション、物件選択）の変更に反応して
// 再フェッチを行い、置き換えられたフェッチの結果が状態を上書きしないことを
// 保証する。
package resource

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/chintai/internal/api"
	"github.com/hitoshi/chintai/internal/metrics"
	"github.com/hitoshi/chintai/internal/model"
	"github.com/hitoshi/chintai/internal/session"
)

// Status はコレクションの取得状態を表す。
type Status string

const (
	// StatusIdle は初回フェッチ前の状態を表す。
	StatusIdle Status = "idle"
	// StatusLoading はフェッチの解決待ちの状態を表す。
	StatusLoading Status = "loading"
	// StatusReady は直近の確定済みフェッチ結果を保持している状態を表す。
	StatusReady Status = "ready"
	// StatusFailed は直近のフェッチが失敗した状態を表す。
	StatusFailed Status = "failed"
)

// ScopeState はスコープ計算の結果種別を表す。
type ScopeState int

const (
	// ScopePending は上流の解決待ちでフェッチを保留すべき状態。
	ScopePending ScopeState = iota
	// ScopeNone は認証済みIdentityが無く、コレクションを空にすべき状態。
	ScopeNone
	// ScopeReady はスコープが確定しフェッチ可能な状態。
	ScopeReady
)

// FetchFunc はスコープに対応するコレクションを取得する関数。
type FetchFunc[T any] func(ctx context.Context, scope Scope) ([]T, error)

// SessionSource はストアが読み取る上流セッションの契約。
// 下流は公開状態を読み取るのみで、HandleUnauthorized以外の再入は行わない。
type SessionSource interface {
	Snapshot() session.Snapshot
	Changes() (<-chan struct{}, func())
	HandleUnauthorized()
}

// Dependency はスコープ計算の入力となる兄弟ストアの変更通知の契約。
type Dependency interface {
	Changes() (<-chan struct{}, func())
}

// Snapshot はストア状態の読み取り専用コピーを表す。
type Snapshot[T any] struct {
	Items    []T
	Status   Status
	Err      error
	ScopeKey string
	Selected *T
}

// Store は単一リソース種別のコレクションを保持する汎用ストア。
type Store[T any] struct {
	mu         sync.Mutex
	items      []T
	status     Status
	err        error
	scopeKey   string
	selectedID string

	gen    int64 // 置き換えられたフェッチのコミットを防ぐ世代カウンタ
	cancel context.CancelFunc

	lastEvalKey   string
	lastEvalState ScopeState
	evaluated     bool

	subscribers map[string]chan Snapshot[T]

	name       string
	label      string // アラートメッセージ用のリソース名（日本語）
	fetch      FetchFunc[T]
	scopeFn    func() (Scope, ScopeState)
	idFn       func(T) string
	selectable bool

	session   SessionSource
	deps      []Dependency
	alerts    session.Alerter
	logger    *slog.Logger
	collector metrics.MetricsCollector
}

// Config はStoreの構築パラメータ。
type Config[T any] struct {
	// Name はメトリクスラベルとログに使用するストア名。
	Name string
	// Label はアラートメッセージに使用するリソース名（日本語）。
	Label string
	// Fetch はスコープに対応するコレクションの取得関数。
	Fetch FetchFunc[T]
	// ScopeFn は上流状態から現在のスコープを計算する。
	ScopeFn func() (Scope, ScopeState)
	// IDFn は要素の識別子を返す。選択継続の判定に使用する。
	IDFn func(T) string
	// Selectable は選択状態（Select/Selected）を有効にする。
	Selectable bool
	// Session は上流セッションストア。
	Session SessionSource
	// Deps はセッション以外のスコープ入力（例: 物件ストア）。
	Deps []Dependency

	Alerts    session.Alerter
	Logger    *slog.Logger
	Collector metrics.MetricsCollector
}

// NewStore はStoreを生成する。初期状態はIdleで、コレクションは空。
func NewStore[T any](cfg Config[T]) *Store[T] {
	collector := cfg.Collector
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Store[T]{
		status:      StatusIdle,
		subscribers: make(map[string]chan Snapshot[T]),
		name:        cfg.Name,
		label:       cfg.Label,
		fetch:       cfg.Fetch,
		scopeFn:     cfg.ScopeFn,
		idFn:        cfg.IDFn,
		selectable:  cfg.Selectable,
		session:     cfg.Session,
		deps:        cfg.Deps,
		alerts:      cfg.Alerts,
		logger:      cfg.Logger,
		collector:   collector,
	}
}

// Snapshot は現在のストア状態のコピーを返す。
func (st *Store[T]) Snapshot() Snapshot[T] {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked()
}

// Subscribe はストア状態の購読チャネルと購読解除関数を返す。
func (st *Store[T]) Subscribe() (<-chan Snapshot[T], func()) {
	st.mu.Lock()
	defer st.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Snapshot[T], 16)
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

// Changes はストア状態の変更通知チャネルと購読解除関数を返す。
// 依存ストアの再評価トリガー用。
func (st *Store[T]) Changes() (<-chan struct{}, func()) {
	snapCh, cancel := st.Subscribe()
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range snapCh {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, cancel
}

// Start は上流の変更監視を開始する。
// 起動時に1回スコープを評価し、以降は上流（セッション、依存ストア）の
// 変更のたびに再評価して、スコープが実際に変化した場合のみ再フェッチする。
// ctxのキャンセルで監視と進行中のフェッチを停止する。
func (st *Store[T]) Start(ctx context.Context) {
	go st.watch(ctx)
}

func (st *Store[T]) watch(ctx context.Context) {
	merged := make(chan struct{}, 1)

	notify := func(ch <-chan struct{}) {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case merged <- struct{}{}:
				default:
				}
			}
		}
	}

	sessCh, cancelSess := st.session.Changes()
	defer cancelSess()
	go notify(sessCh)

	for _, dep := range st.deps {
		depCh, cancelDep := dep.Changes()
		defer cancelDep()
		go notify(depCh)
	}

	st.evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			st.mu.Lock()
			st.cancelInFlightLocked()
			st.mu.Unlock()
			return
		case <-merged:
			st.evaluate(ctx)
		}
	}
}

// evaluate は現在のスコープを計算し、前回評価から実際に変化した場合のみ
// フェッチまたはクリアを行う。再描画のたびの無条件な再フェッチを避ける。
func (st *Store[T]) evaluate(ctx context.Context) {
	scope, state := st.scopeFn()
	key := scope.Key()

	st.mu.Lock()
	if st.evaluated && st.lastEvalState == state && st.lastEvalKey == key {
		st.mu.Unlock()
		return
	}
	st.evaluated = true
	st.lastEvalState = state
	st.lastEvalKey = key
	st.mu.Unlock()

	switch state {
	case ScopePending:
		// 上流のセッション解決待ち。何もしない。
	case ScopeNone:
		st.Clear()
	case ScopeReady:
		go st.refreshScoped(ctx, scope)
	}
}

// Refresh は現在のスコープでフェッチを再実行する。
// 認証済みIdentityが無い場合はコレクションを空にしてReadyへ遷移する。
// 失敗時の手動リトライの入口でもある。
func (st *Store[T]) Refresh(ctx context.Context) {
	scope, state := st.scopeFn()
	switch state {
	case ScopePending:
		return
	case ScopeNone:
		st.Clear()
	case ScopeReady:
		st.refreshScoped(ctx, scope)
	}
}

// refreshScoped は指定スコープのフェッチを実行する。
// 呼び出しのたびに前回の進行中フェッチをキャンセルし、
// 最新の世代のみが状態をコミットできる。
func (st *Store[T]) refreshScoped(ctx context.Context, scope Scope) {
	st.mu.Lock()
	st.cancelInFlightLocked()
	st.gen++
	gen := st.gen
	fetchCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	st.status = StatusLoading
	st.publishLocked()
	st.mu.Unlock()

	start := time.Now()
	items, err := st.fetch(fetchCtx, scope)
	elapsed := time.Since(start)

	st.mu.Lock()
	defer st.mu.Unlock()

	// 置き換えられたフェッチの結果は成功・失敗を問わず破棄する
	if st.gen != gen {
		st.collector.RecordRefreshCanceled(st.name)
		return
	}
	st.cancel = nil

	switch {
	case err == nil:
		st.items = items
		st.err = nil
		st.status = StatusReady
		st.scopeKey = scope.Key()
		st.reselectLocked()
		st.collector.RecordRefreshSuccess(st.name)
		st.collector.RecordRefreshLatency(st.name, elapsed)
		st.logger.Debug("コレクションを更新しました",
			slog.String("store", st.name),
			slog.Int("count", len(items)),
			slog.String("scope", st.scopeKey),
		)
		st.publishLocked()
	case api.IsCanceled(err):
		// キャンセルは失敗ではない: 状態・アラートとも変更なし
		st.collector.RecordRefreshCanceled(st.name)
	case api.IsUnauthorized(err):
		// セッション破棄はセッションストアが一元的に行う。
		// アラートもセッション失効通知に集約されるため、ここでは発行しない。
		st.items = nil
		st.err = err
		st.status = StatusFailed
		st.reselectLocked()
		st.publishLocked()
		st.session.HandleUnauthorized()
	default:
		st.items = nil
		st.err = err
		st.status = StatusFailed
		st.scopeKey = scope.Key()
		st.reselectLocked()
		st.collector.RecordRefreshFailure(st.name)
		st.logger.Warn("コレクションの取得に失敗しました",
			slog.String("store", st.name),
			slog.String("error", err.Error()),
		)
		st.alerts.ShowError(model.NewFetchFailedError(st.label, err.Error()).Message)
		st.publishLocked()
	}
}

// Clear はコレクションを空にしてReadyへ遷移する。
// サインアウト時および認証済みIdentityが無い場合に使用される。
func (st *Store[T]) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cancelInFlightLocked()
	st.gen++ // 進行中フェッチの遅延コミットを無効化
	st.items = nil
	st.err = nil
	st.status = StatusReady
	st.scopeKey = ""
	st.selectedID = ""
	st.publishLocked()
}

// Select は選択状態を同期的に設定する。再フェッチは行わない。
// コレクションに存在しないIDの指定は無視される。
func (st *Store[T]) Select(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.selectable || id == st.selectedID {
		return
	}
	for _, item := range st.items {
		if st.idFn(item) == id {
			st.selectedID = id
			st.publishLocked()
			return
		}
	}
}

// reselectLocked はコミット後の選択継続を処理する。
// 既存の選択が新しいコレクションに残っていればそのまま維持し、
// 消えた場合は先頭要素（空なら未選択）へ移す。
// ユーザーの明示的な選択をリフレッシュで覆さないための不変条件。
func (st *Store[T]) reselectLocked() {
	if !st.selectable {
		return
	}
	if st.selectedID != "" {
		for _, item := range st.items {
			if st.idFn(item) == st.selectedID {
				return // 選択継続
			}
		}
	}
	if len(st.items) > 0 {
		st.selectedID = st.idFn(st.items[0])
	} else {
		st.selectedID = ""
	}
}

func (st *Store[T]) cancelInFlightLocked() {
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
}

func (st *Store[T]) snapshotLocked() Snapshot[T] {
	snap := Snapshot[T]{
		Items:    append([]T(nil), st.items...),
		Status:   st.status,
		Err:      st.err,
		ScopeKey: st.scopeKey,
	}
	if st.selectable && st.selectedID != "" {
		for _, item := range st.items {
			if st.idFn(item) == st.selectedID {
				copied := item
				snap.Selected = &copied
				break
			}
		}
	}
	return snap
}

func (st *Store[T]) publishLocked() {
	snap := st.snapshotLocked()
	for _, ch := range st.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
