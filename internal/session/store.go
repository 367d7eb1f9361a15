// Package session は認証済みIdentityとBearer資格情報を所有するストアを提供する。
// 依存チェーンの起点であり、他のストアはこのストアの公開状態を読み取るのみで、
// セッションのフィールドを直接変更してはならない。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/chintai/internal/api"
	"github.com/hitoshi/chintai/internal/model"
)

// ErrSuperseded は進行中のログインが後続のRestore/SignIn/SignOutに
// 置き換えられ、結果がコミットされなかったことを表す。
var ErrSuperseded = errors.New("サインインは後続の操作に置き換えられました")

// Status はセッションの解決状態を表す。
type Status string

const (
	// StatusUninitialized は復元処理が未実行の状態を表す。
	StatusUninitialized Status = "uninitialized"
	// StatusLoading は復元またはログインの解決待ちの状態を表す。
	StatusLoading Status = "loading"
	// StatusReady はセッションの有無が確定した状態を表す。
	// Identityがnilの場合は未ログインが確定している。
	StatusReady Status = "ready"
	// StatusFailed は復元処理が致命的に失敗した状態を表す。
	StatusFailed Status = "failed"
)

// Snapshot はセッション状態の読み取り専用コピーを表す。
type Snapshot struct {
	Identity  *model.Identity
	Token     string
	Status    Status
	LastError error
}

// Authenticated はログイン済みかどうかを返す。
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusReady && s.Identity != nil
}

// AuthAPI はセッションストアが利用するリモートAPIの契約。
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.LoginResult, error)
	Logout(ctx context.Context) error
	GetMe(ctx context.Context) (*model.Identity, error)
}

// CredentialStore は資格情報の永続化の契約。credstore.Storeが実装する。
type CredentialStore interface {
	Load() (identityJSON, token string, err error)
	Save(identityJSON, token string) error
	Clear() error
}

// Alerter は操作結果の通知先。alert.Broadcasterが実装する。
type Alerter interface {
	ShowSuccess(msg string)
	ShowError(msg string)
	ShowInfo(msg string, ttl time.Duration)
}

// Store はセッション状態を所有するストア。
type Store struct {
	mu        sync.Mutex
	identity  *model.Identity
	token     string
	status    Status
	lastError error
	gen       int64 // 置き換えられた復元処理のコミットを防ぐ世代カウンタ

	subscribers map[string]chan Snapshot

	api    AuthAPI
	creds  CredentialStore
	alerts Alerter
	logger *slog.Logger
}

// NewStore はStoreを生成する。初期状態はUninitialized。
func NewStore(authAPI AuthAPI, creds CredentialStore, alerts Alerter, logger *slog.Logger) *Store {
	return &Store{
		status:      StatusUninitialized,
		subscribers: make(map[string]chan Snapshot),
		api:         authAPI,
		creds:       creds,
		alerts:      alerts,
		logger:      logger,
	}
}

// Snapshot は現在のセッション状態のコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe はセッション状態の購読チャネルと購読解除関数を返す。
// コミットされた全ての状態遷移がスナップショットとして配信される。
// 受信が追いつかない購読者への配信はドロップされる。
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Snapshot, 16)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Changes はセッション状態の変更通知チャネルと購読解除関数を返す。
// スナップショットの内容を必要としない依存ストアの再評価トリガー用。
func (s *Store) Changes() (<-chan struct{}, func()) {
	snapCh, cancel := s.Subscribe()
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

// Restore は永続化された資格情報からセッションを復元する。
//   - 資格情報が無い場合は未ログインのReadyへ即時遷移する。
//   - トークンの有効期限が明らかに切れている場合はネットワーク呼び出しを行わず
//     認可拒否と同じ経路でセッションを破棄する。
//   - リモート検証が認可拒否で失敗した場合は資格情報を消去し、
//     セッション失効アラートを表示して未ログインのReadyへ遷移する。
//   - その他の失敗（ネットワーク等）は致命的として扱わず、永続化済みの
//     Identityを未確認のまま保持してReadyへ遷移する。
//   - キャンセルされた場合は一切の状態遷移を行わない。
func (s *Store) Restore(ctx context.Context) {
	s.mu.Lock()
	identityJSON, token, err := s.creds.Load()
	if err != nil {
		s.logger.Warn("資格情報の読み込みに失敗しました", slog.String("error", err.Error()))
	}

	if token == "" {
		// 資格情報なし: 復元をスキップして未ログイン確定
		s.identity = nil
		s.token = ""
		s.status = StatusReady
		s.lastError = nil
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	if tokenExpired(token) {
		s.logger.Info("永続化されたトークンの有効期限が切れています")
		// 認可拒否と同じ経路を踏むため、破棄対象の資格情報を先に載せてから
		// teardownLockedを呼ぶ（失効アラートは実在したセッションにのみ出る）
		s.identity = parseIdentity(identityJSON)
		s.token = token
		s.gen++
		s.teardownLocked(true)
		s.mu.Unlock()
		return
	}

	s.token = token
	s.status = StatusLoading
	s.gen++
	gen := s.gen
	s.publishLocked()
	s.mu.Unlock()

	identity, err := s.api.GetMe(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	// 後続のRestore/SignIn/SignOutに置き換えられた結果は破棄する
	if s.gen != gen {
		return
	}

	switch {
	case err == nil:
		s.identity = identity
		s.status = StatusReady
		s.lastError = nil
		s.persistLocked()
		s.logger.Info("セッションを復元しました",
			slog.String("user_id", identity.ID),
			slog.String("role", string(identity.Role)),
		)
		s.publishLocked()
	case api.IsCanceled(err):
		// キャンセルは状態遷移なし
	case api.IsUnauthorized(err):
		s.teardownLocked(true)
	default:
		// ネットワーク等の一時的な失敗: ログアウト確定とは区別し、
		// 永続化済みのIdentityを未確認のまま提示する
		s.identity = parseIdentity(identityJSON)
		s.status = StatusReady
		s.lastError = err
		s.logger.Warn("セッションの検証に失敗しました（未確認のまま継続します）",
			slog.String("error", err.Error()),
		)
		s.publishLocked()
	}
}

// SignIn はメールアドレスとパスワードでログインする。
// 成功時はセッションをコミットして資格情報を永続化する。
// 失敗時は部分的なセッション状態を残さずクリアし、エラーを呼び出し元に返す。
// 後続のRestore/SignIn/SignOutに置き換えられた場合はErrSupersededを返す。
// 呼び出し元（フォーム）がエラー表示を行うため、アラートは発行しない。
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	s.mu.Lock()
	s.status = StatusLoading
	s.gen++
	gen := s.gen
	s.publishLocked()
	s.mu.Unlock()

	result, err := s.api.Login(ctx, email, password)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		// 置き換えられたログインはコミットしない。成功していたとしても
		// セッションは確立していないため、成功として報告してはならない
		if err == nil {
			return ErrSuperseded
		}
		return err
	}

	if err != nil {
		// 半端なセッションを残さない
		s.identity = nil
		s.token = ""
		s.status = StatusReady
		s.lastError = nil
		s.publishLocked()
		return err
	}

	s.identity = result.User
	s.token = result.AccessToken
	s.status = StatusReady
	s.lastError = nil
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("資格情報の永続化に失敗しました", slog.String("error", err.Error()))
	}
	s.logger.Info("ログインしました",
		slog.String("user_id", result.User.ID),
		slog.String("role", string(result.User.Role)),
	)
	s.publishLocked()
	return nil
}

// SignOut はサーバー側のログアウトをベストエフォートで呼び出した後、
// 結果に関わらずセッション状態と永続化済み資格情報を消去する。
// manualがtrueの場合のみ確認アラートを表示する（認可拒否による強制ログアウトと区別する）。
func (s *Store) SignOut(ctx context.Context, manual bool) {
	if err := s.api.Logout(ctx); err != nil && !api.IsCanceled(err) {
		s.logger.Warn("リモートログアウトに失敗しました", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.gen++
	s.teardownLocked(false)
	s.mu.Unlock()

	if manual {
		s.alerts.ShowSuccess("ログアウトしました。")
	}
}

// HandleUnauthorized はいずれかのAPI呼び出しが認可拒否を返した際の
// セッション破棄の入口。冪等であり、並行する複数の401に対して
// セッション失効アラートは1回だけ表示される。
func (s *Store) HandleUnauthorized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.teardownLocked(true)
}

// teardownLocked はセッション状態と永続化済み資格情報を消去する。
// expiredがtrueの場合、消去すべき状態が実在したときに限り
// セッション失効アラートを表示する。
func (s *Store) teardownLocked(expired bool) {
	hadSession := s.identity != nil || s.token != ""

	s.identity = nil
	s.token = ""
	s.status = StatusReady
	s.lastError = nil
	if err := s.creds.Clear(); err != nil {
		s.logger.Warn("資格情報の消去に失敗しました", slog.String("error", err.Error()))
	}
	s.publishLocked()

	if expired && hadSession {
		s.alerts.ShowError(model.NewSessionExpiredError().Message)
		s.logger.Info("セッションを破棄しました（認可拒否）")
	}
}

// persistLocked は現在のIdentityとトークンを永続化する。
func (s *Store) persistLocked() error {
	identityJSON := ""
	if s.identity != nil {
		data, err := json.Marshal(s.identity)
		if err != nil {
			return err
		}
		identityJSON = string(data)
	}
	return s.creds.Save(identityJSON, s.token)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Identity:  s.identity,
		Token:     s.token,
		Status:    s.status,
		LastError: s.lastError,
	}
}

// publishLocked は全購読者に現在のスナップショットを配信する。
func (s *Store) publishLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// parseIdentity は永続化済みのIdentity JSONをデコードする。
// デコードできない場合はnilを返す。
func parseIdentity(identityJSON string) *model.Identity {
	if identityJSON == "" {
		return nil
	}
	var identity model.Identity
	if err := json.Unmarshal([]byte(identityJSON), &identity); err != nil {
		return nil
	}
	return &identity
}

// tokenExpired はJWTのexpクレームを検証なしで読み取り、
// 明らかに期限切れかどうかを判定する。
// JWT形式でないトークンやexpを持たないトークンはサーバー検証に委ねる。
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
