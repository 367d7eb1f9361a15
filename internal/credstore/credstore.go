// Package credstore は資格情報の永続化を提供する。
// シリアライズ済みのIdentityとBearerトークンの2つの文字列キーを
// 1つのJSONファイルに保存する。書き込みはセッションストアのみが行い、
// 他のコンポーネントは読み取り専用で利用する。
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// 永続化フォーマットのキー名。
const (
	keyIdentity = "identity"
	keyToken    = "access_token"
)

// Store は資格情報ファイルへのアクセスを提供する。
// 全操作はミューテックスで直列化され、書き込みはtemp+renameで
// アトミックに行われる。
type Store struct {
	mu   sync.Mutex
	path string
}

// New は指定パスを使用するStoreを生成する。
func New(path string) *Store {
	return &Store{path: path}
}

// Load は永続化された資格情報を読み込む。
// ファイルが存在しない場合は空文字列のペアを返す（エラーではない）。
func (s *Store) Load() (identityJSON, token string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("failed to read credential file: %w", err)
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		// 壊れたファイルは未ログイン扱いにする（復元不能なため）
		return "", "", nil
	}
	return m[keyIdentity], m[keyToken], nil
}

// Token は永続化されたBearerトークンのみを返す。
// 復元処理の要否判定とリクエスト認可に使用する。
func (s *Store) Token() string {
	_, token, _ := s.Load()
	return token
}

// Save は資格情報を永続化する。
// 一時ファイルに書き込んだ後にrenameすることで部分書き込みを防ぐ。
func (s *Store) Save(identityJSON, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(map[string]string{
		keyIdentity: identityJSON,
		keyToken:    token,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close credential file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename credential file: %w", err)
	}
	return nil
}

// Clear は永続化された資格情報を削除する。
// ファイルが存在しない場合もエラーとしない。
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}
