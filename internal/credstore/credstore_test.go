package credstore

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "credentials.json"))
}

// TestLoad_MissingFile_ReturnsEmpty はファイル不在時に空ペアが返ることをテストする。
func TestLoad_MissingFile_ReturnsEmpty(t *testing.T) {
	s := newTestStore(t)

	identity, token, err := s.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if identity != "" || token != "" {
		t.Errorf("expected empty credentials, got identity=%q token=%q", identity, token)
	}
}

// TestSaveAndLoad_RoundTrip は保存した資格情報がそのまま読み出せることをテストする。
func TestSaveAndLoad_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(`{"id":"user-1"}`, "token-abc"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	identity, token, err := s.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if identity != `{"id":"user-1"}` {
		t.Errorf("identity = %q, want %q", identity, `{"id":"user-1"}`)
	}
	if token != "token-abc" {
		t.Errorf("token = %q, want %q", token, "token-abc")
	}
}

// TestToken_ReturnsOnlyToken はToken()がトークンのみを返すことをテストする。
func TestToken_ReturnsOnlyToken(t *testing.T) {
	s := newTestStore(t)

	if got := s.Token(); got != "" {
		t.Errorf("Token on empty store = %q, want empty", got)
	}

	if err := s.Save(`{"id":"user-1"}`, "token-xyz"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if got := s.Token(); got != "token-xyz" {
		t.Errorf("Token = %q, want %q", got, "token-xyz")
	}
}

// TestClear_RemovesFile はClear後にLoadが空ペアを返すことをテストする。
func TestClear_RemovesFile(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save("{}", "token"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}

	_, token, err := s.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if token != "" {
		t.Errorf("token after Clear = %q, want empty", token)
	}

	// 2回目のClearもエラーにならない
	if err := s.Clear(); err != nil {
		t.Errorf("second Clear returned error: %v", err)
	}
}

// TestLoad_CorruptFile_TreatedAsLoggedOut は壊れたファイルが未ログイン扱いになることをテストする。
func TestLoad_CorruptFile_TreatedAsLoggedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}
	s := New(path)

	identity, token, err := s.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if identity != "" || token != "" {
		t.Errorf("corrupt file should yield empty credentials, got identity=%q token=%q", identity, token)
	}
}

// TestSave_FilePermissions は資格情報ファイルが0600で保存されることをテストする。
func TestSave_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := New(path)

	if err := s.Save("{}", "secret"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat returned error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file permission = %o, want 600", perm)
	}
}
