// Package route はロール別ポータルのパス解決を提供する。
// ポータルのプレフィックスとロールの対応は明示的なポリシーテーブルで管理し、
// パス文字列の分割ヒューリスティックはテーブル照合のための先頭セグメント
// 抽出に限定する。
package route

import (
	"strings"

	"github.com/hitoshi/chintai/internal/model"
	"github.com/hitoshi/chintai/internal/session"
)

// portalPolicy はポータルプレフィックスとロールの対応を定義する。
// 解決とガードの双方がこのテーブルを参照する。
var portalPolicy = []struct {
	prefix string
	role   model.Role
}{
	{"admin", model.RoleAdmin},
	{"pm", model.RolePropertyManager},
	{"landlord", model.RoleLandlord},
	{"tenant", model.RoleTenant},
}

// SessionReader は解決の入力となるセッション状態の読み取り契約。
type SessionReader interface {
	Snapshot() session.Snapshot
}

// Resolver はロール別ポータルのパスを解決する。
type Resolver struct {
	session SessionReader
}

// NewResolver はResolverを生成する。
func NewResolver(sess SessionReader) *Resolver {
	return &Resolver{session: sess}
}

// BasePath は現在のポータルのベースパスを返す。
// 現在のパスに既知のポータルセグメントが含まれていればそれを優先する。
// 管理者が他ポータルの画面を閲覧中にナビゲーションで引き戻さないための挙動。
// パスから判別できない場合のみIdentityのロールから導出し、
// 未認証かつ判別不能の場合は空文字列を返す。
func (r *Resolver) BasePath(currentPath string) string {
	if prefix, ok := portalFromPath(currentPath); ok {
		return "/" + prefix
	}
	snap := r.session.Snapshot()
	if snap.Identity != nil {
		if prefix, ok := portalForRole(snap.Identity.Role); ok {
			return "/" + prefix
		}
	}
	return ""
}

// Path は現在のポータルにスコープしたナビゲーション先パスを構築する。
// relativeの先頭スラッシュは除去され、二重スラッシュは発生しない。
func (r *Resolver) Path(currentPath, relative string) string {
	rel := strings.TrimPrefix(relative, "/")
	base := r.BasePath(currentPath)
	if rel == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	return base + "/" + rel
}

// PortalForRole はロールに対応するポータルプレフィックスを返す。
func PortalForRole(role model.Role) (string, bool) {
	return portalForRole(role)
}

func portalForRole(role model.Role) (string, bool) {
	for _, p := range portalPolicy {
		if p.role.Equal(role) {
			return p.prefix, true
		}
	}
	return "", false
}

// portalFromPath はパスの先頭セグメントをポリシーテーブルと照合する。
func portalFromPath(path string) (string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	segment, _, _ := strings.Cut(trimmed, "/")
	for _, p := range portalPolicy {
		if p.prefix == segment {
			return p.prefix, true
		}
	}
	return "", false
}
