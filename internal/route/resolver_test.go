package route

import (
	"testing"

	"github.com/hitoshi/chintai/internal/model"
	"github.com/hitoshi/chintai/internal/session"
)

type stubSession struct {
	snap session.Snapshot
}

func (s *stubSession) Snapshot() session.Snapshot { return s.snap }

func sessionWithRole(role model.Role) SessionReader {
	return &stubSession{snap: session.Snapshot{
		Identity: &model.Identity{ID: "u1", Role: role},
		Token:    "t",
		Status:   session.StatusReady,
	}}
}

func TestBasePath(t *testing.T) {
	tests := []struct {
		name        string
		session     SessionReader
		currentPath string
		want        string
	}{
		{
			name:        "URLのポータルセグメントを優先する",
			session:     sessionWithRole(model.RoleAdmin),
			currentPath: "/landlord/properties/p1",
			want:        "/landlord",
		},
		{
			name:        "セグメントが無ければロールから導出する",
			session:     sessionWithRole(model.RolePropertyManager),
			currentPath: "/properties",
			want:        "/pm",
		},
		{
			name:        "ルートパスもロールから導出する",
			session:     sessionWithRole(model.RoleTenant),
			currentPath: "/",
			want:        "/tenant",
		},
		{
			name:        "未知のセグメントはテーブルに照合されない",
			session:     sessionWithRole(model.RoleLandlord),
			currentPath: "/landlords/properties", // 前方一致ではなく完全一致
			want:        "/landlord",
		},
		{
			name:        "未認証かつ判別不能は空",
			session:     &stubSession{snap: session.Snapshot{Status: session.StatusReady}},
			currentPath: "/login",
			want:        "",
		},
		{
			name:        "未認証でもURLのセグメントは有効",
			session:     &stubSession{snap: session.Snapshot{Status: session.StatusReady}},
			currentPath: "/admin/users",
			want:        "/admin",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewResolver(tt.session).BasePath(tt.currentPath); got != tt.want {
				t.Errorf("BasePath(%q) = %q, want %q", tt.currentPath, got, tt.want)
			}
		})
	}
}

func TestPath(t *testing.T) {
	tests := []struct {
		name        string
		session     SessionReader
		currentPath string
		relative    string
		want        string
	}{
		{
			name:        "相対パスの連結",
			session:     sessionWithRole(model.RoleLandlord),
			currentPath: "/landlord/dashboard",
			relative:    "properties",
			want:        "/landlord/properties",
		},
		{
			name:        "先頭スラッシュは除去され二重スラッシュにならない",
			session:     sessionWithRole(model.RoleLandlord),
			currentPath: "/landlord/dashboard",
			relative:    "/properties/p1",
			want:        "/landlord/properties/p1",
		},
		{
			name:        "空の相対パスはベースパスそのもの",
			session:     sessionWithRole(model.RoleTenant),
			currentPath: "/tenant/rents",
			relative:    "",
			want:        "/tenant",
		},
		{
			name:        "ポータル判別不能時はルート直下",
			session:     &stubSession{snap: session.Snapshot{Status: session.StatusReady}},
			currentPath: "/login",
			relative:    "login",
			want:        "/login",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewResolver(tt.session).Path(tt.currentPath, tt.relative)
			if got != tt.want {
				t.Errorf("Path(%q, %q) = %q, want %q", tt.currentPath, tt.relative, got, tt.want)
			}
		})
	}
}

func TestPortalForRole(t *testing.T) {
	if prefix, ok := PortalForRole("PROPERTY_MANAGER"); !ok || prefix != "pm" {
		t.Errorf("PortalForRole(PROPERTY_MANAGER) = %q, %v, want pm, true", prefix, ok)
	}
	if _, ok := PortalForRole("unknown"); ok {
		t.Error("未知のロールでポータルが解決されました")
	}
}
