package access

import (
	"testing"

	"github.com/hitoshi/chintai/internal/model"
	"github.com/hitoshi/chintai/internal/session"
)

// stubSession は固定スナップショットを返すSessionReader。
type stubSession struct {
	snap session.Snapshot
}

func (s *stubSession) Snapshot() session.Snapshot { return s.snap }

func readyWith(identity *model.Identity) SessionReader {
	return &stubSession{snap: session.Snapshot{Identity: identity, Token: "t", Status: session.StatusReady}}
}

func TestHasRole(t *testing.T) {
	landlord := &model.Identity{ID: "u1", Role: model.RoleLandlord}

	tests := []struct {
		name    string
		session SessionReader
		roles   []model.Role
		want    bool
	}{
		{
			name:    "一致するロール",
			session: readyWith(landlord),
			roles:   []model.Role{model.RoleLandlord},
			want:    true,
		},
		{
			name:    "複数候補のいずれかに一致",
			session: readyWith(landlord),
			roles:   []model.Role{model.RoleAdmin, model.RoleLandlord},
			want:    true,
		},
		{
			name:    "大文字小文字を区別しない",
			session: readyWith(&model.Identity{ID: "u1", Role: "LANDLORD"}),
			roles:   []model.Role{model.RoleLandlord},
			want:    true,
		},
		{
			name:    "不一致",
			session: readyWith(landlord),
			roles:   []model.Role{model.RoleAdmin},
			want:    false,
		},
		{
			name:    "未認証は常に偽",
			session: &stubSession{snap: session.Snapshot{Status: session.StatusReady}},
			roles:   []model.Role{model.RoleLandlord},
			want:    false,
		},
		{
			name: "セッション解決前は認証済みでも偽",
			session: &stubSession{snap: session.Snapshot{
				Identity: landlord, Token: "t", Status: session.StatusLoading,
			}},
			roles: []model.Role{model.RoleLandlord},
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewEvaluator(tt.session).HasRole(tt.roles...); got != tt.want {
				t.Errorf("HasRole(%v) = %v, want %v", tt.roles, got, tt.want)
			}
		})
	}
}

func TestHasPropertyAccess(t *testing.T) {
	tests := []struct {
		name       string
		identity   *model.Identity
		propertyID string
		want       bool
	}{
		{
			name:       "管理者は無条件に可",
			identity:   &model.Identity{ID: "a1", Role: model.RoleAdmin},
			propertyID: "p99",
			want:       true,
		},
		{
			name: "オーナーは所有物件のみ可",
			identity: &model.Identity{
				ID: "o1", Role: model.RoleLandlord,
				OwnedPropertyIDs: []string{"p1", "p2"},
			},
			propertyID: "p2",
			want:       true,
		},
		{
			name: "オーナーは所有外の物件は不可",
			identity: &model.Identity{
				ID: "o1", Role: model.RoleLandlord,
				OwnedPropertyIDs: []string{"p1"},
			},
			propertyID: "p2",
			want:       false,
		},
		{
			name: "管理会社は委託物件のみ可",
			identity: &model.Identity{
				ID: "m1", Role: model.RolePropertyManager,
				ManagedPropertyIDs: []string{"p3"},
			},
			propertyID: "p3",
			want:       true,
		},
		{
			name: "入居者は賃借契約が参照する物件のみ可",
			identity: &model.Identity{
				ID: "t1", Role: model.RoleTenant,
				Tenancies: []model.Tenancy{{PropertyID: "p1", UnitID: "u1", LeaseID: "l1"}},
			},
			propertyID: "p1",
			want:       true,
		},
		{
			name: "入居者は無関係の物件は不可",
			identity: &model.Identity{
				ID: "t1", Role: model.RoleTenant,
				Tenancies: []model.Tenancy{{PropertyID: "p1", UnitID: "u1", LeaseID: "l1"}},
			},
			propertyID: "p2",
			want:       false,
		},
		{
			name:       "空のIDは不可",
			identity:   &model.Identity{ID: "a1", Role: model.RoleAdmin},
			propertyID: "",
			want:       false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(readyWith(tt.identity))
			if got := e.HasPropertyAccess(tt.propertyID); got != tt.want {
				t.Errorf("HasPropertyAccess(%q) = %v, want %v", tt.propertyID, got, tt.want)
			}
		})
	}
}

func TestHasUnitAccess(t *testing.T) {
	tenant := &model.Identity{
		ID: "t1", Role: model.RoleTenant,
		Tenancies: []model.Tenancy{{PropertyID: "p1", UnitID: "u1", LeaseID: "l1"}},
	}
	landlord := &model.Identity{
		ID: "o1", Role: model.RoleLandlord,
		OwnedPropertyIDs: []string{"p1"},
	}

	tests := []struct {
		name       string
		identity   *model.Identity
		unitID     string
		propertyID string
		want       bool
	}{
		{"管理者は無条件に可", &model.Identity{ID: "a1", Role: model.RoleAdmin}, "u9", "", true},
		{"オーナーは親物件経由で可", landlord, "u1", "p1", true},
		{"オーナーは所有外の親物件は不可", landlord, "u2", "p2", false},
		{"オーナーは親物件未指定なら不可（推定しない）", landlord, "u1", "", false},
		{"入居者はユニット直接参照で可", tenant, "u1", "p1", true},
		{"入居者は同一物件の別ユニットは不可", tenant, "u2", "p1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(readyWith(tt.identity))
			if got := e.HasUnitAccess(tt.unitID, tt.propertyID); got != tt.want {
				t.Errorf("HasUnitAccess(%q, %q) = %v, want %v", tt.unitID, tt.propertyID, got, tt.want)
			}
		})
	}
}

func TestHasLeaseAccess(t *testing.T) {
	lease := &model.Lease{ID: "l1", PropertyID: "p1", UnitID: "u1", TenantID: "t1"}

	tests := []struct {
		name     string
		identity *model.Identity
		lease    *model.Lease
		want     bool
	}{
		{
			name:     "管理者は無条件に可",
			identity: &model.Identity{ID: "a1", Role: model.RoleAdmin},
			lease:    lease,
			want:     true,
		},
		{
			name: "オーナーは契約の属する物件経由で可",
			identity: &model.Identity{
				ID: "o1", Role: model.RoleLandlord,
				OwnedPropertyIDs: []string{"p1"},
			},
			lease: lease,
			want:  true,
		},
		{
			name:     "契約当事者の入居者は可",
			identity: &model.Identity{ID: "t1", Role: model.RoleTenant},
			lease:    lease,
			want:     true,
		},
		{
			name: "賃借契約の参照でも可",
			identity: &model.Identity{
				ID: "t2", Role: model.RoleTenant,
				Tenancies: []model.Tenancy{{PropertyID: "p1", UnitID: "u1", LeaseID: "l1"}},
			},
			lease: lease,
			want:  true,
		},
		{
			name:     "無関係の入居者は不可",
			identity: &model.Identity{ID: "t9", Role: model.RoleTenant},
			lease:    lease,
			want:     false,
		},
		{
			name:     "nilの契約は不可",
			identity: &model.Identity{ID: "a1", Role: model.RoleAdmin},
			lease:    nil,
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(readyWith(tt.identity))
			if got := e.HasLeaseAccess(tt.lease); got != tt.want {
				t.Errorf("HasLeaseAccess = %v, want %v", got, tt.want)
			}
		})
	}
}
