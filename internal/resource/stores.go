package resource

import (
	"context"
	"log/slog"

	"github.com/hitoshi/chintai/internal/metrics"
	"github.com/hitoshi/chintai/internal/model"
	"github.com/hitoshi/chintai/internal/session"
)

// PropertyAPI は物件一覧取得の契約。api.Clientが実装する。
type PropertyAPI interface {
	ListProperties(ctx context.Context, filters map[string]string) ([]model.Property, error)
}

// LeaseAPI はリース契約一覧取得の契約。
type LeaseAPI interface {
	ListLeases(ctx context.Context, filters map[string]string) ([]model.Lease, error)
}

// RentAPI は家賃請求一覧取得の契約。
type RentAPI interface {
	ListRents(ctx context.Context, filters map[string]string) ([]model.Rent, error)
}

// NewPropertyStore は物件ストアを生成する。
// スコープはロールから導出され、選択状態（Select）を持つ唯一のストア。
func NewPropertyStore(
	sess SessionSource,
	propertyAPI PropertyAPI,
	alerts session.Alerter,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Store[model.Property] {
	return NewStore(Config[model.Property]{
		Name:  "property",
		Label: "物件",
		Fetch: func(ctx context.Context, scope Scope) ([]model.Property, error) {
			return propertyAPI.ListProperties(ctx, scope)
		},
		ScopeFn: func() (Scope, ScopeState) {
			snap := sess.Snapshot()
			if pending(snap) {
				return nil, ScopePending
			}
			if !snap.Authenticated() {
				return nil, ScopeNone
			}
			identity := snap.Identity
			switch {
			case identity.HasRole(model.RoleAdmin):
				return Scope{}, ScopeReady
			case identity.HasRole(model.RoleLandlord):
				return Scope{"ownerId": identity.ID}, ScopeReady
			case identity.HasRole(model.RolePropertyManager):
				return Scope{"managerId": identity.ID}, ScopeReady
			default:
				return Scope{"tenantId": identity.ID}, ScopeReady
			}
		},
		IDFn:       func(p model.Property) string { return p.ID },
		Selectable: true,
		Session:    sess,
		Alerts:     alerts,
		Logger:     logger,
		Collector:  collector,
	})
}

// NewLeaseStore はリース契約ストアを生成する。
// 入居者は自身のtenantIdで、それ以外のロールは物件ストアの選択中物件で
// スコープされる。物件の選択が確定するまでフェッチは保留される。
func NewLeaseStore(
	sess SessionSource,
	properties *Store[model.Property],
	leaseAPI LeaseAPI,
	alerts session.Alerter,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Store[model.Lease] {
	return NewStore(Config[model.Lease]{
		Name:  "lease",
		Label: "リース契約",
		Fetch: func(ctx context.Context, scope Scope) ([]model.Lease, error) {
			return leaseAPI.ListLeases(ctx, scope)
		},
		ScopeFn: func() (Scope, ScopeState) {
			return dependentScope(sess, properties.Snapshot())
		},
		IDFn:      func(l model.Lease) string { return l.ID },
		Session:   sess,
		Deps:      []Dependency{properties},
		Alerts:    alerts,
		Logger:    logger,
		Collector: collector,
	})
}

// NewRentStore は家賃請求ストアを生成する。
// スコープの導出はリース契約ストアと同じだが、リース契約の解決を待ってから
// フェッチする（リース契約に依存するため）。
func NewRentStore(
	sess SessionSource,
	properties *Store[model.Property],
	leases *Store[model.Lease],
	rentAPI RentAPI,
	alerts session.Alerter,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Store[model.Rent] {
	return NewStore(Config[model.Rent]{
		Name:  "rent",
		Label: "家賃請求",
		Fetch: func(ctx context.Context, scope Scope) ([]model.Rent, error) {
			return rentAPI.ListRents(ctx, scope)
		},
		ScopeFn: func() (Scope, ScopeState) {
			if leaseSnap := leases.Snapshot(); leaseSnap.Status == StatusLoading {
				return nil, ScopePending
			}
			return dependentScope(sess, properties.Snapshot())
		},
		IDFn:      func(r model.Rent) string { return r.ID },
		Session:   sess,
		Deps:      []Dependency{properties, leases},
		Alerts:    alerts,
		Logger:    logger,
		Collector: collector,
	})
}

// dependentScope はリース契約・家賃請求に共通のスコープ導出。
// 入居者はtenantId、それ以外のロールは選択中物件のpropertyIdでスコープする。
// 入居者は物件選択を持たないため、propertyIdではなく常にtenantIdで
// フェッチする。
func dependentScope(sess SessionSource, props Snapshot[model.Property]) (Scope, ScopeState) {
	snap := sess.Snapshot()
	if pending(snap) {
		return nil, ScopePending
	}
	if !snap.Authenticated() {
		return nil, ScopeNone
	}
	if snap.Identity.HasRole(model.RoleTenant) {
		return Scope{"tenantId": snap.Identity.ID}, ScopeReady
	}

	switch props.Status {
	case StatusIdle, StatusLoading:
		return nil, ScopePending
	case StatusFailed:
		return nil, ScopeNone
	}
	if props.Selected == nil {
		return nil, ScopeNone
	}
	return Scope{"propertyId": props.Selected.ID}, ScopeReady
}

// pending は上流セッションが終端状態（Ready/Failed）に達していないかを返す。
// 依存ストアはセッションの確定前にフェッチを発行してはならない。
func pending(snap session.Snapshot) bool {
	return snap.Status == session.StatusUninitialized || snap.Status == session.StatusLoading
}
