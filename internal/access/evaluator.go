// Package access はIdentityに基づく認可判定を提供する。
// 判定はセッションの公開状態のみから導出される純粋関数で、
// 副作用を持たず、毎回の再評価が安全であることを保証する。
package access

import (
	"github.com/hitoshi/chintai/internal/model"
	"github.com/hitoshi/chintai/internal/session"
)

// SessionReader は判定の入力となるセッション状態の読み取り契約。
type SessionReader interface {
	Snapshot() session.Snapshot
}

// Evaluator はロール・所有関係に基づく認可判定を行う。
type Evaluator struct {
	session SessionReader
}

// NewEvaluator はEvaluatorを生成する。
func NewEvaluator(sess SessionReader) *Evaluator {
	return &Evaluator{session: sess}
}

// identity はReadyなセッションのIdentityを返す。
// セッションが未解決または未認証の場合はnilを返し、全判定が偽になる。
func (e *Evaluator) identity() *model.Identity {
	snap := e.session.Snapshot()
	if snap.Status != session.StatusReady {
		return nil
	}
	return snap.Identity
}

// HasRole はIdentityが指定ロールのいずれかを持つかを返す。
// 比較は大文字小文字を区別しない。セッションがReadyに達していない間は
// 常に偽を返す。
func (e *Evaluator) HasRole(roles ...model.Role) bool {
	return e.identity().HasRole(roles...)
}

// HasPropertyAccess はIdentityが指定物件へアクセス可能かを返す。
// 管理者は無条件に可、オーナー・管理会社は関連リストに物件が含まれる場合、
// 入居者はいずれかの賃借契約がその物件を参照する場合に可。
func (e *Evaluator) HasPropertyAccess(propertyID string) bool {
	identity := e.identity()
	if identity == nil || propertyID == "" {
		return false
	}
	switch {
	case identity.HasRole(model.RoleAdmin):
		return true
	case identity.HasRole(model.RoleLandlord):
		return containsID(identity.OwnedPropertyIDs, propertyID)
	case identity.HasRole(model.RolePropertyManager):
		return containsID(identity.ManagedPropertyIDs, propertyID)
	case identity.HasRole(model.RoleTenant):
		for _, t := range identity.Tenancies {
			if t.PropertyID == propertyID {
				return true
			}
		}
	}
	return false
}

// HasUnitAccess はIdentityが指定ユニットへアクセス可能かを返す。
// 管理者は無条件に可。オーナー・管理会社は親物件（propertyID）への
// アクセス権で判定する。入居者は賃借契約がユニットを直接参照する場合のみ可で、
// 親物件へのアクセス権だけでは不十分。
//
// Identityはユニットから親物件への対応を持たないため、親物件の推定は
// 呼び出し元の責務となる。オーナー・管理会社の判定でpropertyIDが空の場合、
// 推定は行わず常に拒否する。
func (e *Evaluator) HasUnitAccess(unitID, propertyID string) bool {
	identity := e.identity()
	if identity == nil || unitID == "" {
		return false
	}
	switch {
	case identity.HasRole(model.RoleAdmin):
		return true
	case identity.HasRole(model.RoleTenant):
		for _, t := range identity.Tenancies {
			if t.UnitID == unitID {
				return true
			}
		}
		return false
	default:
		return e.HasPropertyAccess(propertyID)
	}
}

// HasLeaseAccess はIdentityが指定リース契約へアクセス可能かを返す。
// 管理者は無条件に可、オーナー・管理会社は契約の属する物件への
// アクセス権で判定し、入居者は契約の当事者である場合
// （賃借契約の参照またはtenantIdの一致）に可。
func (e *Evaluator) HasLeaseAccess(lease *model.Lease) bool {
	identity := e.identity()
	if identity == nil || lease == nil {
		return false
	}
	switch {
	case identity.HasRole(model.RoleAdmin):
		return true
	case identity.HasRole(model.RoleTenant):
		if lease.TenantID == identity.ID {
			return true
		}
		for _, t := range identity.Tenancies {
			if t.LeaseID == lease.ID {
				return true
			}
		}
		return false
	default:
		return e.HasPropertyAccess(lease.PropertyID)
	}
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
