// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーのロールを表す。
// ロールの比較は常に大文字小文字を区別しない。
type Role string

const (
	// RoleAdmin は全リソースにアクセス可能な管理者ロール。
	RoleAdmin Role = "admin"
	// RolePropertyManager は管理委託された物件にアクセス可能なロール。
	RolePropertyManager Role = "property_manager"
	// RoleLandlord は所有物件にアクセス可能なオーナーロール。
	RoleLandlord Role = "landlord"
	// RoleTenant は自身の賃借契約に紐づくリソースにアクセス可能な入居者ロール。
	RoleTenant Role = "tenant"
)

// Equal はロールを大文字小文字を区別せずに比較する。
func (r Role) Equal(other Role) bool {
	return strings.EqualFold(string(r), string(other))
}

// Tenancy は入居者と物件・ユニット・リース契約の紐付けを表す。
type Tenancy struct {
	PropertyID string `json:"propertyId"`
	UnitID     string `json:"unitId"`
	LeaseID    string `json:"leaseId"`
}

// Identity は認証済みユーザーを表す。
// ロールとロール固有の関連リスト（所有物件、管理物件、賃借契約）を保持する。
type Identity struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	Role               Role      `json:"role"`
	OwnedPropertyIDs   []string  `json:"ownedPropertyIds,omitempty"`
	ManagedPropertyIDs []string  `json:"managedPropertyIds,omitempty"`
	Tenancies          []Tenancy `json:"tenancies,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// HasRole はIdentityが指定ロールのいずれかを持つかを返す。
func (i *Identity) HasRole(roles ...Role) bool {
	if i == nil {
		return false
	}
	for _, r := range roles {
		if i.Role.Equal(r) {
			return true
		}
	}
	return false
}
