// Package model はドメインモデルを定義する。
package model

import "time"

// Property は管理対象の物件を表す。
type Property struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	OwnerID   string    `json:"ownerId"`
	ManagerID string    `json:"managerId,omitempty"`
	UnitIDs   []string  `json:"unitIds,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Unit は物件内の入居者が居住可能な区画を表す。
type Unit struct {
	ID         string `json:"id"`
	PropertyID string `json:"propertyId"`
	UnitNumber string `json:"unitNumber"`
}

// LeaseStatus はリース契約の状態を表す。
type LeaseStatus string

const (
	// LeaseStatusActive は有効なリース契約を表す。
	LeaseStatusActive LeaseStatus = "active"
	// LeaseStatusPending は開始前のリース契約を表す。
	LeaseStatusPending LeaseStatus = "pending"
	// LeaseStatusEnded は終了済みのリース契約を表す。
	LeaseStatusEnded LeaseStatus = "ended"
)

// Lease は物件ユニットの賃貸借契約を表す。
type Lease struct {
	ID         string      `json:"id"`
	PropertyID string      `json:"propertyId"`
	UnitID     string      `json:"unitId"`
	TenantID   string      `json:"tenantId"`
	Rent       int64       `json:"rent"`
	StartDate  time.Time   `json:"startDate"`
	EndDate    time.Time   `json:"endDate"`
	Status     LeaseStatus `json:"status"`
}

// RentStatus は家賃請求の状態を表す。
type RentStatus string

const (
	// RentStatusDue は支払期日前の請求を表す。
	RentStatusDue RentStatus = "due"
	// RentStatusPaid は支払済みの請求を表す。
	RentStatusPaid RentStatus = "paid"
	// RentStatusOverdue は支払期日超過の請求を表す。
	RentStatusOverdue RentStatus = "overdue"
)

// Rent はリース契約に紐づく家賃請求を表す。
type Rent struct {
	ID         string     `json:"id"`
	LeaseID    string     `json:"leaseId"`
	PropertyID string     `json:"propertyId"`
	TenantID   string     `json:"tenantId"`
	Amount     int64      `json:"amount"`
	DueDate    time.Time  `json:"dueDate"`
	Status     RentStatus `json:"status"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
}
