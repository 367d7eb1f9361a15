package devserver

import (
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/chintai/internal/model"
)

// account は開発用の認証アカウントを表す。
type account struct {
	Email    string
	Password string
	Identity model.Identity
}

// dataset は開発サーバーのインメモリデータ一式。
type dataset struct {
	accounts      []account
	properties    []model.Property
	units         []model.Unit
	leases        []model.Lease
	rents         []model.Rent
	notifications map[string][]model.Notification // ユーザーID -> 通知（新しい順）
}

// seedDataset は4ロール分のアカウントと相互に整合する物件・契約・請求・通知の
// フィクスチャを生成する。全アカウントのパスワードは "password"。
func seedDataset() *dataset {
	now := time.Now().UTC()

	adminID := uuid.New().String()
	managerID := uuid.New().String()
	landlordID := uuid.New().String()
	tenantID := uuid.New().String()

	prop1 := model.Property{
		ID:        uuid.New().String(),
		Name:      "サンライズコート目黒",
		Address:   "目黒区中町1-2-3",
		City:      "東京",
		OwnerID:   landlordID,
		ManagerID: managerID,
		CreatedAt: now.Add(-365 * 24 * time.Hour),
		UpdatedAt: now,
	}
	prop2 := model.Property{
		ID:        uuid.New().String(),
		Name:      "グリーンハイツ桜木",
		Address:   "横浜市桜木町4-5-6",
		City:      "横浜",
		OwnerID:   landlordID,
		CreatedAt: now.Add(-200 * 24 * time.Hour),
		UpdatedAt: now,
	}

	unit1 := model.Unit{ID: uuid.New().String(), PropertyID: prop1.ID, UnitNumber: "101"}
	unit2 := model.Unit{ID: uuid.New().String(), PropertyID: prop1.ID, UnitNumber: "102"}
	unit3 := model.Unit{ID: uuid.New().String(), PropertyID: prop2.ID, UnitNumber: "201"}
	prop1.UnitIDs = []string{unit1.ID, unit2.ID}
	prop2.UnitIDs = []string{unit3.ID}

	lease1 := model.Lease{
		ID:         uuid.New().String(),
		PropertyID: prop1.ID,
		UnitID:     unit1.ID,
		TenantID:   tenantID,
		Rent:       98000,
		StartDate:  now.Add(-180 * 24 * time.Hour),
		EndDate:    now.Add(185 * 24 * time.Hour),
		Status:     model.LeaseStatusActive,
	}
	lease2 := model.Lease{
		ID:         uuid.New().String(),
		PropertyID: prop2.ID,
		UnitID:     unit3.ID,
		TenantID:   uuid.New().String(), // フィクスチャ外の入居者
		Rent:       120000,
		StartDate:  now.Add(-30 * 24 * time.Hour),
		EndDate:    now.Add(335 * 24 * time.Hour),
		Status:     model.LeaseStatusActive,
	}

	paidAt := now.Add(-25 * 24 * time.Hour)
	rents := []model.Rent{
		{
			ID:         uuid.New().String(),
			LeaseID:    lease1.ID,
			PropertyID: prop1.ID,
			TenantID:   lease1.TenantID,
			Amount:     98000,
			DueDate:    now.Add(-28 * 24 * time.Hour),
			Status:     model.RentStatusPaid,
			PaidAt:     &paidAt,
		},
		{
			ID:         uuid.New().String(),
			LeaseID:    lease1.ID,
			PropertyID: prop1.ID,
			TenantID:   lease1.TenantID,
			Amount:     98000,
			DueDate:    now.Add(3 * 24 * time.Hour),
			Status:     model.RentStatusDue,
		},
		{
			ID:         uuid.New().String(),
			LeaseID:    lease2.ID,
			PropertyID: prop2.ID,
			TenantID:   lease2.TenantID,
			Amount:     120000,
			DueDate:    now.Add(-10 * 24 * time.Hour),
			Status:     model.RentStatusOverdue,
		},
	}

	accounts := []account{
		{
			Email:    "admin@example.com",
			Password: "password",
			Identity: model.Identity{
				ID: adminID, Email: "admin@example.com", Name: "管理者",
				Role: model.RoleAdmin, CreatedAt: now.Add(-400 * 24 * time.Hour),
			},
		},
		{
			Email:    "manager@example.com",
			Password: "password",
			Identity: model.Identity{
				ID: managerID, Email: "manager@example.com", Name: "管理会社 花子",
				Role:               model.RolePropertyManager,
				ManagedPropertyIDs: []string{prop1.ID},
				CreatedAt:          now.Add(-300 * 24 * time.Hour),
			},
		},
		{
			Email:    "landlord@example.com",
			Password: "password",
			Identity: model.Identity{
				ID: landlordID, Email: "landlord@example.com", Name: "オーナー 太郎",
				Role:             model.RoleLandlord,
				OwnedPropertyIDs: []string{prop1.ID, prop2.ID},
				CreatedAt:        now.Add(-400 * 24 * time.Hour),
			},
		},
		{
			Email:    "tenant@example.com",
			Password: "password",
			Identity: model.Identity{
				ID: tenantID, Email: "tenant@example.com", Name: "入居者 次郎",
				Role: model.RoleTenant,
				Tenancies: []model.Tenancy{
					{PropertyID: prop1.ID, UnitID: unit1.ID, LeaseID: lease1.ID},
				},
				CreatedAt: now.Add(-180 * 24 * time.Hour),
			},
		},
	}

	notifications := map[string][]model.Notification{
		tenantID: {
			{
				ID:        uuid.New().String(),
				Message:   "家賃のお支払い期日が近づいています",
				IsRead:    false,
				CreatedAt: now.Add(-2 * time.Hour),
			},
			{
				ID:        uuid.New().String(),
				Message:   "先月分のお支払いを確認しました",
				IsRead:    true,
				CreatedAt: now.Add(-26 * 24 * time.Hour),
			},
		},
		landlordID: {
			{
				ID:        uuid.New().String(),
				Message:   "グリーンハイツ桜木で家賃の滞納が発生しています",
				IsRead:    false,
				CreatedAt: now.Add(-9 * 24 * time.Hour),
			},
		},
		managerID: {
			{
				ID:        uuid.New().String(),
				Message:   "サンライズコート目黒の管理レポートが届いています",
				IsRead:    false,
				CreatedAt: now.Add(-1 * 24 * time.Hour),
			},
		},
	}

	return &dataset{
		accounts:      accounts,
		properties:    []model.Property{prop1, prop2},
		units:         []model.Unit{unit1, unit2, unit3},
		leases:        []model.Lease{lease1, lease2},
		rents:         rents,
		notifications: notifications,
	}
}

// findAccount はメールアドレスとパスワードの一致するアカウントを返す。
func (d *dataset) findAccount(email, password string) (*account, bool) {
	for i := range d.accounts {
		if d.accounts[i].Email == email && d.accounts[i].Password == password {
			return &d.accounts[i], true
		}
	}
	return nil, false
}

// findIdentity はユーザーIDに対応するIdentityを返す。
func (d *dataset) findIdentity(userID string) (*model.Identity, bool) {
	for i := range d.accounts {
		if d.accounts[i].Identity.ID == userID {
			return &d.accounts[i].Identity, true
		}
	}
	return nil, false
}
