package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/cake_billing_server/internal/model"
	"github.com/qs3c/cake_billing_server/internal/testutil"
)

func TestCompanyRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCompanyRepository(db)
	created := testutil.TestCompany(t, db, testutil.WithEmployeeCount(4))

	found, err := repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, found.Name)
	assert.Len(t, found.Employees, 4)
	assert.Equal(t, model.SubscriptionPendingPayment, found.SubscriptionStatus)

	_, err = repo.GetByID(99999)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestCompanyRepository_GetByOrderID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCompanyRepository(db)
	created := testutil.TestCompany(t, db, testutil.WithCompanyOrderID("ORD-ABC"))

	found, err := repo.GetByOrderID("ORD-ABC")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestCompanyRepository_Exists(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCompanyRepository(db)
	created := testutil.TestCompany(t, db,
		testutil.WithCompanyEmail("hr@acme.com"),
		testutil.WithPhone("5551234"),
	)

	exists, err := repo.ExistsByEmail("hr@acme.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByPhone("5551234")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByName(created.Name)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByEmail("other@acme.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCompanyRepository_UniqueEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCompanyRepository(db)
	testutil.TestCompany(t, db, testutil.WithCompanyEmail("hr@acme.com"))

	err := repo.Create(&model.Company{Name: "Dup", Email: "hr@acme.com", Phone: "7654321"})
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
}

func TestCompanyRepository_Update(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCompanyRepository(db)
	company := testutil.TestCompany(t, db)

	company.SubscriptionStatus = model.SubscriptionActive
	company.Employees = testutil.Employees(12)
	require.NoError(t, repo.Update(company))

	found, err := repo.GetByID(company.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionActive, found.SubscriptionStatus)
	assert.Len(t, found.Employees, 12)
}

func TestCompanyRepository_ListDueAndCounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewCompanyRepository(db)
	now := time.Now().UTC().Truncate(time.Second)

	older := testutil.TestCompany(t, db,
		testutil.WithSubscriptionStatus(model.SubscriptionActive),
		testutil.WithNextBillingDate(now.Add(-48*time.Hour)),
	)
	newer := testutil.TestCompany(t, db,
		testutil.WithSubscriptionStatus(model.SubscriptionActive),
		testutil.WithNextBillingDate(now.Add(-time.Hour)),
	)
	// 未到期
	testutil.TestCompany(t, db,
		testutil.WithSubscriptionStatus(model.SubscriptionActive),
		testutil.WithNextBillingDate(now.Add(24*time.Hour)),
	)
	// 到期但已暂停
	testutil.TestCompany(t, db,
		testutil.WithSubscriptionStatus(model.SubscriptionSuspended),
		testutil.WithNextBillingDate(now.Add(-time.Hour)),
	)

	due, err := repo.ListDue(now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, older.ID, due[0].ID)
	assert.Equal(t, newer.ID, due[1].ID)

	limited, err := repo.ListDue(now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	count, err := repo.CountDue(now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	active, err := repo.CountByStatus(model.SubscriptionActive)
	require.NoError(t, err)
	assert.Equal(t, int64(3), active)

	suspended, err := repo.CountByStatus(model.SubscriptionSuspended)
	require.NoError(t, err)
	assert.Equal(t, int64(1), suspended)
}
