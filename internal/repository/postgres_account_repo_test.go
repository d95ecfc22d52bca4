package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/idgate/internal/model"
)

var accountColumnNames = []string{
	"id", "email", "password_hash", "external_id", "first_name", "last_name",
	"display_name", "avatar_url", "role", "is_admin", "is_active",
	"created_at", "updated_at", "last_login_at",
}

func newMockAccountRepo(t *testing.T) (*PostgresAccountRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresAccountRepo(db), mock
}

func TestPostgresAccountRepo_FindByID(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("found with nullable columns", func(t *testing.T) {
		rows := sqlmock.NewRows(accountColumnNames).
			AddRow("acc-1", "user@example.com", nil, "oid-1", "Taro", "Yamada",
				"Taro Yamada", "", "user", false, true, now, now, nil)
		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1`).
			WithArgs("acc-1").
			WillReturnRows(rows)

		a, err := repo.FindByID(ctx, "acc-1")
		require.NoError(t, err)
		require.NotNil(t, a)
		assert.Equal(t, "acc-1", a.ID)
		assert.Equal(t, "", a.PasswordHash)
		assert.Equal(t, "oid-1", a.ExternalID)
		assert.Equal(t, model.RoleUser, a.Role)
		assert.Nil(t, a.LastLoginAt)
		assert.False(t, a.HasPassword())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found returns nil", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		a, err := repo.FindByID(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, a)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("storage error is wrapped", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1`).
			WithArgs("acc-1").
			WillReturnError(sql.ErrConnDone)

		_, err := repo.FindByID(ctx, "acc-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, sql.ErrConnDone))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAccountRepo_FindByEmail_Normalizes(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows(accountColumnNames).
		AddRow("acc-1", "user@example.com", "$2a$hash", nil, "", "",
			"", "", "admin", true, true, now, now, now)
	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("user@example.com").
		WillReturnRows(rows)

	a, err := repo.FindByEmail(context.Background(), "  User@Example.COM ")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.IsAdministrator())
	require.NotNil(t, a.LastLoginAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountRepo_FindByExternalID_EmptySkipsQuery(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	a, err := repo.FindByExternalID(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, a)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountRepo_Create(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	ctx := context.Background()
	now := time.Now()

	t.Run("success keeps admin flag in sync with role", func(t *testing.T) {
		rows := sqlmock.NewRows(accountColumnNames).
			AddRow("acc-2", "new@example.com", nil, "oid-2", "Hanako", "", "Hanako", "",
				"user", false, true, now, now, nil)
		mock.ExpectQuery(`INSERT INTO accounts (.+) RETURNING`).
			WithArgs("acc-2", "new@example.com", nil, "oid-2", "Hanako", "", "Hanako", "",
				"user", false, true).
			WillReturnRows(rows)

		created, err := repo.Create(ctx, &model.Account{
			ID:          "acc-2",
			Email:       "New@Example.com",
			ExternalID:  "oid-2",
			FirstName:   "Hanako",
			DisplayName: "Hanako",
			IsActive:    true,
		})
		require.NoError(t, err)
		assert.Equal(t, "acc-2", created.ID)
		assert.Equal(t, model.RoleUser, created.Role)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to ErrDuplicate", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO accounts (.+) RETURNING`).
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := repo.Create(ctx, &model.Account{ID: "acc-3", Email: "dup@example.com", ExternalID: "oid-3"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDuplicate))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAccountRepo_Update_PartialFields(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	ctx := context.Background()
	now := time.Now()

	role := model.RoleAdmin
	isAdmin := true
	rows := sqlmock.NewRows(accountColumnNames).
		AddRow("acc-1", "user@example.com", nil, "oid-1", "Taro", "", "", "",
			"admin", true, true, now, now, nil)

	// nilのフィールドはNULLとして渡され、COALESCEで既存値が維持される
	mock.ExpectQuery(`UPDATE accounts SET (.+) WHERE id = \$1 RETURNING`).
		WithArgs("acc-1", nil, nil, nil, nil, nil, nil, nil, "admin", true, nil).
		WillReturnRows(rows)

	updated, err := repo.Update(ctx, "acc-1", model.AccountPatch{Role: &role, IsAdmin: &isAdmin})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, updated.Role)
	assert.True(t, updated.IsAdmin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountRepo_Update_NotFound(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectQuery(`UPDATE accounts SET`).WillReturnError(sql.ErrNoRows)

	updated, err := repo.Update(context.Background(), "missing", model.AccountPatch{})
	require.NoError(t, err)
	assert.Nil(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountRepo_UpdateLastLogin_UsesGreatest(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows(accountColumnNames).
		AddRow("acc-1", "user@example.com", "$2a$hash", nil, "", "", "", "",
			"user", false, true, at, at, at)
	mock.ExpectQuery(`UPDATE accounts SET last_login_at = GREATEST\(last_login_at, \$2\)`).
		WithArgs("acc-1", at).
		WillReturnRows(rows)

	a, err := repo.UpdateLastLogin(context.Background(), "acc-1", at)
	require.NoError(t, err)
	require.NotNil(t, a.LastLoginAt)
	assert.True(t, a.LastLoginAt.Equal(at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccountRepo_List(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	now := time.Now()

	t.Run("filters and pagination", func(t *testing.T) {
		active := true
		mock.ExpectQuery(`SELECT count\(\*\) FROM accounts WHERE \(email ILIKE \$1 (.+)\) AND split_part\(email, '@', 2\) ILIKE \$2 AND role = \$3 AND is_active = \$4`).
			WithArgs("%tar\\%o%", "%example.com%", "staff", true).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE (.+) ORDER BY email ASC, id ASC LIMIT \$5 OFFSET \$6`).
			WithArgs("%tar\\%o%", "%example.com%", "staff", true, 2, 2).
			WillReturnRows(sqlmock.NewRows(accountColumnNames).
				AddRow("acc-3", "taro@example.com", "$2a$hash", nil, "Taro", "", "", "",
					"staff", false, true, now, now, nil))

		page, err := repo.List(context.Background(), model.AccountQuery{
			Page:      2,
			Limit:     2,
			Keyword:   "tar%o",
			Domain:    "Example.com",
			Role:      model.RoleStaff,
			IsActive:  &active,
			SortBy:    "email",
			SortOrder: "asc",
		})
		require.NoError(t, err)
		require.Len(t, page.Accounts, 1)
		assert.Equal(t, 3, page.Pagination.Total)
		assert.Equal(t, 2, page.Pagination.TotalPages)
		assert.False(t, page.Pagination.HasNextPage)
		assert.True(t, page.Pagination.HasPrevPage)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown sort column falls back to created_at", func(t *testing.T) {
		mock.ExpectQuery(`SELECT count\(\*\) FROM accounts$`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`ORDER BY created_at DESC, id ASC LIMIT \$1 OFFSET \$2`).
			WithArgs(model.DefaultPageLimit, 0).
			WillReturnRows(sqlmock.NewRows(accountColumnNames))

		page, err := repo.List(context.Background(), model.AccountQuery{SortBy: "password_hash; DROP TABLE accounts"})
		require.NoError(t, err)
		assert.Empty(t, page.Accounts)
		assert.Equal(t, 1, page.Pagination.Page)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
