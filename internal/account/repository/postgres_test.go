package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"transitwatch/backend/internal/account/domain"
)

var accountRowColumns = []string{"id", "email", "name", "password_hash", "role", "active", "deleted_at",
	"created_at", "updated_at", "last_login_at", "password_changed_at", "must_change_password",
	"rotation_exempt", "failed_login_attempts", "locked_until"}

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestGetByEmail_NormalizesAndScans(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("from accounts where lower\\(email\\) = \\$1 and deleted_at is null").
		WithArgs("rider@transit.test").
		WillReturnRows(sqlmock.NewRows(accountRowColumns).
			AddRow(int64(3), "rider@transit.test", "Rider", "hash", "citizen", true, nil, now, now, nil, now, false, false, 2, nil))

	a, err := repo.GetByEmail(context.Background(), "  Rider@Transit.test ")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if a == nil || a.ID != 3 || a.FailedLoginAttempts != 2 {
		t.Fatalf("GetByEmail = %+v", a)
	}
	if a.PasswordChangedAt == nil || a.LastLoginAt != nil || a.LockedUntil != nil {
		t.Errorf("nullable times not mapped: %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("from accounts where id = \\$1").WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(accountRowColumns))

	a, err := repo.GetByID(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a != nil {
		t.Errorf("GetByID = %+v, want nil", a)
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("insert into accounts").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &domain.Account{Email: "A@b.c", PasswordHash: "h", Active: true})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("Create duplicate: want ErrEmailTaken, got %v", err)
	}
}

func TestCreate_ReturnsID(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("insert into accounts").
		WithArgs("a@b.c", "A", "h", "operator", true, true, false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, err := repo.Create(context.Background(), &domain.Account{Email: "A@b.c", Name: "A", PasswordHash: "h", Role: "operator", Active: true, MustChangePassword: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != 11 {
		t.Errorf("id = %d, want 11", id)
	}
}

func TestRecordLoginFailure_LocksAtThreshold(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := domain.LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute}

	mock.ExpectBegin()
	mock.ExpectQuery("select failed_login_attempts, locked_until\\s+from accounts where id = \\$1 and deleted_at is null\\s+for update").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(4, nil))
	mock.ExpectExec("update accounts set failed_login_attempts = \\$2, locked_until = \\$3").
		WithArgs(int64(1), 5, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.RecordLoginFailure(context.Background(), 1, policy, now)
	if err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	if !res.LockedNow || res.Attempts != 5 {
		t.Errorf("result = %+v, want locked at 5", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecordLoginFailure_AlreadyLockedDoesNotIncrement(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	until := now.Add(10 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(5, until))
	mock.ExpectCommit()

	res, err := repo.RecordLoginFailure(context.Background(), 1, domain.LockoutPolicy{Threshold: 5, Duration: time.Minute}, now)
	if err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	if !res.Locked || res.LockedNow || res.Attempts != 5 {
		t.Errorf("result = %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecordLoginFailure_MissingAccount(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}))
	mock.ExpectRollback()

	_, err := repo.RecordLoginFailure(context.Background(), 2, domain.LockoutPolicy{Threshold: 5}, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRecordLoginSuccess_ResetsCounters(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("select locked_until from accounts where id = \\$1 and deleted_at is null\\s+for update").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"locked_until"}).AddRow(now.Add(-time.Minute)))
	mock.ExpectExec("set failed_login_attempts = 0, locked_until = null, last_login_at = \\$2").
		WithArgs(int64(1), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.RecordLoginSuccess(context.Background(), 1, now); err != nil {
		t.Fatalf("RecordLoginSuccess: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecordLoginSuccess_LockedMeanwhile(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"locked_until"}).AddRow(now.Add(15 * time.Minute)))
	mock.ExpectRollback()

	err := repo.RecordLoginSuccess(context.Background(), 1, now)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("want ErrLocked, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecordLoginSuccess_MissingAccount(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"locked_until"}))
	mock.ExpectRollback()

	if err := repo.RecordLoginSuccess(context.Background(), 2, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdatePassword_ClearsLockout(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectExec("must_change_password = false,\\s+failed_login_attempts = 0, locked_until = null").
		WithArgs(int64(1), "h", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdatePassword(context.Background(), 1, "h", now); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
}

func TestDiscard(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"removed", 1, nil},
		{"kept", 0, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMock(t)
			mock.ExpectExec("delete from accounts\\s+where id = \\$1 and last_login_at is null").
				WithArgs(int64(7)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			if err := repo.Discard(context.Background(), 7); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdatePassword_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("set password_hash = \\$2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePassword(context.Background(), 1, "h", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
