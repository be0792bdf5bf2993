package api

import (
	"database/sql"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestBlockUserRevokesRefreshTokens(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectExec("UPDATE users SET is_blocked").
		WithArgs("target-1", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ts.mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs("target-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	token := ts.token(t, "", "block:users")
	rec := ts.do("POST", "/api/v1/admin/users/target-1/block", token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := ts.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUnblockUserKeepsRefreshTokens(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectExec("UPDATE users SET is_blocked").
		WithArgs("target-1", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := ts.token(t, "", "block:users")
	rec := ts.do("POST", "/api/v1/admin/users/target-1/unblock", token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if err := ts.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeactivateUserRevokesRefreshTokens(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectExec("UPDATE users SET is_active").
		WithArgs("target-1", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ts.mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs("target-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := ts.token(t, "", "update:users")
	rec := ts.do("POST", "/api/v1/admin/users/target-1/deactivate", token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := ts.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestActivateUser(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectExec("UPDATE users SET is_active").
		WithArgs("target-1", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := ts.token(t, "", "update:users")
	rec := ts.do("POST", "/api/v1/admin/users/target-1/activate", token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if err := ts.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestActivateUserRequiresPermission(t *testing.T) {
	ts := newTestServer(t)

	token := ts.token(t, "", "read:users")
	rec := ts.do("POST", "/api/v1/admin/users/target-1/activate", token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestVerifyUser(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectExec("UPDATE users SET is_verified").
		WithArgs("target-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := ts.token(t, "", "update:users")
	rec := ts.do("POST", "/api/v1/admin/users/target-1/verify", token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestVerifyMissingUser(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectExec("UPDATE users SET is_verified").
		WillReturnResult(sqlmock.NewResult(0, 0))

	token := ts.token(t, "", "update:users")
	rec := ts.do("POST", "/api/v1/admin/users/nope/verify", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBlockMissingUser(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectExec("UPDATE users SET is_blocked").
		WillReturnResult(sqlmock.NewResult(0, 0))

	token := ts.token(t, "", "block:users")
	rec := ts.do("POST", "/api/v1/admin/users/nope/block", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBlockUserRequiresPermission(t *testing.T) {
	ts := newTestServer(t)

	token := ts.token(t, "", "read:users")
	rec := ts.do("POST", "/api/v1/admin/users/target-1/block", token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRevokeUserSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs("target-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	token := ts.token(t, "", "block:users")
	rec := ts.do("DELETE", "/api/v1/admin/users/target-1/sessions", token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestAssignRole(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now()
	ts.mock.ExpectQuery("FROM roles").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "is_editable", "created_at", "updated_at"}).
			AddRow("role-1", "auditor", "Read-only access", true, now, now))
	ts.mock.ExpectQuery("FROM permissions p").
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "subject", "description"}))
	ts.mock.ExpectExec("INSERT INTO user_roles").
		WithArgs("target-1", "role-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := ts.token(t, "", "assign:permissions")
	rec := ts.do("POST", "/api/v1/admin/users/target-1/roles", token,
		`{"role_id": "role-1"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAssignRoleValidation(t *testing.T) {
	ts := newTestServer(t)

	token := ts.token(t, "", "assign:permissions")
	rec := ts.do("POST", "/api/v1/admin/users/target-1/roles", token, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAssignUnknownRole(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery("FROM roles").
		WillReturnError(sql.ErrNoRows)

	token := ts.token(t, "", "assign:permissions")
	rec := ts.do("POST", "/api/v1/admin/users/target-1/roles", token,
		`{"role_id": "missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListUsers(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now()
	rows := sqlmock.NewRows(userColumns).
		AddRow("user-1", "alice@example.com", "h1", "x", "Alice", "Smith",
			true, true, false, int64(3), nil, now, now).
		AddRow("user-2", "bob@example.com", "h2", "x", "Bob", "Jones",
			false, true, false, int64(0), nil, now, now)
	ts.mock.ExpectQuery("SELECT (.+) FROM users ORDER BY created_at").
		WillReturnRows(rows)
	ts.mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	token := ts.token(t, "", "read:users")
	rec := ts.do("GET", "/api/v1/admin/users?limit=10", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "alice@example.com") || !strings.Contains(body, "bob@example.com") {
		t.Errorf("expected both users in %s", body)
	}
	if !strings.Contains(body, `"total":2`) {
		t.Errorf("expected total 2 in %s", body)
	}
}
