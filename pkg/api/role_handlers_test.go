package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func roleRows(id, name string, editable bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "name", "description", "is_editable", "created_at", "updated_at"}).
		AddRow(id, name, "", editable, now, now)
}

func emptyPermissionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "action", "subject", "description"})
}

func TestCreateRole(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectBegin()
	ts.mock.ExpectExec("INSERT INTO roles").
		WillReturnResult(sqlmock.NewResult(1, 1))
	ts.mock.ExpectExec("INSERT INTO role_permissions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	ts.mock.ExpectCommit()

	token := ts.token(t, "", "create:roles")
	rec := ts.do("POST", "/api/v1/admin/roles", token,
		`{"name": "auditor", "description": "Read-only access", "permission_ids": ["perm-1"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "auditor") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestCreateRoleReservedName(t *testing.T) {
	ts := newTestServer(t)

	token := ts.token(t, "", "create:roles")
	rec := ts.do("POST", "/api/v1/admin/roles", token,
		`{"name": "super_admin"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateDuplicateRole(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectBegin()
	ts.mock.ExpectExec("INSERT INTO roles").
		WillReturnError(&pq.Error{Code: "23505"})
	ts.mock.ExpectRollback()

	token := ts.token(t, "", "create:roles")
	rec := ts.do("POST", "/api/v1/admin/roles", token,
		`{"name": "auditor"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestUpdateProtectedRole(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery("FROM roles").
		WillReturnRows(roleRows("role-1", "super_admin", false))
	ts.mock.ExpectQuery("FROM permissions p").
		WillReturnRows(emptyPermissionRows())

	token := ts.token(t, "", "update:roles")
	rec := ts.do("PUT", "/api/v1/admin/roles/role-1", token,
		`{"description": "changed"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "system roles") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestDeleteProtectedRole(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery("FROM roles").
		WillReturnRows(roleRows("role-1", "admin", false))
	ts.mock.ExpectQuery("FROM permissions p").
		WillReturnRows(emptyPermissionRows())

	token := ts.token(t, "", "delete:roles")
	rec := ts.do("DELETE", "/api/v1/admin/roles/role-1", token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestDeleteEditableRole(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery("FROM roles").
		WillReturnRows(roleRows("role-1", "auditor", true))
	ts.mock.ExpectQuery("FROM permissions p").
		WillReturnRows(emptyPermissionRows())
	ts.mock.ExpectExec("DELETE FROM roles").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := ts.token(t, "", "delete:roles")
	rec := ts.do("DELETE", "/api/v1/admin/roles/role-1", token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListPermissions(t *testing.T) {
	ts := newTestServer(t)
	ts.mock.ExpectQuery("FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "subject", "description"}).
			AddRow("perm-1", "read", "users", "View the user list").
			AddRow("perm-2", "access", "services", "Access platform services"))

	token := ts.token(t, "", "read:permissions")
	rec := ts.do("GET", "/api/v1/admin/permissions", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "read") || !strings.Contains(rec.Body.String(), "services") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
