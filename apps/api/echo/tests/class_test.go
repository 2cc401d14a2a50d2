package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/beshoyehab/schoolbot/core/class"
	"github.com/beshoyehab/schoolbot/core/member"
)

func TestClassCRUD(t *testing.T) {
	app := setup(t)

	manager := app.createMember(t, "Manager", member.RoleManager, nil, 100)
	teacher := app.createMember(t, "Teacher", member.RoleTeacher, nil, 101)
	mgrToken := getToken(t, manager)

	// teachers cannot create classes
	body := marchallObj(t, map[string]string{"name": "Grade 4"})
	req, rec := newAuthRequest(http.MethodPost, "/v1/classes", getToken(t, teacher), body)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("teacher create: code = %d, want 403", rec.Code)
	}

	// managers can
	req, rec = newAuthRequest(http.MethodPost, "/v1/classes", mgrToken, body)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var cls class.Class
	if err := json.Unmarshal(rec.Body.Bytes(), &cls); err != nil {
		t.Fatalf("decoding class: %v", err)
	}

	// names are unique
	req, rec = newAuthRequest(http.MethodPost, "/v1/classes", mgrToken, body)
	app.server.ServeHTTP(rec, req)
	tt := httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"name": "a class with this name already exists"}),
	}
	checkCodeAndData(t, tt, rec)

	// rename
	req, rec = newAuthRequest(http.MethodPut, fmt.Sprintf("/v1/classes/%d", cls.ID), mgrToken,
		marchallObj(t, map[string]string{"name": "Grade 5"}))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var updated class.Class
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding class: %v", err)
	}
	if updated.Name != "Grade 5" {
		t.Errorf("update name = %q, want %q", updated.Name, "Grade 5")
	}

	// anyone authed may list
	req, rec = newAuthRequest(http.MethodGet, "/v1/classes", getToken(t, teacher))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: code = %d", rec.Code)
	}
	var classes []class.Class
	if err := json.Unmarshal(rec.Body.Bytes(), &classes); err != nil {
		t.Fatalf("decoding classes: %v", err)
	}
	if len(classes) != 1 {
		t.Errorf("list returned %d classes, want 1", len(classes))
	}

	// delete
	req, rec = newAuthRequest(http.MethodDelete, fmt.Sprintf("/v1/classes/%d", cls.ID), mgrToken)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: code = %d, body = %s", rec.Code, rec.Body.String())
	}
	req, rec = newAuthRequest(http.MethodGet, fmt.Sprintf("/v1/classes/%d", cls.ID), mgrToken)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: code = %d, want 404", rec.Code)
	}
}

func TestClassRoster(t *testing.T) {
	app := setup(t)

	cls := app.createClass(t, "Grade 4")
	teacher := app.createMember(t, "Teacher", member.RoleTeacher, &cls.ID, 100)
	sara := app.createMember(t, "Sara", member.RoleStudent, &cls.ID, 201)
	app.createMember(t, "Elsewhere", member.RoleStudent, nil, 202)

	req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/v1/classes/%d/roster", cls.ID), getToken(t, teacher))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("roster: code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var roster []member.Member
	if err := json.Unmarshal(rec.Body.Bytes(), &roster); err != nil {
		t.Fatalf("decoding roster: %v", err)
	}
	if len(roster) != 1 || roster[0].ID != sara.ID {
		t.Errorf("roster = %+v, want just %q", roster, sara.Name)
	}

	// the teacher themselves is staff, not on the student roster
	for _, mbr := range roster {
		if mbr.ID == teacher.ID {
			t.Errorf("roster contains the teacher")
		}
	}
}
