package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/beshoyehab/schoolbot/core/member"
)

func TestMemberLogin(t *testing.T) {
	app := setup(t)
	mbr := app.createMember(t, "Mina", member.RoleTeacher, nil, 100)

	login := func(tid int64, pwd string) *http.Response {
		t.Helper()
		body := marchallObj(t, map[string]interface{}{"telegram_id": tid, "password": pwd})
		req, rec := newRequest(http.MethodPost, "/v1/members/login", body)
		app.server.ServeHTTP(rec, req)
		return rec.Result()
	}

	res := login(mbr.TelegramID, "v3rySecr3t!")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: code = %d", res.StatusCode)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if data.Token == "" {
		t.Error("login returned an empty token")
	}

	if res = login(mbr.TelegramID, "wrong"); res.StatusCode != http.StatusBadRequest {
		t.Errorf("bad password: code = %d, want 400", res.StatusCode)
	}
	if res = login(999, "v3rySecr3t!"); res.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown member: code = %d, want 400", res.StatusCode)
	}
}

func TestMemberRegisterPermissions(t *testing.T) {
	app := setup(t)

	cls := app.createClass(t, "Grade 4")
	other := app.createClass(t, "Grade 5")
	leader := app.createMember(t, "Leader", member.RoleLeader, &cls.ID, 100)
	manager := app.createMember(t, "Manager", member.RoleManager, nil, 101)
	teacher := app.createMember(t, "Teacher", member.RoleTeacher, &cls.ID, 102)

	newStudent := func(name string, tid int64, classID int) []byte {
		return marchallObj(t, map[string]interface{}{
			"telegram_id": tid, "name": name, "role": member.RoleStudent, "class_id": classID,
		})
	}
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "teachers cannot manage the roster", method: http.MethodPost, path: "/v1/members/register",
			body: newStudent("Sara", 201, cls.ID), token: getToken(t, teacher),
			wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "leaders are scoped to their own class", method: http.MethodPost, path: "/v1/members/register",
			body: newStudent("Sara", 201, other.ID), token: getToken(t, leader),
			wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "leaders may add to their own class", method: http.MethodPost, path: "/v1/members/register",
			body: newStudent("Sara", 201, cls.ID), token: getToken(t, leader),
			wantCode: http.StatusCreated},
		{name: "managers may add anywhere", method: http.MethodPost, path: "/v1/members/register",
			body: newStudent("Omar", 202, other.ID), token: getToken(t, manager),
			wantCode: http.StatusCreated},
		{name: "duplicate telegram id rejected", method: http.MethodPost, path: "/v1/members/register",
			body: newStudent("Sara again", 201, cls.ID), token: getToken(t, manager),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"telegram_id": "a member with this telegram id already exists"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			if tt.wantData == nil {
				if rec.Code != tt.wantCode {
					t.Errorf("code = %d, want %d; body = %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestMemberRoleReassignment(t *testing.T) {
	app := setup(t)

	admin := app.createMember(t, "Admin", member.RoleAdmin, nil, 100)
	manager := app.createMember(t, "Manager", member.RoleManager, nil, 101)
	teacher := app.createMember(t, "Teacher", member.RoleTeacher, nil, 102)

	reassign := func(token string, targetID int, role member.Role) (int, string) {
		t.Helper()
		body := marchallObj(t, map[string]interface{}{"role": role})
		req, rec := newAuthRequest(http.MethodPut, fmt.Sprintf("/v1/members/%d/role", targetID), token, body)
		app.server.ServeHTTP(rec, req)
		return rec.Code, rec.Body.String()
	}

	// teachers assign nothing
	if code, _ := reassign(getToken(t, teacher), manager.ID, member.RoleStudent); code != http.StatusForbidden {
		t.Errorf("teacher reassigning: code = %d, want 403", code)
	}
	// managers promote up to Leader
	if code, body := reassign(getToken(t, manager), teacher.ID, member.RoleLeader); code != http.StatusOK {
		t.Errorf("manager promoting to leader: code = %d, body = %s", code, body)
	}
	// but not to Manager
	if code, _ := reassign(getToken(t, manager), teacher.ID, member.RoleManager); code != http.StatusBadRequest {
		t.Errorf("manager promoting to manager: code = %d, want 400", code)
	}
	// nor may they touch anyone above Leader
	if code, _ := reassign(getToken(t, manager), admin.ID, member.RoleLeader); code != http.StatusBadRequest {
		t.Errorf("manager demoting admin: code = %d, want 400", code)
	}
	// admins assign anything
	if code, body := reassign(getToken(t, admin), teacher.ID, member.RoleManager); code != http.StatusOK {
		t.Errorf("admin promoting to manager: code = %d, body = %s", code, body)
	}
}

func TestMemberRetrieve(t *testing.T) {
	app := setup(t)

	cls := app.createClass(t, "Grade 4")
	teacher := app.createMember(t, "Teacher", member.RoleTeacher, &cls.ID, 100)
	sara := app.createMember(t, "Sara", member.RoleStudent, &cls.ID, 201)
	omar := app.createMember(t, "Omar", member.RoleStudent, &cls.ID, 202)

	tests := []httpTest{
		{name: "members see themselves", method: http.MethodGet, path: fmt.Sprintf("/v1/members/%d", sara.ID),
			token: getToken(t, sara), wantCode: http.StatusOK, wantData: marchallObj(t, sara)},
		{name: "members cannot see each other", method: http.MethodGet, path: fmt.Sprintf("/v1/members/%d", omar.ID),
			token: getToken(t, sara), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"})},
		{name: "staff see everyone", method: http.MethodGet, path: fmt.Sprintf("/v1/members/%d", omar.ID),
			token: getToken(t, teacher), wantCode: http.StatusOK, wantData: marchallObj(t, omar)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
