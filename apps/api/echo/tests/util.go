package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/beshoyehab/schoolbot/apps/api/echo"
	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/attendance"
	"github.com/beshoyehab/schoolbot/core/class"
	"github.com/beshoyehab/schoolbot/core/member"
	broadcastsvc "github.com/beshoyehab/schoolbot/services/broadcast"
	dummydb "github.com/beshoyehab/schoolbot/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server *Server
	conf   *core.Config
	mbrSvc *member.Service
	clsSvc *class.Service
	attSvc *attendance.Service
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := &core.Config{}
	conf.TestMode = true
	conf.Env = "TEST"
	conf.AppName = "SchoolBot"
	conf.SecretKey = "secret"
	conf.DefaultFromEmail = mail.Address{Address: "noreply@test.local"}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour
	conf.ClassDay = time.Saturday
	conf.MaxNoteLen = 100
	conf.SessionTimeout = time.Hour
	conf.ConfirmTTL = 5 * time.Minute
	conf.StreakLookback = 20
	conf.DefaultLanguage = "ar"

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("opening dummy db: %v", err)
	}

	// set up services
	mbrSvc := member.NewService(nil, dummydb.NewMemberRepository(db), conf)
	clsSvc := class.NewService(nil, dummydb.NewClassRepository(db), mbrSvc)
	attSvc := attendance.NewService(nil, dummydb.NewAttendanceRepository(db), conf)
	workspaces := attendance.NewManager(conf)
	confirmer := attendance.NewConfirmer(attSvc, workspaces, clsSvc, conf)
	broadcastSvc := broadcastsvc.NewConsoleServiceMock(conf)

	// set up validation
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	member.InitValidators(validate, translator)

	// set up server
	server := NewServer(ServerDeps{
		Conf:         conf,
		Logger:       testLogger{t: t},
		MemberSvc:    mbrSvc,
		ClassSvc:     clsSvc,
		AttSvc:       attSvc,
		Workspaces:   workspaces,
		Confirmer:    confirmer,
		BroadcastSvc: broadcastSvc,
		Validate:     validate,
		Translator:   translator,
	})

	return &testApp{
		server: server,
		conf:   conf,
		mbrSvc: mbrSvc,
		clsSvc: clsSvc,
		attSvc: attSvc,
	}
}

func (app *testApp) createClass(t *testing.T, name string) class.Class {
	t.Helper()
	cls, err := app.clsSvc.Create(context.Background(), class.NewClass{Name: name})
	if err != nil {
		t.Fatalf("creating class %q: %v", name, err)
	}
	return cls
}

func (app *testApp) createMember(t *testing.T, name string, role member.Role, classID *int, tid int64) member.Member {
	t.Helper()
	mbr, err := app.mbrSvc.Create(context.Background(), member.NewMember{
		TelegramID: tid,
		Name:       name,
		Role:       role,
		ClassID:    classID,
		Password:   "v3rySecr3t!",
	})
	if err != nil {
		t.Fatalf("creating member %q: %v", name, err)
	}
	return mbr
}

type testLogger struct {
	t *testing.T
}

func (l testLogger) Enable(bool) {}

func (l testLogger) Debug(msg string, args ...interface{}) { l.log(msg, args) }
func (l testLogger) Info(msg string, args ...interface{})  { l.log(msg, args) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.log(msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.log(msg, args) }
func (l testLogger) Fatal(msg string, args ...interface{}) { l.t.Fatal(msg, args) }

func (l testLogger) log(msg string, args []interface{}) {
	l.t.Logf("%s %v", msg, args)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, mbr member.Member) string {
	claims := GetMemberClaims(mbr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
