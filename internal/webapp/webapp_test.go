package webapp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/seantiz/showcase/internal/delegate"
	"github.com/seantiz/showcase/internal/engine"
	"github.com/seantiz/showcase/internal/model"
	"github.com/seantiz/showcase/internal/processes"
	"github.com/seantiz/showcase/internal/store"
)

type testApp struct {
	eng     *engine.ProcessEngine
	users   *Users
	ctx     *Context
	handler http.Handler
}

// newTestApp initializes the web applications over an in-memory engine with
// the loan approval process deployed and the user demo/demo.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	reg := delegate.NewRegistry()
	reg.Register(delegate.PrintTaskName, delegate.NewPrintTask(io.Discard))

	eng, err := engine.New(context.Background(), engine.Configuration{
		ProcessEngineName:   "default",
		Store:               s,
		DeploymentResources: []string{processes.LoanApproval},
		Delegates:           reg,
		Logger:              logger,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	users := NewUsers(s)
	users.cost = bcrypt.MinCost

	c := NewContext(logger)
	if err := Initialize(c, Deps{Engines: NewEngines(eng), Users: users, Logger: logger}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "fallback")
	})
	return &testApp{eng: eng, users: users, ctx: c, handler: c.Handler(fallback)}
}

func (a *testApp) createDemoUser(t *testing.T) {
	t.Helper()
	if _, err := a.users.Create(context.Background(), NewUser{ID: "demo", Password: "demo"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

// do serves one request, authenticated as demo/demo when auth is set.
func (a *testApp) do(t *testing.T, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if auth {
		req.SetBasicAuth("demo", "demo")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestInitializeRegistersEverythingOnce(t *testing.T) {
	app := newTestApp(t)

	for _, name := range []string{
		AuthenticationFilterName, SecurityFilterName, CockpitPluginsFilterName,
		AdminPluginsFilterName, EnginesFilterName, CacheControlFilterName,
	} {
		if app.ctx.FilterRegistration(name) == nil {
			t.Errorf("filter %q not registered", name)
		}
	}
	for _, name := range []string{CockpitAPIName, AdminAPIName, EngineAPIName, AppsName} {
		if app.ctx.ServletRegistration(name) == nil {
			t.Errorf("servlet %q not registered", name)
		}
	}
	if got := app.ctx.ServletRegistration(EngineAPIName).InitParams["mapping"]; got != "/api/engine" {
		t.Errorf("engine api mapping = %q", got)
	}

	before := len(app.ctx.filters)
	if err := Initialize(app.ctx, Deps{Engines: NewEngines(app.eng), Users: app.users}); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if len(app.ctx.filters) != before || len(app.ctx.servlets) != 4 {
		t.Errorf("second Initialize registered more: %d filters, %d servlets", len(app.ctx.filters), len(app.ctx.servlets))
	}
	if got := app.ctx.Plugins().Plugins("cockpit"); len(got) != 2 {
		t.Errorf("cockpit plugins = %d, want 2", len(got))
	}
}

func TestEngineListIsPublic(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/api/engine/engine", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decode[[]map[string]string](t, rec)
	if len(got) != 1 || got[0]["name"] != "default" {
		t.Errorf("engines = %v", got)
	}
	if rec.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", rec.Header().Get("Cache-Control"))
	}
}

func TestProtectedAPIsRequireAuthentication(t *testing.T) {
	app := newTestApp(t)
	app.createDemoUser(t)

	for _, path := range []string{
		"/api/engine/engine/default/process-definition",
		"/api/cockpit/default/stats",
		"/api/admin/default/user",
	} {
		rec := app.do(t, http.MethodGet, path, "", false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s anonymous = %d, want 401", path, rec.Code)
		}
		if rec := app.do(t, http.MethodGet, path, "", true); rec.Code != http.StatusOK {
			t.Errorf("GET %s authenticated = %d, body %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestUnknownEngine(t *testing.T) {
	app := newTestApp(t)
	app.createDemoUser(t)

	if rec := app.do(t, http.MethodGet, "/api/engine/engine/other/task", "", true); rec.Code != http.StatusNotFound {
		t.Errorf("engine api status = %d, want 404", rec.Code)
	}
	if rec := app.do(t, http.MethodGet, "/app/cockpit/other/", "", false); rec.Code != http.StatusNotFound {
		t.Errorf("app status = %d, want 404", rec.Code)
	}
}

func TestLoanApprovalOverREST(t *testing.T) {
	app := newTestApp(t)
	app.createDemoUser(t)
	base := "/api/engine/engine/default"

	rec := app.do(t, http.MethodPost, base+"/process-definition/key/loanApproval/start",
		`{"businessKey":"loan-1","variables":{"amount":{"type":"Integer","value":5000}}}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d, body %s", rec.Code, rec.Body.String())
	}
	inst := decode[model.ProcessInstance](t, rec)
	if inst.ActivityID != "approveLoan" || inst.BusinessKey != "loan-1" {
		t.Errorf("instance = %+v", inst)
	}

	rec = app.do(t, http.MethodGet, base+"/process-instance/count?processDefinitionKey=loanApproval", "", true)
	if got := decode[map[string]int](t, rec); got["count"] != 1 {
		t.Errorf("count = %v", got)
	}

	rec = app.do(t, http.MethodGet, base+"/process-instance/"+inst.ID+"/variables", "", true)
	vars := decode[model.Variables](t, rec)
	if vars["amount"].Type != model.TypeInteger || vars["amount"].Value != float64(5000) {
		t.Errorf("variables = %+v", vars)
	}

	rec = app.do(t, http.MethodGet, base+"/task?processInstanceId="+inst.ID+"&candidateGroup=management", "", true)
	tasks := decode[[]model.Task](t, rec)
	if len(tasks) != 1 {
		t.Fatalf("tasks = %+v", tasks)
	}

	if rec := app.do(t, http.MethodPost, base+"/task/"+tasks[0].ID+"/claim", `{}`, true); rec.Code != http.StatusNoContent {
		t.Fatalf("claim = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = app.do(t, http.MethodGet, base+"/task/"+tasks[0].ID, "", true)
	if got := decode[model.Task](t, rec); got.Assignee != "demo" {
		t.Errorf("assignee = %q, want demo", got.Assignee)
	}
	if rec := app.do(t, http.MethodPost, base+"/task/"+tasks[0].ID+"/claim", `{"userId":"other"}`, true); rec.Code != http.StatusConflict {
		t.Errorf("claim by other = %d, want 409", rec.Code)
	}

	rec = app.do(t, http.MethodPost, base+"/task/"+tasks[0].ID+"/complete",
		`{"variables":{"approved":{"type":"Boolean","value":true}}}`, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("complete = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = app.do(t, http.MethodGet, base+"/process-instance/"+inst.ID, "", true)
	if got := decode[model.ProcessInstance](t, rec); got.State != model.StateCompleted {
		t.Errorf("state = %q, want completed", got.State)
	}

	rec = app.do(t, http.MethodGet, base+"/history/activity-instance?processInstanceId="+inst.ID, "", true)
	if acts := decode[[]model.ActivityInstance](t, rec); len(acts) != 4 {
		t.Errorf("activity instances = %d, want 4", len(acts))
	}
	rec = app.do(t, http.MethodGet, base+"/history/process-instance", "", true)
	if finished := decode[[]model.ProcessInstance](t, rec); len(finished) != 1 {
		t.Errorf("finished instances = %d, want 1", len(finished))
	}

	if rec := app.do(t, http.MethodPost, base+"/process-instance/"+inst.ID+"/variables",
		`{"modifications":{"x":{"value":1}}}`, true); rec.Code != http.StatusConflict {
		t.Errorf("modify ended instance = %d, want 409", rec.Code)
	}
}

func TestEngineAPIErrors(t *testing.T) {
	app := newTestApp(t)
	app.createDemoUser(t)
	base := "/api/engine/engine/default"

	tests := []struct {
		name         string
		method, path string
		body         string
		want         int
	}{
		{"unknown key", http.MethodPost, base + "/process-definition/key/nope/start", `{}`, http.StatusNotFound},
		{"schema violation", http.MethodPost, base + "/process-definition/key/loanApproval/start", `{"variables":{"a":{"type":"Date","value":1}}}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, base + "/process-definition/key/loanApproval/start", `{"vars":{}}`, http.StatusBadRequest},
		{"type mismatch", http.MethodPost, base + "/process-definition/key/loanApproval/start", `{"variables":{"a":{"type":"Integer","value":"x"}}}`, http.StatusBadRequest},
		{"malformed", http.MethodPost, base + "/process-definition/key/loanApproval/start", `{`, http.StatusBadRequest},
		{"unknown instance", http.MethodGet, base + "/process-instance/missing", "", http.StatusNotFound},
		{"delete unknown instance", http.MethodDelete, base + "/process-instance/missing", "", http.StatusNotFound},
		{"unknown task", http.MethodGet, base + "/task/missing", "", http.StatusNotFound},
		{"unknown job", http.MethodPost, base + "/job/missing/execute", "", http.StatusNotFound},
		{"retries missing", http.MethodPut, base + "/job/missing/retries", `{}`, http.StatusBadRequest},
		{"negative retries", http.MethodPut, base + "/job/missing/retries", `{"retries":-1}`, http.StatusBadRequest},
		{"history without instance", http.MethodGet, base + "/history/activity-instance", "", http.StatusBadRequest},
		{"empty deployment", http.MethodPost, base + "/deployment/create", "", http.StatusBadRequest},
		{"invalid deployment", http.MethodPost, base + "/deployment/create", "<definitions/>", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, tt.method, tt.path, tt.body, true)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.want, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("body without error field: %s", rec.Body.String())
			}
		})
	}
}

const asyncDoc = `<?xml version="1.0" encoding="UTF-8"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL" xmlns:camunda="http://camunda.org/schema/1.0/bpmn" id="d">
  <process id="asyncPrint" isExecutable="true">
    <startEvent id="start"/>
    <sequenceFlow id="f1" sourceRef="start" targetRef="print"/>
    <serviceTask id="print" camunda:asyncBefore="true" camunda:delegateExpression="${printTask}"/>
    <sequenceFlow id="f2" sourceRef="print" targetRef="end"/>
    <endEvent id="end"/>
  </process>
</definitions>`

func TestDeploymentAndJobsOverREST(t *testing.T) {
	app := newTestApp(t)
	app.createDemoUser(t)
	base := "/api/engine/engine/default"

	rec := app.do(t, http.MethodPost, base+"/deployment/create?resource=async.bpmn&enable-duplicate-filtering=true", asyncDoc, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("deploy = %d, body %s", rec.Code, rec.Body.String())
	}
	result := decode[engine.DeploymentResult](t, rec)
	if result.Deployment == nil || len(result.Definitions) != 1 || result.Definitions[0].Key != "asyncPrint" {
		t.Fatalf("deployment = %+v", result)
	}

	rec = app.do(t, http.MethodPost, base+"/deployment?resource=async.bpmn&enable-duplicate-filtering=true", asyncDoc, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("deploy via /deployment = %d, body %s", rec.Code, rec.Body.String())
	}
	if again := decode[engine.DeploymentResult](t, rec); again.Deployment != nil {
		t.Errorf("duplicate deployment created %+v", again.Deployment)
	}

	rec = app.do(t, http.MethodGet, base+"/deployment", "", true)
	if deps := decode[[]model.Deployment](t, rec); len(deps) != 2 {
		t.Errorf("deployments = %d, want 2", len(deps))
	}

	rec = app.do(t, http.MethodPost, base+"/process-definition/key/asyncPrint/start", "", true)
	inst := decode[model.ProcessInstance](t, rec)
	if inst.ActivityID != "print" {
		t.Fatalf("instance = %+v, want waiting at print", inst)
	}

	rec = app.do(t, http.MethodGet, base+"/job?processInstanceId="+inst.ID, "", true)
	jobs := decode[[]model.Job](t, rec)
	if len(jobs) != 1 {
		t.Fatalf("jobs = %+v", jobs)
	}
	if rec := app.do(t, http.MethodPut, base+"/job/"+jobs[0].ID+"/retries", `{"retries":5}`, true); rec.Code != http.StatusNoContent {
		t.Errorf("set retries = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := app.do(t, http.MethodPost, base+"/job/"+jobs[0].ID+"/execute", "", true); rec.Code != http.StatusNoContent {
		t.Fatalf("execute = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = app.do(t, http.MethodGet, base+"/process-instance/"+inst.ID, "", true)
	if got := decode[model.ProcessInstance](t, rec); got.State != model.StateCompleted {
		t.Errorf("state = %q, want completed", got.State)
	}

	rec = app.do(t, http.MethodGet, base+"/table-count", "", true)
	if counts := decode[map[string]int](t, rec); len(counts) == 0 {
		t.Error("table-count returned nothing")
	}
}

func TestDeleteInstanceOverREST(t *testing.T) {
	app := newTestApp(t)
	app.createDemoUser(t)
	base := "/api/engine/engine/default"

	inst := decode[model.ProcessInstance](t, app.do(t, http.MethodPost, base+"/process-definition/key/loanApproval/start", "", true))
	if rec := app.do(t, http.MethodDelete, base+"/process-instance/"+inst.ID+"?deleteReason=test", "", true); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := app.do(t, http.MethodDelete, base+"/process-instance/"+inst.ID, "", true); rec.Code != http.StatusConflict {
		t.Errorf("second delete = %d, want 409", rec.Code)
	}
	rec := app.do(t, http.MethodGet, base+"/process-instance?state=terminated", "", true)
	if got := decode[[]model.ProcessInstance](t, rec); len(got) != 1 {
		t.Errorf("terminated instances = %d, want 1", len(got))
	}
}

func TestAdminSetupAndUsers(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/api/admin/default/setup/user", `{"id":"demo","password":"demo"}`, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("setup = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "demo\",\"password") || strings.Contains(rec.Body.String(), "$2a$") {
		t.Errorf("setup response leaks password: %s", rec.Body.String())
	}
	if rec := app.do(t, http.MethodPost, "/api/admin/default/setup/user", `{"id":"eve","password":"x"}`, false); rec.Code != http.StatusForbidden {
		t.Errorf("second setup = %d, want 403", rec.Code)
	}

	if rec := app.do(t, http.MethodPost, "/api/admin/default/user", `{"id":"john","password":"john"}`, true); rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := app.do(t, http.MethodPost, "/api/admin/default/user", `{"id":"john","password":"john"}`, true); rec.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", rec.Code)
	}
	if rec := app.do(t, http.MethodPost, "/api/admin/default/user", `{"id":"jane"}`, true); rec.Code != http.StatusBadRequest {
		t.Errorf("create without password = %d, want 400", rec.Code)
	}

	rec = app.do(t, http.MethodGet, "/api/admin/default/user", "", true)
	if users := decode[[]model.User](t, rec); len(users) != 2 {
		t.Errorf("users = %+v", users)
	}
	if rec := app.do(t, http.MethodDelete, "/api/admin/default/user/john", "", true); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := app.do(t, http.MethodDelete, "/api/admin/default/user/john", "", true); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

func TestAdminSetupAllowsOnlyOneConcurrentUser(t *testing.T) {
	app := newTestApp(t)

	const n = 5
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			body := fmt.Sprintf(`{"id":"user%d","password":"secret"}`, i)
			codes[i] = app.do(t, http.MethodPost, "/api/admin/default/setup/user", body, false).Code
		})
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusForbidden:
		default:
			t.Errorf("setup status = %d, want 201 or 403", code)
		}
	}
	if created != 1 {
		t.Errorf("setups succeeded = %d, want 1 (codes %v)", created, codes)
	}
	if count, _ := app.users.Count(context.Background()); count != 1 {
		t.Errorf("users = %d, want 1", count)
	}
}

func TestVariablesKeepIntegerPrecisionOverREST(t *testing.T) {
	app := newTestApp(t)
	app.createDemoUser(t)
	base := "/api/engine/engine/default"

	rec := app.do(t, http.MethodPost, base+"/process-definition/key/loanApproval/start",
		`{"variables":{"big":{"type":"Long","value":9007199254740993},"amount":{"value":12}}}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d, body %s", rec.Code, rec.Body.String())
	}
	inst := decode[model.ProcessInstance](t, rec)

	vars, err := app.eng.RuntimeService().Variables(context.Background(), inst.ID)
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if got := vars["big"]; got.Type != model.TypeLong || got.Value != int64(9007199254740993) {
		t.Errorf("big = %#v", got)
	}
	if got := vars["amount"]; got.Type != model.TypeInteger || got.Value != int64(12) {
		t.Errorf("amount = %#v", got)
	}

	rec = app.do(t, http.MethodGet, base+"/process-instance/"+inst.ID+"/variables", "", true)
	if !strings.Contains(rec.Body.String(), "9007199254740993") {
		t.Errorf("variables body = %s, want exact big value", rec.Body.String())
	}

	for _, value := range []string{"3000000000", "1e20"} {
		body := `{"variables":{"amount":{"type":"Integer","value":` + value + `}}}`
		rec := app.do(t, http.MethodPost, base+"/process-definition/key/loanApproval/start", body, true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Integer %s: status = %d, want 400", value, rec.Code)
		}
	}
}

func TestCockpitStats(t *testing.T) {
	app := newTestApp(t)
	app.createDemoUser(t)

	for range 2 {
		app.do(t, http.MethodPost, "/api/engine/engine/default/process-definition/key/loanApproval/start", "", true)
	}
	rec := app.do(t, http.MethodGet, "/api/cockpit/default/stats", "", true)
	stats := decode[[]store.DefinitionStats](t, rec)
	if len(stats) != 1 || stats[0].Key != processes.LoanApprovalKey || stats[0].Instances != 2 || stats[0].Tasks != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAppsAndPlugins(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/app/cockpit/", "", false)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/app/cockpit/default/" {
		t.Errorf("redirect = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = app.do(t, http.MethodGet, "/app/cockpit/default/", "", false)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<title>Cockpit</title>") {
		t.Errorf("cockpit page = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	tests := []struct {
		path string
		want string
	}{
		{"/app/cockpit/cockpit.js", `"id":"process-definition-stats"`},
		{"/app/cockpit/cockpit-bootstrap.js", `"id":"engine-events"`},
		{"/app/admin/admin.js", `"id":"user-management"`},
		{"/app/admin/admin-bootstrap.js", `"id":"user-management"`},
	}
	for _, tt := range tests {
		rec := app.do(t, http.MethodGet, tt.path, "", false)
		body := rec.Body.String()
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", tt.path, rec.Code)
			continue
		}
		if strings.Contains(body, pluginsPlaceholder) || !strings.Contains(body, tt.want) {
			t.Errorf("GET %s body = %q", tt.path, body)
		}
	}

	if rec := app.do(t, http.MethodGet, "/app/cockpit/missing.js", "", false); rec.Code != http.StatusNotFound {
		t.Errorf("missing asset = %d, want 404", rec.Code)
	}
	if rec := app.do(t, http.MethodGet, "/unrelated", "", false); rec.Body.String() != "fallback" {
		t.Errorf("unrelated path body = %q, want fallback", rec.Body.String())
	}
}

func TestCockpitEventStream(t *testing.T) {
	app := newTestApp(t)
	app.createDemoUser(t)
	srv := httptest.NewServer(app.handler)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/cockpit/default/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.SetBasicAuth("demo", "demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	if _, err := app.eng.RuntimeService().StartProcessInstanceByKey(context.Background(), processes.LoanApprovalKey, "", nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	deadline := time.After(5 * time.Second)
	waitFor := func(want string) {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream ended before %q", want)
				}
				if strings.Contains(line, want) {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}

	waitFor(`"type":"ProcessInstanceStarted"`)
	waitFor(`"type":"TaskCreated"`)

	app.eng.Close()
	waitFor("event: done")
}

func TestCockpitEventStreamFiltersByType(t *testing.T) {
	app := newTestApp(t)
	app.createDemoUser(t)
	srv := httptest.NewServer(app.handler)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/cockpit/default/events?type=TaskCreated", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.SetBasicAuth("demo", "demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if _, err := app.eng.RuntimeService().StartProcessInstanceByKey(context.Background(), processes.LoanApprovalKey, "", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	app.eng.Close()

	var data []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data: {") {
			data = append(data, line)
		}
	}
	if len(data) != 1 || !strings.Contains(data[0], `"type":"TaskCreated"`) {
		t.Errorf("data lines = %v, want one TaskCreated event", data)
	}
}

func TestEventTypesQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?type=TaskCreated,%20JobFailed&type=ProcessInstanceEnded&type=", nil)
	got := eventTypes(r)
	want := []string{"TaskCreated", "JobFailed", "ProcessInstanceEnded"}
	if len(got) != len(want) {
		t.Fatalf("eventTypes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("eventTypes[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
