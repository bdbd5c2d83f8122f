package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/poisvin/tusk/internal/config"
	"github.com/poisvin/tusk/internal/db"
	"github.com/poisvin/tusk/internal/engine"
	"github.com/poisvin/tusk/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestRecurringTaskLifecycle(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":          "Daily review",
		"scheduled_date": "2026-03-10",
		"recurrence":     "daily",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Recurrence != "daily" {
		t.Fatalf("recurrence %s", created.Recurrence)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks?parent_id="+created.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var children []TaskResponse
	if err := json.Unmarshal(data, &children); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(children) != 31 {
		t.Fatalf("children %d, want 31", len(children))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tasks/"+created.ID, map[string]any{
		"title": "Evening review",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+children[0].ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get child status %d", res.StatusCode)
	}
	var child TaskResponse
	if err := json.Unmarshal(data, &child); err != nil {
		t.Fatal(err)
	}
	if child.Title != "Evening review" {
		t.Fatalf("child title %q not synced", child.Title)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tasks/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status %d", res.StatusCode)
	}
}

func TestSweepEndpoint(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":          "Mail package",
		"scheduled_date": "2026-03-09",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":          "Water plants",
		"scheduled_date": "2026-03-10",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sweep", map[string]any{
		"target_date": "2026-03-10",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sweep status %d: %s", res.StatusCode, string(data))
	}
	var swept SweepResponse
	if err := json.Unmarshal(data, &swept); err != nil {
		t.Fatal(err)
	}
	if swept.Carried != 1 {
		t.Fatalf("carried %d, want 1", swept.Carried)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/days/2026-03-10", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("day view status %d: %s", res.StatusCode, string(data))
	}
	var day DayViewResponse
	if err := json.Unmarshal(data, &day); err != nil {
		t.Fatal(err)
	}
	if len(day.Tasks) != 1 || len(day.CarriedOver) != 1 {
		t.Fatalf("day view tasks=%d carried=%d", len(day.Tasks), len(day.CarriedOver))
	}
	if day.Tasks[0].Title != "Water plants" || day.Tasks[0].CarriedOver {
		t.Fatalf("tasks list holds %q (carried=%v), want the fresh task only", day.Tasks[0].Title, day.Tasks[0].CarriedOver)
	}
	if day.CarriedOver[0].Title != "Mail package" || !day.CarriedOver[0].CarriedOver {
		t.Fatalf("carried list holds %q (carried=%v)", day.CarriedOver[0].Title, day.CarriedOver[0].CarriedOver)
	}
}

func TestAuthRequiredWhenSecretConfigured(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status %d", res.StatusCode)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}
