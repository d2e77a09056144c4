package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"auditline/internal/config"
	"auditline/internal/db"
	"auditline/internal/engine"
	"auditline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
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
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
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

const sampleLog = `{"id":"LOG-1","action":"QUALITY_AUDIT","status":"pending","createdAt":"2024-03-01T08:00:00Z","owner":"amara","payload":{"revision":1,"summary":"audit prep","steps":["collect samples","record results"]}}
{"id":"LOG-1","action":"QUALITY_AUDIT","status":"approved","createdAt":"2024-03-01T12:00:00Z","owner":"amara","payload":{"revision":2,"summary":"audit done","steps":["collect samples","record results"]}}`

func TestIngestAndFetchReport(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/ingests", map[string]any{
		"content": sampleLog,
		"source":  "march.jsonl",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create ingest status %d: %s", res.StatusCode, string(data))
	}
	var run IngestRunResponse
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if run.Ingest.EntryCount != 2 {
		t.Fatalf("unexpected entry count %d", run.Ingest.EntryCount)
	}
	if run.Report.Totals.InstructionCount != 1 {
		t.Fatalf("unexpected totals %+v", run.Report.Totals)
	}

	repRes, repBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/ingests/"+run.Ingest.ID+"/report", nil)
	if repRes.StatusCode != http.StatusOK {
		t.Fatalf("get report status %d: %s", repRes.StatusCode, string(repBody))
	}
	var report ReportResponse
	if err := json.Unmarshal(repBody, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Totals.InstructionCount != 1 {
		t.Fatalf("stored report totals %+v", report.Totals)
	}

	entRes, entBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/ingests/"+run.Ingest.ID+"/entries?status=approved", nil)
	if entRes.StatusCode != http.StatusOK {
		t.Fatalf("list entries status %d: %s", entRes.StatusCode, string(entBody))
	}
	var entries []EntryResponse
	if err := json.Unmarshal(entBody, &entries); err != nil {
		t.Fatalf("unmarshal entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != "approved" {
		t.Fatalf("unexpected filtered entries %+v", entries)
	}
}

func TestIngestWithoutUsableRecords(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/ingests", map[string]any{
		"content": "{broken\nalso broken",
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "no_usable_records" {
		t.Fatalf("unexpected error code %q", envelope.Error.Code)
	}
	ingestID, _ := envelope.Error.Details["ingest_id"].(string)
	if ingestID == "" {
		t.Fatalf("expected ingest_id in details: %s", string(data))
	}

	// The rejected ingest and its parse errors are still retrievable.
	errRes, errBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/ingests/"+ingestID+"/errors", nil)
	if errRes.StatusCode != http.StatusOK {
		t.Fatalf("get errors status %d: %s", errRes.StatusCode, string(errBody))
	}
	var parseErrs []ParseErrorResponse
	if err := json.Unmarshal(errBody, &parseErrs); err != nil {
		t.Fatalf("unmarshal errors: %v", err)
	}
	if len(parseErrs) != 2 {
		t.Fatalf("expected 2 parse errors, got %d", len(parseErrs))
	}
}

func TestMissingContentIsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/ingests", map[string]any{})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
}

func TestUnknownIngestIsNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/ingests/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("unexpected code %q", envelope.Error.Code)
	}
}

func TestResolveActionEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/actions/safety-drill", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var meta ActionResponse
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if meta.Code != "SAFETY_DRILL" || meta.Name != "Safety Drill" || meta.Category != "safety" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestRulesAndEventsEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/rules", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rules status %d: %s", res.StatusCode, string(data))
	}
	var rules RulesResponse
	if err := json.Unmarshal(data, &rules); err != nil {
		t.Fatalf("unmarshal rules: %v", err)
	}
	if len(rules.Categories) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(rules.Categories))
	}

	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/ingests", map[string]any{"content": sampleLog}); res.StatusCode != http.StatusCreated {
		t.Fatalf("seed ingest status %d: %s", res.StatusCode, string(data))
	}
	evRes, evBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type=report.generated", nil)
	if evRes.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", evRes.StatusCode, string(evBody))
	}
	var events []EventResponse
	if err := json.Unmarshal(evBody, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) != 1 || events[0].Type != "report.generated" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var body map[string]string
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}
