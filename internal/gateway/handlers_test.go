package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"warrant-ledgerv1/internal/auth"
	"warrant-ledgerv1/internal/ledger"
)

func newTestServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postLogin(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/login", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return resp, out
}

func TestLogin(t *testing.T) {
	creds := auth.New(auth.ParseUsers("admin:admin123,user1:pass1"), "")
	srv := newTestServer(t, newTestHub(creds, nil))

	resp, out := postLogin(t, srv, `{"username":"admin","password":"admin123"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out["success"] != true || out["username"] != "admin" {
		t.Errorf("body = %v", out)
	}

	resp, out = postLogin(t, srv, `{"username":"admin","password":"wrong"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if out["message"] != "帳號或密碼錯誤" {
		t.Errorf("message = %v", out["message"])
	}

	resp, out = postLogin(t, srv, `{"username":"","password":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if out["message"] != "帳號或密碼不能為空" {
		t.Errorf("message = %v", out["message"])
	}
}

func TestLogin_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newTestHub(nil, nil))
	resp, err := http.Get(srv.URL + "/login")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	h := newTestHub(nil, nil)
	c := attachClient(h)
	h.handleAddWarrant(c, AddWarrantMsg{
		WarrantNumber: "24413",
		Username:      "admin",
		GridsCut:      json.RawMessage(`5`),
		GridsRecovery: json.RawMessage(`2`),
	})
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/api/leaderboard")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS header = %q", got)
	}

	var rows []ledger.LeaderboardRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	row := rows[0]
	if row.WarrantNumber != "24413" || row.TotalGrids != 3 || row.EntryCount != 1 {
		t.Errorf("row = %+v", row)
	}
	if row.StockCode != "N/A" || row.StockName != "N/A" {
		t.Errorf("unresolved warrant must report N/A, got %+v", row)
	}
}
