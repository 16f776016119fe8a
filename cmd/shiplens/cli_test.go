package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/shiplens/internal/background"
	"github.com/hpungsan/shiplens/internal/config"
	"github.com/hpungsan/shiplens/internal/logging"
	"github.com/hpungsan/shiplens/internal/observer"
	"github.com/hpungsan/shiplens/internal/ops"
	"github.com/hpungsan/shiplens/internal/turvo"
)

const shipmentJSON = `{"details":{"custom_id":"CUST-1","margin":{"minCarrierPay":1500},` +
	`"equipment":[{"attributes":{"weight":{"weight":42000,"units":"lb"}}}]}}`

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

type testEnv struct {
	cfg      *config.Config
	baseDir  string
	daemon   *daemon
	upstream *httptest.Server

	mu   sync.Mutex
	seen []string
}

// setupTestEnv starts a daemon against a fake upstream and points cfg at it.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{baseDir: t.TempDir()}

	env.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.seen = append(env.seen, r.URL.String())
		env.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/shipments/list") {
			w.Write([]byte(`{"list":[{"id":1}]}`))
			return
		}
		w.Write([]byte(shipmentJSON))
	}))
	t.Cleanup(env.upstream.Close)

	env.cfg = config.DefaultConfig()
	env.cfg.Origin = env.upstream.URL

	d, err := newDaemon(context.Background(), env.cfg, env.baseDir, daemonOptions{
		LogSink: logging.NewWriterSink(io.Discard),
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	env.daemon = d

	ts := httptest.NewServer(d.srv.Handler)
	t.Cleanup(ts.Close)
	host, port, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	env.cfg.Bind = host
	env.cfg.Port, err = strconv.Atoi(port)
	require.NoError(t, err)

	return env
}

func (e *testEnv) run(args ...string) (string, error) {
	app := newCLIApp(e.cfg, e.baseDir)
	var buf bytes.Buffer
	app.Writer = &buf
	err := app.Run(append([]string{"shiplens"}, args...))
	return buf.String(), err
}

func (e *testEnv) captureToken(t *testing.T) {
	t.Helper()
	ok := e.daemon.bg.Observe(background.ObserveRequest{
		URL:            e.upstream.URL + "/api/shipments/1",
		RequestHeaders: []observer.Header{{Name: "Authorization", Value: "Bearer abcdefghijklmnopqrstuvwxyz"}},
	})
	require.True(t, ok)
}

func (e *testEnv) seedTab(t *testing.T, tabID int64) {
	t.Helper()
	_, err := e.daemon.bg.Cache().Set(context.Background(), tabID, "42", turvo.JSONBody([]byte(shipmentJSON)))
	require.NoError(t, err)
}

func stubClipboard(t *testing.T) *string {
	t.Helper()
	var copied string
	old := copyToClipboard
	copyToClipboard = func(s string) error {
		copied = s
		return nil
	}
	t.Cleanup(func() { copyToClipboard = old })
	return &copied
}

// TestSplitList tests the splitList helper function.
func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single", "rate", []string{"rate"}},
		{"multiple", "weight,rate", []string{"weight", "rate"}},
		{"spaces and empties", " weight , ,rate ", []string{"weight", "rate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, splitList(tt.input))
		})
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })

	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"shiplens"}, false},
		{[]string{"shiplens", "--help"}, true},
		{[]string{"shiplens", "-v"}, true},
		{[]string{"shiplens", "help"}, true},
		{[]string{"shiplens", "serve"}, false},
	}
	for _, tt := range tests {
		os.Args = tt.args
		if got := isHelpOrVersion(); got != tt.want {
			t.Errorf("isHelpOrVersion(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestCLIValidateURL(t *testing.T) {
	app := newCLIApp(config.DefaultConfig(), t.TempDir())
	var buf bytes.Buffer
	app.Writer = &buf

	require.NoError(t, app.Run([]string{"shiplens", "validate-url", "https://app.example.com/#/shipments/12345"}))
	require.Equal(t, "Valid shipments URL (ID: 12345)\n", buf.String())

	err := app.Run([]string{"shiplens", "validate-url", "https://app.example.com/#/orders/1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Not a shipments page")
}

func TestCLIToken(t *testing.T) {
	env := setupTestEnv(t)

	out, err := env.run("token")
	require.NoError(t, err)
	require.Contains(t, out, "Not captured")

	env.captureToken(t)

	out, err = env.run("token", "--json")
	require.NoError(t, err)
	var masked map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &masked))
	require.Nil(t, masked["token"])
	require.Equal(t, "abcdef…wxyz", masked["info"].(map[string]any)["masked"])

	out, err = env.run("token", "--json", "--reveal")
	require.NoError(t, err)
	var revealed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &revealed))
	require.Equal(t, "abcdefghijklmnopqrstuvwxyz", revealed["token"])
}

func TestCLITokenCopy(t *testing.T) {
	env := setupTestEnv(t)
	copied := stubClipboard(t)

	_, err := env.run("token", "--copy")
	require.Error(t, err, "nothing to copy before capture")

	env.captureToken(t)
	out, err := env.run("token", "--copy")
	require.NoError(t, err)
	require.Equal(t, "abcdefghijklmnopqrstuvwxyz", *copied)
	require.Contains(t, out, "Token copied to clipboard")
	require.NotContains(t, out, "abcdefghijklmnopqrstuvwxyz")
}

func TestCLICached(t *testing.T) {
	env := setupTestEnv(t)
	env.seedTab(t, 1)

	out, err := env.run("cached", "--tab", "1")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, "42", rec["shipmentId"])
	require.Equal(t, float64(1), rec["tabId"])

	_, err = env.run("cached", "--tab", "2")
	require.Error(t, err)
	require.Contains(t, err.Error(), "NOT_FOUND")

	_, err = env.run("cached")
	require.Error(t, err)
	require.Contains(t, err.Error(), "PRECONDITION_FAILED")
}

func TestCLIFetch(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.run("fetch", "42")
	require.Error(t, err)
	require.Contains(t, err.Error(), "PRECONDITION_FAILED")

	env.captureToken(t)
	out, err := env.run("fetch", "42", "--tab", "3", "--bust")
	require.NoError(t, err)

	var reply background.FetchReply
	require.NoError(t, json.Unmarshal([]byte(out), &reply))
	require.True(t, reply.OK)
	require.Equal(t, http.StatusOK, reply.Status)

	env.mu.Lock()
	require.Len(t, env.seen, 1)
	require.Contains(t, env.seen[0], "&_=")
	env.mu.Unlock()

	_, err = env.run("cached", "--tab", "3")
	require.NoError(t, err)
}

func TestCLIList(t *testing.T) {
	env := setupTestEnv(t)
	env.captureToken(t)
	env.seedTab(t, 1)

	out, err := env.run("list", "--tab", "1")
	require.NoError(t, err)
	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "CUST-1", resp["customId"])
	require.Equal(t, true, resp["ok"])

	_, err = env.run("list")
	require.Error(t, err)
}

func TestCLISummary(t *testing.T) {
	env := setupTestEnv(t)
	env.seedTab(t, 1)

	out, err := env.run("summary", "--tab", "1", "--json")
	require.NoError(t, err)
	var sum ops.SummaryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	require.Equal(t, "42", sum.ShipmentID)
	require.Equal(t, "42000", sum.Fields.Weight)
	require.Equal(t, "1500", sum.Fields.Rate)

	out, err = env.run("summary", "--tab", "1")
	require.NoError(t, err)
	require.Contains(t, out, "42000 lb")
	require.Contains(t, out, "Ship Locations")
}

func TestCLISummaryFromFile(t *testing.T) {
	env := setupTestEnv(t)
	path := filepath.Join(env.baseDir, "exports", "saved.json")
	require.NoError(t, os.WriteFile(path, []byte(shipmentJSON), 0600))

	out, err := env.run("summary", "--file", path, "--markdown")
	require.NoError(t, err)
	require.Contains(t, out, "- **Weight:** 42000 lb")

	_, err = env.run("summary", "--file", filepath.Join(env.baseDir, "exports", "saved.txt"))
	require.Error(t, err)
}

func TestCLIEmail(t *testing.T) {
	env := setupTestEnv(t)
	path := filepath.Join(env.baseDir, "exports", "saved.json")
	require.NoError(t, os.WriteFile(path, []byte(shipmentJSON), 0600))
	copied := stubClipboard(t)

	out, err := env.run("email", "--file", path, "--exclude", "weightUnit")
	require.NoError(t, err)
	require.Equal(t, "Shipment details can be found below.\n\nWeight: 42000\nRate: 1500\n", out)

	_, err = env.run("email", "--file", path, "--only", "rate", "--copy")
	require.NoError(t, err)
	require.Equal(t, "Shipment details can be found below.\n\nRate: 1500", *copied)

	_, err = env.run("email", "--file", path, "--only", "bogus")
	require.Error(t, err)
	require.Contains(t, err.Error(), "INVALID_REQUEST")
}

func TestCLIExport(t *testing.T) {
	env := setupTestEnv(t)
	env.captureToken(t)
	env.seedTab(t, 1)

	out, err := env.run("export", "--tab", "1")
	require.NoError(t, err)
	var res ops.ExportOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, filepath.Join(env.baseDir, "exports", "42.json"), res.Path)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "{\n  \"details\""))

	out, err = env.run("export", "--tab", "1", "--list")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.True(t, strings.HasPrefix(filepath.Base(res.Path), "shipment-list-CUST-1-"), res.Path)

	_, err = env.run("export", "--tab", "1", "--path", filepath.Join(t.TempDir(), "out.json"))
	require.Error(t, err, "paths outside the exports dir are refused")
}

func TestCLIForgetAndReset(t *testing.T) {
	env := setupTestEnv(t)
	env.seedTab(t, 1)
	env.seedTab(t, 2)

	out, err := env.run("forget", "--tab", "1")
	require.NoError(t, err)
	require.Contains(t, out, "Tab 1 forgotten")

	_, err = env.run("cached", "--tab", "1")
	require.Error(t, err)

	out, err = env.run("reset")
	require.NoError(t, err)
	require.Contains(t, out, "1 cached shipments cleared")
}

func TestCLIDaemonNotRunning(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Port = 1
	app := newCLIApp(cfg, t.TempDir())
	app.Writer = io.Discard

	err := app.Run([]string{"shiplens", "cached", "--tab", "1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "shiplens serve")
}

func TestNewDaemon_ClearsPreviousRun(t *testing.T) {
	env := setupTestEnv(t)
	env.seedTab(t, 1)
	env.daemon.Close()

	keep, err := newDaemon(context.Background(), env.cfg, env.baseDir, daemonOptions{
		KeepCache: true,
		LogSink:   logging.NewWriterSink(io.Discard),
	})
	require.NoError(t, err)
	rec, err := keep.bg.Cache().Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	keep.Close()

	fresh, err := newDaemon(context.Background(), env.cfg, env.baseDir, daemonOptions{
		LogSink: logging.NewWriterSink(io.Discard),
	})
	require.NoError(t, err)
	defer fresh.Close()
	rec, err = fresh.bg.Cache().Get(context.Background(), 1)
	require.NoError(t, err)
	require.Nil(t, rec)
}
