package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"narrativeradar/internal/radar"
	"narrativeradar/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetArgs(args)
	err := RootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// offlineEnv writes a config whose adapters all hit a 404 server.
func offlineEnv(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	raw := "github:\n  baseUrl: " + srv.URL + "\n  repos: [acme/chain]\n" +
		"feeds:\n  - name: Blog\n    url: " + srv.URL + "/rss\n" +
		"solana:\n  rpcUrl: " + srv.URL + "\n  hydrate: false\n" +
		"social:\n  baseUrl: " + srv.URL + "\n"
	path := filepath.Join(dir, "radar.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RADAR_CONFIG", "")
	t.Setenv("X_BEARER_TOKEN", "")
	t.Setenv("RADAR_LOG_LEVEL", "error")
	return path
}

func TestRunSaveThenLatest(t *testing.T) {
	cfgPath := offlineEnv(t)
	db := filepath.Join(t.TempDir(), "radar.db")

	out, err := execute(t, "run", "--config", cfgPath, "--db", db, "--save", "--format", "json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var run radar.RunRecord
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("decode run: %v\n%s", err, out)
	}
	if run.ID == "" || len(run.Narratives) == 0 {
		t.Fatalf("unexpected run %+v", run)
	}

	out, err = execute(t, "latest", "--config", cfgPath, "--db", db, "--format", "markdown")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !strings.Contains(out, "Run `"+run.ID+"`") {
		t.Fatalf("latest report does not reference the saved run:\n%s", out)
	}

	out, err = execute(t, "runs", "--config", cfgPath, "--db", db, "--limit", "5", "--prune", "0")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	var summaries []store.RunSummary
	if err := json.Unmarshal([]byte(out), &summaries); err != nil || len(summaries) != 1 {
		t.Fatalf("unexpected summaries %v %s", err, out)
	}
}

func TestLatestOnEmptyDatabase(t *testing.T) {
	cfgPath := offlineEnv(t)
	db := filepath.Join(t.TempDir(), "empty.db")
	if _, err := execute(t, "latest", "--config", cfgPath, "--db", db, "--format", "json"); err == nil {
		t.Fatalf("expected an error for an empty database")
	}
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	cfgPath := offlineEnv(t)
	if _, err := execute(t, "run", "--config", cfgPath, "--db", filepath.Join(t.TempDir(), "x.db"), "--format", "pdf", "--save=false"); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestTopicsListsFixedAndClustered(t *testing.T) {
	cfgPath := offlineEnv(t)
	out, err := execute(t, "topics", "--config", cfgPath)
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	var payload struct {
		Fixed  []map[string]string `json:"fixed"`
		Topics []radar.Topic       `json:"topics"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Fixed) != len(radar.FixedNarratives()) || len(payload.Topics) == 0 {
		t.Fatalf("unexpected topics payload %+v", payload)
	}
}
