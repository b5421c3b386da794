package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/baaaaaaaka/agent_history/internal/config"
	"github.com/baaaaaaaka/agent_history/internal/orchestrator"
	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
	"github.com/baaaaaaaka/agent_history/internal/session"
	"github.com/baaaaaaaka/agent_history/internal/tui"
)

const claudeSession = `{"type":"user","message":{"role":"user","content":"hi"},"sessionId":"s1"}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hello"}]}}
`

type fakeRunner struct {
	err   error
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return nil, f.err
}

type testEnv struct {
	home   string
	config string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return testEnv{home: t.TempDir(), config: t.TempDir()}
}

func (e testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.config, "--home", e.home}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// claudeSessionFile writes a claude session for a real workspace directory
// and returns the session path.
func (e testEnv) claudeSessionFile(t *testing.T, name string) string {
	t.Helper()
	ws := filepath.Join(t.TempDir(), "proj")
	if err := os.MkdirAll(ws, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(e.home, ".claude", "projects", pathcodec.Encode(ws, pathcodec.SchemeDash), name)
	writeTestFile(t, path, claudeSession)
	return path
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestBuildVersion(t *testing.T) {
	prevVersion := version
	prevCommit := commit
	prevDate := date
	t.Cleanup(func() {
		version = prevVersion
		commit = prevCommit
		date = prevDate
	})

	version = "1.2.3"
	commit = "abc123"
	date = "2026-01-01"

	got := buildVersion()
	want := "1.2.3 (abc123) 2026-01-01"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNewRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "home", "debug", "log-file"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("expected %s flag to exist", name)
		}
	}
	list, _, err := cmd.Find([]string{"list"})
	if err != nil {
		t.Fatalf("find list: %v", err)
	}
	for _, name := range []string{"source", "all-sources", "since", "until", "no-count", "include-cached", "concurrency", "timeout", "backend", "fetch", "force-index"} {
		if list.Flags().Lookup(name) == nil {
			t.Fatalf("expected list --%s flag", name)
		}
	}
}

func TestExecuteVersion(t *testing.T) {
	prevArgs := os.Args
	t.Cleanup(func() { os.Args = prevArgs })
	os.Args = []string{"agent-history", "--version"}
	if code := Execute(); code != 0 {
		t.Fatalf("expected Execute to return 0 for --version, got %d", code)
	}
}

func TestExecuteInvalidArgs(t *testing.T) {
	prevArgs := os.Args
	t.Cleanup(func() { os.Args = prevArgs })
	os.Args = []string{"agent-history", "--not-a-flag"}
	if code := Execute(); code != 1 {
		t.Fatalf("expected Execute to return 1 for invalid args, got %d", code)
	}
}

func TestNewRootCmdUnknownCommand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"definitely-not-a-command"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected unknown command to return error")
	}
}

func TestListPrintsLocalSessions(t *testing.T) {
	env := newTestEnv(t)
	path := env.claudeSessionFile(t, "s1.jsonl")

	stdout, _, err := env.run(t, "list", "proj")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one row without header, got %q", stdout)
	}
	cols := strings.Split(lines[0], "\t")
	if len(cols) != 6 || cols[1] != "claude" || cols[2] != "local" || cols[3] != "2" || cols[5] != path {
		t.Fatalf("unexpected row %q", lines[0])
	}
	if !strings.HasSuffix(cols[4], "proj") {
		t.Fatalf("expected workspace ending in proj, got %q", cols[4])
	}
}

func TestListNoCountLeavesCountUnknown(t *testing.T) {
	env := newTestEnv(t)
	env.claudeSessionFile(t, "s1.jsonl")

	stdout, _, err := env.run(t, "list", "--no-count")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	cols := strings.Split(strings.TrimSpace(stdout), "\t")
	if len(cols) != 6 || cols[3] != "-" {
		t.Fatalf("expected unknown count, got %q", stdout)
	}
	if !strings.HasSuffix(cols[5], "/s1.jsonl") {
		t.Fatalf("unexpected file %q", cols[5])
	}
}

func TestListSingleSourceIsStrict(t *testing.T) {
	env := newTestEnv(t)
	env.claudeSessionFile(t, "s1.jsonl")

	_, _, err := env.run(t, "list", "nothing-matches-this")
	if !errors.Is(err, orchestrator.ErrNoMatchOnSource) {
		t.Fatalf("expected strict no-match, got %v", err)
	}
}

func TestListSeveralSourcesIsLenient(t *testing.T) {
	env := newTestEnv(t)
	settings := config.DefaultSettings()
	settings.Sources = []config.SourceSettings{{Kind: "remote", Name: "box"}}
	if err := config.SaveSettings(config.Paths{Root: env.config}.Settings(), settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	_, stderr, err := env.run(t, "list", "--source", "local", "--source", "remote:box", "nothing")
	if err != nil {
		t.Fatalf("expected lenient listing, got %v", err)
	}
	if !strings.Contains(stderr, "No sessions found.") {
		t.Fatalf("expected no sessions notice, got %q", stderr)
	}

	_, _, err = env.run(t, "list", "--source", "remote:elsewhere")
	if err == nil || !strings.Contains(err.Error(), "unknown source") {
		t.Fatalf("expected unknown source error, got %v", err)
	}
}

func TestListRejectsInvertedDates(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.run(t, "list", "--since", "2025-02-01", "--until", "2025-01-01")
	if err == nil || !strings.Contains(err.Error(), "before --since") {
		t.Fatalf("expected date range error, got %v", err)
	}
	_, _, err = env.run(t, "list", "--since", "yesterday")
	if err == nil || !strings.Contains(err.Error(), "YYYY-MM-DD") {
		t.Fatalf("expected date format error, got %v", err)
	}
}

func TestWorkspacesSummarizes(t *testing.T) {
	env := newTestEnv(t)
	env.claudeSessionFile(t, "a.jsonl")

	stdout, _, err := env.run(t, "workspaces")
	if err != nil {
		t.Fatalf("workspaces error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one workspace, got %q", stdout)
	}
	cols := strings.Split(lines[0], "\t")
	if len(cols) != 5 || cols[1] != "claude" || cols[2] != "1" || cols[3] != "2" || !strings.HasSuffix(cols[4], "proj") {
		t.Fatalf("unexpected summary %q", lines[0])
	}
}

func TestSummarizeKeepsListingOrder(t *testing.T) {
	now := time.Now()
	sums := summarize([]session.Record{
		{Backend: "claude", Workspace: "-a", Modified: now, MessageCount: 3},
		{Backend: "codex", Workspace: "-b", Modified: now.Add(-time.Hour), MessageCount: session.UnknownCount},
		{Backend: "claude", Workspace: "-a", Modified: now.Add(-2 * time.Hour), MessageCount: 2},
	})
	if len(sums) != 2 || sums[0].Workspace != "-a" || sums[0].Sessions != 2 || sums[0].Messages != 5 {
		t.Fatalf("unexpected summaries %+v", sums)
	}
	if sums[1].Messages != -1 || !sums[0].LastModified.Equal(now) {
		t.Fatalf("unexpected summaries %+v", sums)
	}
}

func TestShowPrintsMessages(t *testing.T) {
	env := newTestEnv(t)
	path := env.claudeSessionFile(t, "s1.jsonl")

	stdout, _, err := env.run(t, "show", path)
	if err != nil {
		t.Fatalf("show error: %v", err)
	}
	if strings.TrimSpace(stdout) != "User:\nhi\n\nAssistant:\nhello" {
		t.Fatalf("unexpected output %q", stdout)
	}

	other := filepath.Join(t.TempDir(), "notes.txt")
	writeTestFile(t, other, "x")
	if _, _, err := env.run(t, "show", other); err == nil || !strings.Contains(err.Error(), "--backend") {
		t.Fatalf("expected backend inference error, got %v", err)
	}
}

func TestBrowsePrintsSelection(t *testing.T) {
	env := newTestEnv(t)
	path := env.claudeSessionFile(t, "s1.jsonl")

	prev := browseSessions
	t.Cleanup(func() { browseSessions = prev })
	var preview string
	browseSessions = func(ctx context.Context, opts tui.Options) (*tui.Selection, error) {
		recs, err := opts.Load(ctx)
		if err != nil || len(recs) != 1 {
			t.Fatalf("load: %v (%d records)", err, len(recs))
		}
		preview, err = opts.Preview(recs[0])
		if err != nil {
			t.Fatalf("preview: %v", err)
		}
		return &tui.Selection{Record: recs[0]}, nil
	}

	stdout, _, err := env.run(t, "browse")
	if err != nil {
		t.Fatalf("browse error: %v", err)
	}
	if strings.TrimSpace(stdout) != path {
		t.Fatalf("expected selected path, got %q", stdout)
	}
	if !strings.Contains(preview, "User:\nhi") {
		t.Fatalf("unexpected preview %q", preview)
	}
}

func TestIndexRefreshAndStatus(t *testing.T) {
	env := newTestEnv(t)
	ws := t.TempDir()
	rollout := `{"type":"session_meta","payload":{"id":"0195f6a2-7c1e-7d3b-9a7e-1f2e3d4c5b6a","cwd":"` + filepath.ToSlash(ws) + `"}}` + "\n"
	writeTestFile(t, filepath.Join(env.home, ".codex", "sessions", "2025", "01", "02",
		"rollout-2025-01-02T00-00-00-0195f6a2-7c1e-7d3b-9a7e-1f2e3d4c5b6a.jsonl"), rollout)

	stdout, _, err := env.run(t, "index", "refresh", "--backend", "codex")
	if err != nil {
		t.Fatalf("index refresh error: %v", err)
	}
	if strings.TrimSpace(stdout) != "local: 1 sessions" {
		t.Fatalf("unexpected refresh output %q", stdout)
	}

	stdout, _, err = env.run(t, "index", "status")
	if err != nil {
		t.Fatalf("index status error: %v", err)
	}
	var codexRow string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, "local\tcodex\t") {
			codexRow = line
		}
	}
	cols := strings.Split(codexRow, "\t")
	if len(cols) != 5 || cols[2] != "1" || cols[3] == "never" {
		t.Fatalf("unexpected status %q", stdout)
	}
	if !strings.Contains(stdout, "local\tgemini\t-\tnever") {
		t.Fatalf("expected unindexed gemini row, got %q", stdout)
	}
}

func TestHashRegisterListForget(t *testing.T) {
	env := newTestEnv(t)
	ws := t.TempDir()
	hash := pathcodec.HashPath(ws)

	stdout, _, err := env.run(t, "hash", "register", ws)
	if err != nil {
		t.Fatalf("register error: %v", err)
	}
	if strings.TrimSpace(stdout) != hash+"\t"+ws {
		t.Fatalf("unexpected register output %q", stdout)
	}

	stdout, _, err = env.run(t, "hash", "list")
	if err != nil || !strings.Contains(stdout, hash+"\t"+ws) {
		t.Fatalf("expected listed hash, got %q (%v)", stdout, err)
	}

	if _, _, err := env.run(t, "hash", "forget", hash); err != nil {
		t.Fatalf("forget error: %v", err)
	}
	if _, _, err := env.run(t, "hash", "forget", hash); err == nil {
		t.Fatalf("expected second forget to fail")
	}
}

func TestHashLearnNeedsExistingSessions(t *testing.T) {
	env := newTestEnv(t)
	ws := t.TempDir()

	stdout, _, err := env.run(t, "hash", "learn", ws)
	if err != nil || !strings.HasPrefix(stdout, "Nothing new") {
		t.Fatalf("expected nothing learned, got %q (%v)", stdout, err)
	}

	if err := os.MkdirAll(filepath.Join(env.home, ".gemini", "tmp", pathcodec.HashPath(ws), "chats"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	stdout, _, err = env.run(t, "hash", "learn", ws)
	if err != nil || !strings.HasPrefix(stdout, "Learned") {
		t.Fatalf("expected learned, got %q (%v)", stdout, err)
	}
}

func TestSourcesAddListRemove(t *testing.T) {
	env := newTestEnv(t)
	prev := commandRunner
	t.Cleanup(func() { commandRunner = prev })
	runner := &fakeRunner{err: errors.New("permission denied")}
	commandRunner = runner

	_, _, err := env.run(t, "sources", "add", "remote:box", "--user", "me")
	if err == nil || !strings.Contains(err.Error(), "ssh probe") {
		t.Fatalf("expected probe failure, got %v", err)
	}
	if len(runner.calls) != 1 || !strings.Contains(runner.calls[0], "me@box") {
		t.Fatalf("unexpected ssh calls %q", runner.calls)
	}

	runner.err = nil
	if _, _, err := env.run(t, "sources", "add", "remote:box", "--user", "me", "--port", "2222"); err != nil {
		t.Fatalf("add error: %v", err)
	}
	settings, err := config.LoadSettings(config.Paths{Root: env.config}.Settings())
	if err != nil || len(settings.Sources) != 1 || settings.Sources[0].Port != 2222 {
		t.Fatalf("unexpected settings %+v (%v)", settings, err)
	}

	stdout, _, err := env.run(t, "sources")
	if err != nil || !strings.Contains(stdout, "remote:box\tremote\tme@box") {
		t.Fatalf("expected remote source listed, got %q (%v)", stdout, err)
	}

	stdout, _, err = env.run(t, "sources", "check")
	if err != nil || strings.TrimSpace(stdout) != "remote:box: ok" {
		t.Fatalf("unexpected check %q (%v)", stdout, err)
	}

	if _, _, err := env.run(t, "sources", "remove", "box"); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, _, err := env.run(t, "sources", "remove", "box"); err == nil {
		t.Fatalf("expected second remove to fail")
	}
}

func TestStatsSync(t *testing.T) {
	env := newTestEnv(t)
	env.claudeSessionFile(t, "a.jsonl")
	second := env.claudeSessionFile(t, "b.jsonl")

	stdout, _, err := env.run(t, "stats", "sync")
	if err != nil {
		t.Fatalf("sync error: %v", err)
	}
	if strings.TrimSpace(stdout) != "added 2, updated 0, removed 0, unchanged 0" {
		t.Fatalf("unexpected sync output %q", stdout)
	}

	stdout, _, err = env.run(t, "stats", "sync")
	if err != nil || strings.TrimSpace(stdout) != "added 0, updated 0, removed 0, unchanged 2" {
		t.Fatalf("unexpected resync output %q (%v)", stdout, err)
	}

	if err := os.Remove(second); err != nil {
		t.Fatalf("remove: %v", err)
	}
	stdout, _, err = env.run(t, "stats", "sync")
	if err != nil || strings.TrimSpace(stdout) != "added 0, updated 0, removed 1, unchanged 1" {
		t.Fatalf("unexpected sync after removal %q (%v)", stdout, err)
	}
}

func TestStatsSyncKeepsEveryCopyAndTakesNoFilters(t *testing.T) {
	env := newTestEnv(t)
	settings := config.DefaultSettings()
	settings.Sources = []config.SourceSettings{{Kind: "remote", Name: "box"}}
	if err := config.SaveSettings(config.Paths{Root: env.config}.Settings(), settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	path := env.claudeSessionFile(t, "a.jsonl")
	mirror := filepath.Join(env.home, ".claude", "projects", "remote_box_"+filepath.Base(filepath.Dir(path)), "a.jsonl")
	writeTestFile(t, mirror, claudeSession)

	stdout, _, err := env.run(t, "stats", "sync", "--source", "local", "--source", "remote:box")
	if err != nil || strings.TrimSpace(stdout) != "added 2, updated 0, removed 0, unchanged 0" {
		t.Fatalf("expected both copies synced, got %q (%v)", stdout, err)
	}

	if _, _, err := env.run(t, "stats", "sync", "--backend", "codex"); err == nil {
		t.Fatalf("expected --backend to be rejected")
	}

	stdout, _, err = env.run(t, "stats", "sync", "--source", "local", "--source", "remote:box")
	if err != nil || strings.TrimSpace(stdout) != "added 0, updated 0, removed 0, unchanged 2" {
		t.Fatalf("unexpected resync output %q (%v)", stdout, err)
	}
}

func TestTableWithoutTerminalIsTabSeparated(t *testing.T) {
	var buf bytes.Buffer
	tbl := &table{header: []string{"A", "B"}}
	tbl.add("1", "two")
	if err := tbl.write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "1\ttwo\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
