package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/baaaaaaaka/agent_history/internal/session"
)

func newTestScreen(t *testing.T, w, h int) tcell.Screen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	screen.SetSize(w, h)
	t.Cleanup(func() { screen.Fini() })
	return screen
}

func testRecords() []session.Record {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []session.Record{
		{Backend: "claude", Workspace: "-srv-app", WorkspacePath: "/srv/app", File: "/h/.claude/projects/-srv-app/b.jsonl", Modified: now, MessageCount: 4, Source: "local"},
		{Backend: "codex", Workspace: "-srv-api", WorkspacePath: "/srv/api", File: "/h/.codex/sessions/2025/06/01/rollout-1.jsonl", Modified: now.Add(-time.Hour), MessageCount: session.UnknownCount, Source: "remote:box"},
		{Backend: "claude", Workspace: "-srv-app", WorkspacePath: "/srv/app", File: "/h/.claude/projects/-srv-app/a.jsonl", Modified: now.Add(-2 * time.Hour), MessageCount: 2, Source: "local"},
	}
}

func key(k tcell.Key) *tcell.EventKey {
	return tcell.NewEventKey(k, 0, 0)
}

func runeKey(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, 0)
}

func TestHandleKeyQuit(t *testing.T) {
	screen := newTestScreen(t, 120, 40)
	state := newState(testRecords(), nil)

	_, err := handleKey(context.Background(), screen, state, Options{}, runeKey('q'))
	if !errors.Is(err, errQuit) {
		t.Fatalf("expected quit error, got %v", err)
	}
}

func TestBuildWorkspaceItemsGroupsInListOrder(t *testing.T) {
	items := buildWorkspaceItems(testRecords(), "")
	if len(items) != 2 {
		t.Fatalf("expected 2 workspaces, got %d", len(items))
	}
	if items[0].workspace != "-srv-app" || len(items[0].records) != 2 {
		t.Fatalf("unexpected first workspace: %+v", items[0])
	}
	if !strings.Contains(items[0].label, "/srv/app") || !strings.Contains(items[0].label, "[claude] (2)") {
		t.Fatalf("unexpected label %q", items[0].label)
	}
	if items[1].backend != "codex" {
		t.Fatalf("expected codex second, got %q", items[1].backend)
	}
}

func TestBuildWorkspaceItemsPinsCurrent(t *testing.T) {
	dir := t.TempDir()
	records := append(testRecords(), session.Record{Backend: "gemini", Workspace: "abc", WorkspacePath: dir, File: "/g/session-1.json"})

	items := buildWorkspaceItems(records, dir)
	if !items[0].isCurrent || items[0].path != dir {
		t.Fatalf("expected current workspace first, got %+v", items[0])
	}
	if !strings.HasPrefix(items[0].label, "[current] ") {
		t.Fatalf("expected current marker, got %q", items[0].label)
	}

	filtered := filterWorkspaces(items, "api")
	if len(filtered) != 2 || !filtered[0].isCurrent {
		t.Fatalf("expected current kept visible under filter, got %d items", len(filtered))
	}
}

func TestBuildSessionItemsLabels(t *testing.T) {
	items := buildWorkspaceItems(testRecords(), "")
	sessions := buildSessionItems(&items[0])
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].label != "2025-06-01 12:00  b  (4 msgs)" {
		t.Fatalf("unexpected label %q", sessions[0].label)
	}

	remote := buildSessionItems(&items[1])
	if !strings.HasSuffix(remote[0].label, "rollout-1  @remote:box") {
		t.Fatalf("unexpected remote label %q", remote[0].label)
	}
	if buildSessionItems(nil) != nil {
		t.Fatalf("expected no sessions without a workspace")
	}
}

func TestHandleKeyJKNavigationResetsSessions(t *testing.T) {
	screen := newTestScreen(t, 120, 40)
	state := newState(testRecords(), nil)
	state.sessionState.selected = 1

	if _, err := handleKey(context.Background(), screen, state, Options{}, runeKey('j')); err != nil {
		t.Fatalf("handleKey error: %v", err)
	}
	if state.workspaceState.selected != 1 {
		t.Fatalf("expected selection=1, got %d", state.workspaceState.selected)
	}
	if state.sessionState.selected != 0 {
		t.Fatalf("expected session selection reset, got %d", state.sessionState.selected)
	}

	if _, err := handleKey(context.Background(), screen, state, Options{}, runeKey('k')); err != nil {
		t.Fatalf("handleKey error: %v", err)
	}
	if state.workspaceState.selected != 0 {
		t.Fatalf("expected selection=0, got %d", state.workspaceState.selected)
	}
}

func TestHandleKeyEnterMovesToSessionsThenSelects(t *testing.T) {
	screen := newTestScreen(t, 120, 40)
	state := newState(testRecords(), nil)

	sel, err := handleKey(context.Background(), screen, state, Options{}, key(tcell.KeyEnter))
	if err != nil || sel != nil {
		t.Fatalf("expected focus move, got sel=%v err=%v", sel, err)
	}
	if state.focus != "sessions" {
		t.Fatalf("expected sessions focus, got %q", state.focus)
	}

	if _, err := handleKey(context.Background(), screen, state, Options{}, key(tcell.KeyDown)); err != nil {
		t.Fatalf("handleKey error: %v", err)
	}
	sel, err = handleKey(context.Background(), screen, state, Options{}, key(tcell.KeyCtrlJ))
	if err != nil {
		t.Fatalf("handleKey error: %v", err)
	}
	if sel == nil || !strings.HasSuffix(sel.Record.File, "/a.jsonl") {
		t.Fatalf("expected a.jsonl selected, got %+v", sel)
	}
}

func TestHandleKeyFilterWorkspaces(t *testing.T) {
	screen := newTestScreen(t, 120, 40)
	state := newState(testRecords(), nil)

	for _, ev := range []*tcell.EventKey{runeKey('/'), runeKey('a'), runeKey('p'), runeKey('x'), key(tcell.KeyBackspace2), runeKey('i'), key(tcell.KeyEnter)} {
		if _, err := handleKey(context.Background(), screen, state, Options{}, ev); err != nil {
			t.Fatalf("handleKey error: %v", err)
		}
	}
	if state.workspaceFilter != "api" {
		t.Fatalf("expected filter api, got %q", state.workspaceFilter)
	}
	items := filterWorkspaces(buildWorkspaceItems(state.records, ""), state.workspaceFilter)
	if len(items) != 1 || items[0].workspace != "-srv-api" {
		t.Fatalf("unexpected filtered workspaces: %+v", items)
	}
}

func TestHandleKeyRefreshReloads(t *testing.T) {
	screen := newTestScreen(t, 120, 40)
	state := newState(nil, errors.New("boom"))
	calls := 0
	opts := Options{Load: func(context.Context) ([]session.Record, error) {
		calls++
		return testRecords(), nil
	}}

	if _, err := handleKey(context.Background(), screen, state, opts, runeKey('r')); err != nil {
		t.Fatalf("handleKey error: %v", err)
	}
	if calls != 1 || state.loadError != nil || len(state.records) != 3 {
		t.Fatalf("expected reload, calls=%d err=%v records=%d", calls, state.loadError, len(state.records))
	}
}

func TestComputeLayoutModes(t *testing.T) {
	cases := []struct {
		w, h int
		mode string
	}{
		{160, 40, "3col"},
		{100, 30, "2col"},
		{60, 20, "1col"},
	}
	for _, tc := range cases {
		screen := newTestScreen(t, tc.w, tc.h)
		if got := computeLayout(screen).mode; got != tc.mode {
			t.Fatalf("%dx%d: expected %s, got %s", tc.w, tc.h, tc.mode, got)
		}
	}
}

func TestPreviewArrowScrollsWhenFocused(t *testing.T) {
	screen := newTestScreen(t, 60, 12)
	state := newState(testRecords(), nil)
	state.focus = "preview"
	state.lastListFocus = "sessions"
	state.previewCache[testRecords()[0].File] = strings.Repeat("line ", 80)

	if _, err := handleKey(context.Background(), screen, state, Options{}, key(tcell.KeyDown)); err != nil {
		t.Fatalf("handleKey error: %v", err)
	}
	if state.previewState.scroll == 0 {
		t.Fatalf("expected preview scroll to move")
	}
}

func TestPreviewSearchMatches(t *testing.T) {
	screen := newTestScreen(t, 80, 30)
	state := newState(testRecords(), nil)
	state.focus = "preview"
	state.lastListFocus = "sessions"
	state.previewCache[testRecords()[0].File] = "alpha\nbeta\nalpha"

	events := []*tcell.EventKey{runeKey('/')}
	for _, ch := range "alpha" {
		events = append(events, runeKey(ch))
	}
	events = append(events, key(tcell.KeyEnter))
	for _, ev := range events {
		if _, err := handleKey(context.Background(), screen, state, Options{}, ev); err != nil {
			t.Fatalf("handleKey error: %v", err)
		}
	}

	draw(screen, state, Options{}, make(chan previewEvent, 1))
	if len(state.previewMatches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(state.previewMatches))
	}

	if _, err := handleKey(context.Background(), screen, state, Options{}, runeKey('n')); err != nil {
		t.Fatalf("handleKey error: %v", err)
	}
	if state.previewMatchIdx != 1 {
		t.Fatalf("expected second match, got %d", state.previewMatchIdx)
	}
}

func TestDrawRendersWorkspacesAndStatus(t *testing.T) {
	screen := newTestScreen(t, 160, 20)
	state := newState(testRecords(), nil)

	draw(screen, state, Options{Version: "1.2.0"}, make(chan previewEvent, 1))

	row := readScreenLine(screen, 1)
	if !strings.Contains(row, "/srv/app  [claude] (2)") {
		t.Fatalf("expected workspace row, got %q", strings.TrimSpace(row))
	}
	if !strings.Contains(row, "b  (4 msgs)") {
		t.Fatalf("expected session row, got %q", strings.TrimSpace(row))
	}
	_, h := screen.Size()
	status := readScreenLine(screen, h-1)
	if !strings.Contains(status, "agent-history v1.2.0") {
		t.Fatalf("expected version in status line, got %q", strings.TrimSpace(status))
	}
}

func TestDrawShowsLoadError(t *testing.T) {
	screen := newTestScreen(t, 120, 20)
	state := newState(nil, errors.New("no sources"))

	draw(screen, state, Options{}, make(chan previewEvent, 1))

	_, h := screen.Size()
	if line := readScreenLine(screen, h-1); !strings.Contains(line, "Load error: no sources") {
		t.Fatalf("expected load error in status line, got %q", strings.TrimSpace(line))
	}
}

func TestEnsurePreviewLoadsAsync(t *testing.T) {
	screen := newTestScreen(t, 120, 20)
	state := newState(testRecords(), nil)
	rec := testRecords()[0]
	previewCh := make(chan previewEvent, 1)
	opts := Options{Preview: func(r session.Record) (string, error) {
		return "User:\nhello " + r.Workspace, nil
	}}

	ensurePreview(screen, state, opts, rec, previewCh)
	if !state.previewLoading[rec.File] {
		t.Fatalf("expected preview loading")
	}
	select {
	case ev := <-previewCh:
		state.previewLoading[ev.key] = false
		state.previewCache[ev.key] = ev.text
	case <-time.After(2 * time.Second):
		t.Fatalf("preview never arrived")
	}
	if got := previewTextFor(state, rec); got != "User:\nhello -srv-app" {
		t.Fatalf("unexpected preview %q", got)
	}
}

func TestRunReturnsOnCancelledContext(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sel, err := run(ctx, screen, Options{Load: func(context.Context) ([]session.Record, error) {
		return testRecords(), nil
	}})
	if sel != nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got sel=%v err=%v", sel, err)
	}
}

func TestDisplayWidthHelpers(t *testing.T) {
	txt := "中文ABC"
	if got := displayWidth(txt); got != 7 {
		t.Fatalf("expected display width 7, got %d", got)
	}
	if got := truncate(txt, 4); got != "中文" {
		t.Fatalf("expected truncate to 中文, got %q", got)
	}
	if got := wrapText("中文AB", 4); len(got) != 2 || got[0] != "中文" {
		t.Fatalf("unexpected wrap %q", got)
	}
	padded := padRight("中文", 6)
	if got := displayWidth(padded); got != 6 {
		t.Fatalf("expected padded width 6, got %d (%q)", got, padded)
	}
}

func readScreenLine(screen tcell.Screen, y int) string {
	w, _ := screen.Size()
	var buf strings.Builder
	for x := 0; x < w; x++ {
		ch, _, _, _ := screen.GetContent(x, y)
		if ch == 0 {
			ch = ' '
		}
		buf.WriteRune(ch)
	}
	return buf.String()
}
