// Package tui is a terminal browser over listed sessions: workspaces on the
// left, their sessions in the middle and a transcript preview on the right.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/baaaaaaaka/agent_history/internal/session"
)

var errQuit = errors.New("quit")

type Selection struct {
	Record session.Record
}

type Options struct {
	Load func(context.Context) ([]session.Record, error)
	// Preview renders the transcript of a record. Optional.
	Preview func(session.Record) (string, error)
	Version string
	// DefaultCwd pins the workspace decoded to this path at the top.
	DefaultCwd string
}

type uiEvent struct {
	when time.Time
	kind string
}

func (e *uiEvent) When() time.Time { return e.when }

type previewEvent struct {
	key  string
	text string
	err  error
}

type rect struct {
	y int
	x int
	h int
	w int
}

type layout struct {
	workspaces rect
	sessions   rect
	preview    rect
	mode       string
}

type listState struct {
	selected int
	scroll   int
}

type previewState struct {
	scroll int
}

type workspaceItem struct {
	label     string
	backend   string
	workspace string
	path      string
	records   []session.Record
	isCurrent bool
}

type sessionItem struct {
	label  string
	record session.Record
}

type uiState struct {
	records         []session.Record
	loadError       error
	focus           string
	lastListFocus   string
	inputMode       string
	inputBuffer     string
	workspaceFilter string
	sessionFilter   string
	workspaceState  listState
	sessionState    listState
	previewState    previewState

	previewCache     map[string]string
	previewError     map[string]string
	previewLoading   map[string]bool
	previewSearch    string
	previewSearchBuf string
	previewMatches   []int
	previewMatchIdx  int
	previewSearchKey string
}

func newState(records []session.Record, loadErr error) *uiState {
	return &uiState{
		records:        records,
		loadError:      loadErr,
		focus:          "workspaces",
		lastListFocus:  "workspaces",
		previewCache:   map[string]string{},
		previewError:   map[string]string{},
		previewLoading: map[string]bool{},
	}
}

// Browse runs the browser on the terminal until a session is chosen or the
// user quits. A nil Selection with a nil error means the user quit.
func Browse(ctx context.Context, opts Options) (*Selection, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return run(ctx, screen, opts)
}

func run(ctx context.Context, screen tcell.Screen, opts Options) (*Selection, error) {
	if opts.Load == nil {
		return nil, errors.New("Load is required")
	}
	records, err := opts.Load(ctx)
	state := newState(records, err)

	if err := screen.Init(); err != nil {
		return nil, err
	}
	defer screen.Fini()

	previewCh := make(chan previewEvent, 8)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			screen.PostEvent(&uiEvent{when: time.Now(), kind: "quit"})
		case <-done:
		}
	}()

	for {
		draw(screen, state, opts, previewCh)
		ev := screen.PollEvent()

		switch tev := ev.(type) {
		case nil:
			return nil, nil
		case *uiEvent:
			switch tev.kind {
			case "quit":
				return nil, ctx.Err()
			case "preview":
				drainPreviews(state, previewCh)
			}
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			selection, err := handleKey(ctx, screen, state, opts, tev)
			if err != nil {
				if errors.Is(err, errQuit) {
					return nil, nil
				}
				return nil, err
			}
			if selection != nil {
				return selection, nil
			}
		}
	}
}

func drainPreviews(state *uiState, previewCh <-chan previewEvent) {
	for {
		select {
		case ev := <-previewCh:
			if ev.err != nil {
				state.previewError[ev.key] = ev.err.Error()
			} else {
				state.previewCache[ev.key] = ev.text
				delete(state.previewError, ev.key)
			}
			state.previewLoading[ev.key] = false
		default:
			return
		}
	}
}

func handleKey(
	ctx context.Context,
	screen tcell.Screen,
	state *uiState,
	opts Options,
	ev *tcell.EventKey,
) (*Selection, error) {
	if state.inputMode != "" {
		handleInputKey(state, ev)
		return nil, nil
	}

	switch ev.Key() {
	case tcell.KeyCtrlR:
		refreshState(ctx, state, opts)
		return nil, nil
	case tcell.KeyCtrlC, tcell.KeyESC:
		return nil, errQuit
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q', 'Q':
			return nil, errQuit
		case 'r', 'R':
			refreshState(ctx, state, opts)
			return nil, nil
		case '/':
			state.inputMode = state.focus
			if state.focus == "workspaces" {
				state.inputBuffer = state.workspaceFilter
			} else if state.focus == "sessions" {
				state.inputBuffer = state.sessionFilter
			} else {
				state.previewSearchBuf = state.previewSearch
			}
			return nil, nil
		case 'h', 'H':
			moveFocusLeft(state)
			return nil, nil
		case 'l', 'L':
			moveFocusRight(state)
			return nil, nil
		case 'n', 'N':
			if state.focus == "preview" && len(state.previewMatches) > 0 {
				lay := computeLayout(screen)
				if ev.Rune() == 'n' {
					state.previewMatchIdx = (state.previewMatchIdx + 1) % len(state.previewMatches)
				} else {
					state.previewMatchIdx = (state.previewMatchIdx - 1 + len(state.previewMatches)) % len(state.previewMatches)
				}
				matchLine := state.previewMatches[state.previewMatchIdx]
				state.previewState.scroll = previewScrollToMatch(matchLine, max(0, lay.preview.h-2))
				return nil, nil
			}
		}
	case tcell.KeyTab:
		switch state.focus {
		case "workspaces":
			state.focus, state.lastListFocus = "sessions", "sessions"
		case "sessions":
			state.focus = "preview"
		default:
			state.focus, state.lastListFocus = "workspaces", "workspaces"
		}
		return nil, nil
	case tcell.KeyLeft:
		moveFocusLeft(state)
		return nil, nil
	case tcell.KeyRight:
		moveFocusRight(state)
		return nil, nil
	}

	lay := computeLayout(screen)
	listFocus := state.focus
	if lay.mode == "1col" && state.focus == "preview" {
		listFocus = state.lastListFocus
	}

	workspaces := filterWorkspaces(buildWorkspaceItems(state.records, opts.DefaultCwd), state.workspaceFilter)
	state.workspaceState.clamp(len(workspaces))
	ws := selectedWorkspace(workspaces, state.workspaceState.selected)

	sessions := filterSessions(buildSessionItems(ws), state.sessionFilter)
	state.sessionState.clamp(len(sessions))
	rec, hasRecord := selectedRecord(sessions, state.sessionState.selected)

	enterPressed := ev.Key() == tcell.KeyEnter || ev.Key() == tcell.KeyCtrlJ
	if ev.Key() == tcell.KeyRune && (ev.Rune() == '\n' || ev.Rune() == '\r') {
		enterPressed = true
	}
	if enterPressed {
		if state.focus == "workspaces" {
			if len(sessions) > 0 {
				state.focus, state.lastListFocus = "sessions", "sessions"
			}
			return nil, nil
		}
		if hasRecord {
			return &Selection{Record: rec}, nil
		}
		return nil, nil
	}

	if state.focus == "preview" && isPreviewNavKey(ev) {
		lines := buildWrappedLines(buildPreviewLines(ws, rec, hasRecord, state), max(0, lay.preview.w-2))
		applyPreviewNavigation(&state.previewState, len(lines), max(0, lay.preview.h-2), ev)
		return nil, nil
	}

	switch listFocus {
	case "workspaces":
		prev := state.workspaceState.selected
		applyListNavigation(&state.workspaceState, len(workspaces), lay.workspaces.h-2, ev)
		if state.workspaceState.selected != prev {
			state.sessionState = listState{}
			state.previewState = previewState{}
		}
	case "sessions":
		prev := state.sessionState.selected
		applyListNavigation(&state.sessionState, len(sessions), lay.sessions.h-2, ev)
		if state.sessionState.selected != prev {
			state.previewState = previewState{}
		}
	}
	return nil, nil
}

func handleInputKey(state *uiState, ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyESC:
		if state.inputMode == "preview" {
			state.previewSearchBuf = state.previewSearch
		}
		state.inputMode = ""
		state.inputBuffer = ""
	case tcell.KeyEnter:
		switch state.inputMode {
		case "workspaces":
			state.workspaceFilter = strings.TrimSpace(state.inputBuffer)
			state.workspaceState = listState{}
		case "sessions":
			state.sessionFilter = strings.TrimSpace(state.inputBuffer)
			state.sessionState = listState{}
		case "preview":
			state.previewSearch = strings.TrimSpace(state.previewSearchBuf)
			state.previewSearchBuf = state.previewSearch
			state.previewMatchIdx = 0
			state.previewSearchKey = ""
		}
		state.inputMode = ""
		state.inputBuffer = ""
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if state.inputMode == "preview" {
			if n := len(state.previewSearchBuf); n > 0 {
				state.previewSearchBuf = state.previewSearchBuf[:n-1]
			}
		} else if n := len(state.inputBuffer); n > 0 {
			state.inputBuffer = state.inputBuffer[:n-1]
		}
	case tcell.KeyRune:
		ch := ev.Rune()
		if ch < 32 || ch > 126 {
			return
		}
		if state.inputMode == "preview" {
			state.previewSearchBuf += string(ch)
		} else {
			state.inputBuffer += string(ch)
		}
	}
}

func moveFocusLeft(state *uiState) {
	if state.focus == "preview" {
		state.focus = state.lastListFocus
		return
	}
	state.focus, state.lastListFocus = "workspaces", "workspaces"
}

func moveFocusRight(state *uiState) {
	switch state.focus {
	case "workspaces":
		state.focus, state.lastListFocus = "sessions", "sessions"
	case "sessions":
		state.focus = "preview"
	default:
		state.focus = state.lastListFocus
	}
}

func refreshState(ctx context.Context, state *uiState, opts Options) {
	records, err := opts.Load(ctx)
	if err != nil {
		state.loadError = err
		return
	}
	state.loadError = nil
	state.records = records
	state.workspaceState = listState{}
	state.sessionState = listState{}
	state.previewState = previewState{}
}

func computeLayout(screen tcell.Screen) layout {
	maxX, maxY := screen.Size()
	usableH := max(1, maxY-1)

	if maxX >= 120 && usableH >= 10 {
		leftW := min(40, max(24, maxX/4))
		midW := min(60, max(32, maxX/3))
		rightW := max(20, maxX-leftW-midW)
		return layout{
			workspaces: rect{y: 0, x: 0, h: usableH, w: leftW},
			sessions:   rect{y: 0, x: leftW, h: usableH, w: midW},
			preview:    rect{y: 0, x: leftW + midW, h: usableH, w: rightW},
			mode:       "3col",
		}
	}

	if maxX >= 80 && usableH >= 10 {
		leftW := min(40, max(24, maxX/3))
		rightW := maxX - leftW
		listH := max(6, int(float64(usableH)*0.6))
		prevH := max(3, usableH-listH)
		return layout{
			workspaces: rect{y: 0, x: 0, h: usableH, w: leftW},
			sessions:   rect{y: 0, x: leftW, h: listH, w: rightW},
			preview:    rect{y: listH, x: leftW, h: prevH, w: rightW},
			mode:       "2col",
		}
	}

	listH := max(1, int(float64(usableH)*0.6))
	if usableH > 1 {
		listH = clamp(listH, 1, usableH-1)
	}
	return layout{
		workspaces: rect{y: 0, x: 0, h: listH, w: maxX},
		sessions:   rect{y: 0, x: 0, h: listH, w: maxX},
		preview:    rect{y: listH, x: 0, h: usableH - listH, w: maxX},
		mode:       "1col",
	}
}

func draw(screen tcell.Screen, state *uiState, opts Options, previewCh chan<- previewEvent) {
	screen.Clear()
	lay := computeLayout(screen)

	workspaces := filterWorkspaces(buildWorkspaceItems(state.records, opts.DefaultCwd), state.workspaceFilter)
	state.workspaceState.clamp(len(workspaces))
	state.workspaceState.ensureVisible(lay.workspaces.h-2, len(workspaces))
	ws := selectedWorkspace(workspaces, state.workspaceState.selected)

	sessions := filterSessions(buildSessionItems(ws), state.sessionFilter)
	state.sessionState.clamp(len(sessions))
	state.sessionState.ensureVisible(lay.sessions.h-2, len(sessions))
	rec, hasRecord := selectedRecord(sessions, state.sessionState.selected)

	listFocus := state.focus
	if lay.mode == "1col" && state.focus == "preview" {
		listFocus = state.lastListFocus
	}

	workspaceFilter := state.workspaceFilter
	sessionFilter := state.sessionFilter
	if state.inputMode == "workspaces" {
		workspaceFilter = state.inputBuffer
	}
	if state.inputMode == "sessions" {
		sessionFilter = state.inputBuffer
	}

	if lay.mode == "1col" {
		if listFocus == "sessions" {
			drawBox(screen, lay.sessions, "Sessions", true, sessionFilter)
			drawList(screen, lay.sessions, renderSessionRows(sessions, true, state.sessionState, lay.sessions.h-2))
		} else {
			drawBox(screen, lay.workspaces, "Workspaces", listFocus == "workspaces", workspaceFilter)
			drawList(screen, lay.workspaces, renderWorkspaceRows(workspaces, listFocus == "workspaces", state.workspaceState, lay.workspaces.h-2))
		}
	} else {
		drawBox(screen, lay.workspaces, "Workspaces", state.focus == "workspaces", workspaceFilter)
		drawList(screen, lay.workspaces, renderWorkspaceRows(workspaces, state.focus == "workspaces", state.workspaceState, lay.workspaces.h-2))
		drawBox(screen, lay.sessions, "Sessions", state.focus == "sessions", sessionFilter)
		drawList(screen, lay.sessions, renderSessionRows(sessions, state.focus == "sessions", state.sessionState, lay.sessions.h-2))
	}

	if hasRecord {
		ensurePreview(screen, state, opts, rec, previewCh)
	}

	previewFilter := state.previewSearch
	if state.inputMode == "preview" {
		previewFilter = state.previewSearchBuf
	}
	drawBox(screen, lay.preview, "Preview", state.focus == "preview", previewFilter)
	lines := buildWrappedLines(buildPreviewLines(ws, rec, hasRecord, state), max(0, lay.preview.w-2))
	viewH := max(0, lay.preview.h-2)
	state.previewState.scroll = clamp(state.previewState.scroll, 0, max(0, len(lines)-viewH))

	searchKey := fmt.Sprintf("%s|%d|%d|%s", rec.File, lay.preview.w, len(lines), state.previewSearch)
	if searchKey != state.previewSearchKey {
		state.previewSearchKey = searchKey
		state.previewMatches = previewFindMatches(lines, state.previewSearch)
		state.previewMatchIdx = 0
		if len(state.previewMatches) > 0 {
			state.previewState.scroll = previewScrollToMatch(state.previewMatches[0], viewH)
		}
	}

	lineAttrs := map[int]tcell.Style{}
	if len(state.previewMatches) > 0 {
		lineAttrs[state.previewMatches[state.previewMatchIdx]] = tcell.StyleDefault.Reverse(true)
	}
	drawPreview(screen, lay.preview, lines, state.previewState.scroll, lineAttrs)

	drawStatus(screen, statusLine(state), versionLabel(opts.Version))
	screen.Show()
}

func statusLine(state *uiState) string {
	if state.loadError != nil {
		return fmt.Sprintf("Load error: %v", state.loadError)
	}
	if state.inputMode != "" {
		return "Type to search. Enter: apply  Esc: cancel"
	}
	if state.focus == "preview" {
		status := "Up/Down PgUp/PgDn: scroll  /: search  Enter: select  Tab/Left/Right: switch  q: quit"
		if state.previewSearch != "" && len(state.previewMatches) > 0 {
			status += "  n/N: next/prev"
		}
		return status
	}
	return "Tab/Left/Right: switch  /: search  Enter: select  r: refresh  q: quit"
}

func ensurePreview(screen tcell.Screen, state *uiState, opts Options, rec session.Record, previewCh chan<- previewEvent) {
	if opts.Preview == nil || rec.File == "" {
		return
	}
	key := rec.File
	if _, ok := state.previewCache[key]; ok {
		return
	}
	if _, ok := state.previewError[key]; ok || state.previewLoading[key] {
		return
	}
	state.previewLoading[key] = true

	go func() {
		text, err := opts.Preview(rec)
		previewCh <- previewEvent{key: key, text: text, err: err}
		screen.PostEvent(&uiEvent{when: time.Now(), kind: "preview"})
	}()
}

// buildWorkspaceItems groups records by backend and workspace in the order
// they were listed, pinning the workspace of defaultCwd first.
func buildWorkspaceItems(records []session.Record, defaultCwd string) []workspaceItem {
	var items []workspaceItem
	index := map[string]int{}
	for _, r := range records {
		key := r.Backend + "\x00" + r.Workspace
		i, ok := index[key]
		if !ok {
			i = len(items)
			index[key] = i
			items = append(items, workspaceItem{backend: r.Backend, workspace: r.Workspace, path: r.WorkspacePath})
		}
		items[i].records = append(items[i].records, r)
		if items[i].path == "" {
			items[i].path = r.WorkspacePath
		}
	}

	current := normalizePathForCompare(defaultCwd)
	currentIdx := -1
	for i := range items {
		it := &items[i]
		name := it.path
		if name == "" {
			name = it.workspace
		}
		it.label = fmt.Sprintf("%s  [%s] (%d)", name, it.backend, len(it.records))
		if currentIdx == -1 && current != "" && it.path != "" && normalizePathForCompare(it.path) == current {
			it.isCurrent = true
			it.label = "[current] " + it.label
			currentIdx = i
		}
	}
	if currentIdx > 0 {
		cur := items[currentIdx]
		items = append([]workspaceItem{cur}, append(items[:currentIdx], items[currentIdx+1:]...)...)
	}
	return items
}

func buildSessionItems(ws *workspaceItem) []sessionItem {
	if ws == nil {
		return nil
	}
	items := make([]sessionItem, 0, len(ws.records))
	for _, r := range ws.records {
		ts := "unknown"
		if !r.Modified.IsZero() {
			ts = r.Modified.Format("2006-01-02 15:04")
		}
		label := fmt.Sprintf("%s  %s", ts, sessionName(r))
		if r.CountKnown() {
			label += fmt.Sprintf("  (%d msgs)", r.MessageCount)
		}
		if r.Source != "" && r.Source != "local" {
			label += "  @" + r.Source
		}
		items = append(items, sessionItem{label: label, record: r})
	}
	return items
}

func sessionName(r session.Record) string {
	name := filepath.Base(r.File)
	return strings.TrimSuffix(strings.TrimSuffix(name, ".jsonl"), ".json")
}

func selectedWorkspace(items []workspaceItem, idx int) *workspaceItem {
	if idx < 0 || idx >= len(items) {
		return nil
	}
	return &items[idx]
}

func selectedRecord(items []sessionItem, idx int) (session.Record, bool) {
	if idx < 0 || idx >= len(items) {
		return session.Record{}, false
	}
	return items[idx].record, true
}

func normalizePathForCompare(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

func buildPreviewLines(ws *workspaceItem, rec session.Record, hasRecord bool, state *uiState) []string {
	if state.loadError != nil {
		return []string{fmt.Sprintf("Load error: %v", state.loadError)}
	}
	if len(state.records) == 0 {
		return []string{"No sessions found."}
	}

	var lines []string
	if ws != nil {
		lines = append(lines, "Workspace:")
		if ws.path != "" {
			lines = append(lines, "  "+ws.path)
		}
		lines = append(lines, "  Encoded: "+ws.workspace, "  Backend: "+ws.backend)
	}
	if !hasRecord {
		return append(lines, "", "Select a session to preview.")
	}

	lines = append(lines, "", "Session:", "  File: "+rec.File)
	if rec.Source != "" {
		lines = append(lines, "  Source: "+rec.Source)
	}
	lines = append(lines, "  Path confidence: "+rec.Confidence.String())
	if rec.CountKnown() {
		lines = append(lines, fmt.Sprintf("  Messages: %d", rec.MessageCount))
	}
	if !rec.Modified.IsZero() {
		lines = append(lines, "  Modified: "+rec.Modified.Format(time.RFC3339))
	}

	text := previewTextFor(state, rec)
	if text != "" {
		lines = append(lines, "", "Preview:", text)
	}
	return lines
}

func previewTextFor(state *uiState, rec session.Record) string {
	if msg, ok := state.previewError[rec.File]; ok && msg != "" {
		return "Preview failed: " + msg
	}
	if text, ok := state.previewCache[rec.File]; ok && text != "" {
		return text
	}
	if state.previewLoading[rec.File] {
		return "Loading preview…"
	}
	return ""
}

type row struct {
	label    string
	bold     bool
	selected bool
	focused  bool
}

func renderWorkspaceRows(items []workspaceItem, focused bool, state listState, viewH int) []row {
	rows := make([]row, 0, min(len(items), max(0, viewH)))
	start := clamp(state.scroll, 0, max(0, len(items)))
	end := min(len(items), start+max(0, viewH))
	for i := start; i < end; i++ {
		rows = append(rows, row{label: items[i].label, bold: items[i].isCurrent})
	}
	return applySelection(rows, focused, listState{selected: state.selected - start})
}

func renderSessionRows(items []sessionItem, focused bool, state listState, viewH int) []row {
	rows := make([]row, 0, min(len(items), max(0, viewH)))
	start := clamp(state.scroll, 0, max(0, len(items)))
	end := min(len(items), start+max(0, viewH))
	for i := start; i < end; i++ {
		rows = append(rows, row{label: items[i].label})
	}
	return applySelection(rows, focused, listState{selected: state.selected - start})
}

func applySelection(rows []row, focused bool, state listState) []row {
	if len(rows) == 0 {
		return rows
	}
	state.clamp(len(rows))
	rows[state.selected].selected = true
	rows[state.selected].focused = focused
	return rows
}

func filterWorkspaces(items []workspaceItem, needle string) []workspaceItem {
	n := strings.ToLower(strings.TrimSpace(needle))
	if n == "" {
		return items
	}
	out := make([]workspaceItem, 0, len(items))
	for _, it := range items {
		if it.isCurrent || strings.Contains(strings.ToLower(it.label), n) || strings.Contains(strings.ToLower(it.workspace), n) {
			out = append(out, it)
		}
	}
	return out
}

func filterSessions(items []sessionItem, needle string) []sessionItem {
	n := strings.ToLower(strings.TrimSpace(needle))
	if n == "" {
		return items
	}
	out := make([]sessionItem, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.label), n) {
			out = append(out, it)
		}
	}
	return out
}

func previewFindMatches(lines []string, needle string) []int {
	n := strings.ToLower(strings.TrimSpace(needle))
	if n == "" {
		return nil
	}
	var out []int
	for i, ln := range lines {
		if strings.Contains(strings.ToLower(ln), n) {
			out = append(out, i)
		}
	}
	return out
}

func previewScrollToMatch(matchLine int, viewH int) int {
	return max(0, matchLine-(max(1, viewH)/2))
}

func isPreviewNavKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyUp, tcell.KeyDown, tcell.KeyPgUp, tcell.KeyPgDn, tcell.KeyHome, tcell.KeyEnd:
		return true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'j', 'J', 'k', 'K', 'g', 'G':
			return true
		}
	}
	return false
}

func applyListNavigation(state *listState, nItems int, viewH int, ev *tcell.EventKey) {
	if nItems <= 0 {
		*state = listState{}
		return
	}
	switch ev.Key() {
	case tcell.KeyUp:
		state.selected = clamp(state.selected-1, 0, nItems-1)
	case tcell.KeyDown:
		state.selected = clamp(state.selected+1, 0, nItems-1)
	case tcell.KeyPgUp:
		state.selected = clamp(state.selected-max(1, viewH), 0, nItems-1)
	case tcell.KeyPgDn:
		state.selected = clamp(state.selected+max(1, viewH), 0, nItems-1)
	case tcell.KeyHome:
		state.selected = 0
	case tcell.KeyEnd:
		state.selected = nItems - 1
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'k', 'K':
			state.selected = clamp(state.selected-1, 0, nItems-1)
		case 'j', 'J':
			state.selected = clamp(state.selected+1, 0, nItems-1)
		case 'g':
			state.selected = 0
		case 'G':
			state.selected = nItems - 1
		default:
			return
		}
	default:
		return
	}
	state.ensureVisible(viewH, nItems)
}

func applyPreviewNavigation(state *previewState, nLines int, viewH int, ev *tcell.EventKey) {
	if nLines <= 0 || viewH <= 0 {
		state.scroll = 0
		return
	}
	last := max(0, nLines-viewH)
	switch ev.Key() {
	case tcell.KeyUp:
		state.scroll = clamp(state.scroll-1, 0, last)
	case tcell.KeyDown:
		state.scroll = clamp(state.scroll+1, 0, last)
	case tcell.KeyPgUp:
		state.scroll = clamp(state.scroll-max(1, viewH), 0, last)
	case tcell.KeyPgDn:
		state.scroll = clamp(state.scroll+max(1, viewH), 0, last)
	case tcell.KeyHome:
		state.scroll = 0
	case tcell.KeyEnd:
		state.scroll = last
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'k', 'K':
			state.scroll = clamp(state.scroll-1, 0, last)
		case 'j', 'J':
			state.scroll = clamp(state.scroll+1, 0, last)
		case 'g':
			state.scroll = 0
		case 'G':
			state.scroll = last
		}
	}
}

func (s *listState) clamp(nItems int) {
	if nItems <= 0 {
		*s = listState{}
		return
	}
	s.selected = clamp(s.selected, 0, nItems-1)
	s.scroll = clamp(s.scroll, 0, max(0, nItems-1))
}

func (s *listState) ensureVisible(viewH int, nItems int) {
	if nItems <= 0 || viewH <= 0 {
		s.scroll = 0
		return
	}
	if s.selected < s.scroll {
		s.scroll = s.selected
	} else if s.selected >= s.scroll+viewH {
		s.scroll = s.selected - viewH + 1
	}
	s.scroll = clamp(s.scroll, 0, max(0, nItems-viewH))
}

func drawBox(screen tcell.Screen, r rect, title string, focused bool, filter string) {
	if r.w <= 0 || r.h <= 0 {
		return
	}
	borderStyle := tcell.StyleDefault.Dim(true)
	if focused {
		borderStyle = tcell.StyleDefault.Bold(true)
	}
	for x := r.x + 1; x < r.x+r.w-1; x++ {
		screen.SetContent(x, r.y, tcell.RuneHLine, nil, borderStyle)
		screen.SetContent(x, r.y+r.h-1, tcell.RuneHLine, nil, borderStyle)
	}
	for y := r.y + 1; y < r.y+r.h-1; y++ {
		screen.SetContent(r.x, y, tcell.RuneVLine, nil, borderStyle)
		screen.SetContent(r.x+r.w-1, y, tcell.RuneVLine, nil, borderStyle)
	}
	screen.SetContent(r.x, r.y, tcell.RuneULCorner, nil, borderStyle)
	screen.SetContent(r.x+r.w-1, r.y, tcell.RuneURCorner, nil, borderStyle)
	screen.SetContent(r.x, r.y+r.h-1, tcell.RuneLLCorner, nil, borderStyle)
	screen.SetContent(r.x+r.w-1, r.y+r.h-1, tcell.RuneLRCorner, nil, borderStyle)

	titleStyle := tcell.StyleDefault.Reverse(true)
	if focused {
		titleStyle = titleStyle.Bold(true)
		title = "> " + title + " <"
	} else {
		title = " " + title + " "
	}
	maxTitleWidth := max(0, r.w-2)
	title = truncate(title, maxTitleWidth)
	titleX := r.x + 1 + max(0, (maxTitleWidth-displayWidth(title))/2)
	writeText(screen, titleX, r.y, title, titleStyle)

	if filter != "" && r.h >= 2 {
		writeText(screen, r.x+1, r.y+r.h-1, truncate("/"+filter, r.w-2), borderStyle.Dim(true))
	}
}

func drawList(screen tcell.Screen, r rect, rows []row) {
	if r.h < 3 || r.w < 4 {
		return
	}
	innerH := r.h - 2
	innerW := r.w - 2
	for i := 0; i < innerH; i++ {
		y := r.y + 1 + i
		if i >= len(rows) {
			writeText(screen, r.x+1, y, padRight("", innerW), tcell.StyleDefault)
			continue
		}
		rw := rows[i]
		style := tcell.StyleDefault
		if rw.bold {
			style = style.Bold(true)
		}
		if rw.selected {
			style = style.Reverse(true)
			if rw.focused {
				style = style.Bold(true)
			} else {
				style = style.Dim(true)
			}
		}
		writeText(screen, r.x+1, y, padRight(truncate(rw.label, innerW), innerW), style)
	}
}

func drawPreview(screen tcell.Screen, r rect, lines []string, scroll int, lineAttrs map[int]tcell.Style) {
	if r.h < 3 || r.w < 4 {
		return
	}
	innerH := r.h - 2
	innerW := r.w - 2
	scroll = clamp(scroll, 0, max(0, len(lines)-innerH))
	for i := 0; i < innerH; i++ {
		y := r.y + 1 + i
		idx := scroll + i
		if idx >= len(lines) {
			writeText(screen, r.x+1, y, padRight("", innerW), tcell.StyleDefault)
			continue
		}
		style := tcell.StyleDefault
		if attr, ok := lineAttrs[idx]; ok {
			style = attr
		}
		writeText(screen, r.x+1, y, padRight(truncate(lines[idx], innerW), innerW), style)
	}
}

func drawStatus(screen tcell.Screen, left string, right string) {
	w, h := screen.Size()
	if h <= 0 {
		return
	}
	y := h - 1
	writeText(screen, 0, y, padRight(truncate(left, w), w), tcell.StyleDefault.Reverse(true))
	if right == "" {
		return
	}
	r := truncate(right, w)
	writeText(screen, max(0, w-displayWidth(r)), y, r, tcell.StyleDefault.Reverse(true))
}

func writeText(screen tcell.Screen, x, y int, text string, style tcell.Style) {
	offset := 0
	for _, ch := range text {
		width := runewidth.RuneWidth(ch)
		if width == 0 {
			continue
		}
		screen.SetContent(x+offset, y, ch, nil, style)
		offset += width
	}
}

func buildWrappedLines(lines []string, width int) []string {
	if width <= 0 {
		return nil
	}
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		out = append(out, wrapText(ln, width)...)
	}
	return out
}

func wrapText(s string, width int) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		if ln == "" {
			out = append(out, "")
			continue
		}
		var buf strings.Builder
		curWidth := 0
		for _, ch := range ln {
			chWidth := runewidth.RuneWidth(ch)
			if chWidth == 0 {
				buf.WriteRune(ch)
				continue
			}
			if curWidth+chWidth > width && curWidth > 0 {
				out = append(out, buf.String())
				buf.Reset()
				curWidth = 0
			}
			buf.WriteRune(ch)
			curWidth += chWidth
		}
		out = append(out, buf.String())
	}
	return out
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if displayWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "")
}

func padRight(s string, width int) string {
	if w := displayWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func displayWidth(s string) int {
	return runewidth.StringWidth(s)
}

func versionLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") && v != "dev" {
		v = "v" + v
	}
	return "agent-history " + v
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
