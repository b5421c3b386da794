package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/baaaaaaaka/agent_history/internal/ssh"
)

func TestSSHMirrorSkipsCachedEntries(t *testing.T) {
	local := t.TempDir()
	src := Source{Kind: KindRemote, Name: "host1", Home: local, SSH: ssh.Config{Host: "host1", BatchMode: true}}
	r := &fakeRunner{
		outputs: map[string][]byte{
			"ssh -o BatchMode=yes host1": []byte("-srv-app/\nremote_host2_-x/\nwsl_Ubuntu_-home-a/\n-srv-api/\nnotes.txt\n"),
		},
		errs: map[string]error{"rsync -a --delete -e ssh -o BatchMode=yes host1:.claude/projects/-srv-api/": errors.New("exit 23")},
	}

	stats, err := SSHMirror{Runner: r}.Sync(context.Background(), src, ".claude/projects", filepath.Join(local, ".claude", "projects"))
	if err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if stats.Fetched != 1 || stats.Skipped != 2 || stats.Failed != 1 {
		t.Fatalf("stats=%#v calls=%v", stats, r.calls)
	}

	var rsyncs []string
	for _, c := range r.calls {
		if strings.HasPrefix(c, "rsync ") {
			rsyncs = append(rsyncs, c)
		}
	}
	if len(rsyncs) != 2 {
		t.Fatalf("rsync calls=%v", rsyncs)
	}
	want := filepath.Join(local, ".claude", "projects", "remote_host1_-srv-app") + "/"
	if !strings.HasSuffix(rsyncs[0], want) {
		t.Fatalf("rsync target %q does not end with %q", rsyncs[0], want)
	}
	if _, err := os.Stat(filepath.Join(local, ".claude", "projects")); err != nil {
		t.Fatalf("mirror root not created: %v", err)
	}
}

func TestSSHMirrorRejectsUnmirroredSource(t *testing.T) {
	if _, err := (SSHMirror{Runner: &fakeRunner{}}).Sync(context.Background(), Local(t.TempDir()), "x", t.TempDir()); err == nil {
		t.Fatalf("expected error for local source")
	}
}

func TestSSHMirrorListFailure(t *testing.T) {
	src := Source{Kind: KindRemote, Name: "host1", SSH: ssh.Config{Host: "host1"}}
	r := &fakeRunner{errs: map[string]error{"ssh": errors.New("connection refused")}}
	if _, err := (SSHMirror{Runner: r}).Sync(context.Background(), src, ".codex/sessions", t.TempDir()); err == nil {
		t.Fatalf("expected listing error")
	}
}
