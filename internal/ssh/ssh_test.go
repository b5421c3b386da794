package ssh

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestBuildArgs_IncludesRequiredOptions(t *testing.T) {
	cfg := Config{
		Host:           "example.com",
		Port:           2222,
		User:           "alice",
		ExtraArgs:      []string{"-i", "/tmp/key"},
		BatchMode:      true,
		ConnectTimeout: 5 * time.Second,
	}

	args, err := BuildArgs(cfg, ListDirCommand(".claude/projects"))
	if err != nil {
		t.Fatalf("BuildArgs error: %v", err)
	}

	want := []string{
		"-p", "2222",
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=5",
		"-i", "/tmp/key",
		"alice@example.com",
		"cd .claude/projects 2>/dev/null && ls -1Ap || true",
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args mismatch\n got: %#v\nwant: %#v", args, want)
	}
}

func TestBuildArgs_DefaultsAndValidation(t *testing.T) {
	args, err := BuildArgs(Config{Host: "box"}, "exit")
	if err != nil {
		t.Fatalf("BuildArgs error: %v", err)
	}
	if !reflect.DeepEqual(args, []string{"box", "exit"}) {
		t.Fatalf("args=%#v", args)
	}

	if _, err := BuildArgs(Config{Host: " "}); err == nil {
		t.Fatalf("expected error for missing host")
	}
	if _, err := BuildArgs(Config{Host: "h", Port: 70000}); err == nil {
		t.Fatalf("expected error for invalid port")
	}
}

func TestBuildRsyncArgs(t *testing.T) {
	cfg := Config{Host: "example.com", User: "alice", Port: 2222, ExtraArgs: []string{"-i", "/tmp/my key"}, BatchMode: true}
	args, err := BuildRsyncArgs(cfg, ".claude/projects/-srv-app", "/cache/remote_example.com_-srv-app/")
	if err != nil {
		t.Fatalf("BuildRsyncArgs error: %v", err)
	}
	want := []string{
		"-a",
		"--delete",
		"-e", "ssh -p 2222 -o BatchMode=yes -i '/tmp/my key'",
		"alice@example.com:.claude/projects/-srv-app/",
		"/cache/remote_example.com_-srv-app/",
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("args mismatch\n got: %#v\nwant: %#v", args, want)
	}

	if _, err := BuildRsyncArgs(cfg, "", "/x"); err == nil {
		t.Fatalf("expected error for empty remote dir")
	}
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"":              "''",
		"plain/path-1":  "plain/path-1",
		"has space":     "'has space'",
		"it's":          `'it'"'"'s'`,
		"$HOME/.claude": "'$HOME/.claude'",
	}
	for in, want := range cases {
		if got := ShellQuote(in); got != want {
			t.Fatalf("ShellQuote(%q)=%q want %q", in, got, want)
		}
	}
}

type recordingRunner struct {
	name string
	args []string
	err  error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.name = name
	r.args = args
	return nil, r.err
}

func TestProbeForcesBatchMode(t *testing.T) {
	r := &recordingRunner{}
	if err := Probe(context.Background(), r, Config{Host: "h", User: "u", Port: 22}); err != nil {
		t.Fatalf("Probe error: %v", err)
	}
	want := []string{"-p", "22", "-o", "BatchMode=yes", "-o", "ConnectTimeout=5", "u@h", "exit"}
	if r.name != "ssh" || !reflect.DeepEqual(r.args, want) {
		t.Fatalf("ran %s %#v", r.name, r.args)
	}

	r.err = errors.New("denied")
	if err := Probe(context.Background(), r, Config{Host: "h"}); err == nil {
		t.Fatalf("expected probe error")
	}
}
