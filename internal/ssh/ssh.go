// Package ssh builds ssh and rsync invocations for reading session trees on
// remote hosts.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host string
	Port int
	User string
	// ExtraArgs are passed to ssh before the destination, e.g. -i keyfile.
	ExtraArgs      []string
	BatchMode      bool
	ConnectTimeout time.Duration
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("missing ssh host")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid ssh port: %d", c.Port)
	}
	return nil
}

// Destination is user@host, or host when no user is configured.
func (c Config) Destination() string {
	if c.User == "" {
		return c.Host
	}
	return c.User + "@" + c.Host
}

func (c Config) options() []string {
	var args []string
	if c.Port > 0 {
		args = append(args, "-p", strconv.Itoa(c.Port))
	}
	if c.BatchMode {
		args = append(args, "-o", "BatchMode=yes")
	}
	if c.ConnectTimeout > 0 {
		secs := int(c.ConnectTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		args = append(args, "-o", "ConnectTimeout="+strconv.Itoa(secs))
	}
	return append(args, c.ExtraArgs...)
}

// BuildArgs returns the ssh arguments that run remoteCmd on the host.
func BuildArgs(cfg Config, remoteCmd ...string) ([]string, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	args := cfg.options()
	args = append(args, cfg.Destination())
	return append(args, remoteCmd...), nil
}

// ListDirCommand is the remote command that prints one entry name per line
// for dir, relative to the remote home, directories suffixed with "/". A
// missing dir prints nothing.
func ListDirCommand(dir string) string {
	return "cd " + ShellQuote(dir) + " 2>/dev/null && ls -1Ap || true"
}

// BuildRsyncArgs returns rsync arguments copying remoteDir into localDir,
// both treated as directories.
func BuildRsyncArgs(cfg Config, remoteDir, localDir string) ([]string, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if remoteDir == "" || localDir == "" {
		return nil, errors.New("rsync needs both a remote and a local directory")
	}
	shell := append([]string{"ssh"}, cfg.options()...)
	quoted := make([]string, len(shell))
	for i, a := range shell {
		quoted[i] = ShellQuote(a)
	}
	return []string{
		"-a",
		"--delete",
		"-e", strings.Join(quoted, " "),
		cfg.Destination() + ":" + strings.TrimSuffix(remoteDir, "/") + "/",
		strings.TrimSuffix(localDir, "/") + "/",
	}, nil
}

// ShellQuote quotes s for a POSIX shell when needed.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./=:@,+%", r):
		default:
			safe = false
		}
		if !safe {
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec and returns their stdout.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	c := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	c.Stderr = &stderr
	out, err := c.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Probe checks that a non-interactive login to the host works.
func Probe(ctx context.Context, r Runner, cfg Config) error {
	cfg.BatchMode = true
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	args, err := BuildArgs(cfg, "exit")
	if err != nil {
		return err
	}
	_, err = r.Run(ctx, "ssh", args...)
	return err
}
