package pathcodec

import (
	"os"
	"path/filepath"
	"testing"
)

type mapLookup map[string]string

func (m mapLookup) Lookup(hash string) (string, bool) {
	p, ok := m[hash]
	return p, ok
}

func TestEncodeDash(t *testing.T) {
	cases := map[string]string{
		"/home/alice/my-proj":  "-home-alice-my-proj",
		"/home/alice/proj/":    "-home-alice-proj",
		"/":                    "-",
		`C:\Users\bob\proj`:    "C--Users-bob-proj",
		"c:/Users/bob":         "C--Users-bob",
		"/home//alice/./notes": "-home-alice-notes",
	}
	for in, want := range cases {
		if got := Encode(in, SchemeDash); got != want {
			t.Fatalf("Encode(%q)=%q want %q", in, got, want)
		}
	}
}

func TestEncodeDriveTranslatesMountPaths(t *testing.T) {
	if got := Encode("/mnt/c/Users/bob/proj", SchemeDrive); got != "C--Users-bob-proj" {
		t.Fatalf("Encode drive=%q", got)
	}
	if got := Encode(`D:\`, SchemeDrive); got != "D--" {
		t.Fatalf("Encode drive root=%q", got)
	}
}

func TestEncodeHashIsDeterministic(t *testing.T) {
	a := Encode("/home/alice/proj", SchemeHash)
	b := Encode("/home/alice/proj", SchemeHash)
	if a != b || len(a) != 64 {
		t.Fatalf("hash=%q/%q", a, b)
	}
	if a == Encode("/home/alice/proj2", SchemeHash) {
		t.Fatalf("expected distinct hashes")
	}
}

func TestDecodeWithoutBaseIsComputed(t *testing.T) {
	got := New(nil).Decode("-home-alice-my-proj", SchemeDash, "")
	if got.Path != "/home/alice/my/proj" {
		t.Fatalf("Path=%q", got.Path)
	}
	if got.Confidence != ConfidenceComputed {
		t.Fatalf("Confidence=%v", got.Confidence)
	}

	got = New(nil).Decode("-home-u--cfg", SchemeDash, "")
	if got.Path != "/home/u/.cfg" {
		t.Fatalf("hidden directory Path=%q", got.Path)
	}
}

func TestDecodeRoundTripPosix(t *testing.T) {
	base := t.TempDir()
	canonical := "/work/my-app/docs-v2"
	if err := os.MkdirAll(filepath.Join(base, "work", "my-app", "docs-v2"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got := New(nil).Decode(Encode(canonical, SchemeDash), SchemeDash, base)
	if got.Path != canonical {
		t.Fatalf("Path=%q want %q", got.Path, canonical)
	}
	if got.Confidence != ConfidenceVerified {
		t.Fatalf("Confidence=%v", got.Confidence)
	}
}

func TestDecodeRoundTripDrive(t *testing.T) {
	base := t.TempDir()
	canonical := `C:\Users\bob\my-proj`
	if err := os.MkdirAll(filepath.Join(base, "Users", "bob", "my-proj"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got := New(nil).Decode(Encode(canonical, SchemeDrive), SchemeDrive, base)
	if got.Path != canonical {
		t.Fatalf("Path=%q want %q", got.Path, canonical)
	}
	if got.Confidence != ConfidenceVerified {
		t.Fatalf("Confidence=%v", got.Confidence)
	}
}

func TestDecodeUnreachableBaseIsLowConfidence(t *testing.T) {
	got := New(nil).Decode("-srv-app", SchemeDash, filepath.Join(t.TempDir(), "gone"))
	if got.Path != "/srv/app" {
		t.Fatalf("Path=%q", got.Path)
	}
	if got.Confidence != ConfidenceComputed {
		t.Fatalf("Confidence=%v", got.Confidence)
	}
}

func TestDecodeStripsCachedPrefix(t *testing.T) {
	got := New(nil).Decode("remote_host1_-home-alice-proj", SchemeDash, "")
	if got.Path != "/home/alice/proj" {
		t.Fatalf("Path=%q", got.Path)
	}
}

func TestDecodeHash(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "repo"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	hash := HashPath("/repo")
	codec := New(mapLookup{hash: "/repo"})

	if got := codec.Decode(hash, SchemeHash, base); got.Path != "/repo" || got.Confidence != ConfidenceVerified {
		t.Fatalf("verified decode=%#v", got)
	}
	if got := codec.Decode(hash, SchemeHash, ""); got.Confidence != ConfidenceComputed {
		t.Fatalf("computed decode=%#v", got)
	}
	if got := codec.Decode(HashPath("/other"), SchemeHash, base); got.Confidence != ConfidenceUnresolved || got.Path != "" {
		t.Fatalf("miss decode=%#v", got)
	}
	if got := New(nil).Decode(hash, SchemeHash, base); got.Confidence != ConfidenceUnresolved {
		t.Fatalf("nil lookup decode=%#v", got)
	}
}

func TestDriveLetter(t *testing.T) {
	if got, ok := DriveLetter("c--Users-bob"); !ok || got != "C" {
		t.Fatalf("DriveLetter=%q,%v", got, ok)
	}
	if _, ok := DriveLetter("-home-bob"); ok {
		t.Fatalf("expected dash name to have no drive")
	}
}

func TestNormalizePattern(t *testing.T) {
	if got := NormalizePattern("proj/sub"); got != "proj-sub" {
		t.Fatalf("NormalizePattern=%q", got)
	}
	if got := NormalizePattern(`C:\work`); got != "C--work" {
		t.Fatalf("NormalizePattern=%q", got)
	}
}
