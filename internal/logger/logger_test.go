package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWritersDerivePathsFromDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, errW, err := c.Writers("svc")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatal("writers not created with dir set")
	}
	if _, err := outW.Write([]byte("hello stdout\n")); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if _, err := errW.Write([]byte("hello stderr\n")); err != nil {
		t.Fatalf("write stderr: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()

	b, err := os.ReadFile(filepath.Join(dir, "svc.stdout.log"))
	if err != nil || !strings.Contains(string(b), "hello stdout") {
		t.Fatalf("stdout file: err=%v content=%q", err, string(b))
	}
	b, err = os.ReadFile(filepath.Join(dir, "svc.stderr.log"))
	if err != nil || !strings.Contains(string(b), "hello stderr") {
		t.Fatalf("stderr file: err=%v content=%q", err, string(b))
	}
}

func TestWritersExplicitPathsWin(t *testing.T) {
	dir := t.TempDir()
	c := Config{
		Dir:        dir,
		StdoutPath: filepath.Join(dir, "custom-out.log"),
	}
	outW, errW, err := c.Writers("svc")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if _, err := outW.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()
	if _, err := os.Stat(filepath.Join(dir, "custom-out.log")); err != nil {
		t.Fatalf("explicit stdout path not used: %v", err)
	}
}

func TestWritersNilWithoutConfig(t *testing.T) {
	outW, errW, err := Config{}.Writers("svc")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatal("no destinations configured should yield nil writers")
	}
}

func TestNewAcceptsAllLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		if l := New(lvl); l == nil {
			t.Fatalf("nil logger for level %q", lvl)
		}
	}
}
