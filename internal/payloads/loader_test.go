package payloads

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Parse tests ---

func TestParse(t *testing.T) {
	input := "# sqli\n' OR '1'='1\n\n  <script>alert(1)</script>  \r\n# dup below\n' OR '1'='1\n../../etc/passwd\n"

	got, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"' OR '1'='1", "<script>alert(1)</script>", "../../etc/passwd"}
	if len(got) != len(expected) {
		t.Fatalf("expected %d payloads, got %d: %q", len(expected), len(got), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("payload %d: expected %q, got %q", i, expected[i], got[i])
		}
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(strings.NewReader("\n# only comments\n   \n"))
	if !errors.Is(err, ErrNoPayloads) {
		t.Fatalf("expected ErrNoPayloads, got %v", err)
	}
}

func TestParse_LongLine(t *testing.T) {
	long := strings.Repeat("A", 200*1024)
	got, err := Parse(strings.NewReader(long + "\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || len(got[0]) != len(long) {
		t.Fatalf("expected one payload of %d bytes", len(long))
	}
}

// --- Load tests ---

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payloads.txt")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0644); err != nil {
		t.Fatalf("failed to write payloads: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b], got %q", got)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}
