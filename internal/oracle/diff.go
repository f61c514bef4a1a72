package oracle

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/diff/ctxt"
	"github.com/pkg/diff/myers"
	"github.com/pkg/diff/write"
)

// maxDiffSize caps diff evidence kept in the trace
const maxDiffSize = 4096

// UnifiedDiff renders a line-level unified diff of a and b with three
// lines of context
func UnifiedDiff(nameA, nameB, a, b string) string {
	ab := &lines{a: splitLines(a), b: splitLines(b)}
	s := myers.Diff(context.Background(), ab)
	s = ctxt.Size(s, 3)

	var sb strings.Builder
	if err := write.Unified(s, &sb, ab, write.Names(nameA, nameB)); err != nil {
		return "diff failed: " + err.Error()
	}
	return preview(sb.String(), maxDiffSize)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// lines adapts two line slices to the diff packages
type lines struct {
	a, b []string
}

func (ab *lines) LenA() int             { return len(ab.a) }
func (ab *lines) LenB() int             { return len(ab.b) }
func (ab *lines) Equal(ai, bi int) bool { return ab.a[ai] == ab.b[bi] }

func (ab *lines) WriteATo(w io.Writer, i int) (int, error) {
	return io.WriteString(w, ab.a[i])
}

func (ab *lines) WriteBTo(w io.Writer, i int) (int, error) {
	return io.WriteString(w, ab.b[i])
}
