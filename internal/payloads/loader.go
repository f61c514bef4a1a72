// Package payloads loads candidate payloads for confirmation against the
// oracle
package payloads

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoPayloads is returned when a payloads file holds no usable line
var ErrNoPayloads = errors.New("no payloads found")

// maxLineSize bounds a single payload line
const maxLineSize = 1024 * 1024

// Load reads one payload per line from path. Lines are trimmed; blank lines
// and lines starting with # are skipped; duplicates keep their first
// position.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open payloads file: %w", err)
	}
	defer f.Close()

	payloads, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return payloads, nil
}

// Parse reads payloads from r with the same rules as Load
func Parse(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var payloads []string
	seen := make(map[string]bool)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		payloads = append(payloads, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payloads: %w", err)
	}

	if len(payloads) == 0 {
		return nil, ErrNoPayloads
	}
	return payloads, nil
}
