package ddmin

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Decomposer splits a raw input into ordered units and joins them back.
// Implementations must satisfy Reconstruct(Decompose(x)) == x.
type Decomposer interface {
	// Decompose splits raw into units tagged with side
	Decompose(raw string, side Side) []Unit

	// Reconstruct joins units back into an input value
	Reconstruct(units []Unit) string

	// Name returns the granularity name
	Name() string
}

// Granularity names
const (
	GranularityChar  = "char"
	GranularityToken = "token"
	GranularityLine  = "line"
	GranularityField = "field"
)

// Granularities lists all supported granularity names
var Granularities = []string{GranularityChar, GranularityToken, GranularityLine, GranularityField}

// NewDecomposer returns the decomposer for a granularity name
func NewDecomposer(granularity string) (Decomposer, error) {
	switch strings.ToLower(granularity) {
	case "", GranularityChar:
		return CharDecomposer{}, nil
	case GranularityToken:
		return TokenDecomposer{}, nil
	case GranularityLine:
		return LineDecomposer{}, nil
	case GranularityField:
		return FieldDecomposer{Separator: "&"}, nil
	default:
		return nil, fmt.Errorf("unsupported granularity: %s", granularity)
	}
}

// CharDecomposer splits input into UTF-8 code points. Invalid bytes become
// single-byte units so no input byte is lost.
type CharDecomposer struct{}

// Name returns the granularity name
func (CharDecomposer) Name() string { return GranularityChar }

// Decompose splits raw into characters
func (CharDecomposer) Decompose(raw string, side Side) []Unit {
	units := make([]Unit, 0, len(raw))
	for i := 0; i < len(raw); {
		_, w := utf8.DecodeRuneInString(raw[i:])
		units = append(units, Unit{Side: side, Index: len(units), Value: raw[i : i+w]})
		i += w
	}
	return units
}

// Reconstruct concatenates unit values
func (CharDecomposer) Reconstruct(units []Unit) string {
	return concat(units)
}

// TokenDecomposer splits input into alternating runs of whitespace and
// non-whitespace
type TokenDecomposer struct{}

// Name returns the granularity name
func (TokenDecomposer) Name() string { return GranularityToken }

// Decompose splits raw into tokens
func (TokenDecomposer) Decompose(raw string, side Side) []Unit {
	var units []Unit
	start := 0
	inSpace := false
	for i, r := range raw {
		space := unicode.IsSpace(r)
		if i == 0 {
			inSpace = space
			continue
		}
		if space != inSpace {
			units = append(units, Unit{Side: side, Index: len(units), Value: raw[start:i]})
			start = i
			inSpace = space
		}
	}
	if start < len(raw) {
		units = append(units, Unit{Side: side, Index: len(units), Value: raw[start:]})
	}
	return units
}

// Reconstruct concatenates unit values
func (TokenDecomposer) Reconstruct(units []Unit) string {
	return concat(units)
}

// LineDecomposer splits input into lines, each keeping its newline
type LineDecomposer struct{}

// Name returns the granularity name
func (LineDecomposer) Name() string { return GranularityLine }

// Decompose splits raw into lines
func (LineDecomposer) Decompose(raw string, side Side) []Unit {
	var units []Unit
	for len(raw) > 0 {
		i := strings.IndexByte(raw, '\n')
		if i < 0 {
			units = append(units, Unit{Side: side, Index: len(units), Value: raw})
			break
		}
		units = append(units, Unit{Side: side, Index: len(units), Value: raw[:i+1]})
		raw = raw[i+1:]
	}
	return units
}

// Reconstruct concatenates unit values
func (LineDecomposer) Reconstruct(units []Unit) string {
	return concat(units)
}

// FieldDecomposer splits a query or form string into its fields
type FieldDecomposer struct {
	Separator string
}

// Name returns the granularity name
func (FieldDecomposer) Name() string { return GranularityField }

// Decompose splits raw on the separator
func (d FieldDecomposer) Decompose(raw string, side Side) []Unit {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, d.sep())
	units := make([]Unit, len(parts))
	for i, p := range parts {
		units[i] = Unit{Side: side, Index: i, Value: p}
	}
	return units
}

// Reconstruct joins unit values with the separator
func (d FieldDecomposer) Reconstruct(units []Unit) string {
	values := make([]string, len(units))
	for i, u := range units {
		values[i] = u.Value
	}
	return strings.Join(values, d.sep())
}

func (d FieldDecomposer) sep() string {
	if d.Separator == "" {
		return "&"
	}
	return d.Separator
}

func concat(units []Unit) string {
	var sb strings.Builder
	for _, u := range units {
		sb.WriteString(u.Value)
	}
	return sb.String()
}
