package ddmin

import "sort"

// split divides units into n contiguous partitions whose sizes differ by
// at most one. Earlier partitions take the extra units.
func split(units []Unit, n int) [][]Unit {
	if n > len(units) {
		n = len(units)
	}
	if n < 1 {
		return nil
	}

	parts := make([][]Unit, 0, n)
	size, extra := len(units)/n, len(units)%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		parts = append(parts, units[start:end])
		start = end
	}
	return parts
}

// complement joins every partition except the i-th
func complement(parts [][]Unit, i int) []Unit {
	var out []Unit
	for j, p := range parts {
		if j != i {
			out = append(out, p...)
		}
	}
	return out
}

// splitInts is split for sorted position sets
func splitInts(set []int, n int) [][]int {
	if n > len(set) {
		n = len(set)
	}
	if n < 1 {
		return nil
	}

	parts := make([][]int, 0, n)
	size, extra := len(set)/n, len(set)%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		parts = append(parts, set[start:end])
		start = end
	}
	return parts
}

// union returns the sorted union of two sorted sets
func union(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, s := range [][]int{a, b} {
		for _, v := range s {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}

// difference returns the sorted elements of a not in b
func difference(a, b []int) []int {
	drop := make(map[int]bool, len(b))
	for _, v := range b {
		drop[v] = true
	}
	out := make([]int, 0, len(a))
	for _, v := range a {
		if !drop[v] {
			out = append(out, v)
		}
	}
	return out
}

// alignment pairs the failing and passing unit sequences by index. There
// is no LCS alignment: position i of one side faces position i of the
// other.
type alignment struct {
	decomposer Decomposer
	failing    []Unit
	passing    []Unit
	changes    []int
}

func newAlignment(d Decomposer, failing, passing string) *alignment {
	al := &alignment{
		decomposer: d,
		failing:    d.Decompose(failing, SideFailing),
		passing:    d.Decompose(passing, SidePassing),
	}

	width := max(len(al.failing), len(al.passing))
	al.changes = make([]int, 0, width)
	for i := 0; i < width; i++ {
		if i >= len(al.failing) || i >= len(al.passing) || al.failing[i].Value != al.passing[i].Value {
			al.changes = append(al.changes, i)
		}
	}
	return al
}

// build reconstructs the passing input with the given changes applied.
// An applied position takes the failing unit, or nothing if the failing
// side is shorter; every other position keeps the passing unit.
func (al *alignment) build(applied []int) Configuration {
	on := make(map[int]bool, len(applied))
	for _, pos := range applied {
		on[pos] = true
	}

	width := max(len(al.failing), len(al.passing))
	units := make([]Unit, 0, width)
	for i := 0; i < width; i++ {
		if on[i] {
			if i < len(al.failing) {
				units = append(units, al.failing[i])
			}
			continue
		}
		if i < len(al.passing) {
			units = append(units, al.passing[i])
		}
	}
	return NewConfiguration(al.decomposer, units)
}

// delta splits a change set into introduced failing units and displaced
// passing units
func (al *alignment) delta(changes []int) (introduced, displaced []Unit) {
	for _, pos := range changes {
		if pos < len(al.failing) {
			introduced = append(introduced, al.failing[pos])
		}
		if pos < len(al.passing) {
			displaced = append(displaced, al.passing[pos])
		}
	}
	return introduced, displaced
}
