// Package ddmin implements delta debugging: decomposition of inputs into
// units, the oracle protocol, a per-run result cache and the minimization
// engine.
package ddmin

import (
	"strconv"
	"strings"
)

// Side identifies which boundary input a unit was drawn from
type Side byte

const (
	SideFailing Side = 'f'
	SidePassing Side = 'p'
)

// String returns the side name
func (s Side) String() string {
	switch s {
	case SideFailing:
		return "failing"
	case SidePassing:
		return "passing"
	default:
		return "unknown"
	}
}

// Unit is the smallest atomic piece of an input
type Unit struct {
	Side  Side   `json:"side"`
	Index int    `json:"index"`
	Value string `json:"value"`
}

// ID returns the unit identity used in configuration keys, e.g. "f12"
func (u Unit) ID() string {
	return string(u.Side) + strconv.Itoa(u.Index)
}

// Configuration is an ordered selection of units. It is immutable once
// created and always carries its reconstructed value.
type Configuration struct {
	units []Unit
	value string
	key   string
}

// NewConfiguration builds a configuration and reconstructs its value with d
func NewConfiguration(d Decomposer, units []Unit) Configuration {
	owned := make([]Unit, len(units))
	copy(owned, units)

	ids := make([]string, len(owned))
	for i, u := range owned {
		ids[i] = u.ID()
	}

	return Configuration{
		units: owned,
		value: d.Reconstruct(owned),
		key:   strings.Join(ids, ","),
	}
}

// Units returns a copy of the configuration's units
func (c Configuration) Units() []Unit {
	out := make([]Unit, len(c.units))
	copy(out, c.units)
	return out
}

// Len returns the number of units
func (c Configuration) Len() int {
	return len(c.units)
}

// Value returns the reconstructed input
func (c Configuration) Value() string {
	return c.value
}

// Key returns the canonical key: the ordered unit identities
func (c Configuration) Key() string {
	return c.key
}
