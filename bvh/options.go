package bvh

import (
	"fmt"
	"runtime"
	"strings"
)

// Options controls how bottom and top level hierarchies are built.
type Options struct {
	// The max number of triangles stored in a BLAS leaf.
	LeafTriangles int `toml:"leaf_triangles"`

	// Number of centroid bins evaluated per axis by the SAH split.
	SAHBins int `toml:"sah_bins"`

	// Split policy: "sah" or "midpoint".
	Split string `toml:"split"`

	// Max number of meshes built concurrently by BuildBlases.
	Workers int `toml:"workers"`
}

// DefaultOptions returns the options used when a field is left unset.
func DefaultOptions() Options {
	return Options{
		LeafTriangles: 4,
		SAHBins:       16,
		Split:         "sah",
		Workers:       runtime.GOMAXPROCS(0),
	}
}

// Return a copy of the options with zero values replaced by their defaults.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.LeafTriangles <= 0 {
		o.LeafTriangles = def.LeafTriangles
	}
	if o.SAHBins <= 1 {
		o.SAHBins = def.SAHBins
	}
	if o.Split == "" {
		o.Split = def.Split
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	return o
}

// Strategy returns the split strategy selected by the options.
func (o Options) Strategy() (SplitStrategy, error) {
	o = o.withDefaults()
	switch strings.ToLower(o.Split) {
	case "sah":
		return SAHSplit{Bins: o.SAHBins}, nil
	case "midpoint", "longest-axis":
		return LongestAxisMidpoint, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSplit, o.Split)
}
