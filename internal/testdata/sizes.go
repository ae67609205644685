// Package testdata provides the universe-size table shared by this module's
// benchmarks.
package testdata

import "golang.org/x/exp/slices"

// Size names a benchmark universe by its side length, 2^SizeLog2.
type Size struct {
	Name     string
	SizeLog2 uint
}

// Sizes runs from a single leaf up to a universe with room for a few
// thousand generations of HashLife's quadratic growth headroom.
var Sizes = []Size{
	{"8", 3},
	{"64", 6},
	{"1Ki", 10},
	{"64Ki", 16},
	{"1Mi", 20},
}

// UpTo returns the prefix of Sizes whose side length does not exceed
// 2^maxLog2, sorted ascending by side length.
func UpTo(maxLog2 uint) []Size {
	out := make([]Size, 0, len(Sizes))
	for _, s := range Sizes {
		if s.SizeLog2 <= maxLog2 {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Size) int { return int(a.SizeLog2) - int(b.SizeLog2) })
	return out
}
