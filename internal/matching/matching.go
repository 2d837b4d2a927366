// Package matching pairs binary descriptors between two images and ranks
// the pairs by distance.
package matching

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"layer-align/internal/features"
)

var (
	// ErrDescriptorLength is returned when descriptors of different lengths
	// are compared.
	ErrDescriptorLength = errors.New("descriptor length mismatch")

	// ErrInvalidFraction is returned by Filter for a retention fraction
	// outside (0, 1].
	ErrInvalidFraction = errors.New("retention fraction must be in (0, 1]")
)

// Match pairs a base descriptor with its nearest layer descriptor.
type Match struct {
	BaseIndex  int
	LayerIndex int
	Distance   int // Hamming distance in bits
}

// Options selects the matching policy. The zero value keeps the single
// nearest layer descriptor for every base descriptor.
type Options struct {
	// CrossCheck keeps a match only when the base descriptor is also the
	// nearest neighbour of its layer descriptor.
	CrossCheck bool

	// RatioTest, when in (0, 1), keeps a match only if its distance is
	// below RatioTest times the second best distance.
	RatioTest float64
}

// Hamming returns the number of differing bits between a and b, which
// must have the same length.
func Hamming(a, b features.Descriptor) int {
	n := len(a)
	dist := 0
	i := 0
	for ; i+8 <= n; i += 8 {
		dist += bits.OnesCount64(binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:]))
	}
	for ; i < n; i++ {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	return dist
}

// nearest holds the two smallest distances seen for one query.
type nearest struct {
	index  int
	best   int
	second int
}

// BruteForce compares every base descriptor with every layer descriptor
// and returns at most one match per base descriptor, in base index order.
// Ties go to the lowest layer index. Empty input gives an empty result.
func BruteForce(base, layer []features.Descriptor, opts Options) ([]Match, error) {
	if len(base) == 0 || len(layer) == 0 {
		return []Match{}, nil
	}
	if err := checkLengths(base, layer); err != nil {
		return nil, err
	}

	forward := scan(base, layer)
	var backward []nearest
	if opts.CrossCheck {
		backward = scan(layer, base)
	}
	useRatio := opts.RatioTest > 0 && opts.RatioTest < 1

	matches := make([]Match, 0, len(base))
	for i, nn := range forward {
		if opts.CrossCheck && backward[nn.index].index != i {
			continue
		}
		if useRatio && nn.second != math.MaxInt && float64(nn.best) >= opts.RatioTest*float64(nn.second) {
			continue
		}
		matches = append(matches, Match{BaseIndex: i, LayerIndex: nn.index, Distance: nn.best})
	}
	return matches, nil
}

// scan finds, for every query, the nearest train descriptor. Queries are
// split into contiguous chunks processed concurrently.
func scan(query, train []features.Descriptor) []nearest {
	out := make([]nearest, len(query))
	workers := runtime.GOMAXPROCS(0)
	chunk := max((len(query)+workers-1)/workers, 64)

	var g errgroup.Group
	for start := 0; start < len(query); start += chunk {
		end := min(start+chunk, len(query))
		g.Go(func() error {
			for q := start; q < end; q++ {
				nn := nearest{index: -1, best: math.MaxInt, second: math.MaxInt}
				for t, d := range train {
					dist := Hamming(query[q], d)
					if dist < nn.best {
						nn.second = nn.best
						nn.best = dist
						nn.index = t
					} else if dist < nn.second {
						nn.second = dist
					}
				}
				out[q] = nn
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func checkLengths(base, layer []features.Descriptor) error {
	want := len(base[0])
	for _, set := range [][]features.Descriptor{base, layer} {
		for i, d := range set {
			if len(d) != want {
				return fmt.Errorf("%w: descriptor %d has %d bytes, want %d", ErrDescriptorLength, i, len(d), want)
			}
		}
	}
	return nil
}

// Filter returns the floor(fraction*len(matches)) matches with the
// smallest distance, sorted ascending. Equal distances keep their input
// order. The input slice is not modified.
func Filter(matches []Match, fraction float64) ([]Match, error) {
	if math.IsNaN(fraction) || fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidFraction, fraction)
	}

	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance < sorted[j].Distance
	})

	keep := int(math.Floor(fraction * float64(len(sorted))))
	return sorted[:keep], nil
}
