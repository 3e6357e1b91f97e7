package consistency

import (
	"errors"
	"fmt"
)

var (
	// ErrLengthMismatch reports two correspondence lists or sample
	// vectors of different lengths.
	ErrLengthMismatch = errors.New("consistency: sample lists differ in length")

	// ErrDegenerateBaseline reports two projections whose source
	// positions coincide, leaving no plane pencil to correlate.
	ErrDegenerateBaseline = errors.New("consistency: projection sources coincide")
)

// Metric scores the mismatch between two index-aligned sample vectors of
// equal length. Lower is more consistent. Implementations live in the
// metrics package; anything with this signature is pluggable.
type Metric interface {
	Evaluate(first, second []float32) float64
}

// Signal is an immutable float32 sample vector shared between pairs.
// Several pairs built during one optimization may alias the same signal;
// the invariant is that a signal is never mutated after construction.
type Signal struct {
	values []float32
}

// NewSignal wraps a sample vector without copying. The caller hands over
// ownership and must not modify the slice afterwards.
func NewSignal(values []float32) *Signal {
	return &Signal{values: values}
}

// Len returns the number of samples.
func (s *Signal) Len() int { return len(s.values) }

// At returns sample i.
func (s *Signal) At(i int) float32 { return s.values[i] }

// Values exposes the backing samples. The slice is shared and must be
// treated as read-only.
func (s *Signal) Values() []float32 { return s.values }

// PairSource states which kind of acquisition a pair's second signal came
// from.
type PairSource int

const (
	// SourceProjections marks a pair built from two projections.
	SourceProjections PairSource = iota
	// SourceVolume marks a pair built from a projection and a volume.
	SourceVolume
)

// String returns a short label for logs.
func (s PairSource) String() string {
	switch s {
	case SourceProjections:
		return "projection/projection"
	case SourceVolume:
		return "projection/volume"
	}
	return fmt.Sprintf("PairSource(%d)", int(s))
}

// IntermediateFctPair holds two index-aligned intermediate-function sample
// vectors. Mismatched lengths are rejected at construction; a pair that
// exists is always well formed, and emptiness only means zero samples.
type IntermediateFctPair struct {
	first  *Signal
	second *Signal
	source PairSource
}

// NewIntermediateFctPair builds a pair from two signals of equal length.
func NewIntermediateFctPair(first, second *Signal, source PairSource) (*IntermediateFctPair, error) {
	if first == nil || second == nil {
		return nil, fmt.Errorf("failed to build intermediate function pair: nil signal")
	}
	if first.Len() != second.Len() {
		return nil, fmt.Errorf("failed to build intermediate function pair: %w (%d vs %d)",
			ErrLengthMismatch, first.Len(), second.Len())
	}
	return &IntermediateFctPair{first: first, second: second, source: source}, nil
}

// NewIntermediateFctPairFromSlices wraps two sample vectors without
// copying and builds a pair from them.
func NewIntermediateFctPairFromSlices(first, second []float32, source PairSource) (*IntermediateFctPair, error) {
	return NewIntermediateFctPair(NewSignal(first), NewSignal(second), source)
}

// First returns the projection-side signal.
func (p *IntermediateFctPair) First() *Signal { return p.first }

// Second returns the signal of the paired acquisition.
func (p *IntermediateFctPair) Second() *Signal { return p.second }

// Source reports which acquisition kind produced the second signal.
func (p *IntermediateFctPair) Source() PairSource { return p.source }

// Len returns the common sample count.
func (p *IntermediateFctPair) Len() int { return p.first.Len() }

// IsEmpty reports whether the pair holds no samples.
func (p *IntermediateFctPair) IsEmpty() bool { return p.first.Len() == 0 }

// Inconsistency scores the pair with the given metric. An empty pair has
// no defined inconsistency and returns an error.
func (p *IntermediateFctPair) Inconsistency(m Metric) (float64, error) {
	if m == nil {
		return 0, fmt.Errorf("failed to evaluate inconsistency: nil metric")
	}
	if p.IsEmpty() {
		return 0, fmt.Errorf("failed to evaluate inconsistency: empty pair")
	}
	return m.Evaluate(p.first.Values(), p.second.Values()), nil
}
