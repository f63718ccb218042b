package hll

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptySketchEstimatesZero(t *testing.T) {
	s := New()
	assert.Equal(t, uint64(0), s.Estimate())
}

func TestAddIsIdempotent(t *testing.T) {
	once := New()
	many := New()

	for i := 0; i < 100; i++ {
		element := fmt.Sprintf("user-%d", i)
		once.Add(element)
		for j := 0; j < 5; j++ {
			many.Add(element)
		}
	}

	// Duplicate adds must not perturb the register state at all, not
	// merely keep the estimate close.
	assert.Equal(t, once.registers, many.registers)
	assert.Equal(t, once.Estimate(), many.Estimate())
}

func TestSmallCardinalityIsNearExact(t *testing.T) {
	s := New()
	for i := 0; i < 50; i++ {
		s.Add(fmt.Sprintf("user-%d", i))
	}

	// Linear counting dominates at this range; tolerate a tiny slack.
	assert.InDelta(t, 50, float64(s.Estimate()), 2)
}

func TestEstimateAccuracy(t *testing.T) {
	s := New()
	const n = 100000
	for i := 0; i < n; i++ {
		s.Add(fmt.Sprintf("user-%d", i))
	}

	// 2^14 registers give ~0.8% standard error; 5% is a generous bound.
	assert.InEpsilon(t, float64(n), float64(s.Estimate()), 0.05)
}

func TestMergeIsCommutativeAndIdempotent(t *testing.T) {
	a := New()
	b := New()
	for i := 0; i < 1000; i++ {
		a.Add(fmt.Sprintf("a-%d", i))
		b.Add(fmt.Sprintf("b-%d", i))
	}

	ab := New()
	ab.Merge(a)
	ab.Merge(b)

	ba := New()
	ba.Merge(b)
	ba.Merge(a)

	assert.Equal(t, ab.registers, ba.registers)

	// Merging the same sketch again changes nothing.
	before := ab.Estimate()
	ab.Merge(a)
	ab.Merge(b)
	assert.Equal(t, before, ab.Estimate())
}

func TestMergeMatchesUnion(t *testing.T) {
	a := New()
	b := New()
	union := New()
	for i := 0; i < 500; i++ {
		element := fmt.Sprintf("shared-%d", i)
		a.Add(element)
		b.Add(element)
		union.Add(element)
	}
	for i := 0; i < 500; i++ {
		element := fmt.Sprintf("only-a-%d", i)
		a.Add(element)
		union.Add(element)
	}

	a.Merge(b)
	assert.Equal(t, union.registers, a.registers)
}

func TestSerializeRoundTrip(t *testing.T) {
	s := New()
	for i := 0; i < 2500; i++ {
		s.Add(fmt.Sprintf("user-%d", i))
	}

	parsed, err := Parse(s.Serialize())
	require.NoError(t, err)
	assert.Equal(t, s.registers, parsed.registers)
}

func TestParseEmptyBlob(t *testing.T) {
	s, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.Estimate())

	s, err = Parse([]byte{})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.Estimate())
}

func TestParseRejectsCorruptData(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptSketch)

	blob := New().Serialize()
	blob[0] = 99
	_, err = Parse(blob)
	assert.ErrorIs(t, err, ErrCorruptSketch)
}
