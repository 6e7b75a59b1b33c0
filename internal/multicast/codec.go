package multicast

import (
	"encoding/binary"
	"math"
)

// SampleBytes is the wire size of one sample field.
const SampleBytes = 8

// EncodeSample packs a sample as consecutive float64 values in host byte
// order. Producer and consumer are assumed to share an architecture.
func EncodeSample(sample []float64) []byte {
	b := make([]byte, len(sample)*SampleBytes)
	for i, v := range sample {
		binary.NativeEndian.PutUint64(b[i*SampleBytes:], math.Float64bits(v))
	}
	return b
}

// DecodeSample unpacks b into out. It reports false, leaving out untouched,
// unless b holds exactly len(out) values.
func DecodeSample(b []byte, out []float64) bool {
	if len(b) != len(out)*SampleBytes {
		return false
	}
	for i := range out {
		out[i] = math.Float64frombits(binary.NativeEndian.Uint64(b[i*SampleBytes:]))
	}
	return true
}
