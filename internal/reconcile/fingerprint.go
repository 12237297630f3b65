package reconcile

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// FingerprintDims is the dimension of name fingerprints (epg_channels.name_vec).
const FingerprintDims = 64

// Fingerprint hashes the character trigrams of a normalized name into a
// unit vector. Names that normalize to nothing yield nil.
func Fingerprint(name string) []float32 {
	key := matchKey(name)
	if len(key) == 0 {
		return nil
	}
	padded := append(append([]rune{' '}, key...), ' ')
	vec := make([]float32, FingerprintDims)
	for i := 0; i+3 <= len(padded); i++ {
		h := xxhash.Sum64String(string(padded[i : i+3]))
		vec[h%FingerprintDims]++
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
