package cache

import (
	"encoding/binary"
	"math"
	"sort"
)

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	if len(data) < 4 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type scored struct {
	q   *Question
	sim float64
}

// topK ranks candidates by similarity to vec and keeps the best k.
func topK(vec []float32, candidates []*Question, k int) []scored {
	out := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, scored{q: c, sim: cosineSimilarity(vec, c.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].sim > out[j].sim })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
