package audio

import "math"

// Soft-knee dynamic range compression over raw sample slices. Quality
// maps inversely to ratio: full quality barely touches the signal, low
// quality squeezes it hard so cheaper downstream encoding keeps up.

const compressThreshold = 0.7

// ratioFor derives the compression ratio from the quality setting:
// quality 1.0 → ratio 1 (transparent), quality 0.4 → ratio ~5.8.
func ratioFor(quality float64) float64 {
	if quality >= 1 {
		return 1
	}
	if quality < 0 {
		quality = 0
	}
	return 1 + (1-quality)*8
}

func compressSample(s float32, ratio float64) float32 {
	v := float64(s)
	mag := math.Abs(v)
	if mag <= compressThreshold {
		return s
	}
	compressed := compressThreshold + (mag-compressThreshold)/ratio
	if v < 0 {
		compressed = -compressed
	}
	// Hard ceiling keeps downstream conversion from clipping.
	if compressed > 1 {
		compressed = 1
	} else if compressed < -1 {
		compressed = -1
	}
	return float32(compressed)
}

// compressScalar is the plain per-sample fallback path.
func compressScalar(channels [][]float32, quality float64) {
	ratio := ratioFor(quality)
	if ratio == 1 {
		return
	}
	for _, ch := range channels {
		for i := range ch {
			ch[i] = compressSample(ch[i], ratio)
		}
	}
}

// compressVectorized processes four samples per iteration. The unrolled
// body keeps the loop free of per-sample bounds checks so the compiler
// can vectorize it; results are identical to the scalar path.
func compressVectorized(channels [][]float32, quality float64) {
	ratio := ratioFor(quality)
	if ratio == 1 {
		return
	}
	for _, ch := range channels {
		n := len(ch) &^ 3
		for i := 0; i < n; i += 4 {
			blk := ch[i : i+4 : i+4]
			blk[0] = compressSample(blk[0], ratio)
			blk[1] = compressSample(blk[1], ratio)
			blk[2] = compressSample(blk[2], ratio)
			blk[3] = compressSample(blk[3], ratio)
		}
		for i := n; i < len(ch); i++ {
			ch[i] = compressSample(ch[i], ratio)
		}
	}
}
