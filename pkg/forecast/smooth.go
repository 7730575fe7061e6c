package forecast

import "github.com/homewatt/homewatt/pkg/types"

// Smooth applies a 3-tap uniform moving average to suppress single-slot
// spikes. The input is treated as zero-padded, so slots 0 and 95 average in
// a phantom 0 neighbor and get damped toward zero. The day boundary is NOT
// treated as circular even though slot 95 and slot 0 are adjacent in time;
// kept as-is so smoothed curves match previously persisted ones.
func Smooth(c types.Curve) types.Curve {
	var out types.Curve
	for i := range c {
		sum := c[i]
		if i > 0 {
			sum += c[i-1]
		}
		if i < len(c)-1 {
			sum += c[i+1]
		}
		out[i] = sum / 3
	}
	return out
}
