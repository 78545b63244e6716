package raster

import (
	"math"
	"sort"
)

// SortByRT orders trial slices by reaction time ascending; NaN reaction
// times sort last. The sort is stable so ties keep trial order.
func SortByRT(rt []float64, slices []TrialSlice) ([]float64, []TrialSlice) {
	if len(rt) == 0 {
		return rt, slices
	}
	idx := make([]int, len(rt))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		x, y := rt[idx[a]], rt[idx[b]]
		if math.IsNaN(x) {
			return false
		}
		if math.IsNaN(y) {
			return true
		}
		return x < y
	})

	sortedRT := make([]float64, len(rt))
	sortedSlices := make([]TrialSlice, 0, len(slices))
	for i, j := range idx {
		sortedRT[i] = rt[j]
		if j < len(slices) {
			sortedSlices = append(sortedSlices, slices[j])
		}
	}
	return sortedRT, sortedSlices
}

// Rate computes the peri-event time histogram in spikes/second over the
// window, smoothed with a Gaussian kernel. The result has one sample per
// millisecond, window[1]-window[0]+1 long.
func Rate(slices []TrialSlice, window [2]float64, smoothingMS float64) []float64 {
	length := int(window[1]-window[0]) + 1
	nTr := len(slices)
	if nTr == 0 {
		return make([]float64, length)
	}

	counts := make([]float64, length)
	span := window[1] - window[0]
	for _, sl := range slices {
		for _, ms := range sl.Spikes {
			if ms < window[0] || ms > window[1] {
				continue
			}
			bin := int((ms - window[0]) / span * float64(length))
			if bin >= length {
				bin = length - 1
			}
			counts[bin]++
		}
	}

	if smoothingMS <= 0 {
		rate := make([]float64, length)
		for i, c := range counts {
			rate[i] = 1000.0 / float64(nTr) * c
		}
		return rate
	}

	halfWidth := int(3 * smoothingMS)
	kernel := make([]float64, 2*halfWidth+1)
	norm := 1.0 / (smoothingMS * math.Sqrt(2*math.Pi))
	for i := range kernel {
		x := float64(i - halfWidth)
		kernel[i] = norm * math.Exp(-x*x/(2*smoothingMS*smoothingMS))
	}

	// Full convolution, then trim to the window.
	conv := make([]float64, length+len(kernel)-1)
	for i, c := range counts {
		if c == 0 {
			continue
		}
		for j, k := range kernel {
			conv[i+j] += c * k
		}
	}

	rate := make([]float64, length)
	for i := range rate {
		rate[i] = 1000.0 / float64(nTr) * conv[halfWidth+i]
	}
	return rate
}

// ScatterCoords flattens trial slices into x (spike time) and y (trial row)
// coordinate vectors for raster scatter plots.
func ScatterCoords(slices []TrialSlice) (x, y []float64) {
	const dt = 0.08
	for i, sl := range slices {
		row := float64(i+1) * dt
		for _, ms := range sl.Spikes {
			x = append(x, ms)
			y = append(y, row)
		}
	}
	return x, y
}
