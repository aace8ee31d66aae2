package indicators

import "math"

// SMA is the mean of the last period values, 0 without enough history.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// changes returns the last period deltas, nil without period+1 values.
func changes(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period+1 {
		return nil
	}
	tail := values[len(values)-period-1:]
	out := make([]float64, period)
	for i := range out {
		out[i] = tail[i+1] - tail[i]
	}
	return out
}

// RSI is the unsmoothed relative strength index over period deltas.
func RSI(values []float64, period int) float64 {
	d := changes(values, period)
	if d == nil {
		return 0
	}
	var up, down float64
	for _, c := range d {
		if c > 0 {
			up += c
		} else {
			down -= c
		}
	}
	if down == 0 {
		return 100
	}
	return 100 - 100/(1+up/down)
}

// ATR approximates average true range from closes only: the mean absolute
// change over period deltas.
func ATR(values []float64, period int) float64 {
	d := changes(values, period)
	if d == nil {
		return 0
	}
	sum := 0.0
	for _, c := range d {
		sum += math.Abs(c)
	}
	return sum / float64(period)
}
