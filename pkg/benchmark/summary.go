package benchmark

import (
	"math"
	"time"
)

// Summary describes a set of elapsed-time samples, in seconds.
type Summary struct {
	Times  []float64 `json:"times"`
	Mean   float64   `json:"avg"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	StdDev float64   `json:"stddev"`
}

// Summarize computes mean, min, max and the sample standard deviation.
// StdDev is 0 for fewer than two samples.
func Summarize(samples []time.Duration) Summary {
	s := Summary{Times: make([]float64, 0, len(samples))}
	if len(samples) == 0 {
		return s
	}

	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)
	var sum float64
	for _, d := range samples {
		v := d.Seconds()
		s.Times = append(s.Times, v)
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(samples))

	if len(samples) > 1 {
		var sq float64
		for _, v := range s.Times {
			sq += (v - s.Mean) * (v - s.Mean)
		}
		s.StdDev = math.Sqrt(sq / float64(len(samples)-1))
	}
	return s
}
