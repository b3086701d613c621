// Package stats has running summary statistics for weight and prediction values.
package stats

import (
	"fmt"
	"html/template"
	"math"
)

// Running mean and stddev as per http://www.johndcook.com/blog/standard_deviation/
type Average struct {
	Count, Mean float64
	Var, StdDev float64
	oldM, oldV  float64
}

func (s *Average) Add(x float64) {
	s.Count++
	if s.Count == 1 {
		s.oldM, s.Mean = x, x
		s.oldV = 0
		return
	}
	s.Mean = s.oldM + (x-s.oldM)/s.Count
	s.Var = s.oldV + (x-s.oldM)*(x-s.Mean)
	s.oldM, s.oldV = s.Mean, s.Var
	s.StdDev = math.Sqrt(s.Var / (s.Count - 1))
}

// AddAll adds each value from a float32 slice.
func (s *Average) AddAll(vals []float32) {
	for _, v := range vals {
		s.Add(float64(v))
	}
}

func (s *Average) String() string {
	return fmt.Sprintf("%.4g ± %.4g", s.Mean, s.StdDev)
}

func (s *Average) HTML() template.HTML {
	if math.Abs(s.Mean) > 10 {
		return template.HTML(fmt.Sprintf("%.1f&PlusMinus;%.1f", s.Mean, s.StdDev))
	}
	return template.HTML(fmt.Sprintf("%.4f&PlusMinus;%.4f", s.Mean, s.StdDev))
}
