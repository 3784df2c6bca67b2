// Package analytics compares a relations matrix against a target end state.
package analytics

import (
	"encoding/json"
	"errors"
	"math"
	"sort"
)

var ErrShapeMismatch = errors.New("matrix shape mismatch")

// Measure compares two dense matrices of identical shape.
type Measure func(current, target [][]int) float64

// Default measure names.
const (
	MSE     = "MSE"
	Cosine  = "Cosine Similarity"
	Jaccard = "Jaccard Similarity"
	Pearson = "Pearson Correlation"
)

// DefaultMeasures mirrors the report printed after every round.
func DefaultMeasures() map[string]Measure {
	return map[string]Measure{
		MSE:     MeanSquaredError,
		Cosine:  CosineSimilarity,
		Jaccard: JaccardSimilarity,
		Pearson: PearsonCorrelation,
	}
}

// Comparator holds the target matrix and the measures to apply.
type Comparator struct {
	target   [][]int
	measures map[string]Measure
}

func NewComparator(target [][]int, measures map[string]Measure) *Comparator {
	if measures == nil {
		measures = DefaultMeasures()
	}
	return &Comparator{target: target, measures: measures}
}

// Result is one named measurement.
type Result struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Defined reports whether the value is finite. Similarity measures are
// undefined for all-zero or constant matrices.
func (r Result) Defined() bool { return !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0) }

type resultJSON struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

// MarshalJSON writes undefined values as null.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Name: r.Name}
	if r.Defined() {
		v := r.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var in resultJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	r.Name = in.Name
	r.Value = math.NaN()
	if in.Value != nil {
		r.Value = *in.Value
	}
	return nil
}

// Compare applies every measure; results are sorted by name.
func (c *Comparator) Compare(current [][]int) ([]Result, error) {
	if !sameShape(current, c.target) {
		return nil, ErrShapeMismatch
	}
	out := make([]Result, 0, len(c.measures))
	for name, m := range c.measures {
		out = append(out, Result{Name: name, Value: m(current, c.target)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func sameShape(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
	}
	return true
}

func flatten(m [][]int) []float64 {
	var out []float64
	for _, row := range m {
		for _, v := range row {
			out = append(out, float64(v))
		}
	}
	return out
}

func MeanSquaredError(a, b [][]int) float64 {
	x, y := flatten(a), flatten(b)
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum / float64(len(x))
}

// CosineSimilarity returns NaN when either matrix is all zeros.
func CosineSimilarity(a, b [][]int) float64 {
	x, y := flatten(a), flatten(b)
	var dot, nx, ny float64
	for i := range x {
		dot += x[i] * y[i]
		nx += x[i] * x[i]
		ny += y[i] * y[i]
	}
	return dot / (math.Sqrt(nx) * math.Sqrt(ny))
}

// JaccardSimilarity is the weighted form sum(min)/sum(max). NaN when sum(max) is zero.
func JaccardSimilarity(a, b [][]int) float64 {
	x, y := flatten(a), flatten(b)
	var inter, union float64
	for i := range x {
		inter += math.Min(x[i], y[i])
		union += math.Max(x[i], y[i])
	}
	return inter / union
}

// PearsonCorrelation returns NaN when either matrix is constant.
func PearsonCorrelation(a, b [][]int) float64 {
	x, y := flatten(a), flatten(b)
	n := float64(len(x))
	if n == 0 {
		return math.NaN()
	}
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n
	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	return cov / math.Sqrt(vx*vy)
}
