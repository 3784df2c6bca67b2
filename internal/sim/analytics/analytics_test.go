package analytics

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMeasures(t *testing.T) {
	cur := [][]int{{0, 1}, {1, 0}}
	tgt := [][]int{{0, -1}, {-1, 0}}

	if got := MeanSquaredError(cur, tgt); !near(got, 2) {
		t.Fatalf("mse=%v want 2", got)
	}
	if got := CosineSimilarity(cur, tgt); !near(got, -1) {
		t.Fatalf("cosine=%v want -1", got)
	}
	if got := CosineSimilarity(cur, cur); !near(got, 1) {
		t.Fatalf("cosine self=%v want 1", got)
	}
	if got := PearsonCorrelation(cur, tgt); !near(got, -1) {
		t.Fatalf("pearson=%v want -1", got)
	}
	if got := JaccardSimilarity(cur, cur); !near(got, 1) {
		t.Fatalf("jaccard self=%v want 1", got)
	}
	if got := CosineSimilarity([][]int{{0}}, [][]int{{0}}); !math.IsNaN(got) {
		t.Fatalf("cosine of zeros=%v want NaN", got)
	}
}

func TestComparator(t *testing.T) {
	c := NewComparator([][]int{{0, 1}, {1, 0}}, nil)
	res, err := c.Compare([][]int{{0, 1}, {1, 0}})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(res) != 4 {
		t.Fatalf("results=%d want 4", len(res))
	}
	for i := 1; i < len(res); i++ {
		if res[i-1].Name > res[i].Name {
			t.Fatalf("results not sorted: %v", res)
		}
	}
	for _, r := range res {
		if r.Name == MSE && r.Value != 0 {
			t.Fatalf("mse of identical matrices=%v", r.Value)
		}
	}
	if _, err := c.Compare([][]int{{0}}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("got=%v want ErrShapeMismatch", err)
	}
}

func TestResult_JSONUndefinedIsNull(t *testing.T) {
	b, err := json.Marshal([]Result{{Name: Pearson, Value: math.NaN()}, {Name: MSE, Value: 0.5}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"name":"Pearson Correlation","value":null},{"name":"MSE","value":0.5}]`
	if string(b) != want {
		t.Fatalf("got=%s want=%s", b, want)
	}
	var back []Result
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back[0].Defined() || !back[1].Defined() || back[1].Value != 0.5 {
		t.Fatalf("got=%+v", back)
	}
}
