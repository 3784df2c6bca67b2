package relations

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func TestUpdate_KeepsSymmetry(t *testing.T) {
	aliases := []string{"A", "B", "C", "D"}
	m := New(aliases)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		a := aliases[r.Intn(len(aliases))]
		b := aliases[r.Intn(len(aliases))]
		v := Relation(r.Intn(3) - 1)
		err := m.Update(a, b, v)
		if a == b {
			if !errors.Is(err, ErrSelfRelation) {
				t.Fatalf("self update: got=%v want ErrSelfRelation", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("update %s,%s,%d: %v", a, b, v, err)
		}
		for _, x := range aliases {
			for _, y := range aliases {
				if x == y {
					continue
				}
				xy, _ := m.Get(x, y)
				yx, _ := m.Get(y, x)
				if xy != yx {
					t.Fatalf("asymmetric after step %d: %s->%s=%d %s->%s=%d", i, x, y, xy, y, x, yx)
				}
			}
		}
	}
}

func TestUpdate_RejectsOutOfRange(t *testing.T) {
	m := New([]string{"A", "B"})
	if err := m.Update("A", "B", 2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("got=%v want ErrOutOfRange", err)
	}
	if err := m.Update("A", "Z", Allied); !errors.Is(err, ErrUnknownAlias) {
		t.Fatalf("got=%v want ErrUnknownAlias", err)
	}
	if got, _ := m.Get("A", "B"); got != Neutral {
		t.Fatalf("failed updates must not mutate: got=%d", got)
	}
}

func TestFriendsEnemiesAndProjection(t *testing.T) {
	m := New([]string{"A", "B", "C"})
	_ = m.Update("A", "B", Allied)
	_ = m.Update("A", "C", Hostile)

	if got := m.Friends("A"); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("friends: got=%v", got)
	}
	if got := m.Enemies("C"); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("enemies: got=%v", got)
	}
	if got := m.Neutrals("B"); !reflect.DeepEqual(got, []string{"C"}) {
		t.Fatalf("neutrals: got=%v", got)
	}

	before := m.Map()
	dense := m.ToMatrix([]string{"C", "B", "A"})
	want := [][]int{
		{0, 0, -1},
		{0, 0, 1},
		{-1, 1, 0},
	}
	if !reflect.DeepEqual(dense, want) {
		t.Fatalf("dense: got=%v want=%v", dense, want)
	}
	if !reflect.DeepEqual(before, m.Map()) {
		t.Fatalf("ToMatrix mutated the matrix")
	}
}

func TestParse(t *testing.T) {
	raw := []byte(`{"relations":{
	  "A":{"relations":{"B":-1,"C":0}},
	  "B":{"relations":{"A":-1,"C":1}},
	  "C":{"relations":{"A":0,"B":1}}
	}}`)
	m, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got, _ := m.Get("C", "B"); got != Allied {
		t.Fatalf("C->B: got=%d", got)
	}
	if got := m.Aliases(); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("aliases: got=%v", got)
	}

	if _, err := Parse([]byte(`{"relations":{"A":{"relations":{"B":1}},"B":{"relations":{"A":0}}}}`)); err == nil {
		t.Fatalf("expected asymmetric input rejected")
	}
}

func TestClone_IsIndependent(t *testing.T) {
	m := New([]string{"A", "B"})
	cp := m.Clone()
	_ = m.Update("A", "B", Hostile)
	if got, _ := cp.Get("A", "B"); got != Neutral {
		t.Fatalf("clone changed: got=%d", got)
	}
}
