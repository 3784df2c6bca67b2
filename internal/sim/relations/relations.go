// Package relations holds the symmetric pairwise relation state between agents.
package relations

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Relation is the signed state between two agents.
type Relation int

const (
	Hostile Relation = -1
	Neutral Relation = 0
	Allied  Relation = 1
)

func (r Relation) Valid() bool { return r >= Hostile && r <= Allied }

func (r Relation) String() string {
	switch r {
	case Hostile:
		return "hostile"
	case Neutral:
		return "neutral"
	case Allied:
		return "allied"
	}
	return fmt.Sprintf("relation(%d)", int(r))
}

var (
	ErrOutOfRange   = errors.New("relation value out of range")
	ErrUnknownAlias = errors.New("unknown alias")
	ErrSelfRelation = errors.New("self relation is undefined")
)

// Matrix is a square alias->alias->relation mapping kept symmetric at all times.
// It is not safe for concurrent mutation; the engine owns it.
type Matrix struct {
	aliases []string
	rel     map[string]map[string]Relation
}

// New returns a matrix with every pair neutral.
func New(aliases []string) *Matrix {
	m := &Matrix{rel: make(map[string]map[string]Relation, len(aliases))}
	for _, a := range aliases {
		if _, ok := m.rel[a]; ok {
			continue
		}
		m.aliases = append(m.aliases, a)
		m.rel[a] = make(map[string]Relation, len(aliases))
	}
	for _, a := range m.aliases {
		for _, b := range m.aliases {
			if a != b {
				m.rel[a][b] = Neutral
			}
		}
	}
	return m
}

// FromMap builds a matrix from a nested map. Asymmetric input is rejected.
func FromMap(raw map[string]map[string]int) (*Matrix, error) {
	aliases := make([]string, 0, len(raw))
	for a := range raw {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	m := New(aliases)
	for a, row := range raw {
		for b, v := range row {
			if a == b {
				continue
			}
			if _, ok := m.rel[b]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, b)
			}
			r := Relation(v)
			if !r.Valid() {
				return nil, fmt.Errorf("%w: %s->%s=%d", ErrOutOfRange, a, b, v)
			}
			if back, ok := raw[b][a]; ok && back != v {
				return nil, fmt.Errorf("asymmetric relation %s<->%s: %d vs %d", a, b, v, back)
			}
			m.rel[a][b] = r
			m.rel[b][a] = r
		}
	}
	return m, nil
}

type fileFormat struct {
	Relations map[string]struct {
		Relations map[string]int `json:"relations"`
	} `json:"relations"`
}

// Load reads a relations file of the form {"relations": {A: {"relations": {B: v}}}}.
func Load(path string) (*Matrix, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Matrix, error) {
	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("relations: %w", err)
	}
	flat := make(map[string]map[string]int, len(f.Relations))
	for a, entry := range f.Relations {
		flat[a] = entry.Relations
		if flat[a] == nil {
			flat[a] = map[string]int{}
		}
	}
	return FromMap(flat)
}

// Aliases returns the matrix aliases in their stable order.
func (m *Matrix) Aliases() []string {
	out := make([]string, len(m.aliases))
	copy(out, m.aliases)
	return out
}

func (m *Matrix) Has(alias string) bool {
	_, ok := m.rel[alias]
	return ok
}

// Update sets relation(a,b) and relation(b,a) to v. It is the only mutation path.
func (m *Matrix) Update(a, b string, v Relation) error {
	if !v.Valid() {
		return fmt.Errorf("%w: %d", ErrOutOfRange, int(v))
	}
	if a == b {
		return fmt.Errorf("%w: %s", ErrSelfRelation, a)
	}
	ra, ok := m.rel[a]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlias, a)
	}
	rb, ok := m.rel[b]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlias, b)
	}
	ra[b] = v
	rb[a] = v
	return nil
}

func (m *Matrix) Get(a, b string) (Relation, bool) {
	row, ok := m.rel[a]
	if !ok || a == b {
		return Neutral, false
	}
	r, ok := row[b]
	return r, ok
}

// Friends lists aliases allied with alias, in matrix order.
func (m *Matrix) Friends(alias string) []string {
	return m.filter(alias, func(r Relation) bool { return r > 0 })
}

// Enemies lists aliases hostile to alias, in matrix order.
func (m *Matrix) Enemies(alias string) []string {
	return m.filter(alias, func(r Relation) bool { return r < 0 })
}

// Neutrals lists aliases with no standing relation to alias.
func (m *Matrix) Neutrals(alias string) []string {
	return m.filter(alias, func(r Relation) bool { return r == 0 })
}

func (m *Matrix) filter(alias string, keep func(Relation) bool) []string {
	row, ok := m.rel[alias]
	if !ok {
		return nil
	}
	var out []string
	for _, other := range m.aliases {
		if other == alias {
			continue
		}
		if keep(row[other]) {
			out = append(out, other)
		}
	}
	return out
}

// ToMatrix projects the relations into a dense square array in the given order.
// Diagonal and unknown cells are zero.
func (m *Matrix) ToMatrix(order []string) [][]int {
	out := make([][]int, len(order))
	for i, a := range order {
		out[i] = make([]int, len(order))
		row := m.rel[a]
		if row == nil {
			continue
		}
		for j, b := range order {
			if a == b {
				continue
			}
			out[i][j] = int(row[b])
		}
	}
	return out
}

// Map returns a deep copy as plain ints, suitable for JSON and oracle context.
func (m *Matrix) Map() map[string]map[string]int {
	out := make(map[string]map[string]int, len(m.rel))
	for a, row := range m.rel {
		cp := make(map[string]int, len(row))
		for b, r := range row {
			cp[b] = int(r)
		}
		out[a] = cp
	}
	return out
}

func (m *Matrix) Clone() *Matrix {
	cp := New(m.aliases)
	for a, row := range m.rel {
		for b, r := range row {
			cp.rel[a][b] = r
		}
	}
	return cp
}
