// Package catalog loads the CAROL vocabulary file (possible_values.json)
// and exposes the field/subfield/condition/value universes the rest of
// the engine validates rules against.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FieldInfo describes what the server accepts for one (field, subfield) pair.
type FieldInfo struct {
	InputType  string
	Conditions []string
	Values     []string
}

// rawField / rawSubfield mirror the on-disk schema described in spec.md §6.
type rawField struct {
	Value       string          `json:"value"`
	Input       string          `json:"input"`
	QueryValues []rawQueryValue `json:"queryValues"`
	Subfields   []rawSubfield   `json:"subfields"`
}

type rawSubfield struct {
	Value       string          `json:"value"`
	Input       string          `json:"input"`
	QueryValues []rawQueryValue `json:"queryValues"`
}

type rawQueryValue struct {
	Value      string   `json:"value"`
	Conditions []string `json:"conditions"`
}

type rawCatalog struct {
	Fields []rawField `json:"fields"`
}

// noSubfield is the key used for leaf fields (fields without subfields),
// matching the Python source's use of None as a dict key.
const noSubfield = ""

// Catalog is the immutable, process-lifetime vocabulary. Construct with
// Load; do not mutate after construction.
type Catalog struct {
	data map[string]map[string]FieldInfo

	fields     []string
	subfields  []string
	conditions []string
	values     []string
}

// Load parses path and builds the catalog. It is fatal-grade: a missing
// or malformed file is always an error, never a partial catalog.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var rc rawCatalog
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if len(rc.Fields) == 0 {
		return nil, fmt.Errorf("catalog: %s declares no fields", path)
	}

	c := &Catalog{data: make(map[string]map[string]FieldInfo)}

	fieldSeen := map[string]bool{}
	subfieldSeen := map[string]bool{}
	conditionSeen := map[string]bool{}
	valueSeen := map[string]bool{}

	for _, f := range rc.Fields {
		if f.Value == "" {
			return nil, fmt.Errorf("catalog: %s has a field with empty value", path)
		}
		sub := make(map[string]FieldInfo)

		if len(f.Subfields) > 0 {
			for _, s := range f.Subfields {
				info, err := buildInfo(s.Input, s.QueryValues)
				if err != nil {
					return nil, fmt.Errorf("catalog: field %s subfield %s: %w", f.Value, s.Value, err)
				}
				sub[s.Value] = info

				if !subfieldSeen[s.Value] {
					subfieldSeen[s.Value] = true
					c.subfields = append(c.subfields, s.Value)
				}
				registerSets(info, conditionSeen, &c.conditions, valueSeen, &c.values)
			}
		} else {
			info, err := buildInfo(f.Input, f.QueryValues)
			if err != nil {
				return nil, fmt.Errorf("catalog: field %s: %w", f.Value, err)
			}
			sub[noSubfield] = info
			registerSets(info, conditionSeen, &c.conditions, valueSeen, &c.values)
		}

		c.data[f.Value] = sub
		if !fieldSeen[f.Value] {
			fieldSeen[f.Value] = true
			c.fields = append(c.fields, f.Value)
		}
	}

	return c, nil
}

func buildInfo(input string, qvs []rawQueryValue) (FieldInfo, error) {
	if len(qvs) == 0 {
		return FieldInfo{}, fmt.Errorf("no queryValues (need at least one for conditions)")
	}
	info := FieldInfo{
		InputType:  input,
		Conditions: qvs[0].Conditions,
	}
	for _, qv := range qvs {
		info.Values = append(info.Values, qv.Value)
	}
	return info, nil
}

func registerSets(info FieldInfo, condSeen map[string]bool, conds *[]string, valSeen map[string]bool, vals *[]string) {
	for _, c := range info.Conditions {
		if !condSeen[c] {
			condSeen[c] = true
			*conds = append(*conds, c)
		}
	}
	for _, v := range info.Values {
		if !valSeen[v] {
			valSeen[v] = true
			*vals = append(*vals, v)
		}
	}
}

// InputType returns the server's InputType for (field, subfield). subfield
// may be empty for a leaf field.
func (c *Catalog) InputType(field, subfield string) (string, error) {
	sub, ok := c.data[field]
	if !ok {
		return "", fmt.Errorf("catalog: unknown field %q", field)
	}
	key := subfield
	if key == "" {
		key = noSubfield
	}
	info, ok := sub[key]
	if !ok {
		return "", fmt.Errorf("catalog: field %q has no subfield %q", field, subfield)
	}
	return info.InputType, nil
}

// IsField reports whether s (in any of identity/lower/upper/title case) is
// a known field.
func (c *Catalog) IsField(s string) bool { return matchAnyCase(s, c.fields) }

// IsSubfield reports whether s is a known subfield of any field.
func (c *Catalog) IsSubfield(s string) bool { return matchAnyCase(s, c.subfields) }

// IsCondition reports whether s is a known condition string.
func (c *Catalog) IsCondition(s string) bool { return matchAnyCase(s, c.conditions) }

// IsValue reports whether s is a known catalog value.
func (c *Catalog) IsValue(s string) bool { return matchAnyCase(s, c.values) }

// Fields returns the ordered field universe.
func (c *Catalog) Fields() []string { return append([]string(nil), c.fields...) }

// Subfields returns the subfield universe (union across all fields).
func (c *Catalog) Subfields() []string { return append([]string(nil), c.subfields...) }

// Conditions returns the condition universe (union across all fields).
func (c *Catalog) Conditions() []string { return append([]string(nil), c.conditions...) }

// Values returns the value universe (union across all fields).
func (c *Catalog) Values() []string { return append([]string(nil), c.values...) }

func matchAnyCase(s string, universe []string) bool {
	candidates := [4]string{s, strings.ToLower(s), strings.ToUpper(s), titleCase(s)}
	for _, u := range universe {
		for _, cand := range candidates {
			if u == cand {
				return true
			}
		}
	}
	return false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// once-guarded process-wide singleton, per DESIGN NOTE §9: lazily
// initialized, immutable after load, not a true mutable global.
var (
	globalOnce sync.Once
	global     *Catalog
	globalErr  error
)

// LoadOnce loads the catalog at path the first time it is called and
// returns the same instance on every subsequent call regardless of path.
func LoadOnce(path string) (*Catalog, error) {
	globalOnce.Do(func() {
		global, globalErr = Load(path)
	})
	return global, globalErr
}
