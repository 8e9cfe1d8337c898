package compiler

import (
	"github.com/douglaslinsmeyer/carol-query-engine/internal/catalog"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
)

// keyBracketCap is how many Event.ID bracket rules seed every OR group:
// one "is greater than" and one "is less than".
const keyBracketCap = 2

func isBracketRule(r rules.Rule) bool {
	return r.IsKeyRange() && (r.Condition == "is greater than" || r.Condition == "is less than")
}

func compileRule(cat *catalog.Catalog, r rules.Rule) (QueryRule, error) {
	inputType, err := cat.InputType(r.Field, r.Subfield)
	if err != nil {
		return QueryRule{}, rules.NewQueryError(rules.KindMalformed, "compiling rule %q: %v", r.Summary(), err)
	}

	columns := []string{r.Field}
	fieldName := r.Field
	if r.Subfield != "" {
		columns = []string{r.Field + "." + r.Subfield}
		fieldName = r.Subfield
	}

	return QueryRule{
		RuleType: "Simple",
		Values:   []string{r.Value},
		Columns:  columns,
		Operator: r.Condition,
		SelectedOption: SelectedOption{
			FieldName:        fieldName,
			DisplayText:      "",
			Columns:          columns,
			Selectable:       true,
			InputType:        inputType,
			TargetCollection: "cases",
		},
		OverrideColumn: "",
	}, nil
}

// Compile turns a rule set into the probe and export payloads the CAROL
// server expects. AND rules land in one group; OR rules distribute across
// groups per buildORGroups' fencepost below.
func Compile(cat *catalog.Catalog, set rules.Set) (ProbePayload, ExportPayload, error) {
	topAndOr := "or"
	if set.RequireAll {
		topAndOr = "and"
	}

	groups, err := buildGroups(cat, set.Rules, set.RequireAll)
	if err != nil {
		return ProbePayload{}, ExportPayload{}, err
	}

	probe := newProbe(topAndOr)
	probe.QueryGroups = groups
	export := newExport(topAndOr)
	export.QueryGroups = groups

	return probe, export, nil
}

func buildGroups(cat *catalog.Catalog, ruleList []rules.Rule, requireAll bool) ([]QueryGroup, error) {
	if requireAll {
		group := newGroup()
		for _, r := range ruleList {
			qr, err := compileRule(cat, r)
			if err != nil {
				return nil, err
			}
			group.QueryRules = append(group.QueryRules, qr)
		}
		return []QueryGroup{group}, nil
	}
	return buildORGroups(cat, ruleList)
}

// buildORGroups distributes rules across groups for OR mode. The first
// group collects up to one Event.ID "is greater than" rule then up to one
// "is less than" rule (the key bracket). Every group a non-key rule
// overflows into is reseeded with that same bracket, so each general rule
// is still evaluated alongside the key range. A group spawns a
// replacement once it already holds more than two rules — the fencepost
// is ">2", not ">=2", preserved bit-for-bit from the server's own quirk.
func buildORGroups(cat *catalog.Catalog, ruleList []rules.Rule) ([]QueryGroup, error) {
	var bracket []QueryRule
	groups := []QueryGroup{newGroup()}
	curr := 0

	for _, r := range ruleList {
		qr, err := compileRule(cat, r)
		if err != nil {
			return nil, err
		}

		if isBracketRule(r) && len(bracket) < keyBracketCap {
			dup := false
			for _, b := range bracket {
				if b.Operator == r.Condition {
					dup = true
				}
			}
			if !dup {
				bracket = append(bracket, qr)
				groups[curr].QueryRules = append(groups[curr].QueryRules, qr)
				continue
			}
		}

		if len(groups[curr].QueryRules) > 2 {
			next := newGroup()
			next.QueryRules = append(next.QueryRules, bracket...)
			groups = append(groups, next)
			curr = len(groups) - 1
		}
		groups[curr].QueryRules = append(groups[curr].QueryRules, qr)
	}

	return groups, nil
}

// Builder is a reusable, resettable wrapper around Compile, mirroring the
// original CAROLQuery object's incremental addQueryRule/addQueryGroup/
// clear() API (spec.md §9 supplemented feature: clear()/Reset()).
type Builder struct {
	cat *catalog.Catalog
	set rules.Set
}

// NewBuilder constructs an empty Builder in OR mode.
func NewBuilder(cat *catalog.Catalog) *Builder {
	return &Builder{cat: cat}
}

// SetRequireAll switches between AND (true) and OR (false) composition.
func (b *Builder) SetRequireAll(requireAll bool) {
	b.set.RequireAll = requireAll
}

// AddRule appends a rule to the builder's accumulated set.
func (b *Builder) AddRule(r rules.Rule) {
	b.set.Rules = append(b.set.Rules, r)
}

// Reset discards all accumulated rules, matching CAROLQuery.clear().
func (b *Builder) Reset() {
	b.set = rules.Set{RequireAll: b.set.RequireAll}
}

// Build compiles the builder's current rule set into probe and export
// payloads.
func (b *Builder) Build() (ProbePayload, ExportPayload, error) {
	return Compile(b.cat, b.set)
}
