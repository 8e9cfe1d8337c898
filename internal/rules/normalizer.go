package rules

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/catalog"
)

// conditionDateRe matches a leading condition phrase followed by a date
// string, e.g. "is on or after 1/1/2023". Mirrors the original's
// cond_date_regex exactly.
var conditionDateRe = regexp.MustCompile(`^(is(?:(?: on or)?(?: before| after)| not)?) (.+)$`)

// ConfirmFunc is asked whether to proceed with a free-text argument that
// looks like prose. Returning false rejects the argument as Malformed.
// A nil ConfirmFunc rejects automatically — a library with no interactive
// channel has no safe default other than declining.
type ConfirmFunc func(value string) bool

// Normalizer turns raw Args into complete Rules, using the catalog to
// classify tokens in the 3- and 4-argument forms.
type Normalizer struct {
	Catalog *catalog.Catalog
	Confirm ConfirmFunc
}

// NewNormalizer constructs a Normalizer bound to cat.
func NewNormalizer(cat *catalog.Catalog, confirm ConfirmFunc) *Normalizer {
	return &Normalizer{Catalog: cat, Confirm: confirm}
}

// Normalize dispatches on arg.Kind and returns a complete Rule or a
// *QueryError.
func (n *Normalizer) Normalize(arg Arg) (Rule, error) {
	var rule Rule
	var err error

	switch arg.Kind {
	case ArgStr, ArgTuple1:
		rule, err = n.normalizeSingle(arg.Str)
	case ArgTuple3:
		if len(arg.Tuple) != 3 {
			return Rule{}, newMalformed("tuple3 arg requires exactly 3 components")
		}
		rule, err = n.normalizeThree(arg.Tuple)
	case ArgTuple4:
		if len(arg.Tuple) != 4 {
			return Rule{}, newMalformed("tuple4 arg requires exactly 4 components")
		}
		rule, err = n.normalizeFour(arg.Tuple)
	default:
		return Rule{}, newMalformed("unrecognized argument shape")
	}
	if err != nil {
		return Rule{}, err
	}
	if err := rule.Complete(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// looksLikeProse reports whether v should be confirmed with the caller
// before being treated as free text: it ends in punctuation, or it has
// more than ten words.
func looksLikeProse(v string) bool {
	trimmed := strings.TrimRightFunc(v, unicode.IsSpace)
	if trimmed == "" {
		return false
	}
	last := rune(trimmed[len(trimmed)-1])
	if unicode.IsPunct(last) {
		return true
	}
	return len(strings.Fields(v)) > 10
}

func (n *Normalizer) normalizeSingle(raw string) (Rule, error) {
	if looksLikeProse(raw) {
		confirmed := n.Confirm != nil && n.Confirm(raw)
		if !confirmed {
			return Rule{}, newMalformed("prose-like input %q was not confirmed", raw)
		}
	}

	normalized := strings.ToLower(strings.TrimSpace(raw))

	// Step 2: permissive date parse, e.g. "10/24/1950", "today".
	if parsed, err := dateparse.ParseAny(normalized); err == nil {
		parsed = applyTwoDigitYearHeuristic(parsed)
		return Rule{
			Field:     "Event",
			Subfield:  "EventDate",
			Condition: "is on or after",
			Value:     parsed.Format("2006-01-02"),
		}, nil
	}

	// Step 3: "<condition> <date>".
	if m := conditionDateRe.FindStringSubmatch(normalized); m != nil {
		condition, dateStr := m[1], m[2]
		parsed, err := dateparse.ParseAny(dateStr)
		if err != nil {
			return Rule{}, newMalformedDate(
				"detected condition: %s\ndetected date: %s\nvalid conditions are: %s",
				condition, dateStr, ValidConditionList,
			)
		}
		parsed = applyTwoDigitYearHeuristic(parsed)
		return Rule{
			Field:     "Event",
			Subfield:  "EventDate",
			Condition: condition,
			Value:     parsed.Format("2006-01-02"),
		}, nil
	}

	// Step 4: free text.
	return Rule{
		Field:     "Narrative",
		Subfield:  "Factual",
		Condition: "contains",
		Value:     normalized,
	}, nil
}

// applyTwoDigitYearHeuristic subtracts a century from dates the permissive
// parser pushed into the future, e.g. "10/24/50" parsing to 2050 instead
// of 1950.
func applyTwoDigitYearHeuristic(t time.Time) time.Time {
	if t.After(time.Now()) {
		return t.AddDate(-100, 0, 0)
	}
	return t
}

// classify returns the universe a token belongs to (0=field, 1=subfield,
// 2=condition, 3=value) or -1 if it matches none.
func classify(cat *catalog.Catalog, token string) int {
	switch {
	case cat.IsField(token):
		return 0
	case cat.IsSubfield(token):
		return 1
	case cat.IsCondition(token):
		return 2
	case cat.IsValue(token):
		return 3
	default:
		return -1
	}
}

func (n *Normalizer) normalizeThree(tokens []string) (Rule, error) {
	var slots [4]string

	// First pass: classify in reverse order, same traversal the source
	// uses (it treats the tuple as a stack and pops from the end).
	stack := append([]string(nil), tokens...)
	var deferred []string
	for len(stack) > 0 {
		tok := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		key := classify(n.Catalog, tok)
		if key < 0 {
			deferred = append(deferred, tok)
		} else {
			slots[key] = tok
		}
	}

	// Second pass: unmatched tokens split on whitespace and their parts
	// re-classified; a non-2-word leftover (or a 2-word leftover with an
	// unclassifiable part) defaults whole into the value slot.
	for len(deferred) > 0 {
		t := deferred[len(deferred)-1]
		deferred = deferred[:len(deferred)-1]

		parts := strings.Fields(t)
		if len(parts) == 2 {
			for _, p := range parts {
				key := classify(n.Catalog, p)
				if key < 0 {
					slots[3] = t
				} else {
					slots[key] = p
				}
			}
		} else {
			slots[3] = t
		}
	}

	return Rule{Field: slots[0], Subfield: slots[1], Condition: slots[2], Value: slots[3]}, nil
}

func (n *Normalizer) normalizeFour(tokens []string) (Rule, error) {
	var slots [4]string
	for _, tok := range tokens {
		key := classify(n.Catalog, tok)
		if key < 0 {
			// Mirrors the source's Python negative-index quirk (rule[-1]
			// lands on the value slot): an unclassifiable 4th-arg token
			// still ends up as the value.
			key = 3
		}
		slots[key] = tok
	}

	rule := Rule{Field: slots[0], Subfield: slots[1], Condition: slots[2], Value: slots[3]}

	if rule.Subfield == "EventDate" && rule.Value != "" {
		parsed, err := dateparse.ParseAny(strings.ToLower(strings.TrimSpace(rule.Value)))
		if err != nil {
			return Rule{}, newMalformedDate(
				"detected condition: %s\ndetected date: %s\nvalid conditions are: %s",
				rule.Condition, rule.Value, ValidConditionList,
			)
		}
		parsed = applyTwoDigitYearHeuristic(parsed)
		rule.Value = parsed.Format("2006-01-02")
	}

	return rule, nil
}
