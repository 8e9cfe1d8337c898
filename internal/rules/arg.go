package rules

// ArgKind tags the shape of a raw user argument. Replacing Python's
// duck-typed string/tuple dispatch with an explicit variant, per
// spec.md §9 ("duck-typed argument shapes: replace with a tagged
// variant").
type ArgKind int

const (
	ArgStr ArgKind = iota
	ArgTuple1
	ArgTuple3
	ArgTuple4
)

// Arg is one user-supplied query argument, already shape-classified.
// Build with NewStr/NewTuple1/NewTuple3/NewTuple4 or FromStrings.
type Arg struct {
	Kind  ArgKind
	Str   string
	Tuple []string
}

func NewStr(s string) Arg { return Arg{Kind: ArgStr, Str: s} }

func NewTuple1(s string) Arg { return Arg{Kind: ArgTuple1, Str: s} }

func NewTuple3(a, b, c string) Arg {
	return Arg{Kind: ArgTuple3, Tuple: []string{a, b, c}}
}

func NewTuple4(a, b, c, d string) Arg {
	return Arg{Kind: ArgTuple4, Tuple: []string{a, b, c, d}}
}

// FromStrings builds an Arg from a variadic token list, the shape the
// CLI/demo entrypoint naturally produces. Arities outside {1,3,4} are
// malformed per spec.md §4.2.
func FromStrings(parts ...string) (Arg, error) {
	switch len(parts) {
	case 0:
		return Arg{}, newMalformed("no query arguments supplied")
	case 1:
		return NewTuple1(parts[0]), nil
	case 2:
		return Arg{}, newMalformed("2-argument rules are not supported")
	case 3:
		return NewTuple3(parts[0], parts[1], parts[2]), nil
	case 4:
		return NewTuple4(parts[0], parts[1], parts[2], parts[3]), nil
	default:
		return Arg{}, newMalformed("too many components (%d) in a single argument, max is 4", len(parts))
	}
}
