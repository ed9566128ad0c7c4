package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Operator describes the relation between two consecutive objects of a
// Ranking.
type Operator uint8

// Supported relations between consecutive ranking entries.
const (
	// OperatorStrict means the left object is strictly preferred to the
	// right one.
	OperatorStrict Operator = iota + 1

	// OperatorTie means both objects are equally preferred.
	OperatorTie

	// OperatorIncomparable means no preference between the two objects is
	// known.
	OperatorIncomparable
)

// Symbol returns the human-readable symbol used by Ranking.String.
func (o Operator) Symbol() string {
	switch o {
	case OperatorStrict:
		return ">"
	case OperatorTie:
		return "="
	case OperatorIncomparable:
		return "|"
	default:
		return "?"
	}
}

// String implements fmt.Stringer.
func (o Operator) String() string {
	switch o {
	case OperatorStrict:
		return "strict"
	case OperatorTie:
		return "tie"
	case OperatorIncomparable:
		return "incomparable"
	default:
		return "Operator(" + strconv.Itoa(int(o)) + ")"
	}
}

// Valid reports whether o is one of the defined operators.
func (o Operator) Valid() bool {
	return o >= OperatorStrict && o <= OperatorIncomparable
}

// BracketSpan delimits a group of objects, identified by inclusive indices
// into the ranking's object list. Groups are rendered with braces and
// usually hold tied or mutually incomparable objects.
type BracketSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of objects covered by the span.
func (b BracketSpan) Len() int { return b.End - b.Start + 1 }

// Contains reports whether the object index i lies inside the span.
func (b BracketSpan) Contains(i int) bool { return i >= b.Start && i <= b.End }

// Ranking is an immutable ordered sequence of object identifiers, most
// preferred first, together with the relation between each consecutive
// pair and an optional list of bracketed groups.
//
// The zero value is not a valid Ranking; use NewRanking or NewTotalOrder.
type Ranking struct {
	objects   []int
	operators []Operator
	spans     []BracketSpan
}

// CompareOperatorsFor returns the fully comparable operator array for a
// plain total order over objects, i.e. every cell is OperatorStrict.
func CompareOperatorsFor(objects []int) []Operator {
	if len(objects) < 2 {
		return []Operator{}
	}
	ops := make([]Operator, len(objects)-1)
	for i := range ops {
		ops[i] = OperatorStrict
	}
	return ops
}

// NewTotalOrder builds a strict total order ranking from objects listed
// most- to least-preferred.
func NewTotalOrder(objects ...int) (Ranking, error) {
	return NewRanking(objects, CompareOperatorsFor(objects))
}

// MustTotalOrder is like NewTotalOrder but panics on invalid input. It is
// intended for tests and static fixtures.
func MustTotalOrder(objects ...int) Ranking {
	r, err := NewTotalOrder(objects...)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRanking validates and builds a Ranking. The input slices are copied.
//
// It returns an error wrapping ErrInvalidRanking when the object list is
// empty, contains duplicates, the operator count is not len(objects)-1, an
// operator is undefined, or the bracket spans are out of range or do not
// nest.
func NewRanking(objects []int, operators []Operator, spans ...BracketSpan) (Ranking, error) {
	if len(objects) == 0 {
		return Ranking{}, fmt.Errorf("%w: ranking must contain at least one object", ErrInvalidRanking)
	}
	if len(operators) != len(objects)-1 {
		return Ranking{}, fmt.Errorf("%w: expected %d compare operators for %d objects, got %d",
			ErrInvalidRanking, len(objects)-1, len(objects), len(operators))
	}

	seen := make(map[int]struct{}, len(objects))
	for _, obj := range objects {
		if _, dup := seen[obj]; dup {
			return Ranking{}, fmt.Errorf("%w: duplicate object %d", ErrInvalidRanking, obj)
		}
		seen[obj] = struct{}{}
	}
	for i, op := range operators {
		if !op.Valid() {
			return Ranking{}, fmt.Errorf("%w: undefined operator %d at boundary %d", ErrInvalidRanking, op, i)
		}
	}

	sorted, err := normalizeSpans(spans, len(objects))
	if err != nil {
		return Ranking{}, err
	}

	return Ranking{
		objects:   slices.Clone(objects),
		operators: slices.Clone(operators),
		spans:     sorted,
	}, nil
}

// normalizeSpans checks span bounds and nesting and returns the spans
// sorted by start ascending, then by length descending (outer first).
func normalizeSpans(spans []BracketSpan, n int) ([]BracketSpan, error) {
	if len(spans) == 0 {
		return nil, nil
	}
	sorted := slices.Clone(spans)
	for _, s := range sorted {
		if s.Start < 0 || s.End >= n || s.Start >= s.End {
			return nil, fmt.Errorf("%w: bracket span [%d,%d] invalid for %d objects",
				ErrInvalidRanking, s.Start, s.End, n)
		}
	}
	slices.SortFunc(sorted, compareSpans)

	// Spans sorted outer-first must form a forest: each span is either
	// disjoint from or fully inside every span opened before it.
	var open []BracketSpan
	for i, s := range sorted {
		if i > 0 && sorted[i-1] == s {
			return nil, fmt.Errorf("%w: duplicate bracket span [%d,%d]", ErrInvalidRanking, s.Start, s.End)
		}
		for len(open) > 0 && open[len(open)-1].End < s.Start {
			open = open[:len(open)-1]
		}
		if len(open) > 0 && s.End > open[len(open)-1].End {
			top := open[len(open)-1]
			return nil, fmt.Errorf("%w: bracket spans [%d,%d] and [%d,%d] overlap",
				ErrInvalidRanking, top.Start, top.End, s.Start, s.End)
		}
		open = append(open, s)
	}
	return sorted, nil
}

func compareSpans(a, b BracketSpan) int {
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	return cmp.Compare(b.End, a.End)
}

// Len returns the number of ranked objects.
func (r Ranking) Len() int { return len(r.objects) }

// IsZero reports whether r is the zero value rather than a constructed
// ranking.
func (r Ranking) IsZero() bool { return len(r.objects) == 0 }

// Objects returns a copy of the object list, most preferred first.
func (r Ranking) Objects() []int { return slices.Clone(r.objects) }

// Operators returns a copy of the operator list.
func (r Ranking) Operators() []Operator { return slices.Clone(r.operators) }

// Spans returns a copy of the bracket spans, outermost first.
func (r Ranking) Spans() []BracketSpan { return slices.Clone(r.spans) }

// ObjectAt returns the object at position i.
func (r Ranking) ObjectAt(i int) int { return r.objects[i] }

// OperatorAt returns the relation between positions i and i+1.
func (r Ranking) OperatorAt(i int) Operator { return r.operators[i] }

// Position returns the 0-based position of obj, or -1 if it is not ranked.
func (r Ranking) Position(obj int) int { return slices.Index(r.objects, obj) }

// Contains reports whether obj is ranked.
func (r Ranking) Contains(obj int) bool { return r.Position(obj) >= 0 }

// IsTotalOrder reports whether every relation is strict and no bracket
// groups are present.
func (r Ranking) IsTotalOrder() bool {
	return len(r.spans) == 0 && !slices.ContainsFunc(r.operators, func(op Operator) bool {
		return op != OperatorStrict
	})
}

// HasTiesOrIncomparables reports whether any relation is a tie or
// incomparability.
func (r Ranking) HasTiesOrIncomparables() bool {
	return slices.ContainsFunc(r.operators, func(op Operator) bool {
		return op == OperatorTie || op == OperatorIncomparable
	})
}

// Equal reports structural equality: same objects, operators and groups.
func (r Ranking) Equal(other Ranking) bool { return r.Compare(other) == 0 }

// Compare orders rankings structurally: by object sequence, then operator
// sequence, then bracket spans, each compared lexicographically.
func (r Ranking) Compare(other Ranking) int {
	if c := slices.Compare(r.objects, other.objects); c != 0 {
		return c
	}
	if c := slices.Compare(r.operators, other.operators); c != 0 {
		return c
	}
	return slices.CompareFunc(r.spans, other.spans, compareSpans)
}

// String renders the ranking using relation symbols and braces for groups,
// for example "1 > {2 = 3} > 4". ParseRanking accepts the same syntax.
func (r Ranking) String() string {
	if len(r.objects) == 0 {
		return ""
	}
	opens := make([]int, len(r.objects))
	closes := make([]int, len(r.objects))
	for _, s := range r.spans {
		opens[s.Start]++
		closes[s.End]++
	}

	var sb strings.Builder
	for i, obj := range r.objects {
		if i > 0 {
			sb.WriteByte(' ')
			sb.WriteString(r.operators[i-1].Symbol())
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.Repeat("{", opens[i]))
		sb.WriteString(strconv.Itoa(obj))
		sb.WriteString(strings.Repeat("}", closes[i]))
	}
	return sb.String()
}
