package domain

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Legacy compare-operator cell encoding. A cell is the relation code plus
// optional bracket flags: CodeOpenBracket when a group opens right after the
// boundary, CodeCloseBracket when a group closes right before it. Both flags
// may be present on one boundary ("{1 = 2} > {3 = 4}").
const (
	CodeStrict       = 1
	CodeTie          = 2
	CodeIncomparable = 3

	CodeOpenBracket  = 10
	CodeCloseBracket = 20
)

// EncodeCompareOperators renders the ranking's operators and groups into
// the legacy single-integer-per-boundary form.
//
// The encoding has no boundary before the first object or after the last
// one, so a group starting at index 0 or ending at the last index is left
// implicit and DecodeCompareOperators restores it. Rankings whose groups
// cannot survive that (a group spanning every object, two groups opening or
// closing at the same boundary, more than one leading group) are rejected
// with ErrInvalidRanking.
func EncodeCompareOperators(r Ranking) ([]int, error) {
	n := len(r.objects)
	codes := make([]int, len(r.operators))
	for i, op := range r.operators {
		codes[i] = int(op)
	}

	leading := 0
	for _, s := range r.spans {
		if s.Start == 0 && s.End == n-1 {
			return nil, fmt.Errorf("%w: group [%d,%d] covers the whole ranking and has no encodable boundary",
				ErrInvalidRanking, s.Start, s.End)
		}
		if s.Start == 0 {
			leading++
			if leading > 1 {
				return nil, fmt.Errorf("%w: more than one group starts at the first object", ErrInvalidRanking)
			}
		} else {
			if hasOpen(codes[s.Start-1]) {
				return nil, fmt.Errorf("%w: two groups open at boundary %d", ErrInvalidRanking, s.Start-1)
			}
			codes[s.Start-1] += CodeOpenBracket
		}
		if s.End < n-1 {
			if hasClose(codes[s.End]) {
				return nil, fmt.Errorf("%w: two groups close at boundary %d", ErrInvalidRanking, s.End)
			}
			codes[s.End] += CodeCloseBracket
		}
	}
	return codes, nil
}

func hasOpen(code int) bool  { return (code/CodeOpenBracket)%2 == 1 }
func hasClose(code int) bool { return code >= CodeCloseBracket }

// DecodeCompareOperators builds a Ranking from objects and legacy encoded
// cells. The relation is code % 10; bracket flags are read from the tens.
func DecodeCompareOperators(objects []int, codes []int) (Ranking, error) {
	if len(codes) != len(objects)-1 {
		return Ranking{}, fmt.Errorf("%w: expected %d encoded operators for %d objects, got %d",
			ErrInvalidRanking, len(objects)-1, len(objects), len(codes))
	}

	ops := make([]Operator, len(codes))
	var spans []BracketSpan
	var stack []int
	closedLeading := false
	for i, code := range codes {
		if code < 0 || code >= 2*CodeCloseBracket {
			return Ranking{}, fmt.Errorf("%w: encoded operator %d out of range at boundary %d",
				ErrInvalidRanking, code, i)
		}
		ops[i] = Operator(code % CodeOpenBracket)

		// Close before open: on a shared boundary the left group ends first.
		if hasClose(code) {
			if len(stack) > 0 {
				start := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				spans = append(spans, BracketSpan{Start: start, End: i})
			} else {
				if closedLeading {
					return Ranking{}, fmt.Errorf("%w: unbalanced closing bracket at boundary %d",
						ErrInvalidRanking, i)
				}
				closedLeading = true
				spans = append(spans, BracketSpan{Start: 0, End: i})
			}
		}
		if hasOpen(code) {
			stack = append(stack, i+1)
		}
	}
	for len(stack) > 0 {
		start := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		spans = append(spans, BracketSpan{Start: start, End: len(objects) - 1})
	}

	return NewRanking(objects, ops, spans...)
}

// ParseRanking parses the syntax produced by Ranking.String, e.g.
// "3 > {1 = 4} > 2 | 5". Whitespace is optional.
func ParseRanking(s string) (Ranking, error) {
	p := rankingParser{input: s}
	return p.parse()
}

// MustParseRanking is like ParseRanking but panics on error.
func MustParseRanking(s string) Ranking {
	r, err := ParseRanking(s)
	if err != nil {
		panic(err)
	}
	return r
}

type rankingParser struct {
	input string
	pos   int
}

func (p *rankingParser) parse() (Ranking, error) {
	var (
		objects []int
		ops     []Operator
		spans   []BracketSpan
		stack   []int
	)

	expectObject := true
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			break
		}
		c := p.input[p.pos]
		switch {
		case c == '{':
			if !expectObject {
				return Ranking{}, p.errorf("unexpected '{'")
			}
			stack = append(stack, len(objects))
			p.pos++
		case c == '}':
			if expectObject || len(stack) == 0 {
				return Ranking{}, p.errorf("unexpected '}'")
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			spans = append(spans, BracketSpan{Start: start, End: len(objects) - 1})
			p.pos++
		case c == '>' || c == '=' || c == '|':
			if expectObject {
				return Ranking{}, p.errorf("unexpected operator %q", c)
			}
			ops = append(ops, operatorForSymbol(c))
			expectObject = true
			p.pos++
		case c == '-' || unicode.IsDigit(rune(c)):
			if !expectObject {
				return Ranking{}, p.errorf("missing operator before object")
			}
			obj, err := p.readInt()
			if err != nil {
				return Ranking{}, err
			}
			objects = append(objects, obj)
			expectObject = false
		default:
			return Ranking{}, p.errorf("unexpected character %q", c)
		}
	}

	if len(objects) == 0 {
		return Ranking{}, fmt.Errorf("%w: empty ranking %q", ErrInvalidRanking, p.input)
	}
	if expectObject {
		return Ranking{}, p.errorf("ranking ends with an operator")
	}
	if len(stack) > 0 {
		return Ranking{}, p.errorf("unbalanced '{'")
	}
	return NewRanking(objects, ops, spans...)
}

func (p *rankingParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *rankingParser) readInt() (int, error) {
	start := p.pos
	if p.input[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && unicode.IsDigit(rune(p.input[p.pos])) {
		p.pos++
	}
	v, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		return 0, p.errorf("invalid object id %q", p.input[start:p.pos])
	}
	return v, nil
}

func (p *rankingParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d in %q", ErrInvalidRanking,
		fmt.Sprintf(format, args...), p.pos, strings.TrimSpace(p.input))
}

func operatorForSymbol(c byte) Operator {
	switch c {
	case '=':
		return OperatorTie
	case '|':
		return OperatorIncomparable
	default:
		return OperatorStrict
	}
}
