package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// filterPredicate builds the in-memory predicate for f.
func filterPredicate(f Filter) (Predicate, error) {
	field := f.Field
	switch f.Operator {
	case "=", "!=", ">", ">=", "<", "<=":
		op := f.Operator
		return func(rec map[string]any) bool {
			actual, ok := rec[field]
			if !ok || actual == nil {
				return op == "!="
			}
			c, ok := compare(actual, f.Value)
			if !ok {
				return op == "!="
			}
			switch op {
			case "=":
				return c == 0
			case "!=":
				return c != 0
			case ">":
				return c > 0
			case ">=":
				return c >= 0
			case "<":
				return c < 0
			default:
				return c <= 0
			}
		}, nil
	case "LIKE", "NOT LIKE":
		re, err := likePattern(text(f.Value))
		if err != nil {
			return nil, err
		}
		negate := f.Operator == "NOT LIKE"
		return func(rec map[string]any) bool {
			actual, ok := rec[field]
			if !ok || actual == nil {
				return negate
			}
			return re.MatchString(text(actual)) != negate
		}, nil
	case "IN", "NOT IN":
		values, _ := f.Value.([]any)
		negate := f.Operator == "NOT IN"
		return func(rec map[string]any) bool {
			actual, ok := rec[field]
			if !ok || actual == nil {
				return negate
			}
			for _, v := range values {
				if c, ok := compare(actual, v); ok && c == 0 {
					return !negate
				}
			}
			return negate
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperator, f.Operator)
	}
}

// searchPredicate matches s.Term in s.Field, or in any string field when
// s.Field is empty.
func searchPredicate(s Search) Predicate {
	term := strings.ToLower(s.Term)
	return func(rec map[string]any) bool {
		if s.Field != "" {
			v, ok := rec[s.Field]
			return ok && v != nil && strings.Contains(strings.ToLower(text(v)), term)
		}
		for _, v := range rec {
			if str, ok := v.(string); ok && strings.Contains(strings.ToLower(str), term) {
				return true
			}
		}
		return false
	}
}

// likePattern translates a LIKE pattern into an anchored case-insensitive
// regular expression: % matches any run, _ a single character.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// compare orders two values numerically when both are numbers and
// lexically otherwise. ok is false when either side is nil.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	fa, aok := number(a)
	fb, bok := number(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	return strings.Compare(text(a), text(b)), true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
