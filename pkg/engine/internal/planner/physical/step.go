package physical

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"
)

// operatorRE matches the operator name at the start of a plan step.
var operatorRE = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\(`)

// namedValue is a `key=[value]` argument of a plan step.
type namedValue struct {
	key   string
	value string
}

// parsedStep is a plan line split into its operator and arguments.
type parsedStep struct {
	text     string
	operator string
	args     []namedValue
}

func (s *parsedStep) get(key string) (string, bool) {
	for _, arg := range s.args {
		if arg.key == key {
			return arg.value, true
		}
	}
	return "", false
}

// operatorName returns the operator of a plan line, or false if the line
// does not start with one.
func operatorName(line string) (string, bool) {
	m := operatorRE.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// parseStep splits a plan line such as
// `LogicalJoin(condition=[=($0, $2)], joinType=[inner])` into its operator
// and named arguments. Anything following the closing parenthesis is
// ignored.
func parseStep(line string) (*parsedStep, error) {
	text := strings.TrimSpace(line)
	op, ok := operatorName(text)
	if !ok {
		return nil, fmt.Errorf("%w: step %q has no operator", ErrParse, text)
	}

	open := len(op)
	end := matchingClose(text, open)
	if end < 0 {
		return nil, fmt.Errorf("%w: step %q has unbalanced parentheses", ErrParse, text)
	}

	step := &parsedStep{text: text, operator: op}
	for _, part := range splitTopLevel(text[open+1:end], ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: step %q: argument %q is not of the form key=[value]", ErrParse, text, part)
		}
		step.args = append(step.args, namedValue{
			key:   strings.TrimSpace(key),
			value: unwrap(strings.TrimSpace(value), '[', ']'),
		})
	}
	return step, nil
}

// matchingClose returns the index of the parenthesis closing the one at
// open, or -1.
func matchingClose(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s on sep, ignoring separators nested in brackets or
// quotes.
func splitTopLevel(s string, sep byte) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// unwrap removes one layer of the given brackets around s, if present.
func unwrap(s string, open, close byte) string {
	if len(s) >= 2 && s[0] == open && s[len(s)-1] == close {
		return s[1 : len(s)-1]
	}
	return s
}

// expressionList splits a bracketed, comma-separated list like `[1, 3]` into
// its trimmed entries.
func expressionList(s string) []string {
	s = strings.TrimSpace(s)
	s = unwrap(s, '[', ']')
	s = unwrap(s, '{', '}')

	var out []string
	for _, part := range splitTopLevel(s, ',') {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
