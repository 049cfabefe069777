package physical

import (
	"fmt"
	"strconv"
	"strings"
)

// Expression is a scalar expression of a plan step, written in the optimizer's
// prefix notation, for example `AND(>($1, 10), IS NOT NULL($2))`.
type Expression interface {
	fmt.Stringer
	isExpression()
}

// ColumnRef references the input column at position Index (`$Index`).
type ColumnRef struct {
	Index int
}

func (*ColumnRef) isExpression()    {}
func (e *ColumnRef) String() string { return "$" + strconv.Itoa(e.Index) }

// Literal is a constant. Value holds an int64, float64, string, bool or nil.
type Literal struct {
	Value any
	// TypeName is the optional type annotation that followed the literal, for
	// example `DECIMAL(3, 1)` in `1.5:DECIMAL(3, 1)`.
	TypeName string
}

func (*Literal) isExpression() {}

func (e *Literal) String() string {
	var s string
	switch v := e.Value.(type) {
	case nil:
		s = "null"
	case string:
		s = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	default:
		s = fmt.Sprint(v)
	}
	if e.TypeName != "" {
		s += ":" + e.TypeName
	}
	return s
}

// Call is an operator or function applied to arguments. Op is upper-cased.
type Call struct {
	Op   string
	Args []Expression
	// TypeName is the optional result type annotation, which is the target
	// type for CAST.
	TypeName string
}

func (*Call) isExpression() {}

func (e *Call) String() string {
	args := make([]string, len(e.Args))
	for i, arg := range e.Args {
		args[i] = arg.String()
	}
	s := e.Op + "(" + strings.Join(args, ", ") + ")"
	if e.TypeName != "" {
		s += ":" + e.TypeName
	}
	return s
}

// Columns returns the distinct column indices referenced by expr, in the
// order they first appear.
func Columns(expr Expression) []int {
	var (
		out  []int
		seen = map[int]struct{}{}
		walk func(Expression)
	)
	walk = func(e Expression) {
		switch e := e.(type) {
		case *ColumnRef:
			if _, ok := seen[e.Index]; !ok {
				seen[e.Index] = struct{}{}
				out = append(out, e.Index)
			}
		case *Call:
			for _, arg := range e.Args {
				walk(arg)
			}
		}
	}
	walk(expr)
	return out
}

// ParseExpression parses a single expression.
func ParseExpression(s string) (Expression, error) {
	p := &exprParser{input: s}
	expr, err := p.parse()
	if err != nil {
		return nil, fmt.Errorf("%w: expression %q: %w", ErrParse, s, err)
	}
	p.skipSpaces()
	if !p.eof() {
		return nil, fmt.Errorf("%w: expression %q: unexpected trailing input %q", ErrParse, s, p.input[p.pos:])
	}
	return expr, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) eof() bool { return p.pos >= len(p.input) }

func (p *exprParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) peekAt(offset int) byte {
	if p.pos+offset >= len(p.input) {
		return 0
	}
	return p.input[p.pos+offset]
}

func (p *exprParser) skipSpaces() {
	for !p.eof() && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) parse() (Expression, error) {
	p.skipSpaces()
	if p.eof() {
		return nil, fmt.Errorf("unexpected end of input")
	}

	var (
		expr Expression
		err  error
	)

	c := p.peek()
	switch {
	case c == '$' && isDigit(p.peekAt(1)):
		expr, err = p.parseColumn()
	case c == '\'':
		expr, err = p.parseString()
	case c == '_' && p.hasCharsetPrefix():
		p.skipCharsetPrefix()
		expr, err = p.parseString()
	case isDigit(c), c == '-' && isDigit(p.peekAt(1)):
		expr, err = p.parseNumber()
	default:
		expr, err = p.parseCallOrKeyword()
	}
	if err != nil {
		return nil, err
	}

	if typeName := p.parseTypeSuffix(); typeName != "" {
		switch e := expr.(type) {
		case *Literal:
			e.TypeName = typeName
		case *Call:
			e.TypeName = typeName
		}
	}
	return expr, nil
}

func (p *exprParser) parseColumn() (Expression, error) {
	p.pos++ // $
	start := p.pos
	for !p.eof() && isDigit(p.peek()) {
		p.pos++
	}
	idx, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		return nil, err
	}
	return &ColumnRef{Index: idx}, nil
}

// hasCharsetPrefix reports whether the input continues with a charset
// introducer such as _UTF-16LE'abc'.
func (p *exprParser) hasCharsetPrefix() bool {
	i := strings.IndexByte(p.input[p.pos:], '\'')
	if i <= 1 {
		return false
	}
	return !strings.ContainsAny(p.input[p.pos:p.pos+i], " ,()")
}

func (p *exprParser) skipCharsetPrefix() {
	p.pos += strings.IndexByte(p.input[p.pos:], '\'')
}

func (p *exprParser) parseString() (Expression, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for {
		if p.eof() {
			return nil, fmt.Errorf("unterminated string literal")
		}
		c := p.input[p.pos]
		p.pos++
		if c == '\'' {
			if p.peek() == '\'' {
				sb.WriteByte('\'')
				p.pos++
				continue
			}
			return &Literal{Value: sb.String()}, nil
		}
		sb.WriteByte(c)
	}
}

func (p *exprParser) parseNumber() (Expression, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	isFloat := false
	for !p.eof() {
		c := p.peek()
		switch {
		case isDigit(c):
		case c == '.' || c == 'E' || c == 'e':
			isFloat = true
		case (c == '-' || c == '+') && (p.input[p.pos-1] == 'E' || p.input[p.pos-1] == 'e'):
		default:
			goto done
		}
		p.pos++
	}
done:
	text := p.input[start:p.pos]
	if !isFloat {
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return &Literal{Value: v}, nil
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return &Literal{Value: v}, nil
}

func (p *exprParser) parseCallOrKeyword() (Expression, error) {
	name := p.readOperatorName()
	if name == "" {
		return nil, fmt.Errorf("unexpected character %q at offset %d", p.peek(), p.pos)
	}

	if p.peek() != '(' {
		switch strings.ToLower(name) {
		case "true":
			return &Literal{Value: true}, nil
		case "false":
			return &Literal{Value: false}, nil
		case "null":
			return &Literal{Value: nil}, nil
		}
		return nil, fmt.Errorf("unknown identifier %q", name)
	}

	p.pos++ // (
	call := &Call{Op: strings.ToUpper(name)}
	p.skipSpaces()
	if p.peek() == ')' {
		p.pos++
		return call, nil
	}

	for {
		arg, err := p.parse()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)

		p.skipSpaces()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return call, nil
		default:
			return nil, fmt.Errorf("expected ',' or ')' in arguments of %s", call.Op)
		}
	}
}

// readOperatorName reads either a symbolic operator (`=`, `<>`, `+`, ...) or
// a possibly multi-word name such as `IS NOT NULL`.
func (p *exprParser) readOperatorName() string {
	start := p.pos
	if isSymbol(p.peek()) {
		for !p.eof() && isSymbol(p.peek()) {
			p.pos++
		}
		return p.input[start:p.pos]
	}

	for {
		wordStart := p.pos
		for !p.eof() && isWordChar(p.peek()) {
			p.pos++
		}
		if p.pos == wordStart {
			p.pos = start
			return ""
		}
		// Continue with the next word of names like `IS NOT NULL`.
		if p.peek() == ' ' && isLetter(p.peekAt(1)) {
			p.pos++
			continue
		}
		return p.input[start:p.pos]
	}
}

// parseTypeSuffix consumes an optional `:TYPE` annotation up to the next
// top-level `,` or `)`.
func (p *exprParser) parseTypeSuffix() string {
	if p.peek() != ':' {
		return ""
	}
	p.pos++
	start := p.pos
	depth := 0
	inQuote := false
	for !p.eof() {
		c := p.peek()
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			if depth == 0 {
				return strings.TrimSpace(p.input[start:p.pos])
			}
			depth--
		case c == ',' && depth == 0:
			return strings.TrimSpace(p.input[start:p.pos])
		}
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isWordChar(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '_' || c == '$'
}

func isSymbol(c byte) bool {
	return strings.IndexByte("=<>!+-*/|%", c) >= 0
}
