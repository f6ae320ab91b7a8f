package formula

// Operator precedence, loosest to tightest:
//
//	OR < AND < NOT < comparison < + - < * / % < unary minus
//
// Parentheses override. This matches ordinary spreadsheet-formula
// expectations, so "a + b * c > d AND e" parses as ((a + (b*c)) > d) AND e.

type parser struct {
	tokens []token
	i      int
}

// Parse parses a formula string into an AST.
func Parse(src string) (Node, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, parseErrorf(p.peek().pos, "unexpected %q", p.peek().text)
	}
	return node, nil
}

func (p *parser) peek() token { return p.tokens[p.i] }

func (p *parser) next() token {
	t := p.tokens[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		op := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{pos: op.pos, Op: "OR", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		op := p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{pos: op.pos, Op: "AND", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.peek().kind == tokNot {
		op := p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{pos: op.pos, Op: "NOT", X: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokOp && isComparisonOp(t.text) {
		op := p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &Binary{pos: op.pos, Op: op.text, X: left, Y: right}, nil
	}
	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == tokOp && (t.text == "+" || t.text == "-"); t = p.peek() {
		op := p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{pos: op.pos, Op: op.text, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == tokOp && (t.text == "*" || t.text == "/" || t.text == "%"); t = p.peek() {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{pos: op.pos, Op: op.text, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if t := p.peek(); t.kind == tokOp && t.text == "-" {
		op := p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{pos: op.pos, Op: "-", X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &NumberLit{pos: t.pos, Value: t.text}, nil
	case tokString:
		return &StringLit{pos: t.pos, Value: t.text}, nil
	case tokTrue:
		return &BoolLit{pos: t.pos, Value: true}, nil
	case tokFalse:
		return &BoolLit{pos: t.pos, Value: false}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, parseErrorf(closing.pos, "expected closing parenthesis")
		}
		return inner, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		return &FieldRef{pos: t.pos, Name: t.text}, nil
	case tokEOF:
		return nil, parseErrorf(t.pos, "unexpected end of formula")
	default:
		return nil, parseErrorf(t.pos, "unexpected %q", t.text)
	}
}

func (p *parser) parseCall(name token) (Node, error) {
	p.next() // consume "("
	call := &Call{pos: name.pos, Name: name.text}
	if p.peek().kind == tokRParen {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		switch t := p.next(); t.kind {
		case tokComma:
			continue
		case tokRParen:
			return call, nil
		default:
			return nil, parseErrorf(t.pos, "expected ',' or ')' in %s(...)", name.text)
		}
	}
}

func isComparisonOp(op string) bool {
	switch op {
	case "=", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}
