package eval

import (
	"fmt"
	"strconv"
	"strings"
)

// parser is a standard recursive-descent/Pratt parser over the token stream.
// Precedence (low to high): ternary, or, and, not, comparison, additive,
// multiplicative, unary, power, postfix (call/index/slice/attr), atom.
type parser struct {
	toks []token
	pos  int
}

func parseExpr(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("eval: unexpected trailing token %q at offset %d", p.cur().text, p.cur().pos)
	}
	return n, nil
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) atOp(text string) bool {
	t := p.cur()
	return (t.kind == tokOp || t.kind == tokKeyword) && t.text == text
}

func (p *parser) expectOp(text string) error {
	if !p.atOp(text) {
		return fmt.Errorf("eval: expected %q at offset %d, got %q", text, p.cur().pos, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) parseTernary() (node, error) {
	body, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.atOp("if") {
		p.advance()
		test, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp("else"); err != nil {
			return nil, err
		}
		orelse, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return condExpr{test: test, body: body, orelse: orelse}, nil
	}
	return body, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atOp("or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = boolOp{op: "or", x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atOp("and") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = boolOp{op: "and", x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.atOp("not") {
		p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return unaryOp{op: "not", x: x}, nil
	}
	return p.parseComparison()
}

var compareOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true, "in": true,
}

func (p *parser) parseComparison() (node, error) {
	first, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	var ops []string
	operands := []node{first}
	for {
		neg := false
		if p.atOp("not") {
			// lookahead for "not in"
			if p.toks[p.pos+1].kind == tokKeyword && p.toks[p.pos+1].text == "in" {
				p.advance()
				neg = true
			} else {
				break
			}
		}
		if !p.atOp("in") && !(p.cur().kind == tokOp && compareOps[p.cur().text]) {
			break
		}
		opTok := p.advance()
		op := opTok.text
		if neg {
			op = "not in"
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		operands = append(operands, right)
	}
	if len(ops) == 0 {
		return first, nil
	}
	return compareOp{operands: operands, ops: ops}, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.atOp("+") || p.atOp("-") {
		op := p.advance().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binOp{op: op, x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atOp("*") || p.atOp("/") || p.atOp("//") || p.atOp("%") {
		op := p.advance().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binOp{op: op, x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.atOp("-") {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryOp{op: "-", x: x}, nil
	}
	if p.atOp("+") {
		p.advance()
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *parser) parsePower() (node, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.atOp("**") {
		p.advance()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return binOp{op: "**", x: base, y: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePostfix() (node, error) {
	n, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atOp("."):
			p.advance()
			if p.cur().kind != tokIdent {
				return nil, fmt.Errorf("eval: expected attribute name at offset %d", p.cur().pos)
			}
			name := p.advance().text
			if len(name) > 0 && name[0] == '_' {
				return nil, fmt.Errorf("eval: access to %q is forbidden (leading underscore)", name)
			}
			n = attrExpr{target: n, name: name}
		case p.atOp("("):
			p.advance()
			var args []node
			for !p.atOp(")") {
				a, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.atOp(",") {
					p.advance()
					continue
				}
				break
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			n = callExpr{fn: n, args: args}
		case p.atOp("["):
			p.advance()
			item, err := p.parseSliceOrIndex()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			n = item.apply(n)
		default:
			return n, nil
		}
	}
}

// bracketItem carries either an index or a slice, applied against the target
// once the closing bracket is confirmed.
type bracketItem struct {
	index node
	isIdx bool
	slice sliceExpr
}

func (b bracketItem) apply(target node) node {
	if b.isIdx {
		return indexExpr{target: target, index: b.index}
	}
	s := b.slice
	s.target = target
	return s
}

func (p *parser) parseSliceOrIndex() (bracketItem, error) {
	var lo, hi, step node
	var hasLo, hasHi, hasStep bool
	if !p.atOp(":") {
		v, err := p.parseTernary()
		if err != nil {
			return bracketItem{}, err
		}
		lo, hasLo = v, true
	}
	if !p.atOp(":") {
		return bracketItem{index: lo, isIdx: true}, nil
	}
	p.advance() // ':'
	if !p.atOp(":") && !p.atOp("]") {
		v, err := p.parseTernary()
		if err != nil {
			return bracketItem{}, err
		}
		hi, hasHi = v, true
	}
	if p.atOp(":") {
		p.advance()
		if !p.atOp("]") {
			v, err := p.parseTernary()
			if err != nil {
				return bracketItem{}, err
			}
			step, hasStep = v, true
		}
	}
	return bracketItem{slice: sliceExpr{lo: lo, hi: hi, step: step, hasLo: hasLo, hasHi: hasHi, hasStep: hasStep}}, nil
}

func (p *parser) parseAtom() (node, error) {
	t := p.cur()
	switch t.kind {
	case tokNumber:
		p.advance()
		if !strings.ContainsAny(t.text, ".eE") {
			if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
				return numberLit{value: i}, nil
			}
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("eval: invalid number %q", t.text)
		}
		return numberLit{value: f}, nil
	case tokString:
		p.advance()
		return stringLit{value: t.text}, nil
	case tokIdent:
		p.advance()
		// System variables (_event, _sessionid, _name) are single-underscore
		// names; only dunder-style internals are off limits.
		if strings.HasPrefix(t.text, "__") {
			return nil, fmt.Errorf("eval: access to %q is forbidden", t.text)
		}
		return nameRef{name: t.text}, nil
	case tokKeyword:
		switch t.text {
		case "True":
			p.advance()
			return boolLit{value: true}, nil
		case "False":
			p.advance()
			return boolLit{value: false}, nil
		case "None":
			p.advance()
			return noneLit{}, nil
		}
		return nil, fmt.Errorf("eval: unexpected keyword %q at offset %d", t.text, t.pos)
	case tokOp:
		switch t.text {
		case "(":
			p.advance()
			first, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if p.atOp(",") {
				elems := []node{first}
				for p.atOp(",") {
					p.advance()
					if p.atOp(")") {
						break
					}
					e, err := p.parseTernary()
					if err != nil {
						return nil, err
					}
					elems = append(elems, e)
				}
				if err := p.expectOp(")"); err != nil {
					return nil, err
				}
				return tupleLit{elems: elems}, nil
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return first, nil
		case "[":
			p.advance()
			var elems []node
			for !p.atOp("]") {
				e, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
				if p.atOp(",") {
					p.advance()
					continue
				}
				break
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			return listLit{elems: elems}, nil
		case "{":
			p.advance()
			var entries []dictEntry
			for !p.atOp("}") {
				k, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				if err := p.expectOp(":"); err != nil {
					return nil, err
				}
				v, err := p.parseTernary()
				if err != nil {
					return nil, err
				}
				entries = append(entries, dictEntry{key: k, val: v})
				if p.atOp(",") {
					p.advance()
					continue
				}
				break
			}
			if err := p.expectOp("}"); err != nil {
				return nil, err
			}
			return dictLit{entries: entries}, nil
		}
	}
	return nil, fmt.Errorf("eval: unexpected token %q at offset %d", t.text, t.pos)
}
