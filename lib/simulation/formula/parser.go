package formula

import "fmt"

// parser implements a small Pratt parser over arithmetic, comparison,
// logical, ternary, indexing/property-access and call expressions — the
// closed grammar spec §9 calls for in place of the source's unsafe
// `Function` constructor.
type parser struct {
	lex  *lexer
	cur  lexToken
	err  error
}

func newParser(src string) (*parser, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

// Parse parses the entire input as a single expression.
func Parse(src string) (Node, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	n, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing token %q", p.cur.text)
	}
	return n, nil
}

// precedence table, higher binds tighter.
var binPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3, "===": 3, "!==": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

func (p *parser) parseExpr(minPrec int) (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if p.cur.kind == tokOp && p.cur.text == "?" && minPrec == 0 {
			left, err = p.parseTernary(left)
			if err != nil {
				return nil, err
			}
			continue
		}
		if p.cur.kind != tokOp {
			break
		}
		prec, ok := binPrec[p.cur.text]
		if !ok || prec < minPrec {
			break
		}
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTernary(cond Node) (Node, error) {
	if err := p.advance(); err != nil { // consume '?'
		return nil, err
	}
	then, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokOp || p.cur.text != ":" {
		return nil, fmt.Errorf("expected ':' in ternary expression")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	elseNode, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	return Ternary{Cond: cond, Then: then, Else: elseNode}, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.cur.kind == tokOp && (p.cur.text == "-" || p.cur.text == "!") {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary{Op: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur.kind {
		case tokDot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.kind != tokIdent {
				return nil, fmt.Errorf("expected identifier after '.'")
			}
			prop := Ident{Name: p.cur.text}
			if err := p.advance(); err != nil {
				return nil, err
			}
			node = Member{Object: node, Property: prop}
		case tokLBracket:
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			if p.cur.kind != tokRBracket {
				return nil, fmt.Errorf("expected ']'")
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			node = Member{Object: node, Property: idx, Computed: true}
		case tokLParen:
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			node = Call{Callee: node, Args: args}
		default:
			return node, nil
		}
	}
}

func (p *parser) parseArgs() ([]Node, error) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	var args []Node
	for p.cur.kind != tokRParen {
		arg, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.cur.kind != tokRParen {
		return nil, fmt.Errorf("expected ')'")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.cur.kind {
	case tokNumber:
		v := p.cur.num
		if err := p.advance(); err != nil {
			return nil, err
		}
		return NumberLit{Value: v}, nil
	case tokString:
		v := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return StringLit{Value: v}, nil
	case tokIdent:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Ident{Name: name}, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", p.cur.text)
	}
}
