package cypher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deepskilling/deepgraph/pkg/graph"
)

// ParseError reports a lexical or syntactic problem, with the 1-based
// column at which parsing failed, so a REPL can render a caret.
type ParseError struct {
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cypher: %s (column %d)", e.Message, e.Column)
}

// Parser is a recursive-descent parser over a pre-tokenized lexeme stream.
type Parser struct {
	toks []lexeme
	pos  int
}

// Parse parses text into a Query. Empty or whitespace-only input is a
// parse error (spec §4.9), not an empty/no-op query.
func Parse(text string) (*Query, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Column: 0, Message: "empty query"}
	}
	toks, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, p.errorf("unexpected trailing input")
	}
	return q, nil
}

// Validate parses text and runs a static check: every variable referenced
// in WHERE/RETURN/ORDER BY must be bound by a MATCH/CREATE pattern, and
// every comparison's literal must be type-compatible with "any" (DeepGraph
// defers true type compatibility to execution time, since property types
// are dynamic per spec §3 — Validate only catches unbound identifiers).
func Validate(text string) error {
	q, err := Parse(text)
	if err != nil {
		return err
	}
	bound := map[string]bool{}
	var pattern *Pattern
	if q.Match != nil {
		for _, pat := range q.Match.Patterns {
			collectBindings(pat, bound)
		}
		pattern = nil
	}
	if q.Create != nil {
		pattern = q.Create.Pattern
		collectBindings(pattern, bound)
	}
	if q.Where != nil {
		if err := validateExpr(q.Where.Expr, bound); err != nil {
			return err
		}
	}
	if q.Return != nil {
		for _, item := range q.Return.Items {
			if !bound[item.Var] {
				return &ParseError{Message: fmt.Sprintf("unbound identifier %q in RETURN", item.Var)}
			}
		}
	}
	if q.OrderBy != nil {
		for _, key := range q.OrderBy.Keys {
			if !bound[key.Var] {
				return &ParseError{Message: fmt.Sprintf("unbound identifier %q in ORDER BY", key.Var)}
			}
		}
	}
	return nil
}

func collectBindings(p *Pattern, bound map[string]bool) {
	for _, n := range p.Nodes {
		if n.Var != "" {
			bound[n.Var] = true
		}
	}
	for _, r := range p.Rels {
		if r.Var != "" {
			bound[r.Var] = true
		}
	}
}

func validateExpr(e Expr, bound map[string]bool) error {
	switch x := e.(type) {
	case *BinaryExpr:
		if err := validateExpr(x.Left, bound); err != nil {
			return err
		}
		return validateExpr(x.Right, bound)
	case *CompareExpr:
		if !bound[x.Var] {
			return &ParseError{Message: fmt.Sprintf("unbound identifier %q in WHERE", x.Var)}
		}
		return nil
	}
	return nil
}

func (p *Parser) cur() lexeme {
	if p.pos >= len(p.toks) {
		return lexeme{kind: TokEOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) atEOF() bool { return p.cur().kind == TokEOF }

func (p *Parser) advance() lexeme {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) errorf(format string, args ...any) error {
	return &ParseError{Column: p.cur().col, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) expectKeyword(kw string) error {
	t := p.cur()
	if t.kind != TokKeyword || t.text != kw {
		return p.errorf("expected %s", kw)
	}
	p.advance()
	return nil
}

func (p *Parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.kind == TokKeyword && t.text == kw
}

func (p *Parser) expectKind(k TokenKind, what string) (lexeme, error) {
	t := p.cur()
	if t.kind != k {
		return lexeme{}, p.errorf("expected %s", what)
	}
	p.advance()
	return t, nil
}

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{}
	switch {
	case p.isKeyword("MATCH"):
		m, err := p.parseMatch()
		if err != nil {
			return nil, err
		}
		q.Match = m
	case p.isKeyword("CREATE"):
		c, err := p.parseCreate()
		if err != nil {
			return nil, err
		}
		q.Create = c
	default:
		return nil, p.errorf("expected MATCH or CREATE")
	}

	if p.isKeyword("WHERE") {
		w, err := p.parseWhere()
		if err != nil {
			return nil, err
		}
		q.Where = w
	}

	if p.isKeyword("RETURN") {
		ret, err := p.parseReturn()
		if err != nil {
			return nil, err
		}
		q.Return = ret
	} else if q.Create == nil {
		return nil, p.errorf("expected RETURN")
	}

	if p.isKeyword("ORDER") {
		ob, err := p.parseOrderBy()
		if err != nil {
			return nil, err
		}
		q.OrderBy = ob
	}

	if p.isKeyword("LIMIT") {
		lim, err := p.parseLimit()
		if err != nil {
			return nil, err
		}
		q.Limit = lim
	}

	if p.cur().kind == TokSemicolon {
		p.advance()
	}
	return q, nil
}

func (p *Parser) parseMatch() (*MatchClause, error) {
	if err := p.expectKeyword("MATCH"); err != nil {
		return nil, err
	}
	m := &MatchClause{}
	for {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		m.Patterns = append(m.Patterns, pat)
		if p.cur().kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return m, nil
}

func (p *Parser) parseCreate() (*CreateClause, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	pat, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	return &CreateClause{Pattern: pat}, nil
}

func (p *Parser) parsePattern() (*Pattern, error) {
	pat := &Pattern{}
	n, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	pat.Nodes = append(pat.Nodes, n)

	for p.cur().kind == TokDash || p.cur().text == "<-" {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		pat.Rels = append(pat.Rels, rel)
		n, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		pat.Nodes = append(pat.Nodes, n)
	}
	return pat, nil
}

func (p *Parser) parseNodePattern() (*NodePattern, error) {
	if _, err := p.expectKind(TokLParen, "'('"); err != nil {
		return nil, err
	}
	n := &NodePattern{}
	if p.cur().kind == TokIdent {
		n.Var = p.advance().text
	}
	if p.cur().kind == TokColon {
		p.advance()
		lbl, err := p.expectKind(TokIdent, "label")
		if err != nil {
			return nil, err
		}
		n.Labels = append(n.Labels, lbl.text)
		for p.cur().kind == TokPipe {
			p.advance()
			lbl, err := p.expectKind(TokIdent, "label")
			if err != nil {
				return nil, err
			}
			n.Labels = append(n.Labels, lbl.text)
		}
	}
	if p.cur().kind == TokLBrace {
		pm, err := p.parsePropMap()
		if err != nil {
			return nil, err
		}
		n.PropMap = pm
	}
	if _, err := p.expectKind(TokRParen, "')'"); err != nil {
		return nil, err
	}
	return n, nil
}

// parseRelPattern handles '-[...]-' with either '>' or a leading '<'
// marking direction, per spec.md's RelPat grammar.
func (p *Parser) parseRelPattern() (*RelPattern, error) {
	rel := &RelPattern{Direction: RelUndirected}
	if p.cur().text == "<-" {
		p.advance()
		rel.Direction = RelIncoming
	} else {
		if _, err := p.expectKind(TokDash, "'-'"); err != nil {
			return nil, err
		}
	}

	if p.cur().kind == TokLBracket {
		p.advance()
		if p.cur().kind == TokIdent {
			rel.Var = p.advance().text
		}
		if p.cur().kind == TokColon {
			p.advance()
			typ, err := p.expectKind(TokIdent, "relationship type")
			if err != nil {
				return nil, err
			}
			rel.Types = append(rel.Types, typ.text)
			for p.cur().kind == TokPipe {
				p.advance()
				typ, err := p.expectKind(TokIdent, "relationship type")
				if err != nil {
					return nil, err
				}
				rel.Types = append(rel.Types, typ.text)
			}
		}
		if p.cur().kind == TokLBrace {
			pm, err := p.parsePropMap()
			if err != nil {
				return nil, err
			}
			rel.PropMap = pm
		}
		if _, err := p.expectKind(TokRBracket, "']'"); err != nil {
			return nil, err
		}
	}

	if p.cur().kind == TokDash {
		p.advance()
	} else if p.cur().kind == TokArrowRight {
		p.advance()
		rel.Direction = RelOutgoing
	} else {
		return nil, p.errorf("expected relationship terminator")
	}
	return rel, nil
}

func (p *Parser) parsePropMap() (map[string]Literal, error) {
	if _, err := p.expectKind(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	m := make(map[string]Literal)
	for p.cur().kind != TokRBrace {
		key, err := p.expectKind(TokIdent, "property key")
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(TokColon, "':'"); err != nil {
			return nil, err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		m[key.text] = lit
		if p.cur().kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectKind(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Parser) parseLiteral() (Literal, error) {
	t := p.cur()
	switch t.kind {
	case TokString:
		p.advance()
		return Literal{Value: graph.String(t.text)}, nil
	case TokInt:
		p.advance()
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return Literal{}, p.errorf("invalid integer literal %q", t.text)
		}
		return Literal{Value: graph.Int(i)}, nil
	case TokFloat:
		p.advance()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Literal{}, p.errorf("invalid float literal %q", t.text)
		}
		return Literal{Value: graph.Float(f)}, nil
	case TokKeyword:
		switch t.text {
		case "TRUE":
			p.advance()
			return Literal{Value: graph.Bool(true)}, nil
		case "FALSE":
			p.advance()
			return Literal{Value: graph.Bool(false)}, nil
		case "NULL":
			p.advance()
			return Literal{Value: graph.Null()}, nil
		}
	}
	return Literal{}, p.errorf("expected a literal value")
}

func (p *Parser) parseWhere() (*WhereClause, error) {
	if err := p.expectKeyword("WHERE"); err != nil {
		return nil, err
	}
	expr, err := p.parseOrExpr()
	if err != nil {
		return nil, err
	}
	return &WhereClause{Expr: expr}, nil
}

// parseOrExpr / parseAndExpr implement standard precedence: OR binds
// looser than AND, both left-associative, matching spec.md's Expr grammar
// (which leaves precedence implicit — DeepGraph resolves it the
// conventional boolean-algebra way rather than requiring explicit
// parentheses everywhere).
func (p *Parser) parseOrExpr() (Expr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.advance()
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAndExpr() (Expr, error) {
	left, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.advance()
		right, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePrimaryExpr() (Expr, error) {
	if p.cur().kind == TokLParen {
		p.advance()
		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Expr, error) {
	ident, err := p.expectKind(TokIdent, "identifier")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(TokDot, "'.'"); err != nil {
		return nil, err
	}
	prop, err := p.expectKind(TokIdent, "property name")
	if err != nil {
		return nil, err
	}
	var op CompareOp
	switch p.cur().kind {
	case TokEq:
		op = CmpEq
	case TokNotEq:
		op = CmpNeq
	case TokLess:
		op = CmpLt
	case TokLessEq:
		op = CmpLte
	case TokGreater:
		op = CmpGt
	case TokGreaterEq:
		op = CmpGte
	default:
		return nil, p.errorf("expected a comparison operator")
	}
	p.advance()
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &CompareExpr{Var: ident.text, Property: prop.text, Op: op, Value: lit}, nil
}

func (p *Parser) parseReturn() (*ReturnClause, error) {
	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	ret := &ReturnClause{}
	for {
		item, err := p.parseReturnItem()
		if err != nil {
			return nil, err
		}
		ret.Items = append(ret.Items, item)
		if p.cur().kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return ret, nil
}

func (p *Parser) parseReturnItem() (ReturnItem, error) {
	ident, err := p.expectKind(TokIdent, "identifier")
	if err != nil {
		return ReturnItem{}, err
	}
	item := ReturnItem{Var: ident.text}
	if p.cur().kind == TokDot {
		p.advance()
		prop, err := p.expectKind(TokIdent, "property name")
		if err != nil {
			return ReturnItem{}, err
		}
		item.Property = prop.text
	}
	return item, nil
}

func (p *Parser) parseOrderBy() (*OrderByClause, error) {
	if err := p.expectKeyword("ORDER"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	ob := &OrderByClause{}
	for {
		ident, err := p.expectKind(TokIdent, "identifier")
		if err != nil {
			return nil, err
		}
		key := OrderKey{Var: ident.text}
		if p.cur().kind == TokDot {
			p.advance()
			prop, err := p.expectKind(TokIdent, "property name")
			if err != nil {
				return nil, err
			}
			key.Property = prop.text
		}
		if p.isKeyword("DESC") {
			p.advance()
			key.Desc = true
		} else if p.isKeyword("ASC") {
			p.advance()
		}
		ob.Keys = append(ob.Keys, key)
		if p.cur().kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return ob, nil
}

func (p *Parser) parseLimit() (*LimitClause, error) {
	if err := p.expectKeyword("LIMIT"); err != nil {
		return nil, err
	}
	tok, err := p.expectKind(TokInt, "integer")
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(tok.text, 10, 64)
	if err != nil {
		return nil, p.errorf("invalid LIMIT value %q", tok.text)
	}
	return &LimitClause{N: n}, nil
}
