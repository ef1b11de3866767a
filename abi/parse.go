package abi

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/wippyai/wasm-host/errors"
)

var primitives = map[string]*Type{
	"bool":    boolType,
	"u8":      u8Type,
	"s8":      s8Type,
	"u16":     u16Type,
	"s16":     s16Type,
	"u32":     u32Type,
	"s32":     s32Type,
	"u64":     u64Type,
	"s64":     s64Type,
	"f32":     f32Type,
	"f64":     f64Type,
	"float32": f32Type,
	"float64": f64Type,
	"char":    charType,
	"string":  stringType,
}

// Parse reads a type written in WIT-like notation:
//
//	u32
//	list<string>
//	option<u64>
//	result<string, u32>   result<_, string>   result
//	tuple<u32, f64>
//	record{id: u32, name: string}
//	variant{none, text(string), code(u32)}
//	enum{red, green, blue}
func Parse(s string) (*Type, error) {
	p := &parser{src: s}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

// MustParse is Parse for static declarations; it panics on error.
func MustParse(s string) *Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return errors.New(errors.PhaseParse, errors.KindInvalidInput).
		Detail("%s at offset %d in %q", fmt.Sprintf(format, args...), p.pos, p.src).
		Build()
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) accept(c byte) bool {
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(c byte) error {
	if !p.accept(c) {
		if p.pos >= len(p.src) {
			return p.errorf("expected %q, got end of input", c)
		}
		return p.errorf("expected %q, got %q", c, p.src[p.pos])
	}
	return nil
}

func (p *parser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '-' || c == '_' || c == '%' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return "", p.errorf("expected identifier")
	}
	return strings.TrimPrefix(p.src[start:p.pos], "%"), nil
}

func (p *parser) parseType() (*Type, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if t, ok := primitives[name]; ok {
		return t, nil
	}

	switch name {
	case "list":
		args, err := p.typeArgs(1, 1)
		if err != nil {
			return nil, err
		}
		return List(args[0]), nil
	case "option":
		args, err := p.typeArgs(1, 1)
		if err != nil {
			return nil, err
		}
		return Option(args[0]), nil
	case "tuple":
		args, err := p.typeArgs(1, -1)
		if err != nil {
			return nil, err
		}
		return Tuple(args...), nil
	case "result":
		return p.parseResult()
	case "record":
		return p.parseRecord()
	case "variant":
		return p.parseVariant()
	case "enum":
		return p.parseEnum()
	case "flags", "own", "borrow", "future", "stream":
		return nil, errors.Unsupported(errors.PhaseParse, name+" types")
	default:
		return nil, p.errorf("unknown type %q", name)
	}
}

// typeArgs parses <T, ...> with between lo and hi arguments; hi < 0 means
// no upper bound.
func (p *parser) typeArgs(lo, hi int) ([]*Type, error) {
	if err := p.expect('<'); err != nil {
		return nil, err
	}
	var out []*Type
	for {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if !p.accept(',') {
			break
		}
	}
	if err := p.expect('>'); err != nil {
		return nil, err
	}
	if len(out) < lo || (hi >= 0 && len(out) > hi) {
		return nil, p.errorf("wrong number of type arguments: %d", len(out))
	}
	return out, nil
}

func (p *parser) parseResult() (*Type, error) {
	if !p.accept('<') {
		return Result(nil, nil), nil
	}

	var ok *Type
	if p.accept('_') {
		ok = nil
	} else {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ok = t
	}

	var errType *Type
	if p.accept(',') {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		errType = t
	}
	if err := p.expect('>'); err != nil {
		return nil, err
	}
	return Result(ok, errType), nil
}

func (p *parser) parseRecord() (*Type, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	var fields []Field
	seen := map[string]bool{}
	for p.peek() != '}' {
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, p.errorf("duplicate field %q", name)
		}
		seen[name] = true
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: name, Type: t})
		if !p.accept(',') {
			break
		}
	}
	if err := p.expect('}'); err != nil {
		return nil, err
	}
	return Record(fields...), nil
}

func (p *parser) parseVariant() (*Type, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	var cases []Case
	seen := map[string]bool{}
	for p.peek() != '}' {
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, p.errorf("duplicate case %q", name)
		}
		seen[name] = true
		c := Case{Name: name}
		if p.accept('(') {
			if c.Type, err = p.parseType(); err != nil {
				return nil, err
			}
			if err := p.expect(')'); err != nil {
				return nil, err
			}
		}
		cases = append(cases, c)
		if !p.accept(',') {
			break
		}
	}
	if err := p.expect('}'); err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, p.errorf("variant has no cases")
	}
	return Variant(cases...), nil
}

func (p *parser) parseEnum() (*Type, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	var names []string
	for p.peek() != '}' {
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if !p.accept(',') {
			break
		}
	}
	if err := p.expect('}'); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, p.errorf("enum has no cases")
	}
	return Enum(names...), nil
}
