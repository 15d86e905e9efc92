package bsp

import (
	"fmt"
	"strings"

	"github.com/meigma/pak/format"
)

// Entity is one brace-delimited block of an entity lump.
type Entity struct {
	// Properties maps each key to its value. A repeated key keeps its last
	// value.
	Properties map[string]string

	// Keys lists the distinct keys in first-appearance order.
	Keys []string
}

// Get returns the value of key, or "".
func (e Entity) Get(key string) string {
	return e.Properties[key]
}

// Classname returns the classname property, or "".
func (e Entity) Classname() string {
	return e.Properties["classname"]
}

func (e *Entity) set(key, value string) {
	if _, ok := e.Properties[key]; !ok {
		e.Keys = append(e.Keys, key)
	}
	e.Properties[key] = value
}

// ParseEntities parses entity lump text, the same syntax as a .ent file:
//
//	{
//	"classname" "worldspawn"
//	"message" "The Edge"
//	}
//
// Bare (unquoted) tokens and // comments are accepted.
func ParseEntities(text string) ([]Entity, error) {
	lx := lexer{src: text}
	var entities []Entity
	for {
		tok, ok, err := lx.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return entities, nil
		}
		if tok != "{" || lx.quoted {
			return nil, fmt.Errorf("%w: line %d: expected '{', got %q", format.ErrMalformed, lx.line, tok)
		}

		e := Entity{Properties: make(map[string]string)}
		for {
			key, ok, err := lx.next()
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: line %d: unexpected end of entity", format.ErrMalformed, lx.line)
			}
			if key == "}" && !lx.quoted {
				break
			}
			if key == "{" && !lx.quoted {
				return nil, fmt.Errorf("%w: line %d: nested '{'", format.ErrMalformed, lx.line)
			}
			value, ok, err := lx.next()
			if err != nil {
				return nil, err
			}
			if !ok || (!lx.quoted && (value == "{" || value == "}")) {
				return nil, fmt.Errorf("%w: line %d: key %q has no value", format.ErrMalformed, lx.line, key)
			}
			e.set(key, value)
		}
		entities = append(entities, e)
	}
}

// lexer splits entity text into tokens.
type lexer struct {
	src    string
	pos    int
	line   int
	quoted bool // whether the last token was quoted
}

func (lx *lexer) next() (string, bool, error) {
	if lx.line == 0 {
		lx.line = 1
	}
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\n':
			lx.line++
			lx.pos++
		case c <= ' ':
			lx.pos++
		case strings.HasPrefix(lx.src[lx.pos:], "//"):
			if n := strings.IndexByte(lx.src[lx.pos:], '\n'); n >= 0 {
				lx.pos += n
			} else {
				lx.pos = len(lx.src)
			}
		case c == '"':
			end := strings.IndexByte(lx.src[lx.pos+1:], '"')
			if end < 0 {
				return "", false, fmt.Errorf("%w: line %d: unterminated string", format.ErrMalformed, lx.line)
			}
			tok := lx.src[lx.pos+1 : lx.pos+1+end]
			lx.line += strings.Count(tok, "\n")
			lx.pos += end + 2
			lx.quoted = true
			return tok, true, nil
		case c == '{' || c == '}':
			lx.pos++
			lx.quoted = false
			return string(c), true, nil
		default:
			start := lx.pos
			for lx.pos < len(lx.src) && lx.src[lx.pos] > ' ' && lx.src[lx.pos] != '"' &&
				lx.src[lx.pos] != '{' && lx.src[lx.pos] != '}' {
				lx.pos++
			}
			lx.quoted = false
			return lx.src[start:lx.pos], true, nil
		}
	}
	return "", false, nil
}
