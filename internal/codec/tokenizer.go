package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/docmodel/internal/ir"
)

// ParseError reports a malformed line. Offset is the byte offset of the
// offending token and Token is its text.
type ParseError struct {
	Line    string
	Offset  int
	Token   string
	Message string

	// Index is the line's position within a DecodeAll batch.
	Index int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s: %q", e.Offset, e.Message, e.Token)
}

// tokenizer walks a line once, left to right, one field at a time.
type tokenizer struct {
	line string
	pos  int

	lastStart int
	lastToken string
}

func newTokenizer(line string) *tokenizer {
	return &tokenizer{line: line}
}

// next returns the next field. Empty fields are errors.
func (tk *tokenizer) next(expected string) (string, error) {
	if tk.pos > len(tk.line) {
		return "", tk.errorAt(len(tk.line), "", "expected "+expected)
	}
	start := tk.pos
	rest := tk.line[start:]
	end := strings.Index(rest, Separator)
	var token string
	if end < 0 {
		token = rest
		tk.pos = len(tk.line) + 1
	} else {
		token = rest[:end]
		tk.pos = start + end + len(Separator)
	}
	tk.lastStart, tk.lastToken = start, token
	if token == "" {
		return "", tk.errorAt(start, token, "expected "+expected)
	}
	return token, nil
}

// getString returns a plain field. Surrounding double quotes are stripped.
func (tk *tokenizer) getString(expected string) (string, error) {
	s, err := tk.next(expected)
	if err != nil {
		return "", err
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s, nil
}

func (tk *tokenizer) getPath() (ir.Path, error) {
	s, err := tk.getString("path")
	if err != nil {
		return nil, err
	}
	path := ir.ParsePath(s)
	for _, seg := range path {
		if seg == "" {
			return nil, tk.errorAtLast("expected path")
		}
	}
	return path, nil
}

func (tk *tokenizer) getNumber() (int, error) {
	s, err := tk.next("number")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, tk.errorAtLast("expected number")
	}
	return n, nil
}

func (tk *tokenizer) getValue() (ir.Value, error) {
	s, err := tk.next("JSON value")
	if err != nil {
		return nil, err
	}
	v, err := ir.Unmarshal([]byte(s))
	if err != nil {
		return nil, tk.errorAtLast("expected JSON value: " + err.Error())
	}
	return v, nil
}

func (tk *tokenizer) getObject() (ir.Object, error) {
	v, err := tk.getValue()
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, tk.errorAtLast("expected JSON object")
	}
	return obj, nil
}

// end fails if fields remain after the operation.
func (tk *tokenizer) end() error {
	if tk.pos <= len(tk.line) {
		return tk.errorAt(tk.pos, tk.line[tk.pos:], "unexpected trailing data")
	}
	return nil
}

func (tk *tokenizer) errorAtLast(msg string) *ParseError {
	return tk.errorAt(tk.lastStart, tk.lastToken, msg)
}

func (tk *tokenizer) errorAt(offset int, token, msg string) *ParseError {
	return &ParseError{Line: tk.line, Offset: offset, Token: token, Message: msg}
}
