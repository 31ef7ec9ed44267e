package codec

import (
	"strconv"
	"strings"

	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// Separator joins the fields of a line.
const Separator = "\t"

// Encode serializes o as one line.
func Encode(o op.Operation) (string, error) {
	path := o.Path()
	pathStr, err := encodePath(path)
	if err != nil {
		return "", err
	}

	var fields []string
	switch o.Kind() {
	case op.KindCreate, op.KindDelete:
		data, err := ir.Marshal(o.Node())
		if err != nil {
			return "", err
		}
		opcode := "c"
		if o.IsDelete() {
			opcode = "d"
		}
		fields = []string{opcode, pathStr, string(data)}

	case op.KindSet:
		newData, err := ir.Marshal(o.Value())
		if err != nil {
			return "", err
		}
		oldData, err := ir.Marshal(o.OldValue())
		if err != nil {
			return "", err
		}
		fields = []string{"s", pathStr, string(newData), string(oldData)}

	case op.KindUpdate:
		if o.ValueOp() == nil {
			return "", ir.Errorf(ir.ErrCodeUnsupported, path, "update without a primitive")
		}
		prim, err := EncodePrimitive(o.ValueOp())
		if err != nil {
			return "", err
		}
		fields = []string{"u", pathStr, prim}

	default:
		return "", ir.Errorf(ir.ErrCodeUnsupported, path, "unsupported operation kind %s", o.Kind())
	}
	return strings.Join(fields, Separator), nil
}

// EncodePrimitive serializes a primitive operation.
func EncodePrimitive(p op.Primitive) (string, error) {
	var opcode string
	var payload ir.Value
	switch v := p.(type) {
	case op.TextOp:
		opcode = "t+"
		if v.IsDelete() {
			opcode = "t-"
		}
		payload = ir.String(v.Str())
	case op.ArrayOp:
		opcode = "a+"
		if v.IsDelete() {
			opcode = "a-"
		}
		payload = v.Val()
	default:
		return "", ir.Errorf(ir.ErrCodeUnsupported, nil, "unsupported primitive %T", p)
	}

	data, err := ir.Marshal(payload)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{opcode, strconv.Itoa(p.Pos()), string(data)}, Separator), nil
}

func encodePath(path ir.Path) (string, error) {
	if len(path) == 0 {
		return "", ir.Errorf(ir.ErrCodeUnsupported, path, "empty path")
	}
	for _, seg := range path {
		if seg == "" || strings.ContainsAny(seg, ".\t\n") {
			return "", ir.Errorf(ir.ErrCodeUnsupported, path, "path segment %q cannot be encoded", seg)
		}
	}
	return path.String(), nil
}

// Decode parses one line produced by Encode. It either returns a complete
// operation or a *ParseError; it never returns a partial result.
func Decode(line string) (op.Operation, error) {
	tk := newTokenizer(line)
	o, err := decodeOperation(tk)
	if err != nil {
		return op.Operation{}, err
	}
	if err := tk.end(); err != nil {
		return op.Operation{}, err
	}
	return o, nil
}

// DecodePrimitive parses a primitive produced by EncodePrimitive.
func DecodePrimitive(s string) (op.Primitive, error) {
	tk := newTokenizer(s)
	p, err := decodePrimitive(tk)
	if err != nil {
		return nil, err
	}
	if err := tk.end(); err != nil {
		return nil, err
	}
	return p, nil
}

// EncodeAll encodes ops in order.
func EncodeAll(ops []op.Operation) ([]string, error) {
	lines := make([]string, len(ops))
	for i, o := range ops {
		line, err := Encode(o)
		if err != nil {
			return nil, err
		}
		lines[i] = line
	}
	return lines, nil
}

// DecodeAll decodes lines in order and fails on the first malformed line.
func DecodeAll(lines []string) ([]op.Operation, error) {
	ops := make([]op.Operation, len(lines))
	for i, line := range lines {
		o, err := Decode(line)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Index = i
			}
			return nil, err
		}
		ops[i] = o
	}
	return ops, nil
}

func decodeOperation(tk *tokenizer) (op.Operation, error) {
	opcode, err := tk.getString("opcode")
	if err != nil {
		return op.Operation{}, err
	}

	switch opcode {
	case "c", "d":
		path, err := tk.getPath()
		if err != nil {
			return op.Operation{}, err
		}
		node, err := tk.getObject()
		if err != nil {
			return op.Operation{}, err
		}
		if opcode == "c" {
			return op.Create(path, node), nil
		}
		return op.Delete(path, node), nil

	case "s":
		path, err := tk.getPath()
		if err != nil {
			return op.Operation{}, err
		}
		newVal, err := tk.getValue()
		if err != nil {
			return op.Operation{}, err
		}
		oldVal, err := tk.getValue()
		if err != nil {
			return op.Operation{}, err
		}
		return op.Set(path, oldVal, newVal), nil

	case "u":
		path, err := tk.getPath()
		if err != nil {
			return op.Operation{}, err
		}
		diff, err := decodePrimitive(tk)
		if err != nil {
			return op.Operation{}, err
		}
		return op.Update(path, diff), nil

	default:
		return op.Operation{}, tk.errorAtLast("unsupported operation type")
	}
}

func decodePrimitive(tk *tokenizer) (op.Primitive, error) {
	opcode, err := tk.getString("primitive type")
	if err != nil {
		return nil, err
	}

	switch opcode {
	case "t+", "t-":
		pos, err := tk.getNumber()
		if err != nil {
			return nil, err
		}
		v, err := tk.getValue()
		if err != nil {
			return nil, err
		}
		s, ok := v.(ir.String)
		if !ok {
			return nil, tk.errorAtLast("expected JSON string")
		}
		if opcode == "t+" {
			return op.TextInsert(pos, string(s)), nil
		}
		return op.TextDelete(pos, string(s)), nil

	case "a+", "a-":
		pos, err := tk.getNumber()
		if err != nil {
			return nil, err
		}
		v, err := tk.getValue()
		if err != nil {
			return nil, err
		}
		if opcode == "a+" {
			return op.ArrayInsert(pos, v), nil
		}
		return op.ArrayDelete(pos, v), nil

	default:
		return nil, tk.errorAtLast("unsupported primitive type")
	}
}
