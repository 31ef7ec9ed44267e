package schema

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed default.cue
var defaultCUE []byte

// Compile parses a CUE value into a Schema.
//
// The value should be the schema struct itself, e.g.:
//
//	schema: {
//		name:    "prose-article"
//		version: "1.0.0"
//		node: paragraph: {
//			kind: "block"
//			properties: content: string
//		}
//	}
func Compile(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	version, err := requiredString(v, "version")
	if err != nil {
		return nil, err
	}

	s := &Schema{Name: name, Version: version, Types: make(map[string]*NodeType)}

	nodesVal := v.LookupPath(cue.ParsePath("node"))
	if !nodesVal.Exists() {
		return nil, &CompileError{Field: "node", Message: "at least one node type is required", Pos: v.Pos()}
	}
	iter, err := nodesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		nt, err := compileNodeType(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		s.Types[nt.Name] = nt
	}
	if len(s.Types) == 0 {
		return nil, &CompileError{Field: "node", Message: "at least one node type is required", Pos: nodesVal.Pos()}
	}

	return s, nil
}

// CompileSource compiles CUE source text. filename is used in positions.
// The source must define a top-level "schema" field.
func CompileSource(filename string, src []byte) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	schemaVal := v.LookupPath(cue.ParsePath("schema"))
	if !schemaVal.Exists() {
		return nil, &CompileError{Field: "schema", Message: "top-level schema field is required", Pos: v.Pos()}
	}
	return Compile(schemaVal)
}

// Load reads and compiles the CUE schema file at path.
func Load(path string) (*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return CompileSource(path, src)
}

// Default returns the built-in prose article schema.
func Default() *Schema {
	s, err := CompileSource("default.cue", defaultCUE)
	if err != nil {
		panic(fmt.Sprintf("built-in schema: %v", err))
	}
	return s
}

func compileNodeType(name string, v cue.Value) (*NodeType, error) {
	field := "node." + name

	kindStr, err := requiredString(v, "kind")
	if err != nil {
		if ce, ok := err.(*CompileError); ok {
			ce.Field = field + ".kind"
		}
		return nil, err
	}
	kind := Kind(kindStr)
	if !kind.valid() {
		return nil, &CompileError{
			Field:   field + ".kind",
			Message: fmt.Sprintf("unknown kind %q", kindStr),
			Pos:     v.LookupPath(cue.ParsePath("kind")).Pos(),
		}
	}

	nt := &NodeType{Name: name, Kind: kind, Properties: make(map[string]Property)}
	for _, p := range kind.implicitProperties() {
		nt.Properties[p.Name] = p
	}

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return nt, nil
	}
	iter, err := propsVal.Fields(cue.Optional(true))
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		propName := iter.Selector().Unquoted()
		if _, implicit := nt.Properties[propName]; implicit {
			return nil, &CompileError{
				Field:   field + ".properties." + propName,
				Message: fmt.Sprintf("property %q is implicit for kind %s", propName, kind),
				Pos:     iter.Value().Pos(),
			}
		}
		typ, err := extractPropertyType(iter.Value())
		if err != nil {
			if ce, ok := err.(*CompileError); ok {
				ce.Field = field + ".properties." + propName
			}
			return nil, err
		}
		nt.Properties[propName] = Property{Name: propName, Type: typ, Optional: iter.IsOptional()}
	}
	return nt, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// extractPropertyType converts a CUE type to a PropertyType.
// Floats are forbidden.
func extractPropertyType(v cue.Value) (PropertyType, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return TypeString, nil
	case cue.IntKind:
		return TypeInt, nil
	case cue.BoolKind:
		return TypeBool, nil
	case cue.ListKind:
		return TypeArray, nil
	case cue.StructKind:
		return TypeObject, nil
	case cue.TopKind:
		return TypeAny, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a schema error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
