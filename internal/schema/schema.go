package schema

import (
	"slices"

	"github.com/roach88/docmodel/internal/ir"
)

// PropertyType is the declared type of a node property.
type PropertyType string

const (
	TypeString PropertyType = "string"
	TypeInt    PropertyType = "int"
	TypeBool   PropertyType = "bool"
	TypeArray  PropertyType = "array"
	TypeObject PropertyType = "object"
	TypeAny    PropertyType = "any"
)

// Accepts reports whether v is a valid value for the type.
func (t PropertyType) Accepts(v ir.Value) bool {
	switch t {
	case TypeAny:
		return v != nil
	case TypeString:
		_, ok := v.(ir.String)
		return ok
	case TypeInt:
		_, ok := v.(ir.Int)
		return ok
	case TypeBool:
		_, ok := v.(ir.Bool)
		return ok
	case TypeArray:
		_, ok := v.(ir.Array)
		return ok
	case TypeObject:
		_, ok := v.(ir.Object)
		return ok
	default:
		return false
	}
}

// Kind classifies node types.
type Kind string

const (
	// KindBlock is a top-level text node such as a paragraph.
	KindBlock Kind = "block"

	// KindAnnotation spans a range of one text property.
	KindAnnotation Kind = "annotation"

	// KindContainerAnnotation spans a range across nodes of a container.
	KindContainerAnnotation Kind = "container-annotation"

	// KindContainer holds an ordered list of child node ids.
	KindContainer Kind = "container"
)

func (k Kind) valid() bool {
	switch k {
	case KindBlock, KindAnnotation, KindContainerAnnotation, KindContainer:
		return true
	}
	return false
}

// implicitProperties returns the properties every node of kind k carries.
func (k Kind) implicitProperties() []Property {
	props := []Property{
		{Name: "id", Type: TypeString},
		{Name: "type", Type: TypeString},
	}
	switch k {
	case KindAnnotation:
		props = append(props,
			Property{Name: "path", Type: TypeArray},
			Property{Name: "startOffset", Type: TypeInt},
			Property{Name: "endOffset", Type: TypeInt},
		)
	case KindContainerAnnotation:
		props = append(props,
			Property{Name: "containerId", Type: TypeString},
			Property{Name: "startPath", Type: TypeArray},
			Property{Name: "startOffset", Type: TypeInt},
			Property{Name: "endPath", Type: TypeArray},
			Property{Name: "endOffset", Type: TypeInt},
		)
	case KindContainer:
		props = append(props, Property{Name: "nodes", Type: TypeArray})
	}
	return props
}

// Property is one declared property of a node type.
type Property struct {
	Name     string
	Type     PropertyType
	Optional bool
}

// NodeType declares the shape of nodes with a given type name.
type NodeType struct {
	Name       string
	Kind       Kind
	Properties map[string]Property
}

// PropertyNames returns the property names in sorted order.
func (nt *NodeType) PropertyNames() []string {
	names := make([]string, 0, len(nt.Properties))
	for name := range nt.Properties {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schema is a named, versioned set of node types.
type Schema struct {
	Name    string
	Version string
	Types   map[string]*NodeType
}

// NodeType returns the type declaration for name.
func (s *Schema) NodeType(name string) (*NodeType, bool) {
	nt, ok := s.Types[name]
	return nt, ok
}

// TypeNames returns every declared type name in sorted order.
func (s *Schema) TypeNames() []string {
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsAnnotation reports whether typ is a property or container annotation.
func (s *Schema) IsAnnotation(typ string) bool {
	nt, ok := s.Types[typ]
	return ok && (nt.Kind == KindAnnotation || nt.Kind == KindContainerAnnotation)
}

// Validate checks node data against its declared type. Every required
// property must be present with the declared type and no undeclared
// property may appear.
func (s *Schema) Validate(node ir.Object) error {
	path := ir.Path{node.ID()}
	if node.ID() == "" {
		return ir.Errorf(ir.ErrCodeSchemaViolation, nil, "node without id")
	}
	nt, ok := s.Types[node.Type()]
	if !ok {
		return ir.Errorf(ir.ErrCodeSchemaViolation, path, "unknown node type %q", node.Type())
	}

	for _, name := range nt.PropertyNames() {
		prop := nt.Properties[name]
		v, present := node[name]
		if !present {
			if !prop.Optional {
				return ir.Errorf(ir.ErrCodeSchemaViolation, append(path, name), "%s requires property %q", nt.Name, name)
			}
			continue
		}
		if !prop.Type.Accepts(v) {
			return ir.Errorf(ir.ErrCodeSchemaViolation, append(path, name),
				"%s.%s must be %s, got %s", nt.Name, name, prop.Type, ir.KindOf(v))
		}
	}

	for _, name := range node.SortedKeys() {
		if _, declared := nt.Properties[name]; !declared {
			return ir.Errorf(ir.ErrCodeSchemaViolation, append(path, name), "%s has no property %q", nt.Name, name)
		}
	}
	return nil
}

// ValidateProperty checks that v may be stored at path on a node of type
// typ. Only the top-level property is checked; values nested inside an
// object property are not typed. A nil v (removal) is valid only for
// optional properties.
func (s *Schema) ValidateProperty(typ string, path ir.Path, v ir.Value) error {
	nt, ok := s.Types[typ]
	if !ok {
		return ir.Errorf(ir.ErrCodeSchemaViolation, path, "unknown node type %q", typ)
	}
	if len(path) < 2 {
		return ir.Errorf(ir.ErrCodeSchemaViolation, path, "not a property path")
	}
	prop, declared := nt.Properties[path[1]]
	if !declared {
		return ir.Errorf(ir.ErrCodeSchemaViolation, path, "%s has no property %q", nt.Name, path[1])
	}
	if len(path) > 2 {
		if prop.Type != TypeObject && prop.Type != TypeAny {
			return ir.Errorf(ir.ErrCodeSchemaViolation, path, "%s.%s is not an object", nt.Name, prop.Name)
		}
		return nil
	}
	if v == nil {
		if !prop.Optional {
			return ir.Errorf(ir.ErrCodeSchemaViolation, path, "%s.%s is required", nt.Name, prop.Name)
		}
		return nil
	}
	if !prop.Type.Accepts(v) {
		return ir.Errorf(ir.ErrCodeSchemaViolation, path,
			"%s.%s must be %s, got %s", nt.Name, prop.Name, prop.Type, ir.KindOf(v))
	}
	return nil
}
