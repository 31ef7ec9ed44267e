package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// SchemaProperty is a declared node property.
type SchemaProperty struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

// SchemaType is a declared node type.
type SchemaType struct {
	Name       string           `json:"name"`
	Kind       string           `json:"kind"`
	Properties []SchemaProperty `json:"properties"`
}

// SchemaSummary describes a compiled schema.
type SchemaSummary struct {
	Name    string       `json:"name"`
	Version string       `json:"version"`
	Types   []SchemaType `json:"types"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [file.cue]",
		Short: "Compile and print a document schema",
		Long: `Compile a CUE document schema and print its node types, including the
implicit properties every node kind carries. Prints the built-in schema
when no file is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runSchema(rootOpts, path, cmd)
		},
	}
}

func runSchema(opts *RootOptions, path string, cmd *cobra.Command) error {
	sch, err := loadSchema(path)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to compile schema", err)
	}

	summary := SchemaSummary{Name: sch.Name, Version: sch.Version, Types: []SchemaType{}}
	for _, name := range sch.TypeNames() {
		nt, _ := sch.NodeType(name)
		st := SchemaType{Name: name, Kind: string(nt.Kind), Properties: []SchemaProperty{}}
		for _, pname := range nt.PropertyNames() {
			p := nt.Properties[pname]
			st.Properties = append(st.Properties, SchemaProperty{Name: p.Name, Type: string(p.Type), Optional: p.Optional})
		}
		summary.Types = append(summary.Types, st)
	}

	return opts.formatter(cmd).Success(summary, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s\n", summary.Name, summary.Version)
		for _, t := range summary.Types {
			fmt.Fprintf(w, "  %s (%s)\n", t.Name, t.Kind)
			for _, p := range t.Properties {
				opt := ""
				if p.Optional {
					opt = "?"
				}
				fmt.Fprintf(w, "    %s%s: %s\n", p.Name, opt, p.Type)
			}
		}
	})
}
