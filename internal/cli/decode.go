package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docmodel/internal/codec"
)

// DecodedLine is one decoded wire line.
type DecodedLine struct {
	Line    int    `json:"line"`
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Op      string `json:"op"`
	Inverse string `json:"inverse"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode operation wire lines",
		Long: `Decode tab-separated operation lines, one per input line, and print
each operation with the wire form of its inverse. Reads stdin when no
file is given. Blank lines are skipped.

Exit codes:
  0 - Every line decoded
  1 - A line is malformed (the offending token and offset are reported)
  2 - Command error (file not found, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to open input", err)
				}
				defer f.Close()
				in = f
			}
			return runDecode(rootOpts, in, cmd)
		},
	}
	return cmd
}

func runDecode(opts *RootOptions, in io.Reader, cmd *cobra.Command) error {
	var decoded []DecodedLine

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		o, err := codec.Decode(line)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("line %d", n), err)
		}
		inverse, err := codec.Encode(o.Invert())
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("line %d: encode inverse", n), err)
		}
		decoded = append(decoded, DecodedLine{
			Line:    n,
			Kind:    o.Kind().String(),
			Path:    o.Path().String(),
			Op:      o.String(),
			Inverse: inverse,
		})
	}
	if err := scanner.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	return opts.formatter(cmd).Success(decoded, func(w io.Writer) {
		for _, d := range decoded {
			fmt.Fprintf(w, "%d: %s\n", d.Line, d.Op)
			fmt.Fprintf(w, "   inverse: %q\n", d.Inverse)
		}
	})
}
