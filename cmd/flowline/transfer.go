package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rochus-keller/FlowLine2/internal/expressions"
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/transfer"
)

func newExportCmd(o *rootOptions) *cobra.Command {
	var (
		output  string
		program string
	)
	cmd := &cobra.Command{
		Use:   "export <process>",
		Short: "Export a process and its nested processes as a process stream",
		Long: `Export a process, or a whole diagram, as a JSON process stream.

With --jq the stream is transformed by a jq program and each result is
written on its own line.

Examples:
  flowline export 40 -o order.json
  flowline export 40 --jq '[.proc.items[] | select(.tag == "evt") | .text]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := parseOID(args[0])
			if err != nil {
				return err
			}
			a, err := o.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := transfer.ExportProcess(a.store, proc)
			if err != nil {
				return err
			}
			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if program == "" {
				return st.Encode(out)
			}
			return jqStream(cmd, st, program, out)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().StringVar(&program, "jq", "", "jq program applied to the stream")
	return cmd
}

func jqStream(cmd *cobra.Command, st *transfer.Stream, program string, out io.Writer) error {
	var buf bytes.Buffer
	if err := st.Encode(&buf); err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		return err
	}
	results, err := expressions.NewGoJQEngine().EvaluateAll(cmd.Context(), program, doc)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func newImportCmd(o *rootOptions) *cobra.Command {
	var into string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a process stream into a diagram",
		Long: `Import a process stream written by export. The process is created
below the target diagram and shown on it; identifiers already used in the
repository are kept as alternative identifiers. Reads stdin when file is -.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseOID(into)
			if err != nil {
				return fmt.Errorf("--into: %w", err)
			}
			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			c, err := a.open(ctx, d)
			if err != nil {
				return err
			}
			defer c.Close()
			proc, err := c.ImportProcess(ctx, d, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", model.FormatTitle(a.store, proc, true))
			return nil
		},
	}
	cmd.Flags().StringVar(&into, "into", "", "Object id of the target diagram")
	_ = cmd.MarkFlagRequired("into")
	return cmd
}
