package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/rochus-keller/FlowLine2/internal/expressions"
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
)

type itemRow struct {
	Item   store.OID `json:"item" yaml:"item"`
	Origin store.OID `json:"origin" yaml:"origin"`
	Type   string    `json:"type" yaml:"type"`
	Title  string    `json:"title" yaml:"title"`
}

func newQueryCmd(o *rootOptions) *cobra.Command {
	var program string
	cmd := &cobra.Command{
		Use:   "query <diagram> <expression>",
		Short: "List the items of a diagram matching an expression",
		Long: `List the items of a diagram for which an expression holds. The
expression sees type, kind, text, ident, alias, process, conn, x, y,
preds, succs and pinned of each item.

Examples:
  flowline query 12 'type == "event" && preds == 0'
  flowline query 12 'kind == "note" && !pinned'
  flowline query 12 'true' --jq '[.[].type] | group_by(.) | map({(.[0]): length}) | add'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseOID(args[0])
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

			hits, err := c.SelectWhere(ctx, args[1])
			if err != nil {
				return err
			}
			rows := make([]itemRow, 0, len(hits))
			for _, id := range hits {
				env := expressions.ItemEnv(a.store, id)
				orig := store.OID(env["origin"].(int64))
				rows = append(rows, itemRow{
					Item:   id,
					Origin: orig,
					Type:   env["type"].(string),
					Title:  model.FormatTitle(a.store, orig, true),
				})
			}
			if program == "" {
				return o.render(cmd.OutOrStdout(), rows)
			}
			data, err := json.Marshal(rows)
			if err != nil {
				return err
			}
			var doc any
			if err := json.Unmarshal(data, &doc); err != nil {
				return err
			}
			out, err := expressions.NewGoJQEngine().EvaluateAll(ctx, program, doc)
			if err != nil {
				return err
			}
			if len(out) == 1 {
				return o.render(cmd.OutOrStdout(), out[0])
			}
			return o.render(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&program, "jq", "", "jq program applied to the list of matches")
	return cmd
}
