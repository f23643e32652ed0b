package main

import (
	"github.com/spf13/cobra"

	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/topology"
)

type diagramRow struct {
	ID     store.OID `json:"id" yaml:"id"`
	Type   string    `json:"type" yaml:"type"`
	Title  string    `json:"title" yaml:"title"`
	Parent store.OID `json:"parent" yaml:"parent"`
	Items  int       `json:"items" yaml:"items"`
}

func newDiagramsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagrams",
		Short: "List the diagrams and processes of the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return o.render(cmd.OutOrStdout(), listDiagrams(a.store))
		},
	}
}

func listDiagrams(s store.Store) []diagramRow {
	rows := []diagramRow{}
	for _, d := range topology.Diagrams(s) {
		n := 0
		for _, c := range s.Children(d) {
			if s.Type(c) == model.TypeDiagItem {
				n++
			}
		}
		rows = append(rows, diagramRow{
			ID:     d,
			Type:   model.TypeName(s.Type(d)),
			Title:  model.FormatTitle(s, d, true),
			Parent: s.Parent(d),
			Items:  n,
		})
	}
	return rows
}
