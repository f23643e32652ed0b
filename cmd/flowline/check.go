package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rochus-keller/FlowLine2/internal/controller"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/topology"
)

// ruleFile is the layout of a --rules file.
type ruleFile struct {
	Rules []controller.Rule `yaml:"rules"`
}

func loadRules(path string) ([]controller.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rf.Rules, nil
}

type checkResult struct {
	Diagram    store.OID              `json:"diagram" yaml:"diagram"`
	Title      string                 `json:"title" yaml:"title"`
	Violations []controller.Violation `json:"violations" yaml:"violations"`
}

func newCheckCmd(o *rootOptions) *cobra.Command {
	var rulesPath string
	cmd := &cobra.Command{
		Use:   "check [diagram...]",
		Short: "Check diagrams against CEL lint rules",
		Long: `Check every item of the given diagrams, or of all diagrams, against the
lint rules of the settings file and of --rules. Each rule is a CEL
expression over item and diagram that must hold; the command fails when
any item violates a rule.

Rules file:
  rules:
    - name: events-are-named
      expr: 'item.type != "event" || item.text != ""'
    - name: no-dead-ends
      expr: 'item.type != "function" || item.succs > 0'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := append([]controller.Rule(nil), o.cfg.LintRules...)
			if rulesPath != "" {
				more, err := loadRules(rulesPath)
				if err != nil {
					return err
				}
				rules = append(rules, more...)
			}
			if len(rules) == 0 {
				return fmt.Errorf("no lint rules configured")
			}

			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var diagrams []store.OID
			for _, arg := range args {
				d, err := parseOID(arg)
				if err != nil {
					return err
				}
				diagrams = append(diagrams, d)
			}
			if len(diagrams) == 0 {
				diagrams = topology.Diagrams(a.store)
			}

			var results []checkResult
			total := 0
			for _, d := range diagrams {
				c, err := a.open(ctx, d)
				if err != nil {
					return err
				}
				v, err := c.Lint(ctx, rules)
				title := c.Scene().Snapshot().Title
				c.Close()
				if err != nil {
					return err
				}
				if len(v) > 0 {
					results = append(results, checkResult{Diagram: d, Title: title, Violations: v})
					total += len(v)
				}
			}
			if total == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d diagrams, %d rules: no violations\n", len(diagrams), len(rules))
				return nil
			}
			if err := o.render(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			return fmt.Errorf("%d violations", total)
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "YAML file with additional rules")
	return cmd
}
