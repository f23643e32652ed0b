package controller

import (
	"context"

	"github.com/rochus-keller/FlowLine2/internal/expressions"
	"github.com/rochus-keller/FlowLine2/internal/model"
	"github.com/rochus-keller/FlowLine2/internal/store"
	"github.com/rochus-keller/FlowLine2/internal/transfer"
	"github.com/rochus-keller/FlowLine2/pkg/schema"
)

// SelectWhere selects the items of the open diagram for which expression
// holds and returns them. The expression sees the variables of
// expressions.ItemEnv.
func (c *Controller) SelectWhere(ctx context.Context, expression string) ([]store.OID, error) {
	d, err := c.diagram()
	if err != nil {
		return nil, err
	}
	var hits []store.OID
	for _, id := range c.s.Children(d) {
		if c.s.Type(id) != model.TypeDiagItem {
			continue
		}
		ok, err := c.query.Match(ctx, expression, expressions.ItemEnv(c.s, id))
		if err != nil {
			return nil, err
		}
		if ok {
			hits = append(hits, id)
		}
	}
	c.sc.SelectObjects(hits, true)
	return hits, nil
}

// Rule is a named CEL condition every item of a diagram should satisfy.
type Rule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// Violation reports an item for which a rule does not hold.
type Violation struct {
	Rule   string    `json:"rule"`
	Item   store.OID `json:"item"`
	Origin store.OID `json:"origin"`
	Title  string    `json:"title"`
}

// Lint checks every item of the open diagram against rules. Each rule
// sees item (see expressions.ItemEnv) and diagram (id, title, direction).
// A rule that does not compile fails the whole run before any item is
// looked at.
func (c *Controller) Lint(ctx context.Context, rules []Rule) ([]Violation, error) {
	d, err := c.diagram()
	if err != nil {
		return nil, err
	}
	if c.rules == nil {
		if c.rules, err = expressions.NewCELEngine(); err != nil {
			return nil, err
		}
	}
	for _, r := range rules {
		if err := c.rules.Check(r.Expr); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "rule %q", r.Name).WithCause(err)
		}
	}
	dir := "TB"
	if model.GetDirection(c.s, d) == model.LeftToRight {
		dir = "LR"
	}
	diagram := map[string]any{
		"id":        int64(d),
		"title":     model.FormatTitle(c.s, d, false),
		"direction": dir,
	}
	var out []Violation
	for _, id := range c.s.Children(d) {
		if c.s.Type(id) != model.TypeDiagItem {
			continue
		}
		data := map[string]any{"item": expressions.ItemEnv(c.s, id), "diagram": diagram}
		for _, r := range rules {
			v, err := c.rules.Evaluate(ctx, r.Expr, data)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "rule %q", r.Name).
					WithObject(uint64(id)).WithCause(err)
			}
			ok, err := expressions.Truthy(r.Expr, v)
			if err != nil {
				return nil, err
			}
			if !ok {
				orig := model.ItemOf(c.s, id).Origin()
				out = append(out, Violation{
					Rule: r.Name, Item: id, Origin: orig, Title: model.FormatTitle(c.s, orig, true),
				})
			}
		}
	}
	c.logger.DebugContext(c.ctx(ctx), "diagram linted", "rules", len(rules), "violations", len(out))
	return out, nil
}

// ExportProcess writes proc as a process stream. Nil exports the open
// diagram.
func (c *Controller) ExportProcess(proc store.OID) (*transfer.Stream, error) {
	if proc == store.Nil {
		d, err := c.diagram()
		if err != nil {
			return nil, err
		}
		proc = d
	}
	return transfer.ExportProcess(c.s, proc)
}

// ImportProcess recreates the process in data below parent, the open
// diagram when parent is Nil. Imported into the open diagram, the new
// process is shown at the last press point.
func (c *Controller) ImportProcess(ctx context.Context, parent store.OID, data []byte) (store.OID, error) {
	if c.sc.ReadOnly() {
		return store.Nil, schema.NewError(schema.ErrCodeReadOnly, "the diagram is read only")
	}
	if parent == store.Nil {
		d, err := c.diagram()
		if err != nil {
			return store.Nil, err
		}
		parent = d
	}
	ctx = c.ctx(ctx)
	proc, err := transfer.ImportProcess(c.s, parent, data, c.logger)
	if err != nil {
		return store.Nil, err
	}
	if parent == c.sc.Diagram() {
		if _, err := model.CreateItem(c.s, parent, proc, c.sc.StartPos(true)); err != nil {
			return store.Nil, c.fail(err)
		}
	}
	if err := c.commit(ctx); err != nil {
		return store.Nil, err
	}
	c.logger.InfoContext(ctx, "process imported", "process", proc, "parent", parent)
	return proc, nil
}
