package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mesh-intelligence/docmodel/internal/schema"
	"github.com/mesh-intelligence/docmodel/pkg/model"
)

// scopeFlags are the query flags shared by every command that targets a
// set of documents.
type scopeFlags struct {
	where  []string
	sort   []string
	limit  int64
	offset int64
}

func (f *scopeFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().StringArrayVarP(&f.where, "where", "w", nil, "condition, repeatable: field=v, field>v, field:in=[...]")
	if paging {
		cmd.Flags().StringArrayVar(&f.sort, "sort", nil, "sort key, repeatable: field[:asc|desc]")
		cmd.Flags().Int64Var(&f.limit, "limit", 0, "maximum number of documents")
		cmd.Flags().Int64Var(&f.offset, "offset", 0, "documents to skip")
	}
}

// scope builds the query scope of m from the flags.
func (f *scopeFlags) scope(m *model.Model) (model.Scope, error) {
	clauses := make([]model.Clause, 0, len(f.where))
	for _, expr := range f.where {
		c, err := parseCondition(expr)
		if err != nil {
			return model.Scope{}, err
		}
		if c, err = typecastCondition(m, c); err != nil {
			return model.Scope{}, err
		}
		clauses = append(clauses, c)
	}
	s := m.Where(clauses...)
	for _, expr := range f.sort {
		srt, err := parseSort(expr)
		if err != nil {
			return model.Scope{}, err
		}
		s = s.Order(srt.Field, srt.Dir)
	}
	if f.limit < 0 || f.offset < 0 {
		return model.Scope{}, userError(fmt.Errorf("limit and offset must not be negative"))
	}
	if f.limit > 0 {
		s = s.Limit(f.limit)
	}
	if f.offset > 0 {
		s = s.Offset(f.offset)
	}
	return s, nil
}

// castTags are the property types whose condition values are typecast.
// Array, hash and embedded fields take the parsed value, which may name an
// element rather than the whole field.
var castTags = map[model.Tag]bool{
	model.TypeString:   true,
	model.TypeInteger:  true,
	model.TypeFloat:    true,
	model.TypeBoolean:  true,
	model.TypeTime:     true,
	model.TypeObjectID: true,
	model.TypeUUID:     true,
}

// typecastCondition runs the value of c through the property it names, so
// title=2024 compares with the string "2024" and hits="5" with 5. Dotted
// paths into embedded documents are left as parsed.
func typecastCondition(m *model.Model, c model.Clause) (model.Clause, error) {
	if c.Op == model.OpExists || strings.Contains(c.Field, ".") {
		return c, nil
	}
	p, err := m.Table().Resolve(c.Field)
	if err != nil {
		return c, userError(err)
	}
	if !castTags[p.Type] {
		return c, nil
	}
	items, isList := c.Value.([]any)
	if !isList || (c.Op != model.OpIn && c.Op != model.OpNin) {
		v, err := p.Typecast(c.Value)
		if err != nil {
			return c, userError(err)
		}
		c.Value = v
		return c, nil
	}
	cast := make([]any, len(items))
	for i, item := range items {
		v, err := p.Typecast(item)
		if err != nil {
			return c, userError(err)
		}
		cast[i] = v
	}
	c.Value = cast
	return c, nil
}

func (a *app) newFindCmd() *cobra.Command {
	var sf scopeFlags
	cmd := &cobra.Command{
		Use:   "find <model>",
		Short: "Print matching documents as JSON lines",
		Example: `  docmodel find Post
  docmodel find Post --where 'hits>10' --sort hits:desc --limit 5
  docmodel find Post --where 'tags:in=["go","db"]'`,
		Args: userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				m, err := s.model(args[0])
				if err != nil {
					return err
				}
				scope, err := sf.scope(m)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				return scope.Each(cmd.Context(), func(d *model.Document) error {
					return writeDocument(out, d)
				})
			})
		},
	}
	sf.register(cmd, true)
	return cmd
}

func (a *app) newCountCmd() *cobra.Command {
	var sf scopeFlags
	cmd := &cobra.Command{
		Use:   "count <model>",
		Short: "Count matching documents",
		Args:  userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				m, err := s.model(args[0])
				if err != nil {
					return err
				}
				scope, err := sf.scope(m)
				if err != nil {
					return err
				}
				n, err := scope.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
	sf.register(cmd, false)
	return cmd
}

func (a *app) newRemoveCmd() *cobra.Command {
	var (
		sf  scopeFlags
		all bool
	)
	cmd := &cobra.Command{
		Use:   "remove <model>",
		Short: "Delete matching documents",
		Args:  userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sf.where) == 0 && !all {
				return userError(fmt.Errorf("refusing to remove every document without --all"))
			}
			return a.withSession(func(s *session) error {
				m, err := s.model(args[0])
				if err != nil {
					return err
				}
				scope, err := sf.scope(m)
				if err != nil {
					return err
				}
				n, err := scope.Delete(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", n)
				return nil
			})
		},
	}
	sf.register(cmd, false)
	cmd.Flags().BoolVar(&all, "all", false, "allow removing without --where")
	return cmd
}

func (a *app) newInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert <model> <json>",
		Short: "Create a document from a JSON object of attributes",
		Example: `  docmodel insert Post '{"title":"hello","tags":["go"]}'`,
		Args:  userArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := parseObject(args[1])
			if err != nil {
				return err
			}
			return a.withSession(func(s *session) error {
				m, err := s.model(args[0])
				if err != nil {
					return err
				}
				d, err := m.Create(cmd.Context(), attrs)
				if err != nil {
					return err
				}
				return writeDocument(cmd.OutOrStdout(), d)
			})
		},
	}
}

func (a *app) newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models of the schema and their properties",
		Args:  userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := schema.Load(a.cfg.SchemaPath)
			if err != nil {
				return userError(err)
			}
			out := cmd.OutOrStdout()
			for _, m := range sch.Models() {
				if m.Kind() == model.KindDocument {
					fmt.Fprintf(out, "%s (collection %s)\n", m.Name(), m.CollectionName())
				} else {
					fmt.Fprintf(out, "%s (embedded)\n", m.Name())
				}
				for _, p := range m.Table().Properties() {
					wire := ""
					if p.Wire != p.Name {
						wire = " as " + p.Wire
					}
					fmt.Fprintf(out, "  %s: %s%s\n", p.Name, p.Type, wire)
				}
			}
			return nil
		},
	}
}

// writeDocument prints d as one line of relaxed extended JSON.
func writeDocument(w io.Writer, d *model.Document) error {
	wire, err := d.ToWire()
	if err != nil {
		return err
	}
	line, err := bson.MarshalExtJSON(wire, false, false)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", line)
	return err
}
