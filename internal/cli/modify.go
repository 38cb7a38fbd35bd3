package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/docmodel/pkg/model"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// argForm says how a modifier command reads its trailing arguments.
type argForm int

const (
	formValues argForm = iota // field=value
	formFields                // field
	formRenames               // old=new
)

type modifierCmd struct {
	use     string
	short   string
	form    argForm
	example string
	apply   func(ctx context.Context, s model.Scope, values map[string]any, fields []string, renames map[string]string) (types.UpdateResult, error)
}

var modifierCmds = []modifierCmd{
	{
		use: "inc", short: "Increment numeric fields", form: formValues,
		example: "  docmodel inc Post hits=1 --where title=hello",
		apply: func(ctx context.Context, s model.Scope, v map[string]any, _ []string, _ map[string]string) (types.UpdateResult, error) {
			return s.Increment(ctx, v)
		},
	},
	{
		use: "set", short: "Assign fields", form: formValues,
		example: "  docmodel set Post title=renamed --where hits=0",
		apply: func(ctx context.Context, s model.Scope, v map[string]any, _ []string, _ map[string]string) (types.UpdateResult, error) {
			return s.Assign(ctx, v)
		},
	},
	{
		use: "unset", short: "Remove fields", form: formFields,
		example: "  docmodel unset Post summary",
		apply: func(ctx context.Context, s model.Scope, _ map[string]any, f []string, _ map[string]string) (types.UpdateResult, error) {
			return s.Unassign(ctx, f...)
		},
	},
	{
		use: "push", short: "Append a value to array fields", form: formValues,
		example: "  docmodel push Post tags=go",
		apply: func(ctx context.Context, s model.Scope, v map[string]any, _ []string, _ map[string]string) (types.UpdateResult, error) {
			return s.Push(ctx, v)
		},
	},
	{
		use: "push-all", short: "Append several values to array fields", form: formValues,
		example: `  docmodel push-all Post 'tags=["go","db"]'`,
		apply: func(ctx context.Context, s model.Scope, v map[string]any, _ []string, _ map[string]string) (types.UpdateResult, error) {
			return s.PushAll(ctx, v)
		},
	},
	{
		use: "add-to-set", short: "Append a value to array fields unless present", form: formValues,
		example: "  docmodel add-to-set Post tags=go",
		apply: func(ctx context.Context, s model.Scope, v map[string]any, _ []string, _ map[string]string) (types.UpdateResult, error) {
			return s.AddToSet(ctx, v)
		},
	},
	{
		use: "pull", short: "Remove every occurrence of a value from array fields", form: formValues,
		example: "  docmodel pull Post tags=go",
		apply: func(ctx context.Context, s model.Scope, v map[string]any, _ []string, _ map[string]string) (types.UpdateResult, error) {
			return s.Pull(ctx, v)
		},
	},
	{
		use: "pull-all", short: "Remove several values from array fields", form: formValues,
		example: `  docmodel pull-all Post 'tags=["go","db"]'`,
		apply: func(ctx context.Context, s model.Scope, v map[string]any, _ []string, _ map[string]string) (types.UpdateResult, error) {
			return s.PullAll(ctx, v)
		},
	},
	{
		use: "pop", short: "Remove the last element of array fields", form: formFields,
		example: "  docmodel pop Post tags",
		apply: func(ctx context.Context, s model.Scope, _ map[string]any, f []string, _ map[string]string) (types.UpdateResult, error) {
			return s.PopLast(ctx, f...)
		},
	},
	{
		use: "shift", short: "Remove the first element of array fields", form: formFields,
		example: "  docmodel shift Post tags",
		apply: func(ctx context.Context, s model.Scope, _ map[string]any, f []string, _ map[string]string) (types.UpdateResult, error) {
			return s.PopFirst(ctx, f...)
		},
	},
	{
		use: "rename", short: "Rename stored fields", form: formRenames,
		example: "  docmodel rename Post title=headline",
		apply: func(ctx context.Context, s model.Scope, _ map[string]any, _ []string, r map[string]string) (types.UpdateResult, error) {
			return s.Rename(ctx, r)
		},
	},
}

func (a *app) newModifierCmds() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(modifierCmds))
	for _, mc := range modifierCmds {
		cmds = append(cmds, a.newModifierCmd(mc))
	}
	return cmds
}

func (a *app) newModifierCmd(mc modifierCmd) *cobra.Command {
	var sf scopeFlags
	argsUse := "field=value..."
	switch mc.form {
	case formFields:
		argsUse = "field..."
	case formRenames:
		argsUse = "old=new..."
	}
	cmd := &cobra.Command{
		Use:     fmt.Sprintf("%s <model> %s", mc.use, argsUse),
		Short:   mc.short + " of matching documents in one update",
		Example: mc.example,
		Args:    userArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				values  map[string]any
				renames map[string]string
				fields  []string
				err     error
			)
			switch mc.form {
			case formValues:
				values, err = parseAssignments(args[1:])
			case formFields:
				fields = args[1:]
			case formRenames:
				renames, err = parseRenames(args[1:])
			}
			if err != nil {
				return err
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
				res, err := mc.apply(cmd.Context(), scope, values, fields, renames)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "matched %d, modified %d\n", res.Matched, res.Modified)
				return nil
			})
		},
	}
	sf.register(cmd, false)
	return cmd
}
