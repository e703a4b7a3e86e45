package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	stored "github.com/goliatone/go-stored"
	"github.com/goliatone/go-stored/schema/openapi"
)

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <type> <key>",
		Short: "Print a record snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.openRecord(args[0], args[1])
			if err != nil {
				return err
			}
			if err := rec.Show(); err != nil {
				return err
			}
			snapshot, err := rec.Snapshot()
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), snapshot)
		},
	}
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <type> <key> <attr=value>...",
		Short: "Write record attributes in one batch",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.openRecord(args[0], args[1])
			if err != nil {
				return err
			}
			values, err := parseAssignments(rec.Schema(), args[2:])
			if err != nil {
				return err
			}
			err = a.tree.MultiSet(func() error {
				for _, assignment := range values {
					if err := rec.Set(assignment.name, assignment.value); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			snapshot, err := rec.Snapshot()
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), snapshot)
		},
	}
}

type assignment struct {
	name  string
	value stored.Value
}

// parseAssignments converts attr=value pairs using the kind of each
// attribute's default.
func parseAssignments(schema *stored.Schema, pairs []string) ([]assignment, error) {
	out := make([]assignment, 0, len(pairs))
	for _, pair := range pairs {
		name, text, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected attr=value, got %q", pair)
		}
		name = strings.TrimSpace(name)
		def, ok := schema.Default(name)
		if !ok {
			return nil, fmt.Errorf("unknown attribute %q for %s (valid: %s)",
				name, schema.TypeName(), strings.Join(schema.Names(), ", "))
		}
		value, err := stored.ParseValue(def.Kind(), text)
		if err != nil {
			return nil, err
		}
		out = append(out, assignment{name: name, value: value})
	}
	return out, nil
}

func (a *app) expiredCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expired <type> <key>",
		Short: "Report whether a record was last written before the daily reset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := a.openRecord(args[0], args[1])
			if err != nil {
				return err
			}
			expired, err := rec.IsExpired()
			if err != nil {
				return err
			}
			magnitude, bucket, err := rec.ReadableTime()
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), map[string]any{
				"expired":   expired,
				"bucket":    string(bucket),
				"magnitude": magnitude,
			})
		},
	}
}

func (a *app) questsCmd() *cobra.Command {
	var names []string
	cmd := &cobra.Command{
		Use:   "quests <key>",
		Short: "List or write the daily quests stored at key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := stored.NewDailyQuest(args[0], a.recordOptions()...)
			rec.Bind(a.tree)

			if cmd.Flags().Changed("write") {
				if err := rec.WriteQuestNames(names...); err != nil {
					return err
				}
				raw, err := rec.QuestNames()
				if err != nil {
					return err
				}
				return a.write(cmd.OutOrStdout(), raw)
			}

			quests, err := rec.LoadQuests()
			if err != nil {
				return err
			}
			out := make([]string, 0, len(quests))
			for _, q := range quests {
				out = append(out, q.QuestName())
			}
			return a.write(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringSliceVar(&names, "write", nil, "comma separated quest names to store")
	return cmd
}

func (a *app) evalCmd() *cobra.Command {
	var (
		engine string
		rawArg []string
	)
	cmd := &cobra.Command{
		Use:   "eval <type> <key> <expr>",
		Short: "Evaluate an expression against a record snapshot",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			evaluator, err := evaluatorFor(engine)
			if err != nil {
				return err
			}
			rec, err := a.openRecord(args[0], args[1], stored.WithEvaluator(evaluator))
			if err != nil {
				return err
			}
			target, ok := rec.(interface {
				EvaluateWith(args map[string]any, expr string) (any, error)
			})
			if !ok {
				return fmt.Errorf("record type %s does not support evaluation", args[0])
			}
			exprArgs, err := parseArgs(rawArg)
			if err != nil {
				return err
			}
			result, err := target.EvaluateWith(exprArgs, args[2])
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&engine, "engine", "expr", "expression engine: expr, cel or js")
	cmd.Flags().StringArrayVar(&rawArg, "arg", nil, "name=value bound under args")
	return cmd
}

// evaluatorFor returns nil for expr so records fall back to the default
// evaluator.
func evaluatorFor(engine string) (stored.Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", "expr":
		return nil, nil
	case "cel":
		return stored.NewCELEvaluator(), nil
	case "js":
		e := stored.NewJSEvaluator()
		if e == nil {
			return nil, fmt.Errorf("js engine not available in this build (use -tags js_eval)")
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown engine %q (valid: expr, cel, js)", engine)
	}
}

func parseArgs(raw []string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, pair := range raw {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("expected name=value, got %q", pair)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}

func (a *app) dumpCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the loaded configuration tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key != "" {
				return a.write(cmd.OutOrStdout(), a.tree.Get(key, nil))
			}
			return a.write(cmd.OutOrStdout(), a.tree.Data())
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "dotted key to print instead of the whole tree")
	return cmd
}

func (a *app) typesCmd() *cobra.Command {
	var asOpenAPI bool
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List registered record types and their attributes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asOpenAPI {
				doc, err := openapi.Registered()
				if err != nil {
					return err
				}
				return a.write(cmd.OutOrStdout(), doc)
			}
			out := map[string][]stored.FieldDescriptor{}
			for _, name := range stored.Types() {
				rec, err := stored.NewByType(name, name)
				if err != nil {
					return err
				}
				out[name] = rec.Schema().Descriptors()
			}
			return a.write(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&asOpenAPI, "openapi", false, "print an OpenAPI document instead")
	return cmd
}
