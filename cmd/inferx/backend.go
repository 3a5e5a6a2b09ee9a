package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	predictform "github.com/inferx-ml/go-predictform"
	"github.com/inferx-ml/go-predictform/pkg/fields"
	"github.com/inferx-ml/go-predictform/pkg/model"
	"github.com/inferx-ml/go-predictform/pkg/predict"
)

type modelsCommand struct {
	asJSON bool
}

func (*modelsCommand) Name() string     { return "models" }
func (*modelsCommand) Synopsis() string { return "list trained models" }
func (*modelsCommand) Usage() string {
	return `models [-json]:
  List the models known to the backend.
`
}

func (m *modelsCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&m.asJSON, "json", false, "print JSON instead of a table")
}

func (m *modelsCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return run(ctx, args, func(c *cli, app *predictform.App) error {
		models, err := app.Client.ListModels(ctx)
		if err != nil {
			return fmt.Errorf("list models: %w", err)
		}
		if m.asJSON {
			return writeJSON(c.stdout, models)
		}
		w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tTARGET\tBEST MODEL\tSCORE\tSTATUS")
		for _, mod := range models {
			score := "-"
			if mod.BestScore != nil {
				score = fmt.Sprintf("%.3f", *mod.BestScore)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				mod.ID, orDash(mod.Name), orDash(mod.ProblemType), orDash(mod.TargetColumn),
				orDash(mod.BestModelName), score, orDash(mod.Status))
		}
		return w.Flush()
	})
}

type schemaCommand struct {
	asJSON bool
}

func (*schemaCommand) Name() string     { return "schema" }
func (*schemaCommand) Synopsis() string { return "show the input schema of a model" }
func (*schemaCommand) Usage() string {
	return `schema [-json] <model-id>:
  Print the ordered input fields of a model.
`
}

func (s *schemaCommand) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.asJSON, "json", false, "print JSON instead of a table")
}

func (s *schemaCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return run(ctx, args, func(c *cli, app *predictform.App) error {
		if f.NArg() != 1 {
			return fmt.Errorf("%w: schema takes exactly one model id", errUsage)
		}
		id := model.ModelID(f.Arg(0))
		sch, err := app.Schemas.Schema(ctx, id)
		if err != nil {
			return err
		}
		if s.asJSON {
			return writeJSON(c.stdout, sch)
		}
		return printSchema(c.stdout, sch)
	})
}

func printSchema(out io.Writer, sch model.Schema) error {
	name := sch.ModelName
	if name == "" {
		name = "model " + sch.ModelID.String()
	}
	fmt.Fprintf(out, "%s", name)
	if sch.TargetColumn != "" {
		fmt.Fprintf(out, " -> %s", sch.TargetColumn)
	}
	fmt.Fprintln(out)
	if sch.Empty() {
		fmt.Fprintln(out, predict.NoSchemaMessage)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tLABEL\tDEFAULT\tCONSTRAINTS")
	for _, field := range sch.Fields {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			field.Name, field.Kind, field.DisplayLabel(), orDash(fields.FormatValue(field.Default)), constraints(field))
	}
	return w.Flush()
}

func constraints(field model.Field) string {
	switch field.Kind {
	case model.KindDropdown, model.KindRadio:
		if len(field.Options) > 0 {
			return strings.Join(field.Options, " | ")
		}
	case model.KindSlider:
		lo, hi := fields.SliderBounds(field)
		return fmt.Sprintf("%s..%s", fields.FormatValue(lo), fields.FormatValue(hi))
	case model.KindNumber:
		if field.Min != nil || field.Max != nil {
			lo, hi := "", ""
			if field.Min != nil {
				lo = fields.FormatValue(*field.Min)
			}
			if field.Max != nil {
				hi = fields.FormatValue(*field.Max)
			}
			return lo + ".." + hi
		}
	}
	return "-"
}

// assignments collects repeated -set name=value flags.
type assignments []string

func (a *assignments) String() string { return strings.Join(*a, ",") }

func (a *assignments) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected name=value, got %q", v)
	}
	*a = append(*a, v)
	return nil
}

type predictCommand struct {
	set      assignments
	noPrompt bool
	explain  bool
}

func (*predictCommand) Name() string     { return "predict" }
func (*predictCommand) Synopsis() string { return "fill a model's input form and request a prediction" }
func (*predictCommand) Usage() string {
	return `predict [-set name=value]... [-no-prompt] [-explain] [<model-id>]:
  Prompt for every input field of the model (or take them from -set),
  submit a prediction and optionally request an explanation. Without a
  model id the model is chosen interactively.
`
}

func (p *predictCommand) SetFlags(f *flag.FlagSet) {
	f.Var(&p.set, "set", "field value as name=value; repeatable")
	f.BoolVar(&p.noPrompt, "no-prompt", false, "do not prompt; use defaults and -set values")
	f.BoolVar(&p.explain, "explain", false, "request an explanation without asking")
}

func (p *predictCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	return run(ctx, args, func(c *cli, app *predictform.App) error {
		if f.NArg() > 1 {
			return fmt.Errorf("%w: predict takes at most one model id", errUsage)
		}
		term := c.terminal(app)

		id := model.ModelID(f.Arg(0))
		if id == "" {
			if p.noPrompt {
				return fmt.Errorf("%w: a model id is required with -no-prompt", errUsage)
			}
			models, err := app.Client.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}
			if id, err = term.ChooseModel(ctx, models); err != nil {
				return err
			}
		}

		session := app.NewSession()
		if _, err := session.SelectModel(ctx, id); err != nil {
			return err
		}
		view := session.Snapshot()
		if view.NoSchema {
			return term.RenderResult(ctx, view)
		}

		for _, kv := range p.set {
			name, raw, _ := strings.Cut(kv, "=")
			if _, err := session.SetField(name, raw); err != nil {
				return fmt.Errorf("%w: -set %s: %v", errUsage, name, err)
			}
		}
		interactive := !p.noPrompt && len(p.set) == 0
		if interactive {
			if err := term.PromptForm(ctx, view.Fields, session.Values(), session); err != nil {
				return err
			}
		}

		_, predictErr := session.Predict(ctx)
		if err := term.RenderResult(ctx, session.Snapshot()); err != nil {
			return err
		}
		if predictErr != nil {
			return reported(predictErr)
		}

		explain := p.explain
		if !explain && interactive {
			ok, err := term.AskExplain(ctx)
			if err != nil {
				return err
			}
			explain = ok
		}
		if !explain {
			return nil
		}
		if _, err := session.Explain(ctx); err != nil {
			v := session.Snapshot()
			v.Prediction = model.Prediction{}
			if rerr := term.RenderResult(ctx, v); rerr != nil {
				return rerr
			}
			return reported(err)
		}
		v := session.Snapshot()
		v.Prediction = model.Prediction{}
		return term.RenderResult(ctx, v)
	})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
