// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package job

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/sscgate/internal/commands/shared"
	"github.com/tombee/sscgate/internal/job"
	"github.com/tombee/sscgate/internal/pipeline"
	"github.com/tombee/sscgate/internal/resolver"
)

type outcomeJSON struct {
	Index    int     `json:"index"`
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Outcome  string  `json:"outcome"`
	Severity string  `json:"severity"`
	Message  string  `json:"message,omitempty"`
	Stopped  bool    `json:"stopped,omitempty"`
	Seconds  float64 `json:"duration_seconds"`
}

type runJSON struct {
	shared.JSONResponse
	RunID    string        `json:"run_id"`
	Job      string        `json:"job"`
	Severity string        `json:"severity"`
	Stopped  bool          `json:"stopped"`
	Outcomes []outcomeJSON `json:"outcomes"`
}

func newRunCommand() *cobra.Command {
	var envFlags []string

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run the operations of a job file",
		Long: `Run the operations of a job file against SSC.

The exit code reflects the final severity: 0 for SUCCESS, 2 for UNSTABLE
and 1 for FAILURE.`,
		Example: `  sscgate job run nightly.yaml
  sscgate job run nightly.yaml --env BUILD=1234`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseEnv(envFlags)
			if err != nil {
				return err
			}

			app, err := shared.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			j, err := job.Load(args[0], app.Catalog)
			if err != nil {
				return shared.NewInvalidJobError("", err)
			}

			client, err := app.NewClient()
			if err != nil {
				return err
			}
			ops, err := j.Build(client)
			if err != nil {
				return shared.NewInvalidJobError("", err)
			}

			runner := pipeline.NewRunner(resolver.New(app.Store),
				pipeline.WithLogger(app.Logger),
				pipeline.WithTracer(app.Tracing.Tracer("sscgate")),
				pipeline.WithMetrics(pipeline.NewMetrics(app.Registry)),
			)
			res, err := runner.Run(cmd.Context(), ops, &pipeline.RunContext{
				JobName:   j.Name,
				Workspace: j.WorkspaceDir(),
				Env:       j.Environment(overrides),
			})
			if err != nil {
				return err
			}

			if shared.GetJSON() {
				if err := shared.EmitJSON(cmd.OutOrStdout(), toJSON(res)); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), res)
			}
			return shared.NewSeverityExit(res.FinalSeverity.ExitCode())
		},
	}

	cmd.Flags().StringArrayVarP(&envFlags, "env", "e", nil, "Variable for ${NAME} expansion as KEY=VALUE (repeatable)")
	return cmd
}

func parseEnv(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, shared.NewInvalidJobError(fmt.Sprintf("invalid --env value %q, expected KEY=VALUE", p), nil)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func printResult(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "%s %s\n", shared.RenderHeader(res.JobName), shared.RenderLabel("run "+res.RunID))
	for _, o := range res.Outcomes {
		var line string
		switch o.Kind {
		case pipeline.OutcomeSuccess:
			line = shared.RenderOK(shared.SymbolOK + " " + o.Name)
		case pipeline.OutcomeClassified:
			line = shared.RenderWarn(shared.SymbolWarn+" "+o.Name) + ": " + o.Message
		default:
			line = shared.RenderError(shared.SymbolError+" "+o.Name) + ": " + o.Message
		}
		fmt.Fprintf(w, "  %s %s\n", line, shared.RenderLabel(o.Duration.Round(time.Millisecond).String()))
		if o.Stopped {
			fmt.Fprintf(w, "  %s\n", shared.RenderLabel("remaining operations skipped"))
		}
	}
	fmt.Fprintf(w, "Result: %s\n", shared.RenderSeverity(res.FinalSeverity.String()))
}

func toJSON(res *pipeline.Result) runJSON {
	out := runJSON{
		JSONResponse: shared.NewJSONResponse("job run", res.FinalSeverity == pipeline.SeveritySuccess),
		RunID:        res.RunID,
		Job:          res.JobName,
		Severity:     res.FinalSeverity.String(),
		Stopped:      res.Stopped,
		Outcomes:     make([]outcomeJSON, 0, len(res.Outcomes)),
	}
	for _, o := range res.Outcomes {
		out.Outcomes = append(out.Outcomes, outcomeJSON{
			Index:    o.Index,
			Type:     o.TypeID,
			Name:     o.Name,
			Outcome:  string(o.Kind),
			Severity: o.Severity.String(),
			Message:  o.Message,
			Stopped:  o.Stopped,
			Seconds:  o.Duration.Seconds(),
		})
	}
	return out
}
