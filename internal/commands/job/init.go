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
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/sscgate/internal/commands/shared"
	"github.com/tombee/sscgate/internal/job"
)

func newInitCommand() *cobra.Command {
	var (
		name  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init <file>",
		Short: "Write a job file seeded with the global defaults",
		Long: `Write a job file containing the application version and one
operation for every enabled operation type, in administrator order.
Property values are seeded from the global defaults.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			app, err := shared.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			j, err := job.Init(name, app.Store)
			if err != nil {
				return err
			}
			if err := j.Save(path, force); err != nil {
				return err
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), map[string]any{
					"path":       path,
					"name":       j.Name,
					"operations": len(j.Operations),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("%s Created %s with %d operation(s)",
				shared.SymbolOK, path, len(j.Operations))))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Job name (default: file name without extension)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}
