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

package global

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/commands/shared"
	"github.com/tombee/sscgate/internal/globalconfig"
)

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the global configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := shared.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			snap := app.Store.Snapshot()
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), snap)
			}
			printSnapshot(cmd, app.Catalog, snap)
			return nil
		},
	}
}

func printSnapshot(cmd *cobra.Command, cat *catalog.Catalog, snap globalconfig.Snapshot) {
	w := cmd.OutOrStdout()
	if len(snap.Entries) == 0 {
		fmt.Fprintln(w, shared.RenderLabel("No global configuration entries"))
		return
	}
	for _, e := range snap.Entries {
		state := shared.RenderOK(shared.SymbolOK + " enabled")
		if t, ok := cat.Get(e.TypeID); ok && t.Kind == catalog.Static {
			state = shared.RenderLabel("static")
		} else if !e.Enabled {
			state = shared.RenderWarn(shared.SymbolWarn + " disabled")
		} else if e.EnabledByDefault {
			state = shared.RenderOK(shared.SymbolOK + " enabled by default")
		}
		fmt.Fprintf(w, "%s %s policy=%s\n", shared.RenderHeader(e.TypeID), state, e.Policy)

		keys := make([]string, 0, len(e.Defaults))
		for k := range e.Defaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %-26s %v\n", k, e.Defaults[k])
		}
	}
}
