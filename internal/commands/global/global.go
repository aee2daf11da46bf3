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

// Package global implements the administrator commands that edit the
// global configuration store.
package global

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the global command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "global",
		Short: "Manage the global configuration",
		Long: `Manage administrator defaults and override policies.

Every change is saved to the configured store immediately.`,
	}
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newEnableCommand())
	cmd.AddCommand(newDisableCommand())
	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newMoveCommand())
	return cmd
}
