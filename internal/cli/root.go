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

// Package cli assembles the sscgate root command.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/sscgate/internal/commands/global"
	"github.com/tombee/sscgate/internal/commands/job"
	"github.com/tombee/sscgate/internal/commands/shared"
	"github.com/tombee/sscgate/internal/commands/token"
	"github.com/tombee/sscgate/internal/commands/types"
	versioncmd "github.com/tombee/sscgate/internal/commands/version"
	"github.com/tombee/sscgate/internal/commands/watch"
)

// Command groups shown in help output.
const (
	GroupAdmin = "admin"
	GroupJobs  = "jobs"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root command without subcommands.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sscgate",
		Short: "sscgate - Fortify SSC build gate",
		Long: `sscgate runs Fortify SSC operations as a build step: creating
application versions, uploading FPR artifacts and gating the build on
issue counts.

Administrators set defaults and override policies per operation type with
'sscgate global'. Jobs are created with 'sscgate job init' and run with
'sscgate job run'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	shared.RegisterFlags(cmd.PersistentFlags())

	cmd.AddGroup(
		&cobra.Group{ID: GroupJobs, Title: "Job Commands:"},
		&cobra.Group{ID: GroupAdmin, Title: "Administration Commands:"},
	)
	return cmd
}

// NewApp creates the root command with every subcommand attached.
func NewApp() *cobra.Command {
	root := NewRootCommand()

	add := func(group string, c *cobra.Command) {
		c.GroupID = group
		if c.Annotations == nil {
			c.Annotations = map[string]string{}
		}
		c.Annotations["group"] = group
		root.AddCommand(c)
	}

	add(GroupJobs, job.NewCommand())
	add(GroupAdmin, global.NewCommand())
	add(GroupAdmin, types.NewCommand())
	add(GroupAdmin, token.NewCommand())
	add(GroupAdmin, watch.NewCommand())
	root.AddCommand(versioncmd.NewVersionCommand())

	root.SetHelpCommand(NewHelpCommand(root))
	return root
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
