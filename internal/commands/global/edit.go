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
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/commands/shared"
	"github.com/tombee/sscgate/internal/globalconfig"
	"github.com/tombee/sscgate/pkg/errors"
)

// policyValue is a pflag.Value accepting an override policy name.
type policyValue struct {
	policy globalconfig.Policy
	set    bool
}

func (p *policyValue) String() string { return string(p.policy) }

func (p *policyValue) Set(s string) error {
	v, err := globalconfig.ParsePolicy(s)
	if err != nil {
		return err
	}
	p.policy = v
	p.set = true
	return nil
}

func (p *policyValue) Type() string { return "policy" }

func newEnableCommand() *cobra.Command {
	var byDefault bool

	cmd := &cobra.Command{
		Use:   "enable <type>",
		Short: "Enable a dynamic operation type",
		Long: `Enable a dynamic operation type. Newly enabled types are appended
to the end of the operation order.

An enabled type may be used by any job. With --by-default it is also
added to jobs created by 'sscgate job init'.`,
		Example: `  sscgate global enable checkIssueCount --by-default`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var flag *bool
			if cmd.Flags().Changed("by-default") {
				flag = &byDefault
			}
			return setEnabled(cmd, args[0], true, flag)
		},
	}
	cmd.Flags().BoolVar(&byDefault, "by-default", false, "Add the type to newly initialized jobs")
	return cmd
}

func newDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <type>",
		Short: "Disable a dynamic operation type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnabled(cmd, args[0], false, nil)
		},
	}
}

// requireDynamic looks up typeID and rejects static types.
func requireDynamic(cat *catalog.Catalog, typeID, action string) error {
	t, err := cat.Lookup(typeID)
	if err != nil {
		return err
	}
	if t.Kind != catalog.Dynamic {
		return &errors.ValidationError{
			Field:      "type",
			Message:    fmt.Sprintf("%s is a static type and cannot be %s", typeID, action),
			Suggestion: "Only dynamic operation types are managed here",
		}
	}
	return nil
}

// setEnabled updates the enabled flag of typeID. A nil byDefault leaves
// the enabled-by-default flag unchanged.
func setEnabled(cmd *cobra.Command, typeID string, enabled bool, byDefault *bool) error {
	app, err := shared.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close(cmd.Context())

	action := "disabled"
	if enabled {
		action = "enabled"
	}
	if err := requireDynamic(app.Catalog, typeID, action); err != nil {
		return err
	}

	err = app.Store.Update(func(s *globalconfig.Snapshot) error {
		e := entryFor(s, typeID)
		e.Enabled = enabled
		if byDefault != nil {
			e.EnabledByDefault = *byDefault
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := app.Store.Save(cmd.Context()); err != nil {
		return err
	}

	app.Logger.Info("global configuration updated", "type", typeID, "enabled", enabled)
	fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("%s %s %s", shared.SymbolOK, typeID, action)))
	return nil
}

func newSetCommand() *cobra.Command {
	var (
		policy    policyValue
		defaults  []string
		unset     []string
		byDefault bool
	)

	cmd := &cobra.Command{
		Use:   "set <type>",
		Short: "Set the override policy and defaults of a type",
		Long: `Set the override policy and default property values of a type.

Defaults are given as property=value. Values are converted to the
property's kind, so --default processingTimeoutSeconds=300 stores an
integer.`,
		Example: `  sscgate global set uploadArtifact --policy WARN_USE_DEFAULT --default fprFilter=build/**/*.fpr
  sscgate global set checkIssueCount --default threshold=0 --unset searchString
  sscgate global set createApplicationVersion --by-default=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeID := args[0]
			parsed, err := parseDefaults(defaults)
			if err != nil {
				return err
			}

			app, err := shared.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			t, err := app.Catalog.Lookup(typeID)
			if err != nil {
				return err
			}
			for _, name := range unset {
				if _, ok := t.Property(name); !ok {
					return catalog.UnknownPropertyError(t, name)
				}
			}

			err = app.Store.Update(func(s *globalconfig.Snapshot) error {
				e := entryFor(s, typeID)
				if policy.set {
					e.Policy = policy.policy
				}
				if cmd.Flags().Changed("by-default") {
					e.EnabledByDefault = byDefault
				}
				if e.Defaults == nil {
					e.Defaults = make(map[string]any)
				}
				for k, v := range parsed {
					e.Defaults[k] = v
				}
				for _, k := range unset {
					delete(e.Defaults, k)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if err := app.Store.Save(cmd.Context()); err != nil {
				return err
			}

			app.Logger.Info("global configuration updated", "type", typeID, "policy", string(policy.policy))
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("%s %s updated", shared.SymbolOK, typeID)))
			return nil
		},
	}

	cmd.Flags().Var(&policy, "policy", "Override policy: ALLOW, WARN_USE_DEFAULT or FAIL")
	cmd.Flags().StringArrayVar(&defaults, "default", nil, "Default value as property=value (repeatable)")
	cmd.Flags().StringArrayVar(&unset, "unset", nil, "Remove the default of a property (repeatable)")
	cmd.Flags().BoolVar(&byDefault, "by-default", false, "Add the type to newly initialized jobs")
	return cmd
}

func newMoveCommand() *cobra.Command {
	var before, after string

	cmd := &cobra.Command{
		Use:   "move <type>",
		Short: "Change the position of a dynamic type in the operation order",
		Long: `Move a configured dynamic type before or after another configured
type. Without --before or --after the type is moved to the end.`,
		Example: `  sscgate global move checkIssueCount --after uploadArtifact
  sscgate global move createApplicationVersion --before uploadArtifact`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeID := args[0]
			if before != "" && after != "" {
				return &errors.ValidationError{
					Field:   "before",
					Message: "--before and --after are mutually exclusive",
				}
			}

			app, err := shared.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			if err := requireDynamic(app.Catalog, typeID, "moved"); err != nil {
				return err
			}

			err = app.Store.Update(func(s *globalconfig.Snapshot) error {
				return moveEntry(s, typeID, before, after)
			})
			if err != nil {
				return err
			}
			if err := app.Store.Save(cmd.Context()); err != nil {
				return err
			}

			app.Logger.Info("global configuration reordered", "type", typeID, "before", before, "after", after)
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("%s %s moved", shared.SymbolOK, typeID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "Place the type before this type")
	cmd.Flags().StringVar(&after, "after", "", "Place the type after this type")
	return cmd
}

// moveEntry relocates the entry of typeID relative to the entry named by
// before or after. With neither set it moves to the end.
func moveEntry(s *globalconfig.Snapshot, typeID, before, after string) error {
	from := s.Find(typeID)
	if from < 0 {
		return &errors.NotFoundError{Resource: "global entry", ID: typeID}
	}
	ref := before
	if ref == "" {
		ref = after
	}
	if ref == typeID {
		return &errors.ValidationError{Field: "type", Message: "cannot move a type relative to itself"}
	}
	if ref != "" && s.Find(ref) < 0 {
		return &errors.NotFoundError{Resource: "global entry", ID: ref}
	}

	e := s.Entries[from]
	s.Entries = append(s.Entries[:from], s.Entries[from+1:]...)

	to := len(s.Entries)
	switch {
	case before != "":
		to = s.Find(before)
	case after != "":
		to = s.Find(after) + 1
	}
	s.Entries = append(s.Entries, globalconfig.Entry{})
	copy(s.Entries[to+1:], s.Entries[to:])
	s.Entries[to] = e
	return nil
}

// entryFor returns the entry for typeID, appending a disabled ALLOW entry
// when the snapshot has none.
func entryFor(s *globalconfig.Snapshot, typeID string) *globalconfig.Entry {
	if i := s.Find(typeID); i >= 0 {
		return &s.Entries[i]
	}
	s.Entries = append(s.Entries, globalconfig.Entry{TypeID: typeID, Policy: globalconfig.PolicyAllow})
	return &s.Entries[len(s.Entries)-1]
}

func parseDefaults(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, &errors.ValidationError{
				Field:      "default",
				Message:    fmt.Sprintf("invalid default %q", p),
				Suggestion: "Use property=value",
			}
		}
		out[k] = v
	}
	return out, nil
}
