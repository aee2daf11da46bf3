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

// Package types implements the command listing the configurable types.
package types

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/commands/shared"
)

type propertyInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Zero        any    `json:"zero"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

type typeInfo struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Kind        string         `json:"kind"`
	Order       int            `json:"order"`
	Properties  []propertyInfo `json:"properties"`
}

// NewCommand creates the types command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List configurable types and their properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return list(cmd, catalog.Builtin())
		},
	}
}

func describe(cat *catalog.Catalog) []typeInfo {
	var out []typeInfo
	add := func(ts []catalog.ConfigurableType) {
		for _, t := range ts {
			ti := typeInfo{ID: t.ID, DisplayName: t.DisplayName, Kind: string(t.Kind), Order: t.Order}
			for _, p := range t.Properties {
				ti.Properties = append(ti.Properties, propertyInfo{
					Name:        p.Name,
					Kind:        string(p.Kind),
					Zero:        p.Zero,
					Required:    p.Required,
					Description: p.Description,
				})
			}
			out = append(out, ti)
		}
	}
	add(cat.ListStatic())
	add(cat.ListDynamic())
	return out
}

func list(cmd *cobra.Command, cat *catalog.Catalog) error {
	infos := describe(cat)
	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), infos)
	}

	w := cmd.OutOrStdout()
	for _, ti := range infos {
		fmt.Fprintf(w, "%s %s\n", shared.RenderHeader(ti.ID),
			shared.RenderLabel(fmt.Sprintf("(%s, order %d) %s", ti.Kind, ti.Order, ti.DisplayName)))
		for _, p := range ti.Properties {
			flags := []string{p.Kind}
			if p.Required {
				flags = append(flags, "required")
			}
			fmt.Fprintf(w, "  %-26s %-24s default %v\n", p.Name, strings.Join(flags, ","), p.Zero)
		}
	}
	return nil
}
