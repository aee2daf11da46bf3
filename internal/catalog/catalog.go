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

// Package catalog enumerates the configurable types known to sscgate.
//
// A ConfigurableType is a flat record: an identifier, an ordering key,
// whether it is static (always present, one per job) or dynamic (enabled
// by an administrator), and the schema of its properties. The catalog is
// populated once at process start and is read-only afterwards.
package catalog

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tombee/sscgate/pkg/errors"
)

// TypeKind partitions the catalog.
type TypeKind string

const (
	// Static types are always present with exactly one instance per job.
	Static TypeKind = "static"
	// Dynamic types are opted in by an administrator and ordered.
	Dynamic TypeKind = "dynamic"
)

// PropertyKind is the value kind of a property.
type PropertyKind string

const (
	KindString   PropertyKind = "string"
	KindBool     PropertyKind = "bool"
	KindInt      PropertyKind = "int"
	KindSeverity PropertyKind = "severity"
)

// SeverityNames lists the accepted values of KindSeverity properties,
// lowest first.
var SeverityNames = []string{"SUCCESS", "UNSTABLE", "FAILURE"}

// NotSpecified is the sentinel an unset selection carries.
const NotSpecified = "Not specified"

// Property declares one property of a configurable type.
type Property struct {
	Name string
	Kind PropertyKind

	// Zero is the value used when neither the job nor the administrator
	// supplies one.
	Zero any

	// Required properties must resolve to a non-blank value before the
	// operation does any external work.
	Required bool

	Description string
}

// Normalize converts v to the canonical Go type for the property's kind:
// string, bool, int or an upper-case severity name. nil is returned as nil,
// as is a blank string or NotSpecified for a non-string kind. Values
// decoded from YAML or JSON (float64 numbers, "true" strings) are accepted
// when they convert without loss.
func (p Property) Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && p.Kind != KindString {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, NotSpecified) {
			return nil, nil
		}
	}

	switch p.Kind {
	case KindString:
		switch tv := v.(type) {
		case string:
			return tv, nil
		case fmt.Stringer:
			return tv.String(), nil
		}

	case KindBool:
		switch tv := v.(type) {
		case bool:
			return tv, nil
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(tv)); err == nil {
				return b, nil
			}
		}

	case KindInt:
		switch tv := v.(type) {
		case int:
			return tv, nil
		case int64:
			return int(tv), nil
		case int32:
			return int(tv), nil
		case uint64:
			if tv <= math.MaxInt {
				return int(tv), nil
			}
		case float64:
			if tv == math.Trunc(tv) {
				return int(tv), nil
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(tv)); err == nil {
				return n, nil
			}
		}

	case KindSeverity:
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		case fmt.Stringer:
			s = tv.String()
		}
		s = strings.ToUpper(strings.TrimSpace(s))
		for _, name := range SeverityNames {
			if s == name {
				return s, nil
			}
		}
		if s != "" {
			return nil, &errors.ValidationError{
				Field:      p.Name,
				Message:    fmt.Sprintf("unknown severity %q", s),
				Suggestion: "use one of " + strings.Join(SeverityNames, ", "),
			}
		}
	}

	return nil, &errors.ValidationError{
		Field:   p.Name,
		Message: fmt.Sprintf("expected %s, got %T", p.Kind, v),
	}
}

// ConfigurableType is a registered kind of operation or setting.
type ConfigurableType struct {
	ID          string
	DisplayName string
	Order       int
	Kind        TypeKind
	Properties  []Property
}

// Property returns the declared property with the given name.
func (t ConfigurableType) Property(name string) (Property, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// PropertyNames returns the declared property names in declaration order.
func (t ConfigurableType) PropertyNames() []string {
	names := make([]string, len(t.Properties))
	for i, p := range t.Properties {
		names[i] = p.Name
	}
	return names
}

// Normalize validates values against the schema and returns a new map
// holding canonical values. Unknown names and kind mismatches are
// reported as *errors.ValidationError.
func (t ConfigurableType) Normalize(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, v := range values {
		p, ok := t.Property(name)
		if !ok {
			return nil, UnknownPropertyError(t, name)
		}
		nv, err := p.Normalize(v)
		if err != nil {
			return nil, errors.Wrapf(err, "type %s", t.ID)
		}
		out[name] = nv
	}
	return out, nil
}

// UnknownPropertyError builds the validation error for a property name the
// type does not declare.
func UnknownPropertyError(t ConfigurableType, name string) error {
	return &errors.ValidationError{
		Field:      name,
		Message:    fmt.Sprintf("type %s has no property %q", t.ID, name),
		Suggestion: "known properties: " + strings.Join(t.PropertyNames(), ", "),
	}
}

// Catalog holds the registered types. It is immutable after New returns.
type Catalog struct {
	byID    map[string]ConfigurableType
	static  []ConfigurableType
	dynamic []ConfigurableType
}

// New builds a catalog from the given types. Duplicate IDs, empty IDs and
// duplicate property names are rejected.
func New(types ...ConfigurableType) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]ConfigurableType, len(types))}

	for _, t := range types {
		if t.ID == "" {
			return nil, fmt.Errorf("configurable type ID cannot be empty")
		}
		if _, exists := c.byID[t.ID]; exists {
			return nil, fmt.Errorf("configurable type already registered: %s", t.ID)
		}
		if t.Kind != Static && t.Kind != Dynamic {
			return nil, fmt.Errorf("configurable type %s: invalid kind %q", t.ID, t.Kind)
		}

		seen := make(map[string]bool, len(t.Properties))
		for _, p := range t.Properties {
			if seen[p.Name] {
				return nil, fmt.Errorf("configurable type %s: duplicate property %s", t.ID, p.Name)
			}
			seen[p.Name] = true
		}

		t.Properties = append([]Property(nil), t.Properties...)
		c.byID[t.ID] = t
		if t.Kind == Static {
			c.static = append(c.static, t)
		} else {
			c.dynamic = append(c.dynamic, t)
		}
	}

	sortTypes(c.static)
	sortTypes(c.dynamic)
	return c, nil
}

// MustNew is like New but panics on error. Intended for package-level
// catalogs built from literals.
func MustNew(types ...ConfigurableType) *Catalog {
	c, err := New(types...)
	if err != nil {
		panic(err)
	}
	return c
}

func sortTypes(types []ConfigurableType) {
	sort.SliceStable(types, func(i, j int) bool {
		if types[i].Order != types[j].Order {
			return types[i].Order < types[j].Order
		}
		return types[i].ID < types[j].ID
	})
}

// ListStatic returns the static types ordered by Order.
func (c *Catalog) ListStatic() []ConfigurableType {
	return append([]ConfigurableType(nil), c.static...)
}

// ListDynamic returns the dynamic types ordered by Order.
func (c *Catalog) ListDynamic() []ConfigurableType {
	return append([]ConfigurableType(nil), c.dynamic...)
}

// IsKnown reports whether a type with the given ID is registered.
func (c *Catalog) IsKnown(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Get returns the type with the given ID.
func (c *Catalog) Get(id string) (ConfigurableType, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Lookup is like Get but returns *errors.NotFoundError for unknown IDs.
func (c *Catalog) Lookup(id string) (ConfigurableType, error) {
	t, ok := c.byID[id]
	if !ok {
		return ConfigurableType{}, &errors.NotFoundError{Resource: "configurable type", ID: id}
	}
	return t, nil
}
