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

// Package instance holds the per-job values of a configurable type.
package instance

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/globalconfig"
	"github.com/tombee/sscgate/internal/resolver"
)

// Instance is one job's values for a configurable type. Values are
// validated against the type's schema on every Set.
type Instance struct {
	typ    catalog.ConfigurableType
	values map[string]any
}

// New creates an empty instance of t.
func New(t catalog.ConfigurableType) *Instance {
	return &Instance{typ: t, values: make(map[string]any)}
}

// TypeID returns the configurable type ID.
func (i *Instance) TypeID() string {
	return i.typ.ID
}

// Type returns the configurable type.
func (i *Instance) Type() catalog.ConfigurableType {
	return i.typ
}

// Set validates value against the schema and stores it.
func (i *Instance) Set(name string, value any) error {
	p, ok := i.typ.Property(name)
	if !ok {
		return catalog.UnknownPropertyError(i.typ, name)
	}
	v, err := p.Normalize(value)
	if err != nil {
		return err
	}
	i.values[name] = v
	return nil
}

// Get returns the raw value of a property and whether it is set.
func (i *Instance) Get(name string) (any, bool) {
	v, ok := i.values[name]
	return v, ok
}

// Values returns a copy of the raw values.
func (i *Instance) Values() map[string]any {
	out := make(map[string]any, len(i.values))
	for k, v := range i.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (i *Instance) Clone() *Instance {
	return &Instance{typ: i.typ, values: i.Values()}
}

// Resolve reads a property through the resolver, using the instance value
// as the candidate.
func (i *Instance) Resolve(r *resolver.Resolver, name string, opts ...resolver.Option) (any, error) {
	v, _ := i.Get(name)
	return r.Resolve(i.typ.ID, name, v, opts...)
}

// ResolveString is Resolve for string properties.
func (i *Instance) ResolveString(r *resolver.Resolver, name string, opts ...resolver.Option) (string, error) {
	v, _ := i.Get(name)
	return r.ResolveString(i.typ.ID, name, v, opts...)
}

// ResolveBool is Resolve for bool properties.
func (i *Instance) ResolveBool(r *resolver.Resolver, name string, opts ...resolver.Option) (bool, error) {
	v, _ := i.Get(name)
	return r.ResolveBool(i.typ.ID, name, v, opts...)
}

// ResolveInt is Resolve for int properties.
func (i *Instance) ResolveInt(r *resolver.Resolver, name string, opts ...resolver.Option) (int, error) {
	v, _ := i.Get(name)
	return r.ResolveInt(i.typ.ID, name, v, opts...)
}

// document is the serialized form of an instance.
type document struct {
	Type   string         `yaml:"type"`
	Values map[string]any `yaml:"values,omitempty"`
}

// MarshalYAML implements yaml.Marshaler.
func (i *Instance) MarshalYAML() (interface{}, error) {
	return document{Type: i.typ.ID, Values: i.values}, nil
}

// Decoder turns serialized instances back into validated Instances. It
// needs the catalog because a bare YAML document only carries the type ID.
type Decoder struct {
	Catalog *catalog.Catalog
}

// Decode validates a YAML node holding one instance.
func (d Decoder) Decode(node *yaml.Node) (*Instance, error) {
	var doc document
	if err := node.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid instance: %w", err)
	}
	t, err := d.Catalog.Lookup(doc.Type)
	if err != nil {
		return nil, err
	}

	inst := New(t)
	names := make([]string, 0, len(doc.Values))
	for name := range doc.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := inst.Set(name, doc.Values[name]); err != nil {
			return nil, fmt.Errorf("instance of %s: %w", t.ID, err)
		}
	}
	return inst, nil
}

// Factory creates instances seeded from the current global defaults.
type Factory struct {
	store *globalconfig.Store
}

// NewFactory creates a factory reading defaults from store.
func NewFactory(store *globalconfig.Store) *Factory {
	return &Factory{store: store}
}

// CreateDefault returns a new instance of typeID holding the administrator
// default for every declared property, or the declared zero value where
// no default is set. Override policy is not consulted here.
func (f *Factory) CreateDefault(typeID string) (*Instance, error) {
	t, err := f.store.Catalog().Lookup(typeID)
	if err != nil {
		return nil, err
	}

	var defaults map[string]any
	if e, ok := f.store.Get(typeID); ok {
		defaults = e.Defaults
	}

	inst := New(t)
	for _, p := range t.Properties {
		v, ok := defaults[p.Name]
		if !ok || v == nil {
			v = p.Zero
		}
		if err := inst.Set(p.Name, v); err != nil {
			return nil, err
		}
	}
	return inst, nil
}
