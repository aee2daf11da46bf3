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

// Package resolver decides the effective value of a property by weighing
// the job-supplied candidate against the administrator default and the
// type's override policy.
//
// Resolution order:
//
//  1. The type must be enabled, unless IgnoreEnabled is given, and the
//     property must be declared.
//  2. Without an administrator record the candidate wins.
//  3. ALLOW, or a blank default, lets the candidate win.
//  4. Otherwise the default wins. When a log sink is supplied and the
//     candidate differs, FAIL returns *OverrideViolationError and
//     WARN_USE_DEFAULT logs exactly one warning.
//  5. ${NAME} tokens in a non-blank string result are expanded last, so a
//     forced default may itself reference the environment.
package resolver

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/globalconfig"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// NotSpecified is the sentinel an unset selection carries. It counts as
// blank.
const NotSpecified = catalog.NotSpecified

// ConfigUnavailableError is returned when a type is not enabled.
type ConfigUnavailableError = globalconfig.ConfigUnavailableError

// IsBlank reports whether v is nil, a whitespace-only string or the
// NotSpecified sentinel. Values of other kinds are never blank.
func IsBlank(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(tv)
		return s == "" || strings.EqualFold(s, NotSpecified)
	default:
		return false
	}
}

var envToken = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// Expand substitutes ${NAME} tokens in s from env. Unknown names expand
// to the empty string.
func Expand(s string, env map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envToken.ReplaceAllStringFunc(s, func(tok string) string {
		return env[tok[2:len(tok)-1]]
	})
}

// Option configures a single resolution.
type Option func(*options)

type options struct {
	env         map[string]string
	logger      *slog.Logger
	withoutFail bool
	anyState    bool
}

// WithEnv expands ${NAME} tokens in the resolved value against env.
func WithEnv(env map[string]string) Option {
	return func(o *options) {
		o.env = env
	}
}

// WithLogger supplies the log sink. Without one, a differing candidate is
// silently replaced by the default, even under FAIL.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithoutFail treats FAIL as WARN_USE_DEFAULT. Error-handling properties
// are resolved this way so that a failure report is never itself aborted.
func WithoutFail() Option {
	return func(o *options) {
		o.withoutFail = true
	}
}

// IgnoreEnabled resolves the property even when the type is disabled. A
// disabled type has no administrator record to enforce, so the candidate
// wins.
func IgnoreEnabled() Option {
	return func(o *options) {
		o.anyState = true
	}
}

// Resolver resolves property values against a global configuration store.
// It is safe for concurrent use.
type Resolver struct {
	store *globalconfig.Store
}

// New creates a resolver backed by store.
func New(store *globalconfig.Store) *Resolver {
	return &Resolver{store: store}
}

// Store returns the backing store.
func (r *Resolver) Store() *globalconfig.Store {
	return r.store
}

// IsEnabled reports whether typeID is enabled.
func (r *Resolver) IsEnabled(typeID string) bool {
	return r.store.IsEnabled(typeID)
}

// CheckEnabled returns *ConfigUnavailableError when typeID is not enabled.
func (r *Resolver) CheckEnabled(typeID string) error {
	return r.store.CheckEnabled(typeID)
}

// Resolve returns the effective value of property for typeID given the
// job-supplied candidate.
func (r *Resolver) Resolve(typeID, property string, candidate any, opts ...Option) (any, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	enabled := true
	if err := r.store.CheckEnabled(typeID); err != nil {
		if !o.anyState || !r.store.Catalog().IsKnown(typeID) {
			return nil, err
		}
		enabled = false
	}

	ct, _ := r.store.Catalog().Get(typeID)
	prop, ok := ct.Property(property)
	if !ok {
		return nil, catalog.UnknownPropertyError(ct, property)
	}

	candidate, err := prop.Normalize(candidate)
	if err != nil {
		return nil, err
	}

	effective := candidate
	if enabled {
		effective, err = r.applyPolicy(typeID, prop, candidate, &o)
		if err != nil {
			return nil, err
		}
	}

	if s, ok := effective.(string); ok && o.env != nil && !IsBlank(s) {
		effective = Expand(s, o.env)
	}
	return effective, nil
}

func (r *Resolver) applyPolicy(typeID string, prop catalog.Property, candidate any, o *options) (any, error) {
	entry, ok := r.store.Get(typeID)
	if !ok {
		return candidate, nil
	}

	def := entry.Defaults[prop.Name]
	if entry.Policy == globalconfig.PolicyAllow || IsBlank(def) {
		return candidate, nil
	}

	if o.logger != nil && candidate != def {
		if entry.Policy == globalconfig.PolicyFail && !o.withoutFail {
			return nil, &OverrideViolationError{
				TypeID:    typeID,
				Property:  prop.Name,
				Default:   def,
				Candidate: candidate,
			}
		}
		o.logger.Warn(
			fmt.Sprintf("property %s may not be overridden, using default value %v instead of supplied value %v",
				prop.Name, def, candidate),
			"type_id", typeID,
			"property", prop.Name,
			"default", def,
			"candidate", candidate,
		)
	}
	return def, nil
}

// ResolveString resolves a string property. A nil result yields "".
func (r *Resolver) ResolveString(typeID, property string, candidate any, opts ...Option) (string, error) {
	v, err := r.resolveOrZero(typeID, property, candidate, opts)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// ResolveBool resolves a bool property. A nil result yields the
// property's declared zero value.
func (r *Resolver) ResolveBool(typeID, property string, candidate any, opts ...Option) (bool, error) {
	v, err := r.resolveOrZero(typeID, property, candidate, opts)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, kindError(property, "bool", v)
	}
	return b, nil
}

// ResolveInt resolves an int property. A nil result yields the
// property's declared zero value.
func (r *Resolver) ResolveInt(typeID, property string, candidate any, opts ...Option) (int, error) {
	v, err := r.resolveOrZero(typeID, property, candidate, opts)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int)
	if !ok {
		return 0, kindError(property, "int", v)
	}
	return n, nil
}

func (r *Resolver) resolveOrZero(typeID, property string, candidate any, opts []Option) (any, error) {
	v, err := r.Resolve(typeID, property, candidate, opts...)
	if err != nil || v != nil {
		return v, err
	}
	ct, _ := r.store.Catalog().Get(typeID)
	prop, _ := ct.Property(property)
	return prop.Normalize(prop.Zero)
}

func kindError(property, want string, got any) error {
	return &sscerrors.ValidationError{
		Field:   property,
		Message: fmt.Sprintf("resolved to %T, want %s", got, want),
	}
}
