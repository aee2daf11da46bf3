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

// Package job reads and writes job files. A job names the SSC application
// version it targets and lists the operations to run against it.
package job

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tombee/sscgate/internal/catalog"
	"github.com/tombee/sscgate/internal/globalconfig"
	"github.com/tombee/sscgate/internal/instance"
	"github.com/tombee/sscgate/internal/operation"
	"github.com/tombee/sscgate/internal/pipeline"
	sscerrors "github.com/tombee/sscgate/pkg/errors"
)

// Job is a parsed job file.
type Job struct {
	Name      string
	Workspace string
	Env       map[string]string

	// Target is the static applicationVersion instance.
	Target *instance.Instance

	// Operations run in file order.
	Operations []*instance.Instance

	// dir is the directory of the file the job was loaded from.
	dir string
}

type fileFormat struct {
	Name               string            `yaml:"name"`
	Workspace          string            `yaml:"workspace,omitempty"`
	Env                map[string]string `yaml:"env,omitempty"`
	ApplicationVersion map[string]any    `yaml:"applicationVersion"`
	Operations         []yaml.Node       `yaml:"operations"`
}

type fileOut struct {
	Name               string               `yaml:"name"`
	Workspace          string               `yaml:"workspace,omitempty"`
	Env                map[string]string    `yaml:"env,omitempty"`
	ApplicationVersion map[string]any       `yaml:"applicationVersion"`
	Operations         []*instance.Instance `yaml:"operations"`
}

// Parse decodes a job file against cat.
func Parse(data []byte, cat *catalog.Catalog) (*Job, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	if strings.TrimSpace(f.Name) == "" {
		return nil, &sscerrors.ValidationError{Field: "name", Message: "job name is required"}
	}

	targetType, err := cat.Lookup(catalog.TypeApplicationVersion)
	if err != nil {
		return nil, err
	}
	target := instance.New(targetType)
	for name, v := range f.ApplicationVersion {
		if err := target.Set(name, v); err != nil {
			return nil, fmt.Errorf("applicationVersion: %w", err)
		}
	}

	j := &Job{
		Name:      f.Name,
		Workspace: f.Workspace,
		Env:       f.Env,
		Target:    target,
	}

	dec := instance.Decoder{Catalog: cat}
	for i := range f.Operations {
		inst, err := dec.Decode(&f.Operations[i])
		if err != nil {
			return nil, fmt.Errorf("operations[%d]: %w", i, err)
		}
		if inst.Type().Kind != catalog.Dynamic {
			return nil, &sscerrors.ValidationError{
				Field:   fmt.Sprintf("operations[%d].type", i),
				Message: fmt.Sprintf("%s is not an operation type", inst.TypeID()),
			}
		}
		j.Operations = append(j.Operations, inst)
	}
	return j, nil
}

// Load reads and parses the job file at path.
func Load(path string, cat *catalog.Catalog) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	j, err := Parse(data, cat)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	j.dir = filepath.Dir(path)
	return j, nil
}

// Marshal encodes the job in file format.
func (j *Job) Marshal() ([]byte, error) {
	out := fileOut{
		Name:       j.Name,
		Workspace:  j.Workspace,
		Env:        j.Env,
		Operations: j.Operations,
	}
	if j.Target != nil {
		out.ApplicationVersion = j.Target.Values()
	}
	if out.Operations == nil {
		out.Operations = []*instance.Instance{}
	}
	return yaml.Marshal(out)
}

// Save writes the job to path. An existing file is only replaced when
// overwrite is set.
func (j *Job) Save(path string, overwrite bool) error {
	data, err := j.Marshal()
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("write job file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write job file: %w", err)
	}
	return f.Close()
}

// Init creates a job seeded with the current global defaults: the
// application version plus one operation for every dynamic type that is
// enabled by default, in administrator order.
func Init(name string, store *globalconfig.Store) (*Job, error) {
	factory := instance.NewFactory(store)
	target, err := factory.CreateDefault(catalog.TypeApplicationVersion)
	if err != nil {
		return nil, err
	}
	j := &Job{Name: name, Target: target}
	for _, t := range store.DefaultDynamic() {
		inst, err := factory.CreateDefault(t.ID)
		if err != nil {
			return nil, err
		}
		j.Operations = append(j.Operations, inst)
	}
	return j, nil
}

// Build creates the pipeline operations of the job.
func (j *Job) Build(ssc operation.SSC) ([]pipeline.Operation, error) {
	ops := make([]pipeline.Operation, 0, len(j.Operations))
	for i, inst := range j.Operations {
		op, err := operation.New(inst, j.Target, ssc)
		if err != nil {
			return nil, fmt.Errorf("operations[%d]: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// WorkspaceDir returns the workspace directory. A relative workspace is
// taken relative to the job file; the default is the job file's directory.
func (j *Job) WorkspaceDir() string {
	ws := j.Workspace
	if ws == "" {
		ws = "."
	}
	if filepath.IsAbs(ws) {
		return ws
	}
	base := j.dir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, ws)
}

// Environment returns the variables available to ${NAME} expansion:
// process environment, then job env, then overrides.
func (j *Job) Environment(overrides map[string]string) map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	for k, v := range j.Env {
		env[k] = v
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}
