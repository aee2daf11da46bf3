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

package sscclient

import (
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
)

var queries sync.Map // string -> *gojq.Code

// extract runs a jq expression against a decoded JSON document and
// returns the first result. Compiled expressions are cached.
func extract(expr string, doc any) (any, error) {
	code, err := compile(expr)
	if err != nil {
		return nil, err
	}
	iter := code.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("jq %s: %w", expr, err)
	}
	return v, nil
}

func compile(expr string) (*gojq.Code, error) {
	if c, ok := queries.Load(expr); ok {
		return c.(*gojq.Code), nil
	}
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse jq %q: %w", expr, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile jq %q: %w", expr, err)
	}
	queries.Store(expr, code)
	return code, nil
}

func extractString(expr string, doc any) (string, error) {
	v, err := extract(expr, doc)
	if err != nil || v == nil {
		return "", err
	}
	switch tv := v.(type) {
	case string:
		return tv, nil
	case float64:
		return fmt.Sprintf("%.0f", tv), nil
	case int:
		return fmt.Sprintf("%d", tv), nil
	default:
		return fmt.Sprintf("%v", tv), nil
	}
}

func extractInt(expr string, doc any) (int, error) {
	v, err := extract(expr, doc)
	if err != nil {
		return 0, err
	}
	switch tv := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(tv), nil
	case int:
		return tv, nil
	default:
		return 0, fmt.Errorf("jq %s: expected number, got %T", expr, v)
	}
}
