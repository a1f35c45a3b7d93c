// Copyright 2025 Blink Labs Software
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

package gobolt

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/blinklabs-io/gobolt/bolt"
	"github.com/blinklabs-io/gobolt/packstream"
)

// Row is one record of a result stream
type Row struct {
	fields []string
	values []any
}

// Fields returns the column names
func (r *Row) Fields() []string {
	return r.fields
}

// Values returns the raw column values
func (r *Row) Values() []any {
	return r.values
}

// Get returns the value of the named column
func (r *Row) Get(field string) (any, bool) {
	for i, name := range r.fields {
		if name == field {
			return r.values[i], true
		}
	}
	return nil, false
}

// GetTo binds the named column to dst, which must be a non-nil pointer
func (r *Row) GetTo(field string, dst any) error {
	v, ok := r.Get(field)
	if !ok {
		return &ConversionError{
			Field: field,
			Err:   fmt.Errorf("no such field (have %v)", r.fields),
		}
	}
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &ConversionError{
			Field: field,
			Err:   fmt.Errorf("destination must be a non-nil pointer, got %T", dst),
		}
	}
	if err := bindRowValue(v, field, rv.Elem()); err != nil {
		return &ConversionError{Field: field, Err: err}
	}
	return nil
}

// To binds the whole row to dst by matching column names against struct
// fields
func (r *Row) To(dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &ConversionError{
			Err: fmt.Errorf("destination must be a non-nil pointer, got %T", dst),
		}
	}
	asMap := make(map[string]any, len(r.fields))
	for i, name := range r.fields {
		asMap[name] = r.values[i]
	}
	if err := bindRowValue(asMap, "", rv.Elem()); err != nil {
		return &ConversionError{Err: err}
	}
	return nil
}

// bindRowValue assigns a result value to an arbitrary destination. On top
// of the plain PackStream binding rules it understands graph entities
// (virtual fields alongside properties) and temporal conversions steered
// by the destination field name.
func bindRowValue(src any, name string, rv reflect.Value) error {
	if rv.Kind() == reflect.Pointer {
		if src == nil {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return bindRowValue(src, name, rv.Elem())
	}
	// Same-type and interface destinations take the value as-is
	if src != nil {
		sv := reflect.ValueOf(src)
		if sv.Type().AssignableTo(rv.Type()) &&
			(rv.Kind() != reflect.Interface || rv.NumMethod() == 0) {
			rv.Set(sv)
			return nil
		}
	}
	switch src := src.(type) {
	case bolt.Node:
		return bindEntity(nodeVirtualFields(src), rv)
	case bolt.Relationship:
		return bindEntity(relationshipVirtualFields(src), rv)
	case bolt.UnboundRelationship:
		return bindEntity(unboundVirtualFields(src), rv)
	case time.Time:
		return bindInstant(src, name, rv)
	case bolt.Date:
		return bindDate(src, rv)
	case bolt.LocalDateTime:
		return bindInstant(src.Time(), name, rv)
	case bolt.LocalTime:
		if rv.Kind() == reflect.String {
			rv.SetString(src.String())
			return nil
		}
	case bolt.Time:
		if rv.Kind() == reflect.String {
			rv.SetString(src.String())
			return nil
		}
	case bolt.Duration:
		return bindDuration(src, rv)
	case map[string]any:
		if rv.Kind() == reflect.Struct {
			return bindStructFields(src, rv)
		}
	case []any:
		if rv.Kind() == reflect.Slice {
			out := reflect.MakeSlice(rv.Type(), len(src), len(src))
			for i, item := range src {
				if err := bindRowValue(item, name, out.Index(i)); err != nil {
					return err
				}
			}
			rv.Set(out)
			return nil
		}
	}
	return packstream.Bind(src, rv.Addr().Interface())
}

// bindStructFields assigns map entries to struct fields by name, running
// each value through the row binding rules so nested entities and
// temporals convert
func bindStructFields(src map[string]any, rv reflect.Value) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("bolt"); tag != "" {
			if tag == "-" {
				continue
			}
			name = tag
		}
		value, ok := lookupField(src, name)
		if !ok {
			continue
		}
		if err := bindRowValue(value, f.Name, rv.Field(i)); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

// lookupField finds a map entry by exact name, then by snake_case and
// lower-case fallbacks
func lookupField(src map[string]any, name string) (any, bool) {
	if v, ok := src[name]; ok {
		return v, true
	}
	if v, ok := src[snakeCase(name)]; ok {
		return v, true
	}
	if v, ok := src[strings.ToLower(name)]; ok {
		return v, true
	}
	return nil, false
}

func snakeCase(name string) string {
	var out strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out.WriteByte('_')
			}
			out.WriteRune(r - 'A' + 'a')
		} else {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func bindEntity(fields map[string]any, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Struct:
		return bindStructFields(fields, rv)
	case reflect.Map:
		return packstream.Bind(fields, rv.Addr().Interface())
	}
	return fmt.Errorf("cannot bind graph entity to %s", rv.Type())
}

// nodeVirtualFields exposes a node's properties plus synthesized entries
// for its identity and labels
func nodeVirtualFields(n bolt.Node) map[string]any {
	out := make(map[string]any, len(n.Props)+4)
	for k, v := range n.Props {
		out[k] = v
	}
	out["id"] = n.ID
	out["element_id"] = n.ElementID
	out["labels"] = anyList(n.Labels)
	out["keys"] = propKeys(n.Props)
	return out
}

func relationshipVirtualFields(r bolt.Relationship) map[string]any {
	out := make(map[string]any, len(r.Props)+7)
	for k, v := range r.Props {
		out[k] = v
	}
	out["id"] = r.ID
	out["element_id"] = r.ElementID
	out["start_node_id"] = r.StartID
	out["end_node_id"] = r.EndID
	out["type"] = r.Type
	out["keys"] = propKeys(r.Props)
	return out
}

func unboundVirtualFields(r bolt.UnboundRelationship) map[string]any {
	out := make(map[string]any, len(r.Props)+4)
	for k, v := range r.Props {
		out[k] = v
	}
	out["id"] = r.ID
	out["element_id"] = r.ElementID
	out["type"] = r.Type
	out["keys"] = propKeys(r.Props)
	return out
}

func anyList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func propKeys(props map[string]any) []any {
	out := make([]any, 0, len(props))
	for k := range props {
		out = append(out, k)
	}
	return out
}

// bindInstant converts a point in time to the destination: time.Time
// as-is, strings as RFC-3339, integers as a timestamp whose unit is
// guessed from the destination field name
func bindInstant(t time.Time, name string, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Struct:
		if rv.Type() == reflect.TypeOf(time.Time{}) {
			rv.Set(reflect.ValueOf(t))
			return nil
		}
	case reflect.String:
		rv.SetString(t.Format(time.RFC3339Nano))
		return nil
	case reflect.Int, reflect.Int64, reflect.Uint64:
		value := timestampFor(t, name)
		if rv.Kind() == reflect.Uint64 {
			if value < 0 {
				return packstream.IntegerOutOfBoundsError{Value: value, Target: "uint64"}
			}
			rv.SetUint(uint64(value))
			return nil
		}
		rv.SetInt(value)
		return nil
	}
	return fmt.Errorf("cannot bind instant to %s", rv.Type())
}

// timestampFor picks the integer unit by field-name heuristics: names
// mentioning nanos, micros, or millis get that unit, everything else
// seconds
func timestampFor(t time.Time, name string) int64 {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "nano"):
		return t.UnixNano()
	case strings.Contains(lower, "micro"):
		return t.UnixMicro()
	case strings.Contains(lower, "milli"), strings.HasSuffix(lower, "ms"):
		return t.UnixMilli()
	default:
		return t.Unix()
	}
}

func bindDate(d bolt.Date, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Struct:
		if rv.Type() == reflect.TypeOf(time.Time{}) {
			rv.Set(reflect.ValueOf(d.Time()))
			return nil
		}
	case reflect.String:
		rv.SetString(d.String())
		return nil
	case reflect.Int, reflect.Int64:
		rv.SetInt(d.Days)
		return nil
	}
	return fmt.Errorf("cannot bind date to %s", rv.Type())
}

// bindDuration maps to time.Duration only when the amount has no month or
// day component, which have no fixed length in nanoseconds
func bindDuration(d bolt.Duration, rv reflect.Value) error {
	if rv.Type() == reflect.TypeOf(time.Duration(0)) {
		if d.Months != 0 || d.Days != 0 {
			return fmt.Errorf(
				"duration with months or days does not convert to time.Duration",
			)
		}
		rv.Set(reflect.ValueOf(
			time.Duration(d.Seconds)*time.Second + time.Duration(d.Nanos),
		))
		return nil
	}
	return fmt.Errorf("cannot bind duration to %s", rv.Type())
}
