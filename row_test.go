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
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/blinklabs-io/gobolt/bolt"
)

func testRow(fields []string, values []any) *Row {
	return &Row{fields: fields, values: values}
}

func TestRowGet(t *testing.T) {
	row := testRow([]string{"name", "age"}, []any{"Alice", int64(42)})
	if v, ok := row.Get("name"); !ok || v != "Alice" {
		t.Errorf("unexpected name: %v (%v)", v, ok)
	}
	if _, ok := row.Get("missing"); ok {
		t.Error("expected missing field to report absence")
	}
}

func TestRowToStruct(t *testing.T) {
	type person struct {
		Name   string `bolt:"name"`
		Age    int    `bolt:"age"`
		Active bool   `bolt:"active"`
	}
	row := testRow(
		[]string{"name", "age", "active", "extra"},
		[]any{"Alice", int64(42), true, "ignored"},
	)
	var p person
	if err := row.To(&p); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if p.Name != "Alice" || p.Age != 42 || !p.Active {
		t.Errorf("unexpected result: %#v", p)
	}
}

// TestNodeVirtualFields checks that identity projections are available
// alongside properties when binding a node
func TestNodeVirtualFields(t *testing.T) {
	node := bolt.Node{
		ID:        7,
		ElementID: "4:abc:7",
		Labels:    []string{"Person", "Admin"},
		Props:     map[string]any{"name": "Alice", "age": int64(42)},
	}
	type person struct {
		ID        int64
		ElementID string   `bolt:"element_id"`
		Labels    []string `bolt:"labels"`
		Name      string   `bolt:"name"`
		Age       uint8    `bolt:"age"`
		Keys      []string `bolt:"keys"`
	}
	row := testRow([]string{"n"}, []any{node})
	var p person
	if err := row.GetTo("n", &p); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if p.ID != 7 || p.ElementID != "4:abc:7" || p.Name != "Alice" || p.Age != 42 {
		t.Errorf("unexpected result: %#v", p)
	}
	if !reflect.DeepEqual(p.Labels, []string{"Person", "Admin"}) {
		t.Errorf("unexpected labels: %v", p.Labels)
	}
	if len(p.Keys) != 2 {
		t.Errorf("unexpected keys: %v", p.Keys)
	}
}

func TestRelationshipVirtualFields(t *testing.T) {
	rel := bolt.Relationship{
		ID:      3,
		StartID: 1,
		EndID:   2,
		Type:    "KNOWS",
		Props:   map[string]any{"since": int64(2020)},
	}
	type knows struct {
		ID          int64
		StartNodeID int64 `bolt:"start_node_id"`
		EndNodeID   int64 `bolt:"end_node_id"`
		Type        string
		Since       int64 `bolt:"since"`
	}
	row := testRow([]string{"r"}, []any{rel})
	var k knows
	if err := row.GetTo("r", &k); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if k.ID != 3 || k.StartNodeID != 1 || k.EndNodeID != 2 || k.Type != "KNOWS" || k.Since != 2020 {
		t.Errorf("unexpected result: %#v", k)
	}
}

// TestTemporalTargets checks instant conversion into the different
// destination shapes
func TestTemporalTargets(t *testing.T) {
	instant := time.Date(2024, 6, 15, 12, 30, 45, 500000000, time.UTC)
	type record struct {
		When     time.Time `bolt:"ts"`
		WhenText string    `bolt:"ts"`
		Seconds  int64     `bolt:"ts"`
		Millis   int64     `bolt:"ts"`
		Micros   int64     `bolt:"ts"`
		Nanos    int64     `bolt:"ts"`
	}
	row := testRow([]string{"ts"}, []any{instant})
	var out record
	if err := row.To(&out); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !out.When.Equal(instant) {
		t.Errorf("unexpected time: %s", out.When)
	}
	if out.WhenText != instant.Format(time.RFC3339Nano) {
		t.Errorf("unexpected text: %s", out.WhenText)
	}
	if out.Seconds != instant.Unix() {
		t.Errorf("unexpected seconds: %d", out.Seconds)
	}
	if out.Millis != instant.UnixMilli() {
		t.Errorf("unexpected millis: %d", out.Millis)
	}
	if out.Micros != instant.UnixMicro() {
		t.Errorf("unexpected micros: %d", out.Micros)
	}
	if out.Nanos != instant.UnixNano() {
		t.Errorf("unexpected nanos: %d", out.Nanos)
	}
}

func TestDateAndDurationTargets(t *testing.T) {
	date := bolt.Date{Days: 19900} // 2024-06-26
	type record struct {
		Day     time.Time     `bolt:"d"`
		DayText string        `bolt:"d"`
		Elapsed time.Duration `bolt:"e"`
	}
	row := testRow(
		[]string{"d", "e"},
		[]any{date, bolt.Duration{Seconds: 90, Nanos: 500}},
	)
	var out record
	if err := row.To(&out); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if out.Day.Year() != 2024 {
		t.Errorf("unexpected date: %s", out.Day)
	}
	if out.DayText != date.String() {
		t.Errorf("unexpected date text: %s", out.DayText)
	}
	if out.Elapsed != 90*time.Second+500 {
		t.Errorf("unexpected duration: %s", out.Elapsed)
	}
}

func TestDurationWithMonthsRejected(t *testing.T) {
	row := testRow([]string{"e"}, []any{bolt.Duration{Months: 1}})
	var out struct {
		Elapsed time.Duration `bolt:"e"`
	}
	if err := row.To(&out); err == nil {
		t.Fatal("expected error for month-bearing duration")
	}
}

func TestBytesTargets(t *testing.T) {
	row := testRow([]string{"b"}, []any{[]byte{1, 2, 3}})
	var asBytes []byte
	if err := row.GetTo("b", &asBytes); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	var asUints []uint8
	if err := row.GetTo("b", &asUints); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !reflect.DeepEqual(asBytes, []byte{1, 2, 3}) || !reflect.DeepEqual(asUints, []uint8{1, 2, 3}) {
		t.Errorf("unexpected results: %v %v", asBytes, asUints)
	}
}

func TestIntegerOutOfRange(t *testing.T) {
	row := testRow([]string{"n"}, []any{int64(70000)})
	var out int16
	err := row.GetTo("n", &out)
	var oob IntegerOutOfBoundsError
	if !errors.As(err, &oob) {
		t.Fatalf("expected IntegerOutOfBoundsError, got %v", err)
	}
}

func TestNullableTargets(t *testing.T) {
	row := testRow([]string{"maybe"}, []any{nil})
	var out *string
	if err := row.GetTo("maybe", &out); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if out != nil {
		t.Errorf("expected nil, got %v", out)
	}
}
