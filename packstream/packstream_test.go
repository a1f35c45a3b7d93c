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

package packstream_test

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/blinklabs-io/gobolt/packstream"
)

// TestIntegerNarrowing checks that the encoder picks the narrowest integer
// form and that the first byte matches the marker table
func TestIntegerNarrowing(t *testing.T) {
	testCases := []struct {
		value       int64
		firstByte   byte
		encodedSize int
	}{
		{0, 0x00, 1},
		{42, 0x2A, 1},
		{127, 0x7F, 1},
		{-1, 0xFF, 1},
		{-16, 0xF0, 1},
		{-17, 0xC8, 2},
		{-128, 0xC8, 2},
		{128, 0xC9, 3},
		{-129, 0xC9, 3},
		{32767, 0xC9, 3},
		{-32768, 0xC9, 3},
		{32768, 0xCA, 5},
		{-32769, 0xCA, 5},
		{math.MaxInt32, 0xCA, 5},
		{math.MinInt32, 0xCA, 5},
		{math.MaxInt32 + 1, 0xCB, 9},
		{math.MinInt32 - 1, 0xCB, 9},
		{math.MaxInt64, 0xCB, 9},
		{math.MinInt64, 0xCB, 9},
	}
	for _, tc := range testCases {
		data, err := packstream.Marshal(tc.value)
		if err != nil {
			t.Fatalf("unexpected error encoding %d: %s", tc.value, err)
		}
		if data[0] != tc.firstByte {
			t.Errorf("value %d: expected first byte 0x%02X, got 0x%02X", tc.value, tc.firstByte, data[0])
		}
		if len(data) != tc.encodedSize {
			t.Errorf("value %d: expected %d bytes, got %d", tc.value, tc.encodedSize, len(data))
		}
		var decoded int64
		if err := packstream.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unexpected error decoding %d: %s", tc.value, err)
		}
		if decoded != tc.value {
			t.Errorf("round trip mismatch: expected %d, got %d", tc.value, decoded)
		}
	}
}

// TestRoundTrip exercises every value class with boundary lengths
func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		value any
	}{
		{"null", nil},
		{"true", true},
		{"false", false},
		{"float", float64(3.14159)},
		{"float negative zero", math.Copysign(0, -1)},
		{"empty string", ""},
		{"tiny string", strings.Repeat("a", 15)},
		{"string8", strings.Repeat("a", 16)},
		{"string8 max", strings.Repeat("a", 255)},
		{"string16", strings.Repeat("a", 256)},
		{"string16 max", strings.Repeat("a", 65535)},
		{"string32", strings.Repeat("a", 65536)},
		{"unicode string", "größenmaßstäbe"},
		{"bytes", []byte{0x01, 0x02, 0x03}},
		{"empty bytes", []byte{}},
		{"bytes16", bytes.Repeat([]byte{0xAB}, 256)},
		{"bytes32", bytes.Repeat([]byte{0xAB}, 65536)},
		{"empty list", []any{}},
		{"tiny list", []any{int64(1), int64(2), int64(3)}},
		{
			"list16",
			func() any {
				out := make([]any, 256)
				for i := range out {
					out[i] = int64(i)
				}
				return out
			}(),
		},
		{"empty map", map[string]any{}},
		{"map", map[string]any{"one": int64(1), "two": int64(2)}},
		{
			"nested",
			map[string]any{
				"list": []any{int64(1), "two", 3.0, nil, true},
				"map":  map[string]any{"inner": []any{[]byte{0xFF}}},
			},
		},
		{
			"structure",
			packstream.Structure{
				Tag:    0x4E,
				Fields: []any{int64(1), []any{"Person"}, map[string]any{"name": "Alice"}},
			},
		},
		{
			"nested structure",
			packstream.Structure{
				Tag: 0x50,
				Fields: []any{
					[]any{packstream.Structure{Tag: 0x4E, Fields: []any{int64(1), []any{}, map[string]any{}}}},
					[]any{},
					[]any{},
				},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := packstream.Marshal(tc.value)
			if err != nil {
				t.Fatalf("unexpected encode error: %s", err)
			}
			var decoded any
			if err := packstream.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("unexpected decode error: %s", err)
			}
			if tc.value == nil {
				if decoded != nil {
					t.Fatalf("expected nil, got %#v", decoded)
				}
				return
			}
			if !reflect.DeepEqual(normalize(tc.value), decoded) {
				t.Errorf("round trip mismatch:\n  sent: %#v\n  got:  %#v", tc.value, decoded)
			}
		})
	}
}

// normalize converts test inputs to the decoder's dynamic representation
func normalize(v any) any {
	switch v := v.(type) {
	case packstream.Structure:
		fields := make([]any, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = normalize(f)
		}
		return packstream.Structure{Tag: v.Tag, Fields: fields}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}
		return out
	case float64:
		return v
	default:
		return v
	}
}

func TestStringLengthMarkers(t *testing.T) {
	testCases := []struct {
		length    int
		firstByte byte
	}{
		{0, 0x80},
		{15, 0x8F},
		{16, 0xD0},
		{255, 0xD0},
		{256, 0xD1},
		{65535, 0xD1},
		{65536, 0xD2},
	}
	for _, tc := range testCases {
		data, err := packstream.Marshal(strings.Repeat("x", tc.length))
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if data[0] != tc.firstByte {
			t.Errorf("length %d: expected marker 0x%02X, got 0x%02X", tc.length, tc.firstByte, data[0])
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{"empty input", []byte{}, packstream.ErrUnexpectedEOF},
		{"truncated string", []byte{0x85, 'a', 'b'}, packstream.ErrUnexpectedEOF},
		{"truncated int64", []byte{0xCB, 0x00, 0x00}, packstream.ErrUnexpectedEOF},
		{"truncated list", []byte{0x92, 0x01}, packstream.ErrUnexpectedEOF},
		{"invalid utf8", []byte{0x82, 0xFF, 0xFE}, packstream.ErrInvalidUTF8},
		{"non-string map key", []byte{0xA1, 0x01, 0x01}, packstream.ErrMapKeyNotString},
		{"unknown marker", []byte{0xC7}, packstream.UnknownMarkerError{Marker: 0xC7}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out any
			err := packstream.Unmarshal(tc.data, &out)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var unknownMarker packstream.UnknownMarkerError
			if errors.As(tc.want, &unknownMarker) {
				var got packstream.UnknownMarkerError
				if !errors.As(err, &got) || got.Marker != unknownMarker.Marker {
					t.Errorf("expected %v, got %v", tc.want, err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDuplicateMapKeysLastWins(t *testing.T) {
	// {"k": 1, "k": 2} encoded by hand
	data := []byte{0xA2, 0x81, 'k', 0x01, 0x81, 'k', 0x02}
	var out map[string]any
	if err := packstream.Unmarshal(data, &out); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if out["k"] != int64(2) {
		t.Errorf("expected last value to win, got %v", out["k"])
	}
}

func TestReadPairsPreservesDuplicates(t *testing.T) {
	// {"k": 1, "k": 2, "a": 3} encoded by hand
	data := []byte{0xA3, 0x81, 'k', 0x01, 0x81, 'k', 0x02, 0x81, 'a', 0x03}
	d := packstream.NewDecoder(data)
	pairs, err := d.ReadPairs()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := []packstream.Pair{
		{Key: "k", Value: int64(1)},
		{Key: "k", Value: int64(2)},
		{Key: "a", Value: int64(3)},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("unexpected pairs: %#v", pairs)
	}
}

func TestStructTooManyFields(t *testing.T) {
	s := packstream.Structure{Tag: 0x01, Fields: make([]any, 16)}
	if _, err := packstream.Marshal(s); !errors.Is(err, packstream.ErrLengthOutOfBounds) {
		t.Errorf("expected ErrLengthOutOfBounds, got %v", err)
	}
}

// TestDecodeStructWideHeaders checks that struct-8 and struct-16 headers
// are accepted even though the encoder never emits them
func TestDecodeStructWideHeaders(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"struct8", []byte{0xDC, 0x02, 0x42, 0x01, 0x02}},
		{"struct16", []byte{0xDD, 0x00, 0x02, 0x42, 0x01, 0x02}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out any
			if err := packstream.Unmarshal(tc.data, &out); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			s, ok := out.(packstream.Structure)
			if !ok {
				t.Fatalf("expected Structure, got %T", out)
			}
			if s.Tag != 0x42 || len(s.Fields) != 2 {
				t.Errorf("unexpected structure: %#v", s)
			}
		})
	}
}

func TestBindStruct(t *testing.T) {
	type target struct {
		Name   string `bolt:"name"`
		Age    int    `bolt:"age"`
		Scores []float64
	}
	src := map[string]any{
		"name":    "Alice",
		"age":     int64(42),
		"Scores":  []any{1.5, 2.5},
		"ignored": "extra",
	}
	var out target
	if err := packstream.Bind(src, &out); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if out.Name != "Alice" || out.Age != 42 || !reflect.DeepEqual(out.Scores, []float64{1.5, 2.5}) {
		t.Errorf("unexpected result: %#v", out)
	}
}

func TestBindIntegerOutOfBounds(t *testing.T) {
	var out int8
	err := packstream.Bind(int64(300), &out)
	var oob packstream.IntegerOutOfBoundsError
	if !errors.As(err, &oob) {
		t.Fatalf("expected IntegerOutOfBoundsError, got %v", err)
	}
	if oob.Value != 300 {
		t.Errorf("expected value 300 in error, got %d", oob.Value)
	}
}

func TestBindBytesToUintSlice(t *testing.T) {
	var out []uint8
	if err := packstream.Bind([]byte{1, 2, 3}, &out); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !bytes.Equal(out, []byte{1, 2, 3}) {
		t.Errorf("unexpected result: %v", out)
	}
	var wide []uint16
	if err := packstream.Bind([]byte{4, 5}, &wide); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(wide) != 2 || wide[0] != 4 || wide[1] != 5 {
		t.Errorf("unexpected result: %v", wide)
	}
}

func TestEncoderMapKeyNotString(t *testing.T) {
	if _, err := packstream.Marshal(map[int]any{1: "x"}); !errors.Is(err, packstream.ErrMapKeyNotString) {
		t.Errorf("expected ErrMapKeyNotString, got %v", err)
	}
}
