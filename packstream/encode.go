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

package packstream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Encoder writes PackStream values into an in-memory buffer
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded bytes accumulated so far
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Reset discards any accumulated output
func (e *Encoder) Reset() {
	e.buf.Reset()
}

func (e *Encoder) WriteNull() {
	e.buf.WriteByte(MarkerNull)
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf.WriteByte(MarkerTrue)
	} else {
		e.buf.WriteByte(MarkerFalse)
	}
}

// WriteInt encodes v using the narrowest representation that holds it
func (e *Encoder) WriteInt(v int64) {
	switch {
	case v >= TinyIntMin && v <= TinyIntMax:
		e.buf.WriteByte(byte(v))
	case v >= math.MinInt8 && v < TinyIntMin:
		e.buf.WriteByte(MarkerInt8)
		e.buf.WriteByte(byte(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		e.buf.WriteByte(MarkerInt16)
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(v))
		e.buf.Write(tmp[:])
	case v >= math.MinInt32 && v <= math.MaxInt32:
		e.buf.WriteByte(MarkerInt32)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(v))
		e.buf.Write(tmp[:])
	default:
		e.buf.WriteByte(MarkerInt64)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v))
		e.buf.Write(tmp[:])
	}
}

func (e *Encoder) WriteFloat(v float64) {
	e.buf.WriteByte(MarkerFloat64)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	e.buf.Write(tmp[:])
}

// writeHeader emits a marker for a sized value: the tiny form when the
// length fits in the marker nibble, otherwise the 8/16/32-bit form
func (e *Encoder) writeHeader(tinyBase byte, marker8 byte, length int) error {
	if length < 0 || length > MaxLength {
		return ErrLengthOutOfBounds
	}
	switch {
	case length <= 0x0F:
		e.buf.WriteByte(tinyBase | byte(length))
	case length <= math.MaxUint8:
		e.buf.WriteByte(marker8)
		e.buf.WriteByte(byte(length))
	case length <= math.MaxUint16:
		e.buf.WriteByte(marker8 + 1)
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(length))
		e.buf.Write(tmp[:])
	default:
		e.buf.WriteByte(marker8 + 2)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(length))
		e.buf.Write(tmp[:])
	}
	return nil
}

func (e *Encoder) WriteString(v string) error {
	if err := e.writeHeader(MarkerTinyStringBase, MarkerString8, len(v)); err != nil {
		return err
	}
	e.buf.WriteString(v)
	return nil
}

// WriteBytes encodes a byte array. There is no tiny form for bytes, so even
// empty arrays use the 8-bit length marker.
func (e *Encoder) WriteBytes(v []byte) error {
	length := len(v)
	if length > MaxLength {
		return ErrLengthOutOfBounds
	}
	switch {
	case length <= math.MaxUint8:
		e.buf.WriteByte(MarkerBytes8)
		e.buf.WriteByte(byte(length))
	case length <= math.MaxUint16:
		e.buf.WriteByte(MarkerBytes16)
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(length))
		e.buf.Write(tmp[:])
	default:
		e.buf.WriteByte(MarkerBytes32)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(length))
		e.buf.Write(tmp[:])
	}
	e.buf.Write(v)
	return nil
}

func (e *Encoder) WriteListHeader(length int) error {
	return e.writeHeader(MarkerTinyListBase, MarkerList8, length)
}

func (e *Encoder) WriteMapHeader(length int) error {
	return e.writeHeader(MarkerTinyMapBase, MarkerMap8, length)
}

func (e *Encoder) WriteStructHeader(tag byte, fields int) error {
	if fields < 0 || fields > MaxStructFields {
		return ErrLengthOutOfBounds
	}
	e.buf.WriteByte(MarkerTinyStructBase | byte(fields))
	e.buf.WriteByte(tag)
	return nil
}

// WriteValue encodes an arbitrary Go value. Supported inputs are nil, bool,
// all integer widths, float32/float64, string, []byte, Structure, Valuer
// implementations, and any slice or string-keyed map of supported values.
func (e *Encoder) WriteValue(v any) error {
	switch v := v.(type) {
	case nil:
		e.WriteNull()
		return nil
	case bool:
		e.WriteBool(v)
		return nil
	case int:
		e.WriteInt(int64(v))
		return nil
	case int8:
		e.WriteInt(int64(v))
		return nil
	case int16:
		e.WriteInt(int64(v))
		return nil
	case int32:
		e.WriteInt(int64(v))
		return nil
	case int64:
		e.WriteInt(v)
		return nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return IntegerOutOfBoundsError{Value: -1, Target: "int64"}
		}
		e.WriteInt(int64(v))
		return nil
	case uint8:
		e.WriteInt(int64(v))
		return nil
	case uint16:
		e.WriteInt(int64(v))
		return nil
	case uint32:
		e.WriteInt(int64(v))
		return nil
	case uint64:
		if v > math.MaxInt64 {
			return IntegerOutOfBoundsError{Value: -1, Target: "int64"}
		}
		e.WriteInt(int64(v))
		return nil
	case float32:
		e.WriteFloat(float64(v))
		return nil
	case float64:
		e.WriteFloat(v)
		return nil
	case string:
		return e.WriteString(v)
	case []byte:
		return e.WriteBytes(v)
	case Structure:
		return e.writeStructure(v)
	case *Structure:
		return e.writeStructure(*v)
	case []any:
		if err := e.WriteListHeader(len(v)); err != nil {
			return err
		}
		for _, item := range v {
			if err := e.WriteValue(item); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		return e.writeStringMap(v)
	}
	if valuer, ok := v.(Valuer); ok {
		return e.writeStructure(valuer.PackStream())
	}
	return e.writeReflect(reflect.ValueOf(v))
}

func (e *Encoder) writeStructure(s Structure) error {
	if err := e.WriteStructHeader(s.Tag, len(s.Fields)); err != nil {
		return err
	}
	for _, field := range s.Fields {
		if err := e.WriteValue(field); err != nil {
			return err
		}
	}
	return nil
}

// writeStringMap emits map entries in sorted key order so that encoded
// output is deterministic
func (e *Encoder) writeStringMap(m map[string]any) error {
	if err := e.WriteMapHeader(len(m)); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.WriteString(k); err != nil {
			return err
		}
		if err := e.WriteValue(m[k]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeReflect(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			e.WriteNull()
			return nil
		}
		return e.WriteValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			e.WriteNull()
			return nil
		}
		if err := e.WriteListHeader(rv.Len()); err != nil {
			return err
		}
		for i := 0; i < rv.Len(); i++ {
			if err := e.WriteValue(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return ErrMapKeyNotString
		}
		if rv.IsNil() {
			e.WriteNull()
			return nil
		}
		if err := e.WriteMapHeader(rv.Len()); err != nil {
			return err
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := e.WriteString(k); err != nil {
				return err
			}
			val := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))
			if err := e.WriteValue(val.Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		return e.writeReflectStruct(rv)
	}
	return UnsupportedTypeError{Type: fmt.Sprintf("%T", rv.Interface())}
}

// writeReflectStruct encodes a plain Go struct as a PackStream map using
// exported field names (or `bolt` tags) as keys
func (e *Encoder) writeReflectStruct(rv reflect.Value) error {
	fields := structFields(rv.Type())
	if err := e.WriteMapHeader(len(fields)); err != nil {
		return err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.WriteString(name); err != nil {
			return err
		}
		if err := e.WriteValue(rv.FieldByIndex(fields[name]).Interface()); err != nil {
			return err
		}
	}
	return nil
}
