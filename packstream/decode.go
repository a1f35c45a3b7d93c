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
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Decoder is a cursor over a byte slice containing PackStream values. The
// offset advances as values are consumed.
type Decoder struct {
	data []byte
	off  int
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// More reports whether any unconsumed bytes remain
func (d *Decoder) More() bool {
	return d.off < len(d.data)
}

// Offset returns the current cursor position
func (d *Decoder) Offset() int {
	return d.off
}

func (d *Decoder) readByte() (byte, error) {
	if d.off >= len(d.data) {
		return 0, ErrUnexpectedEOF
	}
	b := d.data[d.off]
	d.off++
	return b, nil
}

func (d *Decoder) readN(n int) ([]byte, error) {
	if n < 0 || n > len(d.data)-d.off {
		return nil, ErrUnexpectedEOF
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) readLength(width int) (int, error) {
	b, err := d.readN(width)
	if err != nil {
		return 0, err
	}
	var length uint64
	switch width {
	case 1:
		length = uint64(b[0])
	case 2:
		length = uint64(binary.BigEndian.Uint16(b))
	case 4:
		length = uint64(binary.BigEndian.Uint32(b))
	}
	if length > MaxLength {
		return 0, ErrLengthOutOfBounds
	}
	return int(length), nil
}

// ReadValue decodes the next value into its dynamic representation: nil,
// bool, int64, float64, string, []byte, []any, map[string]any, or Structure
func (d *Decoder) ReadValue() (any, error) {
	marker, err := d.readByte()
	if err != nil {
		return nil, err
	}
	// Tiny int: the marker byte is the value
	if marker <= 0x7F || marker >= 0xF0 {
		return int64(int8(marker)), nil
	}
	switch {
	case marker >= MarkerTinyStringBase && marker <= MarkerTinyStringBase|0x0F:
		return d.readString(int(marker & 0x0F))
	case marker >= MarkerTinyListBase && marker <= MarkerTinyListBase|0x0F:
		return d.readList(int(marker & 0x0F))
	case marker >= MarkerTinyMapBase && marker <= MarkerTinyMapBase|0x0F:
		return d.readMap(int(marker & 0x0F))
	case marker >= MarkerTinyStructBase && marker <= MarkerTinyStructBase|0x0F:
		return d.readStruct(int(marker & 0x0F))
	}
	switch marker {
	case MarkerNull:
		return nil, nil
	case MarkerTrue:
		return true, nil
	case MarkerFalse:
		return false, nil
	case MarkerFloat64:
		b, err := d.readN(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case MarkerInt8:
		b, err := d.readN(1)
		if err != nil {
			return nil, err
		}
		return int64(int8(b[0])), nil
	case MarkerInt16:
		b, err := d.readN(2)
		if err != nil {
			return nil, err
		}
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case MarkerInt32:
		b, err := d.readN(4)
		if err != nil {
			return nil, err
		}
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case MarkerInt64:
		b, err := d.readN(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	case MarkerString8, MarkerString16, MarkerString32:
		length, err := d.readLength(1 << (marker - MarkerString8))
		if err != nil {
			return nil, err
		}
		return d.readString(length)
	case MarkerBytes8, MarkerBytes16, MarkerBytes32:
		length, err := d.readLength(1 << (marker - MarkerBytes8))
		if err != nil {
			return nil, err
		}
		b, err := d.readN(length)
		if err != nil {
			return nil, err
		}
		out := make([]byte, length)
		copy(out, b)
		return out, nil
	case MarkerList8, MarkerList16, MarkerList32:
		length, err := d.readLength(1 << (marker - MarkerList8))
		if err != nil {
			return nil, err
		}
		return d.readList(length)
	case MarkerMap8, MarkerMap16, MarkerMap32:
		length, err := d.readLength(1 << (marker - MarkerMap8))
		if err != nil {
			return nil, err
		}
		return d.readMap(length)
	case MarkerStruct8:
		length, err := d.readLength(1)
		if err != nil {
			return nil, err
		}
		return d.readStruct(length)
	case MarkerStruct16:
		length, err := d.readLength(2)
		if err != nil {
			return nil, err
		}
		return d.readStruct(length)
	}
	return nil, UnknownMarkerError{Marker: marker}
}

func (d *Decoder) readString(length int) (string, error) {
	b, err := d.readN(length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

func (d *Decoder) readList(length int) ([]any, error) {
	out := make([]any, length)
	for i := 0; i < length; i++ {
		v, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// readMap reads exactly length key/value pairs. Duplicate keys take the
// last value.
func (d *Decoder) readMap(length int) (map[string]any, error) {
	out := make(map[string]any, length)
	for i := 0; i < length; i++ {
		key, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		ks, ok := key.(string)
		if !ok {
			return nil, ErrMapKeyNotString
		}
		v, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		out[ks] = v
	}
	return out, nil
}

func (d *Decoder) readStruct(fields int) (Structure, error) {
	tag, err := d.readByte()
	if err != nil {
		return Structure{}, err
	}
	out := Structure{Tag: tag, Fields: make([]any, fields)}
	for i := 0; i < fields; i++ {
		v, err := d.ReadValue()
		if err != nil {
			return Structure{}, err
		}
		out.Fields[i] = v
	}
	return out, nil
}

// Pair is one map entry read in wire order
type Pair struct {
	Key   string
	Value any
}

// ReadPairs decodes a map as a sequence of key/value pairs, preserving
// wire order and duplicate keys that a plain map read would collapse
func (d *Decoder) ReadPairs() ([]Pair, error) {
	marker, err := d.readByte()
	if err != nil {
		return nil, err
	}
	var length int
	switch {
	case marker >= MarkerTinyMapBase && marker <= MarkerTinyMapBase|0x0F:
		length = int(marker & 0x0F)
	case marker == MarkerMap8, marker == MarkerMap16, marker == MarkerMap32:
		length, err = d.readLength(1 << (marker - MarkerMap8))
		if err != nil {
			return nil, err
		}
	default:
		return nil, UnknownMarkerError{Marker: marker}
	}
	out := make([]Pair, 0, length)
	for i := 0; i < length; i++ {
		key, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		ks, ok := key.(string)
		if !ok {
			return nil, ErrMapKeyNotString
		}
		value, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		out = append(out, Pair{Key: ks, Value: value})
	}
	return out, nil
}

// ReadStructHeader consumes a structure marker and returns its tag and
// field count, leaving the fields unconsumed
func (d *Decoder) ReadStructHeader() (byte, int, error) {
	marker, err := d.readByte()
	if err != nil {
		return 0, 0, err
	}
	var fields int
	switch {
	case marker >= MarkerTinyStructBase && marker <= MarkerTinyStructBase|0x0F:
		fields = int(marker & 0x0F)
	case marker == MarkerStruct8:
		fields, err = d.readLength(1)
		if err != nil {
			return 0, 0, err
		}
	case marker == MarkerStruct16:
		fields, err = d.readLength(2)
		if err != nil {
			return 0, 0, err
		}
	default:
		return 0, 0, UnknownMarkerError{Marker: marker}
	}
	tag, err := d.readByte()
	if err != nil {
		return 0, 0, err
	}
	return tag, fields, nil
}

// ReadString decodes the next value and requires it to be a string
func (d *Decoder) ReadString() (string, error) {
	v, err := d.ReadValue()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrMapKeyNotString
	}
	return s, nil
}

// ReadInt decodes the next value and requires it to be an integer
func (d *Decoder) ReadInt() (int64, error) {
	v, err := d.ReadValue()
	if err != nil {
		return 0, err
	}
	i, ok := v.(int64)
	if !ok {
		return 0, IntegerOutOfBoundsError{Value: 0, Target: "int64"}
	}
	return i, nil
}
