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

package bolt

import (
	"fmt"
	"time"

	"github.com/blinklabs-io/gobolt/packstream"
)

// Structure tags for rich value types
const (
	TagNode                 byte = 0x4E
	TagRelationship         byte = 0x52
	TagUnboundRelationship  byte = 0x72
	TagPath                 byte = 0x50
	TagDate                 byte = 0x44
	TagTime                 byte = 0x54
	TagLocalTime            byte = 0x74
	TagDateTime             byte = 0x49
	TagLegacyDateTime       byte = 0x46
	TagDateTimeZoneId       byte = 0x69
	TagLegacyDateTimeZoneId byte = 0x66
	TagLocalDateTime        byte = 0x64
	TagDuration             byte = 0x45
	TagPoint2D              byte = 0x58
	TagPoint3D              byte = 0x59
)

// Node is a graph node
type Node struct {
	ID        int64
	ElementID string
	Labels    []string
	Props     map[string]any
}

// Relationship is a directed, typed connection between two nodes
type Relationship struct {
	ID             int64
	StartID        int64
	EndID          int64
	ElementID      string
	StartElementID string
	EndElementID   string
	Type           string
	Props          map[string]any
}

// UnboundRelationship is a relationship without endpoint information,
// which only occurs inside paths
type UnboundRelationship struct {
	ID        int64
	ElementID string
	Type      string
	Props     map[string]any
}

// Path is an alternating sequence of nodes and relationships. Indices
// describes the traversal order: pairs of (relationship index, node index)
// where a negative relationship index means reversed direction.
type Path struct {
	Nodes         []Node
	Relationships []UnboundRelationship
	Indices       []int64
}

// Len returns the number of relationships along the path
func (p Path) Len() int {
	return len(p.Indices) / 2
}

// Date is a calendar date with no time or timezone component
type Date struct {
	Days int64
}

// Time converts to a time.Time at midnight UTC
func (d Date) Time() time.Time {
	return time.Unix(d.Days*86400, 0).UTC()
}

func (d Date) String() string {
	return d.Time().Format("2006-01-02")
}

// LocalTime is a time of day with no timezone
type LocalTime struct {
	Nanos int64
}

func (t LocalTime) String() string {
	return time.Unix(0, t.Nanos).UTC().Format("15:04:05.000000000")
}

// Time is a time of day with a fixed UTC offset
type Time struct {
	Nanos  int64
	Offset int64
}

func (t Time) String() string {
	loc := time.FixedZone("", int(t.Offset))
	return time.Unix(0, t.Nanos).Add(-time.Duration(t.Offset) * time.Second).
		In(loc).
		Format("15:04:05.000000000Z07:00")
}

// LocalDateTime is a wall-clock date and time with no timezone
type LocalDateTime struct {
	Seconds int64
	Nanos   int64
}

// Time converts to a time.Time carrying the wall-clock fields in UTC
func (t LocalDateTime) Time() time.Time {
	return time.Unix(t.Seconds, t.Nanos).UTC()
}

// Duration is a temporal amount. The components do not normalize into each
// other: a month has no fixed length in days, nor a day in seconds.
type Duration struct {
	Months  int64
	Days    int64
	Seconds int64
	Nanos   int64
}

// Point2D is a two-dimensional point in the coordinate system identified
// by its SRID
type Point2D struct {
	SRID int64
	X    float64
	Y    float64
}

// Point3D is a three-dimensional point
type Point3D struct {
	SRID int64
	X    float64
	Y    float64
	Z    float64
}

// PackStream implementations for values that are legal inside parameters

func (d Date) PackStream() packstream.Structure {
	return packstream.Structure{Tag: TagDate, Fields: []any{d.Days}}
}

func (t LocalTime) PackStream() packstream.Structure {
	return packstream.Structure{Tag: TagLocalTime, Fields: []any{t.Nanos}}
}

func (t Time) PackStream() packstream.Structure {
	return packstream.Structure{Tag: TagTime, Fields: []any{t.Nanos, t.Offset}}
}

func (t LocalDateTime) PackStream() packstream.Structure {
	return packstream.Structure{Tag: TagLocalDateTime, Fields: []any{t.Seconds, t.Nanos}}
}

func (d Duration) PackStream() packstream.Structure {
	return packstream.Structure{
		Tag:    TagDuration,
		Fields: []any{d.Months, d.Days, d.Seconds, d.Nanos},
	}
}

func (p Point2D) PackStream() packstream.Structure {
	return packstream.Structure{Tag: TagPoint2D, Fields: []any{p.SRID, p.X, p.Y}}
}

func (p Point3D) PackStream() packstream.Structure {
	return packstream.Structure{Tag: TagPoint3D, Fields: []any{p.SRID, p.X, p.Y, p.Z}}
}

// fromWire converts a decoded dynamic value into its typed representation,
// recursing through lists and maps. The negotiated version selects the
// DateTime interpretation and the presence of element IDs.
func fromWire(v any, version Version) (any, error) {
	switch v := v.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			conv, err := fromWire(item, version)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			conv, err := fromWire(item, version)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	case packstream.Structure:
		return structFromWire(v, version)
	default:
		return v, nil
	}
}

func structFromWire(s packstream.Structure, version Version) (any, error) {
	switch s.Tag {
	case TagNode:
		return nodeFromWire(s, version)
	case TagRelationship:
		return relationshipFromWire(s, version)
	case TagUnboundRelationship:
		return unboundFromWire(s, version)
	case TagPath:
		return pathFromWire(s, version)
	case TagDate:
		days, err := fieldInt(s, 0)
		if err != nil {
			return nil, err
		}
		return Date{Days: days}, nil
	case TagTime:
		nanos, err := fieldInt(s, 0)
		if err != nil {
			return nil, err
		}
		offset, err := fieldInt(s, 1)
		if err != nil {
			return nil, err
		}
		return Time{Nanos: nanos, Offset: offset}, nil
	case TagLocalTime:
		nanos, err := fieldInt(s, 0)
		if err != nil {
			return nil, err
		}
		return LocalTime{Nanos: nanos}, nil
	case TagLocalDateTime:
		seconds, err := fieldInt(s, 0)
		if err != nil {
			return nil, err
		}
		nanos, err := fieldInt(s, 1)
		if err != nil {
			return nil, err
		}
		return LocalDateTime{Seconds: seconds, Nanos: nanos}, nil
	case TagDateTime:
		// Bolt 5 shifted this tag from local to UTC seconds
		return dateTimeFromWire(s, version.UTCDateTime())
	case TagLegacyDateTime:
		return dateTimeFromWire(s, false)
	case TagDateTimeZoneId:
		return zonedDateTimeFromWire(s, version.UTCDateTime())
	case TagLegacyDateTimeZoneId:
		return zonedDateTimeFromWire(s, false)
	case TagDuration:
		var parts [4]int64
		for i := range parts {
			val, err := fieldInt(s, i)
			if err != nil {
				return nil, err
			}
			parts[i] = val
		}
		return Duration{Months: parts[0], Days: parts[1], Seconds: parts[2], Nanos: parts[3]}, nil
	case TagPoint2D:
		srid, err := fieldInt(s, 0)
		if err != nil {
			return nil, err
		}
		x, err := fieldFloat(s, 1)
		if err != nil {
			return nil, err
		}
		y, err := fieldFloat(s, 2)
		if err != nil {
			return nil, err
		}
		return Point2D{SRID: srid, X: x, Y: y}, nil
	case TagPoint3D:
		srid, err := fieldInt(s, 0)
		if err != nil {
			return nil, err
		}
		x, err := fieldFloat(s, 1)
		if err != nil {
			return nil, err
		}
		y, err := fieldFloat(s, 2)
		if err != nil {
			return nil, err
		}
		z, err := fieldFloat(s, 3)
		if err != nil {
			return nil, err
		}
		return Point3D{SRID: srid, X: x, Y: y, Z: z}, nil
	}
	return nil, packstream.UnexpectedStructTagError{Tag: s.Tag}
}

// dateTimeFromWire builds a time.Time from (seconds, nanos, offset). With
// utc set, seconds count from the epoch; otherwise they are local-shifted
// and the offset must be subtracted to recover the instant.
func dateTimeFromWire(s packstream.Structure, utc bool) (time.Time, error) {
	seconds, err := fieldInt(s, 0)
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := fieldInt(s, 1)
	if err != nil {
		return time.Time{}, err
	}
	offset, err := fieldInt(s, 2)
	if err != nil {
		return time.Time{}, err
	}
	if !utc {
		seconds -= offset
	}
	return time.Unix(seconds, nanos).In(time.FixedZone("", int(offset))), nil
}

func zonedDateTimeFromWire(s packstream.Structure, utc bool) (time.Time, error) {
	seconds, err := fieldInt(s, 0)
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := fieldInt(s, 1)
	if err != nil {
		return time.Time{}, err
	}
	zone, err := fieldString(s, 2)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown timezone %q: %w", zone, err)
	}
	if utc {
		return time.Unix(seconds, nanos).In(loc), nil
	}
	// Local-shifted: the wall-clock fields are recovered by reading the
	// seconds as UTC, then reinterpreted in the named zone
	wall := time.Unix(seconds, nanos).UTC()
	return time.Date(
		wall.Year(), wall.Month(), wall.Day(),
		wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(),
		loc,
	), nil
}

func nodeFromWire(s packstream.Structure, version Version) (Node, error) {
	id, err := fieldInt(s, 0)
	if err != nil {
		return Node{}, err
	}
	labels, err := fieldStringList(s, 1)
	if err != nil {
		return Node{}, err
	}
	props, err := fieldMap(s, 2, version)
	if err != nil {
		return Node{}, err
	}
	node := Node{ID: id, Labels: labels, Props: props}
	if version.ElementIDs() {
		if node.ElementID, err = fieldString(s, 3); err != nil {
			return Node{}, err
		}
	}
	return node, nil
}

func relationshipFromWire(s packstream.Structure, version Version) (Relationship, error) {
	id, err := fieldInt(s, 0)
	if err != nil {
		return Relationship{}, err
	}
	startID, err := fieldInt(s, 1)
	if err != nil {
		return Relationship{}, err
	}
	endID, err := fieldInt(s, 2)
	if err != nil {
		return Relationship{}, err
	}
	relType, err := fieldString(s, 3)
	if err != nil {
		return Relationship{}, err
	}
	props, err := fieldMap(s, 4, version)
	if err != nil {
		return Relationship{}, err
	}
	rel := Relationship{
		ID:      id,
		StartID: startID,
		EndID:   endID,
		Type:    relType,
		Props:   props,
	}
	if version.ElementIDs() {
		if rel.ElementID, err = fieldString(s, 5); err != nil {
			return Relationship{}, err
		}
		if rel.StartElementID, err = fieldString(s, 6); err != nil {
			return Relationship{}, err
		}
		if rel.EndElementID, err = fieldString(s, 7); err != nil {
			return Relationship{}, err
		}
	}
	return rel, nil
}

func unboundFromWire(s packstream.Structure, version Version) (UnboundRelationship, error) {
	id, err := fieldInt(s, 0)
	if err != nil {
		return UnboundRelationship{}, err
	}
	relType, err := fieldString(s, 1)
	if err != nil {
		return UnboundRelationship{}, err
	}
	props, err := fieldMap(s, 2, version)
	if err != nil {
		return UnboundRelationship{}, err
	}
	rel := UnboundRelationship{ID: id, Type: relType, Props: props}
	if version.ElementIDs() {
		if rel.ElementID, err = fieldString(s, 3); err != nil {
			return UnboundRelationship{}, err
		}
	}
	return rel, nil
}

func pathFromWire(s packstream.Structure, version Version) (Path, error) {
	rawNodes, err := fieldList(s, 0)
	if err != nil {
		return Path{}, err
	}
	rawRels, err := fieldList(s, 1)
	if err != nil {
		return Path{}, err
	}
	rawIndices, err := fieldList(s, 2)
	if err != nil {
		return Path{}, err
	}
	path := Path{
		Nodes:         make([]Node, 0, len(rawNodes)),
		Relationships: make([]UnboundRelationship, 0, len(rawRels)),
		Indices:       make([]int64, 0, len(rawIndices)),
	}
	for _, raw := range rawNodes {
		st, ok := raw.(packstream.Structure)
		if !ok || st.Tag != TagNode {
			return Path{}, fmt.Errorf("path node has unexpected type %T", raw)
		}
		node, err := nodeFromWire(st, version)
		if err != nil {
			return Path{}, err
		}
		path.Nodes = append(path.Nodes, node)
	}
	for _, raw := range rawRels {
		st, ok := raw.(packstream.Structure)
		if !ok || st.Tag != TagUnboundRelationship {
			return Path{}, fmt.Errorf("path relationship has unexpected type %T", raw)
		}
		rel, err := unboundFromWire(st, version)
		if err != nil {
			return Path{}, err
		}
		path.Relationships = append(path.Relationships, rel)
	}
	for _, raw := range rawIndices {
		idx, ok := raw.(int64)
		if !ok {
			return Path{}, fmt.Errorf("path index has unexpected type %T", raw)
		}
		path.Indices = append(path.Indices, idx)
	}
	return path, nil
}

// Structure field accessors

func fieldAt(s packstream.Structure, i int) (any, error) {
	if i >= len(s.Fields) {
		return nil, fmt.Errorf(
			"structure 0x%02X has %d fields, wanted field %d",
			s.Tag, len(s.Fields), i,
		)
	}
	return s.Fields[i], nil
}

func fieldInt(s packstream.Structure, i int) (int64, error) {
	v, err := fieldAt(s, i)
	if err != nil {
		return 0, err
	}
	out, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("structure 0x%02X field %d: expected integer, got %T", s.Tag, i, v)
	}
	return out, nil
}

func fieldFloat(s packstream.Structure, i int) (float64, error) {
	v, err := fieldAt(s, i)
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("structure 0x%02X field %d: expected float, got %T", s.Tag, i, s.Fields[i])
}

func fieldString(s packstream.Structure, i int) (string, error) {
	v, err := fieldAt(s, i)
	if err != nil {
		return "", err
	}
	out, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("structure 0x%02X field %d: expected string, got %T", s.Tag, i, v)
	}
	return out, nil
}

func fieldList(s packstream.Structure, i int) ([]any, error) {
	v, err := fieldAt(s, i)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	out, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("structure 0x%02X field %d: expected list, got %T", s.Tag, i, v)
	}
	return out, nil
}

func fieldStringList(s packstream.Structure, i int) ([]string, error) {
	raw, err := fieldList(s, i)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for j, item := range raw {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("structure 0x%02X field %d: expected string list, got %T element", s.Tag, i, item)
		}
		out[j] = str
	}
	return out, nil
}

func fieldMap(s packstream.Structure, i int, version Version) (map[string]any, error) {
	v, err := fieldAt(s, i)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("structure 0x%02X field %d: expected map, got %T", s.Tag, i, v)
	}
	conv, err := fromWire(raw, version)
	if err != nil {
		return nil, err
	}
	return conv.(map[string]any), nil
}
