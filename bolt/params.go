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
	"strings"
	"time"

	"github.com/blinklabs-io/gobolt/packstream"
)

// normalizeParams converts user-supplied parameter values into their wire
// form. Temporal values pick the tag matching the negotiated version.
func normalizeParams(params map[string]any, version Version) (map[string]any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		conv, err := toWire(v, version)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = conv
	}
	return out, nil
}

func toWire(v any, version Version) (any, error) {
	switch v := v.(type) {
	case Node, Relationship, UnboundRelationship, Path:
		return nil, fmt.Errorf("graph entities cannot be sent as parameters (%T)", v)
	case time.Time:
		return timeToWire(v, version), nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			conv, err := toWire(item, version)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			conv, err := toWire(item, version)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}

// timeToWire encodes a time.Time as a DateTime or DateTimeZoneId
// structure. Times in a named IANA zone keep the zone name on the wire;
// everything else carries a fixed offset.
func timeToWire(t time.Time, version Version) packstream.Structure {
	_, offset := t.Zone()
	locName := t.Location().String()
	if strings.Contains(locName, "/") {
		// Named zone
		if version.UTCDateTime() {
			return packstream.Structure{
				Tag:    TagDateTimeZoneId,
				Fields: []any{t.Unix(), int64(t.Nanosecond()), locName},
			}
		}
		return packstream.Structure{
			Tag:    TagLegacyDateTimeZoneId,
			Fields: []any{t.Unix() + int64(offset), int64(t.Nanosecond()), locName},
		}
	}
	if version.UTCDateTime() {
		return packstream.Structure{
			Tag:    TagDateTime,
			Fields: []any{t.Unix(), int64(t.Nanosecond()), int64(offset)},
		}
	}
	return packstream.Structure{
		Tag:    TagLegacyDateTime,
		Fields: []any{t.Unix() + int64(offset), int64(t.Nanosecond()), int64(offset)},
	}
}
