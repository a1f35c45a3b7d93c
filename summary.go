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
	"time"
)

// QueryType classifies what a statement did
type QueryType string

const (
	QueryTypeRead      QueryType = "r"
	QueryTypeWrite     QueryType = "w"
	QueryTypeReadWrite QueryType = "rw"
	QueryTypeSchema    QueryType = "s"
)

// Counters reports what a statement changed. Counters missing from the
// server metadata read as zero.
type Counters struct {
	NodesCreated         int64
	NodesDeleted         int64
	RelationshipsCreated int64
	RelationshipsDeleted int64
	PropertiesSet        int64
	LabelsAdded          int64
	LabelsRemoved        int64
	IndexesAdded         int64
	IndexesRemoved       int64
	ConstraintsAdded     int64
	ConstraintsRemoved   int64
	SystemUpdates        int64
}

// ContainsUpdates reports whether the statement changed anything
func (c Counters) ContainsUpdates() bool {
	return c.NodesCreated > 0 || c.NodesDeleted > 0 ||
		c.RelationshipsCreated > 0 || c.RelationshipsDeleted > 0 ||
		c.PropertiesSet > 0 || c.LabelsAdded > 0 || c.LabelsRemoved > 0 ||
		c.IndexesAdded > 0 || c.IndexesRemoved > 0 ||
		c.ConstraintsAdded > 0 || c.ConstraintsRemoved > 0 ||
		c.SystemUpdates > 0
}

// InputPosition locates a notification within the query text
type InputPosition struct {
	Offset int64
	Line   int64
	Column int64
}

// Notification is a server hint or warning attached to a result
type Notification struct {
	Code        string
	Title       string
	Description string
	Severity    string
	Category    string
	Position    *InputPosition
}

// ResultSummary describes a completed statement
type ResultSummary struct {
	QueryType     QueryType
	Database      string
	Bookmark      string
	Counters      Counters
	Notifications []Notification
	// Plan and Profile are kept as raw metadata maps
	Plan    map[string]any
	Profile map[string]any

	tFirst int64
	tLast  int64
	hasT   [2]bool
}

// AvailableAfter is the time until the result was available, if reported
func (s *ResultSummary) AvailableAfter() (time.Duration, bool) {
	return time.Duration(s.tFirst) * time.Millisecond, s.hasT[0]
}

// ConsumedAfter is the time until the result was consumed, if reported
func (s *ResultSummary) ConsumedAfter() (time.Duration, bool) {
	return time.Duration(s.tLast) * time.Millisecond, s.hasT[1]
}

// newSummary merges the SUCCESS metadata of RUN and of the final PULL or
// DISCARD into a summary
func newSummary(runMeta map[string]any, finalMeta map[string]any) *ResultSummary {
	s := &ResultSummary{}
	if runMeta != nil {
		if tFirst, ok := runMeta["t_first"].(int64); ok {
			s.tFirst = tFirst
			s.hasT[0] = true
		}
	}
	if finalMeta == nil {
		return s
	}
	if queryType, ok := finalMeta["type"].(string); ok {
		s.QueryType = QueryType(queryType)
	}
	if db, ok := finalMeta["db"].(string); ok {
		s.Database = db
	}
	if bookmark, ok := finalMeta["bookmark"].(string); ok {
		s.Bookmark = bookmark
	}
	if tLast, ok := finalMeta["t_last"].(int64); ok {
		s.tLast = tLast
		s.hasT[1] = true
	}
	if stats, ok := finalMeta["stats"].(map[string]any); ok {
		s.Counters = parseCounters(stats)
	}
	if plan, ok := finalMeta["plan"].(map[string]any); ok {
		s.Plan = plan
	}
	if profile, ok := finalMeta["profile"].(map[string]any); ok {
		s.Profile = profile
	}
	if rawNotifications, ok := finalMeta["notifications"].([]any); ok {
		for _, raw := range rawNotifications {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			s.Notifications = append(s.Notifications, parseNotification(entry))
		}
	}
	return s
}

func parseCounters(stats map[string]any) Counters {
	counter := func(key string) int64 {
		v, _ := stats[key].(int64)
		return v
	}
	return Counters{
		NodesCreated:         counter("nodes-created"),
		NodesDeleted:         counter("nodes-deleted"),
		RelationshipsCreated: counter("relationships-created"),
		RelationshipsDeleted: counter("relationships-deleted"),
		PropertiesSet:        counter("properties-set"),
		LabelsAdded:          counter("labels-added"),
		LabelsRemoved:        counter("labels-removed"),
		IndexesAdded:         counter("indexes-added"),
		IndexesRemoved:       counter("indexes-removed"),
		ConstraintsAdded:     counter("constraints-added"),
		ConstraintsRemoved:   counter("constraints-removed"),
		SystemUpdates:        counter("system-updates"),
	}
}

func parseNotification(entry map[string]any) Notification {
	n := Notification{}
	n.Code, _ = entry["code"].(string)
	n.Title, _ = entry["title"].(string)
	n.Description, _ = entry["description"].(string)
	n.Severity, _ = entry["severity"].(string)
	n.Category, _ = entry["category"].(string)
	if rawPos, ok := entry["position"].(map[string]any); ok {
		pos := &InputPosition{}
		pos.Offset, _ = rawPos["offset"].(int64)
		pos.Line, _ = rawPos["line"].(int64)
		pos.Column, _ = rawPos["column"].(int64)
		n.Position = pos
	}
	return n
}
