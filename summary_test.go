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
	"testing"
	"time"
)

func TestSummaryParsing(t *testing.T) {
	runMeta := map[string]any{
		"fields":  []any{"n"},
		"t_first": int64(3),
	}
	finalMeta := map[string]any{
		"type":     "w",
		"db":       "neo4j",
		"bookmark": "bm:77",
		"t_last":   int64(12),
		"stats": map[string]any{
			"nodes-created":  int64(2),
			"properties-set": int64(5),
		},
		"notifications": []any{
			map[string]any{
				"code":        "Neo.ClientNotification.Statement.CartesianProduct",
				"title":       "Cartesian product",
				"description": "...",
				"severity":    "INFORMATION",
				"position": map[string]any{
					"offset": int64(10),
					"line":   int64(1),
					"column": int64(11),
				},
			},
		},
		"plan": map[string]any{"operatorType": "ProduceResults"},
	}
	s := newSummary(runMeta, finalMeta)
	if s.QueryType != QueryTypeWrite || s.Database != "neo4j" || s.Bookmark != "bm:77" {
		t.Errorf("unexpected summary header: %#v", s)
	}
	if available, ok := s.AvailableAfter(); !ok || available != 3*time.Millisecond {
		t.Errorf("unexpected t_first: %v (%v)", available, ok)
	}
	if consumed, ok := s.ConsumedAfter(); !ok || consumed != 12*time.Millisecond {
		t.Errorf("unexpected t_last: %v (%v)", consumed, ok)
	}
	if s.Counters.NodesCreated != 2 || s.Counters.PropertiesSet != 5 {
		t.Errorf("unexpected counters: %#v", s.Counters)
	}
	// Missing counters read as zero
	if s.Counters.ConstraintsRemoved != 0 {
		t.Errorf("unexpected counters: %#v", s.Counters)
	}
	if !s.Counters.ContainsUpdates() {
		t.Error("expected updates to be reported")
	}
	if len(s.Notifications) != 1 {
		t.Fatalf("unexpected notifications: %#v", s.Notifications)
	}
	n := s.Notifications[0]
	if n.Severity != "INFORMATION" || n.Position == nil || n.Position.Column != 11 {
		t.Errorf("unexpected notification: %#v", n)
	}
	if s.Plan["operatorType"] != "ProduceResults" {
		t.Errorf("unexpected plan: %v", s.Plan)
	}
}

func TestSummaryEmptyMetadata(t *testing.T) {
	s := newSummary(nil, nil)
	if _, ok := s.AvailableAfter(); ok {
		t.Error("expected no t_first")
	}
	if s.Counters.ContainsUpdates() {
		t.Error("expected no updates")
	}
}
