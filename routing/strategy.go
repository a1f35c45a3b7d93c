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

package routing

import (
	"sync/atomic"
)

// Strategy picks a server from the candidates holding the requested role.
// Implementations must be safe for concurrent use.
type Strategy interface {
	Select(role Role, candidates []string) (string, bool)
}

// RoundRobin cycles through candidates with an independent monotonic
// counter per role
type RoundRobin struct {
	counters [3]atomic.Uint64
}

// NewRoundRobin returns the default selection strategy
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (rr *RoundRobin) Select(role Role, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	n := rr.counters[role].Add(1) - 1
	return candidates[n%uint64(len(candidates))], true
}
