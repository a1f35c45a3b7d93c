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

package mock

import (
	"github.com/blinklabs-io/gobolt/bolt"
	"github.com/blinklabs-io/gobolt/packstream"
)

// MockServerAgent is the server identification reported by canned HELLO
// responses
const MockServerAgent = "Neo4j/5.15.0"

// SuccessMessage builds a SUCCESS response with the given metadata
func SuccessMessage(metadata map[string]any) packstream.Structure {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return packstream.Structure{Tag: bolt.MsgSuccess, Fields: []any{metadata}}
}

// FailureMessage builds a FAILURE response with the given code and message
func FailureMessage(code string, message string) packstream.Structure {
	return packstream.Structure{
		Tag: bolt.MsgFailure,
		Fields: []any{
			map[string]any{"code": code, "message": message},
		},
	}
}

// RecordMessage builds a RECORD response carrying one row of values
func RecordMessage(values ...any) packstream.Structure {
	return packstream.Structure{Tag: bolt.MsgRecord, Fields: []any{values}}
}

// IgnoredMessage builds an IGNORED response
func IgnoredMessage() packstream.Structure {
	return packstream.Structure{Tag: bolt.MsgIgnored, Fields: []any{}}
}

// ConversationEntryHello is a pre-defined entry that matches any HELLO
// request
var ConversationEntryHello = ConversationEntryInput{Tag: bolt.MsgHello}

// ConversationEntryHelloSuccess is a pre-defined entry replying to HELLO
// with a generic server identity
var ConversationEntryHelloSuccess = ConversationEntryOutput{
	Messages: []packstream.Structure{
		SuccessMessage(map[string]any{
			"server":        MockServerAgent,
			"connection_id": "bolt-mock-1",
		}),
	},
}

// ConversationEntryGoodbye is a pre-defined entry that matches the GOODBYE
// sent on clean connection shutdown
var ConversationEntryGoodbye = ConversationEntryInput{Tag: bolt.MsgGoodbye}

// HandshakeAuthEntries returns the conversation prefix for a successful
// connection at the given version: handshake, HELLO exchange, and the
// LOGON exchange for versions that split authentication out of HELLO
func HandshakeAuthEntries(version bolt.Version) []ConversationEntry {
	entries := []ConversationEntry{
		ConversationEntryHandshake{Reply: version},
		ConversationEntryHello,
		ConversationEntryHelloSuccess,
	}
	if version.SplitAuth() {
		entries = append(entries,
			ConversationEntryInput{Tag: bolt.MsgLogon},
			ConversationEntryOutput{
				Messages: []packstream.Structure{SuccessMessage(nil)},
			},
		)
	}
	return entries
}
