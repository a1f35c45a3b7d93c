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

	"github.com/blinklabs-io/gobolt/packstream"
)

// Message tags. Tags are stable across protocol versions; field layouts
// are not.
const (
	MsgHello    byte = 0x01
	MsgGoodbye  byte = 0x02
	MsgReset    byte = 0x0F
	MsgRun      byte = 0x10
	MsgBegin    byte = 0x11
	MsgCommit   byte = 0x12
	MsgRollback byte = 0x13
	MsgDiscard  byte = 0x2F
	MsgPull     byte = 0x3F
	MsgRoute    byte = 0x66
	MsgLogon    byte = 0x6A
	MsgLogoff   byte = 0x6B

	MsgSuccess byte = 0x70
	MsgRecord  byte = 0x71
	MsgIgnored byte = 0x7E
	MsgFailure byte = 0x7F
)

// All means "everything remaining" when used as the n value of PULL or
// DISCARD; LastQuery selects the most recent query as the qid value
const (
	All       int64 = -1
	LastQuery int64 = -1
)

// NewHelloMessage builds a HELLO request. Below 5.1 the auth token is
// merged into the extra map by the caller.
func NewHelloMessage(extra map[string]any) packstream.Structure {
	return packstream.Structure{Tag: MsgHello, Fields: []any{extra}}
}

// NewLogonMessage builds a LOGON request carrying the auth token (5.1+)
func NewLogonMessage(auth map[string]any) packstream.Structure {
	return packstream.Structure{Tag: MsgLogon, Fields: []any{auth}}
}

// NewLogoffMessage builds a LOGOFF request (5.1+)
func NewLogoffMessage() packstream.Structure {
	return packstream.Structure{Tag: MsgLogoff, Fields: []any{}}
}

// NewRunMessage builds a RUN request for the given query text, parameters,
// and extra map
func NewRunMessage(
	query string,
	params map[string]any,
	extra map[string]any,
) packstream.Structure {
	if params == nil {
		params = map[string]any{}
	}
	if extra == nil {
		extra = map[string]any{}
	}
	return packstream.Structure{Tag: MsgRun, Fields: []any{query, params, extra}}
}

// NewPullMessage builds a PULL request for up to n records from the query
// identified by qid
func NewPullMessage(n int64, qid int64) packstream.Structure {
	return packstream.Structure{
		Tag:    MsgPull,
		Fields: []any{map[string]any{"n": n, "qid": qid}},
	}
}

// NewDiscardMessage builds a DISCARD request for up to n records from the
// query identified by qid
func NewDiscardMessage(n int64, qid int64) packstream.Structure {
	return packstream.Structure{
		Tag:    MsgDiscard,
		Fields: []any{map[string]any{"n": n, "qid": qid}},
	}
}

// NewBeginMessage builds a BEGIN request
func NewBeginMessage(extra map[string]any) packstream.Structure {
	if extra == nil {
		extra = map[string]any{}
	}
	return packstream.Structure{Tag: MsgBegin, Fields: []any{extra}}
}

func NewCommitMessage() packstream.Structure {
	return packstream.Structure{Tag: MsgCommit, Fields: []any{}}
}

func NewRollbackMessage() packstream.Structure {
	return packstream.Structure{Tag: MsgRollback, Fields: []any{}}
}

func NewResetMessage() packstream.Structure {
	return packstream.Structure{Tag: MsgReset, Fields: []any{}}
}

func NewGoodbyeMessage() packstream.Structure {
	return packstream.Structure{Tag: MsgGoodbye, Fields: []any{}}
}

// NewRouteMessage builds a ROUTE request. The shape of the third field
// changed in 4.4: 4.3 sends the database name (or null), while 4.4+ sends
// an extra map with `db` and `imp_user`.
func NewRouteMessage(
	routing map[string]any,
	bookmarks []string,
	db string,
	impUser string,
	version Version,
) packstream.Structure {
	if routing == nil {
		routing = map[string]any{}
	}
	bookmarkList := make([]any, len(bookmarks))
	for i, b := range bookmarks {
		bookmarkList[i] = b
	}
	var third any
	if version.AtLeast(Version4_4) {
		extra := map[string]any{}
		if db != "" {
			extra["db"] = db
		}
		if impUser != "" {
			extra["imp_user"] = impUser
		}
		third = extra
	} else {
		if db != "" {
			third = db
		}
	}
	return packstream.Structure{
		Tag:    MsgRoute,
		Fields: []any{routing, bookmarkList, third},
	}
}

// Response is a server-to-client message
type Response interface {
	isResponse()
}

// Success carries the metadata map of a SUCCESS response
type Success struct {
	Metadata map[string]any
}

func (Success) isResponse() {}

// Bool reads a boolean metadata entry, with ok reporting presence
func (s Success) Bool(key string) (bool, bool) {
	v, ok := s.Metadata[key].(bool)
	return v, ok
}

// Int reads an integer metadata entry, with ok reporting presence
func (s Success) Int(key string) (int64, bool) {
	v, ok := s.Metadata[key].(int64)
	return v, ok
}

// String reads a string metadata entry, with ok reporting presence
func (s Success) String(key string) (string, bool) {
	v, ok := s.Metadata[key].(string)
	return v, ok
}

// Strings reads a list-of-strings metadata entry
func (s Success) Strings(key string) []string {
	raw, ok := s.Metadata[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// Failure carries the code and message of a FAILURE response
type Failure struct {
	Code     string
	Message  string
	Metadata map[string]any
}

func (Failure) isResponse() {}

// Ignored is the server's response to any request sent while it is in the
// failed state
type Ignored struct{}

func (Ignored) isResponse() {}

// Record carries one row of result values
type Record struct {
	Values []any
}

func (Record) isResponse() {}

// parseResponse decodes a message body into a Response. Record values are
// converted to their typed representations using the negotiated version.
func parseResponse(body []byte, version Version) (Response, error) {
	d := packstream.NewDecoder(body)
	v, err := d.ReadValue()
	if err != nil {
		return nil, err
	}
	s, ok := v.(packstream.Structure)
	if !ok {
		return nil, fmt.Errorf("response is not a structure: %T", v)
	}
	switch s.Tag {
	case MsgSuccess:
		metadata, err := responseMetadata(s)
		if err != nil {
			return nil, err
		}
		return Success{Metadata: metadata}, nil
	case MsgFailure:
		metadata, err := responseMetadata(s)
		if err != nil {
			return nil, err
		}
		code, _ := metadata["code"].(string)
		message, _ := metadata["message"].(string)
		return Failure{Code: code, Message: message, Metadata: metadata}, nil
	case MsgIgnored:
		return Ignored{}, nil
	case MsgRecord:
		values, err := fieldList(s, 0)
		if err != nil {
			return nil, err
		}
		converted, err := fromWire(values, version)
		if err != nil {
			return nil, err
		}
		return Record{Values: converted.([]any)}, nil
	}
	return nil, packstream.UnexpectedStructTagError{Tag: s.Tag}
}

func responseMetadata(s packstream.Structure) (map[string]any, error) {
	if len(s.Fields) == 0 {
		return map[string]any{}, nil
	}
	metadata, ok := s.Fields[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf(
			"response 0x%02X metadata is not a map: %T",
			s.Tag, s.Fields[0],
		)
	}
	return metadata, nil
}
