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

package bolt_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/blinklabs-io/gobolt/bolt"
)

// countChunks walks a chunked envelope and returns the number of
// non-empty chunks before the message terminator
func countChunks(t *testing.T, data []byte) (chunks int, payload []byte) {
	t.Helper()
	for {
		if len(data) < 2 {
			t.Fatal("envelope ended without terminator")
		}
		size := binary.BigEndian.Uint16(data[:2])
		data = data[2:]
		if size == 0 {
			if len(data) != 0 {
				t.Fatalf("%d trailing bytes after terminator", len(data))
			}
			return chunks, payload
		}
		chunks++
		if len(data) < int(size) {
			t.Fatalf("chunk header declares %d bytes, %d available", size, len(data))
		}
		payload = append(payload, data[:size]...)
		data = data[size:]
	}
}

func TestChunkWriterSplitting(t *testing.T) {
	testCases := []struct {
		name       string
		bodySize   int
		wantChunks int
	}{
		{"small", 100, 1},
		{"max single chunk", bolt.MaxChunkSize, 1},
		{"one byte over", bolt.MaxChunkSize + 1, 2},
		{"two full chunks", bolt.MaxChunkSize * 2, 2},
		{"large", bolt.MaxChunkSize*3 + 17, 4},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			body := bytes.Repeat([]byte{0xAB}, tc.bodySize)
			var buf bytes.Buffer
			cw := bolt.NewChunkWriter(&buf)
			if err := cw.WriteMessage(body); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			chunks, payload := countChunks(t, buf.Bytes())
			if chunks != tc.wantChunks {
				t.Errorf("expected %d chunks, got %d", tc.wantChunks, chunks)
			}
			if !bytes.Equal(payload, body) {
				t.Error("reassembled payload does not match body")
			}
		})
	}
}

func TestChunkReaderRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte{0x42}, bolt.MaxChunkSize+100)
	var buf bytes.Buffer
	cw := bolt.NewChunkWriter(&buf)
	if err := cw.WriteMessage(body); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	cr := bolt.NewChunkReader(&buf)
	got, err := cr.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !bytes.Equal(got, body) {
		t.Error("read message does not match written body")
	}
}

// TestChunkReaderEmptyLeadingChunks checks that zero-length chunks between
// messages are skipped
func TestChunkReaderEmptyLeadingChunks(t *testing.T) {
	var buf bytes.Buffer
	// Two empty chunks, then a one-chunk message
	buf.Write([]byte{0x00, 0x00, 0x00, 0x00})
	buf.Write([]byte{0x00, 0x03, 0x01, 0x02, 0x03, 0x00, 0x00})
	cr := bolt.NewChunkReader(&buf)
	got, err := cr.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("unexpected message: %v", got)
	}
}

func TestChunkReaderMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	cw := bolt.NewChunkWriter(&buf)
	first := []byte{0x01, 0x02}
	second := []byte{0x03}
	if err := cw.WriteMessage(first); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := cw.WriteMessage(second); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	cr := bolt.NewChunkReader(&buf)
	got, err := cr.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !bytes.Equal(got, first) {
		t.Errorf("unexpected first message: %v", got)
	}
	got, err = cr.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !bytes.Equal(got, second) {
		t.Errorf("unexpected second message: %v", got)
	}
}
