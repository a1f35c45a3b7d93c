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
	"bufio"
	"encoding/binary"
	"io"
)

// MaxChunkSize is the largest payload a single chunk can carry
const MaxChunkSize = 65535 - 2

// ChunkWriter frames message bodies into length-prefixed chunks. Each
// message ends with a zero-length chunk.
type ChunkWriter struct {
	w *bufio.Writer
}

func NewChunkWriter(w io.Writer) *ChunkWriter {
	return &ChunkWriter{w: bufio.NewWriter(w)}
}

// WriteMessage writes body as one or more chunks followed by the message
// terminator and flushes
func (cw *ChunkWriter) WriteMessage(body []byte) error {
	var header [2]byte
	for len(body) > 0 {
		n := len(body)
		if n > MaxChunkSize {
			n = MaxChunkSize
		}
		binary.BigEndian.PutUint16(header[:], uint16(n))
		if _, err := cw.w.Write(header[:]); err != nil {
			return err
		}
		if _, err := cw.w.Write(body[:n]); err != nil {
			return err
		}
		body = body[n:]
	}
	// Message terminator
	if _, err := cw.w.Write([]byte{0x00, 0x00}); err != nil {
		return err
	}
	return cw.w.Flush()
}

// ChunkReader reassembles message bodies from the chunked envelope
type ChunkReader struct {
	r *bufio.Reader
}

func NewChunkReader(r io.Reader) *ChunkReader {
	return &ChunkReader{r: bufio.NewReader(r)}
}

// ReadMessage reads chunks until the zero-length terminator and returns
// the concatenated body. Empty chunks before the first payload chunk are
// tolerated.
func (cr *ChunkReader) ReadMessage() ([]byte, error) {
	var header [2]byte
	var body []byte
	for {
		if _, err := io.ReadFull(cr.r, header[:]); err != nil {
			return nil, err
		}
		size := binary.BigEndian.Uint16(header[:])
		if size == 0 {
			if body == nil {
				// Empty chunk between messages; keep waiting for payload
				continue
			}
			return body, nil
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(cr.r, chunk); err != nil {
			return nil, err
		}
		body = append(body, chunk...)
	}
}
