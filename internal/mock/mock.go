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

// Package mock provides a scripted Bolt server for tests. A Server is
// created with a conversation: an ordered list of entries that either
// expect a client message or emit server replies, speaking the real
// handshake and chunked PackStream wire format over an in-memory pipe.
package mock

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/blinklabs-io/gobolt/bolt"
	"github.com/blinklabs-io/gobolt/packstream"
)

// ConversationEntry is one scripted step
type ConversationEntry interface {
	isConversationEntry()
}

type conversationEntryBase struct{}

func (conversationEntryBase) isConversationEntry() {}

// ConversationEntryHandshake expects the client handshake and replies
// with the given protocol version
type ConversationEntryHandshake struct {
	conversationEntryBase
	Reply bolt.Version
	// RejectAll answers with the all-zero "no acceptable version" reply
	RejectAll bool
}

// ConversationEntryInput expects a client message with the given tag. An
// optional Check inspects the full structure.
type ConversationEntryInput struct {
	conversationEntryBase
	Tag   byte
	Check func(msg packstream.Structure) error
}

// ConversationEntryOutput emits one or more server messages
type ConversationEntryOutput struct {
	conversationEntryBase
	Messages []packstream.Structure
}

// ConversationEntryClose closes the connection
type ConversationEntryClose struct {
	conversationEntryBase
}

// ConversationEntrySleep pauses the conversation
type ConversationEntrySleep struct {
	conversationEntryBase
	Duration time.Duration
}

// Server mocks a Bolt server for a single connection
type Server struct {
	clientConn net.Conn
	serverConn net.Conn
	entries    []ConversationEntry
	doneChan   chan any
	errorChan  chan error
	onceClose  sync.Once
}

// NewServer returns a mock server running the provided conversation and
// the client side of its connection
func NewServer(entries []ConversationEntry) (*Server, net.Conn) {
	s := &Server{
		entries:   entries,
		doneChan:  make(chan any),
		errorChan: make(chan error, 1),
	}
	s.clientConn, s.serverConn = net.Pipe()
	go s.asyncLoop()
	return s, s.clientConn
}

// ErrorChan returns the channel carrying conversation errors. It is
// closed when the conversation finishes.
func (s *Server) ErrorChan() <-chan error {
	return s.errorChan
}

// Close closes both sides of the connection
func (s *Server) Close() error {
	var retErr error
	s.onceClose.Do(func() {
		close(s.doneChan)
		if err := s.serverConn.Close(); err != nil {
			retErr = err
			return
		}
		if err := s.clientConn.Close(); err != nil {
			retErr = err
			return
		}
	})
	return retErr
}

func (s *Server) sendError(err error) {
	select {
	case s.errorChan <- err:
		_ = s.Close()
	default:
	}
}

func (s *Server) asyncLoop() {
	defer func() {
		close(s.errorChan)
	}()
	cr := bolt.NewChunkReader(s.serverConn)
	cw := bolt.NewChunkWriter(s.serverConn)
	for _, entry := range s.entries {
		select {
		case <-s.doneChan:
			return
		default:
		}
		switch entry := entry.(type) {
		case ConversationEntryHandshake:
			if err := s.processHandshake(entry); err != nil {
				s.sendError(fmt.Errorf("handshake error: %w", err))
				return
			}
		case ConversationEntryInput:
			if err := s.processInputEntry(cr, entry); err != nil {
				s.sendError(fmt.Errorf("input error: %w", err))
				return
			}
		case ConversationEntryOutput:
			if err := s.processOutputEntry(cw, entry); err != nil {
				s.sendError(fmt.Errorf("output error: %w", err))
				return
			}
		case ConversationEntryClose:
			s.Close()
		case ConversationEntrySleep:
			time.Sleep(entry.Duration)
		default:
			s.sendError(
				fmt.Errorf(
					"unknown conversation entry type: %T: %#v",
					entry,
					entry,
				),
			)
			return
		}
	}
}

func (s *Server) processHandshake(entry ConversationEntryHandshake) error {
	var proposal [20]byte
	if _, err := io.ReadFull(s.serverConn, proposal[:]); err != nil {
		return err
	}
	if [4]byte(proposal[:4]) != bolt.Magic {
		return fmt.Errorf(
			"handshake magic did not match expected value: got %X",
			proposal[:4],
		)
	}
	var reply [4]byte
	if !entry.RejectAll {
		binary.BigEndian.PutUint32(
			reply[:],
			uint32(entry.Reply.Minor)<<8|uint32(entry.Reply.Major),
		)
	}
	_, err := s.serverConn.Write(reply[:])
	return err
}

func (s *Server) processInputEntry(cr *bolt.ChunkReader, entry ConversationEntryInput) error {
	body, err := cr.ReadMessage()
	if err != nil {
		return err
	}
	var decoded any
	if err := packstream.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	msg, ok := decoded.(packstream.Structure)
	if !ok {
		return fmt.Errorf("received message is not a structure: %T", decoded)
	}
	if msg.Tag != entry.Tag {
		return fmt.Errorf(
			"input message tag did not match expected value: expected 0x%02X, got 0x%02X",
			entry.Tag,
			msg.Tag,
		)
	}
	if entry.Check != nil {
		if err := entry.Check(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) processOutputEntry(cw *bolt.ChunkWriter, entry ConversationEntryOutput) error {
	for _, msg := range entry.Messages {
		data, err := packstream.Marshal(msg)
		if err != nil {
			return err
		}
		if err := cw.WriteMessage(data); err != nil {
			return err
		}
	}
	return nil
}
