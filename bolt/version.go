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

// Package bolt implements the Bolt wire protocol: value structures,
// protocol messages, chunked message framing, and the connection state
// machine. Protocol versions 4.1 through 5.x are supported.
package bolt

import (
	"encoding/binary"
	"fmt"
)

// Version is a negotiated Bolt protocol version
type Version struct {
	Major uint8
	Minor uint8
}

// Protocol versions referenced by feature gates
var (
	VersionNone Version = Version{}
	Version4_1  Version = Version{Major: 4, Minor: 1}
	Version4_3  Version = Version{Major: 4, Minor: 3}
	Version4_4  Version = Version{Major: 4, Minor: 4}
	Version5_0  Version = Version{Major: 5, Minor: 0}
	Version5_1  Version = Version{Major: 5, Minor: 1}
	Version5_2  Version = Version{Major: 5, Minor: 2}
	Version5_4  Version = Version{Major: 5, Minor: 4}
)

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast reports whether v is the same as or newer than other
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor >= other.Minor
}

// UTCDateTime reports whether DateTime structures carry UTC-shifted
// seconds. Bolt 5+ uses UTC semantics; 4.x uses local-shifted seconds.
func (v Version) UTCDateTime() bool {
	return v.Major >= 5
}

// ElementIDs reports whether Node and Relationship structures carry the
// string element_id fields introduced in Bolt 5.0
func (v Version) ElementIDs() bool {
	return v.Major >= 5
}

// SplitAuth reports whether authentication is a separate LOGON exchange
// (Bolt 5.1+) instead of being merged into HELLO
func (v Version) SplitAuth() bool {
	return v.AtLeast(Version5_1)
}

// versionProposal is one handshake slot: a version plus the number of
// consecutive older minor versions the client also accepts
type versionProposal struct {
	version Version
	// number of consecutive older minors also accepted
	minorRange uint8
}

// proposals lists the handshake offers, newest first
var proposals = [4]versionProposal{
	{version: Version5_4, minorRange: 4},
	{version: Version4_4, minorRange: 3},
	{version: Version4_1, minorRange: 0},
	{version: VersionNone, minorRange: 0},
}

// handshakeBytes returns the 20-byte handshake: the magic preamble
// followed by four big-endian version proposals, newest first
func handshakeBytes() []byte {
	out := make([]byte, 0, 20)
	out = append(out, Magic[:]...)
	for _, p := range proposals {
		var slot [4]byte
		binary.BigEndian.PutUint32(
			slot[:],
			uint32(p.minorRange)<<16|uint32(p.version.Minor)<<8|uint32(p.version.Major),
		)
		out = append(out, slot[:]...)
	}
	return out
}

// parseVersion decodes the server's four-byte handshake response. A zero
// response means no proposed version was acceptable.
func parseVersion(raw [4]byte) (Version, error) {
	selected := binary.BigEndian.Uint32(raw[:])
	if selected == 0 {
		return VersionNone, ErrVersionNotSupported
	}
	v := Version{Major: raw[3], Minor: raw[2]}
	if v.Major < 4 || (v.Major == 4 && v.Minor < 1) {
		return VersionNone, fmt.Errorf(
			"%w: server selected unsupported version %s",
			ErrVersionNotSupported,
			v,
		)
	}
	return v, nil
}

// Magic is the preamble every Bolt connection starts with
var Magic = [4]byte{0x60, 0x60, 0xB0, 0x17}
