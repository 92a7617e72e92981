// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package frame implements the wire framing of spec §4.1: a Frame is
// [4B length BE][4B CRC32 BE][payload]. The codec is stateless and
// synchronous over byte buffers/io.Reader; it allocates nothing beyond the
// payload buffer itself, and performs no interpretation of the payload
// (canonical textual encoding of an Event or Message is the caller's
// concern, so that non-Go implementations of the same wire format can
// interoperate).
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// DefaultMaxFrame is the default upper bound on payload length (§4.1).
const DefaultMaxFrame = 16 * 1024 * 1024

const headerLen = 8 // 4B length + 4B checksum

// ErrTruncated is returned when fewer bytes are available than the frame
// declares.
var ErrTruncated = errors.New("frame: truncated")

// ErrChecksumMismatch is returned when the decoded CRC32 does not match the
// payload actually read.
var ErrChecksumMismatch = errors.New("frame: checksum mismatch")

// ErrTooLarge is returned when a declared length exceeds the codec's
// configured maximum. Per §4.10, TooLarge is the one framing failure that
// closes the connection outright rather than dropping the single frame —
// the size claim may be adversarial.
var ErrTooLarge = errors.New("frame: frame exceeds maximum size")

// Codec encodes and decodes Frames with a configured maximum payload size.
type Codec struct {
	maxFrame uint32
}

// New returns a Codec. maxFrame <= 0 selects DefaultMaxFrame.
func New(maxFrame int) Codec {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	return Codec{maxFrame: uint32(maxFrame)}
}

// Encode writes payload as a single Frame to w.
func (c Codec) Encode(w io.Writer, payload []byte) error {
	if uint32(len(payload)) > c.maxFrame {
		return fmt.Errorf("%w: payload %d bytes exceeds max %d", ErrTooLarge, len(payload), c.maxFrame)
	}
	var header [headerLen]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("frame: write payload: %w", err)
	}
	return nil
}

// Decode reads a single Frame from r and returns its verified payload.
//
// A declared length greater than the Codec's maximum returns ErrTooLarge
// without reading the payload, so the caller can close the connection
// without absorbing an adversarial body. A short read of either the header
// or the payload returns ErrTruncated. A payload whose CRC32 does not match
// the declared checksum returns ErrChecksumMismatch; per §4.2 this should
// cause the caller to drop the single frame and keep the connection alive,
// distinct from the ErrTooLarge case.
func (c Codec) Decode(r io.Reader) ([]byte, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		return nil, fmt.Errorf("frame: read header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[0:4])
	checksum := binary.BigEndian.Uint32(header[4:8])

	if length > c.maxFrame {
		return nil, fmt.Errorf("%w: declared length %d exceeds max %d", ErrTooLarge, length, c.maxFrame)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
			}
			return nil, fmt.Errorf("frame: read payload: %w", err)
		}
	}

	if crc32.ChecksumIEEE(payload) != checksum {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}
