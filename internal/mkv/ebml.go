// Package mkv reads the Matroska stream returned by Kinesis Video Streams
// media APIs. It understands just enough of EBML to split the stream into
// fragments and pull out tracks, blocks and KVS tags.
package mkv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Element IDs, including their length marker bits.
const (
	idEBML          = 0x1A45DFA3
	idSegment       = 0x18538067
	idInfo          = 0x1549A966
	idTimecodeScale = 0x2AD7B1
	idTracks        = 0x1654AE6B
	idTrackEntry    = 0xAE
	idTrackNumber   = 0xD7
	idTrackType     = 0x83
	idCodecID       = 0x86
	idCodecPrivate  = 0x63A2
	idVideo         = 0xE0
	idPixelWidth    = 0xB0
	idPixelHeight   = 0xBA
	idTags          = 0x1254C367
	idTag           = 0x7373
	idSimpleTag     = 0x67C8
	idTagName       = 0x45A3
	idTagString     = 0x4487
	idCluster       = 0x1F43B675
	idTimecode      = 0xE7
	idSimpleBlock   = 0xA3
	idBlockGroup    = 0xA0
	idBlock         = 0xA1
	idReferenceBlk  = 0xFB
)

// unknownSize marks a master element streamed without a length.
const unknownSize = -1

// maxElementSize bounds any single leaf element held in memory.
const maxElementSize = 64 << 20

// ErrMalformed is returned for streams that are not valid EBML.
var ErrMalformed = errors.New("mkv: malformed stream")

// masters are entered rather than skipped; their children are read in order.
var masters = map[uint32]bool{
	idSegment:    true,
	idInfo:       true,
	idTracks:     true,
	idTrackEntry: true,
	idVideo:      true,
	idTags:       true,
	idTag:        true,
	idSimpleTag:  true,
	idCluster:    true,
	idBlockGroup: true,
}

// elementHeader is an element ID and the size of its payload.
type elementHeader struct {
	id   uint32
	size int64
}

// peekID returns the next element ID without consuming it.
func peekID(r *bufio.Reader) (uint32, error) {
	first, err := r.Peek(1)
	if err != nil {
		return 0, err
	}
	n := vintLength(first[0])
	if n == 0 || n > 4 {
		return 0, fmt.Errorf("%w: invalid element id byte 0x%02x", ErrMalformed, first[0])
	}
	b, err := r.Peek(n)
	if err != nil {
		return 0, noEOF(err)
	}
	var id uint32
	for _, c := range b {
		id = id<<8 | uint32(c)
	}
	return id, nil
}

// readHeader consumes an element ID and its size.
func readHeader(r *bufio.Reader) (elementHeader, error) {
	id, err := peekID(r)
	if err != nil {
		return elementHeader{}, err
	}
	if _, err := r.Discard(idLength(id)); err != nil {
		return elementHeader{}, noEOF(err)
	}
	size, err := readSize(r)
	if err != nil {
		return elementHeader{}, noEOF(err)
	}
	return elementHeader{id: id, size: size}, nil
}

// readSize reads a variable-length size, returning unknownSize for the
// reserved all-ones value.
func readSize(r *bufio.Reader) (int64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	n := vintLength(first)
	if n == 0 {
		return 0, fmt.Errorf("%w: invalid size byte 0x%02x", ErrMalformed, first)
	}
	mask := byte(0xFF >> n)
	value := uint64(first & mask)
	allOnes := first&mask == mask
	for i := 1; i < n; i++ {
		c, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value = value<<8 | uint64(c)
		allOnes = allOnes && c == 0xFF
	}
	if allOnes {
		return unknownSize, nil
	}
	if value > 1<<62 {
		return 0, fmt.Errorf("%w: element size %d out of range", ErrMalformed, value)
	}
	return int64(value), nil
}

// vintLength returns the total byte length encoded by a leading byte, or 0.
func vintLength(b byte) int {
	for i := 0; i < 8; i++ {
		if b&(0x80>>i) != 0 {
			return i + 1
		}
	}
	return 0
}

func idLength(id uint32) int {
	switch {
	case id > 0xFFFFFF:
		return 4
	case id > 0xFFFF:
		return 3
	case id > 0xFF:
		return 2
	default:
		return 1
	}
}

// readPayload reads a leaf element's payload.
func readPayload(r *bufio.Reader, h elementHeader) ([]byte, error) {
	if h.size == unknownSize {
		return nil, fmt.Errorf("%w: leaf element 0x%X has unknown size", ErrMalformed, h.id)
	}
	if h.size > maxElementSize {
		return nil, fmt.Errorf("%w: element 0x%X too large (%d bytes)", ErrMalformed, h.id, h.size)
	}
	buf := make([]byte, h.size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, noEOF(err)
	}
	return buf, nil
}

// skip discards a leaf element's payload.
func skip(r *bufio.Reader, h elementHeader) error {
	if h.size == unknownSize {
		return fmt.Errorf("%w: cannot skip element 0x%X of unknown size", ErrMalformed, h.id)
	}
	if _, err := io.CopyN(io.Discard, r, h.size); err != nil {
		return noEOF(err)
	}
	return nil
}

func readUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// readVint decodes a size-style vint from b, returning its value and length.
func readVint(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: empty vint", ErrMalformed)
	}
	n := vintLength(b[0])
	if n == 0 || n > len(b) {
		return 0, 0, fmt.Errorf("%w: truncated vint", ErrMalformed)
	}
	v := uint64(b[0] & (0xFF >> n))
	for i := 1; i < n; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, n, nil
}

// noEOF turns a mid-element EOF into io.ErrUnexpectedEOF.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
