// Package mkvtest builds small KVS-style Matroska streams for tests.
package mkvtest

import (
	"encoding/binary"
	"fmt"
	"time"
)

// CodecMJPEG and CodecH264 are the Matroska codec IDs used in fixtures.
const (
	CodecMJPEG = "V_MJPEG"
	CodecH264  = "V_MPEG4/ISO/AVC"
)

// FrameSpec is one block inside a fragment's cluster.
type FrameSpec struct {
	Offset   time.Duration
	Keyframe bool
	Data     []byte
}

// FragmentSpec describes one KVS fragment.
type FragmentSpec struct {
	Number            string
	Start             time.Time
	CodecID           string
	CodecPrivate      []byte
	Frames            []FrameSpec
	ContinuationToken string
	ErrorCode         string
}

// Frames returns n keyframes spaced evenly from offset zero. Each frame's
// payload is a single byte holding its index.
func Frames(n int, spacing time.Duration) []FrameSpec {
	out := make([]FrameSpec, n)
	for i := range out {
		out[i] = FrameSpec{Offset: time.Duration(i) * spacing, Keyframe: true, Data: []byte{byte(i)}}
	}
	return out
}

// Stream concatenates encoded fragments, as GetMedia would return them.
func Stream(specs ...FragmentSpec) []byte {
	var out []byte
	for _, s := range specs {
		out = append(out, Fragment(s)...)
	}
	return out
}

// Fragment encodes a single fragment with an unknown-size segment and cluster.
func Fragment(s FragmentSpec) []byte {
	codec := s.CodecID
	if codec == "" {
		codec = CodecMJPEG
	}

	header := Element(0x1A45DFA3, concat(
		String(0x4282, "matroska"),
		Uint(0x4287, 2),
	))

	info := Element(0x1549A966, Uint(0x2AD7B1, 1_000_000))

	trackEntry := concat(
		Uint(0xD7, 1),
		Uint(0x83, 1),
		String(0x86, codec),
	)
	if len(s.CodecPrivate) > 0 {
		trackEntry = concat(trackEntry, Element(0x63A2, s.CodecPrivate))
	}
	trackEntry = concat(trackEntry, Element(0xE0, concat(Uint(0xB0, 640), Uint(0xBA, 480))))
	tracks := Element(0x1654AE6B, Element(0xAE, trackEntry))

	leadTags := [][2]string{}
	if s.Number != "" {
		leadTags = append(leadTags,
			[2]string{"AWS_KINESISVIDEO_FRAGMENT_NUMBER", s.Number},
			[2]string{"AWS_KINESISVIDEO_PRODUCER_TIMESTAMP", tagTime(s.Start)},
		)
	}

	clusterMS := s.Start.UnixMilli()
	cluster := Uint(0xE7, uint64(clusterMS))
	for _, f := range s.Frames {
		cluster = concat(cluster, SimpleBlock(1, int16(f.Offset/time.Millisecond), f.Keyframe, f.Data))
	}

	body := concat(info, tracks)
	if len(leadTags) > 0 {
		body = concat(body, Tags(leadTags...))
	}
	body = concat(body, UnknownSize(0x1F43B675), cluster)

	var trailTags [][2]string
	if s.ContinuationToken != "" {
		trailTags = append(trailTags, [2]string{"AWS_KINESISVIDEO_CONTINUATION_TOKEN", s.ContinuationToken})
	}
	if s.ErrorCode != "" {
		trailTags = append(trailTags, [2]string{"AWS_KINESISVIDEO_ERROR_CODE", s.ErrorCode})
	}
	if len(trailTags) > 0 {
		body = concat(body, Tags(trailTags...))
	}

	return concat(header, UnknownSize(0x18538067), body)
}

// Tags encodes a Tags element holding one SimpleTag per name/value pair.
func Tags(pairs ...[2]string) []byte {
	var tag []byte
	for _, p := range pairs {
		tag = concat(tag, Element(0x67C8, concat(String(0x45A3, p[0]), String(0x4487, p[1]))))
	}
	return Element(0x1254C367, Element(0x7373, tag))
}

// SimpleBlock encodes a SimpleBlock for the given track.
func SimpleBlock(track uint64, rel int16, keyframe bool, data []byte) []byte {
	var flags byte
	if keyframe {
		flags = 0x80
	}
	p := []byte{0x80 | byte(track)}
	p = binary.BigEndian.AppendUint16(p, uint16(rel))
	p = append(p, flags)
	p = append(p, data...)
	return Element(0xA3, p)
}

// Element encodes id, a minimal size, and payload.
func Element(id uint32, payload []byte) []byte {
	return concat(encodeID(id), encodeSize(len(payload)), payload)
}

// UnknownSize encodes an element header whose size is the reserved unknown value.
func UnknownSize(id uint32) []byte {
	return concat(encodeID(id), []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
}

// Uint encodes an unsigned integer element.
func Uint(id uint32, v uint64) []byte {
	b := binary.BigEndian.AppendUint64(nil, v)
	i := 0
	for i < 7 && b[i] == 0 {
		i++
	}
	return Element(id, b[i:])
}

// String encodes a string element.
func String(id uint32, s string) []byte {
	return Element(id, []byte(s))
}

func encodeID(id uint32) []byte {
	switch {
	case id > 0xFFFFFF:
		return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	case id > 0xFFFF:
		return []byte{byte(id >> 16), byte(id >> 8), byte(id)}
	case id > 0xFF:
		return []byte{byte(id >> 8), byte(id)}
	default:
		return []byte{byte(id)}
	}
}

func encodeSize(n int) []byte {
	switch {
	case n < 0x7F:
		return []byte{0x80 | byte(n)}
	case n < 0x3FFF:
		return []byte{0x40 | byte(n>>8), byte(n)}
	default:
		b := binary.BigEndian.AppendUint64(nil, uint64(n))
		b[0] = 0x01
		return b
	}
}

func tagTime(t time.Time) string {
	ms := t.UnixMilli()
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}

func concat(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
