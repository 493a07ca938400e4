package mkv

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Tags written by Kinesis Video Streams into every fragment.
const (
	TagFragmentNumber    = "AWS_KINESISVIDEO_FRAGMENT_NUMBER"
	TagProducerTimestamp = "AWS_KINESISVIDEO_PRODUCER_TIMESTAMP"
	TagServerTimestamp   = "AWS_KINESISVIDEO_SERVER_TIMESTAMP"
	TagContinuationToken = "AWS_KINESISVIDEO_CONTINUATION_TOKEN"
	TagMillisBehindNow   = "AWS_KINESISVIDEO_MILLIS_BEHIND_NOW"
	TagErrorCode         = "AWS_KINESISVIDEO_ERROR_CODE"
	TagErrorID           = "AWS_KINESISVIDEO_ERROR_ID"
)

const defaultTimecodeScale = 1_000_000

// Track describes one elementary stream in the container.
type Track struct {
	Number       uint64
	Type         uint64
	CodecID      string
	CodecPrivate []byte
	Width        uint64
	Height       uint64
}

// Frame is one encoded media sample.
type Frame struct {
	Track     uint64
	Timestamp time.Time
	Keyframe  bool
	Data      []byte
}

// Fragment is one self-contained KVS fragment: an EBML header followed by
// a segment with its tracks, clusters and tags.
type Fragment struct {
	Number            string
	ProducerTimestamp time.Time
	ServerTimestamp   time.Time
	ContinuationToken string
	ErrorCode         string
	Tags              map[string]string
	Tracks            []Track
	Frames            []Frame
	Bytes             int64
}

// Track returns the track with the given number.
func (f *Fragment) Track(number uint64) (Track, bool) {
	for _, t := range f.Tracks {
		if t.Number == number {
			return t, true
		}
	}
	return Track{}, false
}

// Reversed returns the fragment's frames newest first.
func (f *Fragment) Reversed() []Frame {
	out := make([]Frame, len(f.Frames))
	for i, fr := range f.Frames {
		out[len(f.Frames)-1-i] = fr
	}
	return out
}

// Reader splits a Matroska byte stream into fragments.
type Reader struct {
	br     *bufio.Reader
	src    *countingReader
	scale  uint64
	tracks []Track
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	src := &countingReader{r: r}
	return &Reader{
		br:    bufio.NewReaderSize(src, 64*1024),
		src:   src,
		scale: defaultTimecodeScale,
	}
}

// fragmentState tracks the position inside the element tree while the
// stream is read as a flat sequence.
type fragmentState struct {
	frag        *Fragment
	track       int
	tagName     string
	cluster     int64
	groupFrame  int
	sawTracks   bool
	startOffset int64
}

// Next returns the next complete fragment, or io.EOF when the stream ends
// cleanly. A stream cut inside a fragment yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (*Fragment, error) {
	st := &fragmentState{
		frag:        &Fragment{Tags: make(map[string]string)},
		track:       -1,
		groupFrame:  -1,
		startOffset: r.offset(),
	}
	started := false

	for {
		id, err := peekID(r.br)
		if err == io.EOF {
			if !started {
				return nil, io.EOF
			}
			return r.finish(st), nil
		}
		if err != nil {
			return nil, err
		}
		if id == idEBML && started {
			return r.finish(st), nil
		}

		h, err := readHeader(r.br)
		if err != nil {
			return nil, err
		}
		started = true

		if masters[h.id] {
			r.enter(st, h.id)
			continue
		}
		if err := r.leaf(st, h); err != nil {
			return nil, err
		}
	}
}

func (r *Reader) enter(st *fragmentState, id uint32) {
	switch id {
	case idTracks:
		st.sawTracks = true
	case idTrackEntry:
		st.frag.Tracks = append(st.frag.Tracks, Track{})
		st.track = len(st.frag.Tracks) - 1
	case idSimpleTag:
		st.tagName = ""
	case idCluster:
		st.cluster = 0
	case idBlockGroup:
		st.groupFrame = -1
	}
}

func (r *Reader) leaf(st *fragmentState, h elementHeader) error {
	switch h.id {
	case idTimecodeScale, idTrackNumber, idTrackType, idCodecID, idCodecPrivate,
		idPixelWidth, idPixelHeight, idTagName, idTagString, idTimecode,
		idSimpleBlock, idBlock, idReferenceBlk:
	default:
		return skip(r.br, h)
	}

	payload, err := readPayload(r.br, h)
	if err != nil {
		return err
	}

	var track *Track
	if st.track >= 0 {
		track = &st.frag.Tracks[st.track]
	}

	switch h.id {
	case idTimecodeScale:
		if v := readUint(payload); v > 0 {
			r.scale = v
		}
	case idTrackNumber:
		if track != nil {
			track.Number = readUint(payload)
		}
	case idTrackType:
		if track != nil {
			track.Type = readUint(payload)
		}
	case idCodecID:
		if track != nil {
			track.CodecID = ebmlString(payload)
		}
	case idCodecPrivate:
		if track != nil {
			track.CodecPrivate = payload
		}
	case idPixelWidth:
		if track != nil {
			track.Width = readUint(payload)
		}
	case idPixelHeight:
		if track != nil {
			track.Height = readUint(payload)
		}
	case idTagName:
		st.tagName = ebmlString(payload)
	case idTagString:
		if st.tagName != "" {
			st.frag.Tags[st.tagName] = ebmlString(payload)
		}
	case idTimecode:
		st.cluster = int64(readUint(payload))
	case idSimpleBlock, idBlock:
		frame, ok, err := r.parseBlock(st, payload, h.id == idSimpleBlock)
		if err != nil {
			return err
		}
		if ok {
			st.frag.Frames = append(st.frag.Frames, frame)
			if h.id == idBlock {
				st.groupFrame = len(st.frag.Frames) - 1
			}
		}
	case idReferenceBlk:
		if st.groupFrame >= 0 {
			st.frag.Frames[st.groupFrame].Keyframe = false
		}
	}
	return nil
}

func (r *Reader) parseBlock(st *fragmentState, p []byte, simple bool) (Frame, bool, error) {
	track, n, err := readVint(p)
	if err != nil {
		return Frame{}, false, err
	}
	if len(p) < n+3 {
		return Frame{}, false, fmt.Errorf("%w: block too short", ErrMalformed)
	}
	rel := int16(binary.BigEndian.Uint16(p[n : n+2]))
	flags := p[n+2]
	if flags&0x06 != 0 {
		// Laced blocks are not produced for video tracks.
		return Frame{}, false, nil
	}

	ticks := st.cluster + int64(rel)
	return Frame{
		Track:     track,
		Timestamp: time.Unix(0, ticks*int64(r.scale)).UTC(),
		Keyframe:  !simple || flags&0x80 != 0,
		Data:      p[n+3:],
	}, true, nil
}

func (r *Reader) finish(st *fragmentState) *Fragment {
	f := st.frag
	if st.sawTracks && len(f.Tracks) > 0 {
		r.tracks = f.Tracks
	} else {
		f.Tracks = r.tracks
	}

	f.Number = f.Tags[TagFragmentNumber]
	f.ContinuationToken = f.Tags[TagContinuationToken]
	f.ErrorCode = f.Tags[TagErrorCode]
	f.ProducerTimestamp = parseTagTime(f.Tags[TagProducerTimestamp])
	f.ServerTimestamp = parseTagTime(f.Tags[TagServerTimestamp])
	f.Bytes = r.offset() - st.startOffset
	return f
}

// offset is the number of bytes consumed from the stream so far.
func (r *Reader) offset() int64 {
	return r.src.n - int64(r.br.Buffered())
}

// parseTagTime parses the "seconds.millis" form KVS uses for timestamp tags.
func parseTagTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(int64(secs*1000 + 0.5)).UTC()
}

func ebmlString(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
