package filehandler

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// ErrBadCodecPrivate is returned when an avcC record cannot be parsed.
var ErrBadCodecPrivate = errors.New("invalid AVC decoder configuration record")

// avcConfig is the parsed AVCDecoderConfigurationRecord (ISO 14496-15).
type avcConfig struct {
	lengthSize int
	sps        [][]byte
	pps        [][]byte
}

func parseAVCC(b []byte) (*avcConfig, error) {
	if len(b) < 7 || b[0] != 1 {
		return nil, ErrBadCodecPrivate
	}
	cfg := &avcConfig{lengthSize: int(b[4]&0x03) + 1}

	pos := 6
	readSet := func(count int) ([][]byte, error) {
		var out [][]byte
		for i := 0; i < count; i++ {
			if pos+2 > len(b) {
				return nil, ErrBadCodecPrivate
			}
			n := int(binary.BigEndian.Uint16(b[pos:]))
			pos += 2
			if pos+n > len(b) {
				return nil, ErrBadCodecPrivate
			}
			out = append(out, b[pos:pos+n])
			pos += n
		}
		return out, nil
	}

	var err error
	if cfg.sps, err = readSet(int(b[5] & 0x1F)); err != nil {
		return nil, err
	}
	if pos >= len(b) {
		return nil, ErrBadCodecPrivate
	}
	numPPS := int(b[pos])
	pos++
	if cfg.pps, err = readSet(numPPS); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToAnnexB converts a length-prefixed (AVCC) access unit into an Annex-B byte
// stream with SPS and PPS from codecPrivate prepended. Samples already in
// Annex-B form, or without codec private data, are returned unchanged.
func ToAnnexB(codecPrivate, sample []byte) ([]byte, error) {
	if len(codecPrivate) == 0 || isAnnexB(sample) {
		return sample, nil
	}

	cfg, err := parseAVCC(codecPrivate)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, nal := range cfg.sps {
		buf.Write(annexBStartCode)
		buf.Write(nal)
	}
	for _, nal := range cfg.pps {
		buf.Write(annexBStartCode)
		buf.Write(nal)
	}

	for pos := 0; pos < len(sample); {
		if pos+cfg.lengthSize > len(sample) {
			return nil, fmt.Errorf("truncated NAL length at offset %d", pos)
		}
		var n int
		for i := 0; i < cfg.lengthSize; i++ {
			n = n<<8 | int(sample[pos+i])
		}
		pos += cfg.lengthSize
		if n == 0 || pos+n > len(sample) {
			return nil, fmt.Errorf("invalid NAL length %d at offset %d", n, pos)
		}
		buf.Write(annexBStartCode)
		buf.Write(sample[pos : pos+n])
		pos += n
	}
	return buf.Bytes(), nil
}

func isAnnexB(b []byte) bool {
	return bytes.HasPrefix(b, annexBStartCode) || bytes.HasPrefix(b, annexBStartCode[1:])
}
