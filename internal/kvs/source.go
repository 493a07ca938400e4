package kvs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideoarchivedmedia"
	archivetypes "github.com/aws/aws-sdk-go-v2/service/kinesisvideoarchivedmedia/types"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideomedia"
	mediatypes "github.com/aws/aws-sdk-go-v2/service/kinesisvideomedia/types"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/mkv"
	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// FragmentSource yields fragments in the order frames should be visited.
// Next returns io.EOF when no fragments remain.
type FragmentSource interface {
	Next(ctx context.Context) (*mkv.Fragment, error)
	Close() error
}

// LiveSource reads the live edge of a stream with GetMedia. After a broken
// read it reconnects from the last continuation token.
type LiveSource struct {
	api       MediaAPI
	streamARN string

	body   io.ReadCloser
	reader *mkv.Reader
	token  string
}

// NewLiveSource returns a source starting at the stream's current position.
func NewLiveSource(api MediaAPI, streamARN string) *LiveSource {
	return &LiveSource{api: api, streamARN: streamARN}
}

func (s *LiveSource) open(ctx context.Context) error {
	selector := &mediatypes.StartSelector{StartSelectorType: mediatypes.StartSelectorTypeNow}
	if s.token != "" {
		selector = &mediatypes.StartSelector{
			StartSelectorType: mediatypes.StartSelectorTypeContinuationToken,
			ContinuationToken: aws.String(s.token),
		}
	}

	out, err := s.api.GetMedia(ctx, &kinesisvideomedia.GetMediaInput{
		StreamARN:     aws.String(s.streamARN),
		StartSelector: selector,
	})
	if err != nil {
		return fmt.Errorf("GetMedia %s: %w", selector.StartSelectorType, err)
	}

	log.Debug().
		Str("selector", string(selector.StartSelectorType)).
		Str("contentType", aws.ToString(out.ContentType)).
		Msg("Media stream opened")

	s.body = out.Payload
	s.reader = mkv.NewReader(out.Payload)
	return nil
}

// Next returns the next fragment from the live stream.
func (s *LiveSource) Next(ctx context.Context) (*mkv.Fragment, error) {
	if s.reader == nil {
		if err := s.open(ctx); err != nil {
			return nil, err
		}
	}

	frag, err := s.reader.Next()
	if err != nil {
		s.Close()
		return nil, err
	}
	if frag.ContinuationToken != "" {
		s.token = frag.ContinuationToken
	}
	if frag.ErrorCode != "" {
		s.Close()
		return nil, streamError(frag)
	}
	return frag, nil
}

// Close releases the current connection. A later Next reconnects.
func (s *LiveSource) Close() error {
	var err error
	if s.body != nil {
		err = s.body.Close()
	}
	s.body = nil
	s.reader = nil
	return err
}

// ArchiveSource walks archived fragments backward from the newest one in a
// producer-time window, with frames inside each fragment newest first.
type ArchiveSource struct {
	api        ArchiveAPI
	streamARN  string
	start, end time.Time

	listed    bool
	fragments []string
	pos       int
}

// NewArchiveSource returns a source over fragments produced in [start, end].
func NewArchiveSource(api ArchiveAPI, streamARN string, start, end time.Time) *ArchiveSource {
	return &ArchiveSource{api: api, streamARN: streamARN, start: start, end: end}
}

func (s *ArchiveSource) list(ctx context.Context) error {
	type listed struct {
		number   string
		producer time.Time
	}
	var all []listed

	input := &kinesisvideoarchivedmedia.ListFragmentsInput{
		StreamARN:  aws.String(s.streamARN),
		MaxResults: aws.Int64(1000),
		FragmentSelector: &archivetypes.FragmentSelector{
			FragmentSelectorType: archivetypes.FragmentSelectorTypeProducerTimestamp,
			TimestampRange: &archivetypes.TimestampRange{
				StartTimestamp: aws.Time(s.start),
				EndTimestamp:   aws.Time(s.end),
			},
		},
	}
	for {
		out, err := s.api.ListFragments(ctx, input)
		if err != nil {
			return fmt.Errorf("ListFragments: %w", err)
		}
		for _, f := range out.Fragments {
			all = append(all, listed{number: aws.ToString(f.FragmentNumber), producer: aws.ToTime(f.ProducerTimestamp)})
		}
		if out.NextToken == nil || aws.ToString(out.NextToken) == "" {
			break
		}
		input.NextToken = out.NextToken
		input.FragmentSelector = nil
	}

	// ListFragments returns fragments in no particular order.
	sort.SliceStable(all, func(i, j int) bool { return all[i].producer.After(all[j].producer) })
	s.fragments = make([]string, len(all))
	for i, f := range all {
		s.fragments[i] = f.number
	}
	s.listed = true

	log.Info().
		Int("fragments", len(s.fragments)).
		Time("from", s.start).
		Time("to", s.end).
		Msg("Archived fragments listed")
	return nil
}

// Next fetches the next older fragment.
func (s *ArchiveSource) Next(ctx context.Context) (*mkv.Fragment, error) {
	if !s.listed {
		if err := s.list(ctx); err != nil {
			return nil, err
		}
	}
	if s.pos >= len(s.fragments) {
		return nil, io.EOF
	}

	number := s.fragments[s.pos]
	out, err := s.api.GetMediaForFragmentList(ctx, &kinesisvideoarchivedmedia.GetMediaForFragmentListInput{
		StreamARN: aws.String(s.streamARN),
		Fragments: []string{number},
	})
	if err != nil {
		return nil, fmt.Errorf("GetMediaForFragmentList %s: %w", number, err)
	}
	defer out.Payload.Close()

	frag, err := mkv.NewReader(out.Payload).Next()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("fragment %s: %w", number, io.ErrUnexpectedEOF)
	}
	if err != nil {
		return nil, fmt.Errorf("fragment %s: %w", number, err)
	}
	if frag.ErrorCode != "" {
		return nil, streamError(frag)
	}
	if frag.Number == "" {
		frag.Number = number
	}

	s.pos++
	frag.Frames = frag.Reversed()
	return frag, nil
}

// Close is a no-op; each fragment is fetched with its own request.
func (s *ArchiveSource) Close() error {
	return nil
}

// streamError converts an in-band KVS error tag into a classified error.
// 4xxx codes are client-side (4500-4504 are KMS permission problems),
// 5xxx are service-side and worth retrying.
func streamError(frag *mkv.Fragment) error {
	kind := result.KindUnknown
	code := frag.ErrorCode
	switch {
	case len(code) == 4 && code[0] == '5':
		kind = result.KindTransient
	case code >= "4500" && code <= "4504":
		kind = result.KindCredentials
	}
	return result.Errorf(kind, "kvs.stream", "stream error %s (id %s)", code, frag.Tags[mkv.TagErrorID])
}
