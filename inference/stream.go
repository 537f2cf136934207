package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrStreamRead reports a failed frame read. The loop treats it as
// transient: the stream is released and reacquired after a backoff.
var ErrStreamRead = errors.New("failed to read frame from stream")

// Frame is a single decoded video frame.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// Stream yields frames from a live video source.
type Stream interface {
	// Read blocks until the next frame is available. A failed read
	// returns an error wrapping ErrStreamRead; the stream must be
	// released and reopened afterwards.
	Read(ctx context.Context) (Frame, error)
	// Release closes the underlying source. Safe to call more than once.
	Release() error
}

// Opener acquires a stream from a source. The loop calls it again after
// every release, so implementations must be reusable.
type Opener func(ctx context.Context) (Stream, error)

const defaultReadTimeout = 30 * time.Second

// NewMJPEGOpener returns an Opener for an HTTP MJPEG (multipart/x-mixed-replace)
// source such as an IP camera endpoint.
func NewMJPEGOpener(url string) Opener {
	return func(ctx context.Context) (Stream, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build stream request for %s: %w", url, err)
		}

		client := &http.Client{Timeout: 0}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to open stream %s: %w", url, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()

			return nil, fmt.Errorf("stream %s returned status %d", url, resp.StatusCode)
		}

		mediaType, mtParams, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/x-mixed-replace" || mtParams["boundary"] == "" {
			resp.Body.Close()

			return nil, fmt.Errorf("stream %s is not an MJPEG source: content type %q", url, resp.Header.Get("Content-Type"))
		}

		return &mjpegStream{
			body:   resp.Body,
			reader: multipart.NewReader(resp.Body, mtParams["boundary"]),
		}, nil
	}
}

type mjpegStream struct {
	body   io.ReadCloser
	reader *multipart.Reader
	closed bool
}

func (s *mjpegStream) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	part, err := s.reader.NextPart()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s", ErrStreamRead, err.Error())
	}
	defer part.Close()

	img, err := jpeg.Decode(part)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s", ErrStreamRead, err.Error())
	}

	return Frame{Image: img, CapturedAt: time.Now().UTC()}, nil
}

func (s *mjpegStream) Release() error {
	if s.closed {
		return nil
	}
	s.closed = true

	return s.body.Close()
}
