package ai

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.FragmentStream = (*sseStream)(nil)

var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// sseStream yields the data payloads of an OpenAI-style event stream.
// Comments, event names and blank separators are skipped.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool

	closeOnce sync.Once
	closeErr  error
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, reader: bufio.NewReader(body)}
}

// Recv returns the next data payload, io.EOF after [DONE], or an error
// wrapping domain.ErrStreamFailed when the stream breaks off early.
func (s *sseStream) Recv() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			if payload, ok := bytes.CutPrefix(line, dataPrefix); ok {
				payload = bytes.TrimSpace(payload)
				if bytes.Equal(payload, doneSentinel) {
					s.done = true
					return nil, io.EOF
				}
				if len(payload) > 0 {
					return payload, nil
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: stream ended before [DONE]", domain.ErrStreamFailed)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStreamFailed, err)
		}
	}
}

// Close closes the response body once
func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
