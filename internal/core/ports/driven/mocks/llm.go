package mocks

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var _ driven.LLMService = (*MockLLMService)(nil)

// MockLLMService is a mock implementation of LLMService for testing.
// Every Stream call replays Fragments and then ends with io.EOF, unless
// EndErr is set, in which case EndErr is returned instead of the sentinel.
type MockLLMService struct {
	mu sync.Mutex

	Fragments []string
	EndErr    error
	Delay     time.Duration

	// StreamErr fails Stream before any fragment is produced.
	StreamErr error

	GenerateText string
	GenerateErr  error
	PingErr      error

	streamCalls   int
	generateCalls int
	lastMessages  []domain.ChatMessage
	lastOpts      domain.GenerateOptions
}

// NewMockLLMService creates a mock that streams the given raw fragments.
func NewMockLLMService(fragments ...string) *MockLLMService {
	return &MockLLMService{Fragments: fragments}
}

func (m *MockLLMService) Stream(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerateOptions) (driven.FragmentStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamCalls++
	m.lastMessages = slices.Clone(messages)
	m.lastOpts = opts
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	return &MockFragmentStream{
		fragments: slices.Clone(m.Fragments),
		endErr:    m.EndErr,
		delay:     m.Delay,
	}, nil
}

func (m *MockLLMService) Generate(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateCalls++
	m.lastMessages = slices.Clone(messages)
	m.lastOpts = opts
	return m.GenerateText, m.GenerateErr
}

func (m *MockLLMService) Model() string {
	return "mock-llm"
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockLLMService) Close() error {
	return nil
}

// StreamCalls returns how many streams were opened.
func (m *MockLLMService) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

// GenerateCalls returns how many non-streaming completions were requested.
func (m *MockLLMService) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// LastMessages returns the prompt of the most recent call.
func (m *MockLLMService) LastMessages() []domain.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lastMessages)
}

// MockFragmentStream replays a fixed list of fragments.
type MockFragmentStream struct {
	mu        sync.Mutex
	fragments []string
	endErr    error
	delay     time.Duration
	closed    bool
}

func (s *MockFragmentStream) Recv() ([]byte, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: stream closed", domain.ErrStreamFailed)
	}
	if len(s.fragments) == 0 {
		if s.endErr != nil {
			return nil, s.endErr
		}
		return nil, io.EOF
	}
	next := s.fragments[0]
	s.fragments = s.fragments[1:]
	return []byte(next), nil
}

func (s *MockFragmentStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// LastOptions returns the generation options of the most recent call.
func (m *MockLLMService) LastOptions() domain.GenerateOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}
