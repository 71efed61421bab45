package llm

import (
	"context"
	"sync"
)

// StubClient answers every request with Reply, or Err when set. Used when no
// provider is configured and in tests.
type StubClient struct {
	Reply string
	Err   error

	mu       sync.Mutex
	requests []Request
}

func (s *StubClient) Complete(_ context.Context, req Request) (Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.Err != nil {
		return Response{}, s.Err
	}
	return Response{Text: s.Reply}, nil
}

// Requests returns the requests seen so far.
func (s *StubClient) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
