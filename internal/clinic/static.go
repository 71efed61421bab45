package clinic

import (
	"context"
	"sync"
)

// StaticSource serves a fixed catalog and hours table from memory.
type StaticSource struct {
	mu         sync.RWMutex
	procedures []Procedure
	hours      map[int]DayHours
}

// NewStaticSource builds a source from the given tables.
func NewStaticSource(procedures []Procedure, hours []DayHours) *StaticSource {
	s := &StaticSource{
		procedures: append([]Procedure(nil), procedures...),
		hours:      make(map[int]DayHours, len(hours)),
	}
	for _, h := range hours {
		s.hours[h.Weekday] = h
	}
	return s
}

// NewDefaultSource serves DefaultProcedures and DefaultBusinessHours.
func NewDefaultSource() *StaticSource {
	return NewStaticSource(DefaultProcedures(), DefaultBusinessHours())
}

func (s *StaticSource) Procedure(_ context.Context, code string) (Procedure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.procedures {
		if p.Code == code {
			return p, nil
		}
	}
	return Procedure{}, ErrNotFound
}

func (s *StaticSource) Procedures(_ context.Context) ([]Procedure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Procedure(nil), s.procedures...), nil
}

func (s *StaticSource) BusinessHours(_ context.Context, weekday int) (DayHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hours[weekday]
	if !ok {
		return DayHours{}, ErrNotFound
	}
	return h, nil
}

// SetBusinessHours replaces the hours for one weekday.
func (s *StaticSource) SetBusinessHours(h DayHours) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hours[h.Weekday] = h
}
