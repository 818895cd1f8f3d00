package message

import (
	"context"
	"sort"
	"sync"

	"relaybot/internal/transport"
)

// memoryStore keeps everything in process memory. It is the default backend
// and the one tests run against.
type memoryStore struct {
	mu      sync.RWMutex
	ads     map[string]Ad
	targets map[string]TargetList
}

func NewMemoryStore() Store {
	return &memoryStore{
		ads:     map[string]Ad{},
		targets: map[string]TargetList{},
	}
}

func (s *memoryStore) SaveAd(_ context.Context, ad Ad) error {
	s.mu.Lock()
	s.ads[ad.Name] = ad
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) GetAd(_ context.Context, name string) (Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ad, ok := s.ads[name]
	if !ok {
		return Ad{}, ErrNotFound
	}
	return ad, nil
}

func (s *memoryStore) ListAds(_ context.Context) ([]Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Ad, 0, len(s.ads))
	for _, ad := range s.ads {
		out = append(out, ad)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryStore) DeleteAd(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ads[name]; !ok {
		return ErrNotFound
	}
	delete(s.ads, name)
	return nil
}

func (s *memoryStore) SaveTargetList(_ context.Context, tl TargetList) error {
	// Copy so callers can't mutate the stored slice afterwards.
	tl.Targets = append([]transport.ChatTarget(nil), tl.Targets...)
	s.mu.Lock()
	s.targets[tl.Name] = tl
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) GetTargetList(_ context.Context, name string) (TargetList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tl, ok := s.targets[name]
	if !ok {
		return TargetList{}, ErrNotFound
	}
	tl.Targets = append([]transport.ChatTarget(nil), tl.Targets...)
	return tl, nil
}

func (s *memoryStore) ListTargetLists(_ context.Context) ([]TargetList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TargetList, 0, len(s.targets))
	for _, tl := range s.targets {
		tl.Targets = append([]transport.ChatTarget(nil), tl.Targets...)
		out = append(out, tl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryStore) DeleteTargetList(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[name]; !ok {
		return ErrNotFound
	}
	delete(s.targets, name)
	return nil
}

func (s *memoryStore) Close() error { return nil }
