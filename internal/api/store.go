package api

import (
	"sync"

	"github.com/samcharles93/captioner/internal/metrics"
)

// CaptionStore keeps generated captions in memory so clients can fetch them
// again by ID.
type CaptionStore struct {
	mu       sync.Mutex
	captions map[string]CaptionResponse
	limit    int
	order    []string
}

// NewCaptionStore returns a store holding at most limit records. The oldest
// record is evicted first. A limit of 0 keeps everything.
func NewCaptionStore(limit int) *CaptionStore {
	return &CaptionStore{
		captions: make(map[string]CaptionResponse),
		limit:    limit,
	}
}

func (s *CaptionStore) Save(resp CaptionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.captions[resp.ID]; !ok {
		s.order = append(s.order, resp.ID)
	}
	s.captions[resp.ID] = resp
	for s.limit > 0 && len(s.order) > s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.captions, oldest)
	}
	metrics.StoredCaptions.Set(float64(len(s.captions)))
}

func (s *CaptionStore) Get(id string) (CaptionResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.captions[id]
	return resp, ok
}

func (s *CaptionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.captions[id]; !ok {
		return false
	}
	delete(s.captions, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	metrics.StoredCaptions.Set(float64(len(s.captions)))
	return true
}

func (s *CaptionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captions)
}
