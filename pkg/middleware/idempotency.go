package middleware

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	apperrors "fleetbook/pkg/errors"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	IdempotentReplayHeader = "Idempotent-Replayed"
)

// IdempotencyStore hands out one claim per key. While a claim is held, other
// callers receive a channel that is closed when the claim is released.
type IdempotencyStore interface {
	Claim(key string) (cached *CachedResponse, pending <-chan struct{}, claimed bool)
	Release(key string, response *CachedResponse)
	Stop()
}

type CachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	CreatedAt  time.Time
}

type InMemoryIdempotencyStore struct {
	mu       sync.Mutex
	store    map[string]*CachedResponse
	inFlight map[string]chan struct{}
	ttl      time.Duration
	stopCh chan struct{}
	once   sync.Once
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		store:    make(map[string]*CachedResponse),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
	go s.cleanup(min(ttl, time.Hour))
	return s
}

// Claim returns the stored response if one is still fresh. Otherwise the
// first caller claims the key and later callers get the pending channel.
func (s *InMemoryIdempotencyStore) Claim(key string) (*CachedResponse, <-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if response, exists := s.store[key]; exists {
		if time.Since(response.CreatedAt) <= s.ttl {
			return response, nil, false
		}
		delete(s.store, key)
	}
	if pending, exists := s.inFlight[key]; exists {
		return nil, pending, false
	}
	s.inFlight[key] = make(chan struct{})
	return nil, nil, true
}

// Release stores the response when it is non-nil and wakes every waiter.
func (s *InMemoryIdempotencyStore) Release(key string, response *CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if response != nil {
		response.CreatedAt = time.Now()
		s.store[key] = response
	}
	if pending, exists := s.inFlight[key]; exists {
		close(pending)
		delete(s.inFlight, key)
	}
}

func (s *InMemoryIdempotencyStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for key, response := range s.store {
				if time.Since(response.CreatedAt) > s.ttl {
					delete(s.store, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated POST carrying the
// same Idempotency-Key on the same path. Only 2xx responses are stored, so a
// client may retry a booking that failed with NO_AVAILABILITY. A duplicate
// that arrives while the first request is still running waits for it.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			scoped := r.Method + " " + r.URL.Path + " " + key

			for {
				cached, pending, claimed := store.Claim(scoped)
				if cached != nil {
					replay(w, cached)
					return
				}
				if claimed {
					break
				}
				select {
				case <-pending:
				case <-r.Context().Done():
					writeAppError(w, apperrors.Conflict("a request with this Idempotency-Key is still in progress"))
					return
				}
			}

			var response *CachedResponse
			defer func() { store.Release(scoped, response) }()

			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				headers := w.Header().Clone()
				headers.Del(RequestIDHeader)
				response = &CachedResponse{
					StatusCode: capture.statusCode,
					Headers:    headers,
					Body:       capture.body.Bytes(),
				}
			}
		})
	}
}

func replay(w http.ResponseWriter, cached *CachedResponse) {
	for k, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(k, value)
		}
	}
	w.Header().Set(IdempotentReplayHeader, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
