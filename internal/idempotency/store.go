package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "booking:idem:"

// Result is what a finished booking-creation attempt left behind; duplicates
// within the TTL replay it instead of opening a second checkout session.
type Result struct {
	State        string `json:"state"` // in_flight | done | conflict
	SessionRef   string `json:"session_ref,omitempty"`
	AuthorizeURI string `json:"authorize_uri,omitempty"`
	BookingID    string `json:"booking_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

const (
	StateInFlight = "in_flight"
	StateDone     = "done"
	StateConflict = "conflict"
)

// Store is a shared, TTL-bounded dedupe for booking-creation requests. Redis
// makes first-writer-wins hold across every engine instance, not one process.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func Connect(redisURL string, ttl time.Duration) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Store{client: redis.NewClient(opt), ttl: ttl}, nil
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// RegisterOrFetch claims the key for the caller. claimed=true means this
// caller is the first writer and must later call Complete (or Release on
// infrastructure failure). Otherwise prior holds whatever the winner left,
// including an in-flight marker.
func (s *Store) RegisterOrFetch(ctx context.Context, key string) (prior *Result, claimed bool, err error) {
	raw, err := json.Marshal(Result{State: StateInFlight})
	if err != nil {
		return nil, false, err
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+key, raw, s.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}

	got, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Winner's entry expired between SetNX and Get; treat as in flight.
			return &Result{State: StateInFlight}, false, nil
		}
		return nil, false, err
	}
	var r Result
	if err := json.Unmarshal(got, &r); err != nil {
		return nil, false, err
	}
	return &r, false, nil
}

// Complete stores the winner's outcome, keeping the remaining TTL so the
// dedupe window is measured from the first request.
func (s *Store) Complete(ctx context.Context, key string, r Result) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, raw, redis.KeepTTL).Err()
}

// Release drops the in-flight claim so a retry can start over. Used when the
// winner failed before anything externally visible happened.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}
