// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package session keeps front-end sessions and their pending UI commands in
// process memory. Idle sessions expire.
package session

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter"

	"github.com/jllopis/canvasrelay/pkg/errors"
)

// Command types the front-end knows how to apply.
const (
	CommandSetView        = "set_view"
	CommandRefreshWeather = "refresh_weather"
)

const (
	DefaultTTL      = 30 * time.Minute
	DefaultCapacity = 10000
	DefaultMaxQueue = 100
)

// Command is a UI action queued for the front-end.
type Command struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Session is a snapshot of one front-end session.
type Session struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	State     map[string]any `json:"state"`
	Commands  []Command      `json:"commands"`
}

func (s *Session) clone() *Session {
	out := *s
	out.State = maps.Clone(s.State)
	if out.State == nil {
		out.State = map[string]any{}
	}
	out.Commands = append([]Command{}, s.Commands...)
	return &out
}

// Store holds sessions. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions otter.Cache[string, *Session]
	maxQueue int
	now      func() time.Time
}

// Option configures a Store.
type Option func(*config)

type config struct {
	ttl      time.Duration
	capacity int
	maxQueue int
	now      func() time.Time
}

// WithTTL sets how long an untouched session lives.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithCapacity bounds the number of live sessions.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithMaxQueue bounds the pending commands per session; the oldest are dropped.
func WithMaxQueue(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxQueue = n
		}
	}
}

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// NewStore creates a Store.
func NewStore(opts ...Option) (*Store, error) {
	cfg := &config{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		maxQueue: DefaultMaxQueue,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	cache, err := otter.MustBuilder[string, *Session](cfg.capacity).
		WithTTL(cfg.ttl).
		Build()
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to build session store", err)
	}
	return &Store{sessions: cache, maxQueue: cfg.maxQueue, now: cfg.now}, nil
}

// Close releases the store.
func (s *Store) Close() {
	s.sessions.Close()
}

// Create starts a session with an optional initial state.
func (s *Store) Create(state map[string]any) *Session {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		State:     maps.Clone(state),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Set(sess.ID, sess)
	return sess.clone()
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, errors.NewNotFound("session", id)
	}
	return sess.clone(), nil
}

// UpdateState merges state into the session state.
func (s *Store) UpdateState(id string, state map[string]any) (*Session, error) {
	return s.update(id, func(sess *Session) error {
		if sess.State == nil {
			sess.State = map[string]any{}
		}
		maps.Copy(sess.State, state)
		return nil
	})
}

// Enqueue appends a command to the session queue.
func (s *Store) Enqueue(id string, cmd Command) (Command, error) {
	switch cmd.Type {
	case CommandSetView, CommandRefreshWeather:
	case "":
		return Command{}, errors.NewInvalidInput("command type is required")
	default:
		return Command{}, errors.NewInvalidInput("unknown command type "+cmd.Type).
			WithContext("type", cmd.Type)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	cmd.CreatedAt = s.now()

	_, err := s.update(id, func(sess *Session) error {
		sess.Commands = append(sess.Commands, cmd)
		if over := len(sess.Commands) - s.maxQueue; over > 0 {
			sess.Commands = append([]Command(nil), sess.Commands[over:]...)
		}
		if cmd.Type == CommandSetView {
			if view, ok := cmd.Payload["view"]; ok {
				if sess.State == nil {
					sess.State = map[string]any{}
				}
				sess.State["view"] = view
			}
		}
		return nil
	})
	if err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Drain returns and clears the pending commands, oldest first.
func (s *Store) Drain(id string) ([]Command, error) {
	var out []Command
	_, err := s.update(id, func(sess *Session) error {
		out = sess.Commands
		sess.Commands = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Command{}
	}
	return out, nil
}

func (s *Store) update(id string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, errors.NewNotFound("session", id)
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.UpdatedAt = s.now()
	// Re-setting restarts the TTL.
	s.sessions.Set(id, sess)
	return sess.clone(), nil
}
