// Package audit records an append-only, hash-chained trail of every
// plan transition and deadline computation.
//
// Each event carries the SHA-256 digest of its canonical JSON form
// (RFC 8785) plus the digest of its predecessor, so any tampering or
// reordering is detectable by a single forward pass.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// EventType categorizes audit events.
type EventType string

const (
	EventDeadline   EventType = "DEADLINE"
	EventTransition EventType = "TRANSITION"
	EventExecution  EventType = "EXECUTION"
	EventPolicy     EventType = "POLICY"
)

// genesisHash anchors the first event of every chain.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ErrChainBroken is returned by Verify when the recomputed chain does
// not match the recorded one.
var ErrChainBroken = errors.New("audit chain broken")

// Event is one immutable audit record. Hash covers every field except
// Hash itself.
type Event struct {
	ID        string         `json:"id"`
	Seq       int            `json:"seq"`
	ActorID   string         `json:"actor_id"`
	Type      EventType      `json:"type"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash,omitempty"`
}

// Clock abstracts "now" for event timestamps.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Log is an in-process hash-chained audit log, safe for concurrent use.
type Log struct {
	mu     sync.RWMutex
	events []Event
	clock  Clock
}

// NewLog creates an empty log. A nil clock defaults to the wall clock.
func NewLog(clock Clock) *Log {
	if clock == nil {
		clock = wallClock{}
	}
	return &Log{clock: clock}
}

// Record appends one event and returns it with its position and hash
// filled in.
func (l *Log) Record(_ context.Context, actorID string, typ EventType, action, resource string, metadata map[string]any) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := genesisHash
	if n := len(l.events); n > 0 {
		prev = l.events[n-1].Hash
	}
	ev := Event{
		ID:        uuid.New().String(),
		Seq:       len(l.events),
		ActorID:   actorID,
		Type:      typ,
		Action:    action,
		Resource:  resource,
		Timestamp: l.clock.Now().UTC(),
		Metadata:  metadata,
		PrevHash:  prev,
	}
	hash, err := hashEvent(ev)
	if err != nil {
		return Event{}, err
	}
	ev.Hash = hash
	l.events = append(l.events, ev)
	return ev, nil
}

// Events returns a copy of the chain in append order.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Verify replays the chain and reports the first inconsistency: a
// recomputed hash that differs, or a prev_hash that does not point at
// its predecessor.
func (l *Log) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := genesisHash
	for i, ev := range l.events {
		if ev.PrevHash != prev {
			return fmt.Errorf("%w: event %d prev_hash mismatch", ErrChainBroken, i)
		}
		want, err := hashEvent(ev)
		if err != nil {
			return fmt.Errorf("%w: event %d not hashable: %v", ErrChainBroken, i, err)
		}
		if ev.Hash != want {
			return fmt.Errorf("%w: event %d content altered", ErrChainBroken, i)
		}
		prev = ev.Hash
	}
	return nil
}

// Export writes the chain as a JSON array, one canonical object per
// event, suitable for offline verification.
func (l *Log) Export() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	raw, err := json.Marshal(l.events)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// hashEvent digests the canonical form of the event with Hash cleared.
func hashEvent(ev Event) (string, error) {
	ev.Hash = ""
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal audit event: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit event: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
