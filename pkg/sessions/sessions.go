// Package sessions persists flow runs between messages, so a contact's run
// can be picked up again when their next message arrives.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/excellent-lang/excellent/pkg/flows"
)

// ErrNotFound is returned when a session doesn't exist in a store.
var ErrNotFound = errors.New("session not found")

// Session is a serialized run waiting for input, stored together with the
// flow definition so the run can be restored without a flow lookup.
type Session struct {
	ID   string          `json:"id"`
	Flow json.RawMessage `json:"flow"`
	Run  json.RawMessage `json:"run"`
}

// NewSession serializes a run into a session with the given id, typically
// the contact URN the run belongs to.
func NewSession(id string, run *flows.RunState) (*Session, error) {
	runData, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("marshaling run state: %w", err)
	}
	return &Session{ID: id, Flow: run.Flow().Definition(), Run: runData}, nil
}

// Restore deserializes the flow and run state held in this session.
func (s *Session) Restore() (*flows.RunState, error) {
	flow, err := flows.ReadFlow(s.Flow)
	if err != nil {
		return nil, err
	}
	return flows.ReadRunState(flow, s.Run)
}

// Store saves and loads sessions. Implementations must return ErrNotFound
// from Load when no session exists with the given id.
type Store interface {
	Save(ctx context.Context, session *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}
