// Package session tracks what each requester is currently doing. State
// lives in memory only: in-flight conversations do not survive a
// restart, matching the rest of the pipeline.
package session

import (
	"sync"
	"time"

	"github.com/pdfscribe/pdfscribe/internal/extract"
)

// State is one of the per-requester conversation states. Exactly one is
// active per requester at any time.
type State int

const (
	// StateIdle is the default; unknown requesters are Idle.
	StateIdle State = iota
	// StateAwaitingFile: the requester declared upload intent and the
	// next document is accepted.
	StateAwaitingFile
	// StateAwaitingComment: the requester opted to leave free-text
	// feedback for a conversion; the next text message is the comment.
	StateAwaitingComment
)

func (s State) String() string {
	switch s {
	case StateAwaitingFile:
		return "awaiting_file"
	case StateAwaitingComment:
		return "awaiting_comment"
	default:
		return "idle"
	}
}

// PendingScan is an oversized scanned document parked until the
// requester chooses how to process it. At most one per requester.
type PendingScan struct {
	Doc        extract.Document
	TotalPages int
	Created    time.Time
}

type entry struct {
	state        State
	conversionID string // set only in StateAwaitingComment
	touched      time.Time
}

// Store is the keyed session map shared across all requesters. All
// methods are safe for concurrent use; expiry is lazy, applied when a
// key is next read.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]entry
	pending  map[int64]PendingScan

	awaitingFileTTL time.Duration
	pendingScanTTL  time.Duration
	now             func() time.Time
}

func NewStore(awaitingFileTTL, pendingScanTTL time.Duration) *Store {
	return &Store{
		sessions:        make(map[int64]entry),
		pending:         make(map[int64]PendingScan),
		awaitingFileTTL: awaitingFileTTL,
		pendingScanTTL:  pendingScanTTL,
		now:             time.Now,
	}
}

// State returns the requester's current state, expiring a stale
// AwaitingFile back to Idle on the way.
func (s *Store) State(requester int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(requester)
}

func (s *Store) stateLocked(requester int64) State {
	e, ok := s.sessions[requester]
	if !ok {
		return StateIdle
	}
	if e.state == StateAwaitingFile && s.awaitingFileTTL > 0 &&
		s.now().Sub(e.touched) > s.awaitingFileTTL {
		delete(s.sessions, requester)
		return StateIdle
	}
	return e.state
}

// SetAwaitingFile records upload intent, replacing whatever state the
// requester had.
func (s *Store) SetAwaitingFile(requester int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[requester] = entry{state: StateAwaitingFile, touched: s.now()}
}

// SetAwaitingComment arms the free-text feedback capture for one
// conversion.
func (s *Store) SetAwaitingComment(requester int64, conversionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[requester] = entry{
		state:        StateAwaitingComment,
		conversionID: conversionID,
		touched:      s.now(),
	}
}

// Reset returns the requester to Idle and drops any parked scan.
func (s *Store) Reset(requester int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, requester)
	delete(s.pending, requester)
}

// TakeComment consumes an armed comment capture. ok is false when the
// requester is not awaiting a comment.
func (s *Store) TakeComment(requester int64) (conversionID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, present := s.sessions[requester]
	if !present || e.state != StateAwaitingComment {
		return "", false
	}
	delete(s.sessions, requester)
	return e.conversionID, true
}

// ParkScan holds an oversized scan awaiting the requester's choice,
// superseding any previous one.
func (s *Store) ParkScan(requester int64, doc extract.Document, totalPages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[requester] = PendingScan{Doc: doc, TotalPages: totalPages, Created: s.now()}
}

// TakeScan removes and returns the requester's parked scan. Expired
// scans are dropped here, on next access.
func (s *Store) TakeScan(requester int64) (PendingScan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[requester]
	if !ok {
		return PendingScan{}, false
	}
	delete(s.pending, requester)
	if s.pendingScanTTL > 0 && s.now().Sub(p.Created) > s.pendingScanTTL {
		return PendingScan{}, false
	}
	return p, true
}
