package storage

import (
	"sync"
	"time"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
	"github.com/sudheendrakatikar/exsim/pkg/cmap"
)

// MessageStore holds the sequence-number state of one FIX session.
//
// Message bodies are not journaled; a store only remembers which sequence
// numbers come next and when the session state was created.
type MessageStore interface {
	// NextSenderMsgSeqNum returns the sequence number of the next outbound message.
	NextSenderMsgSeqNum() int

	// NextTargetMsgSeqNum returns the sequence number expected on the next inbound message.
	NextTargetMsgSeqNum() int

	SetNextSenderMsgSeqNum(next int) error
	SetNextTargetMsgSeqNum(next int) error
	IncrNextSenderMsgSeqNum() error
	IncrNextTargetMsgSeqNum() error

	// CreationTime returns when the current sequence state was created.
	CreationTime() time.Time

	// Reset restarts both sequences at 1 with a new creation time.
	Reset() error

	// Refresh reloads the state from the backing storage.
	Refresh() error

	Close() error
}

// Factory creates the message store of a session.
type Factory interface {
	Create(id domain.SessionID) (MessageStore, error)
}

// seqRecord is the persisted state of a MessageStore.
type seqRecord struct {
	NextSender   int       `json:"next_sender"`
	NextTarget   int       `json:"next_target"`
	CreationTime time.Time `json:"creation_time"`
}

func newSeqRecord() seqRecord {
	return seqRecord{NextSender: 1, NextTarget: 1, CreationTime: time.Now().UTC()}
}

// seqStore implements MessageStore over a persist function. Every
// mutation is persisted before it becomes visible.
type seqStore struct {
	mu      sync.RWMutex
	rec     seqRecord
	persist func(seqRecord) error
	load    func() (seqRecord, error)
	close   func() error
}

func (s *seqStore) NextSenderMsgSeqNum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.NextSender
}

func (s *seqStore) NextTargetMsgSeqNum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.NextTarget
}

func (s *seqStore) SetNextSenderMsgSeqNum(next int) error {
	return s.update(func(r *seqRecord) { r.NextSender = next })
}

func (s *seqStore) SetNextTargetMsgSeqNum(next int) error {
	return s.update(func(r *seqRecord) { r.NextTarget = next })
}

func (s *seqStore) IncrNextSenderMsgSeqNum() error {
	return s.update(func(r *seqRecord) { r.NextSender++ })
}

func (s *seqStore) IncrNextTargetMsgSeqNum() error {
	return s.update(func(r *seqRecord) { r.NextTarget++ })
}

func (s *seqStore) CreationTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.CreationTime
}

func (s *seqStore) Reset() error {
	return s.update(func(r *seqRecord) { *r = newSeqRecord() })
}

func (s *seqStore) Refresh() error {
	if s.load == nil {
		return nil
	}
	rec, err := s.load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()
	return nil
}

func (s *seqStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func (s *seqStore) update(fn func(*seqRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.rec
	fn(&next)
	if s.persist != nil {
		if err := s.persist(next); err != nil {
			return err
		}
	}
	s.rec = next
	return nil
}

// MemoryStoreFactory creates stores that live only for the process
// lifetime. State is kept per SessionID, so a session that reconnects
// continues its sequences; closing a store does not discard it.
type MemoryStoreFactory struct {
	stores *cmap.Map[domain.SessionID, *seqStore]
}

// NewMemoryStoreFactory creates a MemoryStoreFactory.
func NewMemoryStoreFactory() *MemoryStoreFactory {
	return &MemoryStoreFactory{stores: cmap.New[domain.SessionID, *seqStore]()}
}

// Create returns the store of id, starting at sequence 1 the first time
// id is seen.
func (f *MemoryStoreFactory) Create(id domain.SessionID) (MessageStore, error) {
	s, _ := f.stores.GetOrSet(id, &seqStore{rec: newSeqRecord()})
	return s, nil
}
