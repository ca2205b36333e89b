package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
)

const sessionKeyPrefix = "session/"

// BadgerStoreFactory creates message stores persisted in a KV.
type BadgerStoreFactory struct {
	kv      KV
	timeout time.Duration
	logger  *slog.Logger
}

// NewBadgerStoreFactory creates a factory backed by kv.
func NewBadgerStoreFactory(kv KV, logger *slog.Logger) *BadgerStoreFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStoreFactory{kv: kv, timeout: 5 * time.Second, logger: logger}
}

// SessionKey returns the storage key of a session's sequence state: a
// 128-bit murmur3 digest of the session ID, so arbitrary CompIDs map to
// fixed-size keys.
func SessionKey(id domain.SessionID) []byte {
	h1, h2 := murmur3.Sum128([]byte(id.String()))
	return fmt.Appendf([]byte(sessionKeyPrefix), "%016x%016x", h1, h2)
}

// persistedRecord carries the session name so that a digest collision is
// detected instead of silently sharing state.
type persistedRecord struct {
	Session string `json:"session"`
	seqRecord
}

func decodeRecord(name string, data []byte) (seqRecord, error) {
	var rec persistedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return seqRecord{}, fmt.Errorf("decode session %s: %w", name, err)
	}
	if rec.Session != name {
		return seqRecord{}, fmt.Errorf("session key collision: %s and %s", rec.Session, name)
	}
	return rec.seqRecord, nil
}

// Create loads the session's state, initializing it on first use.
func (f *BadgerStoreFactory) Create(id domain.SessionID) (MessageStore, error) {
	key := SessionKey(id)
	name := id.String()

	write := func(fn func(old seqRecord, found bool) seqRecord) (seqRecord, error) {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		var out seqRecord
		err := f.kv.Update(ctx, key, func(old []byte) ([]byte, error) {
			var cur seqRecord
			if old != nil {
				var err error
				if cur, err = decodeRecord(name, old); err != nil {
					return nil, err
				}
			}
			out = fn(cur, old != nil)
			return json.Marshal(persistedRecord{Session: name, seqRecord: out})
		})
		if err != nil {
			return seqRecord{}, fmt.Errorf("persist session %s: %w", name, err)
		}
		return out, nil
	}

	rec, err := write(func(old seqRecord, found bool) seqRecord {
		if found {
			return old
		}
		return newSeqRecord()
	})
	if err != nil {
		return nil, err
	}

	f.logger.Debug("message store opened",
		"session", name,
		"next_sender", rec.NextSender,
		"next_target", rec.NextTarget)

	return &seqStore{
		rec: rec,
		persist: func(r seqRecord) error {
			_, err := write(func(seqRecord, bool) seqRecord { return r })
			return err
		},
		load: func() (seqRecord, error) {
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			data, err := f.kv.Get(ctx, key)
			if err != nil {
				return seqRecord{}, fmt.Errorf("load session %s: %w", name, err)
			}
			return decodeRecord(name, data)
		},
	}, nil
}

// Sessions lists the session IDs with persisted state.
func (f *BadgerStoreFactory) Sessions(ctx context.Context) ([]string, error) {
	var names []string
	err := f.kv.Scan(ctx, []byte(sessionKeyPrefix), func(_, value []byte) bool {
		var rec persistedRecord
		if json.Unmarshal(value, &rec) == nil {
			names = append(names, rec.Session)
		}
		return true
	})
	return names, err
}
