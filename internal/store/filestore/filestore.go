// Package filestore persists the ledger as one JSON document per chat
// group, replaced atomically via a temporary file and rename. The whole
// working set is held in memory; files exist so a restart or crash
// recovers exactly the committed records.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tallyops/settlebook/internal/ledger"
)

const (
	chatFilePrefix = "chat_"
	chatFileSuffix = ".json"
	adminsFile     = "admins.json"
)

// Store implements ledger.Store on top of a data directory.
type Store struct {
	dir string

	mu     sync.RWMutex           // guards chats, admins, nextID, refs, txChat
	chats  map[int64]*chatState   // keyed by chat id
	admins map[int64]*ledger.Admin
	refs   map[string]int64 // external_ref -> transaction id
	txChat map[int64]int64  // transaction id -> chat id
	nextID int64
}

type chatState struct {
	mu sync.RWMutex // guards Config and Txs; may be held while briefly taking store.mu

	Config *ledger.GroupConfig   `json:"config"`
	Txs    []*ledger.Transaction `json:"transactions"`
}

// Open loads (or initializes) a store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		dir:    dir,
		chats:  make(map[int64]*chatState),
		admins: make(map[int64]*ledger.Admin),
		refs:   make(map[string]int64),
		txChat: make(map[int64]int64),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read data dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		switch {
		case name == adminsFile:
			var admins []*ledger.Admin
			if err := readJSON(filepath.Join(s.dir, name), &admins); err != nil {
				return fmt.Errorf("load admins: %w", err)
			}
			for _, a := range admins {
				s.admins[a.UserID] = a
			}

		case strings.HasPrefix(name, chatFilePrefix) && strings.HasSuffix(name, chatFileSuffix):
			idStr := strings.TrimSuffix(strings.TrimPrefix(name, chatFilePrefix), chatFileSuffix)
			chatID, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				continue // not one of ours
			}

			cs := &chatState{}
			if err := readJSON(filepath.Join(s.dir, name), cs); err != nil {
				return fmt.Errorf("load chat %d: %w", chatID, err)
			}
			if cs.Config == nil {
				cs.Config = ledger.DefaultGroupConfig(chatID)
			}
			s.chats[chatID] = cs

			for _, tx := range cs.Txs {
				s.txChat[tx.ID] = chatID
				if tx.ExternalRef != nil {
					s.refs[*tx.ExternalRef] = tx.ID
				}
				if tx.ID > s.nextID {
					s.nextID = tx.ID
				}
			}
		}
	}

	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeFileAtomic writes data to a temporary file in the same directory
// and renames it over path, so readers and crash recovery see either the
// old or the new content, never a partial write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func (s *Store) chatPath(chatID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d%s", chatFilePrefix, chatID, chatFileSuffix))
}

// persistChat must be called with cs.mu held (at least for reading).
func (s *Store) persistChat(chatID int64, cs *chatState) error {
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chat %d: %w", chatID, err)
	}
	if err := writeFileAtomic(s.chatPath(chatID), data); err != nil {
		return fmt.Errorf("persist chat %d: %w", chatID, err)
	}
	return nil
}

func (s *Store) persistAdmins() error {
	admins := make([]*ledger.Admin, 0, len(s.admins))
	for _, a := range s.admins {
		admins = append(admins, a)
	}
	data, err := json.MarshalIndent(admins, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal admins: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, adminsFile), data); err != nil {
		return fmt.Errorf("persist admins: %w", err)
	}
	return nil
}

// chat returns the chat's state, creating it (with the default config)
// on first access. Caller must not hold s.mu.
func (s *Store) chat(chatID int64) *chatState {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.chats[chatID]
	if !ok {
		cs = &chatState{Config: ledger.DefaultGroupConfig(chatID)}
		s.chats[chatID] = cs
	}
	return cs
}

// Append implements ledger.Store.
func (s *Store) Append(ctx context.Context, tx *ledger.Transaction) (int64, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}

	cs := s.chat(tx.ChatID)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	// Assign the id while already holding the chat lock so records land
	// in the slice in id order even for direct concurrent appends.
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	stored := *tx
	stored.ID = id
	cs.Txs = append(cs.Txs, &stored)

	if err := s.persistChat(tx.ChatID, cs); err != nil {
		// Roll the in-memory append back so no unpersisted record is
		// observable.
		cs.Txs = cs.Txs[:len(cs.Txs)-1]
		return 0, err
	}

	s.mu.Lock()
	s.txChat[id] = tx.ChatID
	s.mu.Unlock()

	return id, nil
}

// AttachExternalRef implements ledger.Store.
func (s *Store) AttachExternalRef(ctx context.Context, id int64, ref string) error {
	s.mu.Lock()
	chatID, ok := s.txChat[id]
	boundTo, refInUse := s.refs[ref]
	s.mu.Unlock()
	if !ok {
		return ledger.ErrNotFound
	}
	// The ref index is global, matching the unique index the SQL store
	// enforces: one reference can only ever reach one record.
	if refInUse && boundTo != id {
		return ledger.ErrRefConflict
	}

	cs := s.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, tx := range cs.Txs {
		if tx.ID != id {
			continue
		}
		if tx.ExternalRef != nil {
			if *tx.ExternalRef == ref {
				return nil // idempotent
			}
			return ledger.ErrRefConflict
		}

		refCopy := ref
		tx.ExternalRef = &refCopy
		if err := s.persistChat(chatID, cs); err != nil {
			tx.ExternalRef = nil
			return err
		}

		s.mu.Lock()
		s.refs[ref] = id
		s.mu.Unlock()
		return nil
	}

	return ledger.ErrNotFound
}

// RemoveByExternalRef implements ledger.Store.
func (s *Store) RemoveByExternalRef(ctx context.Context, ref string) (*ledger.Transaction, error) {
	s.mu.Lock()
	id, ok := s.refs[ref]
	var chatID int64
	if ok {
		chatID = s.txChat[id]
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	cs := s.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for i, tx := range cs.Txs {
		if tx.ID != id {
			continue
		}

		removed := *tx
		prev := cs.Txs
		kept := make([]*ledger.Transaction, 0, len(cs.Txs)-1)
		kept = append(kept, cs.Txs[:i]...)
		kept = append(kept, cs.Txs[i+1:]...)

		cs.Txs = kept
		if err := s.persistChat(chatID, cs); err != nil {
			// Deletion must be all-or-nothing.
			cs.Txs = prev
			return nil, err
		}

		s.mu.Lock()
		delete(s.refs, ref)
		delete(s.txChat, id)
		s.mu.Unlock()
		return &removed, nil
	}

	return nil, nil
}

// List implements ledger.Store.
func (s *Store) List(ctx context.Context, chatID int64, since *time.Time) ([]*ledger.Transaction, error) {
	cs := s.chat(chatID)
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	out := make([]*ledger.Transaction, 0, len(cs.Txs))
	for _, tx := range cs.Txs {
		if since != nil && tx.CreatedAt.Before(*since) {
			continue
		}
		clone := *tx
		out = append(out, &clone)
	}
	return out, nil
}

// DeleteInPeriod implements ledger.Store.
func (s *Store) DeleteInPeriod(ctx context.Context, chatID int64, from, to time.Time) ([]*ledger.Transaction, error) {
	cs := s.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	kept := make([]*ledger.Transaction, 0, len(cs.Txs))
	removed := make([]*ledger.Transaction, 0)
	for _, tx := range cs.Txs {
		if !tx.CreatedAt.Before(from) && tx.CreatedAt.Before(to) {
			removed = append(removed, tx)
		} else {
			kept = append(kept, tx)
		}
	}

	if len(removed) == 0 {
		return nil, nil
	}

	prev := cs.Txs
	cs.Txs = kept
	if err := s.persistChat(chatID, cs); err != nil {
		cs.Txs = prev
		return nil, err
	}

	s.mu.Lock()
	for _, tx := range removed {
		delete(s.txChat, tx.ID)
		if tx.ExternalRef != nil {
			delete(s.refs, *tx.ExternalRef)
		}
	}
	s.mu.Unlock()

	out := make([]*ledger.Transaction, len(removed))
	for i, tx := range removed {
		clone := *tx
		out[i] = &clone
	}
	return out, nil
}

// GroupConfig implements ledger.Store.
func (s *Store) GroupConfig(ctx context.Context, chatID int64) (*ledger.GroupConfig, error) {
	cs := s.chat(chatID)
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	cfg := *cs.Config
	return &cfg, nil
}

// UpdateGroupConfig implements ledger.Store.
func (s *Store) UpdateGroupConfig(ctx context.Context, chatID int64, patch ledger.ConfigPatch) (*ledger.GroupConfig, error) {
	cs := s.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	prev := *cs.Config
	cs.Config.Apply(patch)
	if err := s.persistChat(chatID, cs); err != nil {
		*cs.Config = prev
		return nil, err
	}

	cfg := *cs.Config
	return &cfg, nil
}

// AddAdmin implements ledger.Store.
func (s *Store) AddAdmin(ctx context.Context, admin *ledger.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *admin
	prev, existed := s.admins[admin.UserID]
	s.admins[admin.UserID] = &stored

	if err := s.persistAdmins(); err != nil {
		if existed {
			s.admins[admin.UserID] = prev
		} else {
			delete(s.admins, admin.UserID)
		}
		return err
	}
	return nil
}

// RemoveAdmin implements ledger.Store.
func (s *Store) RemoveAdmin(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.admins[userID]
	if !existed {
		return nil
	}
	delete(s.admins, userID)

	if err := s.persistAdmins(); err != nil {
		s.admins[userID] = prev
		return err
	}
	return nil
}

// ListAdmins implements ledger.Store.
func (s *Store) ListAdmins(ctx context.Context) ([]*ledger.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.Admin, 0, len(s.admins))
	for _, a := range s.admins {
		clone := *a
		out = append(out, &clone)
	}
	return out, nil
}

// IsAdmin implements ledger.Store.
func (s *Store) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.admins[userID]
	return ok, nil
}
