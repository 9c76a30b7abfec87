package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists ledger events.
type Store interface {
	Write(ctx context.Context, event *Event) error
}

// LogStore writes events as JSON lines. It is safe for concurrent use.
type LogStore struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogStore creates a new LogStore writing to the provided writer.
func NewLogStore(w io.Writer) *LogStore {
	return &LogStore{
		writer: w,
	}
}

// NewFileStore opens path for appending.
func NewFileStore(path string) (*LogStore, *os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	return NewLogStore(f), f, nil
}

// Write writes the event to the underlying writer as a JSON line.
func (s *LogStore) Write(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.writer.Write(append(data, '\n'))
	return err
}

// ReadEvents decodes a JSON-lines ledger.
func ReadEvents(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// TamperEvidentStore wraps a Store and adds HMAC chaining.
type TamperEvidentStore struct {
	store        Store
	chainManager *ChainManager
	lastHash     string
	mu           sync.Mutex
}

// NewTamperEvidentStore creates a new TamperEvidentStore continuing the chain after lastHash.
func NewTamperEvidentStore(store Store, chainManager *ChainManager, lastHash string) *TamperEvidentStore {
	return &TamperEvidentStore{
		store:        store,
		chainManager: chainManager,
		lastHash:     lastHash,
	}
}

// Write fills in the id and timestamp when absent, chains the event to the previous one
// and writes it to the underlying store.
func (s *TamperEvidentStore) Write(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event.PreviousHash = s.lastHash
	hash, err := s.chainManager.ComputeHash(event)
	if err != nil {
		return err
	}
	event.Hash = hash

	if err := s.store.Write(ctx, event); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	s.lastHash = hash
	return nil
}

// OpenLedger opens the ledger file at path and resumes its chain. An existing ledger is
// verified first so that a tampered file is never extended.
func OpenLedger(path string, secretKey []byte) (*TamperEvidentStore, io.Closer, error) {
	cm := NewChainManager(secretKey)

	var lastHash string
	if f, err := os.Open(path); err == nil {
		events, readErr := ReadEvents(f)
		f.Close()
		if readErr != nil {
			return nil, nil, fmt.Errorf("failed to read ledger %s: %w", path, readErr)
		}
		if err := cm.VerifyChain(events); err != nil {
			return nil, nil, fmt.Errorf("ledger %s failed verification: %w", path, err)
		}
		if len(events) > 0 {
			lastHash = events[len(events)-1].Hash
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, err
	}

	store, file, err := NewFileStore(path)
	if err != nil {
		return nil, nil, err
	}
	return NewTamperEvidentStore(store, cm, lastHash), file, nil
}
