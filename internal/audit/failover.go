package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/technosupport/frl-toolbox/internal/platform/paths"
)

const (
	spoolFile          = "transactions.jsonl"
	defaultMaxSpoolMB  = 256
	replayFilePrefix   = "replay_"
	failedFilePrefix   = "failed_"
	replayLineMaxBytes = 1024 * 1024
)

// ErrSpoolFull is returned when the spool reached its size bound. The
// transaction is dropped.
var ErrSpoolFull = errors.New("transaction spool is full")

// Spool is an append-only JSONL buffer of transactions awaiting the database.
type Spool struct {
	Dir     string
	MaxSize int64

	mu sync.Mutex // guards the spool file
}

// NewSpool creates dir if needed. maxMB <= 0 selects the default bound.
func NewSpool(dir string, maxMB int64) (*Spool, error) {
	if dir == "" {
		dir = paths.SpoolDir()
	}
	if maxMB <= 0 {
		maxMB = defaultMaxSpoolMB
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", dir, err)
	}
	return &Spool{Dir: dir, MaxSize: maxMB * 1024 * 1024}, nil
}

func (s *Spool) path() string {
	p, err := paths.SafeJoin(s.Dir, spoolFile)
	if err != nil {
		return filepath.Join(s.Dir, spoolFile)
	}
	return p
}

// Append writes tx to the spool file.
func (s *Spool) Append(tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size() >= s.MaxSize {
		return ErrSpoolFull
	}

	line, err := json.Marshal(FailoverEvent{
		EventID:   tx.EventID.String(),
		Payload:   tx,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

func (s *Spool) size() int64 {
	var size int64
	filepath.WalkDir(s.Dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}

// take moves the spool file aside for replay. It returns "" when there is
// nothing to replay.
func (s *Spool) take() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path())
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	replayFile := filepath.Join(s.Dir, fmt.Sprintf("%s%d.jsonl", replayFilePrefix, time.Now().UnixNano()))
	if err := os.Rename(s.path(), replayFile); err != nil {
		return "", err
	}
	return replayFile, nil
}

// StartReplayer flushes the spool into the database every interval.
func (s *Service) StartReplayer(ctx context.Context, interval time.Duration) {
	if s.Spool == nil {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.ReplaySpool(ctx); n > 0 && s.OnReplay != nil {
					s.OnReplay(n)
				}
			}
		}
	}()
}

var replayLock sync.Mutex

// ReplaySpool writes the spooled transactions to the database and returns
// how many reached it. Transactions that fail again are re-spooled by Write.
func (s *Service) ReplaySpool(ctx context.Context) int {
	replayLock.Lock()
	defer replayLock.Unlock()

	if s.Spool == nil {
		return 0
	}
	replayFile, err := s.Spool.take()
	if err != nil {
		log.Printf("[audit] Failed to rotate spool for replay: %v", err)
		return 0
	}
	if replayFile == "" {
		return 0
	}

	f, err := os.Open(replayFile)
	if err != nil {
		return 0
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), replayLineMaxBytes)
	var succeeded, failed int
	for scanner.Scan() {
		var fe FailoverEvent
		if err := json.Unmarshal(scanner.Bytes(), &fe); err != nil {
			failed++
			continue
		}
		if _, err := s.DB.ExecContext(ctx, insertTransaction, insertArgs(fe.Payload)...); err != nil {
			if spoolErr := s.Spool.Append(fe.Payload); spoolErr != nil {
				failed++
			}
			continue
		}
		succeeded++
	}
	f.Close()

	// The rest of an unreadable replay file is kept aside, never removed.
	if err := scanner.Err(); err != nil {
		kept := filepath.Join(s.Spool.Dir, failedFilePrefix+strings.TrimPrefix(filepath.Base(replayFile), replayFilePrefix))
		if renameErr := os.Rename(replayFile, kept); renameErr != nil {
			kept = replayFile
		}
		log.Printf("[audit] Replay stopped after %d transactions: %v. Remaining entries kept in %s", succeeded, err, kept)
	} else {
		os.Remove(replayFile)
	}

	if succeeded > 0 || failed > 0 {
		log.Printf("[audit] Replay: %d transactions flushed, %d dropped", succeeded, failed)
	}
	return succeeded
}
