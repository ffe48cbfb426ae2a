package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
)

const timeFormat = "Mon Jan 02, 2006 15:04:05 MST"

// FileStore appends one formatted line per message to a text file.
type FileStore struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// OpenFile opens (creating if needed) the log file at path.
func OpenFile(path string) (*FileStore, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open message log: %w", err)
	}
	return &FileStore{path: path, file: file}, nil
}

// FormatLine renders msg as "[time] [server#channel] nick: text".
func FormatLine(msg Message) string {
	return fmt.Sprintf("[%s] [%s%s] %s: %s",
		msg.Time.UTC().Format(timeFormat), msg.Server, msg.Channel, msg.Nickname, msg.Text)
}

func (s *FileStore) Save(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.file, FormatLine(msg))
	return err
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
