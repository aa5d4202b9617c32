package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MailboxSender appends each message as one JSON line to a local file, so a
// developer can tail the notifications a run produced.
type MailboxSender struct {
	mu   sync.Mutex
	path string
}

type mailboxEntry struct {
	At       time.Time `json:"at"`
	To       []string  `json:"to"`
	Subject  string    `json:"subject"`
	Template string    `json:"template"`
	Raw      string    `json:"raw"`
}

func NewMailboxSender(path string) (*MailboxSender, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("mailbox path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mailbox directory: %w", err)
	}
	return &MailboxSender{path: path}, nil
}

func (m *MailboxSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	line, err := json.Marshal(mailboxEntry{
		At:       time.Now().UTC(),
		To:       to,
		Subject:  subject,
		Template: templateOf(rawMessage),
		Raw:      string(rawMessage),
	})
	if err != nil {
		return fmt.Errorf("failed to encode mailbox entry: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open mailbox %s: %w", m.path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to mailbox %s: %w", m.path, err)
	}
	return nil
}
