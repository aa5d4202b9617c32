package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"bazaar/leadhub/internal/config"
)

// RedisSender implements the Sender interface by storing emails in Redis
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{
		client: client,
		cfg:    cfg,
	}
}

// TemplateHeader names the header carrying the template id of a rendered email.
const TemplateHeader = "X-Leadhub-Template"

// templateOf extracts the template id header from a raw message, if present.
func templateOf(rawMessage []byte) string {
	for _, line := range strings.Split(string(rawMessage), "\r\n") {
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, TemplateHeader+": "); ok {
			return strings.TrimSpace(v)
		}
	}
	return "unknown"
}

// Send stores a representation of the email in Redis instead of delivering it.
// Keys are mockemail:<first recipient>:<template id> so tests and the service
// API can fetch the most recent email of a kind.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	templateID := templateOf(rawMessage)

	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	emailData := map[string]interface{}{
		"to":          strings.Join(to, ", "),
		"from":        s.cfg.SmtpFromAddress,
		"subject":     subject,
		"body":        string(rawMessage),
		"sent_at":     time.Now().UTC().Format(time.RFC3339Nano),
		"template_id": templateID,
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := MockEmailKey(primaryTo, templateID)
	ttl := 5 * time.Minute

	if err := s.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	log.Printf("Mock email stored in Redis key '%s' (TTL: %v, To: %s, Subject: %s)", key, ttl, strings.Join(to, ", "), subject)
	return nil
}

// MockEmailKey is the Redis key of the last mock email sent to address with templateID.
func MockEmailKey(address, templateID string) string {
	return fmt.Sprintf("mockemail:%s:%s", address, templateID)
}
