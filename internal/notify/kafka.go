package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"bazaar/leadhub/internal/utils"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const defaultPublishTimeout = 3 * time.Second

// KafkaPublisher streams every event to a topic for downstream consumers.
// Writes run in the background so a slow broker never holds up a request.
type KafkaPublisher struct {
	w       MessageWriter
	timeout time.Duration
	wg      sync.WaitGroup
}

type kafkaEnvelope struct {
	Event
	Recipients []utils.SixID `json:"recipients"`
}

// NewKafkaPublisher returns nil when no brokers are configured.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           5 * time.Millisecond,
		WriteTimeout:           defaultPublishTimeout,
		AllowAutoTopicCreation: true,
	})
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, timeout: defaultPublishTimeout}
}

func (p *KafkaPublisher) Notify(ctx context.Context, recipientIDs []utils.SixID, event Event) {
	if p == nil {
		return
	}
	body, err := json.Marshal(kafkaEnvelope{Event: event, Recipients: recipientIDs})
	if err != nil {
		log.Printf("Kafka: failed to encode %s event: %v", event.Type, err)
		return
	}
	msg := kafka.Message{Key: []byte(event.InquiryID()), Value: body}

	// Detached from the request so the write outlives the response.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		if err := p.w.WriteMessages(pubCtx, msg); err != nil {
			log.Printf("Kafka: failed to publish %s event for inquiry %s: %v", event.Type, event.InquiryID(), err)
		}
	}()
}

// Close waits for in-flight writes, then closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.wg.Wait()
	return p.w.Close()
}
