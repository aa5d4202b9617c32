package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/config"
	"bazaar/leadhub/internal/db"
)

// Runtime-tunable setting keys.
const (
	SettingLeadPricePaise    = "LEAD_PRICE_PAISE"
	SettingLeadCurrency      = "LEAD_CURRENCY"
	SettingFreeWindowMinutes = "FREE_WINDOW_MINUTES"
	SettingPaidWindowHours   = "PAID_WINDOW_HOURS"
)

const settingsUpdateChannel = "settings_updates"

// ISettingsService exposes runtime overrides of the static configuration.
type ISettingsService interface {
	Get(ctx context.Context, key string) (interface{}, error)
	GetInt(ctx context.Context, key string, defaultValue int) int
	GetString(ctx context.Context, key string, defaultValue string) string
	GetDuration(ctx context.Context, key string, unit time.Duration, defaultValue time.Duration) time.Duration
	Set(ctx context.Context, key string, value interface{}) error
	Load(ctx context.Context) error
	SubscribeToChanges(ctx context.Context) error
}

// settingsService implements ISettingsService.
type settingsService struct {
	db    *mongo.Database
	cfg   *config.Config
	rdb   *redis.Client
	cache map[string]interface{}
	mutex sync.RWMutex
}

// SettingEntry is a document in the settings collection.
type SettingEntry struct {
	Key       string      `bson:"key"`
	Value     interface{} `bson:"value"`
	UpdatedAt time.Time   `bson:"updated_at"`
}

// NewSettingsService loads the stored overrides and, when Redis is available,
// starts listening for updates published by other instances.
func NewSettingsService(database *mongo.Database, cfg *config.Config, rdb *redis.Client) ISettingsService {
	s := &settingsService{
		db:    database,
		cfg:   cfg,
		rdb:   rdb,
		cache: make(map[string]interface{}),
	}
	if err := s.Load(context.Background()); err != nil {
		log.Printf("WARNING: Failed to load settings from DB: %v. Using defaults from .env", err)
	}
	if rdb != nil {
		go func() {
			if err := s.SubscribeToChanges(context.Background()); err != nil {
				log.Printf("CRITICAL: Settings Pub/Sub listener stopped: %v", err)
			}
		}()
	}
	return s
}

// Load replaces the in-memory cache with the contents of the settings collection.
func (s *settingsService) Load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	cursor, err := s.db.Collection(db.SettingsCollection).Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to query settings collection: %w", err)
	}
	defer cursor.Close(ctx)

	fresh := make(map[string]interface{})
	for cursor.Next(ctx) {
		var entry SettingEntry
		if err := cursor.Decode(&entry); err != nil {
			log.Printf("Warning: Failed to decode setting during load: %v", err)
			continue
		}
		fresh[entry.Key] = entry.Value
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("error iterating settings cursor: %w", err)
	}

	s.mutex.Lock()
	s.cache = fresh
	s.mutex.Unlock()
	log.Printf("Loaded %d settings into cache from DB.", len(fresh))
	return nil
}

// Get returns the stored override for key, falling back to the .env default.
func (s *settingsService) Get(ctx context.Context, key string) (interface{}, error) {
	s.mutex.RLock()
	val, exists := s.cache[key]
	s.mutex.RUnlock()
	if exists {
		return val, nil
	}

	if s.cfg != nil {
		switch key {
		case SettingLeadPricePaise:
			return s.cfg.LeadPricePaise, nil
		case SettingLeadCurrency:
			return s.cfg.LeadCurrency, nil
		case SettingFreeWindowMinutes:
			return int(s.cfg.FreeWindow / time.Minute), nil
		case SettingPaidWindowHours:
			return int(s.cfg.PaidWindow / time.Hour), nil
		}
	}
	return nil, apperr.NotFound("setting '%s' not found", key)
}

func (s *settingsService) GetString(ctx context.Context, key string, defaultValue string) string {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if str, ok := val.(string); ok && str != "" {
		return str
	}
	log.Printf("Warning: Setting '%s' is not a string, using default.", key)
	return defaultValue
}

func (s *settingsService) GetInt(ctx context.Context, key string, defaultValue int) int {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if n, ok := toInt(val); ok {
		return n
	}
	log.Printf("Warning: Setting '%s' is not an integer type (%T), using default.", key, val)
	return defaultValue
}

// GetDuration reads an integer setting expressed in unit.
func (s *settingsService) GetDuration(ctx context.Context, key string, unit time.Duration, defaultValue time.Duration) time.Duration {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if n, ok := toInt(val); ok {
		return time.Duration(n) * unit
	}
	log.Printf("Warning: Setting '%s' is not a numeric type for duration (%T), using default.", key, val)
	return defaultValue
}

// MongoDB may hand numbers back as any of these.
func toInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// ValidateSetting checks a proposed value against the known keys.
func ValidateSetting(key string, value interface{}) error {
	switch key {
	case SettingLeadPricePaise, SettingFreeWindowMinutes, SettingPaidWindowHours:
		n, ok := toInt(value)
		if !ok {
			return apperr.Validation("%s must be a number", key)
		}
		if n < 0 || (key != SettingFreeWindowMinutes && n == 0) {
			return apperr.Validation("%s must be positive", key)
		}
	case SettingLeadCurrency:
		str, ok := value.(string)
		if !ok || len(str) != 3 {
			return apperr.Validation("%s must be a 3-letter currency code", key)
		}
	default:
		return apperr.Validation("unknown setting '%s'", key)
	}
	return nil
}

// Set upserts a setting, updates the local cache and tells other instances to reload.
func (s *settingsService) Set(ctx context.Context, key string, value interface{}) error {
	if err := ValidateSetting(key, value); err != nil {
		return err
	}
	if f, ok := value.(float64); ok {
		value = int(f)
	}

	if s.db != nil {
		update := bson.M{"$set": bson.M{"key": key, "value": value, "updated_at": time.Now().UTC()}}
		_, err := s.db.Collection(db.SettingsCollection).UpdateOne(ctx, bson.M{"key": key}, update, options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("failed to upsert setting '%s': %w", key, err)
		}
	}

	s.mutex.Lock()
	s.cache[key] = value
	s.mutex.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, settingsUpdateChannel, key).Err(); err != nil {
			log.Printf("Warning: Failed to publish settings update for key '%s': %v", key, err)
		}
	}
	log.Printf("Updated setting '%s'.", key)
	return nil
}

// SubscribeToChanges reloads the cache whenever another instance publishes an update.
func (s *settingsService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		log.Println("Redis client not configured, cannot subscribe to settings changes.")
		return nil
	}

	pubsub := s.rdb.Subscribe(ctx, settingsUpdateChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to receive confirmation from Redis Pub/Sub subscription: %w", err)
	}

	log.Println("Subscribed to Redis channel for settings updates:", settingsUpdateChannel)
	for msg := range pubsub.Channel() {
		log.Printf("Received settings update on channel %s: %s", msg.Channel, msg.Payload)
		if err := s.Load(context.Background()); err != nil {
			log.Printf("ERROR reloading settings after notification: %v", err)
		}
	}

	log.Println("Settings Pub/Sub listener stopped.")
	return nil
}
