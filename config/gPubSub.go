package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

const (
	OrderEventMailSent = "mail_sent"
	OrderEventMailDead = "mail_dead"
)

// OrderEvent is the fan-out message published after the notification worker
// settles a job. Downstream consumers (analytics, CRM sync) subscribe to it;
// nothing in the order path waits for it.
type OrderEvent struct {
	BusinessId    string    `json:"business_id"`
	OrderId       int       `json:"order_id"`
	EventType     string    `json:"event_type"` // mail_sent | mail_dead
	IsUpdateMail  bool      `json:"is_update_mail"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationId string    `json:"correlation_id"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return ""
}

// OrderEventsEnabled reports whether Pub/Sub fan-out is configured. When it
// is not, publishing is a no-op; the notification pipeline must work without it.
func OrderEventsEnabled() bool {
	return getPubSubProjectID() != "" && os.Getenv("ORDER_EVENTS_TOPIC") != ""
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		// Uses Application Default Credentials (Cloud Run service account or
		// GOOGLE_APPLICATION_CREDENTIALS).
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}

	pubsubClientMu.Lock()
	if pubsubClient == nil {
		pubsubClient = c
	} else {
		// Another goroutine won the race; close ours.
		_ = c.Close()
	}
	c2 := pubsubClient
	pubsubClientMu.Unlock()

	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return c2, nil
}

// PublishOrderEvent publishes an order notification event and returns the
// Pub/Sub server-assigned message ID. No-op when fan-out is not configured.
func PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error) {
	if !OrderEventsEnabled() {
		return "", nil
	}

	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	topicName := os.Getenv("ORDER_EVENTS_TOPIC")
	t := client.Topic(topicName)

	msgJSON, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	result := t.Publish(ctx, &pubsub.Message{
		Data: msgJSON,
	})

	return result.Get(ctx)
}
