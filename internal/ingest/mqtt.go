package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/willsarg/Sundai-LaundryAlert/internal/config"
	"github.com/willsarg/Sundai-LaundryAlert/internal/pipeline"
	"github.com/willsarg/Sundai-LaundryAlert/internal/storage"
)

// ClipNotification is the payload the recorder publishes after uploading
// a clip to the artifact store
type ClipNotification struct {
	Filename  string `json:"filename"`
	Timestamp string `json:"timestamp"`
}

// Subscriber listens for clip upload notifications on an MQTT topic,
// fetches the referenced clip from the artifact store and feeds it into
// the classification pipeline
type Subscriber struct {
	client     mqtt.Client
	config     config.MQTTConfig
	store      *storage.Client
	dispatcher *pipeline.Dispatcher
	logger     *slog.Logger

	// Statistics
	mu            sync.RWMutex
	received      uint64
	fetchFailures uint64
	badPayloads   uint64
}

// SubscriberStats represents subscriber statistics
type SubscriberStats struct {
	Received      uint64 `json:"received"`
	FetchFailures uint64 `json:"fetch_failures"`
	BadPayloads   uint64 `json:"bad_payloads"`
}

// NewSubscriber creates an MQTT notification subscriber. It does not
// connect until Start is called.
func NewSubscriber(cfg config.MQTTConfig, store *storage.Client,
	dispatcher *pipeline.Dispatcher, logger *slog.Logger) *Subscriber {

	return &Subscriber{
		config:     cfg,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Start connects to the broker and subscribes to the notification topic
func (s *Subscriber) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.config.Broker)
	opts.SetClientID(s.config.ClientID)
	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
		opts.SetPassword(s.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		s.logger.Info("MQTT connected", slog.String("broker", s.config.Broker))
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		s.logger.Warn("MQTT connection lost", slog.String("error", err.Error()))
	})

	s.client = mqtt.NewClient(opts)

	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	token := s.client.Subscribe(s.config.Topic, byte(s.config.QoS), s.handleNotification)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.config.Topic, token.Error())
	}

	s.logger.Info("Subscribed to clip notifications",
		slog.String("topic", s.config.Topic),
		slog.Int("qos", s.config.QoS),
	)

	return nil
}

// Stop unsubscribes and disconnects from the broker
func (s *Subscriber) Stop() {
	if s.client == nil {
		return
	}

	if token := s.client.Unsubscribe(s.config.Topic); token.Wait() && token.Error() != nil {
		s.logger.Warn("Failed to unsubscribe", slog.String("error", token.Error().Error()))
	}

	s.client.Disconnect(250)
	s.logger.Info("MQTT subscriber stopped")
}

// handleNotification processes a single clip upload notification
func (s *Subscriber) handleNotification(client mqtt.Client, msg mqtt.Message) {
	s.mu.Lock()
	s.received++
	s.mu.Unlock()

	var notification ClipNotification
	if err := json.Unmarshal(msg.Payload(), &notification); err != nil {
		s.recordBadPayload()
		s.logger.Warn("Invalid clip notification payload",
			slog.String("topic", msg.Topic()),
			slog.String("error", err.Error()),
		)
		return
	}

	if notification.Filename == "" {
		s.recordBadPayload()
		s.logger.Warn("Clip notification missing filename",
			slog.String("topic", msg.Topic()),
		)
		return
	}

	capturedAt, err := time.Parse(time.RFC3339, notification.Timestamp)
	if err != nil {
		// Fall back to arrival time when the recorder omits or mangles
		// the capture timestamp
		capturedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := s.store.Fetch(ctx, notification.Filename)
	if err != nil {
		s.mu.Lock()
		s.fetchFailures++
		s.mu.Unlock()

		s.logger.Error("Failed to fetch notified clip",
			slog.String("filename", notification.Filename),
			slog.String("error", err.Error()),
		)
		return
	}

	clip := pipeline.Clip{
		Filename:   notification.Filename,
		CapturedAt: capturedAt,
		Data:       data,
	}

	if err := s.dispatcher.Enqueue(clip); err != nil {
		s.logger.Warn("Dropping notified clip",
			slog.String("filename", notification.Filename),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Debug("Notified clip enqueued",
		slog.String("filename", notification.Filename),
		slog.Int("size_bytes", len(data)),
	)
}

func (s *Subscriber) recordBadPayload() {
	s.mu.Lock()
	s.badPayloads++
	s.mu.Unlock()
}

// GetStats returns current subscriber statistics
func (s *Subscriber) GetStats() SubscriberStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SubscriberStats{
		Received:      s.received,
		FetchFailures: s.fetchFailures,
		BadPayloads:   s.badPayloads,
	}
}
