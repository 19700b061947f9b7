// Package mqtt provides the MQTT input component: it subscribes to the
// configured reading topics and hands every delivery to the ingest pipeline.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/c360/meshtel/config"
	"github.com/c360/meshtel/errors"
	"github.com/c360/meshtel/health"
	"github.com/c360/meshtel/ingest"
	"github.com/c360/meshtel/metric"
	"github.com/c360/meshtel/pkg/retry"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// InputDeps holds the runtime dependencies for the MQTT input component
type InputDeps struct {
	Config   config.MQTTConfig
	Topics   config.TopicsConfig
	Pipeline *ingest.Pipeline
	Logger   *slog.Logger
	Metrics  *metric.Metrics // optional
}

// Input subscribes the reading topic filters on an MQTT broker and delegates
// each delivery to the ingest pipeline. The delivery callback always returns
// normally: pipeline rejections are already structured outcomes, store faults
// are logged and counted, and a panic anywhere below is recovered.
type Input struct {
	cfg      config.MQTTConfig
	topics   config.TopicsConfig
	pipeline *ingest.Pipeline
	logger   *slog.Logger
	metrics  *metric.Metrics

	retryConfig retry.Config

	mu      sync.RWMutex
	client  pahomqtt.Client
	running atomic.Bool

	startTime time.Time

	// Flow counters
	messagesReceived atomic.Int64
	errorCount       atomic.Int64
	lastActivity     atomic.Value // stores time.Time
}

// NewInput creates a new MQTT input component
func NewInput(deps InputDeps) *Input {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	i := &Input{
		cfg:         deps.Config,
		topics:      deps.Topics,
		pipeline:    deps.Pipeline,
		logger:      logger.With("component", "mqtt-input"),
		metrics:     deps.Metrics,
		retryConfig: retry.DefaultConfig(),
		startTime:   time.Now(),
	}
	i.lastActivity.Store(time.Time{})
	return i
}

// Initialize validates the configuration and builds the broker client.
// The broker is not contacted until Start.
func (i *Input) Initialize() error {
	if i.pipeline == nil {
		return errors.WrapInvalid(fmt.Errorf("nil pipeline"),
			"mqtt-input", "Initialize", "pipeline validation")
	}
	if i.cfg.BrokerURL == "" {
		return errors.WrapInvalid(fmt.Errorf("empty broker URL"),
			"mqtt-input", "Initialize", "broker validation")
	}
	if i.topics.Gateway == "" || i.topics.Temperature == "" {
		return errors.WrapInvalid(fmt.Errorf("empty topic filter"),
			"mqtt-input", "Initialize", "topic validation")
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(i.cfg.BrokerURL).
		SetClientID(i.cfg.ClientID).
		SetKeepAlive(i.cfg.KeepAlive).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOnConnectHandler(i.onConnect).
		SetConnectionLostHandler(i.onConnectionLost)
	if i.cfg.Username != "" {
		opts.SetUsername(i.cfg.Username)
		opts.SetPassword(i.cfg.Password)
	}

	i.mu.Lock()
	i.client = pahomqtt.NewClient(opts)
	i.mu.Unlock()

	return nil
}

// Start connects to the broker with retry. Topic subscriptions are installed
// by the OnConnect hook so they survive reconnects.
func (i *Input) Start(ctx context.Context) error {
	i.mu.RLock()
	client := i.client
	i.mu.RUnlock()

	if client == nil {
		return errors.WrapInvalid(fmt.Errorf("not initialized"),
			"mqtt-input", "Start", "client validation")
	}
	if i.running.Load() {
		return nil
	}

	connect := func() error {
		token := client.Connect()
		if !token.WaitTimeout(connectTimeout) {
			return fmt.Errorf("connect timeout after %v", connectTimeout)
		}
		return token.Error()
	}

	if err := retry.Do(ctx, i.retryConfig, connect); err != nil {
		return errors.WrapTransient(err, "mqtt-input", "Start", "broker connect")
	}

	i.mu.Lock()
	i.startTime = time.Now()
	i.mu.Unlock()
	i.running.Store(true)
	i.logger.Info("connected to broker", "broker", i.cfg.BrokerURL)
	return nil
}

// onConnect subscribes both reading filters. Runs on every (re)connect.
func (i *Input) onConnect(client pahomqtt.Client) {
	if i.metrics != nil {
		i.metrics.BrokerConnected.Set(1)
	}

	for _, topic := range []string{i.topics.Gateway, i.topics.Temperature} {
		token := client.Subscribe(topic, i.cfg.QoS, i.onMessage)
		if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
			i.errorCount.Add(1)
			i.logger.Error("topic subscription failed",
				"topic", topic, "error", token.Error())
			continue
		}
		i.logger.Info("subscribed", "topic", topic, "qos", i.cfg.QoS)
	}
}

func (i *Input) onConnectionLost(_ pahomqtt.Client, err error) {
	if i.metrics != nil {
		i.metrics.BrokerConnected.Set(0)
	}
	i.errorCount.Add(1)
	i.logger.Warn("broker connection lost", "error", err)
}

// onMessage is the paho delivery callback. It must never panic or block
// paho's router for long; all faults end here.
func (i *Input) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			i.errorCount.Add(1)
			i.logger.Error("panic in delivery handler",
				"topic", msg.Topic(), "panic", r)
		}
	}()

	i.messagesReceived.Add(1)
	i.lastActivity.Store(time.Now())

	outcome, err := i.pipeline.IngestTransport(context.Background(), msg.Topic(), msg.Payload())
	if err != nil {
		// Store unavailable. The reading is lost; QoS redelivery is the
		// broker's business, not ours.
		i.errorCount.Add(1)
		i.logger.Error("delivery processing failed",
			"topic", msg.Topic(), "error", err)
		return
	}
	if outcome == nil {
		return
	}
	if !outcome.Accepted {
		i.logger.Debug("delivery rejected",
			"topic", msg.Topic(),
			"ingest_id", outcome.IngestID,
			"reason", string(outcome.Rejection.Reason))
	}
}

// Publish sends a payload to an arbitrary topic through the shared client.
// Used by the API publish endpoint.
func (i *Input) Publish(topic string, payload []byte) error {
	i.mu.RLock()
	client := i.client
	i.mu.RUnlock()

	if client == nil || !i.running.Load() {
		return errors.WrapTransient(fmt.Errorf("broker client not running"),
			"mqtt-input", "Publish", "client check")
	}

	token := client.Publish(topic, i.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.WrapTransient(fmt.Errorf("publish timeout after %v", publishTimeout),
			"mqtt-input", "Publish", "broker publish")
	}
	if err := token.Error(); err != nil {
		return errors.WrapTransient(err, "mqtt-input", "Publish", "broker publish")
	}
	return nil
}

// Health returns the current health status of the component
func (i *Input) Health() health.Status {
	i.mu.RLock()
	client := i.client
	startTime := i.startTime
	i.mu.RUnlock()

	connected := client != nil && client.IsConnectionOpen()

	var status health.Status
	switch {
	case !i.running.Load():
		status = health.NewUnhealthy("mqtt-input", "not started")
	case !connected:
		status = health.NewDegraded("mqtt-input", "broker connection down, reconnecting")
	default:
		status = health.NewHealthy("mqtt-input", fmt.Sprintf("connected to %s", i.cfg.BrokerURL))
	}

	return status.WithMetrics(&health.Metrics{
		Uptime:     time.Since(startTime),
		ErrorCount: int(i.errorCount.Load()),
	})
}

// MessagesReceived reports the number of deliveries seen since start
func (i *Input) MessagesReceived() int64 {
	return i.messagesReceived.Load()
}

// Stop disconnects from the broker, allowing in-flight work the given timeout
// to drain.
func (i *Input) Stop(timeout time.Duration) error {
	if !i.running.Load() {
		return nil
	}
	i.running.Store(false)

	i.mu.RLock()
	client := i.client
	i.mu.RUnlock()

	if client != nil && client.IsConnected() {
		for _, topic := range []string{i.topics.Gateway, i.topics.Temperature} {
			if token := client.Unsubscribe(topic); !token.WaitTimeout(timeout) {
				i.logger.Warn("unsubscribe timed out", "topic", topic)
			}
		}
		client.Disconnect(uint(timeout.Milliseconds()))
	}

	if i.metrics != nil {
		i.metrics.BrokerConnected.Set(0)
	}
	i.logger.Info("disconnected from broker")
	return nil
}
