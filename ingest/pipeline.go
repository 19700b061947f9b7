package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/meshtel/device"
	mterrors "github.com/c360/meshtel/errors"
	"github.com/c360/meshtel/metric"
	"github.com/c360/meshtel/pkg/walltime"
)

// Sources label which ingress surface a message arrived on.
const (
	SourceTransport = "transport"
	SourceAPI       = "api"
)

// ReadingAppender is the slice of the reading store the pipeline writes to.
type ReadingAppender interface {
	AppendGateway(ctx context.Context, deviceID int64, ts time.Time, rssi int) (int64, error)
	AppendSensor(ctx context.Context, deviceID int64, ts time.Time, temperature float64) (int64, error)
}

// Event is the live-feed notification emitted for each accepted reading.
type Event struct {
	DeviceID  int64   `json:"device_id"`
	Mac       string  `json:"mac"`
	Class     string  `json:"class"`
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Feed receives accepted-reading events. Implementations must not block the
// caller; delivery is best effort and failures never affect the outcome.
type Feed interface {
	Broadcast(event Event)
}

// Deps contains the pipeline dependencies
type Deps struct {
	Directory  device.Directory
	Store      ReadingAppender
	Classifier *Classifier
	Validator  *Validator
	Feed       Feed // optional
	Logger     *slog.Logger
	Metrics    *metric.Metrics // optional
}

// Pipeline turns inbound messages into stored readings. It holds no mutable
// state of its own and is safe for concurrent use from delivery callbacks and
// API handlers.
type Pipeline struct {
	directory  device.Directory
	store      ReadingAppender
	classifier *Classifier
	validator  *Validator
	feed       Feed
	logger     *slog.Logger
	metrics    *metric.Metrics
}

// NewPipeline creates a pipeline from its dependencies
func NewPipeline(deps Deps) (*Pipeline, error) {
	if deps.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Pipeline{
		directory:  deps.Directory,
		store:      deps.Store,
		classifier: deps.Classifier,
		validator:  deps.Validator,
		feed:       deps.Feed,
		logger:     deps.Logger.With("component", "ingest-pipeline"),
		metrics:    deps.Metrics,
	}, nil
}

// IngestTransport processes a raw transport delivery. Messages on topics
// outside the known hierarchy are dropped as a logged no-op with a nil
// outcome. The payload timestamp is replaced with the arrival time: field
// devices carry no reliable clock, so on this path the broker-side clock is
// authoritative. A non-nil error means the store was unavailable; every
// payload-derived fault is folded into the outcome instead.
func (p *Pipeline) IngestTransport(ctx context.Context, topic string, payload []byte) (*Outcome, error) {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.MessagesReceived.WithLabelValues(SourceTransport).Inc()
		defer func() {
			p.metrics.ProcessingDuration.WithLabelValues(SourceTransport).Observe(time.Since(start).Seconds())
		}()
	}

	class := p.classifier.Classify(topic)
	if class == MessageUnrecognized {
		p.logger.Info("dropping message on unrecognized topic", "topic", topic)
		if p.metrics != nil {
			p.metrics.MessagesDropped.Inc()
		}
		return nil, nil
	}

	ingestID := uuid.NewString()

	// A bare "null" decodes without error into a nil map; treat it like any
	// other non-object payload.
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil || body == nil {
		rej := &Rejection{Reason: ReasonBadPayload, Detail: "payload is not a JSON object"}
		p.reject(SourceTransport, ingestID, class, topic, rej)
		return rejected(ingestID, class, rej), nil
	}

	body["timestamp"] = walltime.Format(walltime.Now())

	return p.process(ctx, SourceTransport, ingestID, class, topic, body)
}

// IngestAPI processes a message submitted through the HTTP API. The class is
// supplied by the endpoint and the caller-provided timestamp is trusted.
func (p *Pipeline) IngestAPI(ctx context.Context, class MessageClass, body map[string]any) (*Outcome, error) {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.MessagesReceived.WithLabelValues(SourceAPI).Inc()
		defer func() {
			p.metrics.ProcessingDuration.WithLabelValues(SourceAPI).Observe(time.Since(start).Seconds())
		}()
	}

	ingestID := uuid.NewString()

	if body == nil {
		rej := &Rejection{Reason: ReasonBadPayload, Detail: "payload is not a JSON object"}
		p.reject(SourceAPI, ingestID, class, "", rej)
		return rejected(ingestID, class, rej), nil
	}

	return p.process(ctx, SourceAPI, ingestID, class, "", body)
}

func (p *Pipeline) process(ctx context.Context, source, ingestID string, class MessageClass, topic string, body map[string]any) (*Outcome, error) {
	switch class {
	case MessageGateway:
		return p.processGateway(ctx, source, ingestID, topic, body)
	case MessageSensor:
		return p.processSensor(ctx, source, ingestID, topic, body)
	default:
		return nil, fmt.Errorf("unsupported message class %d", class)
	}
}

// processGateway resolves the sender before validating the remaining fields.
// An unknown device reports device_not_found even when other fields are
// malformed.
func (p *Pipeline) processGateway(ctx context.Context, source, ingestID, topic string, body map[string]any) (*Outcome, error) {
	mac, rej := p.validator.macAddress(body)
	if rej != nil {
		p.reject(source, ingestID, MessageGateway, topic, rej)
		return rejected(ingestID, MessageGateway, rej), nil
	}

	dev, err := p.directory.Resolve(ctx, mac, device.ClassGateway)
	if err != nil {
		return p.resolveFailed(source, ingestID, MessageGateway, topic, mac, err)
	}

	reading, rej := p.validator.ValidateGateway(body)
	if rej != nil {
		p.reject(source, ingestID, MessageGateway, topic, rej)
		return rejected(ingestID, MessageGateway, rej), nil
	}

	recordID, err := p.store.AppendGateway(ctx, dev.ID, reading.Timestamp, reading.RSSI)
	if err != nil {
		return nil, p.storeFailed(source, ingestID, err)
	}

	p.accept(source, ingestID, MessageGateway, dev, reading.Timestamp, float64(reading.RSSI))
	return accepted(ingestID, MessageGateway, dev.ID, recordID), nil
}

func (p *Pipeline) processSensor(ctx context.Context, source, ingestID, topic string, body map[string]any) (*Outcome, error) {
	mac, rej := p.validator.macAddress(body)
	if rej != nil {
		p.reject(source, ingestID, MessageSensor, topic, rej)
		return rejected(ingestID, MessageSensor, rej), nil
	}

	dev, err := p.directory.Resolve(ctx, mac, device.ClassSensor)
	if err != nil {
		return p.resolveFailed(source, ingestID, MessageSensor, topic, mac, err)
	}

	reading, rej := p.validator.ValidateSensor(body)
	if rej != nil {
		p.reject(source, ingestID, MessageSensor, topic, rej)
		return rejected(ingestID, MessageSensor, rej), nil
	}

	recordID, err := p.store.AppendSensor(ctx, dev.ID, reading.Timestamp, reading.Temperature)
	if err != nil {
		return nil, p.storeFailed(source, ingestID, err)
	}

	p.accept(source, ingestID, MessageSensor, dev, reading.Timestamp, reading.Temperature)
	return accepted(ingestID, MessageSensor, dev.ID, recordID), nil
}

// resolveFailed distinguishes the expected unknown-device outcome from a
// directory infrastructure fault, which propagates like any store failure.
func (p *Pipeline) resolveFailed(source, ingestID string, class MessageClass, topic, mac string, err error) (*Outcome, error) {
	if errors.Is(err, mterrors.ErrDeviceNotFound) {
		rej := &Rejection{Reason: ReasonDeviceNotFound, Field: "macAddress", Detail: mac}
		p.reject(source, ingestID, class, topic, rej)
		return rejected(ingestID, class, rej), nil
	}
	return nil, p.storeFailed(source, ingestID, err)
}

func (p *Pipeline) storeFailed(source, ingestID string, err error) error {
	p.logger.Error("reading store unavailable",
		"source", source, "ingest_id", ingestID, "error", err)
	if p.metrics != nil {
		p.metrics.StoreErrors.Inc()
	}
	return err
}

func (p *Pipeline) reject(source, ingestID string, class MessageClass, topic string, rej *Rejection) {
	p.logger.Warn("message rejected",
		"source", source,
		"ingest_id", ingestID,
		"class", class.String(),
		"topic", topic,
		"reason", string(rej.Reason),
		"field", rej.Field,
		"detail", rej.Detail)
	if p.metrics != nil {
		p.metrics.MessagesRejected.WithLabelValues(source, string(rej.Reason)).Inc()
	}
}

func (p *Pipeline) accept(source, ingestID string, class MessageClass, dev device.Device, ts time.Time, value float64) {
	p.logger.Debug("reading accepted",
		"source", source,
		"ingest_id", ingestID,
		"class", class.String(),
		"device_id", dev.ID,
		"mac", dev.MacAddress)
	if p.metrics != nil {
		p.metrics.MessagesAccepted.WithLabelValues(source, class.String()).Inc()
	}
	if p.feed != nil {
		p.feed.Broadcast(Event{
			DeviceID:  dev.ID,
			Mac:       dev.MacAddress,
			Class:     class.String(),
			Timestamp: walltime.Format(ts),
			Value:     value,
		})
	}
}
