package site

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/mqtt"
)

// Participant connects a site service to the aggregator over MQTT.
type Participant struct {
	svc       Service
	pubsub    mqtt.PubSub
	domainID  string
	channelID string
	logger    *slog.Logger

	mu   sync.Mutex
	last map[string]fl.Broadcast
}

func NewParticipant(svc Service, pubsub mqtt.PubSub, domainID, channelID string, logger *slog.Logger) *Participant {
	return &Participant{
		svc:       svc,
		pubsub:    pubsub,
		domainID:  domainID,
		channelID: channelID,
		logger:    logger,
		last:      make(map[string]fl.Broadcast),
	}
}

// Join subscribes to the broadcasts of a run.
func (p *Participant) Join(ctx context.Context, runID string) error {
	return p.pubsub.Subscribe(ctx, mqtt.BroadcastTopic(p.domainID, p.channelID, runID), p.Handle(ctx, runID))
}

// Handle returns the MQTT handler for one run's broadcast topic. A Deferred
// broadcast naming this site replays the last broadcast it answered.
func (p *Participant) Handle(ctx context.Context, runID string) mqtt.Handler {
	return func(_ string, payload []byte) error {
		b, err := fl.DecodeBroadcast(payload)
		if err != nil {
			return err
		}

		if d, ok := b.(fl.Deferred); ok {
			if !slices.Contains(d.Pending, p.svc.ID()) {
				return nil
			}
			p.mu.Lock()
			b, ok = p.last[runID]
			p.mu.Unlock()
			if !ok {
				return nil
			}
		}

		c, err := p.svc.Step(ctx, runID, b)
		if err != nil {
			if errors.Is(err, fl.ErrValidation) {
				p.fail(ctx, runID, err)
			}

			return err
		}
		if c == nil {
			p.leave(ctx, runID)

			return nil
		}

		p.mu.Lock()
		p.last[runID] = b
		p.mu.Unlock()

		data, err := fl.EncodeContribution(c)
		if err != nil {
			return err
		}

		return p.pubsub.Publish(ctx, mqtt.ContributionTopic(p.domainID, p.channelID, runID), data)
	}
}

// Heartbeat publishes a liveness message every interval until ctx is done.
func (p *Participant) Heartbeat(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			payload, err := json.Marshal(map[string]any{
				"status":  "alive",
				"site_id": p.svc.ID(),
			})
			if err != nil {
				return err
			}
			if err := p.pubsub.Publish(ctx, mqtt.AliveTopic(p.domainID, p.channelID), payload); err != nil {
				p.logger.Warn("Failed to publish liveness", slog.Any("error", err))
			}
		}
	}
}

// fail tells the aggregator the run cannot go on here and leaves the run.
func (p *Participant) fail(ctx context.Context, runID string, cause error) {
	data, err := fl.EncodeContribution(fl.Failed{SiteID: p.svc.ID(), Error: cause.Error()})
	if err == nil {
		err = p.pubsub.Publish(ctx, mqtt.ContributionTopic(p.domainID, p.channelID, runID), data)
	}
	if err != nil {
		p.logger.Warn("Failed to report site failure",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
	}

	p.leave(ctx, runID)
}

func (p *Participant) leave(ctx context.Context, runID string) {
	p.mu.Lock()
	delete(p.last, runID)
	p.mu.Unlock()

	if err := p.pubsub.Unsubscribe(ctx, mqtt.BroadcastTopic(p.domainID, p.channelID, runID)); err != nil {
		p.logger.Warn("Failed to unsubscribe from run broadcasts",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
	}
}
