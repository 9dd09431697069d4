package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/mqtt"
)

var ErrNoSites = errors.New("run does not name its sites")

// Collector feeds a run from MQTT. Each site publishes one contribution
// envelope per round; once every expected site has reported, the round is
// submitted and the broadcast is published back to the sites.
type Collector struct {
	svc       Service
	pubsub    mqtt.PubSub
	domainID  string
	channelID string
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]map[string]fl.Contribution
}

func NewCollector(svc Service, pubsub mqtt.PubSub, domainID, channelID string, logger *slog.Logger) *Collector {
	return &Collector{
		svc:       svc,
		pubsub:    pubsub,
		domainID:  domainID,
		channelID: channelID,
		logger:    logger,
		pending:   make(map[string]map[string]fl.Contribution),
	}
}

// Follow subscribes to the run's contributions and publishes the kickoff.
func (c *Collector) Follow(ctx context.Context, runID string) error {
	run, err := c.svc.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if len(run.Sites) == 0 {
		return fl.Validation(fmt.Errorf("%w: %s", ErrNoSites, runID))
	}

	c.mu.Lock()
	c.pending[runID] = make(map[string]fl.Contribution)
	c.mu.Unlock()

	if err := c.pubsub.Subscribe(ctx, mqtt.ContributionTopic(c.domainID, c.channelID, runID), c.Handle(context.WithoutCancel(ctx), runID)); err != nil {
		return err
	}

	return c.publish(ctx, runID, fl.Kickoff{})
}

type following struct {
	Service
	collector *Collector
}

// Following wraps svc so that every run created with a site list is
// followed over MQTT.
func (c *Collector) Following(svc Service) Service {
	return &following{Service: svc, collector: c}
}

func (f *following) CreateRun(ctx context.Context, cfg RunConfig) (Run, error) {
	run, err := f.Service.CreateRun(ctx, cfg)
	if err != nil || len(run.Sites) == 0 {
		return run, err
	}

	return run, f.collector.Follow(ctx, run.ID)
}

// Handle returns the MQTT handler for one run's contribution topic.
func (c *Collector) Handle(ctx context.Context, runID string) mqtt.Handler {
	return func(_ string, payload []byte) error {
		contribution, err := fl.DecodeContribution(payload)
		if err != nil {
			return err
		}

		round, ok, err := c.add(ctx, runID, contribution)
		if err != nil || !ok {
			return err
		}

		broadcast, err := c.svc.SubmitRound(ctx, runID, round)
		switch {
		case errors.Is(err, fl.ErrValidation):
			c.stop(ctx, runID)

			return err
		case err != nil:
			c.reset(runID, nil)

			return err
		}

		switch b := broadcast.(type) {
		case fl.Deferred:
			c.reset(runID, b.Pending)
		case fl.Completed:
			c.stop(ctx, runID)
		default:
			c.reset(runID, nil)
		}

		return c.publish(ctx, runID, broadcast)
	}
}

// add buffers the contribution and returns the full round once every
// expected site has reported. A Failed report is a round on its own.
func (c *Collector) add(ctx context.Context, runID string, contribution fl.Contribution) ([]fl.Contribution, bool, error) {
	run, err := c.svc.GetRun(ctx, runID)
	if err != nil {
		return nil, false, err
	}
	expected := run.State.Sites
	if len(expected) == 0 {
		expected = run.Sites
	}
	if !slices.Contains(expected, contribution.Site()) {
		return nil, false, fmt.Errorf("%w: %q in run %s", fl.ErrUnknownSite, contribution.Site(), runID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	buf, ok := c.pending[runID]
	if !ok {
		return nil, false, fmt.Errorf("run %s is not followed", runID)
	}
	if _, ok := contribution.(fl.Failed); ok {
		return []fl.Contribution{contribution}, true, nil
	}
	buf[contribution.Site()] = contribution

	for _, site := range expected {
		if _, ok := buf[site]; !ok {
			return nil, false, nil
		}
	}

	round := make([]fl.Contribution, 0, len(buf))
	for _, site := range slices.Sorted(maps.Keys(buf)) {
		round = append(round, buf[site])
	}

	return round, true, nil
}

// reset drops the buffered contributions of sites, or all of them when
// sites is nil.
func (c *Collector) reset(runID string, sites []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, ok := c.pending[runID]
	if !ok {
		return
	}
	if sites == nil {
		clear(buf)

		return
	}
	for _, site := range sites {
		delete(buf, site)
	}
}

func (c *Collector) stop(ctx context.Context, runID string) {
	c.mu.Lock()
	delete(c.pending, runID)
	c.mu.Unlock()

	if err := c.pubsub.Unsubscribe(ctx, mqtt.ContributionTopic(c.domainID, c.channelID, runID)); err != nil {
		c.logger.Warn("Failed to unsubscribe from run contributions",
			slog.String("run_id", runID),
			slog.Any("error", err),
		)
	}
}

func (c *Collector) publish(ctx context.Context, runID string, b fl.Broadcast) error {
	payload, err := fl.EncodeBroadcast(b)
	if err != nil {
		return err
	}

	return c.pubsub.Publish(ctx, mqtt.BroadcastTopic(c.domainID, c.channelID, runID), payload)
}
