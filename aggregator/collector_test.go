package aggregator_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/absmach/fedridge/aggregator"
	aggmocks "github.com/absmach/fedridge/aggregator/mocks"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/mqtt"
	mqttmocks "github.com/absmach/fedridge/pkg/mqtt/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	domainID  = "domain"
	channelID = "channel"
)

func encode(t *testing.T, c fl.Contribution) []byte {
	t.Helper()
	data, err := fl.EncodeContribution(c)
	require.NoError(t, err)

	return data
}

// published decodes every broadcast published to the run's topic.
func published(t *testing.T, ps *mqttmocks.MockPubSub, runID string) []fl.Broadcast {
	t.Helper()
	var out []fl.Broadcast
	for _, call := range ps.Calls {
		if call.Method != "Publish" || call.Arguments.String(1) != mqtt.BroadcastTopic(domainID, channelID, runID) {
			continue
		}
		b, err := fl.DecodeBroadcast(call.Arguments.Get(2).([]byte))
		require.NoError(t, err)
		out = append(out, b)
	}

	return out
}

func TestCollectorSubmitsCompleteRounds(t *testing.T) {
	svc := newService(t)
	run, err := svc.CreateRun(context.Background(), aggregator.RunConfig{
		Config: aggregator.Config{InitialW: []float64{0, 0}},
		Sites:  []string{"site-a", "site-b"},
	})
	require.NoError(t, err)

	var handler mqtt.Handler
	ps := new(mqttmocks.MockPubSub)
	ps.On("Subscribe", mock.Anything, mqtt.ContributionTopic(domainID, channelID, run.ID), mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(2).(mqtt.Handler) }).
		Return(nil)
	ps.On("Publish", mock.Anything, mqtt.BroadcastTopic(domainID, channelID, run.ID), mock.Anything).Return(nil)

	c := aggregator.NewCollector(svc, ps, domainID, channelID, slog.Default())
	require.NoError(t, c.Follow(context.Background(), run.ID))
	require.NotNil(t, handler)
	assert.Equal(t, []fl.Broadcast{fl.Kickoff{}}, published(t, ps, run.ID))

	topic := mqtt.ContributionTopic(domainID, channelID, run.ID)
	require.NoError(t, handler(topic, encode(t, fl.Preprocessed{SiteID: "site-a", NumFeatures: 2, Count: 5})))

	got, err := svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Rounds)
	assert.Len(t, published(t, ps, run.ID), 1)

	require.NoError(t, handler(topic, encode(t, fl.Preprocessed{SiteID: "site-b", NumFeatures: 2, Count: 5})))

	got, err = svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Rounds)
	assert.Equal(t, fl.Iterating, got.State.Phase)

	broadcasts := published(t, ps, run.ID)
	require.Len(t, broadcasts, 2)
	assert.Equal(t, fl.Iterate{W: []float64{0, 0}, Iteration: 1}, broadcasts[1])

	// The buffer starts empty for the next round.
	require.NoError(t, handler(topic, encode(t, fl.Gradient{SiteID: "site-a", Gradient: []float64{1, 1}, Objective: 2, NumFeatures: 2})))
	got, err = svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Rounds)
}

func TestCollectorRejectsUnknownSites(t *testing.T) {
	svc := newService(t)
	run, err := svc.CreateRun(context.Background(), aggregator.RunConfig{Sites: []string{"site-a"}})
	require.NoError(t, err)

	ps := new(mqttmocks.MockPubSub)
	ps.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ps.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	c := aggregator.NewCollector(svc, ps, domainID, channelID, slog.Default())
	require.NoError(t, c.Follow(context.Background(), run.ID))

	err = c.Handle(context.Background(), run.ID)("", encode(t, fl.Preprocessed{SiteID: "intruder", NumFeatures: 2}))
	assert.ErrorIs(t, err, fl.ErrUnknownSite)
}

func TestCollectorRequiresSites(t *testing.T) {
	svc := newService(t)
	run, err := svc.CreateRun(context.Background(), aggregator.RunConfig{})
	require.NoError(t, err)

	c := aggregator.NewCollector(svc, new(mqttmocks.MockPubSub), domainID, channelID, slog.Default())
	err = c.Follow(context.Background(), run.ID)
	assert.ErrorIs(t, err, aggregator.ErrNoSites)
	assert.ErrorIs(t, err, fl.ErrValidation)
}

func TestCollectorKeepsContributionsAcrossDeferral(t *testing.T) {
	run := aggregator.Run{ID: "run-1", Sites: []string{"site-a", "site-b"}}
	la := fl.LocalStats{SiteID: "site-a", MeanY: 1, Count: 3, Beta: []float64{1}}
	lb := fl.LocalStats{SiteID: "site-b", MeanY: 2, Count: 3, Beta: []float64{1}}

	svc := new(aggmocks.MockService)
	svc.On("GetRun", mock.Anything, run.ID).Return(run, nil)
	svc.On("SubmitRound", mock.Anything, run.ID, []fl.Contribution{la, fl.LocalStats{SiteID: "site-b"}}).
		Return(fl.Deferred{Phase: fl.AwaitingMeanY, Pending: []string{"site-b"}}, nil).Once()
	svc.On("SubmitRound", mock.Anything, run.ID, []fl.Contribution{la, lb}).
		Return(fl.MeanY{W: []float64{1}, GlobalMeanY: 1.5, StatisticsPhase: 2}, nil).Once()

	ps := new(mqttmocks.MockPubSub)
	ps.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ps.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	c := aggregator.NewCollector(svc, ps, domainID, channelID, slog.Default())
	require.NoError(t, c.Follow(context.Background(), run.ID))

	h := c.Handle(context.Background(), run.ID)
	require.NoError(t, h("", encode(t, la)))
	require.NoError(t, h("", encode(t, fl.LocalStats{SiteID: "site-b"})))
	require.NoError(t, h("", encode(t, lb)))

	broadcasts := published(t, ps, run.ID)
	require.Len(t, broadcasts, 3)
	assert.Equal(t, fl.Deferred{Phase: fl.AwaitingMeanY, Pending: []string{"site-b"}}, broadcasts[1])
	assert.Equal(t, fl.MeanY{W: []float64{1}, GlobalMeanY: 1.5, StatisticsPhase: 2}, broadcasts[2])
	svc.AssertExpectations(t)
}

func TestCollectorStopsOnValidationFailure(t *testing.T) {
	svc := newService(t)
	run, err := svc.CreateRun(context.Background(), aggregator.RunConfig{Sites: []string{"site-a", "site-b"}})
	require.NoError(t, err)

	ps := new(mqttmocks.MockPubSub)
	ps.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ps.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ps.On("Unsubscribe", mock.Anything, mqtt.ContributionTopic(domainID, channelID, run.ID)).Return(nil)

	c := aggregator.NewCollector(svc, ps, domainID, channelID, slog.Default())
	require.NoError(t, c.Follow(context.Background(), run.ID))

	h := c.Handle(context.Background(), run.ID)
	require.NoError(t, h("", encode(t, fl.Preprocessed{SiteID: "site-a", NumFeatures: 2})))
	err = h("", encode(t, fl.Preprocessed{SiteID: "site-b", NumFeatures: 3}))
	assert.ErrorIs(t, err, fl.ErrFeatureMismatch)
	ps.AssertCalled(t, "Unsubscribe", mock.Anything, mqtt.ContributionTopic(domainID, channelID, run.ID))

	got, err := svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, aggregator.Failed, got.Status)
}

func TestCollectorFailsRunOnSiteFailure(t *testing.T) {
	svc := newService(t)
	run, err := svc.CreateRun(context.Background(), aggregator.RunConfig{Sites: []string{"site-a", "site-b"}})
	require.NoError(t, err)

	ps := new(mqttmocks.MockPubSub)
	ps.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ps.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ps.On("Unsubscribe", mock.Anything, mqtt.ContributionTopic(domainID, channelID, run.ID)).Return(nil)

	c := aggregator.NewCollector(svc, ps, domainID, channelID, slog.Default())
	require.NoError(t, c.Follow(context.Background(), run.ID))

	err = c.Handle(context.Background(), run.ID)("", encode(t, fl.Failed{SiteID: "site-b", Error: "unrecognized feature"}))
	assert.ErrorIs(t, err, fl.ErrSiteFailed)
	ps.AssertCalled(t, "Unsubscribe", mock.Anything, mqtt.ContributionTopic(domainID, channelID, run.ID))

	got, err := svc.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, aggregator.Failed, got.Status)
	assert.Contains(t, got.Error, "unrecognized feature")
	assert.Equal(t, []fl.Broadcast{fl.Kickoff{}}, published(t, ps, run.ID))
}

func TestCollectorFollowsCreatedRuns(t *testing.T) {
	ps := new(mqttmocks.MockPubSub)
	ps.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ps.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	inner := newService(t)
	c := aggregator.NewCollector(inner, ps, domainID, channelID, slog.Default())
	svc := c.Following(inner)

	_, err := svc.CreateRun(context.Background(), aggregator.RunConfig{})
	require.NoError(t, err)
	ps.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)

	run, err := svc.CreateRun(context.Background(), aggregator.RunConfig{Sites: []string{"site-a"}})
	require.NoError(t, err)
	ps.AssertCalled(t, "Subscribe", mock.Anything, mqtt.ContributionTopic(domainID, channelID, run.ID), mock.Anything)
}
