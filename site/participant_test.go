package site_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/mqtt"
	"github.com/absmach/fedridge/pkg/mqtt/mocks"
	"github.com/absmach/fedridge/site"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	domainID  = "domain"
	channelID = "channel"
	runID     = "run-1"
)

func broadcast(t *testing.T, b fl.Broadcast) []byte {
	t.Helper()
	data, err := fl.EncodeBroadcast(b)
	require.NoError(t, err)

	return data
}

func contributions(t *testing.T, ps *mocks.MockPubSub) []fl.Contribution {
	t.Helper()
	var out []fl.Contribution
	for _, call := range ps.Calls {
		if call.Method != "Publish" || call.Arguments.String(1) != mqtt.ContributionTopic(domainID, channelID, runID) {
			continue
		}
		c, err := fl.DecodeContribution(call.Arguments.Get(2).([]byte))
		require.NoError(t, err)
		out = append(out, c)
	}

	return out
}

func TestParticipantAnswersBroadcasts(t *testing.T) {
	svc := newService(t, noisy)

	var handler mqtt.Handler
	ps := new(mocks.MockPubSub)
	ps.On("Subscribe", mock.Anything, mqtt.BroadcastTopic(domainID, channelID, runID), mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(2).(mqtt.Handler) }).
		Return(nil)
	ps.On("Publish", mock.Anything, mqtt.ContributionTopic(domainID, channelID, runID), mock.Anything).Return(nil)
	ps.On("Unsubscribe", mock.Anything, mqtt.BroadcastTopic(domainID, channelID, runID)).Return(nil)

	p := site.NewParticipant(svc, ps, domainID, channelID, slog.Default())
	require.NoError(t, p.Join(context.Background(), runID))
	require.NotNil(t, handler)

	topic := mqtt.BroadcastTopic(domainID, channelID, runID)
	require.NoError(t, handler(topic, broadcast(t, fl.Kickoff{})))
	require.NoError(t, handler(topic, broadcast(t, fl.Halted{W: []float64{2, 0}, Reason: fl.Converged})))

	// Another site is late, this one has nothing to resend.
	require.NoError(t, handler(topic, broadcast(t, fl.Deferred{Phase: fl.AwaitingMeanY, Pending: []string{"site-b"}})))
	// This site is named, so it answers the halt again.
	require.NoError(t, handler(topic, broadcast(t, fl.Deferred{Phase: fl.AwaitingMeanY, Pending: []string{"site-a"}})))

	cs := contributions(t, ps)
	require.Len(t, cs, 3)
	assert.Equal(t, fl.KindPreprocessed, cs[0].Kind())
	assert.Equal(t, fl.KindLocalStats, cs[1].Kind())
	assert.Equal(t, cs[1], cs[2])

	require.NoError(t, handler(topic, broadcast(t, fl.Completed{Result: fl.Result{Complete: true}})))
	ps.AssertCalled(t, "Unsubscribe", mock.Anything, topic)
	assert.Len(t, contributions(t, ps), 3)

	res, err := svc.Result(context.Background(), runID)
	require.NoError(t, err)
	assert.True(t, res.Complete)
}

func TestParticipantReportsFatalErrors(t *testing.T) {
	svc := newService(t, site.RecordSource{Selection: []string{"Not-A-Region"}})

	ps := new(mocks.MockPubSub)
	ps.On("Publish", mock.Anything, mqtt.ContributionTopic(domainID, channelID, runID), mock.Anything).Return(nil)
	ps.On("Unsubscribe", mock.Anything, mqtt.BroadcastTopic(domainID, channelID, runID)).Return(nil)

	p := site.NewParticipant(svc, ps, domainID, channelID, slog.Default())
	err := p.Handle(context.Background(), runID)("", broadcast(t, fl.Kickoff{}))
	require.ErrorIs(t, err, fl.ErrUnknownFeature)

	cs := contributions(t, ps)
	require.Len(t, cs, 1)
	failed, ok := cs[0].(fl.Failed)
	require.True(t, ok)
	assert.Equal(t, "site-a", failed.SiteID)
	assert.Contains(t, failed.Error, "Not-A-Region")
	ps.AssertCalled(t, "Unsubscribe", mock.Anything, mqtt.BroadcastTopic(domainID, channelID, runID))
}

func TestParticipantRejectsGarbage(t *testing.T) {
	p := site.NewParticipant(newService(t, noisy), new(mocks.MockPubSub), domainID, channelID, slog.Default())

	err := p.Handle(context.Background(), runID)("", []byte{0xff})
	assert.Error(t, err)
}

func TestParticipantHeartbeat(t *testing.T) {
	ps := new(mocks.MockPubSub)
	ctx, cancel := context.WithCancel(context.Background())
	ps.On("Publish", mock.Anything, mqtt.AliveTopic(domainID, channelID), mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil)

	p := site.NewParticipant(newService(t, noisy), ps, domainID, channelID, slog.Default())
	require.NoError(t, p.Heartbeat(ctx, time.Millisecond))
	ps.AssertCalled(t, "Publish", mock.Anything, mqtt.AliveTopic(domainID, channelID), mock.Anything)
}
