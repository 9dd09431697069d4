package mqtt_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/fedridge/pkg/mqtt"
	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "m/d1/c/c1/fedridge/run-1/broadcast", mqtt.BroadcastTopic("d1", "c1", "run-1"))
	assert.Equal(t, "m/d1/c/c1/fedridge/run-1/contributions", mqtt.ContributionTopic("d1", "c1", "run-1"))
	assert.Equal(t, "m/d1/c/c1/fedridge/alive", mqtt.AliveTopic("d1", "c1"))
}

func TestNewPubSubRequiresID(t *testing.T) {
	_, err := mqtt.NewPubSub("tcp://localhost:1883", 1, "", "", "", "", "", time.Second, slog.Default())
	assert.Error(t, err)
}
