package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/vowvendors-backend/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		name      string
		projectID string
		topic     string
		want      string
	}{
		{"bare id", "vv-prod", "vendor-subscription-events", "projects/vv-prod/topics/vendor-subscription-events"},
		{"trimmed", " vv-prod ", " events ", "projects/vv-prod/topics/events"},
		{"full name passthrough", "ignored", "projects/other/topics/events", "projects/other/topics/events"},
		{"missing project", "", "events", ""},
		{"empty topic", "vv-prod", "  ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, TopicResourceName(tc.projectID, tc.topic))
		})
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	require.Empty(t, topicNames(config.PubSubConfig{VendorEventsTopic: "  "}))
	require.Equal(t, []string{"events"}, topicNames(config.PubSubConfig{VendorEventsTopic: "events"}))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{VendorEventsTopic: "events"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("events"))
	require.Nil(t, c.VendorEventsPublisher())
	require.NoError(t, c.Close())
	require.Error(t, c.Ping(context.Background()))
}
