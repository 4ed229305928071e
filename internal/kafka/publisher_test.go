package kafka

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbolytics/docket/internal/events"
)

func TestConfigFromURL(t *testing.T) {
	t.Run("brokers topic and overrides", func(t *testing.T) {
		u, err := url.Parse("kafka://localhost:9092/docket.discoveries?acks=1&client.id=archiver")
		require.NoError(t, err)

		config, topic, err := ConfigFromURL(u)
		require.NoError(t, err)
		assert.Equal(t, "docket.discoveries", topic)
		assert.Equal(t, "localhost:9092", config["bootstrap.servers"])
		assert.Equal(t, "1", config["acks"])
		assert.Equal(t, "archiver", config["client.id"])
		assert.Equal(t, "snappy", config["compression.type"])
	})

	t.Run("missing topic", func(t *testing.T) {
		_, _, err := ConfigFromURL(&url.URL{Scheme: "kafka", Host: "localhost:9092"})
		assert.Error(t, err)
	})

	t.Run("missing broker", func(t *testing.T) {
		_, _, err := ConfigFromURL(&url.URL{Scheme: "kafka", Path: "/topic"})
		assert.Error(t, err)
	})
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, []byte("dataset-9"), MessageKey(events.Discovery{Dataset: 9, Page: 4}))
}
