package payload

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var meta = Metadata{WebhookID: "wh-1", WebhookName: "billing", DeliveryID: "d-1", Attempt: 1}

func TestNew(t *testing.T) {
	t.Run("success - wraps data and stamps time", func(t *testing.T) {
		before := time.Now().UTC()

		e, err := New("payment.approved", json.RawMessage(`{"amount":100}`), meta)
		require.NoError(t, err)
		assert.Equal(t, "payment.approved", e.Event)
		assert.False(t, e.Timestamp.Before(before))
		assert.JSONEq(t, `{"amount":100}`, string(e.Data))
		assert.Equal(t, meta, e.Metadata)
	})

	t.Run("success - custom event", func(t *testing.T) {
		_, err := New("custom", json.RawMessage(`{"test":true}`), Metadata{WebhookID: "wh-1", Test: true})
		require.NoError(t, err)
	})

	t.Run("error - invalid event format", func(t *testing.T) {
		_, err := New("payment-approved", json.RawMessage(`{}`), meta)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating event")
	})

	t.Run("error - data is not JSON", func(t *testing.T) {
		_, err := New("custom", json.RawMessage(`{oops`), meta)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "valid JSON")
	})

	t.Run("error - missing webhook id", func(t *testing.T) {
		_, err := New("custom", json.RawMessage(`{}`), Metadata{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "webhook_id")
	})
}

func TestBytesAndParse(t *testing.T) {
	e, err := New("idea.created", json.RawMessage(`{"id":"i-1"}`), meta)
	require.NoError(t, err)

	body, err := e.Bytes()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, "idea.created", raw["event"])
	assert.Contains(t, raw, "timestamp")
	assert.Contains(t, raw, "data")
	metadata := raw["metadata"].(map[string]any)
	assert.Equal(t, "wh-1", metadata["webhook_id"])
	assert.NotContains(t, metadata, "test")

	parsed, err := Parse(body)
	require.NoError(t, err)
	assert.True(t, e.Timestamp.Equal(parsed.Timestamp))
	assert.Equal(t, e.Metadata, parsed.Metadata)
}

func TestParse(t *testing.T) {
	t.Run("success - timestamp with nanoseconds", func(t *testing.T) {
		data := []byte(`{
			"event": "user.created",
			"timestamp": "2024-01-01T12:00:00.123456789Z",
			"data": {"user_id": 123},
			"metadata": {"webhook_id": "wh-1"}
		}`)

		e, err := Parse(data)
		require.NoError(t, err)
		assert.NotZero(t, e.Timestamp.Nanosecond())
	})

	t.Run("error - invalid JSON", func(t *testing.T) {
		_, err := Parse([]byte(`{invalid json}`))
		require.Error(t, err)
	})

	t.Run("error - missing timestamp", func(t *testing.T) {
		data := []byte(`{"event": "custom", "data": {}, "metadata": {"webhook_id": "wh-1"}}`)

		_, err := Parse(data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timestamp")
	})

	t.Run("error - missing data", func(t *testing.T) {
		data := []byte(`{"event": "custom", "timestamp": "2024-01-01T12:00:00Z", "metadata": {"webhook_id": "wh-1"}}`)

		_, err := Parse(data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "data is required")
	})
}
