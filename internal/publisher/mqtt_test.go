package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/espisync/internal/config"
	"github.com/jgoulah/espisync/pkg/models"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	messages     []published
	failAt       int // index of the publish that fails; <0 never
	hang         bool
	connected    bool
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	idx := len(c.messages)
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if c.hang {
		return newToken(nil, false)
	}
	if c.failAt >= 0 && idx == c.failAt {
		return newToken(errors.New("not authorized"), true)
	}
	return newToken(nil, true)
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestNew_Disabled(t *testing.T) {
	_, err := New(config.MQTTConfig{Enabled: false})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = New(config.MQTTConfig{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker")
}

func TestWriteReadings(t *testing.T) {
	fc := &fakeClient{failAt: -1, connected: true}
	p := newPublisher(fc, "home/energy", 1)

	readings := []models.Reading{
		{Timestamp: 1700000900, Duration: 900, Value: 0.25, Category: models.CategoryElectric},
		{Timestamp: 1700000000, Duration: 900, Value: 0.5, Category: models.CategoryElectric},
	}
	n, err := p.WriteReadings(context.Background(), readings)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, fc.messages, 2)
	assert.Equal(t, "home/energy/electric", fc.messages[0].topic)
	assert.Equal(t, byte(1), fc.messages[0].qos)
	assert.False(t, fc.messages[0].retained)

	var msg Message
	require.NoError(t, json.Unmarshal(fc.messages[1].payload, &msg))
	assert.Equal(t, Message{
		Timestamp: 1700000000,
		Start:     "2023-11-14T22:13:20Z",
		End:       "2023-11-14T22:28:20Z",
		Duration:  900,
		ValueKWh:  0.5,
		Type:      "electric",
	}, msg)

	require.NoError(t, p.Close())
	assert.True(t, fc.disconnected)
}

func TestWriteReadings_StopsAtFailure(t *testing.T) {
	fc := &fakeClient{failAt: 1, connected: true}
	p := newPublisher(fc, "", 0)

	readings := []models.Reading{
		{Timestamp: 3, Category: "electric"},
		{Timestamp: 2, Category: "electric"},
		{Timestamp: 1, Category: "electric"},
	}
	n, err := p.WriteReadings(context.Background(), readings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
	assert.Equal(t, 1, n)
	assert.Len(t, fc.messages, 2)
	assert.Equal(t, "energy_usage/electric", fc.messages[0].topic)
}

func TestWriteReadings_ContextCancelled(t *testing.T) {
	fc := &fakeClient{failAt: -1, hang: true}
	p := newPublisher(fc, "", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := p.WriteReadings(ctx, []models.Reading{{Timestamp: 1, Category: "electric"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)

	require.NoError(t, p.Close())
	assert.False(t, fc.disconnected, "not connected, nothing to disconnect")
}
