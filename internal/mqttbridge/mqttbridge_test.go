package mqttbridge

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itsatony/emhub/internal/config"
	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/registry/registrytest"
	"github.com/itsatony/emhub/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct{ done chan struct{} }

func newDoneToken() doneToken {
	ch := make(chan struct{})
	close(ch)
	return doneToken{done: ch}
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{}          { return t.done }
func (t doneToken) Error() error                   { return nil }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return newDoneToken()
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func newBridge(t *testing.T) (*Bridge, *fakePublisher, *registrytest.Conn) {
	t.Helper()
	reg := registry.New(nil)
	dash := registrytest.NewConn("dash", "")
	require.NoError(t, reg.Register(dash, registry.RoleDashboard))
	adapter := ingest.New(state.New(nil), reg, nil)

	b := New(config.MQTTConfig{
		Broker:        "tcp://127.0.0.1:1883",
		ReadingsTopic: "emhub/device/readings",
		SnapshotTopic: "emhub/snapshot",
		QoS:           1,
		Retain:        true,
	}, adapter)
	pub := &fakePublisher{}
	b.pub = pub
	return b, pub, dash
}

func TestHandleReadingSubmits(t *testing.T) {
	b, _, dash := newBridge(t)

	reading, err := b.HandleReading([]byte(`{"Temperature":"23.5","ADC_Value":[1,2,3,4]}`))
	require.NoError(t, err)
	assert.Equal(t, 23.5, reading.Temperature)
	assert.Equal(t, 3.0, reading.Gas3)
	assert.Equal(t, []string{models.KindSnapshot}, dash.Kinds())
}

func TestHandleReadingRejectsGarbage(t *testing.T) {
	b, _, dash := newBridge(t)

	_, err := b.HandleReading([]byte(`not json`))
	assert.Error(t, err)
	_, err = b.HandleReading([]byte(`{}`))
	assert.Error(t, err)
	assert.Empty(t, dash.Messages())
}

func TestSnapshotsArePublished(t *testing.T) {
	b, pub, _ := newBridge(t)
	b.PublishSnapshots()

	_, err := b.HandleReading([]byte(`{"humidity":41}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(pub.all()) == 1 }, time.Second, 5*time.Millisecond)
	msg := pub.all()[0]
	assert.Equal(t, "emhub/snapshot", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var snap models.SnapshotMessage
	require.NoError(t, json.Unmarshal(msg.payload, &snap))
	assert.Equal(t, models.KindSnapshot, snap.Kind)
	assert.Equal(t, 41.0, snap.Data.Humidity)
}

// heldToken stays pending until release is closed.
type heldToken struct {
	release chan struct{}
}

func (t heldToken) Wait() bool {
	<-t.release
	return true
}

func (t heldToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.release:
		return true
	case <-time.After(d):
		return false
	}
}

func (t heldToken) Done() <-chan struct{} { return t.release }
func (t heldToken) Error() error          { return nil }

type slowPublisher struct {
	fakePublisher
	release chan struct{}
}

func (p *slowPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.fakePublisher.Publish(topic, qos, retained, payload)
	return heldToken{release: p.release}
}

func TestSlowBrokerDoesNotBlockSubmit(t *testing.T) {
	b, _, dash := newBridge(t)
	pub := &slowPublisher{release: make(chan struct{})}
	b.pub = pub
	b.PublishSnapshots()
	t.Cleanup(b.Stop)

	start := time.Now()
	_, err := b.HandleReading([]byte(`{"humidity":41}`))
	require.NoError(t, err)
	_, err = b.HandleReading([]byte(`{"humidity":42}`))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, dash.CountKind(models.KindSnapshot))

	close(pub.release)
	require.Eventually(t, func() bool { return len(pub.all()) == 2 }, time.Second, 5*time.Millisecond)

	for i, want := range []float64{41, 42} {
		var snap models.SnapshotMessage
		require.NoError(t, json.Unmarshal(pub.all()[i].payload, &snap))
		assert.Equal(t, want, snap.Data.Humidity)
	}
}
