// FilePath: internal/mqttbridge/mqttbridge.go
package mqttbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itsatony/emhub/internal/config"
	"github.com/itsatony/emhub/internal/ingest"
	"github.com/itsatony/emhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	submitTimeout  = 10 * time.Second

	// outboxSize bounds snapshots waiting for the broker.
	outboxSize = 64
)

// Publisher is the part of mqtt.Client used for outbound snapshots.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Bridge feeds readings published on the broker into the ingest adapter and
// republishes every committed snapshot.
type Bridge struct {
	cfg    config.MQTTConfig
	ingest *ingest.Adapter
	client mqtt.Client
	pub    Publisher

	outbox   chan models.Reading
	stop     chan struct{}
	stopOnce sync.Once
}

// New prepares a Bridge; nothing connects until Start.
func New(cfg config.MQTTConfig, adapter *ingest.Adapter) *Bridge {
	b := &Bridge{
		cfg:    cfg,
		ingest: adapter,
		outbox: make(chan models.Reading, outboxSize),
		stop:   make(chan struct{}),
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = nuts.NID("emhub", 8)
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			nuts.L.Warnf("[MQTT] Connection to %s lost: %v", cfg.Broker, err)
		})
	b.client = mqtt.NewClient(opts)
	b.pub = b.client
	return b
}

// Start connects to the broker and hooks snapshot publishing into the
// adapter. The subscription is renewed on every reconnect.
func (b *Bridge) Start() error {
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect to %s timed out", b.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", b.cfg.Broker, err)
	}
	b.PublishSnapshots()
	nuts.L.Infof("[MQTT] Connected to %s", b.cfg.Broker)
	return nil
}

// PublishSnapshots registers the snapshot publisher with the adapter.
// Snapshots are queued and published in order by a single goroutine, so a
// slow broker never holds up Submit.
func (b *Bridge) PublishSnapshots() {
	if b.cfg.SnapshotTopic == "" {
		return
	}
	go b.publishLoop()
	b.ingest.OnSnapshot("mqttbridge", b.enqueue)
}

func (b *Bridge) enqueue(r models.Reading) {
	select {
	case b.outbox <- r:
	default:
		nuts.L.Warnf("[MQTT] Snapshot queue full, dropping update for %s", b.cfg.SnapshotTopic)
	}
}

func (b *Bridge) publishLoop() {
	for {
		select {
		case <-b.stop:
			return
		case r := <-b.outbox:
			if err := b.publish(r); err != nil {
				nuts.L.Warnf("[MQTT] Snapshot publish failed: %v", err)
			}
		}
	}
}

func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
		nuts.L.Infof("[MQTT] Disconnected from %s", b.cfg.Broker)
	}
}

func (b *Bridge) onConnect(client mqtt.Client) {
	if b.cfg.ReadingsTopic == "" {
		return
	}
	token := client.Subscribe(b.cfg.ReadingsTopic, b.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		if _, err := b.HandleReading(msg.Payload()); err != nil {
			nuts.L.Warnf("[MQTT] Rejected message on %s: %v", msg.Topic(), err)
		}
	})
	if token.WaitTimeout(connectTimeout) && token.Error() != nil {
		nuts.L.Errorf("[MQTT] Subscribe to %s failed: %v", b.cfg.ReadingsTopic, token.Error())
		return
	}
	nuts.L.Infof("[MQTT] Listening on %s", b.cfg.ReadingsTopic)
}

// HandleReading decodes one broker payload and submits it.
func (b *Bridge) HandleReading(payload []byte) (models.Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return models.Reading{}, fmt.Errorf("decode reading: %w", err)
	}
	if len(fields) == 0 {
		return models.Reading{}, errors.New("reading is not a JSON object")
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	return b.ingest.Submit(ctx, fields, ingest.Source{Transport: ingest.TransportMQTT}), nil
}

func (b *Bridge) publish(r models.Reading) error {
	data, err := json.Marshal(models.SnapshotMessage{Kind: models.KindSnapshot, Data: r})
	if err != nil {
		return err
	}
	token := b.pub.Publish(b.cfg.SnapshotTopic, b.cfg.QoS, b.cfg.Retain, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", b.cfg.SnapshotTopic)
	}
	return token.Error()
}
