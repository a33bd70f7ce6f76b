// Package publish forwards discovery updates to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/beaconpair/internal/scan"
)

// DefaultTopicPrefix is the topic prefix used when none is configured.
const DefaultTopicPrefix = "beacons"

// Client is the part of mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the JSON document published for every discovery update.
type Message struct {
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	UUID      string    `json:"uuid"`
	Major     uint16    `json:"major"`
	Minor     uint16    `json:"minor"`
	RSSI      int       `json:"rssi"`
	Address   string    `json:"address,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Count     int       `json:"count"`
}

// NewMessage converts an update into its published form.
func NewMessage(u scan.Update) Message {
	b := u.Beacon
	return Message{
		Type:      u.Type.String(),
		Key:       string(b.Key),
		UUID:      b.Identity.UUID,
		Major:     b.Identity.Major,
		Minor:     b.Identity.Minor,
		RSSI:      b.RSSI,
		Address:   b.Address,
		FirstSeen: b.FirstSeenAt.UTC(),
		LastSeen:  b.LastSeenAt.UTC(),
		Count:     b.Count,
	}
}

// MQTTPublisher publishes discovery updates, one topic per beacon key.
type MQTTPublisher struct {
	client Client
	prefix string
	qos    byte
	logger *logrus.Logger
}

// NewMQTTPublisher creates a publisher writing to <topicPrefix>/<key>.
func NewMQTTPublisher(client Client, topicPrefix string, logger *logrus.Logger) *MQTTPublisher {
	if logger == nil {
		logger = logrus.New()
	}
	topicPrefix = strings.TrimRight(topicPrefix, "/")
	if topicPrefix == "" {
		topicPrefix = DefaultTopicPrefix
	}
	return &MQTTPublisher{client: client, prefix: topicPrefix, logger: logger}
}

// Topic returns the topic an update for key is published to.
func (p *MQTTPublisher) Topic(key string) string {
	return p.prefix + "/" + key
}

// Publish sends one update and waits for the broker to accept it or ctx to end.
func (p *MQTTPublisher) Publish(ctx context.Context, u scan.Update) error {
	data, err := json.Marshal(NewMessage(u))
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	topic := p.Topic(string(u.Beacon.Key))
	token := p.client.Publish(topic, p.qos, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic": topic,
		"type":  u.Type,
		"rssi":  u.Beacon.RSSI,
	}).Debug("Published beacon update")
	return nil
}

// Run forwards updates until ctx ends or the channel closes. Publish
// failures are logged and do not stop forwarding.
func (p *MQTTPublisher) Run(ctx context.Context, updates <-chan scan.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := p.Publish(ctx, u); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.WithError(err).Warn("Failed to publish beacon update")
			}
		}
	}
}

// Connect dials broker and returns a connected client.
func Connect(broker, clientID string) (mqtt.Client, error) {
	if clientID == "" {
		clientID = fmt.Sprintf("beaconpair-%d", time.Now().UnixNano())
	}
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts = opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", broker, token.Error())
	}
	return client, nil
}
