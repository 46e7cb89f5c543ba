// Package events publishes run lifecycle events to an MQTT broker so
// external dashboards can follow pipeline progress. Entirely optional.
package events

import (
	"encoding/json"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type Publisher struct {
	conn      mqtt.Client
	topic     string
	connected atomic.Bool
	log       zerolog.Logger
}

type Options struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Username  string
	Password  string
	Log       zerolog.Logger
}

func Connect(opts Options) (*Publisher, error) {
	p := &Publisher{
		topic: opts.Topic,
		log:   opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	p.conn = mqtt.NewClient(clientOpts)
	token := p.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return p, nil
}

// Publish emits one event. Fire-and-forget: a broker outage must never slow
// down or fail a pipeline run.
func (p *Publisher) Publish(event string, payload map[string]any) {
	msg := map[string]any{
		"event":     event,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"payload":   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn().Err(err).Str("event", event).Msg("event marshal failed")
		return
	}
	p.conn.Publish(p.topic+"/"+event, 0, false, data)
}

func (p *Publisher) Connected() bool {
	return p.connected.Load()
}

func (p *Publisher) Close() {
	p.conn.Disconnect(250)
	p.connected.Store(false)
	p.log.Info().Msg("mqtt publisher disconnected")
}

func (p *Publisher) onConnect(mqtt.Client) {
	p.connected.Store(true)
	p.log.Info().Str("topic", p.topic).Msg("mqtt connected")
}

func (p *Publisher) onConnectionLost(_ mqtt.Client, err error) {
	p.connected.Store(false)
	p.log.Warn().Err(err).Msg("mqtt connection lost")
}
