// Package mqtt veröffentlicht Anwendungsereignisse (eingereichte
// Schadenfälle, gespeicherte Annotationen) auf einem MQTT-Broker, damit
// nachgelagerte Systeme ohne Polling reagieren können.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"claimsight/config"
)

// Publisher ist der MQTT-Client der Anwendung. Bei deaktiviertem MQTT sind
// alle Methoden No-Ops, Aufrufer brauchen keinen nil-Check.
type Publisher struct {
	client      paho.Client
	topicPrefix string
	enabled     bool
}

// NewPublisher erstellt und verbindet den Publisher gemäß Konfiguration
func NewPublisher(cfg config.MQTTConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		log.Infof("Connected to MQTT broker %s:%d", cfg.Broker, cfg.Port)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
	}, nil
}

// Publish serialisiert die Nutzdaten als JSON und veröffentlicht sie unter
// dem Topic-Präfix. Fehler werden geloggt, nicht propagiert: Ereignisse
// sind Begleitinformation, kein Teil der Transaktion.
func (p *Publisher) Publish(suffix string, payload interface{}) {
	if !p.enabled {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Failed to marshal MQTT payload for %s: %v", suffix, err)
		return
	}

	topic := fmt.Sprintf("%s/%s", p.topicPrefix, suffix)
	token := p.client.Publish(topic, 0, false, data)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Warnf("Failed to publish MQTT message to %s: %v", topic, token.Error())
		}
	}()
}

// Disconnect trennt die Verbindung zum Broker
func (p *Publisher) Disconnect() {
	if p.enabled && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
