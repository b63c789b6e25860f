package sink

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gps-relay/internal/logging"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// MQTT publishes to a broker with QoS 0. The client reconnects on its own;
// publishes while disconnected fail.
type MQTT struct {
	client mqtt.Client
}

func DialMQTT(broker, clientID string, log *slog.Logger) (*MQTT, error) {
	if log == nil {
		log = logging.Discard()
	}
	if clientID == "" {
		host, _ := os.Hostname()
		clientID = fmt.Sprintf("gps-relay-%s-%d", host, os.Getpid())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("mqtt connected", "broker", broker, "client_id", clientID)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", "broker", broker, "error", err.Error())
		})

	client := mqtt.NewClient(opts)
	// With SetConnectRetry the token completes only once connected; a timeout
	// leaves the client retrying in the background.
	token := client.Connect()
	if token.WaitTimeout(mqttConnectTimeout) {
		if err := token.Error(); err != nil {
			return nil, err
		}
	} else {
		log.Warn("mqtt broker not reachable yet, retrying in background", "broker", broker)
	}
	return &MQTT{client: client}, nil
}

func (m *MQTT) Publish(topic string, payload []byte) error {
	if !m.client.IsConnectionOpen() {
		return errors.New("mqtt not connected")
	}
	token := m.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.New("mqtt publish timeout")
	}
	return token.Error()
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
