package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/catalogdb/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	keepAlive      = 60 * time.Second
)

// disconnectQuiesce is how long Disconnect lets in-flight messages drain,
// in milliseconds.
const disconnectQuiesce = 1000

// maxPayload caps an encoded event.
const maxPayload = 1 << 20

// clientOptions maps the broker config onto paho options. Sessions are clean
// and retried with backoff between the configured delays. The Last Will
// marks topics' instance offline if the process dies without Close.
func clientOptions(cfg config.MQTTConfig, topics Topics) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	po := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetWill(topics.Status(), string(statusPayload(statusOffline, cfg.Broker.ClientID, reasonUnexpected)), 1, true)

	if cfg.Auth.Username != "" {
		po.SetUsername(cfg.Auth.Username)
		po.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		po.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return po
}
