// Package portal publishes server events via MQTT.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/pairs-server/errors"
	"go.uber.org/zap"
	"net/url"
	"sync"
	"time"
)

// DefaultClientID is the MQTT client id that is used if none is configured.
const DefaultClientID = "pairs-server"
const mqttKeepAlive = 8

const mqttQOS = 0

// Topic is an MQTT topic.
type Topic string

const (
	// TopicGameFinished receives outcomes of finished games.
	TopicGameFinished Topic = "pairs/results/finished"
	// TopicServerStats receives periodic server statistics.
	TopicServerStats Topic = "pairs/server/stats"
)

// Config is the config for the Base.
type Config struct {
	// MQTTAddr is the address where the MQTT-server is found.
	MQTTAddr string
	// ClientID is the optional MQTT client id. Defaults to DefaultClientID.
	ClientID string
}

// publisher is used for publishing MQTT events.
type publisher interface {
	Publish(ctx context.Context, publish *paho.Publish) (*paho.PublishResponse, error)
}

// Base is a wrapper for all connection related stuff for a Portal. Using the
// Base, you only need to Open the Base and then use portals via NewPortal.
type Base interface {
	// Open the connection. Stays opened until the given context.Context is done.
	Open(ctx context.Context) error
	// NewPortal creates a new Portal that uses the connection from the Base.
	NewPortal(name string) Portal
}

type basePortal struct {
	logger *zap.Logger
	config Config
	// brokerURL is the URL of the MQTT broker.
	brokerURL *url.URL
	// publisher is used for publishing MQTT messages. It is nil until the Base
	// was opened.
	publisher publisher
	// publisherMutex locks publisher.
	publisherMutex sync.RWMutex
}

// Portal publishes to topics.
type Portal interface {
	// Publish the given payload to the Topic. It will catch any errors during
	// publishing and log them using the Logger.
	Publish(ctx context.Context, topic Topic, payload interface{})
}

// NewBase creates a Base with the given Config. Open it with Base.Open.
func NewBase(logger *zap.Logger, config Config) (Base, error) {
	// Parse URL.
	brokerURL, err := url.Parse(config.MQTTAddr)
	if err != nil {
		return nil, errors.NewInternalErrorFromErr(err, "invalid mqtt addr", errors.Details{"was": config.MQTTAddr})
	}
	if brokerURL.Host == "" {
		return nil, errors.NewInternalError("missing host in mqtt addr", errors.Details{"was": config.MQTTAddr})
	}
	if config.ClientID == "" {
		config.ClientID = DefaultClientID
	}
	return &basePortal{
		logger:    logger,
		config:    config,
		brokerURL: brokerURL,
	}, nil
}

// Open the base portal and keep the connection to the MQTT server until the
// given context.Context is done.
func (p *basePortal) Open(ctx context.Context) error {
	// Establish MQTT connection.
	conn, err := autopaho.NewConnection(ctx, p.genClientConfig())
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "create mqtt server connection failed", nil)
	}
	p.setPublisher(conn)
	// Wait until we are done.
	<-ctx.Done()
	p.setPublisher(nil)
	// Shutdown MQTT connection.
	disconnectTimeout, cancelDisconnectTimeout := context.WithTimeout(context.Background(), 3*time.Second)
	err = conn.Disconnect(disconnectTimeout)
	cancelDisconnectTimeout()
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "disconnect from mqtt server failed", nil)
	}
	return nil
}

func (p *basePortal) setPublisher(publisher publisher) {
	p.publisherMutex.Lock()
	defer p.publisherMutex.Unlock()
	p.publisher = publisher
}

func (p *basePortal) currentPublisher() publisher {
	p.publisherMutex.RLock()
	defer p.publisherMutex.RUnlock()
	return p.publisher
}

// genClientConfig generates the autopaho.ClientConfig that is ready to launch.
func (p *basePortal) genClientConfig() autopaho.ClientConfig {
	return autopaho.ClientConfig{
		BrokerUrls: []*url.URL{p.brokerURL},
		KeepAlive:  mqttKeepAlive,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt server connection established")
		},
		OnConnectError: func(err error) {
			errors.Log(p.logger, errors.Error{
				Code:    errors.ErrCommunication,
				Kind:    errors.KindPublish,
				Err:     err,
				Message: "mqtt server connection failed",
			})
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.config.ClientID,
			Router:   paho.NewStandardRouter(),
			OnServerDisconnect: func(disconnect *paho.Disconnect) {
				reason := fmt.Sprintf("reason code %d", disconnect.ReasonCode)
				if disconnect.Properties != nil {
					reason = disconnect.Properties.ReasonString
				}
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Kind:    errors.KindPublish,
					Message: fmt.Sprintf("mqtt server requested disconnect: %s", reason),
				})
			},
			OnClientError: func(err error) {
				errors.Log(p.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Kind:    errors.KindPublish,
					Err:     err,
					Message: "mqtt server connection client error",
				})
			},
		},
	}
}

// NewPortal creates a new Portal that publishes using the connection of the
// Base.
func (p *basePortal) NewPortal(name string) Portal {
	return &portal{
		logger:    p.logger.Named(name),
		publisher: p.currentPublisher,
	}
}

// portal provides a higher-level API for Base that makes it easier to conduct
// tests, etc.
type portal struct {
	logger *zap.Logger
	// publisher returns the publisher to use for Publish or nil if not connected.
	publisher func() publisher
}

// Publish the given payload to the Topic. Payloads are dropped while the Base
// is not opened.
func (p *portal) Publish(ctx context.Context, topic Topic, payload interface{}) {
	// Marshal payload.
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		errors.Log(p.logger, errors.NewInternalErrorFromErr(err, "marshal payload for publishing", errors.Details{
			"topic": topic,
		}))
		return
	}
	pub := p.publisher()
	if pub == nil {
		p.logger.Debug("dropping publish due to missing mqtt connection", zap.String("topic", string(topic)))
		return
	}
	// Publish.
	_, err = pub.Publish(ctx, &paho.Publish{
		QoS:     mqttQOS,
		Topic:   string(topic),
		Payload: payloadRaw,
	})
	if err != nil {
		errors.Log(p.logger, errors.Error{
			Code:    errors.ErrCommunication,
			Kind:    errors.KindPublish,
			Err:     err,
			Message: "publish message failed",
			Details: errors.Details{"topic": topic},
		})
		return
	}
}
