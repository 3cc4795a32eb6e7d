package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dispatchlab/fieldops/core/events"
	"github.com/dispatchlab/fieldops/core/location"
	coremon "github.com/dispatchlab/fieldops/core/monitoring"
	"github.com/dispatchlab/fieldops/core/model"
	"github.com/dispatchlab/fieldops/core/notify"
	"github.com/dispatchlab/fieldops/infra/logger"
	"github.com/dispatchlab/fieldops/internal/eventbus"
)

// DefaultLocationTopic is subscribed when Config.LocationTopic is empty.
// The single wildcard level carries the technician id.
const DefaultLocationTopic = "fieldops/technician/+/location"

// NoticeTopic returns the per-technician topic notices are published to.
func NoticeTopic(technicianID string) string {
	return "fieldops/technician/" + technicianID + "/notice"
}

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker        string          `json:"broker"`
	ClientID      string          `json:"client_id"`
	Username      string          `json:"username"`
	Password      string          `json:"password"`
	LocationTopic string          `json:"location_topic"`
	UseTLS        bool            `json:"use_tls"`
	ClientCert    string          `json:"client_cert"`
	ClientKey     string          `json:"client_key"`
	CABundle      string          `json:"ca_bundle"`
	AuthMethod    string          `json:"auth_method"`
	QoS           map[string]byte `json:"qos"`
	LWTTopic      string          `json:"lwt_topic"`
	LWTPayload    string          `json:"lwt_payload"`
	LWTQoS        byte            `json:"lwt_qos"`
	LWTRetain     bool            `json:"lwt_retain"`
	MaxRetries    int             `json:"max_retries"`
	BackoffMS     int             `json:"backoff_ms"`
	TLSConfig     *tls.Config     `json:"-"`
}

// pahoClient is the subset of the Paho API the client uses, extracted for tests.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient feeds technician location reports into the location store and
// delivers schedule-change notices, both over MQTT.
type PahoClient struct {
	cli           pahoClient
	locationTopic string
	qos           map[string]byte

	locs *location.Store
	bus  eventbus.EventBus

	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var _ notify.Notifier = (*PahoClient)(nil)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the location
// topic. Accepted pings land in locs; bus, when non-nil, receives an
// events.LocationEvent per accepted ping.
func NewPahoClient(cfg Config, locs *location.Store, bus eventbus.EventBus) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if locs == nil {
		return nil, fmt.Errorf("location store is required")
	}

	logger := logger.New("mqtt_client")
	pc := &PahoClient{
		locationTopic: cfg.LocationTopic,
		qos:           cfg.QoS,
		locs:          locs,
		bus:           bus,
		logger:        logger,
		maxRetries:    cfg.MaxRetries,
		backoff:       time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	if pc.locationTopic == "" {
		pc.locationTopic = DefaultLocationTopic
	}
	if pc.maxRetries <= 0 {
		pc.maxRetries = 3
	}
	if pc.backoff <= 0 {
		pc.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(c paho.Client) {
		logger.Infof("MQTT connected")
		qos := byte(0)
		if q, ok := pc.qos["location"]; ok {
			qos = q
		}
		if token := c.Subscribe(pc.locationTopic, qos, pc.onLocation); token.Wait() && token.Error() != nil {
			logger.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) onLocation(_ paho.Client, msg paho.Message) {
	var m struct {
		TechnicianID string  `json:"technician_id"`
		TenantID     string  `json:"tenant_id"`
		Lat          float64 `json:"lat"`
		Lon          float64 `json:"lon"`
		Status       string  `json:"status"`
		Timestamp    int64   `json:"ts"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode location: %v", err)
		return
	}
	ping := model.LocationPing{
		TechnicianID: m.TechnicianID,
		TenantID:     m.TenantID,
		Position:     model.LatLng{Lat: m.Lat, Lng: m.Lon},
		Status:       m.Status,
	}
	if m.Timestamp > 0 {
		ping.At = time.UnixMilli(m.Timestamp)
	}
	if err := p.locs.Set(ping); err != nil {
		p.logger.Warnf("dropped location report: %v", err)
		return
	}
	if p.bus != nil {
		p.bus.Publish(events.LocationEvent{Ping: ping})
	}
	p.logger.Debugf("location updated for %s", ping.TechnicianID)
}

// Notify publishes the notice to the technician's notice topic, retrying
// transient failures with exponential backoff. The returned count includes
// the successful attempt.
func (p *PahoClient) Notify(ctx context.Context, n notify.Notice) (int, error) {
	payload, err := json.Marshal(struct {
		NoticeID     string   `json:"notice_id"`
		TenantID     string   `json:"tenant_id"`
		TechnicianID string   `json:"technician_id"`
		DisruptionID string   `json:"disruption_id,omitempty"`
		Message      string   `json:"message"`
		ChangedJobs  []string `json:"changed_jobs,omitempty"`
		EffectiveAt  int64    `json:"effective_at"`
		Timestamp    int64    `json:"timestamp"`
	}{
		NoticeID:     uuid.NewString(),
		TenantID:     n.TenantID,
		TechnicianID: n.TechnicianID,
		DisruptionID: n.DisruptionID,
		Message:      n.Message,
		ChangedJobs:  n.ChangedJobs,
		EffectiveAt:  n.EffectiveAt.UnixMilli(),
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		return 0, err
	}

	topic := NoticeTopic(n.TechnicianID)
	qos := byte(0)
	if q, ok := p.qos["notice"]; ok {
		qos = q
	}
	attempts := 0
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}
		attempts++
		token := p.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Infof("sent notice to %s", topic)
			return attempts, nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	coremon.CaptureException(publishErr, map[string]string{
		"module":        "mqtt",
		"technician_id": n.TechnicianID,
	})
	return attempts, publishErr
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
