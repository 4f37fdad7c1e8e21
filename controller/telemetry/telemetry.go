package telemetry

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garden-pi/garden-pi/controller/storage"
)

const ErrorBucket = "errors"

type MQTTConfig struct {
	Enable   bool   `yaml:"enable" json:"enable"`
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type Config struct {
	Prefix string     `yaml:"prefix" json:"prefix"`
	MQTT   MQTTConfig `yaml:"mqtt" json:"mqtt"`
}

// Telemetry fans metrics out to prometheus and, when configured, MQTT.
// Errors are persisted so the UI can show what went wrong overnight.
type Telemetry interface {
	EmitMetric(module, name string, v float64)
	LogError(id, msg string) error
	Handler() http.Handler
	Close()
}

type ErrorEntry struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Message string `json:"message"`
	Time    int64  `json:"time"`
}

type telemetry struct {
	config   Config
	store    storage.Store
	registry *prometheus.Registry
	client   mqtt.Client
	mu       sync.Mutex
	gauges   map[string]prometheus.Gauge
}

func Initialize(config Config, store storage.Store) (Telemetry, error) {
	if err := store.CreateBucket(ErrorBucket); err != nil {
		return nil, err
	}
	t := &telemetry{
		config:   config,
		store:    store,
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]prometheus.Gauge),
	}
	if config.MQTT.Enable {
		opts := mqtt.NewClientOptions().
			AddBroker(config.MQTT.Broker).
			SetClientID(config.MQTT.ClientID).
			SetUsername(config.MQTT.Username).
			SetPassword(config.MQTT.Password).
			SetAutoReconnect(true)
		client := mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			// Broker being down should not take the controller with it
			log.Println("telemetry: mqtt connect failed:", token.Error())
		} else {
			t.client = client
		}
	}
	return t, nil
}

// TestTelemetry returns a telemetry instance suitable for unit tests:
// isolated prometheus registry, no MQTT.
func TestTelemetry(store storage.Store) Telemetry {
	t, err := Initialize(Config{Prefix: "test"}, store)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *telemetry) EmitMetric(module, name string, v float64) {
	g := t.gauge(module, name)
	g.Set(v)
	if t.client != nil {
		topic := t.config.Prefix + "/" + module + "/" + name
		t.client.Publish(topic, 0, false, strconv.FormatFloat(v, 'f', -1, 64))
	}
}

func (t *telemetry) gauge(module, name string) prometheus.Gauge {
	key := module + "_" + name
	t.mu.Lock()
	defer t.mu.Unlock()
	if g, ok := t.gauges[key]; ok {
		return g
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "garden_pi_" + metricName(key),
		Help: fmt.Sprintf("garden-pi metric %s from module %s", name, module),
	})
	if err := t.registry.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			g = are.ExistingCollector.(prometheus.Gauge)
		}
	}
	t.gauges[key] = g
	return g
}

func (t *telemetry) LogError(id, msg string) error {
	log.Println("ERROR: [" + id + "] " + msg)
	return t.store.Create(ErrorBucket, func(eID string) interface{} {
		return &ErrorEntry{
			ID:      eID,
			Source:  id,
			Message: msg,
			Time:    time.Now().Unix(),
		}
	})
}

func (t *telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *telemetry) Close() {
	if t.client != nil {
		t.client.Disconnect(250)
	}
}

// metricName flattens arbitrary module/metric names into the prometheus
// allowed character set.
func metricName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, s)
}
