package reporter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Config"
	logger "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Logger"
	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
)

// Reporter forwards discovery failures to operators
type Reporter interface {
	DeviceFailed(runID string, failure sfymodels.DeviceFailure)
	RunFailed(rec sfymodels.RunRecord)
}

// NopReporter drops every report
type NopReporter struct{}

func (NopReporter) DeviceFailed(string, sfymodels.DeviceFailure) {}
func (NopReporter) RunFailed(sfymodels.RunRecord)                {}

const publishTimeout = 5 * time.Second

// MQTTReporter publishes failures as JSON to <prefix>/errors/<dev> and <prefix>/runs/<run_id>
type MQTTReporter struct {
	cfg        config.MQTTConfig
	brokerURL  string
	mqttClient mqtt.Client
	logger     *logger.Logger
}

func NewMQTTReporter(cfg *config.Config, log *logger.Logger) *MQTTReporter {
	return &MQTTReporter{
		cfg:       cfg.MQTT,
		brokerURL: cfg.GetMQTTBrokerURL(),
		logger:    log.WithComponent("reporter"),
	}
}

// Start connects to the broker. The client keeps reconnecting in the background.
func (r *MQTTReporter) Start(_ context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(r.brokerURL).
		SetClientID(r.cfg.ClientID).
		SetKeepAlive(r.cfg.KeepAlive).
		SetPingTimeout(r.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(true)

	if r.cfg.BrokerUser != "" {
		opts.SetUsername(r.cfg.BrokerUser)
		opts.SetPassword(r.cfg.BrokerPass)
	}

	if r.cfg.UseTLS {
		tlsCfg, err := tlsConfig(r.cfg.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		r.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(mqtt.Client) {
		r.logger.Logger.Info().Str("broker", r.brokerURL).Msg("MQTT connected, reporting failures")
	}

	r.mqttClient = mqtt.NewClient(opts)
	if tk := r.mqttClient.Connect(); tk.WaitTimeout(r.cfg.PingTimeout) && tk.Error() != nil {
		return tk.Error()
	}
	return nil
}

func (r *MQTTReporter) Stop() {
	if r.mqttClient != nil && r.mqttClient.IsConnected() {
		r.mqttClient.Disconnect(500)
	}
}

func (r *MQTTReporter) IsConnected() bool {
	return r.mqttClient != nil && r.mqttClient.IsConnected()
}

// DeviceTopic returns the error topic of one device
func DeviceTopic(prefix, dev string) string {
	return fmt.Sprintf("%s/errors/%s", prefix, dev)
}

// RunTopic returns the topic of one failed run
func RunTopic(prefix, runID string) string {
	return fmt.Sprintf("%s/runs/%s", prefix, runID)
}

type deviceFailurePayload struct {
	ErrorType string          `json:"error_type"`
	Message   string          `json:"message"`
	RunID     string          `json:"run_id"`
	Dev       string          `json:"dev"`
	Stage     sfymodels.Stage `json:"stage"`
	Timestamp time.Time       `json:"timestamp"`
}

func newDeviceFailurePayload(runID string, f sfymodels.DeviceFailure) deviceFailurePayload {
	return deviceFailurePayload{
		ErrorType: string(f.Stage) + "_failed",
		Message:   f.Error,
		RunID:     runID,
		Dev:       f.Dev,
		Stage:     f.Stage,
		Timestamp: f.At,
	}
}

func (r *MQTTReporter) DeviceFailed(runID string, failure sfymodels.DeviceFailure) {
	r.publish(DeviceTopic(r.cfg.TopicPrefix, failure.Dev), newDeviceFailurePayload(runID, failure))
}

func (r *MQTTReporter) RunFailed(rec sfymodels.RunRecord) {
	r.publish(RunTopic(r.cfg.TopicPrefix, rec.RunID), rec)
}

func (r *MQTTReporter) publish(topic string, payload interface{}) {
	if !r.IsConnected() {
		return
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		r.logger.Logger.Error().Err(err).Msg("Failed to marshal failure payload")
		return
	}

	token := r.mqttClient.Publish(topic, 1, false, payloadJSON)
	if !token.WaitTimeout(publishTimeout) {
		r.logger.Logger.Warn().Str("topic", topic).Msg("Timed out publishing failure")
		return
	}
	if token.Error() != nil {
		r.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to publish failure")
		return
	}
	r.logger.Logger.Debug().Str("topic", topic).Msg("Published failure")
}

func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}
