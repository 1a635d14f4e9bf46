package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscriber подписывается на топики движения и передает валидные сэмплы
// обработчику. Формат топика: {prefix}/{channel}/{deviceID}, где channel -
// accel или rotation, payload - JSON MotionSample.
type Subscriber struct {
	client      mqtt.Client
	handler     SampleHandler
	validator   *Validator
	topicPrefix string
	qos         byte
}

// SubscriberOptions - параметры подключения к брокеру
type SubscriberOptions struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// NewSubscriber создает подписчик и подключается к брокеру.
// Переподписка выполняется автоматически при восстановлении соединения.
func NewSubscriber(opts SubscriberOptions, handler SampleHandler, validator *Validator) (*Subscriber, error) {
	s := &Subscriber{
		handler:     handler,
		validator:   validator,
		topicPrefix: opts.TopicPrefix,
		qos:         opts.QoS,
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("fall-receiver-%d", time.Now().Unix())
	}

	mqttOpts := mqtt.NewClientOptions()
	mqttOpts.AddBroker(opts.Broker)
	mqttOpts.SetClientID(clientID)
	mqttOpts.SetAutoReconnect(true)
	mqttOpts.OnConnect = func(client mqtt.Client) {
		topic := fmt.Sprintf("%s/+/+", s.topicPrefix)
		token := client.Subscribe(topic, s.qos, s.handleMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("[ERROR] Failed to subscribe to %s: %v", topic, err)
			return
		}
		log.Printf("[MQTT] Subscribed to topic: %s", topic)
	}
	mqttOpts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("[WARN] MQTT connection lost: %v", err)
	}

	s.client = mqtt.NewClient(mqttOpts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Printf("[MQTT] Connected to broker: %s", opts.Broker)
	return s, nil
}

// handleMessage разбирает топик и payload, валидирует и передает сэмпл
func (s *Subscriber) handleMessage(client mqtt.Client, msg mqtt.Message) {
	// Формат топика: {prefix}/{channel}/{deviceID}
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) != 3 {
		log.Printf("[WARN] Invalid topic format: %s", msg.Topic())
		return
	}

	channel, ok := ParseChannel(parts[1])
	if !ok {
		log.Printf("[WARN] Unknown motion channel: %s", parts[1])
		return
	}
	deviceID := parts[2]

	var sample MotionSample
	if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
		log.Printf("[WARN] Failed to parse motion payload: %v", err)
		return
	}
	if sample.DeviceID == "" {
		sample.DeviceID = deviceID
	}

	if err := s.validator.Check(deviceID, channel, sample); err != nil {
		log.Printf("[WARN] Invalid sample dropped: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.handler.HandleMotionSample(ctx, deviceID, channel, sample.ToDetectorSample()); err != nil {
		log.Printf("[WARN] Failed to process sample: device=%s channel=%s: %v", deviceID, channel, err)
	}
}

// Close отключается от брокера
func (s *Subscriber) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
		log.Printf("[MQTT] Disconnected from broker")
	}
}
