package emulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/ingest"
)

// SampleSender отправляет сэмплы сенсоров во внешний мир
type SampleSender interface {
	Send(ctx context.Context, channel ingest.Channel, sample ingest.MotionSample) error
	Close() error
}

// MQTTSender публикует сэмплы в MQTT брокер в том же формате,
// который ожидает приемник
type MQTTSender struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
}

// NewMQTTSender подключается к брокеру и возвращает отправитель
func NewMQTTSender(broker, clientID, topicPrefix string, qos byte) (*MQTTSender, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout: %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}

	log.Printf("[MQTT] Emulator connected to broker: %s", broker)
	return &MQTTSender{client: client, topicPrefix: topicPrefix, qos: qos}, nil
}

// Send публикует сэмпл в топик {prefix}/{channel}/{deviceID}
func (s *MQTTSender) Send(_ context.Context, channel ingest.Channel, sample ingest.MotionSample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/%s", s.topicPrefix, channel, sample.DeviceID)
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish timeout: %s", topic)
	}
	return token.Error()
}

// Close отключается от брокера
func (s *MQTTSender) Close() error {
	s.client.Disconnect(250)
	return nil
}

// FileSender пишет сэмплы в файл в формате JSONL, по строке на сэмпл.
// Удобен для отладки профилей без брокера.
type FileSender struct {
	file    *os.File
	encoder *json.Encoder
}

type fileRecord struct {
	Channel ingest.Channel      `json:"channel"`
	Sample  ingest.MotionSample `json:"sample"`
}

// NewFileSender открывает файл для записи сэмплов
func NewFileSender(path string) (*FileSender, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &FileSender{file: file, encoder: json.NewEncoder(file)}, nil
}

// Send пишет строку JSONL
func (s *FileSender) Send(_ context.Context, channel ingest.Channel, sample ingest.MotionSample) error {
	return s.encoder.Encode(fileRecord{Channel: channel, Sample: sample})
}

// Close закрывает файл
func (s *FileSender) Close() error {
	return s.file.Close()
}
