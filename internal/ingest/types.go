package ingest

import (
	"context"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/detector"
)

// Channel - канал сенсора мобильного устройства
type Channel string

const (
	ChannelAcceleration Channel = "accel"
	ChannelRotation     Channel = "rotation"
)

// ParseChannel возвращает канал по сегменту топика
func ParseChannel(s string) (Channel, bool) {
	switch Channel(s) {
	case ChannelAcceleration, ChannelRotation:
		return Channel(s), true
	default:
		return "", false
	}
}

// MotionSample - сырой сэмпл движения с устройства (JSON payload).
// Отсутствующие оси декодируются в 0 - устройство может не отдавать ось.
type MotionSample struct {
	DeviceID string  `json:"device_id,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	TsMS     int64   `json:"ts_ms"`
}

// ToDetectorSample преобразует сырой сэмпл в сэмпл детектора
func (m MotionSample) ToDetectorSample() detector.Sample {
	return detector.Sample{X: m.X, Y: m.Y, Z: m.Z, TsMS: m.TsMS}
}

// SampleHandler принимает валидные сэмплы из транспортного слоя
type SampleHandler interface {
	HandleMotionSample(ctx context.Context, deviceID string, channel Channel, sample detector.Sample) error
}
