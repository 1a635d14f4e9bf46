package ingest

import (
	"fmt"
	"math"
	"sync"
)

// Validator отбраковывает некорректные сэмплы на границе приема:
// нечисловые координаты, нулевые/отрицательные временные метки и метки
// старше последней принятой для пары устройство+канал. Отбраковка - не
// ошибка горячего пути: сэмпл отбрасывается, считается и логируется
// вызывающей стороной.
type Validator struct {
	mu     sync.Mutex
	lastTS map[channelKey]int64

	stats struct {
		mu         sync.RWMutex
		received   int64
		dropped    int64
		outOfOrder int64
	}
}

type channelKey struct {
	DeviceID string
	Channel  Channel
}

// NewValidator создает валидатор с пустой историей меток
func NewValidator() *Validator {
	return &Validator{
		lastTS: make(map[channelKey]int64),
	}
}

// Check валидирует сэмпл. Возвращает nil и учитывает метку, если сэмпл
// принят; иначе - причину отбраковки.
func (v *Validator) Check(deviceID string, channel Channel, sample MotionSample) error {
	if !isFinite(sample.X) || !isFinite(sample.Y) || !isFinite(sample.Z) {
		v.incrementDropped()
		return fmt.Errorf("non-finite coordinates: x=%v y=%v z=%v", sample.X, sample.Y, sample.Z)
	}

	if sample.TsMS <= 0 {
		v.incrementDropped()
		return fmt.Errorf("invalid timestamp: %d", sample.TsMS)
	}

	key := channelKey{DeviceID: deviceID, Channel: channel}

	v.mu.Lock()
	defer v.mu.Unlock()

	if last, ok := v.lastTS[key]; ok && sample.TsMS < last {
		v.incrementDropped()
		v.incrementOutOfOrder()
		return fmt.Errorf("timestamp regression: ts=%d last=%d device=%s channel=%s",
			sample.TsMS, last, deviceID, channel)
	}

	v.lastTS[key] = sample.TsMS
	v.incrementReceived()
	return nil
}

// Forget удаляет историю меток устройства (при завершении сессии)
func (v *Validator) Forget(deviceID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.lastTS, channelKey{DeviceID: deviceID, Channel: ChannelAcceleration})
	delete(v.lastTS, channelKey{DeviceID: deviceID, Channel: ChannelRotation})
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Методы для работы со статистикой
func (v *Validator) incrementReceived() {
	v.stats.mu.Lock()
	v.stats.received++
	v.stats.mu.Unlock()
}

func (v *Validator) incrementDropped() {
	v.stats.mu.Lock()
	v.stats.dropped++
	v.stats.mu.Unlock()
}

func (v *Validator) incrementOutOfOrder() {
	v.stats.mu.Lock()
	v.stats.outOfOrder++
	v.stats.mu.Unlock()
}

// Stats возвращает счетчики received/dropped/outOfOrder
func (v *Validator) Stats() (received, dropped, outOfOrder int64) {
	v.stats.mu.RLock()
	defer v.stats.mu.RUnlock()
	return v.stats.received, v.stats.dropped, v.stats.outOfOrder
}
