// Package detector реализует онлайн-детекцию падения по потоку сэмплов
// акселерометра и гироскопа мобильного устройства.
//
// Эвристика состоит из трех подусловий в строгом относительном порядке:
// пик ускорения (удар), затем повышенная угловая скорость, затем период
// неподвижности - все внутри ограниченного временного окна. Повторные
// срабатывания подавляются кулдауном.
package detector

import (
	"math"
	"sync"
)

// Sample - одно измерение трехосевого сенсора (акселерометр или гироскоп)
type Sample struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	TsMS int64   `json:"ts_ms"`
}

// Magnitude возвращает евклидову норму вектора
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// FallEvent - подтвержденное падение
type FallEvent struct {
	TsMS       int64 `json:"ts_ms"`        // время сэмпла, замкнувшего паттерн
	ImpactTsMS int64 `json:"impact_ts_ms"` // время удара, открывшего эпизод
	FallCount  int   `json:"fall_count"`   // порядковый номер падения
}

// PatternStatus - снимок флагов текущего эпизода для отображения
type PatternStatus struct {
	ImpactDetected      bool `json:"impact_detected"`
	AccelerationSpike   bool `json:"acceleration_spike"`
	HighAngularVelocity bool `json:"high_angular_velocity"`
	LowActivityAfter    bool `json:"low_activity_after"`
}

// Counters - счетчики детектора. LastFallTsMS валиден только при HasLastFall.
type Counters struct {
	FallCount    int   `json:"fall_count"`
	LastFallTsMS int64 `json:"last_fall_ts_ms"`
	HasLastFall  bool  `json:"has_last_fall"`
	Impacts      int64 `json:"impacts"`
	Timeouts     int64 `json:"timeouts"`
	Suppressed   int64 `json:"suppressed"`
}

// patternState - состояние одного эпизода. startMS валиден только
// при impactDetected == true.
type patternState struct {
	impactDetected      bool
	accelerationSpike   bool
	highAngularVelocity bool
	lowActivityAfter    bool
	startMS             int64
}

// Detector - конечный автомат паттерна падения. Владеет двумя раздельными
// кольцевыми буферами (ускорение и вращение), состоянием эпизода и
// счетчиками. Все мутации сериализованы одним мьютексом на экземпляр.
type Detector struct {
	cfg Config

	mu       sync.Mutex
	accelBuf *Ring
	rotBuf   *Ring
	pattern  patternState

	fallCount   int
	lastFallMS  int64
	hasLastFall bool

	impacts    int64
	timeouts   int64
	suppressed int64
}

// New создает детектор с заданной конфигурацией
func New(cfg Config) *Detector {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.LowActivitySamples < 1 {
		cfg.LowActivitySamples = DefaultConfig().LowActivitySamples
	}
	return &Detector{
		cfg:      cfg,
		accelBuf: NewRing(cfg.BufferSize),
		rotBuf:   NewRing(cfg.BufferSize),
	}
}

// IngestAcceleration обрабатывает один сэмпл акселерометра.
// Возвращает событие падения, если этот сэмпл замкнул паттерн
// вне окна кулдауна, иначе nil.
func (d *Detector) IngestAcceleration(s Sample) *FallEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.accelBuf.Append(s)
	now := s.TsMS

	d.expireEpisode(now)

	if !d.pattern.impactDetected {
		// Детекция удара: только из состояния IDLE (edge-triggered)
		if s.Magnitude() > d.cfg.AccelerationThreshold {
			d.pattern.impactDetected = true
			d.pattern.accelerationSpike = true
			d.pattern.startMS = now
			d.impacts++
		}
		return nil
	}

	// Проверка неподвижности внутри окна (LowActivityStartMS, PatternDurationMS).
	// Идемпотентна: однажды выставленный флаг не сбрасывается внутри эпизода.
	dt := now - d.pattern.startMS
	if dt > d.cfg.LowActivityStartMS && dt < d.cfg.PatternDurationMS && !d.pattern.lowActivityAfter {
		recent := d.accelBuf.Recent(d.cfg.LowActivitySamples)
		if len(recent) > 0 {
			var sum float64
			for _, r := range recent {
				sum += r.Magnitude()
			}
			if sum/float64(len(recent)) < d.cfg.LowActivityThreshold {
				d.pattern.lowActivityAfter = true
			}
		}
	}

	return d.tryComplete(now)
}

// IngestRotation обрабатывает один сэмпл гироскопа
func (d *Detector) IngestRotation(s Sample) *FallEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rotBuf.Append(s)
	now := s.TsMS

	d.expireEpisode(now)

	if !d.pattern.impactDetected {
		return nil
	}

	// Подтверждение вращения: фиксированное подокно после удара,
	// независимое от общего бюджета эпизода
	dt := now - d.pattern.startMS
	if dt > 0 && dt < d.cfg.RotationSubWindowMS && s.Magnitude() > d.cfg.AngularVelocityThreshold {
		d.pattern.highAngularVelocity = true
	}

	return d.tryComplete(now)
}

// expireEpisode сбрасывает эпизод по таймауту. Вызывается до применения
// правил, поэтому сэмпл-пик, пришедший после истекшего эпизода, сразу
// открывает новый.
func (d *Detector) expireEpisode(now int64) {
	if d.pattern.impactDetected && now-d.pattern.startMS > d.cfg.PatternDurationMS {
		d.pattern = patternState{}
		d.timeouts++
	}
}

// tryComplete проверяет замыкание паттерна. Кандидат потребляется ровно
// один раз: состояние эпизода сбрасывается независимо от исхода кулдауна.
func (d *Detector) tryComplete(now int64) *FallEvent {
	p := &d.pattern
	if !(p.impactDetected && p.accelerationSpike && p.highAngularVelocity && p.lowActivityAfter) {
		return nil
	}
	if now-p.startMS > d.cfg.PatternDurationMS {
		return nil
	}

	impactTS := p.startMS
	d.pattern = patternState{}

	if d.hasLastFall && now-d.lastFallMS <= d.cfg.CooldownMS {
		d.suppressed++
		return nil
	}

	d.fallCount++
	d.lastFallMS = now
	d.hasLastFall = true

	return &FallEvent{
		TsMS:       now,
		ImpactTsMS: impactTS,
		FallCount:  d.fallCount,
	}
}

// Status возвращает снимок флагов текущего эпизода
func (d *Detector) Status() PatternStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	return PatternStatus{
		ImpactDetected:      d.pattern.impactDetected,
		AccelerationSpike:   d.pattern.accelerationSpike,
		HighAngularVelocity: d.pattern.highAngularVelocity,
		LowActivityAfter:    d.pattern.lowActivityAfter,
	}
}

// Counters возвращает снимок счетчиков детектора
func (d *Detector) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Counters{
		FallCount:    d.fallCount,
		LastFallTsMS: d.lastFallMS,
		HasLastFall:  d.hasLastFall,
		Impacts:      d.impacts,
		Timeouts:     d.timeouts,
		Suppressed:   d.suppressed,
	}
}

// ResetPattern принудительно возвращает автомат в IDLE, не трогая счетчики.
// Безопасно вызывать в любой момент, идемпотентна.
func (d *Detector) ResetPattern() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pattern = patternState{}
}

// Reset - полный сброс: эпизод, буферы и все счетчики, включая кулдаун
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pattern = patternState{}
	d.accelBuf.Reset()
	d.rotBuf.Reset()
	d.fallCount = 0
	d.lastFallMS = 0
	d.hasLastFall = false
	d.impacts = 0
	d.timeouts = 0
	d.suppressed = 0
}
