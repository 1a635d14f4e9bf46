package emulator

import (
	"math/rand"
)

// Vec - вектор показаний сенсора
type Vec struct {
	X, Y, Z float64
}

// Profile генерирует показания сенсоров устройства по времени с начала
// сценария. Возвращает линейное ускорение (без гравитации) и угловую
// скорость в момент tMS.
type Profile interface {
	Name() string
	Sample(tMS int64) (accel, rotation Vec)
}

// restProfile - устройство лежит неподвижно, только шум сенсоров
type restProfile struct {
	rng *rand.Rand
}

// NewRestProfile создает сценарий покоя
func NewRestProfile(seed int64) Profile {
	return &restProfile{rng: rand.New(rand.NewSource(seed))}
}

func (p *restProfile) Name() string { return "rest" }

func (p *restProfile) Sample(_ int64) (Vec, Vec) {
	return noiseVec(p.rng, 0.3), noiseVec(p.rng, 0.05)
}

// fallProfile - сценарий падения: покой, резкий удар, вращение при
// падении, затем полная неподвижность. Цикл повторяется каждые cycleMS.
type fallProfile struct {
	rng     *rand.Rand
	cycleMS int64
}

const (
	fallCycleMS      = 10000
	fallImpactMS     = 2000
	fallRotationEnds = 2600
)

// NewFallProfile создает сценарий с падением на 2-й секунде каждого цикла
func NewFallProfile(seed int64) Profile {
	return &fallProfile{rng: rand.New(rand.NewSource(seed)), cycleMS: fallCycleMS}
}

func (p *fallProfile) Name() string { return "fall" }

func (p *fallProfile) Sample(tMS int64) (Vec, Vec) {
	t := tMS % p.cycleMS

	switch {
	case t < fallImpactMS:
		// Обычная активность перед падением
		return noiseVec(p.rng, 0.4), noiseVec(p.rng, 0.1)
	case t < fallImpactMS+50:
		// Удар о землю
		return Vec{X: 18 + p.rng.Float64()*8, Y: p.rng.Float64() * 3, Z: p.rng.Float64() * 3},
			Vec{X: 5 + p.rng.Float64()*2, Y: p.rng.Float64(), Z: p.rng.Float64()}
	case t < fallRotationEnds:
		// Тело продолжает вращаться после удара
		return noiseVec(p.rng, 0.5),
			Vec{X: 4.5 + p.rng.Float64()*2, Y: p.rng.Float64(), Z: p.rng.Float64()}
	default:
		// Неподвижность на полу
		return noiseVec(p.rng, 0.15), noiseVec(p.rng, 0.03)
	}
}

// shakeProfile - энергичная тряска: периодические удары без последующей
// неподвижности. Детектор должен взводиться и сбрасываться по таймауту.
type shakeProfile struct {
	rng *rand.Rand
}

// NewShakeProfile создает сценарий тряски без падений
func NewShakeProfile(seed int64) Profile {
	return &shakeProfile{rng: rand.New(rand.NewSource(seed))}
}

func (p *shakeProfile) Name() string { return "shake" }

func (p *shakeProfile) Sample(tMS int64) (Vec, Vec) {
	// Удар каждую секунду, между ударами высокая активность
	if tMS%1000 < 50 {
		return Vec{X: 16 + p.rng.Float64()*6, Y: p.rng.Float64() * 2, Z: p.rng.Float64() * 2},
			Vec{X: 4.5 + p.rng.Float64(), Y: p.rng.Float64(), Z: p.rng.Float64()}
	}
	return Vec{X: 6 + p.rng.Float64()*3, Y: p.rng.Float64(), Z: p.rng.Float64()},
		Vec{X: 2 + p.rng.Float64(), Y: p.rng.Float64(), Z: p.rng.Float64()}
}

// ProfileByName возвращает сценарий по имени
func ProfileByName(name string, seed int64) (Profile, bool) {
	switch name {
	case "rest":
		return NewRestProfile(seed), true
	case "fall":
		return NewFallProfile(seed), true
	case "shake":
		return NewShakeProfile(seed), true
	}
	return nil, false
}

// noiseVec возвращает случайный вектор с компонентами в [-amp, amp]
func noiseVec(rng *rand.Rand, amp float64) Vec {
	return Vec{
		X: (rng.Float64()*2 - 1) * amp,
		Y: (rng.Float64()*2 - 1) * amp,
		Z: (rng.Float64()*2 - 1) * amp,
	}
}
