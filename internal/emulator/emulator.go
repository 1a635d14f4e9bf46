package emulator

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/ingest"
)

// Options настраивают эмулятор устройства
type Options struct {
	DeviceID string
	Profile  Profile
	Sender   SampleSender

	// Период между сэмплами
	SampleInterval time.Duration

	// Максимальный случайный джиттер, добавляемый к периоду
	Jitter time.Duration

	// Общая длительность работы (0 - без ограничения)
	Duration time.Duration
}

// Emulator имитирует мобильное устройство с акселерометром и гироскопом
type Emulator struct {
	opts Options
	rng  *rand.Rand
}

// New создает эмулятор устройства
func New(opts Options) *Emulator {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 50 * time.Millisecond
	}
	return &Emulator{
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run запускает цикл генерации до отмены контекста или истечения Duration
func (e *Emulator) Run(ctx context.Context) error {
	log.Printf("[INFO] Emulator started: device=%s profile=%s interval=%v",
		e.opts.DeviceID, e.opts.Profile.Name(), e.opts.SampleInterval)

	if e.opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Duration)
		defer cancel()
	}

	start := time.Now()
	var sent int64

	for {
		tMS := time.Since(start).Milliseconds()
		accel, rotation := e.opts.Profile.Sample(tMS)

		// Временная метка сэмпла - время сенсора устройства
		tsMS := start.UnixMilli() + tMS

		accelSample := ingest.MotionSample{
			DeviceID: e.opts.DeviceID,
			X:        accel.X,
			Y:        accel.Y,
			Z:        accel.Z,
			TsMS:     tsMS,
		}
		if err := e.opts.Sender.Send(ctx, ingest.ChannelAcceleration, accelSample); err != nil {
			log.Printf("[WARN] Failed to send acceleration sample: %v", err)
		}

		rotationSample := ingest.MotionSample{
			DeviceID: e.opts.DeviceID,
			X:        rotation.X,
			Y:        rotation.Y,
			Z:        rotation.Z,
			TsMS:     tsMS,
		}
		if err := e.opts.Sender.Send(ctx, ingest.ChannelRotation, rotationSample); err != nil {
			log.Printf("[WARN] Failed to send rotation sample: %v", err)
		}

		sent += 2
		if sent%2000 == 0 {
			log.Printf("[STATS] Emulator sent %d samples (device: %s)", sent, e.opts.DeviceID)
		}

		delay := e.opts.SampleInterval
		if e.opts.Jitter > 0 {
			delay += time.Duration(e.rng.Int63n(int64(e.opts.Jitter)))
		}

		select {
		case <-ctx.Done():
			log.Printf("[INFO] Emulator stopped: device=%s sent=%d", e.opts.DeviceID, sent)
			return nil
		case <-time.After(delay):
		}
	}
}
