package emulator

import (
	"math"
	"testing"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/detector"
)

// runProfile прогоняет сценарий через детектор с шагом 50мс
// и возвращает количество подтвержденных падений
func runProfile(p Profile, durationMS int64) int {
	d := detector.New(detector.DefaultConfig())

	falls := 0
	for t := int64(0); t <= durationMS; t += 50 {
		accel, rotation := p.Sample(t)
		// tsMS должен быть строго положительным
		ts := t + 1

		if ev := d.IngestAcceleration(detector.Sample{X: accel.X, Y: accel.Y, Z: accel.Z, TsMS: ts}); ev != nil {
			falls++
		}
		if ev := d.IngestRotation(detector.Sample{X: rotation.X, Y: rotation.Y, Z: rotation.Z, TsMS: ts}); ev != nil {
			falls++
		}
	}
	return falls
}

func TestFallProfile_TriggersDetection(t *testing.T) {
	// Два полных цикла сценария - два падения
	falls := runProfile(NewFallProfile(1), 2*fallCycleMS)
	if falls != 2 {
		t.Errorf("expected 2 falls over 2 cycles, got %d", falls)
	}
}

func TestRestProfile_NoDetection(t *testing.T) {
	if falls := runProfile(NewRestProfile(1), 30000); falls != 0 {
		t.Errorf("expected no falls at rest, got %d", falls)
	}
}

func TestShakeProfile_NoDetection(t *testing.T) {
	if falls := runProfile(NewShakeProfile(1), 30000); falls != 0 {
		t.Errorf("expected no falls while shaking, got %d", falls)
	}
}

func TestProfileByName(t *testing.T) {
	for _, name := range []string{"rest", "fall", "shake"} {
		p, ok := ProfileByName(name, 1)
		if !ok {
			t.Fatalf("profile %q not found", name)
		}
		if p.Name() != name {
			t.Errorf("expected profile name %q, got %q", name, p.Name())
		}
	}

	if _, ok := ProfileByName("unknown", 1); ok {
		t.Error("expected unknown profile to be rejected")
	}
}

func TestFallProfile_ImpactMagnitude(t *testing.T) {
	p := NewFallProfile(7)

	accel, rotation := p.Sample(fallImpactMS)
	accelMag := math.Sqrt(accel.X*accel.X + accel.Y*accel.Y + accel.Z*accel.Z)
	if accelMag <= 15.0 {
		t.Errorf("impact magnitude %.2f should exceed impact threshold", accelMag)
	}

	_, rotation = p.Sample(fallImpactMS + 100)
	rotMag := math.Sqrt(rotation.X*rotation.X + rotation.Y*rotation.Y + rotation.Z*rotation.Z)
	if rotMag <= 4.3 {
		t.Errorf("rotation magnitude %.2f should exceed rotation threshold", rotMag)
	}
}
