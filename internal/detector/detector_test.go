package detector

import "testing"

// accelAt возвращает сэмпл акселерометра с заданным модулем (одна ось)
func accelAt(mag float64, ts int64) Sample {
	return Sample{Z: mag, TsMS: ts}
}

func rotAt(mag float64, ts int64) Sample {
	return Sample{X: mag, TsMS: ts}
}

// feedEpisode скармливает детектору полный квалифицирующийся эпизод:
// покой (опционально), удар при t0, вращение при t0+300, затем 10 тихих
// сэмплов. Возвращает все события, выданные детектором.
func feedEpisode(d *Detector, t0 int64, withRest bool, lowMag float64) []*FallEvent {
	var events []*FallEvent

	collect := func(ev *FallEvent) {
		if ev != nil {
			events = append(events, ev)
		}
	}

	if withRest {
		for i := 0; i < 10; i++ {
			collect(d.IngestAcceleration(accelAt(9.8, t0-1000+int64(i)*100)))
		}
	}

	collect(d.IngestAcceleration(accelAt(20.0, t0)))
	collect(d.IngestRotation(rotAt(5.0, t0+300)))

	for i := 0; i < 10; i++ {
		collect(d.IngestAcceleration(accelAt(lowMag, t0+400+int64(i)*60)))
	}

	return events
}

func TestDetector_ScenarioA_ConfirmedFall(t *testing.T) {
	d := New(DefaultConfig())

	events := feedEpisode(d, 0, true, 2.0)

	if len(events) != 1 {
		t.Fatalf("Expected exactly 1 fall event, got %d", len(events))
	}
	if events[0].FallCount != 1 {
		t.Errorf("Expected fall_count 1, got %d", events[0].FallCount)
	}
	if events[0].ImpactTsMS != 0 {
		t.Errorf("Expected impact at t=0, got %d", events[0].ImpactTsMS)
	}
	if events[0].TsMS <= 0 || events[0].TsMS > DefaultConfig().PatternDurationMS {
		t.Errorf("Confirmation outside pattern window: ts=%d", events[0].TsMS)
	}

	// После подтверждения паттерн сброшен в IDLE
	status := d.Status()
	if status.ImpactDetected || status.HighAngularVelocity || status.LowActivityAfter {
		t.Errorf("Expected IDLE after confirmation, got %+v", status)
	}

	c := d.Counters()
	if c.FallCount != 1 || !c.HasLastFall {
		t.Errorf("Expected counters fall=1 with last fall set, got %+v", c)
	}
}

func TestDetector_ScenarioB_NoStillnessTimesOut(t *testing.T) {
	d := New(DefaultConfig())

	// Средний модуль остается >= 5, неподвижность не подтверждается
	events := feedEpisode(d, 0, true, 8.0)
	if len(events) != 0 {
		t.Fatalf("Expected no fall events, got %d", len(events))
	}

	// Эпизод еще жив внутри бюджета
	if !d.Status().ImpactDetected {
		t.Fatal("Expected episode still armed before timeout")
	}

	// Сэмпл за пределами бюджета вызывает сброс по таймауту
	if ev := d.IngestAcceleration(accelAt(9.8, 1600)); ev != nil {
		t.Fatalf("Unexpected fall event on timeout: %+v", ev)
	}

	status := d.Status()
	if status.ImpactDetected || status.AccelerationSpike {
		t.Errorf("Expected IDLE after timeout, got %+v", status)
	}

	c := d.Counters()
	if c.FallCount != 0 {
		t.Errorf("Expected fall_count 0, got %d", c.FallCount)
	}
	if c.Timeouts != 1 {
		t.Errorf("Expected 1 timeout, got %d", c.Timeouts)
	}
}

func TestDetector_ScenarioC_CooldownSuppressesSecondFall(t *testing.T) {
	d := New(DefaultConfig())

	first := feedEpisode(d, 0, true, 2.0)
	second := feedEpisode(d, 1000, false, 2.0)

	if len(first) != 1 {
		t.Fatalf("Expected 1 event from first episode, got %d", len(first))
	}
	if len(second) != 0 {
		t.Fatalf("Expected second episode suppressed by cooldown, got %d events", len(second))
	}

	c := d.Counters()
	if c.FallCount != 1 {
		t.Errorf("Expected fall_count 1 after both episodes, got %d", c.FallCount)
	}
	if c.Suppressed != 1 {
		t.Errorf("Expected 1 suppressed candidate, got %d", c.Suppressed)
	}

	// Подавленный кандидат все равно потребляет эпизод
	status := d.Status()
	if status.ImpactDetected {
		t.Errorf("Expected IDLE after suppressed candidate, got %+v", status)
	}
}

func TestDetector_ScenarioD_SecondFallAfterCooldown(t *testing.T) {
	d := New(DefaultConfig())

	first := feedEpisode(d, 0, true, 2.0)
	second := feedEpisode(d, 5000, false, 2.0)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("Expected 1 event per episode, got %d and %d", len(first), len(second))
	}
	if second[0].FallCount != 2 {
		t.Errorf("Expected fall_count 2, got %d", second[0].FallCount)
	}

	c := d.Counters()
	if c.FallCount != 2 || c.Suppressed != 0 {
		t.Errorf("Expected 2 falls, 0 suppressed, got %+v", c)
	}
}

func TestDetector_EdgeTriggeredImpact(t *testing.T) {
	d := New(DefaultConfig())

	// Первый пик открывает эпизод при t=1000
	d.IngestAcceleration(accelAt(20.0, 1000))
	// Второй пик при уже открытом эпизоде не перевзводит start
	d.IngestAcceleration(accelAt(22.0, 1200))

	// Вращение при t=2100: относительно исходного start dt=1100 >= 1000,
	// флаг не должен выставиться. Если бы эпизод перевзвелся при 1200,
	// dt был бы 900 и флаг бы выставился.
	d.IngestRotation(rotAt(5.0, 2100))

	if d.Status().HighAngularVelocity {
		t.Error("Rotation accepted outside sub-window: pattern start was re-armed")
	}

	c := d.Counters()
	if c.Impacts != 1 {
		t.Errorf("Expected 1 armed episode, got %d", c.Impacts)
	}
}

func TestDetector_RotationThenStillnessOrderIndependent(t *testing.T) {
	d := New(DefaultConfig())

	var events []*FallEvent
	collect := func(ev *FallEvent) {
		if ev != nil {
			events = append(events, ev)
		}
	}

	// Неподвижность подтверждается раньше вращения
	collect(d.IngestAcceleration(accelAt(20.0, 0)))
	for i := 0; i < 10; i++ {
		collect(d.IngestAcceleration(accelAt(2.0, 300+int64(i)*60)))
	}

	if !d.Status().LowActivityAfter {
		t.Fatal("Expected low activity confirmed before rotation")
	}
	if len(events) != 0 {
		t.Fatalf("Pattern completed without rotation: %d events", len(events))
	}

	// Вращение внутри подокна замыкает паттерн
	collect(d.IngestRotation(rotAt(5.0, 900)))

	if len(events) != 1 {
		t.Fatalf("Expected 1 fall event, got %d", len(events))
	}
	if events[0].TsMS != 900 {
		t.Errorf("Expected confirmation at t=900, got %d", events[0].TsMS)
	}
}

func TestDetector_RotationOutsideSubWindowIgnored(t *testing.T) {
	d := New(DefaultConfig())

	d.IngestAcceleration(accelAt(20.0, 0))
	// Подокно вращения 1000мс, сэмпл при t=1100 не засчитывается,
	// хотя общий бюджет эпизода (1500мс) еще не истек
	d.IngestRotation(rotAt(6.0, 1100))

	status := d.Status()
	if status.HighAngularVelocity {
		t.Error("Rotation outside 1s sub-window must not set the flag")
	}
	if !status.ImpactDetected {
		t.Error("Episode must still be armed within the pattern window")
	}
}

func TestDetector_ResetPatternKeepsCounters(t *testing.T) {
	d := New(DefaultConfig())

	feedEpisode(d, 0, true, 2.0)
	d.IngestAcceleration(accelAt(20.0, 10000))

	if !d.Status().ImpactDetected {
		t.Fatal("Expected armed episode")
	}

	d.ResetPattern()

	if d.Status().ImpactDetected {
		t.Error("Expected IDLE after pattern reset")
	}
	if c := d.Counters(); c.FallCount != 1 {
		t.Errorf("Pattern reset must not touch counters, got fall_count=%d", c.FallCount)
	}
}

func TestDetector_TotalResetClearsCounters(t *testing.T) {
	d := New(DefaultConfig())

	feedEpisode(d, 0, true, 2.0)
	d.Reset()

	c := d.Counters()
	if c.FallCount != 0 || c.HasLastFall || c.Impacts != 0 {
		t.Errorf("Expected cleared counters after total reset, got %+v", c)
	}

	// После полного сброса кулдаун не действует - падение сразу засчитывается
	events := feedEpisode(d, 100000, true, 2.0)
	if len(events) != 1 || events[0].FallCount != 1 {
		t.Errorf("Expected fresh fall_count 1 after reset, got %+v", events)
	}
}
