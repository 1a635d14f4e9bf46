package detector

// Config содержит пороги и временные окна эвристики падения.
// Все значения в единицах СИ: ускорение в м/с², угловая скорость в рад/с,
// время в миллисекундах.
type Config struct {
	// Порог модуля ускорения для детекции удара
	AccelerationThreshold float64

	// Порог модуля угловой скорости для подтверждения вращения
	AngularVelocityThreshold float64

	// Порог среднего модуля ускорения для подтверждения неподвижности
	LowActivityThreshold float64

	// Общий бюджет времени эпизода от удара до подтверждения
	PatternDurationMS int64

	// Подокно после удара, в котором засчитывается вращение
	RotationSubWindowMS int64

	// Начало окна проверки неподвижности после удара
	LowActivityStartMS int64

	// Минимальный интервал между подтвержденными падениями
	CooldownMS int64

	// Емкость кольцевых буферов (W)
	BufferSize int

	// Количество последних сэмплов для усреднения при проверке неподвижности
	LowActivitySamples int
}

// DefaultConfig возвращает канонический набор порогов
func DefaultConfig() Config {
	return Config{
		AccelerationThreshold:    15.0,
		AngularVelocityThreshold: 4.3,
		LowActivityThreshold:     5.0,
		PatternDurationMS:        1500,
		RotationSubWindowMS:      1000,
		LowActivityStartMS:       200,
		CooldownMS:               3000,
		BufferSize:               100,
		LowActivitySamples:       10,
	}
}
