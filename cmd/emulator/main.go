package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/emulator"
)

func main() {
	var (
		broker      = flag.String("broker", "tcp://localhost:1883", "адрес MQTT брокера")
		topicPrefix = flag.String("topic-prefix", "motion", "префикс MQTT топиков")
		deviceID    = flag.String("device", "emulator-1", "идентификатор устройства")
		profileName = flag.String("profile", "fall", "сценарий: rest, fall, shake")
		interval    = flag.Duration("interval", 50*time.Millisecond, "период между сэмплами")
		jitter      = flag.Duration("jitter", 0, "максимальный джиттер периода")
		duration    = flag.Duration("duration", 0, "длительность работы (0 - без ограничения)")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "seed генератора шума")
		outFile     = flag.String("out", "", "писать сэмплы в JSONL файл вместо MQTT")
	)
	flag.Parse()

	profile, ok := emulator.ProfileByName(*profileName, *seed)
	if !ok {
		log.Fatalf("[FATAL] Unknown profile: %s (available: rest, fall, shake)", *profileName)
	}

	var sender emulator.SampleSender
	var err error
	if *outFile != "" {
		sender, err = emulator.NewFileSender(*outFile)
	} else {
		clientID := fmt.Sprintf("fall-emulator-%s", *deviceID)
		sender, err = emulator.NewMQTTSender(*broker, clientID, *topicPrefix, 1)
	}
	if err != nil {
		log.Fatalf("[FATAL] Failed to create sender: %v", err)
	}
	defer sender.Close()

	em := emulator.New(emulator.Options{
		DeviceID:       *deviceID,
		Profile:        profile,
		Sender:         sender,
		SampleInterval: *interval,
		Jitter:         *jitter,
		Duration:       *duration,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := em.Run(ctx); err != nil {
		log.Fatalf("[FATAL] Emulator error: %v", err)
	}
}
