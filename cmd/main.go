package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cascade-audio/cascade/pkg/server"
	"github.com/cascade-audio/cascade/pkg/stream"
	"github.com/cascade-audio/cascade/pkg/trace"
	"github.com/cascade-audio/cascade/pkg/vad"
)

func main() {
	godotenv.Load()

	var (
		addr       = flag.String("addr", ":8080", "listen address")
		configPath = flag.String("config", "", "path to YAML session config")
		modelPath  = flag.String("model", os.Getenv("SILERO_MODEL_PATH"), "path to the Silero ONNX model")
	)
	flag.Parse()

	sessionCfg := stream.DefaultConfig()
	if *configPath != "" {
		var err error
		sessionCfg, err = stream.LoadConfig(*configPath)
		if err != nil {
			log.Fatal(err)
		}
	}

	ctx := context.Background()
	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Fatalf("initialize tracing: %v", err)
	}
	defer trace.Shutdown(ctx)

	factory := func() (vad.Classifier, error) {
		return vad.NewSileroClassifier(vad.SileroConfig{
			ModelPath:            *modelPath,
			SampleRate:           stream.SampleRate,
			Threshold:            sessionCfg.VADThreshold,
			MinSilenceDurationMs: sessionCfg.MinSilenceDurationMs,
			SpeechPadMs:          sessionCfg.SpeechPadMs,
		})
	}

	cfg := server.DefaultConfig()
	cfg.Addr = *addr
	cfg.AuthToken = os.Getenv("AUTH_TOKEN")
	cfg.Session = sessionCfg

	srv := server.NewWebSocketServer(cfg, factory)
	if err := srv.Start(ctx); err != nil {
		log.Fatal(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	if err := srv.Stop(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
