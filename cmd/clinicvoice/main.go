// ClinicVoice - voice-controlled data entry for clinic records.
// Streams speech to Gemini Live or the OpenAI Realtime API and executes
// the model's tool calls against an in-memory record store, with a live
// web dashboard.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/clinicdesk/clinicvoice/internal/config"
	"github.com/clinicdesk/clinicvoice/pkg/clinic"
	"github.com/clinicdesk/clinicvoice/pkg/debug"
	_ "github.com/clinicdesk/clinicvoice/pkg/voice/bundled" // register voice providers
)

func main() {
	// A local .env is optional; deployments set the environment directly.
	godotenv.Load()

	cfg, err := parseFlags()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	app, err := clinic.New(cfg)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags builds the configuration: file, then environment, then
// flags, so the command line always wins.
func parseFlags() (config.Config, error) {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address")
	staticDir := flag.String("static-dir", "", "Dashboard asset directory")
	provider := flag.String("provider", "", "Voice provider: gemini or openai")
	model := flag.String("model", "", "Voice model override")
	voiceName := flag.String("voice", "", "Voice name override")
	localAudio := flag.Bool("local-audio", false, "Use the workstation microphone and speakers instead of the browser")
	debugFlag := flag.Bool("debug", false, "Enable verbose debug logging")
	debugWire := flag.Bool("debug-wire", false, "Log per-frame wire traffic (very verbose)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	debug.Wire = *debugWire

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return cfg, err
	}
	cfg.LoadEnv()

	if *addr != "" {
		cfg.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}
	if *provider != "" {
		cfg.Provider = *provider
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *voiceName != "" {
		cfg.Voice = *voiceName
	}
	if *localAudio {
		cfg.LocalAudio = true
	}
	if *debugFlag {
		cfg.Debug = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	return cfg, nil
}
