package clinic

import (
	"context"
	"fmt"
	"net/http"

	"github.com/clinicdesk/clinicvoice/internal/config"
	"github.com/clinicdesk/clinicvoice/internal/log"
	"github.com/clinicdesk/clinicvoice/internal/metrics"
	"github.com/clinicdesk/clinicvoice/pkg/audioio"
	"github.com/clinicdesk/clinicvoice/pkg/debug"
	"github.com/clinicdesk/clinicvoice/pkg/records"
	"github.com/clinicdesk/clinicvoice/pkg/voice"
	"github.com/clinicdesk/clinicvoice/pkg/web"
)

// App wires the assistant together: record store, tool dispatcher, voice
// session controller, web dashboard, and metrics. It manages component
// lifecycle; the components themselves never know about each other.
type App struct {
	config config.Config

	store      *records.Store
	dispatcher *Dispatcher
	controller *Controller
	webServer  *web.Server
	metricsSrv *http.Server

	source audioio.Source
	sink   audioio.Sink

	baseCtx context.Context
}

// New validates the configuration and creates the application. Call Init
// before Run.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Init(cfg.LogLevel)
	debug.Enabled = cfg.Debug

	return &App{config: cfg}, nil
}

// Init initializes all components. Call this after New() and before Run().
func (a *App) Init() error {
	fmt.Println("🏥 ClinicVoice - Voice-Controlled Data Entry")
	fmt.Println("============================================")
	if debug.Enabled {
		fmt.Println("🐛 Debug mode enabled")
	}

	fmt.Print("🔧 Initializing... ")

	theme, _ := records.ParseTheme(a.config.Theme)
	a.store = records.NewStore(a.config.BonusRate, theme)
	a.dispatcher = NewDispatcher(a.store)

	a.webServer = web.NewServer(web.Config{
		Addr:      a.config.Addr,
		StaticDir: a.config.StaticDir,
		Audio:     a.config.Audio,
	})

	if a.config.LocalAudio {
		alog := log.Component("audio")
		source, err := audioio.NewSource(a.config.Audio, alog)
		if err != nil {
			return fmt.Errorf("audio source: %w", err)
		}
		sink, err := audioio.NewSink(a.config.Audio, alog)
		if err != nil {
			return fmt.Errorf("audio sink: %w", err)
		}
		a.source, a.sink = source, sink
	} else {
		bridge := a.webServer.Bridge()
		a.source, a.sink = bridge, bridge
	}

	a.controller = NewController(ControllerConfig{
		Voice:      a.voiceConfig(),
		Store:      a.store,
		Dispatcher: a.dispatcher,
		Source:     a.source,
		Sink:       a.sink,
	})

	a.wire()
	fmt.Println("✅")

	fmt.Printf("🎙️  Voice provider: %s\n", a.config.Provider)
	if a.config.LocalAudio {
		fmt.Printf("🔊 Audio: local devices (%s)\n", a.source.Name())
	} else {
		fmt.Println("🔊 Audio: browser bridge")
	}
	return nil
}

// Run starts the web server and metrics endpoint and blocks until the
// context is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	a.baseCtx = ctx

	// Seed the dashboard before the first client connects.
	a.webServer.UpdateState(a.store.Snapshot())

	if a.config.MetricsAddr != "" {
		a.metricsSrv = metrics.Serve(a.config.MetricsAddr)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.webServer.Start(); err != nil {
			errCh <- err
		}
	}()

	fmt.Println("\n🎤 Open the dashboard and press the mic button to talk")
	fmt.Println("   (Ctrl+C to exit)")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	}
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() {
	fmt.Println("\n👋 Goodbye!")

	if a.controller != nil {
		a.controller.Stop()
	}
	if a.config.LocalAudio {
		// The browser bridge is owned by the web server; local devices
		// are ours to close.
		if a.source != nil {
			a.source.Close()
		}
		if a.sink != nil {
			a.sink.Close()
		}
	}
	if a.webServer != nil {
		a.webServer.Shutdown()
	}
	if a.metricsSrv != nil {
		a.metricsSrv.Close()
	}
}

// Store exposes the record store, mainly for tests.
func (a *App) Store() *records.Store {
	return a.store
}

// voiceConfig builds the pipeline configuration from the app settings.
func (a *App) voiceConfig() voice.Config {
	var vcfg voice.Config
	switch a.config.Provider {
	case "openai":
		vcfg = voice.DefaultOpenAIConfig()
	default:
		vcfg = voice.DefaultConfig()
	}
	vcfg.GoogleAPIKey = a.config.GoogleAPIKey
	vcfg.OpenAIKey = a.config.OpenAIKey
	if a.config.Model != "" {
		vcfg.Model = a.config.Model
	}
	if a.config.Voice != "" {
		vcfg.Voice = a.config.Voice
	}
	vcfg.Debug = a.config.Debug
	vcfg.ProfileLatency = a.config.Debug
	return vcfg
}

// wire connects the components: store changes and session state flow to
// the dashboard, dashboard actions flow to the store and controller.
func (a *App) wire() {
	a.store.OnChange(func(snap records.Snapshot) {
		a.webServer.UpdateState(snap)
	})

	a.controller.OnStateChange(func(state SessionState) {
		a.webServer.SetVoiceState(string(state))
	})

	a.controller.OnConversation(func(role, text string, final bool) {
		a.webServer.AddConversation(role, text, final)
	})

	a.webServer.OnAddRecord = func(in records.Input) records.MedicalRecord {
		rec := a.store.AddRecord(in)
		metrics.RecordsCreated.WithLabelValues("ui").Inc()
		return rec
	}

	a.webServer.OnUploadAll = func() (int, float64) {
		count, credited := a.store.UploadAllPending()
		metrics.RecordsUploaded.Add(float64(count))
		metrics.BonusCredited.Add(credited)
		return count, credited
	}

	a.webServer.OnToolTrigger = a.dispatcher.Handle

	a.webServer.OnVoiceStart = func() error {
		ctx := a.baseCtx
		if ctx == nil {
			ctx = context.Background()
		}
		return a.controller.Start(ctx)
	}
	a.webServer.OnVoiceStop = func() error {
		return a.controller.Stop()
	}

	tools := Tools(a.dispatcher)
	infos := make([]web.ToolInfo, len(tools))
	for i, tool := range tools {
		infos[i] = web.ToolInfo{Name: tool.Name, Description: tool.Description}
	}
	a.webServer.Tools = infos
}
