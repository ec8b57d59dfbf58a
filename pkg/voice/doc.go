// Package voice streams live conversations with speech-to-speech models.
//
// A Pipeline is one session: mono PCM16 up, synthesized speech,
// transcripts, and model tool calls back down a single streaming
// connection. Provider implementations live in pkg/voice/bundled and
// register themselves by name in init, so callers import bundled for its
// side effects and pick a provider in Config:
//
//	import (
//	    "github.com/clinicdesk/clinicvoice/pkg/voice"
//	    _ "github.com/clinicdesk/clinicvoice/pkg/voice/bundled"
//	)
//
//	cfg := voice.DefaultConfig()
//	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
//	cfg.SystemPrompt = "You are a clinic data entry assistant."
//
//	pipeline, err := voice.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Declare the tools the model may call and wire the event callbacks before
// Start; the session snapshots both:
//
//	pipeline.RegisterTool(voice.Tool{
//	    Name:        "add_record",
//	    Description: "Creates a new medical record",
//	    Handler: func(args map[string]any) (string, error) {
//	        return "Record added successfully.", nil
//	    },
//	})
//
//	cb := voice.Callbacks{
//	    OnAudioOut:   func(pcm []byte) { speaker.Write(pcm) },
//	    OnTranscript: func(text string, final bool) { feed.Append("user", text, final) },
//	}
//	cb.Apply(pipeline)
//
// Then start the session and feed it microphone audio:
//
//	if err := pipeline.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pipeline.Stop()
//
//	for chunk := range microphone {
//	    pipeline.SendAudio(chunk)
//	}
//
// Every session keeps its own latency and traffic counters:
//
//	m := pipeline.Metrics()
//	fmt.Printf("turn %v, first audio %v, %d turns\n",
//	    m.TurnLatency, m.FirstAudioLatency, m.Turns)
package voice
