// Audio capture check for local-audio mode. Records a few seconds from
// the configured input device, meters the level live, and saves a WAV
// file to listen to. Use it to verify microphone access and pick the
// right device before starting the assistant with -local-audio.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicdesk/clinicvoice/internal/log"
	"github.com/clinicdesk/clinicvoice/pkg/audioio"
)

func main() {
	backend := flag.String("backend", "auto", "Audio backend: auto, portaudio, mock")
	device := flag.String("device", "", "Capture device name substring")
	rate := flag.Int("rate", 16000, "Sample rate in Hz (16000 matches the voice uplink)")
	channels := flag.Int("channels", 1, "Channel count")
	seconds := flag.Int("seconds", 5, "Recording duration")
	wavPath := flag.String("wav", "/tmp/clinicvoice_check.wav", "Output WAV path")
	playback := flag.Bool("playback", false, "Play the recording back when done")
	flag.Parse()

	log.Init("warn")

	fmt.Println("🎙  ClinicVoice audio check")
	fmt.Println("===========================")

	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.Backend(*backend)
	cfg.Device = *device
	cfg.SampleRate = *rate
	cfg.Channels = *channels

	source, err := audioio.NewSource(cfg, log.L())
	if err != nil {
		fmt.Printf("❌ Failed to create source: %v\n", err)
		os.Exit(1)
	}
	defer source.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := source.Start(ctx); err != nil {
		if errors.Is(err, audioio.ErrPermissionDenied) {
			fmt.Println("❌ Could not open the microphone.")
			fmt.Println("   Check input permissions and that no other app holds the device.")
		} else {
			fmt.Printf("❌ Capture failed to start: %v\n", err)
		}
		os.Exit(1)
	}
	defer source.Stop()

	fmt.Printf("Recording %ds from %s (%d Hz, %d ch)...\n", *seconds, source.Name(), *rate, *channels)

	deadline := time.After(time.Duration(*seconds) * time.Second)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var (
		samples []int16
		window  []int16
		chunks  int
		clipped int
		peak    int32
	)

capture:
	for {
		select {
		case <-ctx.Done():
			break capture
		case <-deadline:
			break capture
		case chunk, ok := <-source.Stream():
			if !ok {
				break capture
			}
			chunks++
			samples = append(samples, chunk.Samples...)
			window = chunk.Samples
			for _, s := range chunk.Samples {
				abs := int32(s)
				if abs < 0 {
					abs = -abs
				}
				if abs > peak {
					peak = abs
				}
				if s == math.MaxInt16 || s == math.MinInt16 {
					clipped++
				}
			}
		case <-ticker.C:
			fmt.Printf("\r🎚  level %s dBFS  peak %s  chunks %d  clipped %d   ",
				levelDB(window), sampleDB(peak), chunks, clipped)
		}
	}

	source.Stop()

	fmt.Printf("\n\n📊 Capture stats:\n")
	fmt.Printf("   Chunks:   %d\n", chunks)
	fmt.Printf("   Samples:  %d (%.2fs at %d Hz)\n",
		len(samples), float64(len(samples))/float64(*rate**channels), *rate)
	fmt.Printf("   Peak:     %s dBFS\n", sampleDB(peak))
	fmt.Printf("   Clipped:  %d\n", clipped)
	if sws, ok := source.(audioio.SourceWithStats); ok {
		fmt.Printf("   Overruns: %d\n", sws.Stats().Overruns)
	}

	if len(samples) == 0 {
		fmt.Println("❌ No audio captured - the device produced nothing.")
		os.Exit(1)
	}
	if peak < 328 { // about -40 dBFS
		fmt.Println("⚠️  Very low signal. Check that the right input device is selected.")
	}

	if err := writeWAV(*wavPath, samples, *rate, *channels); err != nil {
		fmt.Printf("❌ Failed to write WAV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Saved %s (%d bytes)\n", *wavPath, 44+len(samples)*2)

	if *playback {
		fmt.Println("🔊 Playing the recording back...")
		if err := playbackSamples(ctx, cfg, samples); err != nil {
			fmt.Printf("❌ Playback failed: %v\n", err)
			os.Exit(1)
		}
	}
}

// playbackSamples replays the capture through the matching output device.
func playbackSamples(ctx context.Context, cfg audioio.Config, samples []int16) error {
	sink, err := audioio.NewSink(cfg, log.L())
	if err != nil {
		return err
	}
	defer sink.Close()

	if err := sink.Start(ctx); err != nil {
		return err
	}
	defer sink.Stop()

	step := cfg.BufferSize() * cfg.Channels
	for i := 0; i < len(samples); i += step {
		end := min(i+step, len(samples))
		chunk := audioio.AudioChunk{
			Samples:    samples[i:end],
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
		}
		if err := sink.Write(ctx, chunk); err != nil {
			return err
		}
	}
	return sink.Flush(ctx)
}

// levelDB reports the RMS level of the sample window in dBFS.
func levelDB(samples []int16) string {
	rms := audioio.CalculateRMS(samples)
	if rms < 1.0/32768 {
		return "  -inf"
	}
	return fmt.Sprintf("%6.1f", 20*math.Log10(rms))
}

// sampleDB reports a single sample magnitude in dBFS.
func sampleDB(s int32) string {
	if s < 1 {
		return "  -inf"
	}
	return fmt.Sprintf("%6.1f", 20*math.Log10(float64(s)/32768))
}

// writeWAV saves PCM16 samples as a standard RIFF/WAVE file.
func writeWAV(path string, samples []int16, sampleRate, channels int) error {
	dataSize := len(samples) * 2

	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, uint16(channels))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate*channels*2))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(channels*2))
	buf = binary.LittleEndian.AppendUint16(buf, 16)

	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}

	return os.WriteFile(path, buf, 0o644)
}
