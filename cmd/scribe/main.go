package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/yujixr/stream-scribe/internal/audio"
	"github.com/yujixr/stream-scribe/internal/config"
	"github.com/yujixr/stream-scribe/internal/metrics"
	"github.com/yujixr/stream-scribe/internal/pipeline"
	"github.com/yujixr/stream-scribe/internal/segment"
	"github.com/yujixr/stream-scribe/internal/server"
	"github.com/yujixr/stream-scribe/internal/session"
	"github.com/yujixr/stream-scribe/internal/structure"
	"github.com/yujixr/stream-scribe/internal/transcribe"
	"github.com/yujixr/stream-scribe/internal/vad"
)

const serviceName = "stream-scribe"

var serviceVersion = "dev"

type rootFlags struct {
	configPath string
	outputDir  string
	noSave     bool
	noLLM      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "scribe",
		Short: "Real-time dictation with hallucination-resistant transcription",
		Long: `scribe captures microphone audio, cuts it into utterances with a
hysteresis voice-activity gate, transcribes each utterance through a staged
retry cascade, and structures the transcript into a live topic summary.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			src := audio.NewMicSource(cfg.Audio.FFmpegBinary, cfg.Audio.InputFormat,
				cfg.Audio.Device, cfg.Audio.SampleRate, cfg.Audio.ChunkSize())
			return run(cfg, src)
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to configuration file")
	root.PersistentFlags().StringVarP(&flags.outputDir, "output-dir", "o", "", "directory for session JSON files")
	root.PersistentFlags().BoolVar(&flags.noSave, "no-save", false, "do not persist the session at shutdown")
	root.PersistentFlags().BoolVar(&flags.noLLM, "no-structuring", false, "disable topic structuring and summaries")

	var realtime bool
	fileCmd := &cobra.Command{
		Use:   "file <path.wav>",
		Short: "Transcribe a WAV file through the live pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			var pace time.Duration
			if realtime {
				pace = cfg.Audio.ChunkDuration()
			}
			src := audio.NewFileSource(args[0], cfg.Audio.SampleRate, cfg.Audio.ChunkSize(), pace)
			return run(cfg, src)
		},
	}
	fileCmd.Flags().BoolVar(&realtime, "realtime", false, "replay at live capture speed")
	root.AddCommand(fileCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", serviceName, serviceVersion)
		},
	})
	return root
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.outputDir != "" {
		cfg.App.OutputDir = flags.outputDir
	}
	if flags.noSave {
		cfg.App.SaveJSON = false
	}
	if flags.noLLM {
		cfg.Structuring.Enabled = false
	}
	return cfg, nil
}

func run(cfg *config.Config, src audio.Source) error {
	godotenv.Load()

	logger := initLogger(cfg.Logging)
	logger.Info("service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("model", cfg.Whisper.Model),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("chunk_ms", cfg.Audio.ChunkMS),
		slog.Bool("structuring", cfg.Structuring.Enabled),
	)

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	client := openai.NewClient(apiKey)

	detector := vad.NewEnergyDetector(cfg.Audio.ChunkSize())
	segmenter := segment.New(detector, cfg.VAD, cfg.Audio.SampleRate, cfg.Audio.ChunkSize(), logger)
	engine := transcribe.NewEngine(
		transcribe.NewWhisperDecoder(client, cfg.Whisper),
		transcribe.NewFilter(cfg.Hallucination),
		cfg.Whisper, logger)

	var svc structure.Service
	if cfg.Structuring.Enabled {
		svc = structure.NewOpenAIService(client, cfg.Structuring, logger)
	}
	acc := structure.NewAccumulator(cfg.Structuring)
	m := metrics.NewMetrics()

	pipe := pipeline.New(cfg, src, segmenter, engine, acc, svc, session.New(), m, logger)
	pipe.OnTranscript = func(text string) {
		fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), text)
	}
	pipe.OnSummary = func(markdown string) {
		fmt.Printf("\n%s\n\n", markdown)
	}

	if cfg.HTTP.Enabled {
		httpSrv := server.NewHTTPServer(cfg.HTTP, pipe, logger)
		httpSrv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Stop(ctx)
		}()
	}

	// First SIGINT drains and persists; a second one, or SIGTERM, aborts.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if sig == syscall.SIGTERM {
			logger.Info("fast shutdown requested")
			pipe.Abort()
			return
		}
		logger.Info("graceful shutdown, finishing queued work (interrupt again to abort)")
		pipe.Shutdown()
		<-sigCh
		logger.Info("fast shutdown requested")
		pipe.Abort()
	}()

	return pipe.Run(context.Background())
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}
