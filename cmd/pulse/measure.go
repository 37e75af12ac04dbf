package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/pulse/internal/config"
	"github.com/verte-zerg/pulse/internal/live"
	"github.com/verte-zerg/pulse/internal/model"
	"github.com/verte-zerg/pulse/internal/relay"
	"github.com/verte-zerg/pulse/internal/session"
	"github.com/verte-zerg/pulse/internal/source"
	"github.com/verte-zerg/pulse/internal/store"
	"github.com/verte-zerg/pulse/internal/tui"
)

// measureOptions holds the merged flag and config values of the root command.
type measureOptions struct {
	mode        string
	protocol    string
	finalWindow string
	cameraSrc   string
	cameraCmd   string
	pipeline    string
	width       int
	height      int
	fps         int
	simBPM      float64
	bleAddress  string
	natsURL     string
	subject     string
	codec       string
	wsAddr      string
	logLevel    string
	logFile     string
	dbPath      string
}

var measureOpts = measureOptions{}

func addMeasureFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&measureOpts.mode, "mode", defaultMode, "beat producer: tap, camera or strap")
	f.StringVar(&measureOpts.protocol, "protocol", defaultProtocol, "session protocol: simple or calibrated")
	f.StringVar(&measureOpts.finalWindow, "final-window", defaultFinalWindow, "intervals behind the final BPM: measuring or measuring+preview")
	f.StringVar(&measureOpts.cameraSrc, "camera", defaultCameraSrc, "camera source: command, gstreamer or simulated")
	f.StringVar(&measureOpts.cameraCmd, "camera-cmd", source.DefaultCommand, "frame producer command ({width}, {height}, {fps} are expanded)")
	f.StringVar(&measureOpts.pipeline, "camera-pipeline", source.DefaultPipeline, "GStreamer pipeline ending in an appsink named sink")
	f.IntVar(&measureOpts.width, "width", defaultWidth, "camera frame width")
	f.IntVar(&measureOpts.height, "height", defaultHeight, "camera frame height")
	f.IntVar(&measureOpts.fps, "fps", defaultFPS, "camera frame rate")
	f.Float64Var(&measureOpts.simBPM, "sim-bpm", defaultSimBPM, "heart rate of the simulated camera")
	f.StringVar(&measureOpts.bleAddress, "ble-address", "", "strap address (default: first heart-rate strap found)")
	f.StringVar(&measureOpts.natsURL, "nats-url", "", "publish records to this NATS server")
	f.StringVar(&measureOpts.subject, "subject", relay.DefaultSubject, "NATS subject for records")
	f.StringVar(&measureOpts.codec, "codec", string(relay.CodecJSON), "record payload encoding: json or msgpack")
	f.StringVar(&measureOpts.wsAddr, "ws-addr", "", "serve live updates over WebSocket on this address")
	f.StringVar(&measureOpts.logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&measureOpts.logFile, "log-file", "", "log file (default: $XDG_STATE_HOME/pulse/pulse.log)")
	f.StringVar(&measureOpts.dbPath, "db", "", "history database (default: $XDG_DATA_HOME/pulse/pulse.db)")
}

func mergeMeasureConfig(cmd *cobra.Command, opts *measureOptions, fileCfg config.FileConfig) {
	applyStringConfig(cmd, "mode", &opts.mode, fileCfg.Session.Mode)
	applyStringConfig(cmd, "protocol", &opts.protocol, fileCfg.Session.Protocol)
	applyStringConfig(cmd, "final-window", &opts.finalWindow, fileCfg.Session.FinalWindow)
	applyStringConfig(cmd, "camera", &opts.cameraSrc, fileCfg.Camera.Source)
	applyStringConfig(cmd, "camera-cmd", &opts.cameraCmd, fileCfg.Camera.Command)
	applyStringConfig(cmd, "camera-pipeline", &opts.pipeline, fileCfg.Camera.Pipeline)
	applyIntConfig(cmd, "width", &opts.width, fileCfg.Camera.Width)
	applyIntConfig(cmd, "height", &opts.height, fileCfg.Camera.Height)
	applyIntConfig(cmd, "fps", &opts.fps, fileCfg.Camera.FPS)
	applyFloatConfig(cmd, "sim-bpm", &opts.simBPM, fileCfg.Camera.SimBPM)
	applyStringConfig(cmd, "ble-address", &opts.bleAddress, fileCfg.BLE.Address)
	applyStringConfig(cmd, "nats-url", &opts.natsURL, fileCfg.Relay.NATSURL)
	applyStringConfig(cmd, "subject", &opts.subject, fileCfg.Relay.Subject)
	applyStringConfig(cmd, "codec", &opts.codec, fileCfg.Relay.Codec)
	applyStringConfig(cmd, "ws-addr", &opts.wsAddr, fileCfg.Live.Addr)
	applyStringConfig(cmd, "log-level", &opts.logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-file", &opts.logFile, fileCfg.Log.File)
}

// sessionSettings is the validated form of measureOptions.
type sessionSettings struct {
	mode     model.Mode
	protocol model.Protocol
	params   model.Params
	codec    relay.Codec
}

func validateMeasureOptions(opts measureOptions) (sessionSettings, error) {
	mode, err := model.ParseMode(opts.mode)
	if err != nil {
		return sessionSettings{}, fmt.Errorf("invalid --mode: %w", err)
	}
	protocol, err := model.ParseProtocol(opts.protocol)
	if err != nil {
		return sessionSettings{}, fmt.Errorf("invalid --protocol: %w", err)
	}
	window, err := model.ParseFinalWindow(opts.finalWindow)
	if err != nil {
		return sessionSettings{}, fmt.Errorf("invalid --final-window: %w", err)
	}
	if mode == model.ModeCamera {
		switch opts.cameraSrc {
		case "command", "gstreamer", "simulated":
		default:
			return sessionSettings{}, fmt.Errorf("--camera must be command, gstreamer or simulated")
		}
		if opts.width <= 0 || opts.height <= 0 {
			return sessionSettings{}, fmt.Errorf("--width and --height must be > 0")
		}
		if opts.fps <= 0 {
			return sessionSettings{}, fmt.Errorf("--fps must be > 0")
		}
		if opts.cameraSrc == "simulated" && (opts.simBPM < 30 || opts.simBPM > 220) {
			return sessionSettings{}, fmt.Errorf("--sim-bpm must be between 30 and 220")
		}
	}
	codec, err := relay.ParseCodec(opts.codec)
	if err != nil {
		return sessionSettings{}, fmt.Errorf("invalid --codec: %w", err)
	}
	params := model.DefaultParams()
	params.FinalWindow = window
	return sessionSettings{mode: mode, protocol: protocol, params: params, codec: codec}, nil
}

func newCamera(opts measureOptions, log logrus.FieldLogger) (session.Camera, error) {
	switch opts.cameraSrc {
	case "simulated":
		return source.NewSimulated(opts.fps, opts.simBPM), nil
	case "gstreamer":
		return source.NewGStreamer(source.GStreamerConfig{
			Pipeline: opts.pipeline,
			Width:    opts.width,
			Height:   opts.height,
			FPS:      opts.fps,
		}, log)
	default:
		return source.NewCommand(source.CommandConfig{
			Command: opts.cameraCmd,
			Width:   opts.width,
			Height:  opts.height,
			FPS:     opts.fps,
		}, log), nil
	}
}

func runMeasureCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	opts := measureOpts
	mergeMeasureConfig(cmd, &opts, fileCfg)
	settings, err := validateMeasureOptions(opts)
	if err != nil {
		return err
	}

	log, closeLog, err := openLogger(opts.logFile, opts.logLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	dbPath := opts.dbPath
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	sinks := session.MultiSink{st}
	if opts.natsURL != "" {
		nc, err := relay.Connect(opts.natsURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()
		sinks = append(sinks, relay.NewPublisher(nc, opts.subject, log).WithCodec(settings.codec))
	}

	var hub *live.Hub
	if opts.wsAddr != "" {
		hub = live.NewHub(log)
	}

	ctrlOpts := []session.Option{
		session.WithSink(sinks),
		session.WithLogger(log),
	}
	if settings.mode == model.ModeCamera {
		cam, err := newCamera(opts, log)
		if err != nil {
			return fmt.Errorf("failed to set up camera: %w", err)
		}
		ctrlOpts = append(ctrlOpts, session.WithCamera(cam))
	}
	var forward func(session.Update)
	ctrlOpts = append(ctrlOpts, session.WithObserver(func(u session.Update) {
		if hub != nil {
			hub.Publish(u)
		}
		forward(u)
	}))
	ctrl := session.NewController(settings.params, ctrlOpts...)

	screen := tui.NewModel(ctrl, st, settings.mode, settings.protocol)
	program := tea.NewProgram(screen, tea.WithAltScreen())
	forward = tui.Observe(program)

	ctx, cancel := context.WithCancel(cmd.Context())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil {
			log.WithError(err).Error("controller stopped")
		}
	}()
	if hub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hub.Serve(ctx, opts.wsAddr); err != nil {
				log.WithError(err).Error("live server failed")
			}
		}()
	}
	var strapErr error
	if settings.mode == model.ModeStrap {
		strap := source.NewStrap(opts.bleAddress, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := strap.Run(ctx, ctrl.RecordBeatAt); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Warn("strap stopped")
				strapErr = err
				ctrl.Fail(fmt.Errorf("strap unavailable: %w", err))
			}
		}()
	}

	_, runErr := program.Run()
	cancel()
	wg.Wait()
	if strapErr != nil {
		logErrf("strap unavailable: %v\n", strapErr)
	}
	if runErr != nil {
		return fmt.Errorf("failed to run TUI: %w", runErr)
	}
	return nil
}
