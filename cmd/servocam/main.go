// Command servocam reads detector frames, runs the tracking loop once per
// frame and drives the pan/tilt servos over serial and websocket links.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/servo-cam/server/internal/command"
	"github.com/servo-cam/server/internal/config"
	"github.com/servo-cam/server/internal/db"
	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/monitoring"
	"github.com/servo-cam/server/internal/remote"
	"github.com/servo-cam/server/internal/serialmux"
	"github.com/servo-cam/server/internal/timeutil"
	"github.com/servo-cam/server/internal/tracker"
	"github.com/servo-cam/server/internal/version"
)

var (
	configPath  = flag.String("config", "", "Config file (.json, .yaml); built-in defaults when empty")
	input       = flag.String("input", "-", "Detector frames as NDJSON; - reads stdin")
	devMode     = flag.Bool("dev", false, "Use a mock serial port")
	listen      = flag.String("listen", "localhost:8080", "Debug server address; empty disables it")
	port        = flag.String("port", "", "Serial port (overrides config)")
	dbPath      = flag.String("db", "", "Telemetry database (overrides config); none disables recording")
	logLevel    = flag.String("log-level", "", "error, warn, info or debug (overrides config)")
	fps         = flag.Float64("fps", 0, "Tick at most this many frames per second; 0 ticks as frames arrive")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: servocam [flags]\n       servocam [flags] migrate <action>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("servocam", version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], databasePath(cfg), os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Empty(), nil
	}
	return config.Load(path)
}

func databasePath(cfg *config.Config) string {
	if *dbPath != "" {
		return *dbPath
	}
	return cfg.GetDBPath()
}

func openSerial(cfg *config.Config, clock timeutil.Clock) (serialmux.SerialMuxInterface, error) {
	switch {
	case *devMode:
		return serialmux.NewMockSerialMux(cfg.GetSerialFormat(), clock), nil
	case !cfg.GetSerialEnabled():
		return serialmux.NewDisabledSerialMux(clock), nil
	}
	path := cfg.GetSerialPort()
	if *port != "" {
		path = *port
	}
	return serialmux.NewRealSerialMux(path, cfg.SerialOptions(), cfg.GetSerialFormat())
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(name)
}

func run(cfg *config.Config) error {
	level := cfg.GetLogLevel()
	if *logLevel != "" {
		level = *logLevel
	}
	logger := monitoring.NewSlogLogger(os.Stderr, level)
	slog.SetDefault(logger)
	monitoring.UseSlog(logger)
	logger.Info("starting servocam", "version", version.Version, "git_sha", version.GitSHA)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	var wg sync.WaitGroup

	serial, err := openSerial(cfg, clock)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	defer serial.Close()

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := serial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("serial monitor stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		serial.Probe(ctx, cfg.GetStatusInterval())
	}()
	go func() {
		defer wg.Done()
		id, lines := serial.Subscribe()
		defer serial.Unsubscribe(id)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				logger.Debug("controller", "line", line)
			case <-ctx.Done():
				return
			}
		}
	}()

	senders := command.Fanout{serial}
	if url := cfg.GetRemoteURL(); url != "" {
		client, err := remote.New(url, clock)
		if err != nil {
			return err
		}
		defer client.Close()
		senders = append(senders, client)
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.Run(ctx)
		}()
	}

	trk := tracker.New(cfg.TrackerOptions(), senders, clock)
	ctrl := newController(trk)

	var recorder *db.Recorder
	var database *db.DB
	if path := databasePath(cfg); path != "none" {
		database, err = db.NewDB(path)
		if err != nil {
			return fmt.Errorf("failed to open telemetry database: %w", err)
		}
		defer database.Close()
		recorder = db.NewRecorder(database, clock)
		logger.Info("recording telemetry", "path", path, "session", database.Session())
	}

	if *listen != "" {
		mux := http.NewServeMux()
		serial.AttachAdminRoutes(mux)
		ctrl.attachRoutes(mux)
		if database != nil {
			if err := database.AttachAdminRoutes(mux); err != nil {
				return err
			}
		}
		server := &http.Server{Addr: *listen, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("debug server failed", "error", err)
					stop()
				}
			}()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	in, err := openInput(*input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	frames := make(chan []detection.Object)
	readErr := make(chan error, 1)
	go func() {
		defer close(frames)
		readErr <- ReadFrames(ctx, in, frames, func(line int, err error) {
			logger.Warn("skipping frame", "line", line, "error", err)
		})
	}()

	var interval time.Duration
	if *fps > 0 {
		interval = time.Duration(float64(time.Second) / *fps)
	}
	err = tickFrames(ctx, trk, frames, interval, func(out tracker.Output) {
		ctrl.observe(out)
		for _, ch := range out.Changes {
			logger.Info("status", "state", ch.State.String(), "on", ch.On, "tick", out.Tick)
		}
		if recorder != nil {
			recorder.Record(out)
		}
	})
	if err == nil {
		select {
		case err = <-readErr:
		default:
		}
		logger.Info("input finished")
	}

	trk.Reset(true)
	stop()
	wg.Wait()
	return err
}

// tickFrames runs one tick per frame until frames closes or ctx is done.
// A positive interval spaces the ticks out.
func tickFrames(ctx context.Context, trk *tracker.Tracker, frames <-chan []detection.Object, interval time.Duration, observe func(tracker.Output)) error {
	var pace <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		pace = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case objs, ok := <-frames:
			if !ok {
				return nil
			}
			if pace != nil {
				select {
				case <-pace:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			observe(trk.Tick(objs))
		}
	}
}
