package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/camera"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/enrollment"
	"github.com/kozaktomas/attendance-kiosk/internal/events"
	"github.com/kozaktomas/attendance-kiosk/internal/facematch"
	"github.com/kozaktomas/attendance-kiosk/internal/notify"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
	"github.com/kozaktomas/attendance-kiosk/internal/stream"
	"github.com/kozaktomas/attendance-kiosk/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk",
	Long: `Start the attendance kiosk.
Opens the camera, recognizes faces on the dashboard feed, records arrivals
and serves the video feeds and the dashboard API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Int("camera", -1, "Camera index to start with (overrides CAMERA_INDEX)")
	serveCmd.Flags().Bool("streaming", false, "Start with recognition streaming enabled")
}

// loadMatcher fills the matcher from the store and registers it for HNSW persistence.
func loadMatcher(ctx context.Context, cfg *config.Config, store database.PersonReader) (*facematch.Matcher, error) {
	matcher := facematch.NewMatcher(facematch.Config{
		HNSWMinSize:   cfg.Recognition.HNSWMinSize,
		HNSWIndexPath: cfg.Database.HNSWIndexPath,
	})
	if err := matcher.Load(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to load enrolled persons: %w", err)
	}
	database.RegisterHNSWRebuilder(matcher)
	fmt.Printf("Loaded %d enrolled persons\n", matcher.Len())
	return matcher, nil
}

// newDispatcher builds the email dispatcher. It is not configured when SMTP is disabled.
func newDispatcher(cfg *config.SMTPConfig) (*notify.Dispatcher, error) {
	if !cfg.Configured() {
		return notify.NewDispatcher(nil), nil
	}
	tmpl, err := notify.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}
	return notify.NewDispatcher(notify.NewSMTPMailer(*cfg, tmpl)), nil
}

// resolveServeFlags applies command line overrides on top of the environment.
func resolveServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if index := mustGetInt(cmd, "camera"); index >= 0 {
		cfg.Camera.DefaultIndex = index
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeFlags(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(store)

	ex, err := openExtractor(&cfg.Recognition)
	if err != nil {
		return err
	}
	defer ex.Close()

	matcher, err := loadMatcher(ctx, cfg, store)
	if err != nil {
		return err
	}

	opener, err := openCamera(&cfg.Camera)
	if err != nil {
		return err
	}
	state := camera.NewRunState(cfg.Camera.DefaultIndex)
	state.SetStreaming(mustGetBool(cmd, "streaming"))
	manager := camera.NewManager(opener, state, camera.Config{
		OpenRetries:    cfg.Camera.OpenRetries,
		OpenRetryDelay: cfg.Camera.OpenRetryDelay,
	})
	defer manager.Release()

	dispatcher, err := newDispatcher(&cfg.SMTP)
	if err != nil {
		return err
	}
	if !dispatcher.Configured() {
		fmt.Printf("Email notifications disabled\n")
	}
	outbox := notify.NewOutbox(dispatcher, notify.OutboxConfig{
		Size:           cfg.Attendance.OutboxBufferSize,
		NotifyArrival:  cfg.Attendance.NotifyOnArrival,
		AdminRecipient: cfg.SMTP.Admin,
	})

	sink := events.Multi{outbox}
	if cfg.MQTT.Broker != "" {
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		publisher, err := events.NewMQTTPublisher(connectCtx, events.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		connectCancel()
		if err != nil {
			fmt.Printf("Warning: MQTT publishing disabled: %v\n", err)
		} else {
			defer publisher.Close()
			sink = append(sink, publisher)
			fmt.Printf("Publishing attendance events to %s\n", cfg.MQTT.Broker)
		}
	}

	tracker := attendance.NewTracker(store, sink, attendance.Config{
		LateGrace: cfg.Attendance.LateGrace,
		Location:  cfg.Attendance.Location,
	})
	pipeline := recognition.NewPipeline(ex, matcher, tracker, recognition.Config{
		Threshold:  cfg.Recognition.RecognitionThreshold,
		ChangeBits: cfg.Recognition.FrameChangeBits,
	})

	hub := camera.NewBroadcaster(manager, camera.BroadcastConfig{ReadRetry: cfg.Camera.ReadRetry})
	streamCfg := stream.Config{
		IdlePoll:    cfg.Camera.IdlePoll,
		JPEGQuality: cfg.Camera.JPEGQuality,
	}
	enroller := enrollment.NewService(manager, ex, matcher, store, sink, enrollment.Config{
		DedupThreshold: cfg.Recognition.DedupThreshold,
		MinDetScore:    cfg.Recognition.MinDetScore,
	})

	go outbox.Run(ctx)
	go attendance.NewShiftCloser(tracker, cfg.Attendance.ShiftCloseEvery).Run(ctx)

	server := web.NewServer(cfg, web.Services{
		Store:        store,
		Camera:       manager,
		Dashboard:    stream.New(stream.Dashboard, hub, state, pipeline, streamCfg),
		Registration: stream.New(stream.Registration, hub, state, nil, streamCfg),
		Enroller:     enroller,
		Tracker:      tracker,
		Dispatcher:   dispatcher,
		Reports:      notify.NewReports(store, dispatcher, cfg.Attendance.Location),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
		saveHNSWIndex()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Attendance Kiosk on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-done

	if n := outbox.Dropped(); n > 0 {
		slog.Warn("notifications dropped while the outbox was full", "count", n)
	}
	return nil
}
