package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/ncastellanos/vecino/internal/activation"
	"github.com/ncastellanos/vecino/internal/alerting"
	"github.com/ncastellanos/vecino/internal/app"
	"github.com/ncastellanos/vecino/internal/realtime"
	"github.com/ncastellanos/vecino/internal/transport"
	"github.com/ncastellanos/vecino/pkg/logger"
)

// The panel agent drives the panic button pipeline from a terminal: "tap",
// "press" and "release" lines simulate the physical button, and the
// double-tap-then-hold gesture runs exactly as it would on an installed panel.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("vecino-panel", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var (
		configPath string
		lat        float64
		lng        float64
		hasCoords  bool
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration directory")
	fs.Float64Var(&lat, "lat", 0, "Panel latitude")
	fs.Float64Var(&lng, "lng", 0, "Panel longitude")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "lat" || f.Name == "lng" {
			hasCoords = true
		}
	})

	var cfg *app.Config
	var err error
	if configPath != "" {
		cfg, err = app.LoadConfig(configPath)
	} else {
		cfg, err = app.LoadConfig()
	}
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync()
	log := logger.WithModule("panel")

	if strings.TrimSpace(cfg.Panel.AccessToken) == "" {
		return errors.New("panel.access_token must be configured")
	}

	apiClient, err := transport.NewAPIClient(cfg.Panel.ServerURL, cfg.Panel.AccessToken)
	if err != nil {
		return err
	}

	identity, err := apiClient.Me(ctx)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}
	log.Info("panel identity resolved",
		zap.String("user_id", identity.ID),
		zap.String("name", identity.Name))

	settings, err := apiClient.Settings(ctx)
	if err != nil {
		// Server-side settings are an enhancement; local config still works.
		log.Warn("panic settings unavailable, using local configuration", zap.Error(err))
		settings = transport.PanicSettings{
			EmergencyContacts:    cfg.Panic.EmergencyContacts,
			NotifyAll:            cfg.Panic.NotifyAll,
			ExtremeModeEnabled:   cfg.Panic.ExtremeModeEnabled,
			AutoRecordVideo:      cfg.Panic.AutoRecordVideo,
			ShareGPSLocation:     cfg.Panic.ShareGPSLocation,
			AlertDurationMinutes: cfg.Panic.AlertDurationMinutes,
		}
	}

	wsClient, err := transport.NewClient(transport.ClientConfig{
		ServerURL:   cfg.Panel.ServerURL,
		AccessToken: cfg.Panel.AccessToken,
		OnIncoming: func(event realtime.Event) {
			fmt.Printf("\n*** INCOMING ALERT: %v\n> ", event.Data)
		},
		OnConnect: func() {
			log.Info("realtime session established")
		},
	})
	if err != nil {
		return err
	}
	go wsClient.Run(ctx)
	defer wsClient.Close()

	dispatcher, err := alerting.NewDispatcher(wsClient, apiClient, cfg.Panic.SubmitTimeout)
	if err != nil {
		return err
	}

	var provider activation.LocationProvider
	if hasCoords {
		provider = activation.StaticProvider{Position: activation.Coordinates{Latitude: lat, Longitude: lng}}
	}
	locResolver := activation.NewLocationResolver(provider, cfg.Panic.LocationTimeout)
	capture := activation.NewCaptureSession(activation.NullRecorder{})

	session, err := activation.NewSession(activation.Profile{
		UserID:          identity.ID,
		Name:            identity.Name,
		Email:           identity.Email,
		Location:        cfg.Panel.Location,
		Message:         settings.CustomMessage,
		NotifyAll:       settings.NotifyAll,
		Contacts:        settings.EmergencyContacts,
		DurationMinutes: settings.AlertDurationMinutes,
		ExtremeMode:     settings.ExtremeModeEnabled,
		AutoRecordVideo: settings.AutoRecordVideo,
		ShareGPS:        settings.ShareGPSLocation,
		ActivatedFrom:   cfg.Panel.ActivatedFrom,
	}, alerting.NewResolver(apiClient), dispatcher, locResolver, capture)
	if err != nil {
		return err
	}

	gesture := activation.NewGestureActivator(activation.GestureConfig{
		ClickWindow:  cfg.Panic.ClickWindow,
		HoldDuration: cfg.Panic.HoldTime,
		OnHoldStart: func() {
			if session.BeginCapture(context.Background()) {
				fmt.Println("recording")
			}
		},
		OnProgress: func(fraction float64) {
			fmt.Printf("\rholding... %3.0f%%", fraction*100)
		},
		OnActivate: func() {
			fmt.Println("\nACTIVATED")
			result, err := session.Trigger(context.Background())
			if err != nil {
				fmt.Printf("dispatch failed: %v\n> ", err)
				return
			}
			status := "delivered"
			if result.Degraded {
				status = "stored only (realtime unavailable)"
			}
			fmt.Printf("alert %s: %s, %d notified, %d offline\n> ",
				result.AlertID, status, result.Notified, result.Offline)
		},
		OnCancel: func() {
			session.EndCapture(context.Background())
			fmt.Println("\ncancelled")
		},
	})

	fmt.Println("commands: tap | press | release | ack <alert-id> | resolve <alert-id> | quit")
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			session.EndCapture(context.Background())
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(strings.ToLower(strings.TrimSpace(line)))
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "tap":
				gesture.Tap()
			case "press":
				gesture.Press()
			case "release":
				gesture.Release()
			case "ack":
				if len(fields) < 2 {
					fmt.Println("usage: ack <alert-id>")
					continue
				}
				if err := wsClient.Acknowledge(fields[1]); err != nil {
					// Durable fallback when the socket is down.
					if apiErr := apiClient.AcknowledgeAlert(ctx, fields[1]); apiErr != nil {
						fmt.Printf("ack failed: %v\n", apiErr)
					}
				}
			case "resolve":
				if len(fields) < 2 {
					fmt.Println("usage: resolve <alert-id>")
					continue
				}
				session.EndCapture(ctx)
				if err := wsClient.Resolve(fields[1]); err != nil {
					if apiErr := apiClient.ResolveAlert(ctx, fields[1]); apiErr != nil {
						fmt.Printf("resolve failed: %v\n", apiErr)
					}
				}
				gesture.Reset()
			case "quit", "exit":
				session.EndCapture(context.Background())
				return nil
			default:
				fmt.Println("unknown command")
			}
		}
	}
}
