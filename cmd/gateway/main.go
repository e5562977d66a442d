package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"leakwatch/internal/alerting"
	"leakwatch/internal/anomaly"
	"leakwatch/internal/api"
	"leakwatch/internal/archive"
	"leakwatch/internal/auth"
	"leakwatch/internal/config"
	"leakwatch/internal/data"
	"leakwatch/internal/history"
	"leakwatch/internal/monitor"
	"leakwatch/internal/notify"
	"leakwatch/internal/rtdb"
	"leakwatch/internal/websocket"
)

func main() {
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	hashPassword := flag.String("hash-password", "", "Print the bcrypt hash of a password for auth.users and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("Error hashing password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("Error opening store: %v", err)
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	hist := history.NewStore(cfg.History.Capacity)
	alerts := history.NewAlertLog(0)

	am := auth.NewAuthManager(cfg.Auth)
	session := auth.NewSession(am, cfg.Auth.ServiceUser, cfg.Auth.ServicePass)
	if err := session.SignIn(); err != nil {
		log.Printf("[auth] service sign-in failed, alerts will not be written: %v", err)
	}
	go session.KeepAlive(ctx)

	repo := archive.New(cfg.Influx)
	notifier := notify.New(cfg.Alerting.Notifier, hub)
	alerter := alerting.NewAlerter(store, hub)

	mon := monitor.New(monitor.Deps{
		Store:      store,
		Classifier: anomaly.NewClassifier(&cfg.Anomaly),
		Tracker:    alerting.NewTracker(cfg.Alerting.Cooldown),
		Alerter:    alerter,
		History:    hist,
		Hub:        hub,
		Gate:       session,
		Archive:    repo,
	})
	if err := mon.Attach(ctx, cfg.Alerting.Rooms); err != nil {
		log.Fatalf("Error attaching monitor: %v", err)
	}
	if _, err := alerting.NewNotifier(store, notifier, alerts).Watch(ctx, cfg.Alerting.Rooms); err != nil {
		log.Fatalf("Error watching alerts: %v", err)
	}

	apiHandler := api.NewAPIHandler(ctx, api.Deps{
		Config:   cfg,
		Store:    store,
		Auth:     am,
		Session:  session,
		Hub:      hub,
		Monitor:  mon,
		History:  hist,
		Alerts:   alerts,
		Alerter:  alerter,
		Notifier: notifier,
		Archive:  repo,
	})

	dataServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.DataPort),
		Handler:           api.SetupDataRouter(apiHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	uiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.UIPort),
		Handler:           api.SetupUIRouter(apiHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting Data Ingestion Server on port %d", cfg.Server.DataPort)
		if err := dataServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Data Server ListenAndServe error: %v", err)
		}
	}()
	go func() {
		log.Printf("Starting Dashboard & WebSocket Server on port %d", cfg.Server.UIPort)
		if err := uiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("UI Server ListenAndServe error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dataServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Data Server shutdown: %v", err)
	}
	if err := uiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("UI Server shutdown: %v", err)
	}

	mon.Detach()
	session.SignOut()
	if err := store.Close(); err != nil {
		log.Printf("[rtdb] close: %v", err)
	}
	repo.Close()

	log.Println("Servers gracefully stopped.")
}

func openStore(c config.StoreConfig) (rtdb.Store, error) {
	switch c.Backend {
	case "mqtt":
		return rtdb.NewMQTTStore(rtdb.MQTTOptions{
			BrokerURL: c.Broker,
			ClientID:  c.ClientID,
			QoS:       c.QoS,
			Transient: []string{data.ReadingsSegment},
		})
	default:
		log.Println("[rtdb] using in-memory store")
		return rtdb.NewMemoryStore(), nil
	}
}
