package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-courier/internal/approval"
	"doc-courier/internal/bot"
	"doc-courier/internal/cache"
	"doc-courier/internal/config"
	"doc-courier/internal/handlers"
	"doc-courier/internal/httpserver"
	"doc-courier/internal/ledger"
	"doc-courier/internal/logging"
	"doc-courier/internal/notify"
	"doc-courier/internal/orders"
	"doc-courier/internal/pricing"
	"doc-courier/internal/store"
)

func main() {
	log := logging.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_MODE"))

	var cfg config.Config
	if err := cfg.ParseFlags(); err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBDsn)
	if err != nil {
		log.Error("failed to open the database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifier notify.Notifier = notify.Nop{}
	var botAPI *tgbotapi.BotAPI
	if cfg.BotToken != "" {
		tg, err := notify.NewTelegram(cfg.BotToken, log)
		if err != nil {
			log.Error("telegram setup failed, continuing without notifications", "error", err)
		} else {
			notifier = tg
			botAPI, err = tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint,
				&http.Client{Timeout: 65 * time.Second})
			if err != nil {
				log.Error("telegram bot setup failed", "error", err)
			}
		}
	}

	calc := pricing.NewCalculator(pricing.DefaultRates(), nil)
	engine := orders.NewEngine(db, calc, notifier, log, cfg.ActiveOrderCap)
	bank := ledger.New(db, log)
	gate := approval.NewGate(db, log)
	states := cache.New(30 * time.Minute)

	h := &handlers.Server{
		Accounts:  db,
		Engine:    engine,
		Ledger:    bank,
		Gate:      gate,
		Links:     states,
		JWTSecret: cfg.JWTSecret,
		Log:       log,
	}

	server := httpserver.New(cfg, h, log)
	server.Start()

	if botAPI != nil {
		courierBot := bot.New(botAPI, db, engine, states, log)
		go courierBot.Run(ctx)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	sweep := time.NewTicker(5 * time.Minute)
	defer sweep.Stop()

	for {
		select {
		case <-stop:
			log.Info("shutting down")
			cancel()
			if err := server.Shutdown(context.Background()); err != nil {
				os.Exit(1)
			}
			return
		case now := <-sweep.C:
			if n := states.Sweep(now); n > 0 {
				log.Debug("cache sweep", "evicted", n)
			}
		}
	}
}
