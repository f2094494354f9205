package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"remnashop/config"
	"remnashop/internal/admin"
	"remnashop/internal/bot"
	"remnashop/internal/db"
	"remnashop/internal/gateways"
	"remnashop/internal/logger"
	"remnashop/internal/metrics"
	"remnashop/internal/remnawave"
	"remnashop/internal/server"
	"remnashop/internal/services"
	"remnashop/internal/tasks"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}
	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("connect database", zap.Error(err))
	}
	if err := db.Migrate(conn); err != nil {
		zlog.Fatal("migrate database", zap.Error(err))
	}

	users := db.NewUserRepo(conn)
	subs := db.NewSubscriptionRepo(conn)
	plans := db.NewPlanRepo(conn)
	promos := db.NewPromocodeRepo(conn)
	txs := db.NewTransactionRepo(conn)
	gws := db.NewGatewayRepo(conn)
	webhookLogs := db.NewWebhookLogRepo(conn)
	if err := gws.Seed(ctx); err != nil {
		zlog.Fatal("seed payment gateways", zap.Error(err))
	}

	redisOpts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		zlog.Fatal("parse redis url", zap.Error(err))
	}
	rdb := goredis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Fatal("connect redis", zap.Error(err))
	}

	botapi, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		zlog.Fatal("create bot", zap.Error(err))
	}
	notifier := logger.NewNotifier(botapi, cfg.AdminTelegramID, zlog)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	panel := services.NewRemnawaveService(remnawave.NewClient(cfg.RemnawaveURL, cfg.RemnawaveToken, httpClient, zlog))
	queue := tasks.NewQueue(rdb, cfg.TaskQueue)

	factory := func(gw *db.PaymentGateway) (gateways.Gateway, error) {
		return gateways.New(gw, gateways.Options{
			HTTPClient:  httpClient,
			BotUsername: cfg.BotUsername,
			Bot:         botapi,
			Log:         zlog,
		})
	}
	payments := services.NewPaymentService(gws, plans, txs, queue, factory, zlog)
	promocodes := services.NewPromocodeService(promos, users, subs, panel, zlog, m)
	transactions := services.NewTransactionService(txs, users, subs, panel, notifier, zlog, m)
	webhooks := services.NewWebhookService(webhookLogs, payments, queue, notifier, zlog, m)

	worker := tasks.NewWorker(queue, zlog, m, notifier)
	worker.Register(services.TaskProcessTransaction, transactions.HandleTask)
	go worker.Run(ctx)

	jobs := services.NewJobs(subs, notifier, zlog, m)
	c := cron.New()
	if err := jobs.Schedule(ctx, c); err != nil {
		zlog.Fatal("schedule jobs", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	srv := server.New(cfg.HTTPAddr, server.Dependencies{
		WebhookHandler: webhooks.Handler(),
		Gatherer:       reg,
		Logger:         zlog,
	})
	go func() {
		zlog.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.Start(); err != nil {
			zlog.Error("http server", zap.Error(err))
			stop()
		}
	}()
	defer func() {
		if err := srv.Stop(); err != nil {
			zlog.Warn("http server shutdown", zap.Error(err))
		}
	}()
	srv.SetReady(true)

	adminHandler := admin.NewHandler(cfg.AdminTelegramID, admin.Dependencies{
		Promocodes:   promocodes,
		Plans:        plans,
		Gateways:     gws,
		WebhookLogs:  webhookLogs,
		Users:        users,
		Subs:         subs,
		Transactions: txs,
		Logger:       zlog,
	})
	b := bot.New(botapi, bot.Dependencies{
		Users:      services.NewUserService(users, zlog),
		Promocodes: promocodes,
		Payments:   payments,
		Plans:      plans,
		Subs:       subs,
		Admin:      adminHandler,
		PromoGuard: bot.NewPromoGuard(rdb),
		Notifier:   notifier,
		Logger:     zlog,
	})
	bot.Run(ctx, botapi, b)
	zlog.Info("shutting down")
}
