package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chemsus-backend/config"
	"chemsus-backend/internal/api"
	"chemsus-backend/internal/broker"
	"chemsus-backend/internal/catalog"
	"chemsus-backend/internal/mail"
	"chemsus-backend/internal/order"
	"chemsus-backend/internal/otp"
	"chemsus-backend/internal/payment"
	"chemsus-backend/internal/receipts"
	"chemsus-backend/internal/redisclient"
	"chemsus-backend/internal/store"
	"chemsus-backend/internal/util"
	"chemsus-backend/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting chemsus backend")

	tp, err := util.InitTracer("chemsus-backend", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	var cache catalog.Cache
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		// The catalog cache is optional; the store stays authoritative.
		log.Printf("Redis unavailable, catalog cache disabled: %v", err)
	} else {
		defer redisClient.Close()
		cache = redisClient
		log.Println("Redis connected")
	}

	mailer := mail.NewMailer(cfg.SMTP)
	if mailer == nil {
		if cfg.IsProduction() {
			log.Fatal("SMTP must be configured in production; refusing degraded OTP delivery")
		}
		log.Println("SMTP not configured, OTP delivery will be degraded")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)
	log.Println("Kafka producer initialized")

	receiptStore, err := receipts.NewStore(cfg.Receipts.Dir)
	if err != nil {
		log.Fatalf("Failed to initialize receipt store: %v", err)
	}

	var sender otp.Sender
	if mailer != nil {
		sender = mailer
	}

	resolver := catalog.NewResolver(db, cache)
	otpManager := otp.NewManager(db, sender, cfg.OTP, cfg.IsProduction())
	orderService := order.NewService(db, resolver, eventPublisher)
	paymentService := payment.NewService(db, receiptStore, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var notifyWorker *worker.NotifyWorker
	if mailer != nil && cfg.SMTP.OperatorEmail != "" {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		notifyWorker = worker.NewNotifyWorker(consumer, mailer, cfg.SMTP.OperatorEmail)
		go func() {
			if err := notifyWorker.Start(workerCtx); err != nil {
				log.Printf("Notify worker stopped: %v", err)
			}
		}()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(otpManager, orderService, paymentService, resolver, db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if notifyWorker != nil {
		notifyWorker.Stop()
	}

	log.Println("Server exited")
}
