package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"bazaar/leadhub/internal/api"
	"bazaar/leadhub/internal/cache"
	"bazaar/leadhub/internal/config"
	"bazaar/leadhub/internal/db"
	"bazaar/leadhub/internal/email"
	"bazaar/leadhub/internal/notify"
	"bazaar/leadhub/internal/payment"
	"bazaar/leadhub/internal/services"
	"bazaar/leadhub/internal/storage"
	"bazaar/leadhub/internal/tasks"
	"bazaar/leadhub/internal/utils"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "leadhub",
		Short: "LeadHub inquiry routing and lead acceptance service",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(indexesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API and/or task workers",
		Long: `Run LeadHub.

Modes:
  api  HTTP API only
  bg   background worker (emails, payment reminders)
  img  KYC document processing worker
  all  everything (default)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch mode {
			case "api", "bg", "img", "all":
			default:
				return fmt.Errorf("invalid mode %q: want api, bg, img or all", mode)
			}
			cfg, err := config.Load(mode)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "all", "run mode: api, bg, img or all")
	return cmd
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("indexes")
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			client, database, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
			if err != nil {
				return err
			}
			defer db.DisconnectDB(client)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := db.EnsureIndexes(ctx, database); err != nil {
				return err
			}
			fmt.Println("Indexes created.")
			return nil
		},
	}
}

func newEmailSender(cfg *config.Config, redisSender email.Sender) email.Sender {
	senders := email.Fanout{}
	if os.Getenv("MOCK_SERVICES") == "true" {
		log.Println("MOCK_SERVICES enabled: emails are captured in Redis")
		senders = append(senders, redisSender)
	} else {
		senders = append(senders, email.NewSender(cfg))
	}
	if path := os.Getenv("LOG_EMAILS"); path != "" {
		mailbox, err := email.NewMailboxSender(path)
		if err != nil {
			log.Printf("WARNING: LOG_EMAILS=%s ignored: %v", path, err)
		} else {
			senders = append(senders, mailbox)
		}
	}
	return senders
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := utils.SetSnowflakeNode(cfg.SnowflakeNode); err != nil {
		return err
	}

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	redisClient, err := cache.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer func() {
		if err := cache.Close(redisClient); err != nil {
			log.Printf("Error disconnecting from Redis: %v", err)
		}
	}()

	settings := services.NewSettingsService(mongoDb, cfg, redisClient)
	if err := settings.Load(ctx); err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	go func() {
		if err := settings.SubscribeToChanges(ctx); err != nil {
			log.Printf("Settings subscription ended: %v", err)
		}
	}()

	s3Storage, err := storage.NewS3Storage(ctx, cfg)
	if err != nil {
		log.Printf("WARNING: S3 storage unavailable, KYC uploads disabled: %v", err)
		s3Storage = nil
	}

	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	enqueuer := tasks.NewEnqueuer(taskClient)

	directory := services.NewDirectoryStore(mongoDb)
	location := services.NewLocationService(cfg)
	defer location.Stop()

	hub := notify.NewHub(cfg.CorsAllowedOrigin)
	defer hub.Close()
	dispatchers := notify.Multi{hub, notify.NewEmailDispatcher(directory, enqueuer)}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaInquiryTopic)
		defer kafka.Close()
		dispatchers = append(dispatchers, kafka)
	}

	gate := services.NewLeadPaymentGate(cfg, settings, payment.NewGateway(cfg))
	inquiries := services.NewInquiryService(
		services.NewInquiryStore(mongoDb),
		services.NewMatcher(directory),
		gate,
		location,
		dispatchers,
		enqueuer,
		cfg.PaymentReminderAfter,
	)
	kyc := services.NewKycService(services.NewKycStore(mongoDb), directory, s3Storage, enqueuer, enqueuer)

	processor := tasks.NewTaskProcessor(cfg,
		newEmailSender(cfg, email.NewRedisSender(redisClient, cfg)),
		services.NewEmailTemplateService(mongoDb),
		s3Storage, kyc, inquiries)

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(redisClient, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
	}()

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	var apiSrv *http.Server
	if cfg.RunMode == "api" || cfg.RunMode == "all" {
		apiSrv = &http.Server{
			Addr: ":" + cfg.ApiPort,
			Handler: api.SetupRouter(cfg, api.Deps{
				Inquiries: inquiries,
				Kyc:       kyc,
				Settings:  settings,
				Gate:      gate,
				Location:  location,
				Directory: directory,
				Events:    hub,
			}),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
		}()
	}

	var workers []*asynq.Server
	isBg := cfg.RunMode == "bg" || cfg.RunMode == "all"
	isImg := cfg.RunMode == "img" || cfg.RunMode == "all"
	if isBg || isImg {
		srv, err := tasks.SetupServer(redisClient, processor, isImg, isBg)
		if err != nil {
			return err
		}
		workers = append(workers, srv)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan:
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}
	if apiSrv != nil {
		if err := apiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}
	for _, w := range workers {
		w.Shutdown()
	}

	wg.Wait()
	fmt.Println("Server gracefully stopped")
	return nil
}
