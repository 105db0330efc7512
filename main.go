package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/config"
	"github.com/silsilat/tokenization-backend/handlers"
	"github.com/silsilat/tokenization-backend/ipfs"
	"github.com/silsilat/tokenization-backend/ledger"
	"github.com/silsilat/tokenization-backend/queue"
	"github.com/silsilat/tokenization-backend/realtime"
	"github.com/silsilat/tokenization-backend/reconciler"
	"github.com/silsilat/tokenization-backend/services"
	"github.com/silsilat/tokenization-backend/storage"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("loading configuration", zap.Error(err))
	}

	db, err := storage.NewDB(cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Fatal("connecting to database and applying migrations", zap.Error(err))
	}
	defer db.Close()

	ledgerClient, err := ledger.NewHederaClient(cfg.LedgerNetwork, cfg.OperatorID, cfg.OperatorKey, cfg.MirrorNodeURL, log)
	if err != nil {
		log.Fatal("initializing ledger client", zap.Error(err))
	}

	hub := realtime.NewHub(log)

	mintEngine := services.NewMintEngine(ledgerClient, log)
	evaluator := services.NewGoldEvaluator(
		services.StaticPriceSource{Price: decimal.NewFromFloat(cfg.GoldPricePerGram)},
		cfg.GoldPriceCurrency,
	)
	publisher := ipfs.NewPinataClient(cfg.PinataBaseURL, cfg.PinataJWT, log)
	recon := services.NewReconciler(ledgerClient, log)

	issuanceService := services.NewIssuanceService(db, ledgerClient, mintEngine, evaluator, publisher, recon,
		services.IssuanceConfig{
			FungibleTokenID: cfg.FungibleTokenID,
			AdminAccountID:  cfg.AdminAccountID,
			MasterKey:       cfg.EncryptionMasterKey,
		}, log)
	purchaseService := services.NewPurchaseService(db, ledgerClient, recon,
		services.PurchaseConfig{
			FungibleTokenID: cfg.FungibleTokenID,
			MasterKey:       cfg.EncryptionMasterKey,
		}, log)
	repaymentService := services.NewRepaymentService(db, ledgerClient, recon,
		services.RepaymentConfig{
			FungibleTokenID: cfg.FungibleTokenID,
			MasterKey:       cfg.EncryptionMasterKey,
		}, log)

	queueClient := queue.NewClient(cfg.RedisAddr)
	defer queueClient.Close()

	worker := queue.NewWorker(cfg.RedisAddr, issuanceService, purchaseService, repaymentService, hub, log)
	go func() {
		if err := worker.Run(); err != nil {
			log.Fatal("queue worker stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sync := reconciler.New(db, recon, cfg.FungibleTokenID, cfg.ReconcileInterval, log)
	go sync.Run(ctx)

	sagHandler := handlers.NewSagHandler(queueClient, db)
	purchaseHandler := handlers.NewPurchaseHandler(queueClient)
	repaymentHandler := handlers.NewRepaymentHandler(queueClient, db)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.URLFormat)

	r.Route("/sags", func(r chi.Router) {
		r.Post("/", sagHandler.Create)
		r.Get("/{id}", sagHandler.Get)
	})
	r.Route("/purchases", func(r chi.Router) {
		r.Post("/", purchaseHandler.Create)
	})
	r.Route("/repayments", func(r chi.Router) {
		r.Post("/", repaymentHandler.Create)
	})
	r.Get("/ws", hub.ServeWS)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		<-ctx.Done()
		worker.Shutdown()
		srv.Shutdown(context.Background())
	}()

	log.Info("backend listening", zap.String("addr", cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("http server", zap.Error(err))
	}
}
