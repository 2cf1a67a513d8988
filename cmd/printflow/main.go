package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/printflow/printflow/internal/api/handlers"
	"github.com/printflow/printflow/internal/api/middleware"
	"github.com/printflow/printflow/internal/blob"
	"github.com/printflow/printflow/internal/config"
	"github.com/printflow/printflow/internal/core"
	"github.com/printflow/printflow/internal/db"
	"github.com/printflow/printflow/internal/notify"
	"github.com/printflow/printflow/internal/payment"
	"github.com/printflow/printflow/internal/realtime"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[main] could not load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[main] invalid config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("[main] failed to create data directory: %v", err)
	}
	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		log.Fatalf("[main] failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	if err := bootstrapVendor(ctx, cfg.Vendor); err != nil {
		log.Fatalf("[main] failed to bootstrap vendor: %v", err)
	}

	blobStore, err := blob.NewMinioStore(ctx, cfg.Blob)
	if err != nil {
		log.Fatalf("[main] failed to connect to blob storage: %v", err)
	}

	hub := realtime.NewHub(cfg.Queue.SubscriberBuffer)
	defer hub.Close()

	var notifier core.Notifier
	var sender *notify.Sender
	if cfg.Notify.Enabled {
		sender = notify.NewSender(cfg.Notify)
		sender.Start()
		defer sender.Stop()
		notifier = sender
	}

	engine := core.NewEngine(db.GetDB(), hub, notifier, core.EngineOptions{
		RequirePaymentBeforeQueue: cfg.Queue.RequirePaymentBeforeQueue,
	})

	gateway := payment.NewGateway(cfg.Payment)

	auth, err := middleware.NewAuthMiddleware(db.GetDB())
	if err != nil {
		log.Fatalf("[main] failed to initialize auth: %v", err)
	}

	router := buildRouter(cfg, engine, blobStore, gateway, hub, auth)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("[main] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[main] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] forced shutdown: %v", err)
	}
}

func buildRouter(cfg *config.Config, engine *core.Engine, blobStore blob.Store, gateway *payment.Gateway, hub *realtime.Hub, auth *middleware.AuthMiddleware) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	authHandler := handlers.NewAuthHandler(auth)
	authHandler.RegisterRoutes(api)

	events := handlers.NewEventsHandler(hub)
	events.RegisterRoutes(api)

	student := api.Group("/student", auth.RequireAuth(), auth.RequireRole(middleware.RoleStudent))
	studentHandler := handlers.NewStudentHandler(engine, blobStore, cfg.Queue.MaxUploadSizeMB, cfg.Queue.MaxFilesPerBatch)
	studentHandler.RegisterRoutes(student)
	paymentHandler := handlers.NewPaymentHandler(engine, gateway)
	paymentHandler.RegisterRoutes(student)

	vendor := api.Group("/vendor", auth.RequireAuth(), auth.RequireRole(middleware.RoleVendor))
	vendorHandler := handlers.NewVendorHandler(engine, blobStore)
	vendorHandler.RegisterRoutes(vendor)
	adminHandler := handlers.NewAdminHandler()
	adminHandler.RegisterRoutes(vendor)

	return router
}

// bootstrapVendor provisions the configured vendor account on an empty
// database. Vendors cannot self-register.
func bootstrapVendor(ctx context.Context, cfg config.VendorConfig) error {
	count, err := db.Vendors.CountVendors(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if cfg.Email == "" || cfg.Password == "" {
		log.Println("[main] no vendor configured, skipping bootstrap")
		return nil
	}

	if _, err := db.Users.GetUserByEmail(ctx, cfg.Email); err == nil {
		return fmt.Errorf("vendor email %s already belongs to a user", cfg.Email)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := &db.User{
		ID:           uuid.NewString(),
		Name:         cfg.Name,
		Email:        cfg.Email,
		Phone:        cfg.Phone,
		PasswordHash: string(hash),
		Role:         middleware.RoleVendor,
	}
	if err := db.Users.CreateUser(ctx, user); err != nil {
		return err
	}

	vendor := &db.Vendor{
		ID:     uuid.NewString(),
		UserID: user.ID,
		Name:   cfg.Name,
		IsOpen: true,
	}
	if err := db.Vendors.CreateVendor(ctx, vendor); err != nil {
		return err
	}

	log.Printf("[main] bootstrapped vendor %q (%s)", cfg.Name, cfg.Email)
	return nil
}
