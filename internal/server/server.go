package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/farellandr/eventhub/config"
	"github.com/farellandr/eventhub/internal/access"
	"github.com/farellandr/eventhub/internal/auth"
	"github.com/farellandr/eventhub/internal/handlers"
	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/logging"
	"github.com/farellandr/eventhub/internal/middleware"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/notify"
	"github.com/farellandr/eventhub/internal/service"
	"github.com/farellandr/eventhub/internal/store"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired services shared by the HTTP server and the job runner.
type App struct {
	Config        *config.Config
	DB            *gorm.DB
	Users         *service.UserService
	Events        *service.EventService
	Registrations *service.RegistrationService
	Jobs          *service.JobService
	Reminders     *notify.Reminders
}

// Stores groups the persistence ports App is built on.
type Stores struct {
	Users         store.UserStore
	Events        store.EventStore
	Registrations store.RegistrationStore
	Notifications store.NotificationStore
}

func GormStores(db *gorm.DB) Stores {
	return Stores{
		Users:         store.NewUserStore(db),
		Events:        store.NewEventStore(db),
		Registrations: store.NewRegistrationStore(db),
		Notifications: store.NewNotificationStore(db),
	}
}

// Channels builds the delivery channels from configuration. Remote channels
// sit behind a circuit breaker; unconfigured ones only log.
func Channels(cfg config.NotifyConfig) []notify.Channel {
	breaker := notify.BreakerSettings{
		MinRequests:  cfg.BreakerRequests,
		FailureRatio: cfg.BreakerRatio,
		Interval:     cfg.BreakerInterval,
		Timeout:      cfg.BreakerTimeout,
	}

	var email notify.Channel = notify.NewLogChannel(models.ChannelEmail)
	if cfg.MailerSendAPIKey != "" {
		email = notify.NewBreakerChannel(notify.NewEmailChannel(cfg.MailerSendAPIKey, cfg.FromName, cfg.FromEmail), breaker)
	}

	gateway := func(channel models.NotificationChannel, endpoint string) notify.Channel {
		if endpoint == "" {
			return notify.NewLogChannel(channel)
		}
		return notify.NewBreakerChannel(notify.NewGatewayChannel(channel, endpoint, cfg.GatewayClientID, cfg.GatewayToken), breaker)
	}

	return []notify.Channel{
		email,
		gateway(models.ChannelSMS, cfg.SMSGatewayURL),
		gateway(models.ChannelWhatsApp, cfg.WhatsAppURL),
	}
}

// NewApp wires the services over the given stores and channels.
func NewApp(cfg *config.Config, db *gorm.DB, stores Stores, channels []notify.Channel) (*App, error) {
	gate, err := access.NewGate()
	if err != nil {
		return nil, fmt.Errorf("failed to build access gate: %w", err)
	}

	fanout := notify.NewFanout(stores.Notifications, channels,
		notify.WithLocation(cfg.Location()),
		notify.WithDefaultChannel(models.NotificationChannel(cfg.Notify.DefaultChannel)),
	)
	reminders := notify.NewReminders(stores.Events, stores.Registrations, stores.Notifications, fanout)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	return &App{
		Config: cfg,
		DB:     db,
		Users:  service.NewUserService(gate, stores.Users, stores.Notifications, tokens, fanout),
		Events: service.NewEventService(gate, stores.Events, stores.Registrations, stores.Users, fanout, reminders).
			WithFileRemover(helpers.DeleteFile),
		Registrations: service.NewRegistrationService(gate, stores.Events, stores.Registrations, stores.Users, fanout, reminders, cfg.Auth.TicketSecret),
		Jobs:          service.NewJobService(gate, reminders),
		Reminders:     reminders,
	}, nil
}

// Open loads the database and wires the production App.
func Open(cfg *config.Config) (*App, error) {
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return NewApp(cfg, db, GormStores(db), Channels(cfg.Notify))
}

func (a *App) Handler() *handlers.Handler {
	return &handlers.Handler{
		Users:         a.Users,
		Events:        a.Events,
		Registrations: a.Registrations,
		Jobs:          a.Jobs,
		Uploads:       helpers.ImageUploadConfig(a.Config.Uploads.BasePath),
		PendingBatch:  a.Config.Notify.PendingBatchSize,
	}
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(app *App) (*gin.Engine, error) {
	if err := handlers.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.MaxMultipartMemory = 8 << 20

	setupRoutes(r, app)
	return r, nil
}

func setupRoutes(r *gin.Engine, app *App) {
	h := app.Handler()
	loginLimiter := middleware.NewRateLimiter(app.Config.Server.LoginRatePerMinute)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(app.DB))
	r.Static("/uploads", app.Config.Uploads.BasePath)

	public := r.Group("/v1")
	{
		public.POST("/register", h.Register)
		public.POST("/login", loginLimiter.Middleware(), h.Login)
		public.GET("/categories", h.ListCategories)

		eventPublic := public.Group("/events")
		eventPublic.Use(middleware.OptionalAuthMiddleware(app.Users))
		{
			eventPublic.GET("", h.ListEvents)
			eventPublic.GET("/:id", h.GetEvent)
		}
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware(app.Users))
	{
		eventProtected := protected.Group("/events")
		{
			eventProtected.POST("", h.CreateEvent)
			eventProtected.PUT("/:id", h.UpdateEvent)
			eventProtected.PATCH("/:id", h.UpdateEvent)
			eventProtected.DELETE("/:id", h.DeleteEvent)
			eventProtected.POST("/:id/image", h.UploadEventImage)
			eventProtected.GET("/:id/registrations", h.ListEventRegistrations)
			eventProtected.POST("/:id/register", h.RegisterForEvent)
			eventProtected.DELETE("/:id/register", h.CancelEventRegistration)
			eventProtected.POST("/:id/checkin", h.CheckIn)
		}

		registrations := protected.Group("/registrations")
		{
			registrations.DELETE("/:id", h.CancelRegistration)
			registrations.GET("/:id/qr", h.GetTicketQR)
		}

		me := protected.Group("/me")
		{
			me.GET("", h.GetProfile)
			me.GET("/events", h.ListMyEvents)
			me.GET("/registrations", h.ListMyRegistrations)
			me.GET("/notifications", h.ListMyNotifications)
		}

		admin := protected.Group("/admin")
		{
			admin.GET("/events", h.ListAllEvents)
			admin.POST("/events/:id/approve", h.ApproveEvent)
			admin.POST("/events/:id/reject", h.RejectEvent)
			admin.POST("/events/:id/flag", h.FlagEvent)
			admin.POST("/events/:id/unflag", h.UnflagEvent)
			admin.GET("/users", h.ListUsers)
			admin.POST("/users/:id/ban", h.BanUser)
			admin.POST("/users/:id/unban", h.UnbanUser)
			admin.POST("/users/:id/verify", h.VerifyUser)
			admin.POST("/users/:id/unverify", h.UnverifyUser)
		}
	}

	jobs := r.Group("/v1/jobs")
	jobs.Use(middleware.JobAuthMiddleware(app.Config.Auth.JobToken, app.Users))
	{
		jobs.POST("/reminders", h.RunReminders)
		jobs.POST("/notifications/process", h.ProcessPending)
	}
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			logging.Ctx(c.Request.Context()).Error().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, cfg *config.Config) error {
	gin.SetMode(cfg.Server.GinMode)

	app, err := Open(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Uploads.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	r, err := NewRouter(app)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return nil
	}
}
