package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"

	"github.com/mytad/game-auth/pkg/admin"
	adminapi "github.com/mytad/game-auth/pkg/admin/api"
	"github.com/mytad/game-auth/pkg/audit"
	"github.com/mytad/game-auth/pkg/bootstrap"
	"github.com/mytad/game-auth/pkg/cache"
	"github.com/mytad/game-auth/pkg/client"
	"github.com/mytad/game-auth/pkg/config"
	"github.com/mytad/game-auth/pkg/credential"
	"github.com/mytad/game-auth/pkg/device"
	"github.com/mytad/game-auth/pkg/lockout"
	"github.com/mytad/game-auth/pkg/loginflow"
	loginapi "github.com/mytad/game-auth/pkg/loginflow/api"
	"github.com/mytad/game-auth/pkg/notification"
	"github.com/mytad/game-auth/pkg/passwordreset"
	passwordresetapi "github.com/mytad/game-auth/pkg/passwordreset/api"
	"github.com/mytad/game-auth/pkg/ratelimit"
	"github.com/mytad/game-auth/pkg/sessions"
	sessionsapi "github.com/mytad/game-auth/pkg/sessions/api"
	"github.com/mytad/game-auth/pkg/signup"
	"github.com/mytad/game-auth/pkg/twofa"
	twofaapi "github.com/mytad/game-auth/pkg/twofa/api"
	"github.com/mytad/game-auth/pkg/user"
)

type Config struct {
	AppConfig       app.AppConfig
	DatabaseConfig  config.DatabaseConfig
	RedisConfig     config.RedisConfig
	EmailConfig     config.EmailConfig
	SecurityConfig  config.SecurityConfig
	CookieConfig    config.CookieConfig
	RateLimitConfig config.RateLimitConfig

	RegistrationEnabled bool   `env:"REGISTRATION_ENABLED" env-default:"true"`
	SecretFile          string `env:"CHALLENGE_SECRET_FILE" env-default:"challenge-secret"`
}

func loadEnvFile() {
	envFile := ".env"
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(candidate); err == nil {
			envFile = candidate
		}
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Info("No .env file found, using environment", "path", envFile)
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		slog.Error("Failed to load .env file", "error", err, "path", envFile)
		return
	}
	slog.Info("Configuration loaded from .env file", "path", envFile)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	loadEnvFile()

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(-1)
	}
	if err := cfg.SecurityConfig.Validate(); err != nil {
		slog.Error("Invalid security configuration", "err", err)
		os.Exit(-1)
	}
	durations, err := cfg.SecurityConfig.ParseDurations()
	if err != nil {
		slog.Error("Invalid security configuration", "err", err)
		os.Exit(-1)
	}
	trustedProxies, err := config.ParseCIDRList(cfg.SecurityConfig.TrustedProxies)
	if err != nil {
		slog.Error("Invalid TRUSTED_PROXIES", "err", err)
		os.Exit(-1)
	}
	proxies := device.NewProxyResolver(trustedProxies)
	if len(trustedProxies) == 0 {
		slog.Warn("TRUSTED_PROXIES not set, client IPs come from the socket address only")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseConfig.ToDatabaseURL())
	if err != nil {
		slog.Error("Failed creating dbpool", "db", cfg.DatabaseConfig.Database, "host", cfg.DatabaseConfig.Host,
			"port", cfg.DatabaseConfig.Port, "user", cfg.DatabaseConfig.User, "schema", cfg.DatabaseConfig.Schema)
		os.Exit(-1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled() {
		redisClient, err = cache.Connect(ctx, cfg.RedisConfig.URL)
		if err != nil {
			slog.Error("Failed to connect to redis", "err", err)
			os.Exit(-1)
		}
		defer redisClient.Close()
		slog.Info("Redis connected, using shared 2FA and attempt stores")
	} else {
		slog.Warn("REDIS_URL not set, using in-process stores (single instance only)")
	}

	secret, err := bootstrap.EnsureSigningSecret(bootstrap.SigningSecretConfig{
		Secret: cfg.SecurityConfig.ChallengeSecret,
		File:   cfg.SecretFile,
	})
	if err != nil {
		slog.Error("Failed to resolve challenge signing secret", "err", err)
		os.Exit(-1)
	}
	bootstrap.PrintSigningSecretResult(secret)

	// Repositories
	userRepo := user.NewPostgresRepository(pool)
	auditLogger := audit.NewLogger(audit.NewPostgresRepository(pool))
	sessionManager := sessions.NewManager(sessions.NewPostgresRepository(pool))
	deviceGuard := device.NewGuard(device.NewPostgresBanRepository(pool), device.NewPostgresExclusionRepository(pool))
	adminRepo := admin.NewPostgresRepository(pool)
	hasher := credential.NewBcryptHasher(cfg.SecurityConfig.BcryptCost)

	lockoutGuard := lockout.NewGuard(userRepo, lockout.Policy{
		Threshold: cfg.SecurityConfig.LockoutThreshold,
		Duration:  durations.Lockout,
	})

	attemptLog := ratelimit.NewPostgresAttemptRepository(pool)
	var attemptOpts []ratelimit.Option
	var resetRequests ratelimit.AttemptRepository = ratelimit.NewInMemoryAttemptRepository()
	var twofaStore twofa.Store = twofa.NewInMemoryStore()
	if redisClient != nil {
		attemptOpts = append(attemptOpts, ratelimit.WithWindowStore(ratelimit.NewRedisWindowStore(redisClient, durations.RateWindow)))
		resetRequests = ratelimit.NewRedisWindowStore(redisClient, passwordreset.DefaultWindow).WithName("password_resets")
		twofaStore = twofa.NewRedisStore(redisClient)
	}
	attemptLimiter := ratelimit.NewAttemptLimiter(attemptLog, attemptOpts...)

	var notifyOpts []notification.NotificationManagerOption
	if cfg.EmailConfig.Enabled {
		notifyOpts = append(notifyOpts, notification.WithSMTP(cfg.EmailConfig.ToSMTPConfig()))
	}
	notifyOpts = append(notifyOpts,
		notification.WithFrontendURL(cfg.SecurityConfig.FrontendURL),
		notification.WithDefaultTemplates(),
	)
	notificationManager, err := notification.NewNotificationManager(notifyOpts...)
	if err != nil {
		slog.Error("Failed to initialize notification manager", "err", err)
		os.Exit(-1)
	}

	// Services
	twofaService := twofa.NewService(
		userRepo,
		twofa.NewPostgresBackupCodeRepository(pool),
		twofaStore,
		hasher,
		twofa.NewChallengeSigner(string(secret.Secret)),
		auditLogger,
		twofa.Options{
			Issuer:       cfg.SecurityConfig.TotpIssuer,
			ChallengeTTL: durations.Challenge,
		},
	)

	deps := loginflow.ServiceDependencies{
		Users:     userRepo,
		Devices:   deviceGuard,
		Attempts:  attemptLimiter,
		Lockout:   lockoutGuard,
		Hasher:    hasher,
		TwoFactor: twofaService,
		Sessions:  sessionManager,
		Audit:     auditLogger,
		Policy: loginflow.Policy{
			MaxAttempts:   cfg.SecurityConfig.RateLimitAttempts,
			AttemptWindow: durations.RateWindow,
			SessionTTL:    durations.Session,
			RememberTTL:   durations.RememberMe,
		},
	}
	if cfg.SecurityConfig.LoginNotifyNewIP {
		deps.Alerts = notificationManager
	}
	loginService := loginflow.NewService(deps)

	adminService := admin.NewService(admin.ServiceParams{
		Admins:       adminRepo,
		Users:        userRepo,
		Lockout:      lockoutGuard,
		Sessions:     sessionManager,
		Devices:      deviceGuard,
		Hasher:       hasher,
		Audit:        auditLogger,
		LockDuration: durations.AdminLock,
	})

	signupService := signup.NewSignupService(userRepo,
		signup.WithPasswordHasher(hasher),
		signup.WithDeviceGuard(deviceGuard),
		signup.WithSessionManager(sessionManager, durations.Session),
		signup.WithAuditLogger(auditLogger),
		signup.WithRegistrationEnabled(cfg.RegistrationEnabled),
		signup.WithReservedUsernames(cfg.SecurityConfig.OwnerUsername),
	)

	resetService := passwordreset.NewService(
		passwordreset.NewPostgresRepository(pool),
		userRepo,
		hasher,
		sessionManager,
		notificationManager,
		resetRequests,
		auditLogger,
		passwordreset.Options{
			TokenTTL:    durations.PasswordReset,
			MaxRequests: cfg.SecurityConfig.PasswordResetPerIP,
		},
	)

	ownerResult, err := bootstrap.SeedOwner(ctx, bootstrap.OwnerSeedConfig{
		Username: cfg.SecurityConfig.OwnerUsername,
		Email:    cfg.SecurityConfig.OwnerEmail,
		Users:    userRepo,
		Admin:    adminService,
		Hasher:   hasher,
	})
	if err != nil {
		slog.Error("Failed to seed owner", "err", err)
		os.Exit(-1)
	}
	bootstrap.PrintOwnerSeedResult(ownerResult)
	bootstrap.LogBootstrapSummary(ownerResult, secret)

	// Handlers
	cookieOpts := client.CookieOptions{Secure: cfg.CookieConfig.Secure, Domain: cfg.CookieConfig.Domain}
	markerOpts := device.MarkerOptions{
		Secure:        cfg.CookieConfig.Secure,
		Domain:        cfg.CookieConfig.Domain,
		PermanentDays: cfg.SecurityConfig.DeviceBanCookieDays,
	}

	loginHandle := loginapi.NewHandle(loginService,
		loginapi.WithCookieOptions(cookieOpts),
		loginapi.WithMarkerOptions(markerOpts),
	)
	signupHandle := signup.NewHandle(signupService,
		signup.WithCookieOptions(cookieOpts),
		signup.WithMarkerOptions(markerOpts),
	)
	resetHandle := passwordresetapi.NewHandle(resetService)
	sessionsHandler := sessionsapi.NewHandler(sessionManager)
	twofaHandle := twofaapi.NewHandle(twofaService)
	adminHandle := adminapi.NewHandle(adminService)

	throttle := ratelimit.NewThrottle(cfg.RateLimitConfig, device.ClientIP).
		LimitEndpoint("POST", "/api/auth/login", cfg.RateLimitConfig.LoginCapacity, cfg.RateLimitConfig.LoginRefillRate).
		LimitEndpoint("POST", "/api/auth/register", cfg.RateLimitConfig.LoginCapacity, cfg.RateLimitConfig.LoginRefillRate)
	throttleCtx, stopThrottle := context.WithCancel(ctx)
	defer stopThrottle()
	throttle.Run(throttleCtx)

	server := app.DefaultApp()
	app.RegisterHealthzRoutes(server.R)

	server.R.Use(proxies.Middleware)
	server.R.Use(throttle.Handler)
	server.R.Use(audit.Middleware(device.ClientIP))
	server.R.Use(client.Authenticator(sessionManager, userRepo, cfg.CookieConfig.SessionCookieName))

	server.R.Route("/api/auth", func(r chi.Router) {
		loginHandle.Routes(r)
		signupHandle.Routes(r)
		r.Route("/password", resetHandle.Routes)
	})

	server.R.Route("/api/sessions", func(r chi.Router) {
		r.Use(client.RequireAuth)
		sessionsHandler.RegisterRoutes(r)
	})

	server.R.Route("/api/2fa", func(r chi.Router) {
		r.Use(client.RequireAuth)
		twofaHandle.Routes(r)
	})

	server.R.Route("/api/admin", adminHandle.Routes)

	slog.Info("Game auth server configured",
		"registration", cfg.RegistrationEnabled,
		"redis", redisClient != nil,
		"email", cfg.EmailConfig.Enabled,
	)
	server.Run()
}
