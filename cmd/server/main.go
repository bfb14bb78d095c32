package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	oidc "github.com/velia-dev/oidc"
	echoapi "github.com/velia-dev/oidc/api/echo"
	"github.com/velia-dev/oidc/cache"
	redisstore "github.com/velia-dev/oidc/cache/redis"
	"github.com/velia-dev/oidc/config"
	"github.com/velia-dev/oidc/domain"
	"github.com/velia-dev/oidc/internal/metrics"
	"github.com/velia-dev/oidc/mongodb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	keys, err := loadKeys(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load signing key")
	}

	registry, err := loadClientRegistry(cfg.ClientsFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ClientsFile).Msg("failed to load client registry")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codes, refreshTokens, links, cleanup, err := buildStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to initialize stores")
	}
	defer cleanup()

	issuer := oidc.NewTokenIssuer(keys, refreshTokens, cfg.Issuer,
		cfg.AccessTokenLifetime, cfg.RefreshTokenLifetime, cfg.OnboardingTokenLifetime)
	validator := oidc.NewClientValidator(registry)
	rotator := oidc.NewRefreshTokenRotator(refreshTokens, issuer)
	linker := oidc.NewExternalIdentityLinker(newMemoryAccountStore(), links)

	server := oidc.NewAuthorizationServer(validator, codes, issuer, rotator, linker, oidc.Options{
		Issuer:             cfg.Issuer,
		CodeLifetime:       cfg.AuthCodeLifetime,
		AccessTokenTTL:     cfg.AccessTokenLifetime,
		RefreshTokenTTL:    cfg.RefreshTokenLifetime,
		OnboardingTokenTTL: cfg.OnboardingTokenLifetime,
		AllowPlainPKCE:     cfg.AllowPlainPKCE,
	})

	registerer := prometheus.DefaultRegisterer
	metrics.Register(registerer)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	echoapi.NewOAuth2API(server, keys, cfg.Issuer, cfg.AllowPlainPKCE).RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("issuer", cfg.Issuer).Msg("authorization server listening")
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func loadKeys(cfg *config.Config) (*oidc.KeyProvider, error) {
	if cfg.SigningKeyFile == "" {
		log.Warn().Msg("no signing key configured; generating an ephemeral key")
		return oidc.GenerateKeyProvider()
	}
	pemBytes, err := os.ReadFile(cfg.SigningKeyFile)
	if err != nil {
		return nil, err
	}
	return oidc.NewKeyProvider(pemBytes)
}

// buildStores picks the persistence backend. The returned cleanup closes
// whatever the backend opened.
func buildStores(ctx context.Context, cfg *config.Config) (
	domain.AuthorizationCodeStore,
	domain.RefreshTokenStore,
	domain.FederatedIdentityRepository,
	func(),
	error,
) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, nil, err
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close redis client")
			}
		}
		// Federated identity links are long-lived; Redis only serves the
		// expiring token state.
		return redisstore.NewAuthCodeStore(client, cfg.RedisPrefix),
			redisstore.NewRefreshTokenStore(client, cfg.RedisPrefix),
			cache.NewFederatedIdentityStore(),
			cleanup, nil

	case config.BackendMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		db := client.Database(cfg.MongoDBName)

		codes := mongodb.NewAuthCodeRepository(db)
		refreshTokens := mongodb.NewRefreshTokenRepository(db)
		links := mongodb.NewFederatedIdentityRepository(db)
		for _, idx := range []interface {
			EnsureIndexes(context.Context) error
		}{codes, refreshTokens, links} {
			if err := idx.EnsureIndexes(ctx); err != nil {
				_ = client.Disconnect(ctx)
				return nil, nil, nil, nil, err
			}
		}

		cleanup := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("failed to disconnect mongo client")
			}
		}
		return codes, refreshTokens, links, cleanup, nil

	default:
		codes := cache.NewAuthCodeStore()
		refreshTokens := cache.NewRefreshTokenStore(time.Minute)
		cleanup := func() {
			_ = codes.Close()
			_ = refreshTokens.Close()
		}
		return codes, refreshTokens, cache.NewFederatedIdentityStore(), cleanup, nil
	}
}
