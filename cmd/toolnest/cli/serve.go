package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toolnest/toolnest/internal/config"
	"github.com/toolnest/toolnest/internal/provider"
	"github.com/toolnest/toolnest/internal/ratelimit"
	"github.com/toolnest/toolnest/internal/server"
	"github.com/toolnest/toolnest/internal/service"
)

const banner = `
 _              _                 _
| |_ ___   ___ | |_ __   ___  ___| |_
| __/ _ \ / _ \| | '_ \ / _ \/ __| __|
| || (_) | (_) | | | | |  __/\__ \ |_
 \__\___/ \___/|_|_| |_|\___||___/\__|
`

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the toolnest API server",
		Long:  "Start the HTTP server that authenticates callers, applies rate limits and forwards AI tool requests to the provider.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, generated JWT secret)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(os.Stderr, cfg.Logging, dev)
	if err != nil {
		return err
	}

	if dev && cfg.Auth.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		cfg.Auth.JWTSecret = secret
		logger.Warn("no auth.jwt_secret configured, using a generated one; tokens will not survive a restart")
	}
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingJWTSecret) {
			return fmt.Errorf("%w (set TOOLNEST_AUTH_JWT_SECRET or run with --dev)", err)
		}
		return err
	}

	gw, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer gw.store.Close()
	logger.Info("credential store initialized", "driver", cfg.Database.Driver, "rate_limit_backend", cfg.RateLimit.Backend)

	if cfg.Provider.APIKey == "" {
		logger.Warn("provider.api_key is empty; AI tool calls will be rejected upstream")
	}

	srvCfg, err := serverConfig(cfg)
	if err != nil {
		return err
	}
	srv := server.New(srvCfg, server.Deps{
		Store:   gw.store,
		Users:   gw.users,
		Keys:    gw.keys,
		Auth:    gw.auth,
		Usage:   gw.recorder,
		Tools:   gw.tools,
		Limiter: gw.limiter,
		Rules:   gw.rules,
		Sweeper: gw.sweeper,
	}, logger)

	fmt.Print(banner)
	fmt.Println()
	fmt.Printf("→ toolnest %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}

func serverConfig(cfg *config.YAMLConfig) (server.Config, error) {
	maxBody, err := cfg.Server.MaxBodyBytes()
	if err != nil {
		return server.Config{}, err
	}
	shutdown, err := cfg.Server.ShutdownDuration()
	if err != nil {
		return server.Config{}, err
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.ShutdownTimeout = shutdown
	srvCfg.MaxBodySize = maxBody
	srvCfg.GlobalRPM = cfg.Server.GlobalRPM
	srvCfg.APIKeyHeader = cfg.Auth.APIKeyHeader
	srvCfg.Version = versionString()
	if len(cfg.Server.CORS.Origins) > 0 {
		srvCfg.CORSOrigins = cfg.Server.CORS.Origins
	}
	if len(cfg.Server.CORS.Methods) > 0 {
		srvCfg.CORSMethods = cfg.Server.CORS.Methods
	}
	return srvCfg, nil
}

// gateway is the set of services shared by serve and mcp.
type gateway struct {
	store    *config.Store
	recorder *service.UsageRecorder
	tokens   *service.TokenIssuer
	users    *service.UserService
	keys     *service.KeyManager
	auth     *service.Authenticator
	tools    *provider.Service
	limiter  *ratelimit.Limiter
	rules    *ratelimit.Rules
	sweeper  ratelimit.Sweeper
}

func newGateway(cfg *config.YAMLConfig, logger *slog.Logger) (*gateway, error) {
	ttl, err := cfg.Auth.TokenTTL()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Provider.RequestTimeout()
	if err != nil {
		return nil, err
	}
	rules, err := ratelimit.ParseRules(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	gw := &gateway{store: store, rules: rules}
	gw.recorder = service.NewUsageRecorder(store, logger, service.UsageRecorderConfig{
		BufferSize:  cfg.Usage.BufferSize,
		RecentLimit: cfg.Usage.RecentLimit,
	})
	gw.tokens = service.NewTokenIssuer(cfg.Auth.JWTSecret, ttl, service.WithIssuer(cfg.Auth.Issuer))
	gw.users = service.NewUserService(store, gw.tokens, 0)
	gw.keys = service.NewKeyManager(store, gw.recorder, logger)
	gw.auth = service.NewAuthenticator(gw.tokens, gw.keys)

	client := provider.NewClient(provider.Config{
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		Timeout:    timeout,
		MaxRetries: cfg.Provider.MaxRetries,
	}, logger)
	gw.tools = provider.NewService(client, cfg.Provider.TextModel, cfg.Provider.VisionModel)

	switch cfg.RateLimit.Backend {
	case "database":
		counters := ratelimit.NewSQLStore(store, rules.MaxWindow())
		gw.limiter = ratelimit.New(counters)
		gw.sweeper = counters
	default:
		counters := ratelimit.NewMemoryStore()
		gw.limiter = ratelimit.New(counters)
		gw.sweeper = counters
	}
	return gw, nil
}

// close drains background work and closes the store. serve leaves the
// draining to server.Run and only closes the store.
func (gw *gateway) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	gw.keys.Wait()
	gw.recorder.Close(ctx)
	gw.store.Close()
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
