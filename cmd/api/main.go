package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"listify/internal/cache"
	"listify/internal/http/handlers"
	httpapi "listify/internal/http/httpapi"
	"listify/internal/imageedit"
	"listify/internal/infra"
	"listify/internal/metrics"
	"listify/internal/middleware"
	"listify/internal/providers/genai"
	"listify/internal/providers/mock"
	"listify/internal/providers/openai"
	"listify/internal/providers/prompt"
	"listify/internal/ratelimit"
	"listify/internal/retry"
	"listify/internal/textgen"
	"listify/internal/workflow"
)

const proxyTokenTTL = 24 * time.Hour

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx := context.Background()
	store, closeStore, err := buildCache(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.CacheBackend).Msg("failed to build content cache")
	}
	defer closeStore()

	limiter := ratelimit.New(cfg.ProviderMinInterval, cfg.ProviderBurst)

	var (
		generator imageedit.Generator
		enhancer  prompt.Enhancer
		chat      *openai.Client
		completer workflow.Completer
	)
	if cfg.MockMode {
		logger.Warn().Msg("MOCK_MODE enabled; providers return canned output")
		generator = mock.NewImageGenerator()
		enhancer = prompt.NewStaticEnhancer()
		completer = mock.NewCompleter()
	} else {
		imageClient, err := genai.NewClient(genai.Options{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiImageModel,
			Timeout: cfg.ImageTimeout,
			Limiter: limiter,
			Logger:  &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build gemini image client")
		}
		generator = imageClient

		if cfg.TextAPIKey != "" {
			chat, err = openai.NewClient(openai.Options{
				APIKey:    cfg.TextAPIKey,
				BaseURL:   cfg.TextBaseURL,
				Model:     cfg.TextModel,
				MaxTokens: cfg.TextMaxTokens,
				Timeout:   cfg.TextTimeout,
				Limiter:   limiter,
				Logger:    &logger,
			})
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to build text client")
			}
		}
		enhancer = buildEnhancer(cfg, chat, limiter, &logger)
	}

	imagePolicy := policyFrom(cfg, cfg.ImageMaxRetries)
	fallbackPolicy := policyFrom(cfg, cfg.ImageFallbackRetries)
	editor, err := imageedit.NewClient(imageedit.Options{
		Generator:      generator,
		Enhancer:       enhancer,
		Cache:          store,
		Processor:      imageedit.NewProcessor(cfg.ImageWorkers),
		Policy:         imagePolicy,
		FallbackPolicy: fallbackPolicy,
		MinWidth:       cfg.ImageMinWidth,
		EnhanceTimeout: cfg.EnhanceTimeout,
		Defaults: imageedit.OutputOptions{
			Width:   cfg.ImageOutputWidth,
			Height:  cfg.ImageOutputHeight,
			Format:  cfg.ImageOutputFormat,
			Quality: cfg.ImageOutputQuality,
			Fit:     cfg.ImageOutputFit,
		},
		Logger:  &logger,
		Metrics: m,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build image edit client")
	}

	textPolicy := policyFrom(cfg, cfg.TextMaxRetries)
	direct := textgen.NewDirectChannel(chat)

	// The backend endpoint only talks to the provider; routing it through the
	// proxy channel would call itself.
	backendText := textgen.NewClient(textgen.Options{
		Secondary:       direct,
		SecondaryPolicy: textPolicy,
		Logger:          &logger,
		Metrics:         m,
	})

	if completer == nil {
		completer = textgen.NewClient(textgen.Options{
			Primary:         textgen.NewProxyChannel(proxyOptions(cfg, limiter, &logger)),
			Secondary:       direct,
			PrimaryPolicy:   textPolicy,
			SecondaryPolicy: textPolicy,
			Logger:          &logger,
			Metrics:         m,
		})
	}

	app := &handlers.App{
		Images: editor,
		Workflows: func() (*workflow.Controller, error) {
			return workflow.New(workflow.Options{
				Completer: completer,
				Model:     cfg.TextModel,
				MaxTokens: cfg.TextMaxTokens,
				Logger:    &logger,
				Metrics:   m,
			})
		},
		Text:   backendText,
		Logger: &logger,
		Info: map[string]string{
			"env":   cfg.AppEnv,
			"cache": cfg.CacheBackend + "/" + cfg.CacheEviction,
			"mock":  boolString(cfg.MockMode),
		},
	}
	if cfg.MockMode {
		app.Text = completer
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		Metrics:         m,
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Strs("text_channels", backendText.Channels()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func buildCache(ctx context.Context, cfg *infra.Config) (cache.Store, func(), error) {
	ccfg := cache.Config{
		Backend:    cfg.CacheBackend,
		Eviction:   cfg.CacheEviction,
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
		Dir:        cfg.CacheDir,
	}
	closeFn := func() {}

	switch cfg.CacheBackend {
	case cache.BackendRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		ccfg.Redis = client
		closeFn = func() { _ = client.Close() }
	case cache.BackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		ccfg.Postgres = pool
		closeFn = pool.Close
	}

	store, err := cache.New(ctx, ccfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

func buildEnhancer(cfg *infra.Config, chat *openai.Client, limiter *ratelimit.Limiter, logger *infra.Logger) prompt.Enhancer {
	static := prompt.NewStaticEnhancer()
	onFallback := func(reason string, err error) {
		logger.Warn().Err(err).Str("reason", reason).Msg("prompt enhancer fell back to static")
	}

	switch cfg.PromptProvider {
	case "gemini":
		textClient, err := genai.NewClient(genai.Options{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiTextModel,
			Timeout: cfg.EnhanceTimeout,
			Limiter: limiter,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("gemini enhancer unavailable")
			return static
		}
		enhancer, err := prompt.NewGeminiEnhancer(prompt.GeminiOptions{Client: textClient, Fallback: static, OnFallback: onFallback})
		if err != nil {
			return static
		}
		return enhancer
	case "openai":
		enhancer, err := prompt.NewOpenAIEnhancer(prompt.OpenAIOptions{Client: chat, Fallback: static, OnFallback: onFallback})
		if err != nil {
			logger.Warn().Err(err).Msg("openai enhancer unavailable")
			return static
		}
		return enhancer
	}
	return static
}

func proxyOptions(cfg *infra.Config, limiter *ratelimit.Limiter, logger *infra.Logger) textgen.ProxyOptions {
	token := cfg.TextProxyToken
	if token == "" && cfg.JWTSecret != "" && cfg.TextProxyURL != "" {
		signed, err := middleware.SignToken(cfg.JWTSecret, "listify-workflow", proxyTokenTTL)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to mint proxy token")
		}
		token = signed
	}
	return textgen.ProxyOptions{
		BaseURL:   cfg.TextProxyURL,
		Token:     token,
		Model:     cfg.TextModel,
		MaxTokens: cfg.TextMaxTokens,
		Timeout:   cfg.TextTimeout,
		Limiter:   limiter,
	}
}

func policyFrom(cfg *infra.Config, retries int) retry.Policy {
	return retry.Policy{
		MaxRetries:        retries,
		InitialDelay:      cfg.RetryInitialDelay,
		Multiplier:        cfg.RetryMultiplier,
		MaxDelay:          cfg.RetryMaxDelay,
		NetworkMultiplier: cfg.RetryNetworkMultiplier,
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
