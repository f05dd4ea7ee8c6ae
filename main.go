package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"fetchrelay/handlers"
	"fetchrelay/pkg/metrics"
	"fetchrelay/pkg/relay"
)

func main() {
	parser := argparse.NewParser("fetchrelay", "Fetches a URL on behalf of the caller and relays the body back as JSON")
	addr := parser.String("a", "addr", &argparse.Options{Help: "Address to listen on (overrides LISTEN_ADDR)"})
	configPath := parser.String("c", "config", &argparse.Options{Help: "Path to a YAML config file"})
	proxyFlag := parser.String("p", "proxy", &argparse.Options{Help: "SOCKS5 proxy for all outbound fetches (overrides PROXY_OVERRIDE)"})
	timeoutFlag := parser.Int("t", "timeout", &argparse.Options{Help: "Default fetch timeout in seconds"})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Enable debug logging"})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	_ = godotenv.Load()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	cfg, err := relay.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Explicit flags win over file and environment.
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *proxyFlag != "" {
		cfg.ProxyOverride = *proxyFlag
	}
	if *timeoutFlag > 0 {
		cfg.TimeoutSeconds = uint(*timeoutFlag)
	}

	metrics.Start(cfg.MetricsAddr, log)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post("/scrape", handlers.Scrape(relay.New(cfg, log), log))

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("starting server")
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	<-termChan
	log.Info().Msg("shutdown signal received")
	_ = app.Shutdown()
}
