// Command ussd-gateway runs the USSD-over-SMPP simulation gateway: it
// accepts SMSC-side binds from handler and user-client peers, answers
// SUBMIT_SMs per the configured response-disposition policy, drives the
// built-in USSD dialog interpreter, and relays forwarded dialogs,
// grounded on original_source/ussd_smpp_simulator/src/main.rs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	smpp "github.com/telcosim/ussd-smpp-fabric"
	"github.com/telcosim/ussd-smpp-fabric/internal/config"
	"github.com/telcosim/ussd-smpp-fabric/internal/gatewaycore"
)

func main() {
	var (
		configPath   string
		host         string
		port         int
		createConfig bool
		debug        bool
	)
	pflag.StringVarP(&configPath, "config", "c", "config.toml", "path to the gateway config file")
	pflag.StringVarP(&host, "host", "h", "", "override the listen host from config")
	pflag.IntVarP(&port, "port", "p", 0, "override the listen port from config")
	pflag.BoolVar(&createConfig, "create-config", false, "write a default config file and exit")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging")
	pflag.Parse()

	if createConfig {
		if err := config.SaveGatewayConfig(config.DefaultGatewayConfig(), configPath); err != nil {
			fmt.Fprintf(os.Stderr, "ussd-gateway: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ussd-gateway: wrote default config to %s\n", configPath)
		return
	}

	cfg, err := config.LoadGatewayConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ussd-gateway: %v\n", err)
		os.Exit(1)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	if debug || cfg.Logging.Debug {
		zl = zl.Level(zerolog.DebugLevel)
	} else {
		zl = zl.Level(zerolog.InfoLevel)
	}
	logger := smpp.NewZerologLogger(zl)

	core := gatewaycore.NewCore(cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := smpp.NewServer(addr, smpp.SessionConf{
		SendWinSize:   10,
		ReqWinSize:    10,
		WindowTimeout: 30 * time.Second,
		Logger:        logger,
		Handler:       core,
		// Sequencer left nil: NewEncoder allocates a fresh per-connection
		// sequencer for each accepted Session. A single shared instance here
		// would be handed to every connection's Encoder, racing seq.n across
		// unrelated sessions' goroutines.
		SessionState: core.OnSessionState,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		zl.Info().Msg("ussd-gateway: shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Unbind(ctx); err != nil {
			zl.Error().Err(err).Msg("ussd-gateway: error during shutdown")
		}
	}()

	zl.Info().Msgf("ussd-gateway: listening on %s (%d service code(s), %d data package(s))",
		addr, len(cfg.Ussd.ServiceCodes), len(cfg.Ussd.DataPackages.Packages))
	if err := srv.ListenAndServe(); err != nil {
		zl.Error().Err(err).Msg("ussd-gateway: server stopped")
		os.Exit(1)
	}
}
