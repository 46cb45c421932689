// Command ussd-client is a scripted USSD user-client simulator: it binds
// to the gateway as an ESME (a configured user_clients system_id), sends
// a sequence of USSD inputs read from stdin or a --script file one per
// line, and prints each DELIVER_SM reply as it arrives, grounded on
// original_source/ussd_user_simulator/src/main.rs and
// original_source/ussd_client_simulator/src/main.rs, trimmed to their
// scripted (non-interactive) core: no animation, screen-clearing, or
// performance-stats UI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	smpp "github.com/telcosim/ussd-smpp-fabric"
	"github.com/telcosim/ussd-smpp-fabric/internal/config"
	"github.com/telcosim/ussd-smpp-fabric/pdu"
)

// client prints every DELIVER_SM it receives and acks it immediately.
type client struct {
	logger  smpp.Logger
	replies chan string
}

func newClient(logger smpp.Logger) *client {
	return &client{logger: logger, replies: make(chan string, 8)}
}

// ServeSMPP implements smpp.Handler.
func (c *client) ServeSMPP(ctx *smpp.Context) {
	switch ctx.CommandID() {
	case pdu.DeliverSmID:
		dsm, err := ctx.DeliverSm()
		if err != nil {
			c.logger.ErrorF("ussd-client: %+v", err)
			return
		}
		if err := ctx.Respond(dsm.Response(""), pdu.StatusOK); err != nil {
			c.logger.ErrorF("ussd-client: responding deliver_sm: %+v", err)
		}
		c.replies <- dsm.ShortMessage
	case pdu.EnquireLinkID:
		el, err := ctx.EnquireLink()
		if err != nil {
			c.logger.ErrorF("ussd-client: %+v", err)
			return
		}
		if err := ctx.Respond(el.Response(), pdu.StatusOK); err != nil {
			c.logger.ErrorF("ussd-client: responding enquire_link: %+v", err)
		}
	case pdu.UnbindID:
		ub, err := ctx.Unbind()
		if err != nil {
			c.logger.ErrorF("ussd-client: %+v", err)
			return
		}
		if err := ctx.Respond(ub.Response(), pdu.StatusOK); err != nil {
			c.logger.ErrorF("ussd-client: responding unbind: %+v", err)
		}
		ctx.CloseSession()
	default:
		ctx.Respond(&pdu.GenericNack{}, pdu.StatusSysErr)
	}
}

func main() {
	var (
		configPath   string
		host         string
		port         int
		msisdn       string
		scriptPath   string
		createConfig bool
		debug        bool
	)
	pflag.StringVarP(&configPath, "config", "c", "user_config.toml", "path to the user-client config file")
	pflag.StringVarP(&host, "host", "h", "", "override the gateway host from config")
	pflag.IntVarP(&port, "port", "p", 0, "override the gateway port from config")
	pflag.StringVarP(&msisdn, "msisdn", "m", "", "override the simulated subscriber's MSISDN from config")
	pflag.StringVar(&scriptPath, "script", "", "file of USSD inputs, one per line (default: read from stdin)")
	pflag.BoolVar(&createConfig, "create-config", false, "write a default config file and exit")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging")
	pflag.Parse()

	if createConfig {
		if err := config.SaveUserClientConfig(config.DefaultUserClientConfig(), configPath); err != nil {
			fmt.Fprintf(os.Stderr, "ussd-client: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ussd-client: wrote default config to %s\n", configPath)
		return
	}

	cfg, err := config.LoadUserClientConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ussd-client: %v\n", err)
		os.Exit(1)
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if msisdn != "" {
		cfg.Phone.DefaultMSISDN = msisdn
	}

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	if debug || cfg.Logging.Debug {
		zl = zl.Level(zerolog.DebugLevel)
	} else {
		zl = zl.Level(zerolog.InfoLevel)
	}
	logger := smpp.NewZerologLogger(zl)

	c := newClient(logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	sessConf := smpp.SessionConf{
		SendWinSize:   10,
		ReqWinSize:    10,
		WindowTimeout: 30 * time.Second,
		Logger:        logger,
		Handler:       c,
		Sequencer:     pdu.NewSequencer(1),
	}

	sess, err := smpp.BindTRx(sessConf, smpp.BindConf{
		Addr:     addr,
		SystemID: cfg.Auth.SystemID,
		Password: cfg.Auth.Password,
	})
	if err != nil {
		zl.Fatal().Err(err).Msgf("ussd-client: binding to %s", addr)
	}
	zl.Info().Msgf("ussd-client: bound to %s as %s (msisdn %s)", addr, cfg.Auth.SystemID, cfg.Phone.DefaultMSISDN)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
		case <-done:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		smpp.Unbind(ctx, sess)
	}()
	defer close(done)

	var input io.Reader = os.Stdin
	if scriptPath != "" {
		f, err := os.Open(scriptPath)
		if err != nil {
			zl.Fatal().Err(err).Msgf("ussd-client: opening script %s", scriptPath)
		}
		defer f.Close()
		input = f
	}

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.sendUssdInput(sess, cfg.Phone.DefaultMSISDN, line); err != nil {
			zl.Error().Err(err).Msgf("ussd-client: sending %q", line)
			continue
		}
		select {
		case reply := <-c.replies:
			fmt.Printf("< %s\n", reply)
		case <-time.After(10 * time.Second):
			zl.Warn().Msg("ussd-client: timed out waiting for reply")
		}
	}
	if err := scanner.Err(); err != nil {
		zl.Error().Err(err).Msg("ussd-client: reading input")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	smpp.Unbind(ctx, sess)
}

func (c *client) sendUssdInput(sess *smpp.Session, msisdn, input string) error {
	fmt.Printf("> %s\n", input)
	sm := &pdu.SubmitSm{
		ServiceType:     "USSD",
		SourceAddrTon:   1,
		SourceAddrNpi:   1,
		SourceAddr:      msisdn,
		DestAddrTon:     1,
		DestAddrNpi:     1,
		DestinationAddr: "",
		EsmClass:        pdu.ParseEsmClass(pdu.UssdEsmClass),
		ShortMessage:    input,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := sess.Send(ctx, sm)
	return err
}
