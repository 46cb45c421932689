// Command ussd-handler is the generic forwarding-client simulator: it
// binds to the gateway as a transceiver, answers USSD dialogs the gateway
// forwards to it (SUBMIT_SMs addressed to "FORWARD") against a
// configurable menu tree, and relays its reply back as a DELIVER_SM,
// grounded on original_source/ussd_smpp_client_simulator/src/main.rs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	smpp "github.com/telcosim/ussd-smpp-fabric"
	"github.com/telcosim/ussd-smpp-fabric/internal/config"
	"github.com/telcosim/ussd-smpp-fabric/internal/dialog"
	"github.com/telcosim/ussd-smpp-fabric/pdu"
)

// handler answers forwarded USSD requests against the configured menu
// tree and relays replies back to the gateway as DELIVER_SMs.
type handler struct {
	cfg    config.HandlerConfig
	interp *dialog.Interpreter
	logger smpp.Logger

	mu       sync.Mutex
	sessions map[string]*dialog.Session
}

func newHandler(cfg config.HandlerConfig, logger smpp.Logger) *handler {
	return &handler{
		cfg:      cfg,
		interp:   dialog.NewInterpreter(cfg),
		logger:   logger,
		sessions: make(map[string]*dialog.Session),
	}
}

func (h *handler) sessionFor(msisdn string) *dialog.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.sessions[msisdn]
	if !ok {
		sess = dialog.NewSession(msisdn, dialog.GenerateSessionID(time.Now()), h.cfg.Menus.DefaultMenu)
		h.sessions[msisdn] = sess
	}
	return sess
}

// ServeSMPP implements smpp.Handler.
func (h *handler) ServeSMPP(ctx *smpp.Context) {
	switch ctx.CommandID() {
	case pdu.SubmitSmID:
		h.handleSubmitSm(ctx)
	case pdu.EnquireLinkID:
		el, err := ctx.EnquireLink()
		if err != nil {
			h.logger.ErrorF("ussd-handler: %+v", err)
			return
		}
		if err := ctx.Respond(el.Response(), pdu.StatusOK); err != nil {
			h.logger.ErrorF("ussd-handler: responding enquire_link: %+v", err)
		}
	case pdu.UnbindID:
		ub, err := ctx.Unbind()
		if err != nil {
			h.logger.ErrorF("ussd-handler: %+v", err)
			return
		}
		if err := ctx.Respond(ub.Response(), pdu.StatusOK); err != nil {
			h.logger.ErrorF("ussd-handler: responding unbind: %+v", err)
		}
		ctx.CloseSession()
	default:
		ctx.Respond(&pdu.GenericNack{}, pdu.StatusSysErr)
	}
}

func (h *handler) handleSubmitSm(ctx *smpp.Context) {
	sm, err := ctx.SubmitSm()
	if err != nil {
		h.logger.ErrorF("ussd-handler: %+v", err)
		return
	}
	msgID := fmt.Sprintf("%d", time.Now().UnixNano())
	if err := ctx.Respond(sm.Response(msgID), pdu.StatusOK); err != nil {
		h.logger.ErrorF("ussd-handler: responding submit_sm: %+v", err)
		return
	}

	msisdn := sm.SourceAddr
	sess := h.sessionFor(msisdn)
	reply := h.interp.Process(sess, sm.ShortMessage)

	dsm := &pdu.DeliverSm{
		ServiceType:     "USSD",
		SourceAddrTon:   0,
		SourceAddrNpi:   0,
		SourceAddr:      h.cfg.Client.SystemID,
		DestAddrTon:     1,
		DestAddrNpi:     1,
		DestinationAddr: msisdn,
		EsmClass:        pdu.ParseEsmClass(pdu.UssdEsmClass),
		ShortMessage:    reply,
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := ctx.Session().Send(sctx, dsm); err != nil {
		h.logger.ErrorF("ussd-handler: replying to %s: %+v", msisdn, err)
	}
}

func main() {
	var (
		configPath   string
		host         string
		port         int
		createConfig bool
		debug        bool
	)
	pflag.StringVarP(&configPath, "config", "c", "handler.toml", "path to the handler config file")
	pflag.StringVarP(&host, "host", "h", "", "override the gateway host from config")
	pflag.IntVarP(&port, "port", "p", 0, "override the gateway port from config")
	pflag.BoolVar(&createConfig, "create-config", false, "write a default config file and exit")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging")
	pflag.Parse()

	if createConfig {
		if err := config.SaveHandlerConfig(config.DefaultHandlerConfig(), configPath); err != nil {
			fmt.Fprintf(os.Stderr, "ussd-handler: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ussd-handler: wrote default config to %s\n", configPath)
		return
	}

	cfg, err := config.LoadHandlerConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ussd-handler: %v\n", err)
		os.Exit(1)
	}
	if host != "" {
		cfg.Client.Host = host
	}
	if port != 0 {
		cfg.Client.Port = port
	}

	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	if debug || cfg.Logging.Debug {
		zl = zl.Level(zerolog.DebugLevel)
	} else {
		zl = zl.Level(zerolog.InfoLevel)
	}
	logger := smpp.NewZerologLogger(zl)

	h := newHandler(cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Client.Host, cfg.Client.Port)
	sessConf := smpp.SessionConf{
		SendWinSize:   10,
		ReqWinSize:    10,
		WindowTimeout: 30 * time.Second,
		Logger:        logger,
		Handler:       h,
		Sequencer:     pdu.NewSequencer(1),
	}

	sess, err := smpp.BindTRx(sessConf, smpp.BindConf{
		Addr:     addr,
		SystemID: cfg.Client.SystemID,
		Password: cfg.Client.Password,
	})
	if err != nil {
		zl.Fatal().Err(err).Msgf("ussd-handler: binding to %s", addr)
	}
	zl.Info().Msgf("ussd-handler: bound to %s as %s", addr, cfg.Client.SystemID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		zl.Info().Msg("ussd-handler: shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		smpp.Unbind(ctx, sess)
	}()

	if cfg.Client.HeartbeatInterval > 0 {
		go heartbeat(sess, time.Duration(cfg.Client.HeartbeatInterval)*time.Second, logger)
	}

	<-sess.NotifyClosed()
}

func heartbeat(sess *smpp.Session, interval time.Duration, logger smpp.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, err := smpp.SendEnquireLink(ctx, sess, &pdu.EnquireLink{})
			cancel()
			if err != nil {
				logger.ErrorF("ussd-handler: enquire_link: %+v", err)
			}
		case <-sess.NotifyClosed():
			return
		}
	}
}
