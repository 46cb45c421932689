// Package ussd implements the gateway's built-in USSD dialog interpreter:
// the per-subscriber session and the menu state machine that interprets
// raw USSD input and produces reply text, ported state-by-state from
// original_source/ussd_smpp_simulator/src/main.rs's generate_ussd_response.
package ussd

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// State is a USSD dialog's position in the built-in menu tree.
type State int

const (
	Initial State = iota
	MainMenu
	BalanceInquiry
	DataPackages
	CustomerService
	Forwarded
	Terminated
)

func (s State) String() string {
	switch s {
	case Initial:
		return "Initial"
	case MainMenu:
		return "MainMenu"
	case BalanceInquiry:
		return "BalanceInquiry"
	case DataPackages:
		return "DataPackages"
	case CustomerService:
		return "CustomerService"
	case Forwarded:
		return "Forwarded"
	case Terminated:
		return "Terminated"
	}
	return "Unknown"
}

// Session is the gateway's per-MSISDN USSD dialog state.
type Session struct {
	MSISDN       string
	SessionID    string
	State        State
	MenuLevel    int
	LastRequest  string
	LastActivity time.Time
	CreatedAt    time.Time
}

// NewSession creates a fresh session in state Initial.
func NewSession(msisdn, sessionID string) *Session {
	now := time.Now()
	return &Session{
		MSISDN:       msisdn,
		SessionID:    sessionID,
		State:        Initial,
		MenuLevel:    0,
		LastActivity: now,
		CreatedAt:    now,
	}
}

// IsServiceCodeInput reports whether input has the "*...#" shape that
// resets a session to Initial before it's interpreted.
func IsServiceCodeInput(input string) bool {
	return strings.HasPrefix(input, "*") && strings.HasSuffix(input, "#")
}

// ResetIfServiceCode resets the session to Initial when input matches the
// "*...#" pattern, per spec.md §3's USSD Session reset invariant.
func (s *Session) ResetIfServiceCode(input string) {
	if IsServiceCodeInput(input) {
		s.State = Initial
		s.MenuLevel = 0
		s.LastRequest = ""
	}
}

// DataPackage is a single purchasable data bundle offered by the
// DataPackages menu state.
type DataPackage struct {
	Name  string
	Price float64
	Data  string
}

// Config carries the literal text and service codes driving the built-in
// interpreter, sourced from internal/config.GatewayConfig.
type Config struct {
	ServiceCodes   []string
	WelcomeMessage string
	MainMenu       []string
	BalanceMessage string
	InvalidCode    string
	InvalidOption  string
	GoodbyeMessage string
	DataPackages   []DataPackage
}

// Forwarder attempts to hand a USSD request off to a bound handler
// connection. It returns an error when no forwarding connection is
// currently bound.
type Forwarder interface {
	Forward(msisdn, ussdCode string) error
}

// Interpreter is the built-in gateway menu state machine.
type Interpreter struct {
	cfg Config
	fwd Forwarder
}

// NewInterpreter builds an Interpreter over cfg, forwarding unrecognized
// service codes via fwd.
func NewInterpreter(cfg Config, fwd Forwarder) *Interpreter {
	return &Interpreter{cfg: cfg, fwd: fwd}
}

// Process interprets input against sess's current state, mutating sess
// in place and returning the reply text (empty when a forward is in
// flight and the real reply will arrive later via DELIVER_SM).
func (in *Interpreter) Process(sess *Session, input string) string {
	sess.LastActivity = time.Now()
	sess.LastRequest = input

	switch sess.State {
	case Initial:
		return in.processInitial(sess, input)
	case MainMenu:
		return in.processMainMenu(sess, input)
	case BalanceInquiry, DataPackages, CustomerService:
		return in.processSubMenu(sess, input)
	case Forwarded:
		return in.processForwarded(sess, input)
	case Terminated:
		return in.terminatedMessage()
	}
	return in.terminatedMessage()
}

func (in *Interpreter) processInitial(sess *Session, input string) string {
	for _, code := range in.cfg.ServiceCodes {
		if strings.HasPrefix(input, strings.TrimRight(code, "#")) {
			sess.State = MainMenu
			sess.MenuLevel = 1
			return in.mainMenuScreen()
		}
	}
	if err := in.fwd.Forward(sess.MSISDN, input); err == nil {
		sess.State = Forwarded
		return ""
	}
	sess.State = Terminated
	return in.cfg.InvalidCode
}

func (in *Interpreter) processMainMenu(sess *Session, input string) string {
	switch input {
	case "1":
		sess.State = BalanceInquiry
		return in.cfg.BalanceMessage + "\nPress 0 to return to main menu"
	case "2":
		sess.State = DataPackages
		return in.dataPackagesScreen()
	case "3":
		sess.State = CustomerService
		return "Customer Service:\nCall 123 for support\nEmail: support@mytelecom.com\nPress 0 to return to main menu"
	case "0":
		sess.State = Terminated
		return in.cfg.GoodbyeMessage
	default:
		return in.cfg.InvalidOption + "\n" + strings.Join(in.cfg.MainMenu, "\n")
	}
}

func (in *Interpreter) processSubMenu(sess *Session, input string) string {
	if input == "0" {
		sess.State = MainMenu
		sess.MenuLevel = 1
		return in.mainMenuScreen()
	}
	if input == "00" {
		sess.State = Terminated
		return in.cfg.GoodbyeMessage
	}
	if sess.State != DataPackages {
		return "Press 0 to return to main menu or 00 to exit"
	}
	if choice, err := strconv.Atoi(input); err == nil {
		if choice > 0 && choice <= len(in.cfg.DataPackages) {
			pkg := in.cfg.DataPackages[choice-1]
			return fmt.Sprintf("%s selected. Reply with 'YES' to confirm purchase for $%.2f", pkg.Name, pkg.Price)
		}
		return "Invalid option. Please select a valid package number, or 0 to go back"
	}
	if strings.ToUpper(input) == "YES" {
		sess.State = MainMenu
		return "Package purchased successfully! You will receive a confirmation SMS shortly.\nPress 0 to return to main menu"
	}
	return "Invalid option. Please select a valid package number, or 0 to go back"
}

func (in *Interpreter) processForwarded(sess *Session, input string) string {
	if err := in.fwd.Forward(sess.MSISDN, input); err == nil {
		return ""
	}
	sess.State = Terminated
	return "Service temporarily unavailable. Thank you!"
}

func (in *Interpreter) terminatedMessage() string {
	return fmt.Sprintf("USSD session has ended. Please dial one of [%s] to start a new session.", strings.Join(in.cfg.ServiceCodes, ", "))
}

func (in *Interpreter) mainMenuScreen() string {
	return in.cfg.WelcomeMessage + "\n" + strings.Join(in.cfg.MainMenu, "\n")
}

func (in *Interpreter) dataPackagesScreen() string {
	var b strings.Builder
	b.WriteString("Available Data Packages:\n")
	for i, pkg := range in.cfg.DataPackages {
		fmt.Fprintf(&b, "%d. %s - $%.2f\n", i+1, pkg.Data, pkg.Price)
	}
	b.WriteString("0. Back to main menu")
	return b.String()
}
