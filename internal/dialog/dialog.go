// Package dialog implements the handler-side configurable menu-tree
// interpreter, ported from
// original_source/ussd_smpp_client_simulator/src/ussd.rs's
// UssdSession/UssdMenuManager (process_input, handle_menu_option,
// show_menu, handle_ussd_code, handle_unrecognized_code).
package dialog

import (
	"fmt"
	"strings"
	"time"

	"github.com/telcosim/ussd-smpp-fabric/internal/config"
	"github.com/telcosim/ussd-smpp-fabric/internal/ussd"
)

// Session is a handler's per-MSISDN dialog state: the current menu, the
// navigation stack back to the default menu, and any captured inputs.
// Invariant: MenuDepth == len(MenuHistory) and MenuDepth <= max_menu_depth
// (enforced by NavigateTo, which refuses to push past the configured
// depth).
type Session struct {
	MSISDN       string
	SessionID    string
	CurrentMenu  string
	MenuHistory  []string
	LastActivity time.Time
	MenuDepth    int
	Data         map[string]string
	CreatedAt    time.Time
}

// NewSession creates a handler dialog session rooted at defaultMenu.
func NewSession(msisdn, sessionID, defaultMenu string) *Session {
	now := time.Now()
	return &Session{
		MSISDN:       msisdn,
		SessionID:    sessionID,
		CurrentMenu:  defaultMenu,
		MenuHistory:  nil,
		LastActivity: now,
		MenuDepth:    0,
		Data:         make(map[string]string),
		CreatedAt:    now,
	}
}

func (s *Session) touch() {
	s.LastActivity = time.Now()
}

// IsExpired reports whether timeoutSeconds have elapsed since the last
// input was processed.
func (s *Session) IsExpired(timeoutSeconds int) bool {
	return time.Since(s.LastActivity) > time.Duration(timeoutSeconds)*time.Second
}

// NavigateTo pushes the current menu onto the history stack and moves to
// target, unless target is already current.
func (s *Session) NavigateTo(target string) {
	if target == s.CurrentMenu {
		return
	}
	s.MenuHistory = append(s.MenuHistory, s.CurrentMenu)
	s.CurrentMenu = target
	s.MenuDepth++
}

// GoBack pops the history stack onto CurrentMenu, reporting whether there
// was anything to pop.
func (s *Session) GoBack() bool {
	if len(s.MenuHistory) == 0 {
		return false
	}
	last := len(s.MenuHistory) - 1
	s.CurrentMenu = s.MenuHistory[last]
	s.MenuHistory = s.MenuHistory[:last]
	if s.MenuDepth > 0 {
		s.MenuDepth--
	}
	return true
}

// ResetToMain resets the session back to defaultMenu, clearing history
// and captured data.
func (s *Session) ResetToMain(defaultMenu string) {
	s.CurrentMenu = defaultMenu
	s.MenuHistory = nil
	s.MenuDepth = 0
	s.Data = make(map[string]string)
}

// Interpreter answers forwarded USSD requests against a configured menu
// tree.
type Interpreter struct {
	cfg config.HandlerConfig
}

// NewInterpreter builds an Interpreter over cfg.
func NewInterpreter(cfg config.HandlerConfig) *Interpreter {
	return &Interpreter{cfg: cfg}
}

// Process interprets input against sess, mutating sess in place.
func (in *Interpreter) Process(sess *Session, input string) string {
	input = strings.TrimSpace(input)

	if sess.IsExpired(in.cfg.Session.TimeoutSeconds) {
		sess.ResetToMain(in.cfg.Menus.DefaultMenu)
		return in.cfg.Responses.Defaults.SessionTimeout
	}
	sess.touch()

	if ussd.IsServiceCodeInput(input) {
		return in.handleUssdCode(sess, input)
	}

	if input == "00" && in.cfg.Session.EnableBackNavigation {
		if sess.GoBack() {
			return in.showMenu(sess, sess.CurrentMenu)
		}
		return in.cfg.Responses.Defaults.ExitMessage
	}

	menu, ok := in.cfg.Menus.Menus[sess.CurrentMenu]
	if !ok {
		sess.ResetToMain(in.cfg.Menus.DefaultMenu)
		return in.cfg.Responses.Defaults.SystemError
	}

	for _, opt := range menu.Options {
		if opt.Key == input {
			return in.handleOption(sess, opt)
		}
	}
	return in.cfg.Responses.Defaults.InvalidOption + "\n\n" + in.showMenu(sess, sess.CurrentMenu)
}

func (in *Interpreter) handleOption(sess *Session, opt config.MenuOption) string {
	switch opt.Action {
	case "submenu":
		if opt.Target == "" {
			return in.cfg.Responses.Defaults.SystemError
		}
		if sess.MenuDepth >= in.cfg.Session.MaxMenuDepth {
			return fmt.Sprintf("Maximum menu depth reached.\n\n%s", in.cfg.Responses.Defaults.InvalidOption)
		}
		sess.NavigateTo(opt.Target)
		return in.showMenu(sess, opt.Target)
	case "response":
		if resp, ok := in.cfg.Responses.Responses[opt.Target]; ok {
			return resp
		}
		return in.cfg.Responses.Defaults.SystemError
	case "exit":
		sess.ResetToMain(in.cfg.Menus.DefaultMenu)
		return in.cfg.Responses.Defaults.ExitMessage
	default:
		return in.cfg.Responses.Defaults.SystemError
	}
}

func (in *Interpreter) showMenu(sess *Session, menuName string) string {
	menu, ok := in.cfg.Menus.Menus[menuName]
	if !ok {
		return in.cfg.Responses.Defaults.SystemError
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", menu.Title)
	for _, opt := range menu.Options {
		fmt.Fprintf(&b, "%s. %s\n", opt.Key, opt.Text)
	}
	if in.cfg.Session.EnableBackNavigation && sess.MenuDepth > 0 {
		b.WriteString("\n00. Back")
	}
	return b.String()
}

// WelcomeMessage renders the default menu screen for a brand-new session.
func (in *Interpreter) WelcomeMessage() string {
	return in.showMenu(NewSession("", "", in.cfg.Menus.DefaultMenu), in.cfg.Menus.DefaultMenu)
}

func (in *Interpreter) handleUssdCode(sess *Session, code string) string {
	if len(in.cfg.UssdCodes.HandleCodes) > 0 && !contains(in.cfg.UssdCodes.HandleCodes, code) {
		return in.handleUnrecognizedCode(code)
	}
	for _, mapping := range in.cfg.UssdCodes.Codes {
		if mapping.Code == code {
			sess.ResetToMain(mapping.Menu)
			return in.showMenu(sess, mapping.Menu)
		}
	}
	sess.ResetToMain(in.cfg.UssdCodes.DefaultMenu)
	return in.showMenu(sess, in.cfg.UssdCodes.DefaultMenu)
}

func (in *Interpreter) handleUnrecognizedCode(code string) string {
	switch in.cfg.UssdCodes.UnrecognizedAction {
	case "reject":
		return fmt.Sprintf("USSD code %s is not supported by this service.\n\n%s", code, in.cfg.UssdCodes.UnrecognizedMessage)
	case "default_menu":
		return fmt.Sprintf("USSD code %s redirected to main menu.\n\n%s", code, in.cfg.UssdCodes.UnrecognizedMessage)
	default: // "forward" and anything else
		return fmt.Sprintf("USSD code %s forwarded to network.\n\n%s", code, in.cfg.UssdCodes.UnrecognizedMessage)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// GenerateSessionID builds a handler-side session id in the
// "USSD<unix_seconds>" shape original_source's generate_session_id uses.
func GenerateSessionID(now time.Time) string {
	return fmt.Sprintf("USSD%d", now.Unix())
}
