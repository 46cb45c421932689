// Package config holds the TOML-backed configuration trees for the
// gateway and handler/user-client binaries, mirroring
// original_source/ussd_smpp_simulator/src/main.rs's Config tree and
// original_source/ussd_smpp_client_simulator/src/config.rs's ClientConfig
// tree field-for-field.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// GatewayConfig is the top-level configuration for cmd/ussd-gateway.
type GatewayConfig struct {
	Server             ServerConfig             `toml:"server"`
	Smpp               SmppConfig               `toml:"smpp"`
	Ussd               UssdConfig               `toml:"ussd"`
	ClientSimulator    ClientSimulatorConfig    `toml:"client_simulator"`
	Logging            GatewayLoggingConfig     `toml:"logging"`
	ResponsePercentage ResponsePercentageConfig `toml:"response_percentage"`
}

// ServerConfig is the TCP listen address for the gateway.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SmppConfig names the gateway's own system_id, connection limits, and the
// source_addr it stamps on its own originated deliver_sm PDUs.
type SmppConfig struct {
	SystemID          string `toml:"system_id"`
	MaxConnections    int    `toml:"max_connections"`
	ConnectionTimeout int    `toml:"connection_timeout"`
	ServiceCenterAddr string `toml:"service_center_addr"`
}

// UssdConfig configures the built-in dialog interpreter.
type UssdConfig struct {
	ServiceCodes   []string           `toml:"service_codes"`
	SessionTimeout int                `toml:"session_timeout"`
	Menu           MenuText           `toml:"menu"`
	Responses      ResponsesConfig    `toml:"responses"`
	DataPackages   DataPackagesConfig `toml:"data_packages"`
}

// MenuText carries the literal welcome message and main-menu lines.
type MenuText struct {
	WelcomeMessage string   `toml:"welcome_message"`
	MainMenu       []string `toml:"main_menu"`
}

// ResponsesConfig carries the built-in interpreter's static reply text.
type ResponsesConfig struct {
	BalanceMessage string `toml:"balance_message"`
	InvalidCode    string `toml:"invalid_code"`
	InvalidOption  string `toml:"invalid_option"`
	GoodbyeMessage string `toml:"goodbye_message"`
}

// DataPackagesConfig lists the data packages offered by the DataPackages
// menu state.
type DataPackagesConfig struct {
	Packages []DataPackage `toml:"packages"`
}

// DataPackage is a single purchasable data bundle.
type DataPackage struct {
	Name  string  `toml:"name"`
	Price float64 `toml:"price"`
	Data  string  `toml:"data"`
}

// ClientSimulatorConfig names which system_ids play which role when they
// bind to the gateway.
type ClientSimulatorConfig struct {
	Enabled           bool     `toml:"enabled"`
	Host              string   `toml:"host"`
	Port              int      `toml:"port"`
	SystemID          string   `toml:"system_id"`
	Password          string   `toml:"password"`
	ForwardingClients []string `toml:"forwarding_clients"`
	UserClients       []string `toml:"user_clients"`
}

// GatewayLoggingConfig is the gateway's logging config section.
type GatewayLoggingConfig struct {
	Debug   bool   `toml:"debug"`
	LogFile string `toml:"log_file"`
}

// ResponsePercentageConfig configures the response-disposition policy.
type ResponsePercentageConfig struct {
	SuccessPercentage    float64 `toml:"success_percentage"`
	FailurePercentage    float64 `toml:"failure_percentage"`
	NoResponsePercentage float64 `toml:"no_response_percentage"`
	FailureErrorCode     uint32  `toml:"failure_error_code"`
	NoResponseDelayMs    int     `toml:"no_response_delay_ms"`
}

// DefaultGatewayConfig mirrors original_source's Config::default() literally.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 2775,
		},
		Smpp: SmppConfig{
			SystemID:          "USSDGateway",
			MaxConnections:    100,
			ConnectionTimeout: 300,
			ServiceCenterAddr: "123",
		},
		Ussd: UssdConfig{
			ServiceCodes:   []string{"*123#"},
			SessionTimeout: 180,
			Menu: MenuText{
				WelcomeMessage: "Welcome to MyTelecom USSD Service",
				MainMenu: []string{
					"1. Balance Inquiry",
					"2. Data Packages",
					"3. Customer Service",
					"0. Exit",
				},
			},
			Responses: ResponsesConfig{
				BalanceMessage: "Your current balance is $25.50\nYour data balance is 2.5GB",
				InvalidCode:    "Invalid USSD code. Please try again.",
				InvalidOption:  "Invalid option. Please try again.",
				GoodbyeMessage: "Thank you for using MyTelecom USSD Service. Goodbye!",
			},
			DataPackages: DataPackagesConfig{
				Packages: []DataPackage{
					{Name: "1GB Package", Price: 10.0, Data: "1GB"},
					{Name: "5GB Package", Price: 40.0, Data: "5GB"},
					{Name: "10GB Package", Price: 70.0, Data: "10GB"},
				},
			},
		},
		ClientSimulator: ClientSimulatorConfig{
			Enabled:           false,
			Host:              "127.0.0.1",
			Port:              9090,
			SystemID:          "USSDClient",
			Password:          "password123",
			ForwardingClients: []string{"ForwardingClient", "JavaClient"},
			UserClients:       []string{"USSDMobileUser"},
		},
		Logging: GatewayLoggingConfig{
			Debug:   false,
			LogFile: "",
		},
		ResponsePercentage: ResponsePercentageConfig{
			SuccessPercentage:    95.0,
			FailurePercentage:    4.0,
			NoResponsePercentage: 1.0,
			FailureErrorCode:     0x00000008,
			NoResponseDelayMs:    5000,
		},
	}
}

// LoadGatewayConfig reads and parses path. If path does not exist, a
// default config is written to path first (mirroring original_source's
// load_config, which auto-creates a config on first run regardless of
// whether --create-config was passed).
func LoadGatewayConfig(path string) (GatewayConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultGatewayConfig()
		if err := SaveGatewayConfig(cfg, path); err != nil {
			return GatewayConfig{}, fmt.Errorf("config: creating default gateway config: %w", err)
		}
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := DefaultGatewayConfig()
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// SaveGatewayConfig marshals cfg to path, truncating any existing file.
func SaveGatewayConfig(cfg GatewayConfig, path string) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling gateway config: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// HandlerConfig is the top-level configuration for cmd/ussd-handler, the
// generic forwarding-handler binary. cmd/ussd-client, the scripted
// user-client simulator, has its own smaller UserClientConfig below
// instead of reusing this one: it has no menu tree or USSD-code mapping
// of its own to configure.
type HandlerConfig struct {
	Client    ClientSettings    `toml:"client"`
	Logging   HandlerLogConfig `toml:"logging"`
	UssdCodes UssdCodeConfig    `toml:"ussd_codes"`
	Menus     MenuConfigs       `toml:"menus"`
	Responses ResponseConfigs   `toml:"responses"`
	Session   HandlerSession    `toml:"session"`
}

// ClientSettings is the bind identity and address the handler dials.
type ClientSettings struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	SystemID          string `toml:"system_id"`
	Password          string `toml:"password"`
	BindType          string `toml:"bind_type"`
	AutoReconnect     bool   `toml:"auto_reconnect"`
	HeartbeatInterval int    `toml:"heartbeat_interval"`
}

// HandlerLogConfig is the handler's logging config section.
type HandlerLogConfig struct {
	Level string `toml:"level"`
	Debug bool   `toml:"debug"`
}

// UssdCodeConfig maps incoming *...# codes to menus.
type UssdCodeConfig struct {
	DefaultMenu          string            `toml:"default_menu"`
	Codes                []UssdCodeMapping `toml:"codes"`
	HandleCodes          []string          `toml:"handle_codes"`
	UnrecognizedAction   string            `toml:"unrecognized_action"`
	UnrecognizedMessage  string            `toml:"unrecognized_message"`
}

// UssdCodeMapping is a single USSD-code-to-menu binding.
type UssdCodeMapping struct {
	Code        string `toml:"code"`
	Menu        string `toml:"menu"`
	Description string `toml:"description"`
}

// MenuOption is a single selectable entry in a Menu.
type MenuOption struct {
	Key    string `toml:"key"`
	Text   string `toml:"text"`
	Action string `toml:"action"` // "submenu", "response", "exit"
	Target string `toml:"target"`
}

// Menu is a single named menu screen.
type Menu struct {
	Title   string       `toml:"title"`
	Options []MenuOption `toml:"options"`
}

// MenuConfigs mirrors original_source's serde(flatten)'d MenuConfigs: a
// "default_menu" key sitting alongside arbitrarily-named menu tables in
// the same [menus] table. go-toml/v2 has no flatten tag, so this type
// implements the Unmarshaler/Marshaler hooks to reproduce that shape on
// the wire while keeping a normal map in memory.
type MenuConfigs struct {
	DefaultMenu string
	Menus       map[string]Menu
}

// UnmarshalTOML implements toml.Unmarshaler.
func (m *MenuConfigs) UnmarshalTOML(value interface{}) error {
	tbl, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("config: [menus] must be a table")
	}
	m.Menus = make(map[string]Menu, len(tbl))
	for k, v := range tbl {
		if k == "default_menu" {
			s, _ := v.(string)
			m.DefaultMenu = s
			continue
		}
		var menu Menu
		if err := redecode(v, &menu); err != nil {
			return fmt.Errorf("config: menu %q: %w", k, err)
		}
		m.Menus[k] = menu
	}
	return nil
}

// MarshalTOML implements toml.Marshaler.
func (m MenuConfigs) MarshalTOML() ([]byte, error) {
	tbl := map[string]interface{}{"default_menu": m.DefaultMenu}
	for k, v := range m.Menus {
		tbl[k] = v
	}
	return toml.Marshal(tbl)
}

// ResponseConfigs mirrors original_source's flattened ResponseConfigs: a
// "defaults" table alongside arbitrarily-named response-id keys in the
// same [responses] table.
type ResponseConfigs struct {
	Responses map[string]string
	Defaults  DefaultResponses
}

// DefaultResponses are the handler's built-in fallback messages.
type DefaultResponses struct {
	InvalidOption  string `toml:"invalid_option"`
	SessionTimeout string `toml:"session_timeout"`
	SystemError    string `toml:"system_error"`
	ExitMessage    string `toml:"exit_message"`
}

// UnmarshalTOML implements toml.Unmarshaler.
func (r *ResponseConfigs) UnmarshalTOML(value interface{}) error {
	tbl, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("config: [responses] must be a table")
	}
	r.Responses = make(map[string]string, len(tbl))
	for k, v := range tbl {
		if k == "defaults" {
			if err := redecode(v, &r.Defaults); err != nil {
				return fmt.Errorf("config: responses.defaults: %w", err)
			}
			continue
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("config: responses.%s must be a string", k)
		}
		r.Responses[k] = s
	}
	return nil
}

// MarshalTOML implements toml.Marshaler.
func (r ResponseConfigs) MarshalTOML() ([]byte, error) {
	tbl := map[string]interface{}{"defaults": r.Defaults}
	for k, v := range r.Responses {
		tbl[k] = v
	}
	return toml.Marshal(tbl)
}

// redecode round-trips an already-decoded generic TOML value (a nested
// map/slice tree) through the encoder/decoder to populate a concrete
// struct. Used by the flatten-emulating Unmarshalers above.
func redecode(v interface{}, out interface{}) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	return toml.Unmarshal(b, out)
}

// HandlerSession configures the handler dialog interpreter's session
// behavior.
type HandlerSession struct {
	TimeoutSeconds        int  `toml:"timeout_seconds"`
	MaxMenuDepth          int  `toml:"max_menu_depth"`
	EnableBackNavigation  bool `toml:"enable_back_navigation"`
	// RememberLastMenu is carried for schema fidelity with
	// original_source's ClientConfig but left unwired: the handler
	// dialog interpreter's session is per-dialog and not persisted.
	RememberLastMenu bool `toml:"remember_last_menu"`
}

// DefaultHandlerConfig mirrors original_source's ClientConfig::default().
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		Client: ClientSettings{
			Host:              "127.0.0.1",
			Port:              2775,
			SystemID:          "ForwardingClient",
			Password:          "forward123",
			BindType:          "transceiver",
			AutoReconnect:     true,
			HeartbeatInterval: 30,
		},
		Logging: HandlerLogConfig{
			Level: "info",
			Debug: false,
		},
		UssdCodes: UssdCodeConfig{
			DefaultMenu:         "main",
			Codes:               nil,
			HandleCodes:         nil,
			UnrecognizedAction:  "response",
			UnrecognizedMessage: "Unrecognized USSD code. Please try again.",
		},
		Menus: MenuConfigs{
			DefaultMenu: "main",
			Menus: map[string]Menu{
				"main": {
					Title: "Main Menu",
					Options: []MenuOption{
						{Key: "1", Text: "Services", Action: "response", Target: "services"},
						{Key: "0", Text: "Exit", Action: "exit", Target: ""},
					},
				},
			},
		},
		Responses: ResponseConfigs{
			Responses: map[string]string{
				"services": "Services available:\n\n1. Account Info\n2. Transactions\n3. Support\n\nReply with your choice.",
			},
			Defaults: DefaultResponses{
				InvalidOption:  "Invalid option. Please try again.",
				SessionTimeout: "Session timeout. Please try again.",
				SystemError:    "System error. Please try again later.",
				ExitMessage:    "Goodbye!",
			},
		},
		Session: HandlerSession{
			TimeoutSeconds:       300,
			MaxMenuDepth:         10,
			EnableBackNavigation: true,
			RememberLastMenu:     false,
		},
	}
}

// UserClientConfig is the top-level configuration for cmd/ussd-client, the
// scripted USSD user-client simulator, trimmed from
// original_source/ussd_user_simulator/src/main.rs's UserSimulatorConfig to
// the sections a scripted (non-interactive) client actually needs: the UI
// animation/clear-screen and performance-testing sections that simulator
// carries have no scripted equivalent and are dropped.
type UserClientConfig struct {
	Server  ClientServerConfig `toml:"server"`
	Auth    ClientAuthConfig   `toml:"authentication"`
	Phone   ClientPhoneConfig  `toml:"phone"`
	Logging HandlerLogConfig   `toml:"logging"`
}

// ClientServerConfig is the gateway address the user-client dials.
type ClientServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ClientAuthConfig is the user-client's bind identity.
type ClientAuthConfig struct {
	SystemID string `toml:"system_id"`
	Password string `toml:"password"`
}

// ClientPhoneConfig carries the simulated subscriber's MSISDN.
type ClientPhoneConfig struct {
	DefaultMSISDN string `toml:"default_msisdn"`
}

// DefaultUserClientConfig mirrors original_source's
// UserSimulatorConfig::default() for the sections this fabric keeps.
func DefaultUserClientConfig() UserClientConfig {
	return UserClientConfig{
		Server: ClientServerConfig{
			Host: "127.0.0.1",
			Port: 9090,
		},
		Auth: ClientAuthConfig{
			SystemID: "USSDMobileUser",
			Password: "mobile123",
		},
		Phone: ClientPhoneConfig{
			DefaultMSISDN: "1234567890",
		},
		Logging: HandlerLogConfig{
			Level: "info",
			Debug: false,
		},
	}
}

// LoadUserClientConfig reads and parses path, auto-creating a default
// config file if it doesn't exist yet.
func LoadUserClientConfig(path string) (UserClientConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultUserClientConfig()
		if err := SaveUserClientConfig(cfg, path); err != nil {
			return UserClientConfig{}, fmt.Errorf("config: creating default user-client config: %w", err)
		}
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return UserClientConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := DefaultUserClientConfig()
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return UserClientConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// SaveUserClientConfig marshals cfg to path, truncating any existing file.
func SaveUserClientConfig(cfg UserClientConfig, path string) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling user-client config: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadHandlerConfig reads and parses path, auto-creating a default config
// file if it doesn't exist yet.
func LoadHandlerConfig(path string) (HandlerConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultHandlerConfig()
		if err := SaveHandlerConfig(cfg, path); err != nil {
			return HandlerConfig{}, fmt.Errorf("config: creating default handler config: %w", err)
		}
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return HandlerConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := DefaultHandlerConfig()
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return HandlerConfig{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// SaveHandlerConfig marshals cfg to path, truncating any existing file.
func SaveHandlerConfig(cfg HandlerConfig, path string) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling handler config: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
