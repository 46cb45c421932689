package config_test

import (
	"path/filepath"
	"testing"

	"github.com/telcosim/ussd-smpp-fabric/internal/config"
)

func TestLoadGatewayConfigAutoCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.toml")

	cfg, err := config.LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("expected auto-create to succeed, got %v", err)
	}
	if cfg.Server.Port == 0 {
		t.Fatal("expected a non-zero default listen port")
	}

	reloaded, err := config.LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("expected reload of the just-created file to succeed, got %v", err)
	}
	if reloaded.Server.Port != cfg.Server.Port || reloaded.Smpp.SystemID != cfg.Smpp.SystemID {
		t.Fatalf("expected reloaded config to match what was saved, got %+v vs %+v", reloaded, cfg)
	}
}

func TestGatewayConfigRoundTripsResponsePercentage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.toml")
	cfg := config.DefaultGatewayConfig()
	cfg.ResponsePercentage.SuccessPercentage = 55
	cfg.ResponsePercentage.FailurePercentage = 25
	cfg.ResponsePercentage.NoResponsePercentage = 20
	cfg.ClientSimulator.UserClients = []string{"USER1", "USER2"}
	cfg.ClientSimulator.ForwardingClients = []string{"HANDLER1"}

	if err := config.SaveGatewayConfig(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	reloaded, err := config.LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if reloaded.ResponsePercentage != cfg.ResponsePercentage {
		t.Fatalf("expected response_percentage to round-trip exactly, got %+v want %+v",
			reloaded.ResponsePercentage, cfg.ResponsePercentage)
	}
	if len(reloaded.ClientSimulator.UserClients) != 2 || len(reloaded.ClientSimulator.ForwardingClients) != 1 {
		t.Fatalf("expected client_simulator lists to round-trip, got %+v", reloaded.ClientSimulator)
	}
}

func TestHandlerConfigMenusFlattenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handler.toml")
	cfg := config.DefaultHandlerConfig()
	cfg.Menus = config.MenuConfigs{
		DefaultMenu: "main",
		Menus: map[string]config.Menu{
			"main": {
				Title: "Main Menu",
				Options: []config.MenuOption{
					{Key: "1", Text: "Balance", Action: "response", Target: "balance"},
				},
			},
		},
	}
	cfg.Responses = config.ResponseConfigs{
		Responses: map[string]string{"balance": "Your balance is $10.00"},
		Defaults: config.DefaultResponses{
			InvalidOption:  "Invalid option.",
			SessionTimeout: "Session expired.",
			SystemError:    "System error.",
			ExitMessage:    "Goodbye.",
		},
	}

	if err := config.SaveHandlerConfig(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	reloaded, err := config.LoadHandlerConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if reloaded.Menus.DefaultMenu != "main" {
		t.Fatalf("expected default_menu to round-trip, got %q", reloaded.Menus.DefaultMenu)
	}
	menu, ok := reloaded.Menus.Menus["main"]
	if !ok || menu.Title != "Main Menu" || len(menu.Options) != 1 {
		t.Fatalf("expected the main menu to round-trip intact, got %+v ok=%v", menu, ok)
	}
	if reloaded.Responses.Defaults.ExitMessage != "Goodbye." {
		t.Fatalf("expected responses.defaults to round-trip, got %+v", reloaded.Responses.Defaults)
	}
	if reloaded.Responses.Responses["balance"] != "Your balance is $10.00" {
		t.Fatalf("expected flattened response keys to round-trip, got %+v", reloaded.Responses.Responses)
	}
}

func TestLoadUserClientConfigAutoCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_config.toml")

	cfg, err := config.LoadUserClientConfig(path)
	if err != nil {
		t.Fatalf("expected auto-create to succeed, got %v", err)
	}
	if cfg.Auth.SystemID == "" {
		t.Fatal("expected a non-empty default system_id")
	}

	reloaded, err := config.LoadUserClientConfig(path)
	if err != nil {
		t.Fatalf("expected reload to succeed, got %v", err)
	}
	if reloaded.Server.Port != cfg.Server.Port || reloaded.Phone.DefaultMSISDN != cfg.Phone.DefaultMSISDN {
		t.Fatalf("expected reloaded user-client config to match saved defaults, got %+v vs %+v", reloaded, cfg)
	}
}
