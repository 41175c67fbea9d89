package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	walletapp "github.com/stacklok/toolhive-wallet-sync/internal/app"
	"github.com/stacklok/toolhive-wallet-sync/internal/config"
)

// ServerTestHelper manages the wallet sync server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	httpClient *http.Client
	app        *walletapp.WalletSyncApp
	port       int
}

// NewServerTestHelper creates a new server test helper
func NewServerTestHelper(ctx context.Context, configPath string, port int) *ServerTestHelper {
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    fmt.Sprintf("http://localhost:%d", port),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		port: port,
	}
}

// StartServer starts the wallet sync server programmatically
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := walletapp.NewWalletSyncApp(s.ctx,
		walletapp.WithConfig(cfg),
		walletapp.WithAddress(fmt.Sprintf(":%d", s.port)),
		walletapp.WithSyncJitter(0),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	go func() {
		if err := app.Start(); err != nil {
			// The test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()
	return nil
}

// StopServer gracefully stops the wallet sync server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the server to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Get performs a GET on path and decodes the JSON body
func (s *ServerTestHelper) Get(path string) (int, map[string]any, error) {
	resp, err := s.httpClient.Get(s.baseURL + path)
	if err != nil {
		return 0, nil, err
	}
	return decode(resp)
}

// Post performs an empty POST on path and decodes the JSON body, if any
func (s *ServerTestHelper) Post(path string) (int, map[string]any, error) {
	resp, err := s.httpClient.Post(s.baseURL+path, "application/json", nil)
	if err != nil {
		return 0, nil, err
	}
	return decode(resp)
}

func decode(resp *http.Response) (int, map[string]any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if len(data) == 0 {
		return resp.StatusCode, nil, nil
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("invalid JSON body %q: %w", string(data), err)
	}
	return resp.StatusCode, body, nil
}

// WriteConfigYAML writes a configuration tracking wallets against the
// ledger at endpoint, with the identity file below dir
func WriteConfigYAML(dir, endpoint string, wallets []config.WalletConfig) string {
	cfg := config.Config{
		Wallets: wallets,
		Identity: &config.IdentityConfig{
			Source: config.IdentitySourceFile,
			Path:   IdentityPath(dir),
		},
		Ledger: config.LedgerConfig{
			Endpoint:   endpoint,
			MaxRetries: 1,
			Timeout:    "2s",
		},
		StatusDir: filepath.Join(dir, "status"),
	}
	data, err := yaml.Marshal(cfg)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, data, 0600)).To(gomega.Succeed())
	return path
}

// IdentityPath returns the identity file used by configurations written in dir
func IdentityPath(dir string) string {
	return filepath.Join(dir, "identity", "identity.json")
}

// WriteIdentity stores a token for subject in the identity file of dir
func WriteIdentity(dir, subject string) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("integration-secret"))
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	path := IdentityPath(dir)
	gomega.Expect(os.MkdirAll(filepath.Dir(path), 0750)).To(gomega.Succeed())
	data, err := json.Marshal(map[string]string{"token": token})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(os.WriteFile(path, data, 0600)).To(gomega.Succeed())
}
