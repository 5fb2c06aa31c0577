package profile

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the chat client.
type Profile struct {
	// Mode can be "prod", "dev" or "demo". Demo mode uses the simulated
	// response strategy instead of the live upstream.
	Mode string
	// Addr is the bind address of the embedded mock upstream server.
	Addr string
	// Port is the port of the embedded mock upstream server.
	Port int
	// Data is the directory holding local state (conversation snapshots).
	Data string
	// Driver selects the local persistence driver: memory, file or sqlite.
	Driver string
	// DSN is the driver-specific source name (file path for file/sqlite).
	DSN string
	// UpstreamURL is the base URL of the remote inference service.
	UpstreamURL string
	// Agent is the default agent selector ("auto" lets the upstream route).
	Agent string
	// RequestTimeout bounds a single chat turn, in seconds. Zero means no
	// client-side deadline; streaming turns can legitimately run long.
	RequestTimeout int
	// Version is the current release version.
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsDemo returns true when the simulated response strategy should be used.
func (p *Profile) IsDemo() bool {
	return p.Mode == "demo"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	if p.UpstreamURL == "" {
		p.UpstreamURL = getEnvOrDefault("KGCHAT_UPSTREAM_URL", "http://localhost:3001")
	}
	if p.Agent == "" {
		p.Agent = getEnvOrDefault("KGCHAT_AGENT", "auto")
	}
	if p.RequestTimeout == 0 {
		p.RequestTimeout = getEnvOrDefaultInt("KGCHAT_REQUEST_TIMEOUT_SECONDS", 0)
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "kgchat")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/kgchat"
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "", "memory":
		p.Driver = "memory"
	case "file":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("kgchat_%s.json", p.Mode))
		}
	case "sqlite":
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("kgchat_%s.db", p.Mode))
		}
	default:
		return errors.Errorf("unknown persistence driver %q", p.Driver)
	}

	if p.UpstreamURL != "" {
		if _, err := url.Parse(p.UpstreamURL); err != nil {
			return errors.Wrapf(err, "invalid upstream url %q", p.UpstreamURL)
		}
	}

	return nil
}
