package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// AgentConfig is the reference host agent's configuration surface, flag and
// env-var driven with a local spool path for offline buffering.
type AgentConfig struct {
	AgentID   string
	ServerURL string // NATS URL (tls://...)
	CertFile  string
	KeyFile   string
	CAFile    string

	// MTLSAutoRotate enables the mTLS manager's periodic expiry check of
	// CertFile and its rotation attempt. Off by default: agents only ever
	// hold the CA's public certificate, not its private key, so rotation
	// fails at the CA-signing step and logs. With a CA key present, rotation
	// writes a new server.crt/server.key pair into the certificate directory
	// and reloads CertFile/KeyFile; the agent's own certificate is not
	// renewed unless those files are server.crt and server.key.
	MTLSAutoRotate    bool
	MTLSRotationDays  int
	MTLSCheckInterval time.Duration

	HostInfoInterval    int
	PackageScanInterval int

	SpoolPath     string
	SpoolMaxBytes int64

	UpdateCheckURL  string
	UpdateBinaryURL string
	UpdateInterval  int
}

func LoadConfig() *AgentConfig {
	cfg := &AgentConfig{}

	flag.StringVar(&cfg.AgentID, "id", getEnv("AGENT_ID", "agent-unknown"), "Unique Agent ID")
	flag.StringVar(&cfg.ServerURL, "server", getEnv("AF_SERVER_URL", "tls://localhost:4222"), "Bus NATS URL")
	flag.StringVar(&cfg.CertFile, "cert", getEnv("AF_CERT_FILE", "./certs/client.crt"), "Client Certificate")
	flag.StringVar(&cfg.KeyFile, "key", getEnv("AF_KEY_FILE", "./certs/client.key"), "Client Key")
	flag.StringVar(&cfg.CAFile, "ca", getEnv("AF_CA_FILE", "./certs/ca.crt"), "CA Certificate")
	flag.BoolVar(&cfg.MTLSAutoRotate, "mtls-auto-rotate", getEnvBool("AF_MTLS_AUTO_ROTATE", false), "Enable periodic mTLS cert rotation")
	flag.IntVar(&cfg.MTLSRotationDays, "mtls-rotation-days", getEnvInt("AF_MTLS_ROTATION_DAYS", 30), "Rotate when fewer than this many days remain")
	flag.IntVar(&cfg.HostInfoInterval, "host-interval", getEnvInt("AF_HOST_INTERVAL", 60), "Host info collection interval (seconds)")
	flag.IntVar(&cfg.PackageScanInterval, "pkg-interval", getEnvInt("AF_PKG_INTERVAL", 3600), "Package inventory scan interval (seconds)")
	flag.StringVar(&cfg.SpoolPath, "spool", getEnv("AF_SPOOL_PATH", "./agent-spool.db"), "Local durable spool file")
	flag.StringVar(&cfg.UpdateCheckURL, "update-url", getEnv("AF_UPDATE_URL", ""), "Self-update check URL (empty disables)")
	flag.StringVar(&cfg.UpdateBinaryURL, "update-binary-url", getEnv("AF_UPDATE_BINARY_URL", ""), "Self-update binary download URL")
	flag.IntVar(&cfg.UpdateInterval, "update-interval", getEnvInt("AF_UPDATE_INTERVAL", 21600), "Self-update check interval (seconds)")

	flag.Parse()

	if cfg.AgentID == "agent-unknown" {
		hostname, _ := os.Hostname()
		cfg.AgentID = "agent-" + hostname
	}

	cfg.SpoolMaxBytes = int64(getEnvInt("AF_SPOOL_MAX_MB", 256)) * 1024 * 1024
	cfg.MTLSCheckInterval = time.Duration(getEnvInt("AF_MTLS_CHECK_INTERVAL_SEC", 3600)) * time.Second

	return cfg
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
