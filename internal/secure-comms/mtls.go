package securecomms

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MTLSConfig configures a managed mTLS certificate set.
type MTLSConfig struct {
	CertsDir       string
	ServerCertFile string
	ServerKeyFile  string
	ClientCertFile string
	ClientKeyFile  string
	CACertFile     string
	AutoRotate     bool
	RotationDays   int
	CheckInterval  time.Duration
}

// MTLSManager holds a live tls.Config built from files on disk and
// optionally rotates the leaf certificate before it expires.
type MTLSManager struct {
	config      *MTLSConfig
	certManager *CertManager
	tlsConfig   *tls.Config
	mu          sync.RWMutex
	stopChan    chan struct{}
	log         zerolog.Logger
}

// NewMTLSManager loads the certificate set named in config and, if
// AutoRotate is set, starts a background rotation check. logger may be the
// zero value, in which case rotation logging is silent.
func NewMTLSManager(config *MTLSConfig, logger ...zerolog.Logger) (*MTLSManager, error) {
	var lg zerolog.Logger
	if len(logger) > 0 {
		lg = logger[0]
	}
	lg = lg.With().Str("component", "mtls-manager").Logger()

	certManager, err := NewCertManager(config.CertsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create cert manager: %w", err)
	}

	manager := &MTLSManager{
		config:      config,
		certManager: certManager,
		stopChan:    make(chan struct{}),
		log:         lg,
	}

	if err := manager.reloadTLSConfig(); err != nil {
		return nil, fmt.Errorf("failed to load initial TLS config: %w", err)
	}

	if config.AutoRotate {
		go manager.startAutoRotation()
	}

	return manager, nil
}

// GetTLSConfig returns a clone of the currently loaded TLS configuration.
func (m *MTLSManager) GetTLSConfig() *tls.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tlsConfig.Clone()
}

func (m *MTLSManager) reloadTLSConfig() error {
	certFile := filepath.Join(m.config.CertsDir, m.config.ServerCertFile)
	keyFile := filepath.Join(m.config.CertsDir, m.config.ServerKeyFile)
	caFile := filepath.Join(m.config.CertsDir, m.config.CACertFile)

	tlsConfig, err := m.certManager.LoadTLSConfig(certFile, keyFile, caFile)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.tlsConfig = tlsConfig
	m.mu.Unlock()

	return nil
}

func (m *MTLSManager) startAutoRotation() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.log.Info().Dur("check_interval", m.config.CheckInterval).Msg("mtls auto-rotation started")

	for {
		select {
		case <-ticker.C:
			if err := m.checkAndRotate(); err != nil {
				m.log.Warn().Err(err).Msg("mtls rotation check failed")
			}
		case <-m.stopChan:
			m.log.Info().Msg("mtls auto-rotation stopped")
			return
		}
	}
}

// checkAndRotate checks the certificate named by ServerCertFile and, once
// RotationDays or fewer remain before expiry, issues a new server
// certificate (always written as server.crt/server.key in CertsDir) and
// reloads the configured cert/key files. Callers whose certsDir holds only the
// CA's public certificate (no private key) will see this fail at the
// GenerateServerCert step — rotation requires the signing key.
func (m *MTLSManager) checkAndRotate() error {
	certPath := filepath.Join(m.config.CertsDir, m.config.ServerCertFile)

	timeUntilExpiry, err := m.certManager.CheckCertExpiry(certPath)
	if err != nil {
		return fmt.Errorf("failed to check cert expiry: %w", err)
	}

	daysUntilExpiry := int(timeUntilExpiry.Hours() / 24)
	m.log.Debug().Int("days_until_expiry", daysUntilExpiry).Msg("mtls cert checked")

	if daysUntilExpiry > m.config.RotationDays {
		return nil
	}

	m.log.Info().Int("threshold_days", m.config.RotationDays).Msg("mtls cert rotation triggered")

	certConfig := &CertConfig{
		Organization: "aegisflux-etl",
		CommonName:   "aegisflux-etl-server",
		ValidityDays: 365,
		KeySize:      2048,
	}

	if err := m.certManager.GenerateServerCert(certConfig, []string{"localhost"}, nil); err != nil {
		return fmt.Errorf("failed to rotate server cert: %w", err)
	}

	if err := m.reloadTLSConfig(); err != nil {
		return fmt.Errorf("failed to reload TLS config: %w", err)
	}

	m.log.Info().Msg("mtls cert rotation completed")
	return nil
}

// Stop ends the background rotation loop, if running.
func (m *MTLSManager) Stop() {
	close(m.stopChan)
}

// GetCertificateInfo reports a certificate's remaining lifetime.
func (m *MTLSManager) GetCertificateInfo(certPath string) (map[string]interface{}, error) {
	fullPath := filepath.Join(m.config.CertsDir, certPath)

	timeUntilExpiry, err := m.certManager.CheckCertExpiry(fullPath)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"path":              certPath,
		"days_until_expiry": int(timeUntilExpiry.Hours() / 24),
		"expires_at":        time.Now().Add(timeUntilExpiry).Format(time.RFC3339),
		"valid":             timeUntilExpiry > 0,
	}, nil
}
