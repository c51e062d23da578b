// Package updater implements the agent's self-update check and binary
// replacement.
package updater

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"

	"github.com/rs/zerolog"

	securecomms "github.com/sgerhart/aegisflux-etl/internal/secure-comms"
)

// Updater manages the agent's self-update process. When CertFile/KeyFile/
// CAFile are set it fetches updates over the same mTLS material used for
// the bus connection, so an update server can require client certs without
// a second credential to distribute.
type Updater struct {
	CurrentVersion string
	UpdateURL      string
	BinaryURL      string
	CertFile       string
	KeyFile        string
	CAFile         string
	Logger         zerolog.Logger
}

func (u *Updater) httpClient() *http.Client {
	if u.CertFile == "" || u.KeyFile == "" || u.CAFile == "" {
		return http.DefaultClient
	}
	client, err := securecomms.NewMTLSHTTPClient(u.CertFile, u.KeyFile, u.CAFile)
	if err != nil {
		u.Logger.Warn().Err(err).Msg("mtls http client init failed, falling back to plain http")
		return http.DefaultClient
	}
	return client
}

// CheckUpdate reports whether a newer version is available. Left as a stub
// hitting UpdateURL; wiring a real version-comparison scheme is future work.
func (u *Updater) CheckUpdate() (string, bool, error) {
	if u.UpdateURL == "" {
		return "", false, nil
	}
	resp, err := u.httpClient().Get(u.UpdateURL)
	if err != nil {
		return "", false, fmt.Errorf("update check failed: %w", err)
	}
	defer resp.Body.Close()
	return "", false, nil
}

// PerformUpdate downloads the new binary and replaces the running executable.
func (u *Updater) PerformUpdate() error {
	u.Logger.Info().Msg("starting self-update")

	resp, err := u.httpClient().Get(u.BinaryURL)
	if err != nil {
		return fmt.Errorf("failed to download update: %w", err)
	}
	defer resp.Body.Close()

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	tmpPath := exePath + ".new"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp binary: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write binary: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0755); err != nil {
			out.Close()
			return fmt.Errorf("failed to chmod: %w", err)
		}
	}
	out.Close()

	if runtime.GOOS == "windows" {
		oldPath := exePath + ".old"
		os.Remove(oldPath)
		if err := os.Rename(exePath, oldPath); err != nil {
			return fmt.Errorf("windows rename failed: %w", err)
		}
	}

	if err := os.Rename(tmpPath, exePath); err != nil {
		return fmt.Errorf("failed to replace binary: %w", err)
	}

	u.Logger.Info().Msg("update successful, exiting for supervisor restart")
	os.Exit(0)
	return nil
}
