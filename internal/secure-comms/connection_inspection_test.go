package securecomms

import (
	"crypto/tls"
	"os"
	"testing"
)

// issueTestBundle generates a CA, server cert, and one client cert under
// dir, returning the paths gen-certs writes them to.
func issueTestBundle(t *testing.T, dir, clientID string) (caPath, serverCertPath, serverKeyPath, clientCertPath, clientKeyPath string) {
	t.Helper()

	cm, err := NewCertManager(dir)
	if err != nil {
		t.Fatalf("NewCertManager failed: %v", err)
	}
	if err := cm.GenerateCA(&CertConfig{Organization: "aegisflux-etl", CommonName: "aegisflux-etl CA", ValidityDays: 3650, KeySize: 2048}); err != nil {
		t.Fatalf("GenerateCA failed: %v", err)
	}
	if err := cm.GenerateServerCert(&CertConfig{Organization: "aegisflux-etl", CommonName: "aegisflux-etl-server", ValidityDays: 365, KeySize: 2048}, []string{"localhost", "127.0.0.1"}, nil); err != nil {
		t.Fatalf("GenerateServerCert failed: %v", err)
	}
	if err := cm.GenerateClientCert(&CertConfig{Organization: "aegisflux-etl", CommonName: clientID, ValidityDays: 365, KeySize: 2048}, clientID); err != nil {
		t.Fatalf("GenerateClientCert failed: %v", err)
	}

	return dir + "/ca.crt", dir + "/server.crt", dir + "/server.key",
		dir + "/client-" + clientID + ".crt", dir + "/client-" + clientID + ".key"
}

// TestConnectionInspection performs a full mTLS handshake between a real
// listener and dialer, then exercises every connection-inspection helper
// against the resulting *tls.Conn / peer certificate.
func TestConnectionInspection(t *testing.T) {
	dir, err := os.MkdirTemp("", "aegisflux-mtls-inspect")
	if err != nil {
		t.Fatalf("mkdtemp failed: %v", err)
	}
	defer os.RemoveAll(dir)

	caPath, serverCertPath, serverKeyPath, clientCertPath, clientKeyPath := issueTestBundle(t, dir, "inspector-client")

	cm, err := NewCertManager(dir)
	if err != nil {
		t.Fatalf("NewCertManager failed: %v", err)
	}
	serverTLSConfig, err := cm.LoadTLSConfig(serverCertPath, serverKeyPath, caPath)
	if err != nil {
		t.Fatalf("LoadTLSConfig (server) failed: %v", err)
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverTLSConfig)
	if err != nil {
		t.Fatalf("tls.Listen failed: %v", err)
	}
	defer ln.Close()

	type serverResult struct {
		commonName string
		info       map[string]interface{}
		verifyErr  error
		err        error
	}
	resultCh := make(chan serverResult, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			resultCh <- serverResult{err: err}
			return
		}
		defer conn.Close()

		tlsConn, ok := conn.(*tls.Conn)
		if !ok {
			resultCh <- serverResult{err: err}
			return
		}

		cn, err := GetCertCommonName(tlsConn)
		if err != nil {
			resultCh <- serverResult{err: err}
			return
		}

		if err := ValidateTLSVersion(tlsConn, tls.VersionTLS12); err != nil {
			resultCh <- serverResult{err: err}
			return
		}

		info := GetTLSConnectionInfo(tlsConn)

		state := tlsConn.ConnectionState()
		var verifyErr error
		if len(state.PeerCertificates) > 0 {
			verifyErr = VerifyClientCertificate(serverTLSConfig, state.PeerCertificates[0])
		}

		resultCh <- serverResult{commonName: cn, info: info, verifyErr: verifyErr}
	}()

	clientCert, err := tls.LoadX509KeyPair(clientCertPath, clientKeyPath)
	if err != nil {
		t.Fatalf("LoadX509KeyPair (client) failed: %v", err)
	}
	caPool, err := LoadCAPool(caPath)
	if err != nil {
		t.Fatalf("LoadCAPool failed: %v", err)
	}

	clientConn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      caPool,
		ServerName:   "localhost",
	})
	if err != nil {
		t.Fatalf("tls.Dial failed: %v", err)
	}
	defer clientConn.Close()

	result := <-resultCh
	if result.err != nil {
		t.Fatalf("server-side inspection failed: %v", result.err)
	}
	if result.commonName != "inspector-client" {
		t.Errorf("GetCertCommonName = %q, want %q", result.commonName, "inspector-client")
	}
	if result.verifyErr != nil {
		t.Errorf("VerifyClientCertificate failed: %v", result.verifyErr)
	}
	if version, _ := result.info["version"].(string); version != "TLS 1.3" {
		t.Errorf("GetTLSConnectionInfo[version] = %q, want TLS 1.3", version)
	}
	if peerCN, _ := result.info["peer_common_name"].(string); peerCN != "inspector-client" {
		t.Errorf("GetTLSConnectionInfo[peer_common_name] = %q, want %q", peerCN, "inspector-client")
	}

	clientState := clientConn.ConnectionState()
	if len(clientState.PeerCertificates) == 0 {
		t.Fatal("client saw no server peer certificate")
	}
	serverCert := clientState.PeerCertificates[0]

	if got := ExtractClientIDFromCert(serverCert); got != "aegisflux-etl-server" {
		t.Errorf("ExtractClientIDFromCert = %q, want %q", got, "aegisflux-etl-server")
	}
	if IsCertExpiringSoon(serverCert, 1) {
		t.Error("freshly issued 365-day cert should not be expiring within 1 day")
	}
	if !IsCertExpiringSoon(serverCert, 10_000) {
		t.Error("365-day cert should read as expiring within a 10000-day threshold")
	}
}
