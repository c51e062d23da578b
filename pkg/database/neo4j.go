package database

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig, Neo4j bağlantı ayarlarını içerir.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
}

// Neo4jClient, Neo4j sürücüsünü ve oturum üretimini yönetir.
type Neo4jClient struct {
	driver neo4j.DriverWithContext
	config *Neo4jConfig
}

// NewNeo4jClient, yeni bir Neo4j client oluşturur ve bağlantıyı doğrular.
func NewNeo4jClient(config *Neo4jConfig) (*Neo4jClient, error) {
	driver, err := neo4j.NewDriverWithContext(config.URI, neo4j.BasicAuth(config.Username, config.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("neo4j connectivity check failed: %w", err)
	}

	return &Neo4jClient{driver: driver, config: config}, nil
}

// Session, yeni bir yazma oturumu açar. Çağıran Close etmekle yükümlüdür.
func (n *Neo4jClient) Session(ctx context.Context) neo4j.SessionWithContext {
	return n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
}

// Run, tek bir Cypher ifadesini kendi oturumunda çalıştırır.
func (n *Neo4jClient) Run(ctx context.Context, cypher string, params map[string]any) error {
	session := n.Session(ctx)
	defer session.Close(ctx)

	_, err := session.Run(ctx, cypher, params)
	return err
}

// Close, sürücüyü kapatır.
func (n *Neo4jClient) Close(ctx context.Context) error {
	if n.driver != nil {
		return n.driver.Close(ctx)
	}
	return nil
}

// Health, bağlantının sağlıklı olup olmadığını kontrol eder.
func (n *Neo4jClient) Health(ctx context.Context) (map[string]string, error) {
	if err := n.driver.VerifyConnectivity(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"status": "healthy"}, nil
}
