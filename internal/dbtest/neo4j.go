package dbtest

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/log"
	neo4jtest "github.com/testcontainers/testcontainers-go/modules/neo4j"
)

// Inspect keeps the container of a failed test running.
var Inspect = flag.Bool("dbtest.inspect", false, "keep test container running for inspection after a failed test completes")

// Neo4jImage is the image of the Neo4j container. Creating databases other than
// the default one needs the enterprise edition.
const Neo4jImage = "docker.io/neo4j:5-enterprise"

// neo4jHTTP serves the Neo4j browser.
const neo4jHTTP = nat.Port("7474/tcp")

// SetupNeo4j runs a Neo4j container for the duration of the test and returns a
// driver connected to it. The test is skipped under -short and otherwise marked
// parallel.
func SetupNeo4j(t *testing.T) neo4j.DriverWithContext {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping container-based test in short mode...")
	}
	t.Parallel()

	ctx := context.Background()
	container, err := neo4jtest.Run(ctx, Neo4jImage,
		testcontainers.WithLogger(log.TestLogger(t)),
		neo4jtest.WithoutAuthentication(),
		neo4jtest.WithAcceptCommercialLicenseAgreement(),
	)
	if err != nil {
		t.Fatal("Failed to run neo4j container:", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Error("Failed to terminate neo4j container:", err)
		}
	})

	boltURL, err := container.BoltUrl(ctx)
	if err != nil {
		t.Fatal("Failed to get bolt url:", err)
	}
	driver, err := neo4j.NewDriverWithContext(boltURL, neo4j.NoAuth())
	if err != nil {
		t.Fatal("Failed to open neo4j driver:", err)
	}
	t.Cleanup(func() {
		if err := driver.Close(ctx); err != nil {
			t.Error("Failed to close neo4j driver:", err)
		}
	})
	if err := verifyConnectivity(t, ctx, driver); err != nil {
		t.Fatalf("Failed to connect to neo4j: %v", err)
	}

	// Registered last, so it runs before the container is terminated.
	t.Cleanup(func() {
		if !t.Failed() || !*Inspect {
			return
		}
		browser, err := container.PortEndpoint(ctx, neo4jHTTP, "http")
		if err != nil {
			t.Log("Failed to get browser endpoint:", err)
		}
		t.Logf("Container %v is kept for inspection (Ctrl+C to terminate)...", container.GetContainerID())
		t.Logf("Browser = %s/browser?preselectAuthMethod=%s&dbms=%s", browser, url.QueryEscape("[NO_AUTH]"), url.QueryEscape(boltURL))
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		defer signal.Stop(c)
		<-c
	})
	return driver
}

// The container may report ready before Bolt accepts connections.
func verifyConnectivity(t *testing.T, ctx context.Context, driver neo4j.DriverWithContext) error {
	t.Helper()
	const attempts = 10
	var err error
	for i := range attempts {
		if err = driver.VerifyConnectivity(ctx); err == nil {
			return nil
		}
		t.Logf("Connectivity check %d/%d failed: %v", i+1, attempts, err)
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return fmt.Errorf("wait for neo4j: %w", ctx.Err())
		}
	}
	return err
}
