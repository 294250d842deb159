package state

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"catalogsync-backend/lib/sqliteutil"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestLibsqlServer(t *testing.T) {
	skipUnlessIntegration(t)

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "ghcr.io/tursodatabase/libsql-server:latest",
			ExposedPorts: []string{"8080/tcp"},
			WaitingFor:   wait.ForListeningPort("8080/tcp"),
		},
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, container.Terminate(context.Background()))
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "8080/tcp")
	require.NoError(t, err)

	store, err := OpenSQLite(ctx, sqliteutil.Config{Url: fmt.Sprintf("http://%s:%s", host, port.Port())})
	require.NoError(t, err)
	defer store.Close()

	testStore(t, store)
}
