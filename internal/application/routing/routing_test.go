package routing

import (
	"os"
	"path/filepath"
	"testing"

	"communities/internal/application/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoutes(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadResolvesAllProducedTypes(t *testing.T) {
	path := writeRoutes(t, `
routes:
  - event_type: message.create
    exchange: notifications
    routing_key: message.created
  - event_type: message.update
    exchange: notifications
    routing_key: message.updated
  - event_type: message.delete
    exchange: notifications
    routing_key: message.deleted
`)

	table, err := Load(path, entity.ProducedEventTypes())
	require.NoError(t, err)

	route, err := table.Resolve(entity.EventMessageCreate)
	require.NoError(t, err)
	assert.Equal(t, "notifications", route.Exchange)
	assert.Equal(t, "message.created", route.RoutingKey)

	route, err = table.Resolve(entity.EventMessageDelete)
	require.NoError(t, err)
	assert.Equal(t, "message.deleted", route.RoutingKey)
}

func TestLoadFailsWhenProducedTypeUncovered(t *testing.T) {
	path := writeRoutes(t, `
routes:
  - event_type: message.create
    exchange: notifications
    routing_key: message.created
`)

	_, err := Load(path, entity.ProducedEventTypes())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnroutableEvent)
}

func TestLoadRejectsDuplicateRules(t *testing.T) {
	path := writeRoutes(t, `
routes:
  - event_type: message.create
    exchange: notifications
    routing_key: message.created
  - event_type: message.create
    exchange: other
    routing_key: other.key
`)

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadRejectsEmptyFields(t *testing.T) {
	path := writeRoutes(t, `
routes:
  - event_type: message.create
    exchange: ""
    routing_key: message.created
`)

	_, err := Load(path, nil)
	require.Error(t, err)
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := writeRoutes(t, `routes: []`)

	_, err := Load(path, nil)
	require.Error(t, err)
}

func TestResolveUnknownType(t *testing.T) {
	path := writeRoutes(t, `
routes:
  - event_type: message.create
    exchange: notifications
    routing_key: message.created
`)

	table, err := Load(path, nil)
	require.NoError(t, err)

	_, err = table.Resolve("message.unknown")
	assert.ErrorIs(t, err, ErrUnroutableEvent)
}

func TestExchangesSortedAndDistinct(t *testing.T) {
	path := writeRoutes(t, `
routes:
  - event_type: message.create
    exchange: zulu
    routing_key: a
  - event_type: message.update
    exchange: alpha
    routing_key: b
  - event_type: message.delete
    exchange: zulu
    routing_key: c
`)

	table, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "zulu"}, table.Exchanges())
}
