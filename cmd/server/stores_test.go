package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/medride/config"
	"github.com/shiva/medride/internal/auth"
	"github.com/shiva/medride/internal/model"
)

func TestOpenStores_Memory(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreMemory}}

	st, err := openStores(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	assert.NotNil(t, st.rides)
	assert.NotNil(t, st.users)
	assert.NotNil(t, st.pricing)
	assert.NotNil(t, st.directory)
	assert.Nil(t, st.pg)
	assert.Nil(t, st.redis)
	assert.Empty(t, st.checks)
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: "cassandra"}}
	_, err := openStores(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestSeedDemoUsers(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreMemory}}
	st, err := openStores(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	issuer := auth.NewIssuer(randomSecret(), "medride", time.Hour)
	authn := auth.NewAuthenticator(issuer, st.users)

	var buf bytes.Buffer
	seedDemoUsers(st.directory, issuer, zerolog.New(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	roles := map[model.Role]bool{}
	for _, line := range lines {
		start := strings.Index(line, `"token":"`)
		require.GreaterOrEqual(t, start, 0, line)
		tok := line[start+len(`"token":"`):]
		tok = tok[:strings.Index(tok, `"`)]

		u, err := authn.Authenticate(context.Background(), tok)
		require.NoError(t, err)
		roles[u.Role] = true
	}
	assert.Len(t, roles, 4)
}

func TestRandomSecret(t *testing.T) {
	a, b := randomSecret(), randomSecret()
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
