package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuestRoutesServeWithoutDatabase(t *testing.T) {
	server := NewServer(&Config{})
	require.NoError(t, server.InitializeServices())

	ts := httptest.NewServer(server.SetupRoutes())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/v1/guest/sessions", "application/json",
		strings.NewReader(`{"title":"Warmup","category":"technical"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAccountRoutesRequireDatabase(t *testing.T) {
	server := NewServer(&Config{})
	require.NoError(t, server.InitializeServices())

	ts := httptest.NewServer(server.SetupRoutes())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/v1/sessions", "application/json",
		strings.NewReader(`{"title":"Warmup","category":"technical"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
