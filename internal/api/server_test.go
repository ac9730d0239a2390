package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapwatch/internal/api/handlers"
	"github.com/wonny/gapwatch/internal/dataset"
	"github.com/wonny/gapwatch/pkg/config"
	"github.com/wonny/gapwatch/pkg/logger"
)

func TestServer_ServeAndShutdown(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{
		Port:      "0",
		Env:       "test",
		LogLevel:  "info",
		LogFormat: "json",
		Storage:   config.StorageConfig{Backend: "local"},
		Pipeline:  config.PipelineConfig{UniverseSource: "static", Timezone: "America/New_York"},
	}
	log := logger.NewWithWriter(cfg, &buf)

	reader := &fakeReader{tables: map[string]*dataset.Table{"20250310": sampleTable()}}
	router := NewRouter(RouterDeps{Datasets: handlers.NewDatasetHandler(reader, logger.Nop()), Logger: logger.Nop()})
	srv := New(cfg, log, router, false)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/api/datasets/20250310")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err, "closed server is a clean stop")
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	var entry map[string]interface{}
	require.NoError(t, json.NewDecoder(&buf).Decode(&entry))
	assert.Equal(t, "Serving datasets", entry["message"])
	assert.Equal(t, "api", entry["component"])
	assert.Equal(t, "local", entry["storage"])
	assert.Equal(t, "static", entry["universe"])
	assert.Equal(t, false, entry["with_scheduler"])
}
