package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/fieldsense/audioingest/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := New("test", 0, handler, logger.Discard())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunReportsListenError(t *testing.T) {
	srv := New("test", 0, http.NotFoundHandler(), logger.Discard())
	srv.httpServer.Addr = "256.0.0.1:bad"

	err := srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error")
}
