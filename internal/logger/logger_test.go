package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	// Save original logger to restore later
	originalLog := log
	defer func() { log = originalLog }()

	t.Run("Production", func(t *testing.T) {
		Init("production")
		assert.NotNil(t, log)
	})

	t.Run("Development", func(t *testing.T) {
		Init("development")
		assert.NotNil(t, log)
	})
}

func TestL(t *testing.T) {
	originalLog := log
	defer func() { log = originalLog }()

	// Force nil to test lazy initialization
	log = nil
	os.Setenv("APP_ENV", "test")

	l := L()
	assert.NotNil(t, l)
	assert.NotNil(t, log)
}

func TestReplace(t *testing.T) {
	originalLog := log
	defer func() { log = originalLog }()

	nop := zap.NewNop()
	restore := Replace(nop)
	assert.Same(t, nop, L())

	restore()
	assert.Same(t, originalLog, log)
}

func TestContextFunctions(t *testing.T) {
	ctx := context.Background()

	t.Run("RequestID", func(t *testing.T) {
		ctxWithID := WithRequestID(ctx, "req-1")
		assert.Equal(t, "req-1", RequestIDFrom(ctxWithID))
		assert.Equal(t, "", RequestIDFrom(ctx))
	})

	t.Run("OrderID", func(t *testing.T) {
		ctxWithID := WithOrderID(ctx, "ord-9")
		assert.Equal(t, "ord-9", OrderIDFrom(ctxWithID))
		assert.Equal(t, "", OrderIDFrom(ctx))
	})
}

func TestFromCtx(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	defer Replace(zap.New(core))()

	t.Run("WithIDs", func(t *testing.T) {
		ctx := WithOrderID(WithRequestID(context.Background(), "req-abc-123"), "ord-1")

		FromCtx(ctx).Info("test message with id")

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		fields := logs[0].ContextMap()
		assert.Equal(t, "req-abc-123", fields["request_id"])
		assert.Equal(t, "ord-1", fields["order_id"])
	})

	t.Run("WithoutIDs", func(t *testing.T) {
		FromCtx(context.Background()).Info("test message without id")

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		_, ok := logs[0].ContextMap()["request_id"]
		assert.False(t, ok)
	})
}

func TestSync(t *testing.T) {
	assert.NotPanics(t, func() {
		Sync()
	})
}

func TestTransport(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	defer Replace(zap.New(core))()

	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{}}

	t.Run("Generates ID when missing", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/orders", nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.NotEmpty(t, seen)
		assert.Empty(t, req.Header.Get("X-Request-ID"), "caller request must not be mutated")

		logs := observed.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, "outbound request", logs[0].Message)
		assert.Equal(t, "/orders", logs[0].ContextMap()["path"])
		assert.EqualValues(t, http.StatusCreated, logs[0].ContextMap()["status"])
	})

	t.Run("Uses context ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "ctx-id")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, "ctx-id", seen)
		observed.TakeAll()
	})

	t.Run("Logs transport failure", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:1", nil)
		require.NoError(t, err)

		_, err = client.Do(req)
		assert.Error(t, err)

		logs := observed.FilterMessage("outbound request failed").TakeAll()
		assert.Len(t, logs, 1)
	})
}
