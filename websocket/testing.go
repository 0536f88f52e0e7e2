package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/cellgrid/featureflag"
	"github.com/aukilabs/cellgrid/geometry"
	"github.com/aukilabs/cellgrid/models"
	"github.com/aukilabs/cellgrid/modules"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// NewTestingEnv creates a testing environment to unit test handlers and
// modules. It returns two clients connected to a server that handles each
// connection with a handler created by newHandler.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	clientA, clientB, close := newTestingEnv(t, newHandler)
	return clientA, clientB, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		close()
	}
}

func newTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	newConn := func() *websocket.Conn {
		config, err := websocket.NewConfig(
			strings.ReplaceAll(server.URL, "http://", "ws://"),
			"http://localhost",
		)
		if err != nil {
			t.Fatalf("error initializing web socket: %s", err)
		}

		config.Header.Set("User-Agent", "ted")
		config.Header.Set(headerXForwardedFor, "192.0.0.0")
		config.Header.Set(HeaderClientID, uuid.NewString())

		conn, err := websocket.DialConfig(config)
		if err != nil {
			t.Fatalf("error dialing web socket: %s", err)
		}

		return conn
	}

	clientA := newConn()
	clientB := newConn()

	return clientA, clientB, func() {
		clientA.Close()
		clientB.Close()
		server.Close()
	}
}

// testPresets is a 4x4 cells default preset plus a larger named one.
func testPresets() models.RegionPresets {
	return models.RegionPresets{
		models.DefaultPresetName: models.NewRegionPreset(
			geometry.NewSize(64, 64),
			geometry.NewSize(16, 16),
		),
		"large": models.NewRegionPreset(
			geometry.NewSize(1024, 1024),
			geometry.NewSize(64, 64),
		),
	}
}

type testHandlerOptions struct {
	featureFlags []string
	idleTimeout  time.Duration
}

func newTestHandler(newModule ...func() modules.Module) func() Handler {
	return newTestHandlerWithOptions(testHandlerOptions{}, newModule...)
}

func newTestHandlerWithOptions(opts testHandlerOptions, newModule ...func() modules.Module) func() Handler {
	regionStore := &models.RegionStore{
		ServerID: "test",
	}
	presets := testPresets()
	flags := featureflag.New(opts.featureFlags)

	idleTimeout := opts.idleTimeout
	if idleTimeout == 0 {
		idleTimeout = time.Minute
	}

	return func() Handler {
		modules := make([]modules.Module, len(newModule))
		for i, nm := range newModule {
			modules[i] = nm()
		}

		var h Handler = &RealtimeHandler{
			ClientSyncClockInterval: time.Millisecond * 250,
			ClientIdleTimeout:       idleTimeout,
			FrameDuration:           time.Millisecond * 10,
			Regions:                 regionStore,
			Presets:                 presets,
			Modules:                 modules,
			FeatureFlags:            flags,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "https://cellgrid-test.com")
		return h
	}
}
