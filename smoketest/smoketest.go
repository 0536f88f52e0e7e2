// Package smoketest checks that a cellgrid server indexes and queries
// entities correctly, end to end over its WebSocket endpoint.
package smoketest

import (
	"context"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aukilabs/cellgrid/geometry"
	cghttp "github.com/aukilabs/cellgrid/http"
	"github.com/aukilabs/cellgrid/protocol"
	"github.com/aukilabs/cellgrid/scenario"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	// ErrTypeQueryMismatch is the error type returned when a region query
	// does not return the expected entities.
	ErrTypeQueryMismatch = "smoke_test_query_mismatch"

	defaultTimeout    = 10 * time.Second
	frameWaitInterval = 20 * time.Millisecond
)

// Request is the body of a smoke test request.
type Request struct {
	// The endpoint to test. The server own endpoint is tested when empty.
	Endpoint string        `json:"endpoint,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// Result is the outcome of a smoke test.
type Result struct {
	FromEndpoint    string  `json:"from_endpoint"`
	ToEndpoint      string  `json:"to_endpoint"`
	Status          string  `json:"status"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Frame           uint64  `json:"frame,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type Options struct {
	// The endpoint of the server running the smoke test.
	Endpoint  string
	UserAgent string
}

// HandleSmokeTest returns an HTTP handler that runs a smoke test against the
// endpoint given in the request and writes its result.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			cghttp.InternalServerError(w, errors.New("reading body failed").Wrap(err))
			return
		}

		var req Request
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				cghttp.BadRequest(w, errors.New("invalid smoke test request").Wrap(err))
				return
			}
		}

		if req.Endpoint == "" {
			req.Endpoint = opts.Endpoint
		}
		if req.Timeout <= 0 {
			req.Timeout = defaultTimeout
		}

		runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
		defer cancel()

		res, err := Run(runCtx, RunOptions{
			FromEndpoint: opts.Endpoint,
			ToEndpoint:   req.Endpoint,
			UserAgent:    opts.UserAgent,
		})
		if err != nil {
			logs.WithTag("from_endpoint", opts.Endpoint).
				WithTag("to_endpoint", req.Endpoint).
				Warn(err)
		}

		cghttp.JSON(w, http.StatusOK, res)
	}
}

type RunOptions struct {
	FromEndpoint string
	ToEndpoint   string
	UserAgent    string
}

// Run connects to a cellgrid endpoint, creates a region and adds two
// entities to it, one of them spanning four cells. It then queries the
// region until both entities are indexed and checks that each one is
// returned exactly once.
func Run(ctx context.Context, opts RunOptions) (Result, error) {
	res := Result{
		FromEndpoint: opts.FromEndpoint,
		ToEndpoint:   opts.ToEndpoint,
		Status:       StatusFailed,
	}

	frame, latency, err := run(ctx, opts)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	res.Status = StatusSuccess
	res.Frame = frame
	res.LatencyMilliSec = float64(latency) / float64(time.Millisecond)
	return res, nil
}

func run(ctx context.Context, opts RunOptions) (uint64, time.Duration, error) {
	conn, err := dial(opts.ToEndpoint, opts.UserAgent)
	if err != nil {
		return 0, 0, err
	}
	defer conn.Close()

	var requestID uint32
	nextRequestID := func() uint32 {
		requestID++
		return requestID
	}

	latency, err := ping(ctx, conn, nextRequestID())
	if err != nil {
		return 0, 0, err
	}

	var join protocol.RegionJoinResponse
	var spanning, small protocol.EntityAddResponse

	joinID := nextRequestID()
	spanningID := nextRequestID()
	smallID := nextRequestID()

	err = scenario.NewScenario(conn).
		Send(func() protocol.Message {
			return &protocol.RegionJoinRequest{
				Header:    protocol.NewHeader(protocol.MsgTypeRegionJoinRequest),
				RequestID: joinID,
			}
		}).
		Receive(
			scenario.FilterByType(protocol.MsgTypeRegionJoinResponse),
			scenario.FilterByRequestID(joinID),
			scenario.DataTo(&join),
		).
		Send(func() protocol.Message {
			// Centered on the corner shared by the first four cells.
			cell := join.CellSize
			return &protocol.EntityAddRequest{
				Header:    protocol.NewHeader(protocol.MsgTypeEntityAddRequest),
				RequestID: spanningID,
				Kind:      "smoke_test",
				Bounds:    geometry.NewRectangle(cell.Width/2, cell.Height/2, cell.Width, cell.Height),
			}
		}).
		Receive(
			scenario.FilterByType(protocol.MsgTypeEntityAddResponse),
			scenario.FilterByRequestID(spanningID),
			scenario.DataTo(&spanning),
		).
		Send(func() protocol.Message {
			return &protocol.EntityAddRequest{
				Header:    protocol.NewHeader(protocol.MsgTypeEntityAddRequest),
				RequestID: smallID,
				Kind:      "smoke_test",
				Bounds:    geometry.NewRectangle(0, 0, 1, 1),
			}
		}).
		Receive(
			scenario.FilterByType(protocol.MsgTypeEntityAddResponse),
			scenario.FilterByRequestID(smallID),
			scenario.DataTo(&small),
		).
		Run(ctx)
	if err != nil {
		return 0, 0, errors.New("preparing smoke test region failed").Wrap(err)
	}

	cell := join.CellSize
	bounds := geometry.NewRectangle(0, 0, cell.Width*2, cell.Height*2)
	expected := []uint32{spanning.EntityID, small.EntityID}

	for {
		res, err := queryRegion(ctx, conn, nextRequestID(), bounds)
		if err != nil {
			return 0, 0, err
		}

		if len(res.EntityIDs) >= len(expected) {
			return res.Frame, latency, checkEntityIDs(expected, res.EntityIDs)
		}

		select {
		case <-ctx.Done():
			return 0, 0, errors.New("waiting for indexed entities failed").Wrap(ctx.Err())
		case <-time.After(frameWaitInterval):
		}
	}
}

func dial(endpoint, userAgent string) (*websocket.Conn, error) {
	url := strings.Replace(endpoint, "http", "ws", 1)

	config, err := websocket.NewConfig(url, endpoint)
	if err != nil {
		return nil, errors.New("creating websocket config failed").
			WithTag("endpoint", endpoint).
			Wrap(err)
	}
	if userAgent != "" {
		config.Header.Set("User-Agent", userAgent)
	}

	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, errors.New("dialing websocket failed").
			WithTag("endpoint", endpoint).
			Wrap(err)
	}
	return conn, nil
}

func ping(ctx context.Context, conn *websocket.Conn, requestID uint32) (time.Duration, error) {
	var start time.Time
	var latency time.Duration

	err := scenario.NewScenario(conn).
		Send(func() protocol.Message {
			start = time.Now()
			return &protocol.Request{
				Header:    protocol.NewHeader(protocol.MsgTypePingRequest),
				RequestID: requestID,
			}
		}).
		Receive(
			scenario.FilterByType(protocol.MsgTypePingResponse),
			scenario.FilterByRequestID(requestID),
			func(protocol.Msg) error {
				latency = time.Since(start)
				return nil
			},
		).
		Run(ctx)
	if err != nil {
		return 0, errors.New("ping failed").Wrap(err)
	}
	return latency, nil
}

func queryRegion(ctx context.Context, conn *websocket.Conn, requestID uint32, bounds geometry.Rectangle) (protocol.RegionQueryResponse, error) {
	var res protocol.RegionQueryResponse

	err := scenario.NewScenario(conn).
		Send(func() protocol.Message {
			return &protocol.RegionQueryRequest{
				Header:    protocol.NewHeader(protocol.MsgTypeRegionQueryRequest),
				RequestID: requestID,
				Bounds:    bounds,
			}
		}).
		Receive(
			scenario.FilterByType(protocol.MsgTypeRegionQueryResponse),
			scenario.FilterByRequestID(requestID),
			scenario.DataTo(&res),
		).
		Run(ctx)
	if err != nil {
		return res, errors.New("region query failed").Wrap(err)
	}
	return res, nil
}

// checkEntityIDs returns an error when ids does not contain every expected
// id exactly once.
func checkEntityIDs(expected, ids []uint32) error {
	got := slices.Clone(ids)
	slices.Sort(got)

	want := slices.Clone(expected)
	slices.Sort(want)

	if !slices.Equal(got, want) {
		return errors.New("unexpected region query result").
			WithType(ErrTypeQueryMismatch).
			WithTag("expected", want).
			WithTag("got", got)
	}
	return nil
}
