package calendar_tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/milestonesync/internal/calendar"
	"github.com/teemow/milestonesync/internal/credentials"
	"github.com/teemow/milestonesync/internal/records"
	"github.com/teemow/milestonesync/internal/reminder"
	"github.com/teemow/milestonesync/internal/server"
	"github.com/teemow/milestonesync/internal/syncer"
)

type staticCreds struct {
	status credentials.Status
}

func (staticCreds) Client(context.Context) (*http.Client, error) { return &http.Client{}, nil }
func (staticCreds) Refresh(context.Context) error                { return nil }
func (c staticCreds) Status() credentials.Status                 { return c.status }

func newTestContext(t *testing.T, handler http.HandlerFunc, creds staticCreds, disabled error) *server.ServerContext {
	t.Helper()
	store := records.NewMemoryStore()

	var gw *calendar.Gateway
	if disabled == nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		var err error
		gw, err = calendar.NewGateway(creds, calendar.GatewayConfig{
			Location: time.FixedZone("WIB", 7*3600),
			Endpoint: srv.URL + "/",
		})
		require.NoError(t, err)
	}

	orch, err := syncer.New(store, nil, syncer.WithDisabled(nil))
	require.NoError(t, err)
	sched, err := reminder.New(store, nil, reminder.WithDisabled(nil))
	require.NoError(t, err)

	components := server.Components{
		Gateway:      gw,
		Orchestrator: orch,
		Scheduler:    sched,
		Store:        store,
		Disabled:     disabled,
	}
	if disabled == nil {
		components.Credentials = creds
	}
	sc, err := server.NewServerContext(context.Background(), components)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func eventsHandler(t *testing.T, wantMax string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wantMax != "" {
			assert.Equal(t, wantMax, r.URL.Query().Get("maxResults"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"items":[{
			"id":"evt-1",
			"summary":"Event Day: Jazz Night",
			"location":"Istora Senayan",
			"start":{"dateTime":"2026-05-08T19:00:00+07:00"},
			"end":{"dateTime":"2026-05-08T23:00:00+07:00"},
			"attendees":[{"email":"pic@example.com"}]
		}]}`)
	}
}

func TestRegisterCalendarTools(t *testing.T) {
	s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))
	sc := newTestContext(t, eventsHandler(t, ""), staticCreds{}, nil)
	require.NoError(t, RegisterCalendarTools(s, sc))

	tools := s.ListTools()
	for _, name := range []string{"credential_status", "calendar_probe", "calendar_list_upcoming"} {
		assert.Contains(t, tools, name)
	}
}

func TestHandleCredentialStatus(t *testing.T) {
	creds := staticCreds{status: credentials.Status{State: "requires_reauthorization", RequiresReauthorization: true}}
	sc := newTestContext(t, eventsHandler(t, ""), creds, nil)

	res, err := handleCredentialStatus(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, `"requiresReauthorization": true`)
	assert.Contains(t, text, "milestonesync auth")
}

func TestHandleCredentialStatus_Disabled(t *testing.T) {
	sc := newTestContext(t, nil, staticCreds{}, credentials.ErrDisabled)

	res, err := handleCredentialStatus(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, credentials.ErrDisabled.Error())
	assert.NotContains(t, text, `"credentials"`)
}

func TestHandleProbe(t *testing.T) {
	sc := newTestContext(t, eventsHandler(t, "1"), staticCreds{}, nil)
	res, err := handleProbe(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Calendar API reachable", resultText(t, res))
}

func TestHandleProbe_Failure(t *testing.T) {
	sc := newTestContext(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, `{"error":{"code":500,"message":"backend error"}}`)
	}, staticCreds{}, nil)

	res, err := handleProbe(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Calendar probe failed")
}

func TestHandleProbe_Disabled(t *testing.T) {
	sc := newTestContext(t, nil, staticCreds{}, credentials.ErrDisabled)
	res, err := handleProbe(context.Background(), callRequest(nil), sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Calendar integration is disabled")
}

func TestHandleListUpcoming(t *testing.T) {
	sc := newTestContext(t, eventsHandler(t, "50"), staticCreds{}, nil)

	res, err := handleListUpcoming(context.Background(), callRequest(map[string]interface{}{
		"maxResults": float64(500),
		"days":       float64(14),
	}), sc)
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "Found 1 events")
	assert.Contains(t, text, "1. Event Day: Jazz Night")
	assert.Contains(t, text, "Start: 2026-05-08T19:00:00+07:00")
	assert.Contains(t, text, "Location: Istora Senayan")
	assert.Contains(t, text, "Attendees: 1")
}
