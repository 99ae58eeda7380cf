package sync_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/milestonesync/internal/calendar"
	"github.com/teemow/milestonesync/internal/records"
	"github.com/teemow/milestonesync/internal/reminder"
	"github.com/teemow/milestonesync/internal/server"
	"github.com/teemow/milestonesync/internal/syncer"
	"github.com/teemow/milestonesync/internal/tools/batch"
)

var wib = time.FixedZone("WIB", 7*3600)

// memoryCalendar keeps events in a map keyed by id.
type memoryCalendar struct {
	mu     sync.Mutex
	events map[string]calendar.EventSpec
	nextID int
}

func newMemoryCalendar() *memoryCalendar {
	return &memoryCalendar{events: make(map[string]calendar.EventSpec)}
}

func (m *memoryCalendar) CreateEvent(_ context.Context, spec calendar.EventSpec) (*calendar.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("evt-%d", m.nextID)
	m.events[id] = spec
	return &calendar.Event{ID: id, Title: spec.Title, Start: spec.Start, End: spec.End}, nil
}

func (m *memoryCalendar) UpdateEvent(_ context.Context, id string, patch calendar.EventPatch) (*calendar.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.events[id]
	if !ok {
		return nil, calendar.ErrNotFound
	}
	if patch.Start != nil {
		spec.End = patch.Start.Add(spec.End.Sub(spec.Start))
		spec.Start = *patch.Start
	}
	m.events[id] = spec
	return &calendar.Event{ID: id, Title: spec.Title, Start: spec.Start, End: spec.End}, nil
}

func (m *memoryCalendar) DeleteEvent(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[id]
	delete(m.events, id)
	return ok, nil
}

func (m *memoryCalendar) CheckStatus(_ context.Context, id string, lastKnownStart time.Time) (calendar.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.events[id]
	if !ok {
		return calendar.Status{}, nil
	}
	start := spec.Start
	return calendar.Status{Exists: true, Modified: !start.Equal(lastKnownStart), CurrentStart: &start}, nil
}

func (m *memoryCalendar) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func newTestContext(t *testing.T, cal *memoryCalendar) (*server.ServerContext, *records.MemoryStore) {
	t.Helper()
	store := records.NewMemoryStore()
	orch, err := syncer.New(store, cal)
	require.NoError(t, err)
	sched, err := reminder.New(store, nil, reminder.WithDisabled(nil))
	require.NoError(t, err)

	sc, err := server.NewServerContext(context.Background(), server.Components{
		Orchestrator: orch,
		Scheduler:    sched,
		Store:        store,
		Location:     wib,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc, store
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

func TestRegisterSyncTools(t *testing.T) {
	writeTools := []string{
		"sync_push_pending",
		"sync_pull_drift",
		"sync_push_flow",
		"sync_reschedule_flow",
		"sync_delete_flow",
	}

	t.Run("read only", func(t *testing.T) {
		s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))
		sc, _ := newTestContext(t, newMemoryCalendar())
		require.NoError(t, RegisterSyncTools(s, sc, true))

		tools := s.ListTools()
		assert.Contains(t, tools, "records_list")
		for _, name := range writeTools {
			assert.NotContains(t, tools, name)
		}
	})

	t.Run("writable", func(t *testing.T) {
		s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithToolCapabilities(true))
		sc, _ := newTestContext(t, newMemoryCalendar())
		require.NoError(t, RegisterSyncTools(s, sc, false))

		tools := s.ListTools()
		assert.Contains(t, tools, "records_list")
		for _, name := range writeTools {
			assert.Contains(t, tools, name)
		}
	})
}

func TestHandlePushFlow(t *testing.T) {
	cal := newMemoryCalendar()
	sc, store := newTestContext(t, cal)
	ctx := context.Background()

	res, err := handlePushFlow(ctx, callRequest(map[string]interface{}{
		"recordId":        "6281234",
		"flow":            "meeting",
		"when":            "2026-05-02T14:30",
		"notes":           "bring the contract draft",
		"durationMinutes": float64(90),
		"attendees":       "pic@example.com, ops@example.com",
	}), sc)
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var pushed syncer.PushResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &pushed))
	assert.Equal(t, syncer.StatusCreated, pushed.Status)
	assert.Equal(t, "evt-1", pushed.EventID)

	spec := cal.events["evt-1"]
	assert.True(t, spec.Start.Equal(time.Date(2026, 5, 2, 14, 30, 0, 0, wib)))
	assert.Equal(t, 90*time.Minute, spec.End.Sub(spec.Start))
	assert.Equal(t, []string{"pic@example.com", "ops@example.com"}, spec.Attendees)

	rec, err := store.GetOrCreate(ctx, "6281234")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", rec.Meeting.EventID())
}

func TestHandlePushFlow_InvalidArguments(t *testing.T) {
	sc, _ := newTestContext(t, newMemoryCalendar())

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{
			name: "missing record",
			args: map[string]interface{}{"flow": "meeting", "when": "2026-05-02T14:30"},
			want: "recordId is required",
		},
		{
			name: "unknown flow",
			args: map[string]interface{}{"recordId": "r1", "flow": "party", "when": "2026-05-02T14:30"},
			want: "party",
		},
		{
			name: "bad time",
			args: map[string]interface{}{"recordId": "r1", "flow": "meeting", "when": "tomorrow"},
			want: "invalid when",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := handlePushFlow(context.Background(), callRequest(tt.args), sc)
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res), tt.want)
		})
	}
}

func TestHandleRescheduleFlow(t *testing.T) {
	cal := newMemoryCalendar()
	sc, store := newTestContext(t, cal)
	ctx := context.Background()

	_, err := sc.Orchestrator().PushFlow(ctx, "r1", records.FlowEventDay, time.Date(2026, 5, 8, 19, 0, 0, 0, wib), syncer.PushOptions{})
	require.NoError(t, err)

	res, err := handleRescheduleFlow(ctx, callRequest(map[string]interface{}{
		"recordId": "r1",
		"flow":     "eventDay",
		"when":     "2026-05-09T19:00:00+07:00",
	}), sc)
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	assert.Contains(t, resultText(t, res), syncer.StatusUpdated)

	rec, err := store.GetOrCreate(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, rec.EventDay.ScheduledAt)
	assert.True(t, rec.EventDay.ScheduledAt.Equal(time.Date(2026, 5, 9, 19, 0, 0, 0, wib)))
}

func TestHandleDeleteFlow(t *testing.T) {
	cal := newMemoryCalendar()
	sc, store := newTestContext(t, cal)
	ctx := context.Background()

	_, err := sc.Orchestrator().PushFlow(ctx, "r1", records.FlowTicketSale, time.Date(2026, 5, 4, 10, 0, 0, 0, wib), syncer.PushOptions{})
	require.NoError(t, err)

	res, err := handleDeleteFlow(ctx, callRequest(map[string]interface{}{
		"recordIds": []interface{}{"r1", "r2"},
		"flow":      "ticketSale",
	}), sc)
	require.NoError(t, err)

	var summary batch.BatchResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Successful)
	assert.Contains(t, resultText(t, res), syncer.StatusDeleted)
	assert.Contains(t, resultText(t, res), syncer.StatusNotLinked)
	assert.Equal(t, 0, cal.count())

	rec, err := store.GetOrCreate(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, rec.TicketSale.Synced())
}

func TestHandlePushPendingAndPullDrift(t *testing.T) {
	cal := newMemoryCalendar()
	sc, store := newTestContext(t, cal)
	ctx := context.Background()

	when := time.Date(2026, 5, 8, 19, 0, 0, 0, wib)
	_, err := store.GetOrCreate(ctx, "r1")
	require.NoError(t, err)
	_, err = store.Update(ctx, "r1", records.Reschedule(records.FlowEventDay, when))
	require.NoError(t, err)

	res, err := handlePushPending(ctx, callRequest(nil), sc)
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	assert.Equal(t, 1, cal.count())

	res, err = handlePullDrift(ctx, callRequest(nil), sc)
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	scans := sc.LastScans()
	require.Len(t, scans, 2)
	assert.Equal(t, 1, scans[0].Counts["created"])
	assert.Equal(t, 1, scans[1].Counts["checked"])
}

func TestHandleListRecords(t *testing.T) {
	sc, store := newTestContext(t, newMemoryCalendar())
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "idle")
	require.NoError(t, err)
	_, err = store.GetOrCreate(ctx, "pending")
	require.NoError(t, err)
	_, err = store.Update(ctx, "pending", records.Reschedule(records.FlowMeeting, time.Date(2026, 5, 2, 14, 30, 0, 0, wib)))
	require.NoError(t, err)

	res, err := handleListRecords(ctx, callRequest(nil), sc)
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"idle"`)
	assert.Contains(t, resultText(t, res), `"pending"`)

	res, err = handleListRecords(ctx, callRequest(map[string]interface{}{"pendingOnly": true}), sc)
	require.NoError(t, err)
	assert.NotContains(t, resultText(t, res), `"idle"`)
	assert.Contains(t, resultText(t, res), `"pending"`)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, splitList(" a@x.io ,, b@x.io "))
}
