package batch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringOrArray(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    []string
		wantErr string
	}{
		{name: "single record id", input: "628111", want: []string{"628111"}},
		{name: "array", input: []interface{}{"628111", "628222"}, want: []string{"628111", "628222"}},
		{name: "typed slice", input: []string{"628111", "628222"}, want: []string{"628111", "628222"}},
		{name: "json array string", input: `["628111", "628222", "628333"]`, want: []string{"628111", "628222", "628333"}},
		{name: "json array with padding", input: `  ["628111"]`, want: []string{"628111"}},
		{name: "bracketed but not json", input: `[vip] 628111`, want: []string{`[vip] 628111`}},
		{name: "broken json kept verbatim", input: `[628111`, want: []string{`[628111`}},
		{name: "missing", input: nil, wantErr: "recordIds is required"},
		{name: "empty string", input: "", wantErr: "recordIds cannot be empty"},
		{name: "empty array", input: []interface{}{}, wantErr: "recordIds cannot be empty"},
		{name: "empty json array", input: `[]`, wantErr: "recordIds cannot be empty"},
		{name: "number element", input: []interface{}{"628111", 628222}, wantErr: "recordIds[1] must be a string"},
		{name: "blank element", input: []interface{}{"628111", ""}, wantErr: "recordIds[1] cannot be empty"},
		{name: "wrong type", input: 628111, wantErr: "recordIds must be a string or array of strings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStringOrArray(tt.input, "recordIds")
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize(t *testing.T) {
	br := Summarize([]Result{
		NewSuccessResult("628111", "deleted"),
		NewErrorResult("628222", errors.New("calendar unavailable")),
		NewSuccessResult("628333", "not_linked"),
	})

	assert.Equal(t, 3, br.Total)
	assert.Equal(t, 2, br.Successful)
	assert.Equal(t, 1, br.Failed)
	assert.Len(t, br.Results, 3)
}

func TestFormatResults(t *testing.T) {
	out := FormatResults([]Result{
		NewSuccessResult("628111", map[string]string{"status": "deleted"}),
		NewErrorResult("628222", errors.New("calendar unavailable")),
	})

	var br BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &br))
	assert.Equal(t, 2, br.Total)
	assert.Equal(t, 1, br.Failed)
	assert.Equal(t, StatusError, br.Results[1].Status)
	assert.Equal(t, "calendar unavailable", br.Results[1].Error)
	assert.NotContains(t, out, `"error": ""`)
}

func TestProcessBatch(t *testing.T) {
	fn := func(_ context.Context, id string) (any, error) {
		if id == "628222" {
			return nil, errors.New("event lookup failed")
		}
		return "deleted " + id, nil
	}

	results := ProcessBatch(context.Background(), []string{"628111", "628222", "628333"}, fn)
	require.Len(t, results, 3)

	assert.Equal(t, NewSuccessResult("628111", "deleted 628111"), results[0])
	assert.Equal(t, NewErrorResult("628222", errors.New("event lookup failed")), results[1])
	assert.Equal(t, StatusSuccess, results[2].Status)
}

func TestProcessBatch_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	fn := func(_ context.Context, id string) (any, error) {
		calls++
		cancel()
		return id, nil
	}

	results := ProcessBatch(ctx, []string{"a", "b", "c"}, fn)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StatusSuccess, results[0].Status)
	for _, r := range results[1:] {
		assert.Equal(t, StatusError, r.Status, r.ID)
		assert.Equal(t, context.Canceled.Error(), r.Error, r.ID)
	}
}
