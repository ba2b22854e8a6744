package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mohans/taskx"
	"github.com/mohans/taskx/backend"
	"github.com/mohans/taskx/backend/memq"
	"github.com/mohans/taskx/codec"
)

func newTestServer(t *testing.T) (*httptest.Server, backend.Adapter, *taskx.SQLStore) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := taskx.NewSQLStore(db)
	require.NoError(t, store.Migrate(context.Background()))

	adapter := memq.New()
	s := NewServer(&Options{Store: store}, adapter)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, adapter, store
}

func postItem(t *testing.T, ts *httptest.Server, queue string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/v1/queues/"+queue+"/items", "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSubmitAndExecute(t *testing.T) {
	ts, adapter, store := newTestServer(t)

	args, err := codec.Default.EncodeAll([]any{2, "x"})
	require.NoError(t, err)
	resp := postItem(t, ts, "mail", SubmitItemBody{Callable: "mail.send", Args: args})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created SubmitItemResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	// queue depth
	qr, err := http.Get(ts.URL + "/api/v1/queues/mail")
	require.NoError(t, err)
	defer qr.Body.Close()
	var depth GetQueueResponse
	require.NoError(t, json.NewDecoder(qr.Body).Decode(&depth))
	assert.Equal(t, GetQueueResponse{Queue: "mail", Pending: 1}, depth)

	// a consumer picks it up
	var gotN int
	var gotS string
	registry := taskx.NewRegistry()
	registry.MustRegister("mail.send", func(n int, s string) {
		gotN, gotS = n, s
	})
	q := taskx.New(adapter, registry, &taskx.Options{Queue: "mail", Store: store, WaitTimeout: time.Second})
	out, err := q.ExecuteNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, taskx.OutcomeSucceeded, out.Kind, out.Err)
	assert.Equal(t, 2, gotN)
	assert.Equal(t, "x", gotS)

	ir, err := http.Get(ts.URL + "/api/v1/items/" + created.ID)
	require.NoError(t, err)
	defer ir.Body.Close()
	require.Equal(t, http.StatusOK, ir.StatusCode)
	var info ItemInfo
	require.NoError(t, json.NewDecoder(ir.Body).Decode(&info))
	assert.Equal(t, created.ID, info.ID)
	assert.Equal(t, "mail.send", info.Callable)
	assert.Equal(t, string(taskx.StatusCompleted), info.Status)
	assert.NotNil(t, info.FinishedAt)
}

func TestSubmitCorruptArgument(t *testing.T) {
	ts, adapter, _ := newTestServer(t)

	resp := postItem(t, ts, "mail", SubmitItemBody{
		Callable: "mail.send",
		Args:     []codec.Value{{Tag: codec.TagInteger, Payload: "twelve"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	n, err := adapter.Len(context.Background(), "mail")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmitRejectsBadBodies(t *testing.T) {
	ts, adapter, _ := newTestServer(t)

	for name, body := range map[string]string{
		"unknown tag": `{"callable":"mail.send","args":[{"t":"bogus","p":"1"}]}`,
		"not json":    `{"callable":`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/v1/queues/mail/items", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	n, err := adapter.Len(context.Background(), "mail")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmitMissingCallable(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postItem(t, ts, "mail", SubmitItemBody{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownItem(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/items/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
