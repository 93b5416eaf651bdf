package redemption

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devfest/internal/draw"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second)
}

func TestListRewards(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/organizers/rewards", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
			{"id":1,"title":"T-shirt","redemption_type":"instant","stock":10},
			{"id":2,"title":"Sticker","redemption_type":"points","stock":99}
		]`))
	})

	rewards, err := c.ListRewards(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, int64(1), rewards[0].ID)
	assert.Equal(t, "T-shirt", rewards[0].Title)
}

func TestListRedemptions(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/organizers/rewards/7/redemptions", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id":10,"user_id":1,"user_name":"Alice","redemption_code":"R-10","status":"completed"},
			{"id":11,"user_id":2,"user_name":"Bob","redemption_code":"R-11","status":"pending"},
			{"id":12,"user_id":3,"user_name":"Cici","redemption_code":"R-12","status":"completed"}
		]`))
	})

	redemptions, err := c.ListRedemptions(context.Background(), "tok", "7")
	require.NoError(t, err)
	require.Len(t, redemptions, 2)

	entries := ToEntries(redemptions)
	assert.Equal(t, []draw.Entry{
		{ID: "10", DisplayName: "Alice", Code: "R-10"},
		{ID: "12", DisplayName: "Cici", Code: "R-12"},
	}, entries)
}

func TestNullListIsEmpty(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	redemptions, err := c.ListRedemptions(context.Background(), "tok", "7")
	require.NoError(t, err)
	assert.Empty(t, redemptions)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"expired"}`, want: ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, body: `{}`, want: ErrRemote},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, want: ErrRemote},
		{name: "bad json", status: http.StatusOK, body: `{"not":"a list"`, want: ErrRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.ListRewards(context.Background(), "tok")
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := NewClient(srv.URL+"/", time.Second)
	srv.Close()

	_, err := c.ListRewards(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrRemote)
}
