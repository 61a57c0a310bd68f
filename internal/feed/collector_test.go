package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestCollector_FetchOK(t *testing.T) {
	s := newPostsServer(t, http.StatusOK, `[{"userId":1,"id":1,"title":"a","body":"b"},{"userId":2,"id":7,"title":"c","body":"d"}]`)

	c := NewHTTPCollector(s.URL, 2*time.Second)
	posts, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, 7, posts[1].ID)
	assert.Equal(t, 2, posts[1].UserID)
}

func TestCollector_Timeout(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(750 * time.Millisecond) // exceed client timeout
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer s.Close()

	c := NewHTTPCollector(s.URL, 200*time.Millisecond)
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteFetch))
}

func TestCollector_InvalidStatus(t *testing.T) {
	s := newPostsServer(t, http.StatusBadGateway, "upstream err")

	c := NewHTTPCollector(s.URL, 2*time.Second)
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindRemoteFetch, KindOf(err))
	assert.Contains(t, err.Error(), "502")
}

func TestCollector_InvalidJSON(t *testing.T) {
	s := newPostsServer(t, http.StatusOK, `{"not":"an array"}`)

	c := NewHTTPCollector(s.URL, 2*time.Second)
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindRemoteFetch, KindOf(err))
}

func TestCollector_SchemaRejectsMissingFields(t *testing.T) {
	s := newPostsServer(t, http.StatusOK, `[{"id":1,"title":"no author"}]`)

	c := NewHTTPCollector(s.URL, 2*time.Second)
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")

	c.Validate = false
	posts, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, 0, posts[0].UserID)
}

func TestCollector_ContextCancelled(t *testing.T) {
	s := newPostsServer(t, http.StatusOK, `[]`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewHTTPCollector(s.URL, 2*time.Second)
	_, err := c.Fetch(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
