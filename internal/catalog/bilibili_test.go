package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"favsync/internal/config"
	"favsync/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *BilibiliClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cred := config.CredentialConfig{Sessdata: "sess", BiliJct: "jct"}
	return NewBilibiliClient(cred, 5*time.Second, server.URL, logger.NewDefault().Logger)
}

func TestListItems(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/x/v3/fav/resource/ids", r.URL.Path)
		assert.Equal(t, "12345", r.URL.Query().Get("media_id"))

		cookie, err := r.Cookie("SESSDATA")
		require.NoError(t, err)
		assert.Equal(t, "sess", cookie.Value)

		fmt.Fprint(w, `{"code":0,"data":[{"id":111,"bvid":"BV1"},{"id":222,"bvid":"BV2"},{"id":333,"bvid":""}]}`)
	}))

	items, err := client.ListItems(context.Background(), "12345")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, Item{Bvid: "BV1", Aid: 111}, items[0])
	assert.Equal(t, Item{Bvid: "BV2", Aid: 222}, items[1])
}

func TestListItemsAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":-101,"message":"not logged in"}`)
	}))

	_, err := client.ListItems(context.Background(), "12345")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestVideoInfo(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/x/web-interface/view", r.URL.Path)
		assert.Equal(t, "BV1", r.URL.Query().Get("bvid"))
		fmt.Fprint(w, `{"code":0,"data":{"aid":111,"title":"a talk","videos":3}}`)
	}))

	info, err := client.VideoInfo(context.Background(), "BV1")
	require.NoError(t, err)
	assert.Equal(t, int64(111), info.Aid)
	assert.Equal(t, "a talk", info.Title)
	assert.Equal(t, 3, info.Parts)
}

func TestMoveSendsCSRF(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/x/v3/fav/resource/move", r.URL.Path)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "12345", r.PostForm.Get("src_media_id"))
		assert.Equal(t, "67890", r.PostForm.Get("tar_media_id"))
		assert.Equal(t, "111:2", r.PostForm.Get("resources"))
		assert.Equal(t, "jct", r.PostForm.Get("csrf"))

		fmt.Fprint(w, `{"code":0}`)
	}))

	err := client.Move(context.Background(), 111, "12345", "67890")
	require.NoError(t, err)
}

func TestRemove(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/x/v3/fav/resource/batch-del", r.URL.Path)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "12345", r.PostForm.Get("media_id"))
		assert.Equal(t, "111:2", r.PostForm.Get("resources"))

		fmt.Fprint(w, `{"code":0}`)
	}))

	err := client.Remove(context.Background(), 111, "12345")
	require.NoError(t, err)
}

func TestHTTPError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.ListItems(context.Background(), "12345")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}
