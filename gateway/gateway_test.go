package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ipfs/", func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimPrefix(r.URL.Path, "/ipfs/") {
		case "QmImage":
			_, _ = w.Write([]byte("image-bytes"))
		case "QmMeta":
			_, _ = w.Write([]byte(`{"title":"art","price":"100"}`))
		case "QmBroken":
			_, _ = w.Write([]byte(`{"title":`))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc(pinFilePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		require.Equal(t, "avatar.png", hdr.Filename)
		require.Equal(t, "png-data", string(data))
		_, _ = w.Write([]byte(`{"IpfsHash":"QmPinnedFile","PinSize":8}`))
	})
	mux.HandleFunc(pinJSONPath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, ok := body["pinataContent"]
		require.True(t, ok)
		_, _ = w.Write([]byte(`{"IpfsHash":"QmPinnedJSON"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newTestServer(t)
	c := New(global.NewDefault(), srv.URL, WithRateLimit(0))
	ctx := context.Background()

	data, err := c.Fetch(ctx, "QmImage")
	require.NoError(t, err)
	require.Equal(t, "image-bytes", string(data))

	var meta struct {
		Title string `json:"title"`
		Price string `json:"price"`
	}
	require.NoError(t, c.FetchJSON(ctx, "QmMeta", &meta))
	require.Equal(t, "art", meta.Title)

	err = c.FetchJSON(ctx, "QmBroken", &meta)
	require.True(t, errors.Is(err, global.ErrMalformedResponse))

	_, err = c.Fetch(ctx, "QmMissing")
	require.True(t, errors.Is(err, global.ErrConnectionFailed))

	_, err = c.Fetch(ctx, " ")
	require.True(t, errors.Is(err, global.ErrValidation))
}

func TestImageOrPlaceholder(t *testing.T) {
	srv := newTestServer(t)
	c := New(global.NewDefault(), srv.URL)
	ctx := context.Background()

	data, ok := c.ImageOrPlaceholder(ctx, "QmImage")
	require.True(t, ok)
	require.Equal(t, "image-bytes", string(data))

	data, ok = c.ImageOrPlaceholder(ctx, "QmMissing")
	require.False(t, ok)
	require.Equal(t, Placeholder, data)

	unreachable := New(global.NewDefault(), "http://127.0.0.1:1")
	data, ok = unreachable.ImageOrPlaceholder(ctx, "QmImage")
	require.False(t, ok)
	assert.True(t, strings.HasPrefix(string(data), "\x89PNG"))
}

func TestPin(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	c := New(global.NewDefault(), srv.URL, WithPinEndpoint(srv.URL), WithJWT("secret"))
	hash, err := c.PinFile(ctx, "avatar.png", []byte("png-data"))
	require.NoError(t, err)
	require.Equal(t, "QmPinnedFile", hash)

	hash, err = c.PinJSON(ctx, map[string]string{"title": "art"})
	require.NoError(t, err)
	require.Equal(t, "QmPinnedJSON", hash)

	_, err = c.PinFile(ctx, "empty.png", nil)
	require.True(t, errors.Is(err, global.ErrValidation))

	noAuth := New(global.NewDefault(), srv.URL, WithPinEndpoint(srv.URL))
	_, err = noAuth.PinFile(ctx, "avatar.png", []byte("png-data"))
	require.True(t, errors.Is(err, global.ErrConnectionFailed))
}

func TestMaxSize(t *testing.T) {
	srv := newTestServer(t)
	c := New(global.NewDefault(), srv.URL, WithMaxSize(4))
	_, err := c.Fetch(context.Background(), "QmImage")
	require.True(t, errors.Is(err, global.ErrValidation))
}
