package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	c := New("demo", "key", "secret", "")
	got := c.sign(map[string]string{"timestamp": "100", "folder": "rollcall", "api_key": "key"})
	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=rollcall&timestamp=100secret")))
	assert.Equal(t, want, got)
}

func TestUpload(t *testing.T) {
	var gotFolder, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotPath = r.URL.Path
		gotFolder = r.FormValue("folder")
		_, _, err := r.FormFile("file")
		assert.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"public_id":"p1","secure_url":"https://res.example/p1.jpg"}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "rollcall")
	c.BaseURL = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	ref, err := c.Upload(context.Background(), "subjects", []byte{0xff, 0xd8}, "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://res.example/p1.jpg", ref)
	assert.Equal(t, "/v1_1/demo/image/upload", gotPath)
	assert.Equal(t, "rollcall/subjects", gotFolder)
}

func TestUploadDataURLFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	_, err := c.UploadDataURL(context.Background(), "leave", "data:image/png;base64,AAAA")
	assert.ErrorContains(t, err, "upload failed (400)")
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Upload(context.Background(), "subjects", nil, "x.jpg")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
