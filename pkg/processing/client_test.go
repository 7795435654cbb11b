package processing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessCaseSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/process-case", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "case-1", r.FormValue("case_id"))
		assert.Equal(t, "user-1", r.FormValue("user_id"))
		assert.Equal(t, "note one\n\nnote two", r.FormValue("additional_data"))

		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		assert.Equal(t, "scan.pdf", files[0].Filename)
		assert.Equal(t, "application/pdf", files[0].Header.Get("Content-Type"))
		f, err := files[1].Open()
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "labs", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second, nil)
	res, err := client.ProcessCase(context.Background(), Request{
		CaseID:         "case-1",
		UserID:         "user-1",
		AdditionalData: "note one\n\nnote two\n",
		Files: []File{
			{Name: "scan.pdf", ContentType: "application/pdf", Body: strings.NewReader("%PDF")},
			{Name: "labs.txt", Body: strings.NewReader("labs")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "queued", res.Body["status"])
}

func TestProcessCaseOmitsEmptyAdditionalData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, present := r.MultipartForm.Value["additional_data"]
		assert.False(t, present)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).ProcessCase(context.Background(), Request{CaseID: "c", UserID: "u", AdditionalData: "  "})
	require.NoError(t, err)
}

func TestProcessCaseNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).ProcessCase(context.Background(), Request{CaseID: "c", UserID: "u"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "overloaded", statusErr.Body)
}

func TestProcessCaseRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).ProcessCase(context.Background(), Request{CaseID: "c", UserID: "u"})
	assert.ErrorContains(t, err, "decode processing response")
}

func TestProcessCaseTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 20*time.Millisecond, nil).ProcessCase(context.Background(), Request{CaseID: "c", UserID: "u"})
	assert.ErrorContains(t, err, "send processing request")
}
