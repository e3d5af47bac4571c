package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves the subset of the S3 REST API used by the S3 store.
type fakeS3 struct {
	mu   sync.Mutex
	objs map[string][]byte
	ctyp map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objs: make(map[string][]byte), ctyp: make(map[string]string)}
}

func reply(code int, body string, hdr http.Header) *http.Response {
	if hdr == nil {
		hdr = http.Header{}
	}
	return &http.Response{
		StatusCode:    code,
		Header:        hdr,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// path-style: /bucket/key
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	lastmod := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)

	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objs {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2025-04-02T00:00:00Z</LastModified></Contents>", k, len(f.objs[k]))
		}
		b.WriteString("</ListBucketResult>")
		return reply(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}}), nil

	case req.Method == http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		f.objs[key] = body
		f.ctyp[key] = req.Header.Get("Content-Type")
		return reply(http.StatusOK, "", http.Header{"Etag": {`"etag"`}}), nil

	case req.Method == http.MethodHead, req.Method == http.MethodGet:
		body, ok := f.objs[key]
		if !ok {
			if req.Method == http.MethodHead {
				return reply(http.StatusNotFound, "", nil), nil
			}
			return reply(http.StatusNotFound,
				`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`,
				http.Header{"Content-Type": {"application/xml"}},
			), nil
		}
		hdr := http.Header{
			"Content-Length": {fmt.Sprint(len(body))},
			"Content-Type":   {f.ctyp[key]},
			"Last-Modified":  {lastmod},
			"Etag":           {`"etag"`},
		}
		if req.Method == http.MethodHead {
			resp := reply(http.StatusOK, "", hdr)
			resp.ContentLength = int64(len(body))
			return resp, nil
		}
		return reply(http.StatusOK, string(body), hdr), nil
	}
	return reply(http.StatusNotImplemented, "", nil), nil
}

func newTestS3(t *testing.T) (*S3, *fakeS3) {
	t.Helper()
	fake := newFakeS3()
	store, err := NewS3(context.Background(), S3Config{
		Bucket:          "mutarget",
		Endpoint:        "http://s3.test.local",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		Prefix:          "runs/",
	}, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	require.NoError(t, err)
	return store, fake
}

func stores(t *testing.T) map[string]Store {
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	s3, _ := newTestS3(t)
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fs,
		"s3":     s3,
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			payload := []byte("BEGIN YODA_HISTO1D_V2 /MuonEnergy\nEND YODA_HISTO1D_V2\n")
			info, err := store.Put(ctx, "run-0/histograms.yoda", bytes.NewReader(payload), "text/plain")
			require.NoError(t, err)
			assert.Equal(t, "run-0/histograms.yoda", info.Key)
			assert.Equal(t, int64(len(payload)), info.Size)

			// overwrite.
			payload = append(payload, "# v2\n"...)
			_, err = store.Put(ctx, "run-0/histograms.yoda", bytes.NewReader(payload), "text/plain")
			require.NoError(t, err)

			_, err = store.Put(ctx, "run-1/histograms.yoda", bytes.NewReader([]byte("x")), "")
			require.NoError(t, err)

			info, rc, err := store.Get(ctx, "run-0/histograms.yoda")
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, payload, got)
			assert.Equal(t, int64(len(payload)), info.Size)

			list, err := store.List(ctx, "run-")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "run-0/histograms.yoda", list[0].Key)
			assert.Equal(t, "run-1/histograms.yoda", list[1].Key)

			_, _, err = store.Get(ctx, "run-9/missing.yoda")
			require.ErrorIs(t, err, ErrNotFound)

			_, err = store.Put(ctx, "../escape", strings.NewReader("x"), "")
			require.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestS3Prefix(t *testing.T) {
	store, fake := newTestS3(t)
	_, err := store.Put(context.Background(), "h.yoda", bytes.NewReader([]byte("data")), "text/plain")
	require.NoError(t, err)
	assert.Contains(t, fake.objs, "runs/h.yoda")
	assert.Equal(t, DriverS3, store.Driver())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	require.Error(t, err)

	_, err = Open(ctx, Config{Driver: "ftp"})
	require.Error(t, err)
}

func TestS3ConfigFromEnv(t *testing.T) {
	t.Setenv("MUTARGET_BLOB_S3_BUCKET", "hists")
	t.Setenv("MUTARGET_BLOB_S3_PATH_STYLE", "TRUE")
	cfg := S3ConfigFromEnv(S3Config{Bucket: "other", Region: "eu-west-3"})
	assert.Equal(t, "hists", cfg.Bucket)
	assert.Equal(t, "eu-west-3", cfg.Region)
	assert.True(t, cfg.PathStyle)
}
