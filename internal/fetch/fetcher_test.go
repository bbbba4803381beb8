package fetch

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"
)

func TestFetchSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotEncoding = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<title>ok</title>"))
	}))
	t.Cleanup(srv.Close)

	page, err := New().Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.Equal(t, "<title>ok</title>", page.Text())
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Equal(t, DefaultUserAgent, gotUA)
	require.Equal(t, "gzip, deflate, br", gotEncoding)
}

func TestFetchDecodesCompressedBodies(t *testing.T) {
	const html = "<html><title>compressed</title></html>"

	encoders := map[string]func([]byte) []byte{
		"gzip": func(in []byte) []byte {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write(in)
			_ = zw.Close()
			return buf.Bytes()
		},
		"br": func(in []byte) []byte {
			var buf bytes.Buffer
			bw := brotli.NewWriter(&buf)
			_, _ = bw.Write(in)
			_ = bw.Close()
			return buf.Bytes()
		},
		"deflate": func(in []byte) []byte {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			_, _ = zw.Write(in)
			_ = zw.Close()
			return buf.Bytes()
		},
	}

	for encoding, encode := range encoders {
		encoding, encode := encoding, encode
		t.Run(encoding, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Header().Set("Content-Encoding", encoding)
				_, _ = w.Write(encode([]byte(html)))
			}))
			t.Cleanup(srv.Close)

			page, err := New().Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
			require.Equal(t, html, page.Text())
		})
	}
}

func TestFetchConvertsCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write([]byte("<title>caf\xe9</title>"))
	}))
	t.Cleanup(srv.Close)

	page, err := New().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "<title>café</title>", page.Text())
}

func TestFetchNon200IsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := New().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, KindStatus, fe.Kind)
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestFetchBlockedWithoutNetworkIO(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(srv.Close)

	f := New(WithFilter(&Filter{BlockDomains: []string{"127.0.0.1"}}))
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Equal(t, KindBlocked, KindOf(err))
	require.Zero(t, hits.Load())
}

func TestFetchChecksFilterOnRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://internal.blocked.test/admin", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	f := New(WithFilter(&Filter{BlockDomains: []string{"*.blocked.test"}}))
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Equal(t, KindBlocked, KindOf(err))
}

func TestFetchStopsAfterMaxRedirects(t *testing.T) {
	var hits atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, srv.URL+"/loop", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	_, err := New(WithMaxRedirects(2)).Fetch(context.Background(), srv.URL)
	require.Equal(t, KindTransport, KindOf(err))
	require.EqualValues(t, 3, hits.Load())
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f := New(WithTimeout(50 * time.Millisecond))
	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Equal(t, KindTransport, KindOf(err))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchInvalidURL(t *testing.T) {
	f := New()
	for _, raw := range []string{"", "not a url", "/relative", "ftp://example.com/file"} {
		_, err := f.Fetch(context.Background(), raw)
		require.Equal(t, KindInvalidURL, KindOf(err), raw)
	}
}

func TestFetchTruncatesLargeBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	t.Cleanup(srv.Close)

	page, err := New(WithMaxBodyBytes(1024)).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.True(t, page.Truncated)
	require.Len(t, page.Body, 1024)
}

func TestFetchTruncatesOnRuneBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(strings.Repeat("€", 100)))
	}))
	t.Cleanup(srv.Close)

	page, err := New(WithMaxBodyBytes(1000)).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("€", 100), page.Text())

	page, err = New(WithMaxBodyBytes(10)).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.True(t, page.Truncated)
	require.True(t, utf8.Valid(page.Body))
	require.Equal(t, strings.Repeat("€", 3), page.Text())
}

func TestRuneBoundary(t *testing.T) {
	body := []byte("ab€cd")
	require.Equal(t, 2, runeBoundary(body, 2))
	require.Equal(t, 2, runeBoundary(body, 3))
	require.Equal(t, 2, runeBoundary(body, 4))
	require.Equal(t, 5, runeBoundary(body, 5))
}

func TestFetchBlocksPrivateAddresses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := New(WithFilter(&Filter{Mode: ModeAllowAll, BlockPrivate: true}))
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Equal(t, KindBlocked, KindOf(err))
	require.ErrorIs(t, err, ErrPrivateAddress)
	require.Zero(t, hits.Load())

	f.SetFilter(&Filter{Mode: ModeAllowAll})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "ok", page.Text())
}

func TestCheckDialRejectsResolvedPrivateAddresses(t *testing.T) {
	f := New(WithFilter(&Filter{BlockPrivate: true}))

	err := f.checkDial("tcp", "127.0.0.1:443", nil)
	require.Equal(t, KindBlocked, KindOf(err))
	require.ErrorIs(t, err, ErrPrivateAddress)
	require.ErrorIs(t, f.checkDial("tcp6", "[fe80::1]:80", nil), ErrPrivateAddress)
	require.NoError(t, f.checkDial("tcp", "93.184.216.34:443", nil))

	f.SetFilter(nil)
	require.NoError(t, f.checkDial("tcp", "127.0.0.1:443", nil))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return fn(r)
}

func TestFetchRejectsRedirectToPrivateAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://169.254.169.254/latest/meta-data/", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	var hits atomic.Int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		hits.Add(1)
		r.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(r)
	})
	f := New(WithTransport(rt), WithFilter(&Filter{Mode: ModeAllowAll, BlockPrivate: true}))

	_, err := f.Fetch(context.Background(), "http://feeds.example.test/")
	require.Equal(t, KindBlocked, KindOf(err))
	require.ErrorIs(t, err, ErrPrivateAddress)
	require.EqualValues(t, 1, hits.Load())
}

func TestSetTimeoutAndFilter(t *testing.T) {
	f := New()
	require.Equal(t, DefaultTimeout, f.Timeout())
	f.SetTimeout(3 * time.Second)
	f.SetTimeout(0)
	require.Equal(t, 3*time.Second, f.Timeout())

	require.Nil(t, f.Filter())
	filter := &Filter{Mode: ModeAllowlist}
	f.SetFilter(filter)
	require.Same(t, filter, f.Filter())
}

func TestErrorMessages(t *testing.T) {
	err := &Error{Kind: KindStatus, StatusCode: 503, URL: "https://x.test"}
	require.Equal(t, "fetch https://x.test: unexpected status 503", err.Error())
	require.Empty(t, KindOf(context.Canceled))
}
