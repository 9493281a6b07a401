package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/analyticbot/apiclient/auth"
	"github.com/analyticbot/apiclient/logger"
	"github.com/analyticbot/apiclient/storage/memory"
	"github.com/analyticbot/apiclient/trace"
)

func writeJSON(w nethttp.ResponseWriter, status int, body string) {
	w.Header().Set(testContentTypeHeader, testJSONType)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestBuilder(t *testing.T) {
	log := logger.Nop()

	t.Run("default configuration", func(t *testing.T) {
		c := NewBuilder(log).Build()
		require.NotNil(t, c)
		assert.Equal(t, auth.StrategyJWT, c.AuthStrategy())

		impl := c.(*client)
		assert.Equal(t, DefaultMaxRetries, impl.config.MaxRetries)
		assert.Equal(t, DefaultRetryDelay, impl.config.RetryDelay)
		assert.Nil(t, impl.limiter)
		assert.Equal(t, 45*time.Second, impl.timeouts.Resolve("/analytics/overview"))
	})

	t.Run("nil logger", func(t *testing.T) {
		assert.NotNil(t, NewBuilder(nil).Build())
	})

	t.Run("endpoint timeouts", func(t *testing.T) {
		c := NewBuilder(log).
			WithEndpointTimeouts(nil).
			WithEndpointTimeout("/slow", time.Minute).
			WithTimeout(2 * time.Second).
			Build().(*client)
		assert.Equal(t, time.Minute, c.timeouts.Resolve("/api/slow"))
		assert.Equal(t, 2*time.Second, c.timeouts.Resolve("/health"))
	})

	t.Run("rate limit", func(t *testing.T) {
		c := NewBuilder(log).WithRateLimit(5, 0).Build().(*client)
		require.NotNil(t, c.limiter)
		assert.Equal(t, 1, c.limiter.Burst())
	})

	t.Run("retry multiplier below one becomes constant backoff", func(t *testing.T) {
		c := NewBuilder(log).WithRetryMultiplier(0.5).Build().(*client)
		assert.InDelta(t, 1.0, c.config.RetryMultiplier, 0)

		c = NewBuilder(log).WithRetryMultiplier(1.5).Build().(*client)
		assert.InDelta(t, 1.5, c.config.RetryMultiplier, 0)
	})

	t.Run("with auth wires refresher and clearer", func(t *testing.T) {
		fa := &fakeAuth{}
		c := NewBuilder(log).WithAuth(fa).Build().(*client)
		assert.Same(t, fa, c.refresher)
		assert.Same(t, fa, c.clearer)
	})
}

func TestClientHTTPMethods(t *testing.T) {
	var gotMethod, gotBody string
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		writeJSON(w, 200, `{"ok":true}`)
	}))

	c := NewBuilder(logger.Nop()).WithBaseURL(server.URL).Build()
	ctx := context.Background()
	body := &Request{Body: map[string]string{"title": "x"}}

	tests := []struct {
		method string
		call   func() (*Response, error)
	}{
		{"GET", func() (*Response, error) { return c.Get(ctx, testChannelsEndpoint, body) }},
		{"POST", func() (*Response, error) { return c.Post(ctx, testChannelsEndpoint, body) }},
		{"PUT", func() (*Response, error) { return c.Put(ctx, testChannelsEndpoint, body) }},
		{"PATCH", func() (*Response, error) { return c.Patch(ctx, testChannelsEndpoint, body) }},
		{"DELETE", func() (*Response, error) { return c.Delete(ctx, testChannelsEndpoint, body) }},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp, err := tt.call()
			require.NoError(t, err)
			assert.Equal(t, tt.method, gotMethod)
			assert.Equal(t, 200, resp.StatusCode)
			assert.Equal(t, map[string]any{"ok": true}, resp.Data())
			if tt.method == "GET" {
				assert.Empty(t, gotBody)
			} else {
				assert.JSONEq(t, `{"title":"x"}`, gotBody)
			}
		})
	}
}

func TestClientRequestValidation(t *testing.T) {
	c := NewBuilder(logger.Nop()).Build()

	_, err := c.Get(context.Background(), "", nil)
	assert.True(t, IsErrorType(err, ValidationError))

	_, err = c.Get(context.Background(), "/no-base-url", nil)
	assert.True(t, IsErrorType(err, ValidationError))

	_, err = c.Post(context.Background(), "http://127.0.0.1:1/x", &Request{Body: make(chan int)})
	assert.True(t, IsErrorType(err, ValidationError))
}

func TestClientURLAndQuery(t *testing.T) {
	var gotURL *url.URL
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotURL = r.URL
		w.WriteHeader(204)
	}))

	c := NewBuilder(logger.Nop()).WithBaseURL(server.URL + "/").Build()
	resp, err := c.Get(context.Background(), "api/v1/channels?page=2", &Request{
		Query: url.Values{"limit": {"10"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Nil(t, resp.Data())
	assert.Equal(t, testChannelsEndpoint, gotURL.Path)
	assert.Equal(t, "2", gotURL.Query().Get("page"))
	assert.Equal(t, "10", gotURL.Query().Get("limit"))
}

func TestClientHeaderPipeline(t *testing.T) {
	var got nethttp.Header
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		got = r.Header.Clone()
		writeJSON(w, 200, `{}`)
	}))

	fa := &fakeAuth{token: "jwt-abc", initData: "query_id=1&user=%7B%7D"}
	c := NewBuilder(logger.Nop()).
		WithBaseURL(server.URL).
		WithDefaultHeader("X-Client", "analyticbot-go").
		WithDefaultHeader("X-Device-ID", "from-defaults").
		WithAuth(fa).
		WithFingerprint(staticFingerprint(testDeviceID)).
		WithRequestInterceptor(func(_ context.Context, req *nethttp.Request) error {
			req.Header.Set("X-Intercepted", req.Header.Get("Authorization"))
			return nil
		}).
		Build()

	t.Run("jwt bearer", func(t *testing.T) {
		ctx := trace.WithRequestID(context.Background(), "req-1")
		_, err := c.Get(ctx, testChannelsEndpoint, nil)
		require.NoError(t, err)

		assert.Equal(t, testJSONType, got.Get("Accept"))
		assert.Equal(t, testJSONType, got.Get(testContentTypeHeader))
		assert.Equal(t, "analyticbot-go", got.Get("X-Client"))
		assert.Equal(t, testDeviceID, got.Get(HeaderDeviceID))
		assert.Equal(t, "Bearer jwt-abc", got.Get("Authorization"))
		assert.Equal(t, "req-1", got.Get(trace.HeaderXRequestID))
		assert.Equal(t, "Bearer jwt-abc", got.Get("X-Intercepted"))
	})

	t.Run("per-request overrides win", func(t *testing.T) {
		_, err := c.Get(context.Background(), testChannelsEndpoint, &Request{
			Headers: map[string]string{"Authorization": "Bearer override", "X-Request-ID": "mine"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Bearer override", got.Get("Authorization"))
		assert.Equal(t, "mine", got.Get(trace.HeaderXRequestID))
	})

	t.Run("generated request id", func(t *testing.T) {
		_, err := c.Get(context.Background(), testChannelsEndpoint, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, got.Get(trace.HeaderXRequestID))
	})

	t.Run("twa strategy", func(t *testing.T) {
		c.SetAuthStrategy(auth.StrategyTWA)
		defer c.SetAuthStrategy(auth.StrategyJWT)

		_, err := c.Get(context.Background(), testChannelsEndpoint, nil)
		require.NoError(t, err)
		assert.Equal(t, "TWA query_id=1&user=%7B%7D", got.Get("Authorization"))
		assert.Equal(t, auth.StrategyTWA, fa.strategy)
	})

	t.Run("none strategy", func(t *testing.T) {
		c.SetAuthStrategy(auth.StrategyNone)
		defer c.SetAuthStrategy(auth.StrategyJWT)

		_, err := c.Get(context.Background(), testChannelsEndpoint, nil)
		require.NoError(t, err)
		assert.Empty(t, got.Get("Authorization"))
	})

	t.Run("missing token sends no header", func(t *testing.T) {
		bare := NewBuilder(logger.Nop()).WithBaseURL(server.URL).WithAuth(&fakeAuth{}).Build()
		_, err := bare.Get(context.Background(), testChannelsEndpoint, nil)
		require.NoError(t, err)
		assert.Empty(t, got.Get("Authorization"))
		assert.Empty(t, got.Get(HeaderDeviceID))
	})
}

func TestClientFormBodyContentType(t *testing.T) {
	var contentType string
	var fields map[string]string
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		contentType = r.Header.Get(testContentTypeHeader)
		fields = map[string]string{}
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
		}
		writeJSON(w, 200, `{}`)
	}))

	c := NewBuilder(logger.Nop()).
		WithBaseURL(server.URL).
		WithDefaultHeader(testContentTypeHeader, testJSONType).
		Build()

	_, err := c.Post(context.Background(), "/api/v1/channels/import", &Request{
		Body:    NewForm().AddField("channel_id", "42"),
		Headers: map[string]string{testContentTypeHeader: testJSONType},
	})
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.NotEmpty(t, params["boundary"])
	assert.Equal(t, "42", fields["channel_id"])
}

func TestClientRetries(t *testing.T) {
	t.Run("recovers after transient 503s", func(t *testing.T) {
		var hits int32
		server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			if atomic.AddInt32(&hits, 1) < 3 {
				writeJSON(w, 503, `{"detail":"warming up"}`)
				return
			}
			writeJSON(w, 200, `[{"id":1}]`)
		}))

		b, rec := newTestBuilder(server.URL, logger.Nop())
		resp, err := b.WithRetries(3, time.Second).WithRetryMultiplier(2).Build().
			Get(context.Background(), testChannelsEndpoint, nil)

		require.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
		assert.Equal(t, 3, resp.Stats.Attempts)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var hits int32
		server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			atomic.AddInt32(&hits, 1)
			writeJSON(w, 429, `{"detail":"slow down"}`)
		}))

		b, rec := newTestBuilder(server.URL, logger.Nop())
		_, err := b.WithRetries(4, 10*time.Millisecond).Build().Get(context.Background(), testChannelsEndpoint, nil)

		require.Error(t, err)
		assert.True(t, IsHTTPStatusError(err, 429))
		assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
		assert.Len(t, rec.recorded(), 3)
	})

	t.Run("500 is not retried", func(t *testing.T) {
		var hits int32
		server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			atomic.AddInt32(&hits, 1)
			writeJSON(w, 500, `{"detail":"boom"}`)
		}))

		b, rec := newTestBuilder(server.URL, logger.Nop())
		_, err := b.Build().Get(context.Background(), testChannelsEndpoint, nil)

		var clientErr *Error
		require.ErrorAs(t, err, &clientErr)
		assert.Equal(t, HTTPError, clientErr.Type)
		assert.Equal(t, 500, clientErr.Status)
		assert.Equal(t, "boom", clientErr.Message)
		assert.Equal(t, "Internal Server Error", clientErr.StatusText)
		assert.Equal(t, map[string]any{"detail": "boom"}, clientErr.Data)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
		assert.Empty(t, rec.recorded())
	})

	t.Run("max retries below one means a single attempt", func(t *testing.T) {
		var hits int32
		server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(503)
		}))

		b, _ := newTestBuilder(server.URL, logger.Nop())
		_, err := b.WithRetries(0, time.Second).Build().Get(context.Background(), testChannelsEndpoint, nil)
		assert.True(t, IsHTTPStatusError(err, 503))
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})

	t.Run("network errors are retried", func(t *testing.T) {
		var calls int32
		transport := roundTripperFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
			atomic.AddInt32(&calls, 1)
			return nil, fmt.Errorf("dial %s: connection refused", req.URL.Host)
		})

		b, rec := newTestBuilder("http://api.invalid", logger.Nop())
		_, err := b.WithTransport(transport).Build().Get(context.Background(), testChannelsEndpoint, nil)

		var clientErr *Error
		require.ErrorAs(t, err, &clientErr)
		assert.Equal(t, NetworkError, clientErr.Type)
		assert.Equal(t, StatusNetworkError, clientErr.Status)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		assert.Len(t, rec.recorded(), 2)
	})
}

func TestClientTimeouts(t *testing.T) {
	var hits int32
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		w.WriteHeader(200)
	}))

	fa := &fakeAuth{token: "t", hasRefresh: true}
	b, _ := newTestBuilder(server.URL, logger.Nop())
	c := b.WithEndpointTimeouts([]EndpointTimeout{{Pattern: "/slow", Timeout: 50 * time.Millisecond}}).
		WithRetries(2, time.Millisecond).
		WithAuth(fa).
		Build()

	_, err := c.Get(context.Background(), "/api/v1/slow", nil)

	var clientErr *Error
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, TimeoutError, clientErr.Type)
	assert.Equal(t, 408, clientErr.Status)
	assert.Equal(t, 50*time.Millisecond, clientErr.Timeout)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	_, refreshes, _ := fa.counts()
	assert.Zero(t, refreshes)
}

func TestClientCancellation(t *testing.T) {
	var hits int32
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		atomic.AddInt32(&hits, 1)
		<-r.Context().Done()
	}))

	b, rec := newTestBuilder(server.URL, logger.Nop())
	c := b.Build()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := c.Get(ctx, testChannelsEndpoint, nil)

	var clientErr *Error
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, CanceledError, clientErr.Type)
	assert.Zero(t, clientErr.Status)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Empty(t, rec.recorded())
}

func TestClientResponseParsing(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/malformed":
			writeJSON(w, 200, `{"broken":`)
		case "/malformed-503":
			writeJSON(w, 503, `<html>`)
		case "/text":
			w.Header().Set(testContentTypeHeader, "text/plain")
			_, _ = io.WriteString(w, "OK")
		case "/text-error":
			w.Header().Set(testContentTypeHeader, "text/html")
			w.WriteHeader(404)
			_, _ = io.WriteString(w, "<h1>missing</h1>")
		case "/empty-json":
			w.Header().Set(testContentTypeHeader, testJSONType)
			w.WriteHeader(200)
		}
	}))

	b, _ := newTestBuilder(server.URL, logger.Nop())
	c := b.WithRetries(1, 0).Build()
	ctx := context.Background()

	t.Run("malformed JSON keeps status", func(t *testing.T) {
		_, err := c.Get(ctx, "/malformed", nil)
		var clientErr *Error
		require.ErrorAs(t, err, &clientErr)
		assert.Equal(t, MalformedResponseError, clientErr.Type)
		assert.Equal(t, 200, clientErr.Status)
		assert.Equal(t, `{"broken":`, string(clientErr.Body))
	})

	t.Run("malformed JSON on 503", func(t *testing.T) {
		_, err := c.Get(ctx, "/malformed-503", nil)
		assert.True(t, IsErrorType(err, MalformedResponseError))
		assert.Equal(t, 503, StatusOf(err))
	})

	t.Run("non JSON body is wrapped", func(t *testing.T) {
		resp, err := c.Get(ctx, "/text", nil)
		require.NoError(t, err)
		assert.False(t, resp.IsJSON())
		assert.Equal(t, map[string]any{"data": "OK"}, resp.Data())

		var wrapped struct {
			Data string `json:"data"`
		}
		require.NoError(t, resp.Decode(&wrapped))
		assert.Equal(t, "OK", wrapped.Data)
	})

	t.Run("non JSON error body", func(t *testing.T) {
		_, err := c.Get(ctx, "/text-error", nil)
		var clientErr *Error
		require.ErrorAs(t, err, &clientErr)
		assert.Equal(t, 404, clientErr.Status)
		assert.Equal(t, map[string]any{"data": "<h1>missing</h1>"}, clientErr.Data)
		assert.Contains(t, clientErr.Message, "404")
	})

	t.Run("empty JSON body", func(t *testing.T) {
		resp, err := c.Get(ctx, "/empty-json", nil)
		require.NoError(t, err)
		assert.Nil(t, resp.Data())
		var out map[string]any
		require.NoError(t, resp.Decode(&out))
		assert.Nil(t, out)
	})
}

func TestClientReactiveRefresh(t *testing.T) {
	newServer := func(t *testing.T, acceptToken string) (*int32, string) {
		var hits int32
		server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			atomic.AddInt32(&hits, 1)
			if acceptToken != "" && r.Header.Get("Authorization") == "Bearer "+acceptToken {
				writeJSON(w, 200, `{"channels":[]}`)
				return
			}
			writeJSON(w, 401, `{"detail":"token expired"}`)
		}))
		return &hits, server.URL
	}

	t.Run("refresh then single retry", func(t *testing.T) {
		hits, baseURL := newServer(t, "fresh")
		fa := &fakeAuth{token: "stale", hasRefresh: true, refreshedTo: "fresh"}
		b, _ := newTestBuilder(baseURL, logger.Nop())

		resp, err := b.WithAuth(fa).Build().Get(context.Background(), testChannelsEndpoint, nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(2), atomic.LoadInt32(hits))

		_, refreshes, clears := fa.counts()
		assert.Equal(t, 1, refreshes)
		assert.Zero(t, clears)
	})

	t.Run("second 401 is returned without another refresh", func(t *testing.T) {
		hits, baseURL := newServer(t, "")
		fa := &fakeAuth{token: "stale", hasRefresh: true, refreshedTo: "still-bad"}
		b, _ := newTestBuilder(baseURL, logger.Nop())

		_, err := b.WithAuth(fa).Build().Get(context.Background(), testChannelsEndpoint, nil)
		assert.True(t, IsHTTPStatusError(err, 401))
		assert.Equal(t, int32(2), atomic.LoadInt32(hits))

		_, refreshes, _ := fa.counts()
		assert.Equal(t, 1, refreshes)
	})

	t.Run("refresh failure logs out and returns original 401", func(t *testing.T) {
		hits, baseURL := newServer(t, "")
		fa := &fakeAuth{token: "stale", hasRefresh: true, refreshErr: fmt.Errorf("%w: rejected", auth.ErrRefreshFailed)}

		var expiredPath string
		b, _ := newTestBuilder(baseURL, logger.Nop())
		c := b.WithAuth(fa).
			WithLoginPath("/signin").
			WithSessionExpiredHandler(func(_ context.Context, loginPath string) { expiredPath = loginPath }).
			Build()

		_, err := c.Get(context.Background(), testChannelsEndpoint, nil)

		var clientErr *Error
		require.ErrorAs(t, err, &clientErr)
		assert.Equal(t, 401, clientErr.Status)
		assert.Equal(t, "token expired", clientErr.Message)
		assert.NotErrorIs(t, err, auth.ErrRefreshFailed)
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))
		assert.Equal(t, "/signin", expiredPath)

		_, refreshes, clears := fa.counts()
		assert.Equal(t, 1, refreshes)
		assert.Equal(t, 1, clears)
	})

	t.Run("caller cancellation during refresh keeps the session", func(t *testing.T) {
		_, baseURL := newServer(t, "")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		fa := &fakeAuth{
			token:      "stale",
			hasRefresh: true,
			refreshErr: fmt.Errorf("%w: %w", auth.ErrRefreshFailed, context.Canceled),
			onRefresh:  cancel,
		}

		expired := false
		b, _ := newTestBuilder(baseURL, logger.Nop())
		c := b.WithAuth(fa).
			WithSessionExpiredHandler(func(context.Context, string) { expired = true }).
			Build()

		_, err := c.Get(ctx, testChannelsEndpoint, nil)
		assert.True(t, IsErrorType(err, CanceledError))
		assert.False(t, expired)

		_, _, clears := fa.counts()
		assert.Zero(t, clears)
	})

	t.Run("refresh cut short by a deadline keeps the session", func(t *testing.T) {
		_, baseURL := newServer(t, "")
		fa := &fakeAuth{
			token:      "stale",
			hasRefresh: true,
			refreshErr: fmt.Errorf("%w: %w", auth.ErrRefreshFailed, context.DeadlineExceeded),
		}

		expired := false
		b, _ := newTestBuilder(baseURL, logger.Nop())
		c := b.WithAuth(fa).
			WithSessionExpiredHandler(func(context.Context, string) { expired = true }).
			Build()

		_, err := c.Get(context.Background(), testChannelsEndpoint, nil)
		assert.True(t, IsHTTPStatusError(err, 401))
		assert.False(t, expired)

		_, _, clears := fa.counts()
		assert.Zero(t, clears)
	})

	t.Run("no refresh token", func(t *testing.T) {
		hits, baseURL := newServer(t, "fresh")
		fa := &fakeAuth{token: "stale"}
		b, _ := newTestBuilder(baseURL, logger.Nop())

		_, err := b.WithAuth(fa).Build().Get(context.Background(), testChannelsEndpoint, nil)
		assert.True(t, IsHTTPStatusError(err, 401))
		assert.Equal(t, int32(1), atomic.LoadInt32(hits))

		_, refreshes, _ := fa.counts()
		assert.Zero(t, refreshes)
	})

	t.Run("retry after refresh gets a fresh attempt budget", func(t *testing.T) {
		var hits int32
		server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			n := atomic.AddInt32(&hits, 1)
			switch {
			case r.Header.Get("Authorization") != "Bearer fresh":
				writeJSON(w, 401, `{}`)
			case n < 4:
				writeJSON(w, 503, `{}`)
			default:
				writeJSON(w, 200, `{}`)
			}
		}))

		fa := &fakeAuth{token: "stale", hasRefresh: true, refreshedTo: "fresh"}
		b, rec := newTestBuilder(server.URL, logger.Nop())
		resp, err := b.WithAuth(fa).WithRetries(3, time.Second).Build().Get(context.Background(), testChannelsEndpoint, nil)

		require.NoError(t, err)
		assert.Equal(t, 3, resp.Stats.Attempts)
		assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())
	})
}

func TestClientProactiveRefresh(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		writeJSON(w, 200, `{"token":"t","user":{"id":1}}`)
	}))

	t.Run("runs before each attempt with jwt", func(t *testing.T) {
		fa := &fakeAuth{token: "t"}
		b, _ := newTestBuilder(server.URL, logger.Nop())
		_, err := b.WithAuth(fa).Build().Get(context.Background(), testChannelsEndpoint, nil)
		require.NoError(t, err)

		proactive, _, _ := fa.counts()
		assert.Equal(t, 1, proactive)
	})

	t.Run("skipped for bootstrap endpoints", func(t *testing.T) {
		fa := &fakeAuth{}
		b, _ := newTestBuilder(server.URL, logger.Nop())
		c := b.WithAuth(fa).Build()

		for _, ep := range []string{"/api/v1/auth/login", "/api/v1/auth/register", "/api/v1/auth/refresh"} {
			resp, err := c.Post(context.Background(), ep, &Request{Body: map[string]string{"email": "a@b.c"}})
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		}

		proactive, _, _ := fa.counts()
		assert.Zero(t, proactive)
	})

	t.Run("skipped for twa", func(t *testing.T) {
		fa := &fakeAuth{initData: "x"}
		b, _ := newTestBuilder(server.URL, logger.Nop())
		_, err := b.WithAuth(fa).WithAuthStrategy(auth.StrategyTWA).Build().Get(context.Background(), testChannelsEndpoint, nil)
		require.NoError(t, err)

		proactive, _, _ := fa.counts()
		assert.Zero(t, proactive)
	})

	t.Run("failure is logged and swallowed", func(t *testing.T) {
		fa := &fakeAuth{token: "t", proactiveErr: errors.New("refresh endpoint down")}
		log := &fakeLogger{}
		b, _ := newTestBuilder(server.URL, log)

		resp, err := b.WithAuth(fa).Build().Get(context.Background(), testChannelsEndpoint, nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		events := log.eventsByMessage("Proactive token refresh failed")
		require.Len(t, events, 1)
		assert.Equal(t, "warn", events[0].level)
	})
}

func TestClientRefreshWithManager(t *testing.T) {
	var apiHits, refreshHits int32
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/refresh":
			atomic.AddInt32(&refreshHits, 1)
			writeJSON(w, 200, `{"access_token":"fresh","refresh_token":"rt-2","token_type":"bearer","expires_in":900}`)
		default:
			atomic.AddInt32(&apiHits, 1)
			if r.Header.Get("Authorization") == "Bearer fresh" {
				writeJSON(w, 200, `{"ok":true}`)
				return
			}
			writeJSON(w, 401, `{"detail":"expired"}`)
		}
	}))

	store := memory.New()
	manager, err := auth.NewManager(auth.Options{
		Store:           store,
		Logger:          logger.Nop(),
		BaseURL:         server.URL,
		RefreshEndpoint: "/api/v1/auth/refresh",
	})
	require.NoError(t, err)
	require.NoError(t, manager.StoreSession(context.Background(), auth.Session{AccessToken: "stale", RefreshToken: "rt-1"}))

	b, _ := newTestBuilder(server.URL, logger.Nop())
	c := b.WithAuth(manager).Build()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Get(context.Background(), testChannelsEndpoint, nil)
			assert.NoError(t, err)
			if resp != nil {
				assert.Equal(t, 200, resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&refreshHits), int32(5))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&refreshHits), int32(1))
	token, err := manager.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
}

func TestClientCancelledCallerDoesNotExpireSharedRefresh(t *testing.T) {
	release := make(chan struct{})
	var refreshHits int32
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/refresh":
			atomic.AddInt32(&refreshHits, 1)
			<-release
			writeJSON(w, 200, `{"access_token":"fresh","refresh_token":"rt-2"}`)
		default:
			if r.Header.Get("Authorization") == "Bearer fresh" {
				writeJSON(w, 200, `{"ok":true}`)
				return
			}
			writeJSON(w, 401, `{"detail":"expired"}`)
		}
	}))

	manager, err := auth.NewManager(auth.Options{Store: memory.New(), BaseURL: server.URL})
	require.NoError(t, err)
	require.NoError(t, manager.StoreSession(context.Background(), auth.Session{AccessToken: "stale", RefreshToken: "rt-1"}))

	var expired int32
	b, _ := newTestBuilder(server.URL, logger.Nop())
	c := b.WithAuth(manager).
		WithSessionExpiredHandler(func(context.Context, string) { atomic.AddInt32(&expired, 1) }).
		Build()

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancelledErr := make(chan error, 1)
	go func() {
		_, err := c.Get(cancelCtx, testChannelsEndpoint, nil)
		cancelledErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&refreshHits) == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		resp *Response
		err  error
	}
	waiting := make(chan result, 1)
	go func() {
		resp, err := c.Get(context.Background(), testChannelsEndpoint, nil)
		waiting <- result{resp, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.True(t, IsErrorType(<-cancelledErr, CanceledError))

	close(release)
	res := <-waiting
	require.NoError(t, res.err)
	assert.Equal(t, 200, res.resp.StatusCode)

	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshHits))
	assert.Zero(t, atomic.LoadInt32(&expired))
	assert.True(t, manager.HasRefreshToken(context.Background()))
}

func TestClientInterceptorErrors(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		writeJSON(w, 200, `{}`)
	}))

	t.Run("request", func(t *testing.T) {
		c := NewBuilder(logger.Nop()).WithBaseURL(server.URL).
			WithRequestInterceptor(func(context.Context, *nethttp.Request) error { return errors.New("denied") }).
			Build()
		_, err := c.Get(context.Background(), testChannelsEndpoint, nil)
		assert.True(t, IsErrorType(err, InterceptorError))
		assert.False(t, IsRetryable(err))
	})

	t.Run("response", func(t *testing.T) {
		c := NewBuilder(logger.Nop()).WithBaseURL(server.URL).
			WithResponseInterceptor(func(context.Context, *nethttp.Request, *nethttp.Response) error { return errors.New("bad") }).
			Build()
		_, err := c.Get(context.Background(), testChannelsEndpoint, nil)
		assert.True(t, IsErrorType(err, InterceptorError))
	})
}

func TestClientPayloadLoggingMasksSecrets(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if strings.HasSuffix(r.URL.Path, "/export") {
			w.Header().Set(testContentTypeHeader, "text/csv")
			_, _ = io.WriteString(w, "token,rt-SECRET")
			return
		}
		writeJSON(w, 200, `{"access_token":"at-SECRET","refresh_token":"rt-SECRET","user":{"id":1}}`)
	}))

	t.Run("json bodies are filtered", func(t *testing.T) {
		log := &fakeLogger{}
		b, _ := newTestBuilder(server.URL, log)
		c := b.WithPayloadLogging(true, DefaultMaxPayloadLogBytes).Build()

		_, err := c.Post(context.Background(), "/api/v1/auth/login", &Request{
			Body:    map[string]string{"email": "a@b.c", "password": "hunter2"},
			Headers: map[string]string{"Authorization": "Bearer at-OLD"},
		})
		require.NoError(t, err)

		requests := log.eventsByMessage(testRestClientRequest)
		require.Len(t, requests, 1)
		body, ok := requests[0].fields["body"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "a@b.c", body["email"])
		assert.Equal(t, logger.DefaultMaskValue, body["password"])
		headers, ok := requests[0].fields["headers"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, logger.DefaultMaskValue, headers["Authorization"])

		responses := log.eventsByMessage(testRestClientResponse)
		require.Len(t, responses, 1)
		respBody, ok := responses[0].fields["body"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, logger.DefaultMaskValue, respBody["access_token"])
		assert.Equal(t, logger.DefaultMaskValue, respBody["refresh_token"])
	})

	t.Run("truncation happens after masking", func(t *testing.T) {
		log := &fakeLogger{}
		b, _ := newTestBuilder(server.URL, log)
		c := b.WithPayloadLogging(true, 40).Build()

		_, err := c.Post(context.Background(), "/api/v1/auth/refresh", &Request{Body: map[string]string{"refresh_token": "rt-SECRET"}})
		require.NoError(t, err)

		responses := log.eventsByMessage(testRestClientResponse)
		require.Len(t, responses, 1)
		body, ok := responses[0].fields["body"].(string)
		require.True(t, ok)
		assert.Len(t, body, 40)
		assert.NotContains(t, body, "SECRET")
	})

	t.Run("non json bodies are logged by size", func(t *testing.T) {
		log := &fakeLogger{}
		b, _ := newTestBuilder(server.URL, log)
		c := b.WithPayloadLogging(true, DefaultMaxPayloadLogBytes).Build()

		_, err := c.Get(context.Background(), "/api/v1/export", nil)
		require.NoError(t, err)

		responses := log.eventsByMessage(testRestClientResponse)
		require.Len(t, responses, 1)
		assert.NotContains(t, responses[0].fields, "body")
		assert.Equal(t, len("token,rt-SECRET"), responses[0].fields["body_bytes"])
	})
}

func TestClientStatsAndCounters(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		writeJSON(w, 200, `{}`)
	}))

	c := NewBuilder(logger.Nop()).WithBaseURL(server.URL).Build()
	ctx := logger.WithHTTPCounter(trace.WithRequestID(context.Background(), "req-stats"))

	first, err := c.Get(ctx, testChannelsEndpoint, nil)
	require.NoError(t, err)
	second, err := c.Get(ctx, testChannelsEndpoint, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Stats.CallCount)
	assert.Equal(t, int64(2), second.Stats.CallCount)
	assert.Equal(t, "req-stats", second.Stats.RequestID)
	assert.Equal(t, 1, second.Stats.Attempts)
	assert.Equal(t, int64(2), logger.GetHTTPCounter(ctx))
	assert.Positive(t, logger.GetHTTPElapsed(ctx))
}

func TestClientRateLimit(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(204)
	}))

	c := NewBuilder(logger.Nop()).WithBaseURL(server.URL).WithRateLimit(20, 1).Build()

	start := time.Now()
	for range 3 {
		_, err := c.Get(context.Background(), "/health", nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Get(ctx, "/health", nil)
	assert.True(t, IsErrorType(err, CanceledError))
}

func TestClientLogging(t *testing.T) {
	server := newIPv4TestServer(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if strings.HasSuffix(r.URL.Path, "/flaky") {
			writeJSON(w, 502, `{}`)
			return
		}
		writeJSON(w, 200, `{"id":7}`)
	}))

	log := &fakeLogger{}
	b, _ := newTestBuilder(server.URL, log)
	c := b.WithPayloadLogging(true, 4).Build()

	_, err := c.Post(context.Background(), testChannelsEndpoint, &Request{Body: map[string]string{"title": "long title"}})
	require.NoError(t, err)

	requests := log.eventsByMessage(testRestClientRequest)
	require.Len(t, requests, 1)
	assert.Equal(t, "debug", requests[0].level)
	assert.Equal(t, "outbound", requests[0].fields["direction"])
	assert.Equal(t, "POST", requests[0].fields["method"])
	assert.Len(t, requests[0].fields["body"], 4)
	assert.Contains(t, requests[0].fields, "headers")

	responses := log.eventsByMessage(testRestClientResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, 200, responses[0].fields["status"])

	_, err = c.Get(context.Background(), "/api/v1/flaky", nil)
	require.Error(t, err)
	retries := log.eventsByMessage("Retrying API request")
	require.Len(t, retries, 2)
	assert.Equal(t, "502", retries[0].fields["reason"])
	assert.Equal(t, 1, retries[0].fields["attempt"])
}
