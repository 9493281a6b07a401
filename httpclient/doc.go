// Package httpclient is the REST client for the AnalyticBot API.
//
// A Client resolves a timeout per endpoint, stamps every request with the
// device fingerprint, the active Authorization header (Bearer JWT or Telegram
// WebApp init data) and an X-Request-ID, and retries transient failures
// (network errors, 408, 429, 502, 503, 504) with exponential backoff.
//
// With the jwt strategy the client refreshes tokens ahead of expiry. A 401 on
// a session that has a refresh token triggers one refresh and one retry of
// the original call; if the refresh fails the session is cleared and the
// original 401 is returned.
//
//	c := httpclient.NewBuilder(log).
//		WithBaseURL("https://api.analyticbot.org").
//		WithAuth(authManager).
//		WithFingerprint(devices).
//		Build()
//
//	channels, err := httpclient.GetJSON[[]Channel](ctx, c, "/api/v1/channels", nil)
package httpclient
