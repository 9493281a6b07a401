package httpclient

import (
	"context"
)

// Decode unmarshals resp into a new T.
func Decode[T any](resp *Response) (T, error) {
	var out T
	if resp == nil {
		return out, nil
	}
	if err := resp.Decode(&out); err != nil {
		return out, &Error{
			Type:    MalformedResponseError,
			Message: "failed to decode response",
			Status:  resp.StatusCode,
			Body:    resp.Body,
			Cause:   err,
		}
	}
	return out, nil
}

// GetJSON performs a GET and decodes the response into T.
func GetJSON[T any](ctx context.Context, c Client, endpoint string, req *Request) (T, error) {
	return doJSON[T](ctx, c, "GET", endpoint, req)
}

// PostJSON performs a POST with body and decodes the response into T.
func PostJSON[T any](ctx context.Context, c Client, endpoint string, body any) (T, error) {
	return doJSON[T](ctx, c, "POST", endpoint, &Request{Body: body})
}

// PutJSON performs a PUT with body and decodes the response into T.
func PutJSON[T any](ctx context.Context, c Client, endpoint string, body any) (T, error) {
	return doJSON[T](ctx, c, "PUT", endpoint, &Request{Body: body})
}

// PatchJSON performs a PATCH with body and decodes the response into T.
func PatchJSON[T any](ctx context.Context, c Client, endpoint string, body any) (T, error) {
	return doJSON[T](ctx, c, "PATCH", endpoint, &Request{Body: body})
}

// DeleteJSON performs a DELETE and decodes the response into T.
func DeleteJSON[T any](ctx context.Context, c Client, endpoint string) (T, error) {
	return doJSON[T](ctx, c, "DELETE", endpoint, nil)
}

func doJSON[T any](ctx context.Context, c Client, method, endpoint string, req *Request) (T, error) {
	resp, err := c.Do(ctx, method, endpoint, req)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](resp)
}
