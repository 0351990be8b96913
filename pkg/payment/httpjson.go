package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBody = 1 << 20

// jsonAPI is a minimal JSON-over-HTTP client shared by the providers that
// ship no Go SDK. Every failure comes back as a classified *RemoteError.
type jsonAPI struct {
	provider    Provider
	baseURL     string
	contentType string
	token       string
	client      *http.Client
}

func (c *jsonAPI) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", c.provider, op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: build request: %w", c.provider, op, err)
	}
	req.Header.Set("Accept", c.contentType)
	if in != nil {
		req.Header.Set("Content-Type", c.contentType)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewRemoteError(c.provider, op, 0, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return NewRemoteError(c.provider, op, 0, "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return NewRemoteError(c.provider, op, resp.StatusCode, errorMessage(data, resp.Status), nil)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		re := NewRemoteError(c.provider, op, resp.StatusCode, "malformed response", err)
		re.Kind = KindRemoteRejected
		return re
	}
	return nil
}

// errorMessage extracts a human readable message from the error bodies the
// supported providers return: JSON:API error lists, {"detail": "..."} and
// validation detail lists.
func errorMessage(data []byte, fallback string) string {
	var body struct {
		Errors []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(data, &body) != nil {
		return fallback
	}
	for _, e := range body.Errors {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Title != "" {
			return e.Title
		}
	}
	if len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil && s != "" {
			return s
		}
		var list []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(body.Detail, &list) == nil && len(list) > 0 && list[0].Msg != "" {
			return list[0].Msg
		}
	}
	if body.Message != "" {
		return body.Message
	}
	if body.Error != "" {
		return body.Error
	}
	return fallback
}
