package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// HTTPClient sends every call as a JSON POST to {baseURL}/{call}.
//
// A 2xx body carrying an "errorcode" or "exception" field is a server rejection,
// as are 4xx statuses. 5xx, 429 and network failures are connectivity errors.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type remoteError struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

func (c *HTTPClient) Read(ctx context.Context, call string, args Args, _ ReadOptions) (Response, error) {
	return c.do(ctx, call, args)
}

func (c *HTTPClient) Write(ctx context.Context, call string, args Args) (Response, error) {
	return c.do(ctx, call, args)
}

func (c *HTTPClient) do(ctx context.Context, call string, args Args) (Response, error) {
	if args == nil {
		args = Args{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%s: encode args: %w", call, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+call, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", call, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectivityError{Call: call, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectivityError{Call: call, Err: err}
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ConnectivityError{Call: call, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		rejection := decodeRemoteError(data)
		code := rejection.ErrorCode
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return nil, &ServerError{Call: call, Code: code, Message: rejection.Message}
	}

	if rejection := decodeRemoteError(data); rejection.ErrorCode != "" || rejection.Exception != "" {
		code := rejection.ErrorCode
		if code == "" {
			code = rejection.Exception
		}
		return nil, &ServerError{Call: call, Code: code, Message: rejection.Message}
	}

	return Response(data), nil
}

// decodeRemoteError reads an error object; anything else decodes to the zero value.
func decodeRemoteError(data []byte) remoteError {
	var re remoteError
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return re
	}
	_ = json.Unmarshal(trimmed, &re)
	return re
}
