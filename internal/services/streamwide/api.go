package streamwide

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ddanialb/Film/internal/services"
)

const component = "streamwide"

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type request struct {
	method  string
	url     string
	op      string
	token   string
	headers map[string]string
	body    any
}

// doJSON executes req and decodes a 2xx response into out. Failures are
// classified with the services markers: transport and 5xx/429 responses are
// transient, 401/403 are auth errors, 404 is not-found, and any other status
// is a validation error.
func doJSON(ctx context.Context, client HTTPDoer, req request, out any) error {
	var reader io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return services.Wrap(services.ErrValidation, component, req.op, "marshal request body", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, reader)
	if err != nil {
		return services.Wrap(services.ErrValidation, component, req.op, "build request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	requestStart := time.Now()
	resp, err := client.Do(httpReq)
	latency := time.Since(requestStart).Round(time.Millisecond)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return services.Wrap(services.ErrTimeout, component, req.op, fmt.Sprintf("request aborted (latency=%v)", latency), ctxErr)
		}
		return services.Wrap(services.ErrTransient, component, req.op, fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return statusError(req.op, resp.StatusCode, strings.TrimSpace(string(snippet)), latency)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, component, req.op, "decode response", err)
	}
	return nil
}

func statusError(op string, status int, body string, latency time.Duration) error {
	detail := fmt.Sprintf("returned %d (latency=%v)", status, latency)
	if body != "" {
		detail += ": " + body
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.NewAuthError(services.AuthRejected, fmt.Errorf("%s %s", op, detail))
	case status == http.StatusTooManyRequests || status >= 500:
		return services.Wrap(services.ErrTransient, component, op, detail, nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, component, op, detail, nil)
	default:
		return services.Wrap(services.ErrValidation, component, op, detail, nil)
	}
}

// flexString decodes a JSON string or number into a string. The catalog
// returns numeric IDs on some endpoints and UUID strings on others.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt64 decodes a JSON number or numeric string. Unparseable values
// decode as zero.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	text := strings.Trim(string(data), `"`)
	if text == "" || text == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt64(n)
	return nil
}
