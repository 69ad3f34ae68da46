package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-lackey/maid-server/core"
)

const KindREST = "rest"

const defaultRESTClientTimeout = 30 * time.Second
const defaultRESTResponseBodyLimit int64 = 1 << 20 // 1 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Request struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// Success reports a 2xx status.
func (r Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the trimmed response body.
func (r Response) Text() string {
	return strings.TrimSpace(string(r.Body))
}

// RESTAdapter is the outbound HTTP client shared by the hosting and GitHub
// integrations.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

// JSONRequest encodes payload as the body of a request with a JSON content type.
func JSONRequest(method string, target string, payload any) (Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Request{}, requestError("transport: encode json body", err, map[string]any{"adapter": KindREST, "url": target})
	}
	return Request{
		Method:  method,
		URL:     target,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json", "Accept": "application/json"},
	}, nil
}

// Do executes req. Transport failures are errors; a non-2xx status is not,
// callers decide what it means.
func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.Client == nil {
		return Response{}, core.Internal("transport: rest adapter requires an http client", map[string]any{"adapter": KindREST})
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	parsedURL, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return Response{}, requestError("transport: invalid request url", err, map[string]any{"adapter": KindREST, "url": strings.TrimSpace(req.URL)})
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return Response{}, requestError("transport: absolute request url is required", nil, map[string]any{"adapter": KindREST, "url": parsedURL.String()})
	}

	if len(req.Query) > 0 {
		query := parsedURL.Query()
		for key, value := range req.Query {
			if strings.TrimSpace(key) == "" {
				continue
			}
			query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
		parsedURL.RawQuery = query.Encode()
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, requestError("transport: create http request", err, map[string]any{"adapter": KindREST, "method": method, "url": parsedURL.String()})
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return Response{}, upstreamError("transport: execute http request", err, map[string]any{"adapter": KindREST, "method": method, "url": parsedURL.String()})
	}
	defer httpRes.Body.Close()

	maxBodyBytes := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return Response{}, upstreamError("transport: read response body", err, map[string]any{"adapter": KindREST, "status_code": httpRes.StatusCode})
	}
	if int64(len(body)) > maxBodyBytes {
		return Response{}, upstreamError(fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes), nil, map[string]any{
			"adapter":          KindREST,
			"status_code":      httpRes.StatusCode,
			"response_limit_b": maxBodyBytes,
		})
	}

	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Duration:   time.Since(startedAt),
	}, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultRESTResponseBodyLimit
}
