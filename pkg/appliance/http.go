package appliance

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	apiRoot          = "/resources/json/delphix"
	loginNamespace   = "DOMAIN"
	maxResponseBytes = 64 << 20
)

// APIVersion is the REST API version announced when a session starts.
type APIVersion struct {
	Major int
	Minor int
	Micro int
}

// DefaultAPIVersion is announced when Config.APIVersion is zero.
var DefaultAPIVersion = APIVersion{Major: 1, Minor: 10, Micro: 0}

// Config holds the settings of an HTTP appliance client.
type Config struct {
	// Address is the appliance hostname or IP address.
	Address string

	// UseHTTPS selects https instead of http.
	UseHTTPS bool

	// InsecureSkipVerify disables certificate verification for appliances
	// with self-signed certificates.
	InsecureSkipVerify bool

	// BaseURL overrides the scheme and address, e.g. for a test server.
	BaseURL string

	// RequestTimeout bounds every REST call (default: 60s).
	RequestTimeout time.Duration

	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64

	// RateBurst is the limiter burst (default: 1).
	RateBurst int

	// APIVersion is the version announced by StartSession.
	APIVersion APIVersion

	// Engine labels spans and metrics.
	Engine string

	// Observer receives per-call metrics; may be nil.
	Observer RequestObserver

	// Tracer overrides the global tracer.
	Tracer trace.Tracer

	// Transport overrides the HTTP round tripper.
	Transport http.RoundTripper
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Address == "" && c.BaseURL == "" {
		return fmt.Errorf("appliance address is required")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// HTTPClient talks to one appliance over its JSON REST API.
type HTTPClient struct {
	cfg     Config
	base    string
	http    *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer

	closeOnce sync.Once
	loggedIn  bool
	mu        sync.Mutex
}

// NewHTTPClient builds a client. No request is sent until StartSession.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.APIVersion == (APIVersion{}) {
		cfg.APIVersion = DefaultAPIVersion
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseHTTPS {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Address
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed appliances
		}
		transport = t
	}

	c := &HTTPClient{
		cfg:    cfg,
		base:   base + apiRoot,
		http:   &http.Client{Jar: jar, Transport: transport},
		tracer: cfg.Tracer,
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("github.com/ddpfleet/ddpfleet/pkg/appliance")
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// StartSession implements Client.
func (c *HTTPClient) StartSession(ctx context.Context) error {
	body := map[string]any{
		"type": "APISession",
		"version": map[string]any{
			"type":  "APIVersion",
			"major": c.cfg.APIVersion.Major,
			"minor": c.cfg.APIVersion.Minor,
			"micro": c.cfg.APIVersion.Micro,
		},
	}
	_, err := c.call(ctx, http.MethodPost, "session", "session", nil, body)
	return err
}

// Login implements Client.
func (c *HTTPClient) Login(ctx context.Context, username string, cred Credential) error {
	if cred.Kind() != CredentialPassword {
		return fmt.Errorf("login requires a password credential, got %s", cred.Kind())
	}
	err := cred.Reveal(func(secret []byte) error {
		body := map[string]string{
			"type":     "LoginRequest",
			"username": username,
			"password": string(secret),
			"target":   loginNamespace,
		}
		_, callErr := c.call(ctx, http.MethodPost, "login", "login", nil, body)
		return callErr
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
	return nil
}

// Ping implements Client.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodGet, KindSystem.Path(), KindSystem.String(), nil, nil)
	return err
}

// Get implements Client.
func (c *HTTPClient) Get(ctx context.Context, kind Kind, ref string, out any) error {
	path := kind.Path()
	if ref != "" {
		path += "/" + url.PathEscape(ref)
	}
	env, err := c.call(ctx, http.MethodGet, path, kind.String(), nil, nil)
	if err != nil {
		return err
	}
	return decodeResult(env, out)
}

// List implements Client.
func (c *HTTPClient) List(ctx context.Context, kind Kind, query Query, out any) error {
	env, err := c.call(ctx, http.MethodGet, kind.Path(), kind.String(), query, nil)
	if err != nil {
		return err
	}
	return decodeResult(env, out)
}

// Create implements Client.
func (c *HTTPClient) Create(ctx context.Context, kind Kind, body any) (Result, error) {
	env, err := c.call(ctx, http.MethodPost, kind.Path(), kind.String(), nil, body)
	if err != nil {
		return Result{}, err
	}
	return env.result(), nil
}

// Update implements Client.
func (c *HTTPClient) Update(ctx context.Context, kind Kind, ref string, body any) (Result, error) {
	env, err := c.call(ctx, http.MethodPost, kind.Path()+"/"+url.PathEscape(ref), kind.String(), nil, body)
	if err != nil {
		return Result{}, err
	}
	return env.result(), nil
}

// Delete implements Client.
func (c *HTTPClient) Delete(ctx context.Context, kind Kind, ref string, body any) (Result, error) {
	path := kind.Path() + "/" + url.PathEscape(ref)
	method := http.MethodDelete
	if body != nil {
		path += "/delete"
		method = http.MethodPost
	}
	env, err := c.call(ctx, method, path, kind.String(), nil, body)
	if err != nil {
		return Result{}, err
	}
	res := env.result()
	if res.Reference.IsZero() {
		res.Reference = ParseRef(ref)
	}
	return res, nil
}

// Action implements Client.
func (c *HTTPClient) Action(ctx context.Context, kind Kind, ref, action string, body any) (Result, error) {
	path := kind.Path()
	if ref != "" {
		path += "/" + url.PathEscape(ref)
	}
	path += "/" + action
	if body == nil {
		body = struct{}{}
	}
	env, err := c.call(ctx, http.MethodPost, path, kind.String(), nil, body)
	if err != nil {
		return Result{}, err
	}
	res := env.result()
	if res.Reference.IsZero() && ref != "" {
		res.Reference = ParseRef(ref)
	}
	return res, nil
}

// Job implements Client.
func (c *HTTPClient) Job(ctx context.Context, ref string) (*Job, error) {
	var job Job
	if err := c.Get(ctx, KindJob, ref, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Close implements Client.
func (c *HTTPClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		loggedIn := c.loggedIn
		c.mu.Unlock()
		if loggedIn {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err = c.call(ctx, http.MethodPost, "logout", "logout", nil, struct{}{})
		}
		c.http.CloseIdleConnections()
	})
	return err
}

type envelope struct {
	Type   string          `json:"type"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Job    *string         `json:"job"`
	Action *string         `json:"action"`
	Error  *RequestError   `json:"error"`
}

func (e *envelope) result() Result {
	var res Result
	if e.Job != nil {
		res.Job = *e.Job
	}
	if e.Action != nil {
		res.Action = *e.Action
	}
	var ref string
	if len(e.Result) > 0 && json.Unmarshal(e.Result, &ref) == nil {
		res.Reference = ParseRef(ref)
	}
	return res
}

func decodeResult(env *envelope, out any) error {
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", env.Type, err)
	}
	return nil
}

func (c *HTTPClient) call(ctx context.Context, method, path, kind string, query Query, body any) (*envelope, error) {
	// Cancellation is honoured before a request is issued, never during one.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, span := c.tracer.Start(ctx, "appliance."+kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ddp.engine", c.cfg.Engine),
			attribute.String("http.method", method),
			attribute.String("ddp.path", path),
		),
	)
	defer span.End()

	start := time.Now()
	env, err := c.roundTrip(ctx, method, path, query, body)
	c.observe(method, kind, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return env, nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, query Query, body any) (*envelope, error) {
	target := c.base + "/" + path
	if len(query) > 0 {
		target += "?" + encodeQuery(query)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return nil, &HTTPError{Method: method, URL: target, Transport: true, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &HTTPError{
			Method:    method,
			URL:       target,
			Transport: true,
			Timeout:   errors.Is(callCtx.Err(), context.DeadlineExceeded),
			Err:       err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &HTTPError{Method: method, URL: target, StatusCode: resp.StatusCode, Transport: true, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &HTTPError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("malformed response: %w", err),
		}
	}
	if env.Status == "ERROR" || env.Type == "ErrorResult" {
		reqErr := env.Error
		if reqErr == nil {
			reqErr = &RequestError{Details: "unspecified error"}
		}
		reqErr.StatusCode = resp.StatusCode
		return nil, reqErr
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{Method: method, URL: target, StatusCode: resp.StatusCode}
	}
	return &env, nil
}

func (c *HTTPClient) observe(method, kind string, err error, elapsed time.Duration) {
	if c.cfg.Observer == nil {
		return
	}
	outcome := "ok"
	var reqErr *RequestError
	switch {
	case err == nil:
	case errors.As(err, &reqErr):
		outcome = "rejected"
	case IsTransport(err):
		outcome = "transport"
	default:
		outcome = "error"
	}
	c.cfg.Observer.ObserveRequest(c.cfg.Engine, method, kind, outcome, elapsed)
}

func encodeQuery(q Query) string {
	values := url.Values{}
	for k, v := range q {
		values.Set(k, v)
	}
	return values.Encode()
}
