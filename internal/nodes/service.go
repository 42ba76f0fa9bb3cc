package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/soteldo/umbra/pkg/schema"
)

// ServiceConfig carries the shared dependencies of the online-service nodes.
type ServiceConfig struct {
	// HTTPClient is used by apiCall and webhook nodes. Defaults to a client
	// with DefaultHTTPTimeout when nil.
	HTTPClient *http.Client
	// MaxResponseBytes caps how much of an HTTP response body is read into
	// the result variable. Defaults to DefaultMaxResponseBytes.
	MaxResponseBytes int64

	// SMTP relay settings for the mailSend node. Host left empty disables
	// the node at run time.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
}

const (
	DefaultHTTPTimeout      = 30 * time.Second
	DefaultMaxResponseBytes = 4 << 20
)

func (c ServiceConfig) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

func (c ServiceConfig) responseLimit() int64 {
	if c.MaxResponseBytes > 0 {
		return c.MaxResponseBytes
	}
	return DefaultMaxResponseBytes
}

// doJSONRequest issues the request and decodes the response into a
// {status, headers, body} map. Non-JSON bodies come back as plain strings.
func doJSONRequest(ctx context.Context, cfg ServiceConfig, method, url string, headers map[string]any, body any, timeoutMs int) (map[string]any, error) {
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "request body cannot be encoded as JSON").WithCause(err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid request for %s %s", method, url).WithCause(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, fmt.Sprint(v))
	}

	resp, err := cfg.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout, "request to %s timed out", url).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "request to %s failed", url).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, cfg.responseLimit()))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "reading response from %s failed", url).WithCause(err)
	}

	var decoded any
	if json.Unmarshal(raw, &decoded) != nil {
		decoded = string(raw)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}
	return map[string]any{
		"status":  float64(resp.StatusCode),
		"headers": respHeaders,
		"body":    decoded,
	}, nil
}

// --- API call ---

type apiCallExecutor struct {
	cfg ServiceConfig
}

func newAPICallExecutor(cfg ServiceConfig) *apiCallExecutor {
	return &apiCallExecutor{cfg: cfg}
}

func (e *apiCallExecutor) Kind() schema.NodeKind { return schema.KindAPICall }

func (e *apiCallExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.APICallParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.URL == "" {
		return schema.NewError(schema.ErrCodeValidation, "apiCall requires a url")
	}
	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}

	result, err := doJSONRequest(ctx, e.cfg, method, p.URL, p.Headers, p.Body, p.Timeout)
	if err != nil {
		return err
	}
	if p.ResultVar != "" {
		rt.SetVar(p.ResultVar, result)
	}
	return nil
}

// --- Webhook ---

type webhookExecutor struct {
	cfg ServiceConfig
}

func newWebhookExecutor(cfg ServiceConfig) *webhookExecutor {
	return &webhookExecutor{cfg: cfg}
}

func (e *webhookExecutor) Kind() schema.NodeKind { return schema.KindWebhook }

func (e *webhookExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.WebhookParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.URL == "" {
		return schema.NewError(schema.ErrCodeValidation, "webhook requires a url")
	}

	result, err := doJSONRequest(ctx, e.cfg, http.MethodPost, p.URL, nil, p.Payload, p.Timeout)
	if err != nil {
		return err
	}
	if p.ResultVar != "" {
		rt.SetVar(p.ResultVar, result)
	}
	return nil
}

// --- Mail ---

type mailSendExecutor struct {
	cfg ServiceConfig
	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func newMailSendExecutor(cfg ServiceConfig) *mailSendExecutor {
	return &mailSendExecutor{cfg: cfg, send: smtp.SendMail}
}

func (e *mailSendExecutor) Kind() schema.NodeKind { return schema.KindMailSend }

func (e *mailSendExecutor) Execute(ctx context.Context, rt Runtime, params json.RawMessage) error {
	var p schema.MailSendParams
	if err := decodeParams(params, &p); err != nil {
		return err
	}
	if p.To == "" {
		return schema.NewError(schema.ErrCodeValidation, "mailSend requires a recipient")
	}
	if e.cfg.SMTPHost == "" {
		return schema.NewError(schema.ErrCodeValidation, "no SMTP relay is configured")
	}

	port := e.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	from := e.cfg.SMTPFrom
	if from == "" {
		from = e.cfg.SMTPUser
	}

	var auth smtp.Auth
	if e.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", e.cfg.SMTPUser, e.cfg.SMTPPass, e.cfg.SMTPHost)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", p.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", p.Subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(p.Body)

	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, port)
	if err := e.send(addr, auth, from, strings.Split(p.To, ","), msg.Bytes()); err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution, "sending mail to %s failed", p.To).WithCause(err)
	}
	return nil
}
