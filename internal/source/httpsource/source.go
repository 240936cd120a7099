// Package httpsource fetches status snapshots from a JSON HTTP endpoint.
package httpsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"statusbot/internal/watch"
	logx "statusbot/pkg/logx"
)

const (
	defaultTimeout = 30 * time.Second
	// maxBody caps the response size read into memory.
	maxBody = 8 << 20
)

type Config struct {
	Endpoint    string
	Token       string
	AuthScheme  string // default "OAuth"
	CursorParam string // default "from_date"
	Timeout     time.Duration
}

// Source performs GET <endpoint>?<cursor_param>=<cursor> and decodes the body
// into an untyped JSON value for watch.Validate.
type Source struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
}

// New builds a Source. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, log logx.Logger) (*Source, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("httpsource: endpoint is required")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("httpsource: invalid endpoint: %w", err)
	}
	if strings.TrimSpace(cfg.AuthScheme) == "" {
		cfg.AuthScheme = "OAuth"
	}
	if strings.TrimSpace(cfg.CursorParam) == "" {
		cfg.CursorParam = "from_date"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{cfg: cfg, client: client, log: log}, nil
}

// Fetch implements watch.Source. Every failure is a SourceUnreachable error.
func (s *Source) Fetch(ctx context.Context, cursor int64) (any, error) {
	params := url.Values{}
	params.Set(s.cfg.CursorParam, strconv.FormatInt(cursor, 10))

	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return nil, watch.NewError(watch.SourceUnreachable, err, "endpoint %s", s.cfg.Endpoint)
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, watch.NewError(watch.SourceUnreachable, err, "build request")
	}
	req.Header.Set("Authorization", s.cfg.AuthScheme+" "+s.cfg.Token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, watch.NewError(watch.SourceUnreachable, err,
			"GET %s params=%s", s.cfg.Endpoint, params.Encode())
	}
	defer resp.Body.Close()

	s.log.Debug("status source responded",
		logx.Int("code", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, watch.NewError(watch.SourceUnreachable, nil,
			"GET %s params=%s: HTTP %d", s.cfg.Endpoint, params.Encode(), resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBody))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		// A body that arrived but does not parse is the endpoint's fault, not the network's.
		var syn *json.SyntaxError
		if errors.As(err, &syn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, watch.NewError(watch.MalformedResponse, err, "invalid JSON from %s", s.cfg.Endpoint)
		}
		return nil, watch.NewError(watch.SourceUnreachable, err, "read body from %s", s.cfg.Endpoint)
	}
	return v, nil
}
