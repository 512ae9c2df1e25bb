// Package restkv is a minimal client for Redis-over-HTTP services that speak
// the Upstash REST protocol: a command is POSTed as a JSON array and answered
// with {"result": ...} or {"error": "..."}.
package restkv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrBinaryValue is returned by Set for values that are not UTF-8; the
// protocol carries them as JSON strings.
var ErrBinaryValue = errors.New("restkv: value is not valid UTF-8")

// Error is a command failure reported by the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("restkv: %s (status %d)", e.Message, e.Status)
}

type Config struct {
	URL        string
	Token      string
	HTTPClient *http.Client // nil => a client with a 10s timeout
}

type Client struct {
	url   string
	token string
	hc    *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("restkv: URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("restkv: token is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: strings.TrimRight(cfg.URL, "/"), token: cfg.Token, hc: hc}, nil
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Do sends one command and returns the raw JSON result.
func (c *Client) Do(ctx context.Context, args ...any) (json.RawMessage, error) {
	cmd := make([]string, len(args))
	for i, a := range args {
		cmd[i] = arg(a)
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return nil, fmt.Errorf("restkv: decode response: %w", err)
	}
	if r.Error != nil {
		return nil, &Error{Status: resp.StatusCode, Message: *r.Error}
	}
	if resp.StatusCode >= 300 {
		return nil, &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return r.Result, nil
}

// String runs a command answering a bulk string; ok is false on null.
func (c *Client) String(ctx context.Context, args ...any) (s string, ok bool, err error) {
	res, err := c.Do(ctx, args...)
	if err != nil || isNull(res) {
		return "", false, err
	}
	if err := json.Unmarshal(res, &s); err != nil {
		return "", false, fmt.Errorf("restkv: %v: expected string result: %w", args[0], err)
	}
	return s, true, nil
}

// Int runs a command answering an integer.
func (c *Client) Int(ctx context.Context, args ...any) (int64, error) {
	res, err := c.Do(ctx, args...)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := json.Unmarshal(res, &n); err != nil {
		return 0, fmt.Errorf("restkv: %v: expected integer result: %w", args[0], err)
	}
	return n, nil
}

// Strings runs a command answering an array of bulk strings; null elements
// are nil.
func (c *Client) Strings(ctx context.Context, args ...any) ([]*string, error) {
	res, err := c.Do(ctx, args...)
	if err != nil {
		return nil, err
	}
	var out []*string
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, fmt.Errorf("restkv: %v: expected array result: %w", args[0], err)
	}
	return out, nil
}

// Scan runs one SCAN step and returns the next cursor and the keys.
func (c *Client) Scan(ctx context.Context, cursor, match string, count int) (string, []string, error) {
	res, err := c.Do(ctx, "SCAN", cursor, "MATCH", match, "COUNT", count)
	if err != nil {
		return "", nil, err
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(res, &parts); err != nil || len(parts) != 2 {
		return "", nil, fmt.Errorf("restkv: SCAN: unexpected result %s", res)
	}
	var next string
	if err := json.Unmarshal(parts[0], &next); err != nil {
		// some servers answer the cursor as a number
		var n int64
		if err := json.Unmarshal(parts[0], &n); err != nil {
			return "", nil, fmt.Errorf("restkv: SCAN: bad cursor %s", parts[0])
		}
		next = strconv.FormatInt(n, 10)
	}
	var keys []string
	if err := json.Unmarshal(parts[1], &keys); err != nil {
		return "", nil, fmt.Errorf("restkv: SCAN: bad keys %s", parts[1])
	}
	return next, keys, nil
}

// Set writes value, with SET ... PXAT when expires is set.
func (c *Client) Set(ctx context.Context, key string, value []byte, expires time.Time) error {
	if !utf8.Valid(value) {
		return ErrBinaryValue
	}
	var err error
	if expires.IsZero() {
		_, err = c.Do(ctx, "SET", key, value)
	} else {
		_, err = c.Do(ctx, "SET", key, value, "PXAT", expires.UnixMilli())
	}
	return err
}

// Flush runs FLUSHALL without a prefix, otherwise DeleteByPrefix.
func (c *Client) Flush(ctx context.Context, prefix string) error {
	if prefix == "" {
		_, err := c.Do(ctx, "FLUSHALL")
		return err
	}
	return c.DeleteByPrefix(ctx, prefix)
}

// DeleteByPrefix removes every key starting with prefix using SCAN + DEL.
func (c *Client) DeleteByPrefix(ctx context.Context, prefix string) error {
	match := EscapeGlob(prefix) + "*"
	cursor := "0"
	for {
		next, keys, err := c.Scan(ctx, cursor, match, 500)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			args := make([]any, 0, len(keys)+1)
			args = append(args, "DEL")
			for _, k := range keys {
				args = append(args, k)
			}
			if _, err := c.Do(ctx, args...); err != nil {
				return err
			}
		}
		if next == "0" {
			return nil
		}
		cursor = next
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// EscapeGlob quotes the SCAN MATCH metacharacters in s.
func EscapeGlob(s string) string { return globEscaper.Replace(s) }

func isNull(b json.RawMessage) bool {
	return len(b) == 0 || string(b) == "null"
}

func arg(a any) string {
	switch v := a.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}
