package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/handsdb/hands/internal/connector"
)

const defaultHTTPTimeout = 30 * time.Second

// errServerStatus marks a 5xx response, which is retried.
var errServerStatus = errors.New("server error")

// RetryConfig defines retry behavior for the HTTP fetch.
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// httpJSONConfig is the config of the "http_json" kind.
type httpJSONConfig struct {
	URL         string            `mapstructure:"url"`
	Method      string            `mapstructure:"method"`
	Headers     map[string]string `mapstructure:"headers"`
	Body        string            `mapstructure:"body"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Retry       RetryConfig       `mapstructure:"retry"`
	RecordsPath string            `mapstructure:"records_path"`
	Table       string            `mapstructure:"table"`
	Columns     map[string]string `mapstructure:"columns"`
	Key         string            `mapstructure:"key"`
}

// HTTPJSON fetches a JSON document and writes its records into a workbook
// table. ${NAME} in the URL, headers and body expands to resolved secrets.
type HTTPJSON struct {
	cfg     httpJSONConfig
	columns []string
	client  *http.Client
}

// NewHTTPJSON is the Factory for the "http_json" kind.
func NewHTTPJSON(config map[string]interface{}) (Handler, error) {
	var cfg httpJSONConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("table is required")
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("columns mapping is required")
	}
	if cfg.Key != "" {
		if _, ok := cfg.Columns[cfg.Key]; !ok {
			return nil, fmt.Errorf("key %q must be one of the mapped columns", cfg.Key)
		}
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.Retry.Attempts < 1 {
		cfg.Retry.Attempts = 1
	}

	columns := make([]string, 0, len(cfg.Columns))
	for col := range cfg.Columns {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	return &HTTPJSON{
		cfg:     cfg,
		columns: columns,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Run fetches the document, extracts records and upserts them.
func (h *HTTPJSON) Run(ctx context.Context, env *Env) (interface{}, error) {
	if env.Conn == nil || env.Conn.DB() == nil {
		return nil, fmt.Errorf("http_json handler requires a workbook database")
	}

	body, err := h.fetch(ctx, env)
	if err != nil {
		return nil, err
	}

	records, err := extractRecords(body, h.cfg.RecordsPath)
	if err != nil {
		return nil, err
	}
	env.Log.Info("fetched records", "count", len(records))

	stmt, err := env.Conn.BuildUpsert(connector.UpsertRequest{
		Table:   h.cfg.Table,
		Columns: h.columns,
		Key:     h.cfg.Key,
	})
	if err != nil {
		return nil, err
	}

	written := 0
	for i, rec := range records {
		obj, ok := rec.(map[string]interface{})
		if !ok {
			env.Log.Warn("skipping non-object record", "index", i)
			continue
		}
		args := make([]interface{}, len(h.columns))
		for j, col := range h.columns {
			args[j] = columnValue(lookupPath(obj, h.cfg.Columns[col]))
		}
		if _, err := env.Conn.DB().ExecContext(ctx, stmt, args...); err != nil {
			return nil, fmt.Errorf("write record %d: %w", i, err)
		}
		written++
	}
	env.Log.Info("wrote records", "table", h.cfg.Table, "count", written)

	return map[string]interface{}{
		"fetched": len(records),
		"written": written,
	}, nil
}

// fetch performs the request with retry on network errors and 5xx.
func (h *HTTPJSON) fetch(ctx context.Context, env *Env) (interface{}, error) {
	expand := func(s string) string {
		return os.Expand(s, env.Secret)
	}

	var lastErr error
	for attempt := 1; attempt <= h.cfg.Retry.Attempts; attempt++ {
		if attempt > 1 {
			env.Log.Warn("retrying request", "attempt", attempt, "of", h.cfg.Retry.Attempts, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.cfg.Retry.Delay):
			}
		}

		var reqBody io.Reader
		if h.cfg.Body != "" {
			reqBody = strings.NewReader(expand(h.cfg.Body))
		}
		req, err := http.NewRequestWithContext(ctx, h.cfg.Method, expand(h.cfg.URL), reqBody)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range h.cfg.Headers {
			req.Header.Set(k, expand(v))
		}

		body, err := h.do(req)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr interface{ Timeout() bool }
		if !errors.Is(err, errServerStatus) && !errors.As(err, &netErr) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all %d attempts failed, last error: %w", h.cfg.Retry.Attempts, lastErr)
}

func (h *HTTPJSON) do(req *http.Request) (interface{}, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w (status %d)", errServerStatus, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body, nil
}

// extractRecords walks a dotted path into body. The target must be an array,
// or a single object which is treated as one record.
func extractRecords(body interface{}, path string) ([]interface{}, error) {
	target := body
	if path != "" {
		obj, ok := body.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("records_path %q: response is not an object", path)
		}
		target = lookupPath(obj, path)
		if target == nil {
			return nil, fmt.Errorf("records_path %q not found in response", path)
		}
	}

	switch v := target.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		return []interface{}{v}, nil
	default:
		return nil, fmt.Errorf("records at %q are %T, want array or object", path, target)
	}
}

// lookupPath resolves a dotted field path ("user.address.city") in obj.
func lookupPath(obj map[string]interface{}, path string) interface{} {
	var cur interface{} = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// columnValue converts a decoded JSON value into a driver argument. Nested
// values are stored as JSON text.
func columnValue(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]interface{}, []interface{}:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return val
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
