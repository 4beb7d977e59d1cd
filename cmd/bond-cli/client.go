package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"
)

type envelope struct {
	Value   json.RawMessage `json:"value"`
	Error   *uint32         `json:"error"`
	Message string          `json:"message"`
}

// registryError is a failure reported by the registry with a stable code.
type registryError struct {
	code    uint32
	message string
}

func (e *registryError) Error() string {
	return fmt.Sprintf("registry error %d: %s", e.code, e.message)
}

func (c *cli) call(method, path string, body any) (any, error) {
	endpoint := strings.TrimRight(c.endpoint, "/") + path
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if env.Error != nil {
		return nil, &registryError{code: *env.Error, message: env.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", resp.Status, env.Message)
	}
	var value any
	dec := json.NewDecoder(bytes.NewReader(env.Value))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return value, nil
}

func (c *cli) print(value any) error {
	switch c.output {
	case "yaml":
		out, err := yaml.Marshal(yamlSafe(value))
		if err != nil {
			return err
		}
		_, err = c.stdout.Write(out)
		return err
	default:
		enc := json.NewEncoder(c.stdout)
		if c.pretty {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(value)
	}
}

// yamlSafe converts json.Number values into YAML integers when they fit and
// strings otherwise.
func yamlSafe(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		return v.String()
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, entry := range v {
			out[key] = yamlSafe(entry)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, entry := range v {
			out[i] = yamlSafe(entry)
		}
		return out
	default:
		return value
	}
}
