package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

type apiClient struct {
	provider string
	http     *http.Client
}

func newAPIClient(provider string) apiClient {
	return apiClient{provider: provider, http: &http.Client{Timeout: 60 * time.Second}}
}

// errorEnvelope matches both the Drive and the Graph error bodies.
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c apiClient) do(ctx context.Context, rawURL, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		msg = env.Error.Message
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Provider: c.provider, Reason: fmt.Sprintf("access denied (status %d): %s", resp.StatusCode, msg)}
	}
	return nil, fmt.Errorf("%s API error (status %d): %s", c.provider, resp.StatusCode, msg)
}

func (c apiClient) getJSON(ctx context.Context, rawURL, token string, out any) error {
	resp, err := c.do(ctx, rawURL, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode %s response: %w", c.provider, err)
	}
	return nil
}

func (c apiClient) getBytes(ctx context.Context, rawURL, token string) ([]byte, error) {
	resp, err := c.do(ctx, rawURL, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	return data, nil
}
