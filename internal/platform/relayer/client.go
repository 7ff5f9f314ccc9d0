// Package relayer is an HTTP client for the gasless transaction relayer.
// The relayer deploys and operates a Safe proxy wallet on the user's
// behalf and pays gas for relayed calls.
package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/crypto"
)

const (
	// DefaultBaseURL is the production relayer endpoint.
	DefaultBaseURL = "https://relayer-v2.polymarket.com"

	taskPollInterval = 2 * time.Second
	taskWaitTimeout  = 90 * time.Second
)

// Client talks to the relayer REST API. Requests are authenticated with
// the same HMAC header scheme the CLOB uses, carrying builder credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	address    string
	creds      crypto.APICredentials
}

// NewClient creates a relayer client for the given wallet address and
// builder credentials.
func NewClient(baseURL, address string, creds crypto.APICredentials) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		address:    address,
		creds:      creds,
	}
}

// Task is a relayed operation in flight.
type Task struct {
	client *Client
	ID     string
}

// TaskResult is the terminal state of a relayed operation.
type TaskResult struct {
	TransactionHash string
	ProxyAddress    string
}

type taskResponse struct {
	TaskID          string `json:"taskId"`
	State           string `json:"state"`
	TransactionHash string `json:"transactionHash"`
	ProxyAddress    string `json:"proxyAddress"`
	Error           string `json:"error"`
}

// Deploy asks the relayer to deploy the Safe proxy wallet for the client's
// address. Deploying an existing Safe fails with a message AlreadyDeployed
// recognizes.
func (c *Client) Deploy(ctx context.Context) (*Task, error) {
	body := map[string]any{"from": c.address, "chainId": ChainID}

	resp, err := c.post(ctx, "/deploy", body)
	if err != nil {
		return nil, fmt.Errorf("relayer: deploy: %w", err)
	}
	return &Task{client: c, ID: resp.TaskID}, nil
}

// Execute submits a batch of transactions for relayed execution.
func (c *Client) Execute(ctx context.Context, txs []Transaction, description string) (*Task, error) {
	body := map[string]any{
		"from":         c.address,
		"chainId":      ChainID,
		"transactions": txs,
		"description":  description,
	}

	resp, err := c.post(ctx, "/execute", body)
	if err != nil {
		return nil, fmt.Errorf("relayer: execute %q: %w", description, err)
	}
	return &Task{client: c, ID: resp.TaskID}, nil
}

// Wait polls the task until it reaches a terminal state. It returns the
// transaction hash on success and the relayer's error on failure.
func (t *Task) Wait(ctx context.Context) (TaskResult, error) {
	ctx, cancel := context.WithTimeout(ctx, taskWaitTimeout)
	defer cancel()

	ticker := time.NewTicker(taskPollInterval)
	defer ticker.Stop()

	for {
		resp, err := t.client.getTask(ctx, t.ID)
		if err != nil {
			return TaskResult{}, fmt.Errorf("relayer: poll task %s: %w", t.ID, err)
		}

		switch resp.State {
		case "STATE_EXECUTED", "STATE_CONFIRMED", "STATE_MINED":
			return TaskResult{
				TransactionHash: resp.TransactionHash,
				ProxyAddress:    resp.ProxyAddress,
			}, nil
		case "STATE_FAILED", "STATE_REVERTED":
			return TaskResult{}, fmt.Errorf("relayer: task %s failed: %s", t.ID, resp.Error)
		}

		select {
		case <-ctx.Done():
			return TaskResult{}, fmt.Errorf("relayer: waiting for task %s: %w", t.ID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// AlreadyDeployed reports whether err is the relayer's way of saying the
// Safe wallet already exists, which callers treat as success.
func AlreadyDeployed(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already deployed") ||
		strings.Contains(msg, "Safe already exists") ||
		strings.Contains(msg, "KB-500")
}

func (c *Client) post(ctx context.Context, path string, body any) (taskResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return taskResponse{}, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return taskResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.sign(req, http.MethodPost, path, payload); err != nil {
		return taskResponse{}, err
	}

	return c.do(req)
}

func (c *Client) getTask(ctx context.Context, taskID string) (taskResponse, error) {
	path := "/task/" + taskID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return taskResponse{}, fmt.Errorf("create request: %w", err)
	}
	if err := c.sign(req, http.MethodGet, path, nil); err != nil {
		return taskResponse{}, err
	}
	return c.do(req)
}

func (c *Client) sign(req *http.Request, method, path string, body []byte) error {
	if c.creds.APIKey == "" {
		return nil // unauthenticated relayer, e.g. local stub
	}
	headers, err := crypto.L2Headers(c.creds, c.address, method, path, body)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return nil
}

func (c *Client) do(req *http.Request) (taskResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return taskResponse{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return taskResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return taskResponse{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var tr taskResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return taskResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if tr.Error != "" && tr.TaskID == "" {
		return taskResponse{}, fmt.Errorf("relayer error: %s", tr.Error)
	}
	return tr, nil
}
