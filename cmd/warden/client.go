package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// APIClient provides HTTP client functionality to communicate with the
// warden daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/healthz")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// StartProcess starts one process, or every registered process when name is
// empty. The started flag is only meaningful for a single process.
func (c *APIClient) StartProcess(name string) (bool, error) {
	u := c.baseURL + "/start"
	if name != "" {
		u += "?name=" + url.QueryEscape(name)
	}
	resp, err := c.client.Post(u, "application/json", nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, decodeAPIError(resp)
	}
	var r struct {
		Started bool `json:"started"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return false, err
	}
	return r.Started, nil
}

// StopProcess stops one process, or every registered process when name is
// empty.
func (c *APIClient) StopProcess(name string, wait time.Duration) error {
	u := c.baseURL + "/stop?wait=" + wait.String()
	if name != "" {
		u += "&name=" + url.QueryEscape(name)
	}
	resp, err := c.client.Post(u, "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return nil
}

// RestartProcess restarts one process, or every registered process when name
// is empty.
func (c *APIClient) RestartProcess(name string, wait time.Duration) error {
	u := c.baseURL + "/restart?wait=" + wait.String()
	if name != "" {
		u += "&name=" + url.QueryEscape(name)
	}
	resp, err := c.client.Post(u, "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return nil
}

// GetStatus gets one process status (name set) or all statuses (name empty).
func (c *APIClient) GetStatus(name string) (interface{}, error) {
	u := c.baseURL + "/status"
	if name != "" {
		u += "?name=" + url.QueryEscape(name)
	}
	resp, err := c.client.Get(u)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var result interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}

func decodeAPIError(resp *http.Response) error {
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}
