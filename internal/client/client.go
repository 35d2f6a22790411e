// Package client is a typed HTTP client for the trackd API, used by the
// terminal frontend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	user    string
	http    *http.Client
}

// New builds a client for the given server address acting as user. The user
// travels in the X-Forwarded-User header the service trusts from its
// gateway.
func New(baseURL, user string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx response decoded from the service's error body.
type APIError struct {
	Status  int
	Code    string `json:"error_code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type Task struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ItemsCount  int    `json:"items_count"`
}

type Item struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags"`
	PlannedDate *string  `json:"planned_date"`
}

// TaskPage is one retrieve envelope: the aggregate plus a page of its items.
type TaskPage struct {
	Count    int
	Next     *int
	Previous *int
	Task     Task
	Items    []Item
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ItemDraft struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	PlannedDate *string  `json:"planned_date,omitempty"`
	TagsInput   []string `json:"tags_input,omitempty"`
}

type TaskDraft struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Items       []ItemDraft `json:"items,omitempty"`
}

type StatusUpdate struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type StatusResult struct {
	Updated  []int64 `json:"updated"`
	NotFound []int64 `json:"not_found"`
}

func (c *Client) ListTasks(ctx context.Context, search string) ([]Task, error) {
	path := "/api/v1/tasks/"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}
	var out []Task
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) CreateTask(ctx context.Context, draft TaskDraft) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodPost, "/api/v1/tasks/", draft, &out)
	return out, err
}

func (c *Client) GetTask(ctx context.Context, id int64, page int) (TaskPage, error) {
	return c.getPage(ctx, fmt.Sprintf("/api/v1/tasks/%d/", id), page)
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/tasks/%d/", id), nil, nil)
}

func (c *Client) UpdateStatuses(ctx context.Context, taskID int64, updates []StatusUpdate) (StatusResult, error) {
	var out StatusResult
	payload := map[string][]StatusUpdate{"updates": updates}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/update_status/", taskID), payload, &out)
	return out, err
}

func (c *Client) SaveAsTemplate(ctx context.Context, taskID int64) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/save_as_template/", taskID), nil, &out)
	return out, err
}

func (c *Client) ListTemplates(ctx context.Context) ([]Task, error) {
	var out []Task
	err := c.do(ctx, http.MethodGet, "/api/v1/template/", nil, &out)
	return out, err
}

func (c *Client) GetTemplate(ctx context.Context, id int64, page int) (TaskPage, error) {
	return c.getPage(ctx, fmt.Sprintf("/api/v1/template/%d/", id), page)
}

// Instantiate stamps a new task out of the template, owned by the client's
// user.
func (c *Client) Instantiate(ctx context.Context, templateID int64) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/template/%d/create_from_template/", templateID), nil, &out)
	return out, err
}

func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	var out []Tag
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks/tags/", nil, &out)
	return out, err
}

func (c *Client) getPage(ctx context.Context, path string, page int) (TaskPage, error) {
	if page > 1 {
		path = fmt.Sprintf("%s?items_page=%d", path, page)
	}
	var envelope struct {
		Count    int  `json:"count"`
		Next     *int `json:"next"`
		Previous *int `json:"previous"`
		Results  struct {
			Task
			Items []Item `json:"items"`
		} `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return TaskPage{}, err
	}
	return TaskPage{
		Count:    envelope.Count,
		Next:     envelope.Next,
		Previous: envelope.Previous,
		Task:     envelope.Results.Task,
		Items:    envelope.Results.Items,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Forwarded-User", c.user)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Code = "internal"
			apiErr.Message = resp.Status
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
