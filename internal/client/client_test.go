package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func stubServer(t *testing.T, wantMethod, wantPath string, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-User") != "alice" {
			t.Errorf("missing principal header")
		}
		if r.Method != wantMethod || r.URL.RequestURI() != wantPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.RequestURI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestListTasks(t *testing.T) {
	server := stubServer(t, http.MethodGet, "/api/v1/tasks/?search=mil", http.StatusOK,
		`[{"id":1,"name":"milk","description":"","items_count":2}]`)

	c := New(server.URL, "alice")
	tasks, err := c.ListTasks(context.Background(), "mil")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "milk" || tasks[0].ItemsCount != 2 {
		t.Fatalf("unexpected tasks: %v", tasks)
	}
}

func TestGetTaskPage(t *testing.T) {
	server := stubServer(t, http.MethodGet, "/api/v1/tasks/7/?items_page=2", http.StatusOK,
		`{"count":3,"next":null,"previous":1,"results":{"id":7,"name":"plan","description":"d","items":[{"id":9,"name":"c","status":"process","tags":[],"planned_date":null}]}}`)

	c := New(server.URL, "alice")
	page, err := c.GetTask(context.Background(), 7, 2)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if page.Count != 3 || page.Next != nil || page.Previous == nil || *page.Previous != 1 {
		t.Fatalf("unexpected envelope: %+v", page)
	}
	if page.Task.ID != 7 || len(page.Items) != 1 || page.Items[0].Name != "c" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	server := stubServer(t, http.MethodDelete, "/api/v1/tasks/4/", http.StatusNotFound,
		`{"error_code":"not_found","error":"not found"}`)

	c := New(server.URL, "alice")
	err := c.DeleteTask(context.Background(), 4)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestUpdateStatuses(t *testing.T) {
	server := stubServer(t, http.MethodPost, "/api/v1/tasks/3/update_status/", http.StatusOK,
		`{"updated":[5],"not_found":[8]}`)

	c := New(server.URL, "alice")
	result, err := c.UpdateStatuses(context.Background(), 3, []StatusUpdate{{ID: 5, Status: "completed"}})
	if err != nil {
		t.Fatalf("update statuses: %v", err)
	}
	if len(result.Updated) != 1 || result.Updated[0] != 5 || len(result.NotFound) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}
