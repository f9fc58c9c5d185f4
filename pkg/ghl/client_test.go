package ghl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	return NewClient(&Config{BaseURL: url + "/", Timeout: 2 * time.Second}, nil)
}

func TestMoveOpportunity(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotStage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotStage = body["stageId"]
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"opp-1"}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).MoveOpportunity(context.Background(), "key", "pipe-1", "stage-2", "opp-1"); err != nil {
		t.Fatalf("MoveOpportunity: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("method = %s", gotMethod)
	}
	if gotPath != "/pipelines/pipe-1/opportunities/opp-1" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer key" {
		t.Errorf("auth = %s", gotAuth)
	}
	if gotStage != "stage-2" {
		t.Errorf("stageId = %s", gotStage)
	}
}

func TestMoveOpportunity_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"msg":"bad stage"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).MoveOpportunity(context.Background(), "key", "p", "s", "o")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Body != `{"msg":"bad stage"}` {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestListPipelines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pipelines/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pipelines":[{"id":"p1","name":"Sales","stages":[{"id":"s1","name":"New","position":0},{"id":"s2","name":"Won","position":1}]}]}`))
	}))
	defer srv.Close()

	pipelines, err := newTestClient(srv.URL).ListPipelines(context.Background(), "key")
	if err != nil {
		t.Fatalf("ListPipelines: %v", err)
	}
	if len(pipelines) != 1 || len(pipelines[0].Stages) != 2 || pipelines[0].Stages[1].ID != "s2" {
		t.Fatalf("unexpected pipelines: %+v", pipelines)
	}
}

func TestListPipelines_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	pipelines, err := newTestClient(srv.URL).ListPipelines(context.Background(), "key")
	if err != nil {
		t.Fatalf("ListPipelines: %v", err)
	}
	if pipelines == nil || len(pipelines) != 0 {
		t.Fatalf("expected empty slice, got %#v", pipelines)
	}
}

func TestMoveOpportunity_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newTestClient(url).MoveOpportunity(context.Background(), "key", "p", "s", "o")
	if err == nil {
		t.Fatal("expected transport error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("transport failure should not be an APIError")
	}
}
