package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServeOpenAPI(t *testing.T) {
	rw := httptest.NewRecorder()
	serveOpenAPI(rw, httptest.NewRequest(http.MethodGet, "/openapi", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if ct := rw.Header().Get("Content-Type"); ct != "application/yaml" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rw.Body.String()
	for _, path := range []string{"/api/v1/public/availability:", "/api/v1/public/book:", "/api/v1/contractor/service-types:"} {
		if !strings.Contains(body, path) {
			t.Fatalf("openapi document missing %s", path)
		}
	}
}

func TestStartGRPCDisabledWithoutPort(t *testing.T) {
	t.Setenv("GRPC_PORT", "")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv, err := startGRPC(ctx, nil, nil)
	if err != nil || srv != nil {
		t.Fatalf("expected no grpc server, got %v %v", srv, err)
	}
}
