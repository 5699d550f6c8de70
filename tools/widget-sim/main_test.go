package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestFirstOpenSkipsTakenSlots(t *testing.T) {
	var resp slotsResponse
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("contractor_id") != "c1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"slots":{"2026-03-02":{"slots":[
			{"start":"08:00","available":false},
			{"start":"09:00","available":true}]}}}`))
	}))
	defer srv.Close()

	c := client{base: srv.URL, http: srv.Client()}
	if err := c.get(context.Background(), "/api/v1/public/availability", url.Values{"contractor_id": {"c1"}}, &resp); err != nil {
		t.Fatalf("get: %v", err)
	}
	start, ok := firstOpen(resp, "2026-03-02")
	if !ok || start != "09:00" {
		t.Fatalf("expected 09:00, got %q %v", start, ok)
	}
	if _, ok := firstOpen(resp, "2026-03-03"); ok {
		t.Fatal("unknown date must have no open slot")
	}
	if err := c.get(context.Background(), "/x", url.Values{}, &resp); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
