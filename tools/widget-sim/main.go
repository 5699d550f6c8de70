package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/homeservices/libs/config"
	"github.com/md-rashed-zaman/homeservices/libs/grpcx"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// widget-sim walks the public booking flow the way the embedded widget does:
// next open dates, the slots of the first one, then optionally a booking.
func main() {
	var (
		baseURL    = flag.String("base-url", config.String("BASE_URL", "http://localhost:8083"), "availability service base url")
		grpcAddr   = flag.String("grpc-addr", config.String("GRPC_ADDR", ""), "optional grpc address to health-check first")
		contractor = flag.String("contractor-id", config.String("CONTRACTOR_ID", ""), "contractor to query")
		service    = flag.String("service-type", config.String("SERVICE_TYPE", ""), "service type to size slots for")
		book       = flag.Bool("book", false, "book the first open slot")
		name       = flag.String("customer-name", "Widget Sim", "customer name for -book")
		phone      = flag.String("customer-phone", "555-0100", "customer phone for -book")
		address    = flag.String("customer-address", "1 Test Street", "customer address for -book")
	)
	flag.Parse()

	if strings.TrimSpace(*contractor) == "" {
		fatal("CONTRACTOR_ID is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if *grpcAddr != "" {
		if err := checkHealth(ctx, *grpcAddr); err != nil {
			fatal("grpc health: " + err.Error())
		}
		fmt.Println("grpc=SERVING")
	}

	c := client{base: strings.TrimRight(*baseURL, "/"), http: &http.Client{Timeout: 10 * time.Second}}

	var next struct {
		Dates []struct {
			Date           string `json:"date"`
			AvailableCount int    `json:"available_count"`
		} `json:"dates"`
		Error string `json:"error"`
	}
	if err := c.get(ctx, "/api/v1/public/availability/next", url.Values{"contractor_id": {*contractor}, "count": {"5"}}, &next); err != nil {
		fatal(err.Error())
	}
	if next.Error != "" {
		fatal(next.Error)
	}
	if len(next.Dates) == 0 {
		fmt.Println("no open dates")
		return
	}
	for _, d := range next.Dates {
		fmt.Printf("date=%s open=%d\n", d.Date, d.AvailableCount)
	}

	date := next.Dates[0].Date
	var slots slotsResponse
	q := url.Values{"contractor_id": {*contractor}, "start_date": {date}}
	if *service != "" {
		q.Set("service_type", *service)
	}
	if err := c.get(ctx, "/api/v1/public/availability", q, &slots); err != nil {
		fatal(err.Error())
	}
	start, ok := firstOpen(slots, date)
	if !ok {
		fmt.Printf("no open slot on %s\n", date)
		return
	}
	fmt.Printf("first_open=%s %s\n", date, start)
	if !*book {
		return
	}

	body, err := json.Marshal(map[string]string{
		"contractor_id":    *contractor,
		"service_type":     *service,
		"date":             date,
		"time":             start,
		"customer_name":    *name,
		"customer_phone":   *phone,
		"customer_address": *address,
	})
	if err != nil {
		fatal(err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/public/book", bytes.NewReader(body))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	fmt.Printf("status=%d\n", resp.StatusCode)
}

type slotsResponse struct {
	Slots map[string]struct {
		Slots []struct {
			Start     string `json:"start"`
			Available bool   `json:"available"`
		} `json:"slots"`
	} `json:"slots"`
	Error string `json:"error"`
}

func firstOpen(resp slotsResponse, date string) (string, bool) {
	for _, s := range resp.Slots[date].Slots {
		if s.Available {
			return s.Start, true
		}
	}
	return "", false
}

type client struct {
	base string
	http *http.Client
}

func (c client) get(ctx context.Context, path string, q url.Values, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func checkHealth(ctx context.Context, addr string) error {
	conn, err := grpcx.Dial(addr, grpcx.DialOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "availability"})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return errors.New(resp.GetStatus().String())
	}
	return nil
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
