package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthProber asks the backend's gRPC health service.
type HealthProber struct {
	client  healthpb.HealthClient
	service string
}

func NewHealthProber(conn grpc.ClientConnInterface, service string) *HealthProber {
	return &HealthProber{client: healthpb.NewHealthClient(conn), service: service}
}

func (p *HealthProber) Probe(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("backend not serving: %s", resp.GetStatus())
	}
	return nil
}

// HTTPProber fetches a URL. Any HTTP response counts as reachable.
type HTTPProber struct {
	client *http.Client
	url    string
}

func NewHTTPProber(client *http.Client, url string) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{client: client, url: url}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	q.Set("v", strconv.FormatInt(time.Now().UnixMilli(), 10))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Cache-Control", "no-store")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
