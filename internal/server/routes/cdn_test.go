package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/cdn-hub/internal/cdn"
	"github.com/any-hub/cdn-hub/internal/remote"
)

func TestCDNStatusReportsLifecycle(t *testing.T) {
	env := newRouteEnv(t)

	resp := env.get("/-/cdn/status")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status cdn.Status
	decodeJSON(t, resp, &status)
	if status.State != cdn.StateInitializing || status.Container != "assets" {
		t.Fatalf("unexpected status %+v", status)
	}

	env.ready()
	decodeJSON(t, env.get("/-/cdn/status"), &status)
	if status.State != cdn.StateReady || status.CDNURI != "http://localhost:5000/-/origin/assets" {
		t.Fatalf("unexpected status after init %+v", status)
	}
}

func TestCDNURLEndpoint(t *testing.T) {
	env := newRouteEnv(t)
	env.writeAsset("x.js", "1")
	env.ready()

	if resp := env.get("/-/cdn/url"); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", resp.StatusCode)
	}
	if resp := env.get("/-/cdn/url?file=x.js&immediate=maybe"); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for invalid immediate, got %d", resp.StatusCode)
	}

	env.get("/-/cdn/url?file=x.js")
	env.cdn.Wait()

	var payload urlPayload
	decodeJSON(t, env.get("/-/cdn/url?file=x.js"), &payload)
	if !payload.Uploaded || payload.State != cdn.Resolved || payload.File != "x.js" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if filepath.Ext(payload.URL) != ".js" || !bytes.HasPrefix([]byte(payload.URL), []byte("http://localhost:5000/-/origin/assets/x-")) {
		t.Fatalf("unexpected url %s", payload.URL)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newRouteEnv(t)
	env.ready()
	env.get("/-/cdn/url?file=missing.js")
	env.cdn.Wait()

	resp := env.get("/-/metrics")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"cdn_hub_cache_lookups_total", "cdn_hub_uploads_total"} {
		if !bytes.Contains(body, []byte(name)) {
			t.Fatalf("metric %s missing from output", name)
		}
	}
}

func TestOriginServesUploadedObjects(t *testing.T) {
	env := newRouteEnv(t)
	env.writeAsset("x.js", "console.log(1)")
	env.ready()
	env.get("/-/cdn/url?file=x.js")
	env.cdn.Wait()

	entry := env.cdn.Lookup("x.js")
	objectPath := entry.URL[len("http://localhost:5000"):]
	resp := env.get(objectPath)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for %s, got %d", objectPath, resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("stored headers should be replayed: %v", resp.Header)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "console.log(1)" {
		t.Fatalf("unexpected body %s", body)
	}

	if resp := env.get("/-/origin/assets/nope.js"); resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := env.get(objectPath + ".headers"); resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("sidecar must not be served, got %d", resp.StatusCode)
	}
}

type routeEnv struct {
	t    *testing.T
	app  *fiber.App
	cdn  *cdn.CDN
	root string
}

func newRouteEnv(t *testing.T) *routeEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := remote.NewDisk(t.TempDir(), "http://localhost:5000/-/origin")
	if err != nil {
		t.Fatalf("create disk store: %v", err)
	}
	reg := prometheus.NewRegistry()
	metrics, err := cdn.NewMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	root := t.TempDir()
	instance, err := cdn.New(cdn.Options{
		Container: "assets",
		Store:     store,
		Root:      root,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		t.Fatalf("create cdn: %v", err)
	}
	t.Cleanup(func() {
		instance.Wait()
		_ = instance.Destroy()
	})

	app := fiber.New()
	RegisterCDNRoutes(app, instance, reg)
	RegisterOriginRoutes(app, store)
	return &routeEnv{t: t, app: app, cdn: instance, root: root}
}

func (e *routeEnv) writeAsset(name, content string) {
	e.t.Helper()
	if err := os.WriteFile(filepath.Join(e.root, name), []byte(content), 0o644); err != nil {
		e.t.Fatalf("write asset: %v", err)
	}
}

func (e *routeEnv) ready() {
	e.t.Helper()
	done := make(chan error, 1)
	e.cdn.Init(context.Background(), func(_ *cdn.CDN, err error) { done <- err })
	if err := <-done; err != nil {
		e.t.Fatalf("init failed: %v", err)
	}
	e.cdn.Wait()
}

func (e *routeEnv) get(target string) *http.Response {
	e.t.Helper()
	resp, err := e.app.Test(httptest.NewRequest(fiber.MethodGet, target, nil))
	if err != nil {
		e.t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
