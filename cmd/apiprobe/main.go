// apiprobe checks connectivity to the configured API base from the
// command line, reporting the same classification the app would apply:
// timeout, unreachable, or the actual status.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"

	"gramsync/pkg/config"
)

func main() {
	host := flag.String("host", "", "API host (falls back to GRAMSYNC_API_HOST)")
	path := flag.String("path", "/healthz", "path to probe, relative to the host")
	timeout := flag.Duration("timeout", 5*time.Second, "probe timeout")
	flag.Parse()

	cfg, err := config.Load(config.ResolveConfigPath("", false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *host != "" {
		cfg.API.Host = *host
	}
	base, err := cfg.BaseURL()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(base + *path)
	req.Header.SetMethod(fasthttp.MethodGet)

	client := &fasthttp.Client{Name: "gramsync-apiprobe"}
	start := time.Now()
	err = client.DoTimeout(req, resp, *timeout)
	elapsed := time.Since(start).Round(time.Millisecond)

	switch {
	case errors.Is(err, fasthttp.ErrTimeout):
		fmt.Printf("TIMEOUT  %s after %s\n", base+*path, elapsed)
		os.Exit(1)
	case err != nil:
		fmt.Printf("UNREACHABLE  %s: %v\n", base+*path, err)
		os.Exit(1)
	default:
		fmt.Printf("OK  %s status=%d in %s\n", base+*path, resp.StatusCode(), elapsed)
	}
}
