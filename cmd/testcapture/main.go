package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/neboloop/netcapture/internal/browser"
	"github.com/neboloop/netcapture/internal/capture"
	"github.com/neboloop/netcapture/internal/logging"
)

func main() {
	fmt.Println("=== Capture Test ===")

	// Parse args
	driver := browser.DriverChromedp
	url := "https://example.com"
	if len(os.Args) >= 2 {
		driver = os.Args[1]
	}
	if len(os.Args) >= 3 {
		url = os.Args[2]
	}

	fmt.Println("\n1. Resolving browser...")
	cfg := browser.DefaultConfig()
	cfg.Driver = driver
	cfg.Headless = os.Getenv("HEADLESS") != ""
	resolved, err := browser.ResolveConfig(cfg)
	if err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		return
	}
	fmt.Printf("   Driver: %s\n", resolved.Driver)
	fmt.Printf("   Executable: %s\n", resolved.ExecPath())

	fmt.Println("\n2. Opening session...")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	d, err := browser.Open(ctx, cfg, logging.New(os.Stderr, "debug", logging.FormatText))
	if err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		return
	}
	defer d.Close()
	if err := d.EnableNetwork(ctx); err != nil {
		fmt.Printf("   ERROR enabling network: %v\n", err)
		return
	}
	fmt.Println("   Session created successfully!")

	fmt.Printf("\n3. Navigating to %s...\n", url)
	result, err := d.Navigate(ctx, browser.NavigateOptions{URL: url})
	if err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		return
	}
	fmt.Printf("   Result: %+v\n", result)
	time.Sleep(3 * time.Second)

	fmt.Println("\n4. Draining performance log...")
	entries, err := d.Drain(ctx)
	if err != nil {
		fmt.Printf("   ERROR: %v\n", err)
		return
	}
	decoded := 0
	for _, e := range entries {
		req, ok := capture.Decode(e)
		if !ok {
			continue
		}
		decoded++
		fmt.Printf("   %-6s %s (%d headers)\n", req.Method, req.URL, len(req.Headers))
	}
	fmt.Printf("   %d entries, %d requests\n", len(entries), decoded)

	fmt.Println("\n=== Done ===")
}
