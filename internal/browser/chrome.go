package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
)

// BrowserKind identifies the type of Chromium-based browser.
type BrowserKind string

const (
	BrowserChrome   BrowserKind = "chrome"
	BrowserEdge     BrowserKind = "edge"
	BrowserChromium BrowserKind = "chromium"
	BrowserCustom   BrowserKind = "custom"
)

// BrowserExecutable represents a found browser binary.
type BrowserExecutable struct {
	Kind BrowserKind
	Path string
}

type candidate struct {
	kind BrowserKind
	path string
}

// FindChromeExecutable finds a Chromium browser on the system. A custom path must
// exist. Otherwise well-known install locations and then $PATH are searched, and
// nil is returned when nothing is found.
func FindChromeExecutable(customPath string) (*BrowserExecutable, error) {
	if customPath != "" {
		if !fileExists(customPath) {
			return nil, fmt.Errorf("browser executable not found: %s", customPath)
		}
		return &BrowserExecutable{Kind: BrowserCustom, Path: customPath}, nil
	}

	for _, c := range knownLocations(runtime.GOOS) {
		if fileExists(c.path) {
			return &BrowserExecutable{Kind: c.kind, Path: c.path}, nil
		}
	}

	for _, c := range []candidate{
		{BrowserChrome, "google-chrome"},
		{BrowserChrome, "google-chrome-stable"},
		{BrowserChromium, "chromium"},
		{BrowserChromium, "chromium-browser"},
		{BrowserEdge, "microsoft-edge"},
	} {
		if p, err := exec.LookPath(c.path); err == nil {
			return &BrowserExecutable{Kind: c.kind, Path: p}, nil
		}
	}
	return nil, nil
}

func knownLocations(goos string) []candidate {
	switch goos {
	case "darwin":
		home := os.Getenv("HOME")
		return []candidate{
			{BrowserChrome, "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
			{BrowserChrome, filepath.Join(home, "Applications/Google Chrome.app/Contents/MacOS/Google Chrome")},
			{BrowserChromium, "/Applications/Chromium.app/Contents/MacOS/Chromium"},
			{BrowserEdge, "/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
		}
	case "linux":
		return []candidate{
			{BrowserChrome, "/usr/bin/google-chrome"},
			{BrowserChrome, "/usr/bin/google-chrome-stable"},
			{BrowserChromium, "/usr/bin/chromium"},
			{BrowserChromium, "/usr/bin/chromium-browser"},
			{BrowserChromium, "/usr/lib/chromium-browser/chromium-browser"},
			{BrowserChromium, "/snap/bin/chromium"},
			{BrowserEdge, "/usr/bin/microsoft-edge"},
		}
	case "windows":
		programFiles := os.Getenv("ProgramFiles")
		if programFiles == "" {
			programFiles = "C:\\Program Files"
		}
		programFilesX86 := os.Getenv("ProgramFiles(x86)")
		if programFilesX86 == "" {
			programFilesX86 = "C:\\Program Files (x86)"
		}
		var out []candidate
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			out = append(out, candidate{BrowserChrome, filepath.Join(local, "Google", "Chrome", "Application", "chrome.exe")})
		}
		return append(out,
			candidate{BrowserChrome, filepath.Join(programFiles, "Google", "Chrome", "Application", "chrome.exe")},
			candidate{BrowserChrome, filepath.Join(programFilesX86, "Google", "Chrome", "Application", "chrome.exe")},
			candidate{BrowserEdge, filepath.Join(programFilesX86, "Microsoft", "Edge", "Application", "msedge.exe")},
		)
	}
	return nil
}

// launchFlags are the Chrome switches both drivers start the browser with. Values
// are either bool (present/absent) or string (--name=value).
func launchFlags(cfg *ResolvedConfig) map[string]any {
	flags := map[string]any{
		"disable-dev-shm-usage":       true,
		"disable-gpu":                 true,
		"disable-software-rasterizer": true,
		"disable-extensions":          true,
		"disable-blink-features":      "AutomationControlled",
		"no-first-run":                true,
		"no-default-browser-check":    true,
		// chromedriver's excludeSwitches: hide the automation infobar
		"enable-automation": false,
	}
	if cfg.NoSandbox {
		flags["no-sandbox"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

// launchArgs renders launchFlags as command-line arguments.
func launchArgs(cfg *ResolvedConfig) []string {
	var args []string
	for name, v := range launchFlags(cfg) {
		switch v := v.(type) {
		case bool:
			if v {
				args = append(args, "--"+name)
			}
		case string:
			args = append(args, fmt.Sprintf("--%s=%s", name, v))
		}
	}
	args = append(args, fmt.Sprintf("--window-size=%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	slices.Sort(args)
	return args
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
