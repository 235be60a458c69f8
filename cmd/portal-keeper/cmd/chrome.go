package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"portal-keeper/internal/envutil"
	"portal-keeper/internal/pkg/chromedevtools"
)

// newChromeCmd starts a browser that browser.cdp_url can attach to, for hosts where the bundled
// playwright Chromium cannot run.
func newChromeCmd() *cobra.Command {
	var (
		addr       string
		port       string
		profileDir string
	)

	cmd := &cobra.Command{
		Use:   "chrome",
		Short: "Start Chrome with DevTools enabled for browser.cdp_url",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(port) == "" {
				return errors.New("missing --port")
			}
			if strings.TrimSpace(profileDir) == "" {
				return errors.New("missing --profile-dir")
			}
			if err := os.MkdirAll(profileDir, 0o755); err != nil {
				return err
			}

			flags := []string{
				"--headless=new",
				"--remote-debugging-address=" + addr,
				"--remote-debugging-port=" + port,
				"--user-data-dir=" + profileDir,
				"--no-first-run",
			}

			var c *exec.Cmd
			switch runtime.GOOS {
			case "darwin":
				c = exec.Command("open", append([]string{"-na", "Google Chrome", "--args"}, flags...)...)
			case "linux":
				bin, err := findFirstInPath([]string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"})
				if err != nil {
					return err
				}
				c = exec.Command(bin, append(flags, "--no-sandbox", "--disable-dev-shm-usage")...)
			default:
				return fmt.Errorf("unsupported OS for auto-launch: %s (start Chrome manually with --remote-debugging-port)", runtime.GOOS)
			}
			c.Stdout = io.Discard
			c.Stderr = io.Discard
			if err := c.Start(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Chrome launch requested (port=%s, profile=%s)\n", port, profileDir)
			fmt.Fprintf(out, "Set browser.cdp_url=http://%s:%s\n", addr, port)
			fmt.Fprintf(out, "DevTools check: %s\n", chromedevtools.VersionURL(addr, port))
			return nil
		},
	}

	defProfile := filepath.Join(userHomeDir(), ".portal-keeper", "chrome-profile")
	cmd.Flags().StringVar(&addr, "addr", envutil.String(os.Getenv, "CHROME_DEBUG_BIND_ADDR", chromedevtools.DefaultHost), "DevTools bind address")
	cmd.Flags().StringVar(&port, "port", envutil.String(os.Getenv, "CHROME_DEBUG_PORT", chromedevtools.DefaultPort), "DevTools remote debugging port")
	cmd.Flags().StringVar(&profileDir, "profile-dir", envutil.String(os.Getenv, "CHROME_PROFILE_DIR", defProfile), "Dedicated Chrome profile directory")
	return cmd
}
