package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const xvfbReadyTimeout = 5 * time.Second

// startXvfb runs a virtual X server for headful mode and waits until its
// socket appears.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}
	disp := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", disp, "-screen", "0", "1280x720x24", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start Xvfb on %s: %w", disp, err)
	}
	m.xvfb = cmd

	if err := waitSocket(displaySocket(disp), xvfbReadyTimeout); err != nil {
		m.stopXvfb()
		return fmt.Errorf("Xvfb on %s: %w", disp, err)
	}
	m.cfg.Logger.Info("browser: xvfb ready", "display", disp, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	cmd := m.xvfb
	if cmd == nil {
		return
	}
	m.xvfb = nil
	if cmd.Process != nil {
		cmd.Process.Kill()
		cmd.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
}

// displaySocket maps ":99" or ":99.0" to /tmp/.X11-unix/X99.
func displaySocket(display string) string {
	n := strings.TrimPrefix(display, ":")
	if i := strings.IndexByte(n, '.'); i >= 0 {
		n = n[:i]
	}
	return filepath.Join("/tmp/.X11-unix", "X"+n)
}

func waitSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("socket %s not ready after %s", path, timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
