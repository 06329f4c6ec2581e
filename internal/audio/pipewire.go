package audio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// PortGraph inspects and wires the PipeWire/JACK port graph through pw-link.
type PortGraph struct {
	run   func(name string, args ...string) ([]byte, error)
	sleep func(time.Duration)
}

// NewPortGraph creates a PortGraph that shells out to pw-link.
func NewPortGraph() *PortGraph {
	return &PortGraph{
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		},
		sleep: time.Sleep,
	}
}

// ListPorts returns every input and output port in the graph.
func (g *PortGraph) ListPorts() ([]string, error) {
	output, err := g.run("pw-link", "-io")
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePorts(string(output)), nil
}

// ValidatePort checks that a port exists exactly once. Two clients
// registering the same port name make a connection ambiguous.
func (g *PortGraph) ValidatePort(portName string) error {
	if portName == "" || portName == "disabled" {
		return nil
	}

	ports, err := g.ListPorts()
	if err != nil {
		return err
	}
	return validatePortIn(portName, ports)
}

// WaitForPort polls until a port appears or timeout expires.
func (g *PortGraph) WaitForPort(portName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if err := g.ValidatePort(portName); err == nil {
			slog.Debug("JACK port found", "port", portName)
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("timeout waiting for JACK port: %s", portName)
		}
		g.sleep(100 * time.Millisecond)
	}
}

// ConnectWithRetry links sourcePort to destPort. Application ports come and
// go with playback, so they are retried for longer than hardware ports.
func (g *PortGraph) ConnectWithRetry(sourcePort, destPort string) error {
	maxRetries, retryDelay := 5, 500*time.Millisecond
	if isEphemeralPort(sourcePort) {
		maxRetries, retryDelay = 15, time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = g.ValidatePort(sourcePort)
		if lastErr == nil {
			lastErr = g.connect(sourcePort, destPort)
			if lastErr == nil {
				slog.Debug("Connected ports", "source", sourcePort, "dest", destPort, "attempt", attempt)
				return nil
			}
		}
		slog.Debug("Connection attempt failed", "source", sourcePort, "dest", destPort, "attempt", attempt, "error", lastErr)

		if attempt < maxRetries {
			g.sleep(retryDelay)
		}
	}

	return fmt.Errorf("failed to connect %s to %s after %d attempts: %w", sourcePort, destPort, maxRetries, lastErr)
}

// Disconnect unlinks two ports.
func (g *PortGraph) Disconnect(sourcePort, destPort string) error {
	output, err := g.run("pw-link", "-d", sourcePort, destPort)
	if err != nil {
		return fmt.Errorf("failed to disconnect ports: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (g *PortGraph) connect(sourcePort, destPort string) error {
	output, err := g.run("pw-link", sourcePort, destPort)
	if err != nil {
		return fmt.Errorf("failed to connect ports: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// parsePorts reads `pw-link -io` output.
func parsePorts(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Input ports:") || strings.HasPrefix(line, "Output ports:") {
			continue
		}
		ports = append(ports, line)
	}
	return ports
}

func validatePortIn(portName string, ports []string) error {
	duplicates := portDuplicates(portName, ports)
	switch {
	case len(duplicates) == 0:
		return fmt.Errorf("port not found: %s", portName)
	case len(duplicates) > 1:
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", portName, duplicates)
	}
	return nil
}

// portDuplicates returns every port whose name is exactly portName.
func portDuplicates(portName string, ports []string) []string {
	var duplicates []string
	for _, port := range ports {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}
	return duplicates
}

func isEphemeralPort(portName string) bool {
	lowerPort := strings.ToLower(portName)
	for _, app := range []string{
		"chrome", "firefox", "spotify", "mpd", "mpv", "vlc",
		"discord", "zoom", "teams", "slack",
	} {
		if strings.Contains(lowerPort, app) {
			return true
		}
	}
	return false
}
