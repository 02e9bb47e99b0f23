package licensegate

import (
	"crypto/sha256"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
)

// NodeFingerprint identifies the machine that performed a checkout so journal
// entries from a fleet can be told apart. It hashes hostname, MAC addresses,
// OS, architecture and machine-id (Linux) into a SHA-256 hex string.
//
// LICENSEGATE_NODE overrides the computed value, which is useful for pods
// whose hostname and MAC change on every restart.
func NodeFingerprint() (string, error) {
	if fp := os.Getenv("LICENSEGATE_NODE"); fp != "" {
		return fp, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("get hostname: %w", err)
	}
	parts := []string{hostname}

	// best-effort
	if macs, err := hardwareAddrs(); err == nil {
		parts = append(parts, macs...)
	}
	parts = append(parts, runtime.GOOS, runtime.GOARCH)
	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		parts = append(parts, strings.TrimSpace(string(machineID)))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", sum), nil
}

// hardwareAddrs returns sorted, non-loopback MAC addresses.
func hardwareAddrs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	return macs, nil
}
