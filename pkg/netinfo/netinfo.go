// Package netinfo reports how the gateway can be reached from the LAN.
package netinfo

import (
	"fmt"
	"net"
	"os"
	"runtime"
)

// outboundAddr is "dialed" over UDP to learn the outbound interface. No packet
// is sent.
const outboundAddr = "8.8.8.8:80"

// Info describes the host. Fields are nil when unknown.
type Info struct {
	LocalIP  *string `json:"localIp"`
	Hostname *string `json:"hostname"`
	IsMacOS  bool    `json:"isMacos"`
}

// Get returns the host's network info.
func Get() Info {
	info := Info{IsMacOS: runtime.GOOS == "darwin"}
	if ip, err := LocalIP(); err == nil {
		info.LocalIP = &ip
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		info.Hostname = &name
	}
	return info
}

// LocalIP returns the address of the interface used for outbound traffic.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp", outboundAddr)
	if err != nil {
		return "", fmt.Errorf("discover local ip: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.IsUnspecified() {
		return "", fmt.Errorf("discover local ip: no usable address")
	}
	return addr.IP.String(), nil
}

// ListenURLs returns the URLs clients can use for a gateway on port: the
// loopback URL first, then the LAN URL when the local IP is known.
func ListenURLs(info Info, port int) []string {
	urls := []string{fmt.Sprintf("http://127.0.0.1:%d", port)}
	if info.LocalIP != nil {
		urls = append(urls, "http://"+net.JoinHostPort(*info.LocalIP, fmt.Sprint(port)))
	}
	return urls
}
