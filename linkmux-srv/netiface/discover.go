package netiface

import (
	"fmt"
	"net"
)

// Candidate is a discovered local IPv4 address an operator can pick.
// Link-local addresses are listed but flagged Limited; the selection engine
// never uses them.
type Candidate struct {
	Name    string
	IP      string
	Limited bool
}

// Discover enumerates all IPv4 addresses on all host interfaces, excluding
// loopback.
func Discover() ([]Candidate, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate network interfaces: %w", err)
	}

	var candidates []Candidate
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			candidates = append(candidates, Candidate{
				Name:    iface.Name,
				IP:      ip4.String(),
				Limited: ip4.IsLinkLocalUnicast(),
			})
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no network interfaces found")
	}
	return candidates, nil
}
