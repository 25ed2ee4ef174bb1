// Package discovery announces the server on the local network over mDNS so
// participants can find it without a configured address.
package discovery

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/mdns"

	"whiteboard/pkg/logger"
)

const ServiceType = "_whiteboard._tcp"

// TXT records published with the service.
func serviceInfo() []string {
	return []string{"path=/ws", "api=/api/v1"}
}

// Advertise publishes the server under instance on port. Shut the returned
// server down to withdraw the announcement.
func Advertise(instance string, port int) (*mdns.Server, error) {
	service, err := newService(instance, port)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	logger.Info("Advertising %s as %s on port %d", ServiceType, service.Instance, port)
	return server, nil
}

func newService(instance string, port int) (*mdns.MDNSService, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, nil, serviceInfo())
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	return service, nil
}

// Browse looks for servers for the given duration and returns their
// "ip:port" addresses.
func Browse(timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan []string)
	go func() {
		var found []string
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			found = append(found, fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port))
		}
		done <- found
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	found := <-done
	if err != nil {
		return nil, fmt.Errorf("mDNS lookup failed: %w", err)
	}
	return found, nil
}
