package client

import (
	"errors"
	"time"

	"whiteboard/internal/discovery"
)

var ErrNoServer = errors.New("no whiteboard server found on the local network")

// Discover browses the LAN for a server and returns a URL usable with Dial.
func Discover(timeout time.Duration) (string, error) {
	addrs, err := discovery.Browse(timeout)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", ErrNoServer
	}
	return "http://" + addrs[0], nil
}
