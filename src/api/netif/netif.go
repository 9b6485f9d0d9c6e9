package netif

import (
	"errors"
	"fmt"
	"net"
)

var (
	ErrNoInterface = errors.New("no interface carries address")
	ErrNoAddress   = errors.New("interface has no usable address")
)

// System resolves interfaces and addresses against the host's network stack.
type System struct{}

// InterfaceFor returns the name of the interface that carries address.
func (System) InterfaceFor(address string) (string, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return "", fmt.Errorf("%w: %q is not an IP", ErrNoInterface, address)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.Equal(ip) {
				return iface.Name, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoInterface, address)
}

// AddressFor returns the first IPv4 address of the named interface,
// falling back to the first IPv6 address.
func (System) AddressFor(name string) (string, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoAddress, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return "", err
	}

	var v6 string
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
		if v6 == "" {
			v6 = ipnet.IP.String()
		}
	}
	if v6 != "" {
		return v6, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoAddress, name)
}
