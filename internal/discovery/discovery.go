// Package discovery builds the mDNS/DNS-SD service record the satellite
// advertises (C10), using the pure-Go github.com/brutella/dnssd package
// for cross-platform announcement without a system daemon dependency.
//
// Per the external-interfaces contract, the satellite never announces
// itself: Record builds the value, and Announce exists only for an
// external collaborator to call.
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
)

// ServiceType is the Wyoming protocol's DNS-SD service type string.
const ServiceType = "_wyoming._tcp"

// Record builds the dnssd.Config an external announcer would publish for
// this satellite.
func Record(deviceName, deviceID string, port int) dnssd.Config {
	name := deviceName
	if name == "" {
		name = deviceID
	}
	return dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: port,
		Text: map[string]string{"id": deviceID},
	}
}

// Announce starts a dnssd.Responder advertising cfg and blocks until ctx
// is cancelled or the responder errors. Not called by the supervisor's
// own start path; an external UI collaborator owns the decision to
// announce.
func Announce(ctx context.Context, cfg dnssd.Config) error {
	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("discovery: new service: %w", err)
	}
	responder, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("discovery: new responder: %w", err)
	}
	if _, err := responder.Add(service); err != nil {
		return fmt.Errorf("discovery: add service: %w", err)
	}
	return responder.Respond(ctx)
}
