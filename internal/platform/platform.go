// Package platform joins the device and credential capabilities that the
// license decoder uses for enrichment.
package platform

import (
	"context"
	"errors"

	"github.com/technosupport/frl-toolbox/internal/platform/credstore"
	"github.com/technosupport/frl-toolbox/internal/platform/device"
)

// ErrNoCredentialStore is returned by DeviceID-only capabilities.
var ErrNoCredentialStore = errors.New("no credential store configured")

// Capabilities satisfies license.Platform.
type Capabilities struct {
	Device      device.Provider
	Credentials credstore.Store
}

// New returns the capabilities of the running machine backed by store,
// which may be nil.
func New(store credstore.Store) *Capabilities {
	return &Capabilities{Device: device.NewHashedProvider(), Credentials: store}
}

func (c *Capabilities) DeviceID(ctx context.Context) (string, error) {
	if c.Device == nil {
		return device.FallbackID, nil
	}
	return c.Device.DeviceID(ctx)
}

func (c *Capabilities) SavedCredential(ctx context.Context, key string) (string, bool, error) {
	if c.Credentials == nil {
		return "", false, ErrNoCredentialStore
	}
	return c.Credentials.SavedCredential(ctx, key)
}
