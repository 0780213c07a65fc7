// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package fwrule

import (
	"context"

	"github.com/piso-net/bantay/internal/errors"
	"github.com/piso-net/bantay/internal/logging"
)

// NFTBackend is a stub on non-Linux hosts. Every operation reports a
// platform error; the manager records it and the device stays under
// layer-1 enforcement only.
type NFTBackend struct{}

func NewNFTBackend(logger *logging.Logger) (*NFTBackend, error) {
	return &NFTBackend{}, nil
}

func (b *NFTBackend) InstallTTLRule(ctx context.Context, mac string, ttlValue int) (string, error) {
	return "", errors.New(errors.KindPlatform, "ttl rule enforcement requires linux nftables")
}

func (b *NFTBackend) RemoveTTLRule(ctx context.Context, descriptor string) error {
	return errors.New(errors.KindPlatform, "ttl rule enforcement requires linux nftables")
}

func (b *NFTBackend) FlushMAC(ctx context.Context, mac string) error {
	return errors.New(errors.KindPlatform, "ttl rule enforcement requires linux nftables")
}
