// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package fwrule

import (
	"context"
	"strings"
	"syscall"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"github.com/google/nftables/userdata"

	"github.com/piso-net/bantay/internal/errors"
	"github.com/piso-net/bantay/internal/logging"
	"github.com/piso-net/bantay/internal/netutil"
)

const (
	tableName = "bantay"
	chainName = "forward"
)

// NFTConn is the slice of the nftables connection the backend uses,
// split out so tests can fake the kernel.
type NFTConn interface {
	AddTable(*nftables.Table) *nftables.Table
	AddChain(*nftables.Chain) *nftables.Chain
	AddRule(*nftables.Rule) *nftables.Rule
	DelRule(*nftables.Rule) error
	GetRules(*nftables.Table, *nftables.Chain) ([]*nftables.Rule, error)
	Flush() error
}

// NFTBackend mangles TTLs through nftables. One table/chain pair is
// shared by all device rules; individual rules are tagged with a
// per-MAC comment.
type NFTBackend struct {
	conn   NFTConn
	logger *logging.Logger
}

// NewNFTBackend opens a lasting netlink connection to nftables.
func NewNFTBackend(logger *logging.Logger) (*NFTBackend, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, wrapKernelErr(err, "opening nftables connection")
	}
	return NewNFTBackendWithConn(conn, logger), nil
}

// NewNFTBackendWithConn creates a backend over an injected connection.
func NewNFTBackendWithConn(conn NFTConn, logger *logging.Logger) *NFTBackend {
	if logger == nil {
		logger = logging.WithComponent("fwrule")
	}
	return &NFTBackend{conn: conn, logger: logger}
}

// table and chain are idempotent to declare; nftables treats AddTable
// and AddChain for existing objects as updates.
func (b *NFTBackend) ensureChain() (*nftables.Table, *nftables.Chain) {
	table := b.conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyIPv4,
		Name:   tableName,
	})
	policy := nftables.ChainPolicyAccept
	chain := b.conn.AddChain(&nftables.Chain{
		Name:     chainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookForward,
		Priority: nftables.ChainPriorityMangle,
		Policy:   &policy,
	})
	return table, chain
}

// InstallTTLRule adds: ether saddr <mac> ip ttl set <ttlValue>.
func (b *NFTBackend) InstallTTLRule(ctx context.Context, mac string, ttlValue int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, errors.KindTimeout, "installing ttl rule")
	}
	hw, err := netutil.ParseMAC(mac)
	if err != nil {
		return "", errors.Wrap(err, errors.KindValidation, "installing ttl rule")
	}
	if ttlValue < 1 || ttlValue > 255 {
		return "", errors.Errorf(errors.KindValidation, "ttl value %d out of range 1-255", ttlValue)
	}

	table, chain := b.ensureChain()
	b.conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			// Match the source hardware address in the link-layer header.
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseLLHeader,
				Offset:       6,
				Len:          6,
			},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     hw,
			},
			// Overwrite the IP TTL (offset 8) and fix the header checksum.
			&expr.Immediate{
				Register: 1,
				Data:     []byte{byte(ttlValue)},
			},
			&expr.Payload{
				OperationType:  expr.PayloadWrite,
				SourceRegister: 1,
				Base:           expr.PayloadBaseNetworkHeader,
				Offset:         8,
				Len:            1,
				CsumType:       expr.CsumTypeInet,
				CsumOffset:     10,
			},
		},
		UserData: userdata.AppendString(nil, userdata.TypeComment, ruleComment(mac)),
	})

	if err := b.conn.Flush(); err != nil {
		return "", wrapKernelErr(err, "installing ttl rule")
	}
	desc := describeRule(mac, ttlValue)
	b.logger.Info("installed ttl rule", "mac", mac, "ttl", ttlValue)
	return desc, nil
}

// RemoveTTLRule deletes the rule whose comment matches the descriptor's
// MAC. The descriptor is the exact record of what was installed; the
// comment is its stable kernel-side key.
func (b *NFTBackend) RemoveTTLRule(ctx context.Context, descriptor string) error {
	mac, ok := macFromDescriptor(descriptor)
	if !ok {
		return errors.Errorf(errors.KindValidation, "malformed rule descriptor %q", descriptor)
	}
	return b.FlushMAC(ctx, mac)
}

// FlushMAC removes every rule tagged for mac.
func (b *NFTBackend) FlushMAC(ctx context.Context, mac string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.KindTimeout, "removing ttl rule")
	}

	table, chain := b.ensureChain()
	rules, err := b.conn.GetRules(table, chain)
	if err != nil {
		return wrapKernelErr(err, "listing ttl rules")
	}

	comment := ruleComment(mac)
	deleted := 0
	for _, r := range rules {
		got, ok := userdata.GetString(r.UserData, userdata.TypeComment)
		if !ok || got != comment {
			continue
		}
		if err := b.conn.DelRule(r); err != nil {
			return wrapKernelErr(err, "deleting ttl rule")
		}
		deleted++
	}
	if deleted == 0 {
		// Nothing in the kernel for this MAC. Removal is idempotent.
		return nil
	}
	if err := b.conn.Flush(); err != nil {
		return wrapKernelErr(err, "removing ttl rule")
	}
	b.logger.Info("removed ttl rule", "mac", mac, "rules", deleted)
	return nil
}

// macFromDescriptor recovers the MAC from a canonical descriptor.
func macFromDescriptor(descriptor string) (string, bool) {
	const marker = "ether saddr "
	i := strings.Index(descriptor, marker)
	if i < 0 {
		return "", false
	}
	rest := descriptor[i+len(marker):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	mac, err := netutil.NormalizeMAC(fields[0])
	if err != nil {
		return "", false
	}
	return mac, true
}

func wrapKernelErr(err error, msg string) error {
	switch {
	case errors.Is(err, syscall.EPERM), errors.Is(err, syscall.EACCES):
		return errors.Wrap(err, errors.KindPermission, msg)
	case errors.Is(err, syscall.ENOTSUP), errors.Is(err, syscall.EPROTONOSUPPORT), errors.Is(err, syscall.ENOENT):
		return errors.Wrap(err, errors.KindPlatform, msg)
	default:
		return errors.Wrap(err, errors.KindInternal, msg)
	}
}
