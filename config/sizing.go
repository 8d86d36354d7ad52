package config

import (
	"github.com/busrt/busrt/blockpool"
)

// sizingAlignment is the boundary the minimum pool size is rounded up to, giving
// alignment headroom over the raw worst-case arithmetic.
const sizingAlignment uint = 64

// SubscriptionSizing describes one subscribed message type for pool sizing: its
// maximum serialized length and how many distinct publishers emit it.
type SubscriptionSizing struct {
	Extent     int `yaml:"extent"`
	Publishers int `yaml:"publishers"`
}

// Sizing captures the traffic profile a pool must absorb. It feeds MinPoolSize,
// the operational contract the allocator is sized against.
type Sizing struct {
	// Interfaces is the number of redundant bus interfaces.
	Interfaces int `yaml:"interfaces"`
	// Subscriptions lists every subscribed type.
	Subscriptions []SubscriptionSizing `yaml:"subscriptions"`
	// Publications lists the maximum serialized length of every published type.
	Publications []int `yaml:"publications"`
}

// MinPoolSize returns the minimum safe pool size in bytes for this profile:
//
//	2 x [ sum over subscriptions (extent x publishers)
//	      + (interfaces + 1) x sum over publications (extent) ]
//
// rounded up to a 64-byte boundary. The doubling covers a transfer mid-delivery
// plus its successor arriving; the (interfaces + 1) factor covers one queued copy
// per interface plus the one being built.
func (s Sizing) MinPoolSize() int {
	subscribed := 0
	for _, sub := range s.Subscriptions {
		publishers := sub.Publishers
		if publishers < 1 {
			publishers = 1
		}
		subscribed += sub.Extent * publishers
	}

	published := 0
	for _, extent := range s.Publications {
		published += extent
	}

	interfaces := s.Interfaces
	if interfaces < 1 {
		interfaces = 1
	}

	raw := 2 * (subscribed + (interfaces+1)*published)
	return blockpool.AlignUp(raw, sizingAlignment)
}

// MinPoolBlocks converts MinPoolSize into a block count for the given block size.
func (s Sizing) MinPoolBlocks(blockSize int) int {
	size := s.MinPoolSize()
	aligned := blockpool.AlignUp(blockSize, blockpool.BlockAlignment)
	return (size + aligned - 1) / aligned
}
