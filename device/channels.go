package device

import "math/rand"

// ChannelPlan is a regional frequency plan: the full set of uplink
// channels plus the subset used for OTAA join attempts.
type ChannelPlan struct {
	// Uplink lists every channel frequency, in Hz, available for data
	// uplinks.
	Uplink []uint32

	// Join lists the channel frequencies, in Hz, a join-request may be
	// sent on.
	Join []uint32

	// SyncWord is the LoRa sync word to configure on the radio; 0x34 for
	// public LoRaWAN networks.
	SyncWord byte
}

// EU868 is the default regional plan: 8 uplink channels between 867.1
// and 868.5 MHz, with the first three reserved for join attempts.
var EU868 = ChannelPlan{
	Uplink: []uint32{
		868100000, 868300000, 868500000,
		867100000, 867300000, 867500000, 867700000, 867900000,
	},
	Join:     []uint32{868100000, 868300000, 868500000},
	SyncWord: 0x34,
}

// Choose returns a uniformly random frequency from the plan's uplink
// channels, or its join channels when join is true.
func (p ChannelPlan) Choose(join bool) uint32 {
	channels := p.Uplink
	if join {
		channels = p.Join
	}
	return channels[rand.Intn(len(channels))]
}
