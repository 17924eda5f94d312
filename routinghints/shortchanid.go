package routinghints

// ShortChannelID packs (block height, tx index, output index) into the
// 64-bit identifier BOLT11 routing hints and BOLT7 channel announcements
// use (spec glossary: Short-channel-id).
type ShortChannelID struct {
	BlockHeight uint32
	TxIndex     uint32
	OutputIndex uint16
}

// ToUint64 packs the triple as block<<40 | tx<<16 | output, matching the
// on-wire short_channel_id encoding.
func (s ShortChannelID) ToUint64() uint64 {
	return (uint64(s.BlockHeight&0xffffff) << 40) |
		(uint64(s.TxIndex&0xffffff) << 16) |
		uint64(s.OutputIndex)
}

// ParseShortChannelID unpacks a 64-bit short_channel_id back into its
// (block, tx, output) triple.
func ParseShortChannelID(id uint64) ShortChannelID {
	return ShortChannelID{
		BlockHeight: uint32((id >> 40) & 0xffffff),
		TxIndex:     uint32((id >> 16) & 0xffffff),
		OutputIndex: uint16(id & 0xffff),
	}
}

// wellKnownChannel is the constant (block, tx, output) triple swapd packs
// into every synthetic BOLT11 routing hint (spec §4.5, §6): a fixed
// short_channel_id that never corresponds to a real channel but is
// structurally indistinguishable from one to a sending node's router.
var wellKnownChannel = ShortChannelID{
	BlockHeight: 542409,
	TxIndex:     1308,
	OutputIndex: 0,
}

// WellKnownShortChannelID returns the packed constant used for every
// synthetic routing hint swapd emits.
func WellKnownShortChannelID() uint64 {
	return wellKnownChannel.ToUint64()
}
