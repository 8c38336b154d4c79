package capture

import (
	"errors"
	"fmt"
)

// MaxChannels is the widest channel count a packed sample word can carry.
const MaxChannels = 64

var ErrInvalidChannelCount = errors.New("invalid channel count")

// UnitSize returns the number of raw bytes per sample for a channel count.
func UnitSize(channelCount int) int {
	return (channelCount + 7) / 8
}

// channelMask covers the low channelCount bits of a packed sample.
func channelMask(channelCount int) uint64 {
	if channelCount >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<uint(channelCount) - 1
}

// ToPacked converts raw capture bytes into packed integer samples.
//
// Raw layout is the backend's native framing: UnitSize(channelCount) bytes
// per sample, little-endian, channel 0 in bit 0 of the first byte. Bit N of
// every output word is the logic level of channel N at that sample instant.
// Bits at or above channelCount are masked to zero so repeated conversions
// of the same input are identical.
func ToPacked(raw []byte, channelCount int) ([]uint64, error) {
	if channelCount < 1 || channelCount > MaxChannels {
		return nil, fmt.Errorf("%w: %d (supported range 1-%d)", ErrInvalidChannelCount, channelCount, MaxChannels)
	}

	unit := UnitSize(channelCount)
	if len(raw)%unit != 0 {
		return nil, fmt.Errorf("raw data length %d is not a multiple of unit size %d", len(raw), unit)
	}

	mask := channelMask(channelCount)
	packed := make([]uint64, len(raw)/unit)
	for i := range packed {
		var v uint64
		for b := 0; b < unit; b++ {
			v |= uint64(raw[i*unit+b]) << uint(8*b)
		}
		packed[i] = v & mask
	}
	return packed, nil
}

// Bit reports the logic level (0 or 1) of channel ch in a packed sample.
func Bit(sample uint64, ch int) int {
	return int(sample>>uint(ch)) & 1
}

// RawBit reports the logic level of channel ch at sample index i in raw
// capture bytes framed for channelCount channels.
func RawBit(raw []byte, channelCount, i, ch int) int {
	unit := UnitSize(channelCount)
	return int(raw[i*unit+ch/8]>>uint(ch%8)) & 1
}
