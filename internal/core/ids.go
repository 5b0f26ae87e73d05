package core

import "fmt"

// DevID identifies a block device. The high bits carry the driver major
// number and the low byte the minor number.
// Invariant: NoDev (0) never names a mounted device.
type DevID uint32

// NoDev marks a slot that is not associated with any device.
const NoDev DevID = 0

// MemoryMajor is the major number of RAM-backed devices. Blocks of such
// devices are never kept in the second-level cache.
const MemoryMajor = 1

// MakeDev composes a DevID from a major and a minor number.
func MakeDev(major, minor uint32) DevID {
	return DevID(major<<8 | minor&0xff)
}

// Major returns the driver major number.
func (d DevID) Major() uint32 { return uint32(d) >> 8 }

// Minor returns the minor number.
func (d DevID) Minor() uint32 { return uint32(d) & 0xff }

func (d DevID) String() string {
	if d == NoDev {
		return "nodev"
	}
	return fmt.Sprintf("%d/%d", d.Major(), d.Minor())
}

// BlockNo is a logical block index on a device.
type BlockNo = uint64

// BlockID names one block on one device.
type BlockID struct {
	Dev   DevID
	Block BlockNo
}

// NoBlock is the BlockID with no device.
var NoBlock = BlockID{}

// Valid reports whether the id names a real device.
func (id BlockID) Valid() bool { return id.Dev != NoDev }

func (id BlockID) String() string {
	return fmt.Sprintf("%s#%d", id.Dev, id.Block)
}
