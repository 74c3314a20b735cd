// Package protocol implements the small fixed-layout GATT values the
// Service Changed client reads and writes: the Client Characteristic
// Configuration Descriptor and the Service Changed indication payload.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// CCCD is the 16-bit Client Characteristic Configuration Descriptor value.
type CCCD uint16

const (
	CCCDNotify   CCCD = 0x0001
	CCCDIndicate CCCD = 0x0002
)

// CCCDLen is the length in bytes of an encoded CCCD value.
const CCCDLen = 2

// Notify reports whether the notification bit is set.
func (c CCCD) Notify() bool { return c&CCCDNotify != 0 }

// Indicate reports whether the indication bit is set.
func (c CCCD) Indicate() bool { return c&CCCDIndicate != 0 }

// EncodeCCCD encodes a CCCD value as two little-endian bytes.
//
//	EncodeCCCD(CCCDIndicate) = {0x02, 0x00}
func EncodeCCCD(c CCCD) []byte {
	buf := make([]byte, CCCDLen)
	binary.LittleEndian.PutUint16(buf, uint16(c))
	return buf
}

// DecodeCCCD decodes a CCCD value written by a client.
func DecodeCCCD(data []byte) (CCCD, error) {
	if len(data) != CCCDLen {
		return 0, fmt.Errorf("protocol: cccd value must be %d bytes, got %d", CCCDLen, len(data))
	}
	return CCCD(binary.LittleEndian.Uint16(data)), nil
}
