package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ServiceChangedLen is the length of a Service Changed indication value.
const ServiceChangedLen = 4

// HandleRange is the span of attribute handles a server reports as changed.
type HandleRange struct {
	Start uint16
	End   uint16
}

// Contains reports whether h falls inside the range.
func (r HandleRange) Contains(h uint16) bool {
	return h >= r.Start && h <= r.End
}

func (r HandleRange) String() string {
	return fmt.Sprintf("0x%04x-0x%04x", r.Start, r.End)
}

// ParseServiceChanged decodes a Service Changed indication value.
//
//	bytes 0-1: start handle (little-endian)
//	bytes 2-3: end handle (little-endian)
func ParseServiceChanged(data []byte) (HandleRange, error) {
	if len(data) != ServiceChangedLen {
		return HandleRange{}, fmt.Errorf("protocol: service changed value must be %d bytes, got %d", ServiceChangedLen, len(data))
	}
	r := HandleRange{
		Start: binary.LittleEndian.Uint16(data[0:2]),
		End:   binary.LittleEndian.Uint16(data[2:4]),
	}
	if r.Start == 0 {
		return HandleRange{}, errors.New("protocol: service changed start handle is zero")
	}
	if r.Start > r.End {
		return HandleRange{}, fmt.Errorf("protocol: service changed range %s is inverted", r)
	}
	return r, nil
}

// MarshalServiceChanged encodes r as a Service Changed indication value.
func MarshalServiceChanged(r HandleRange) []byte {
	buf := make([]byte, ServiceChangedLen)
	binary.LittleEndian.PutUint16(buf[0:2], r.Start)
	binary.LittleEndian.PutUint16(buf[2:4], r.End)
	return buf
}
