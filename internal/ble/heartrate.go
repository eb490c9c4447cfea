package ble

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNoContact is returned for measurements taken while the sensor reports
// that it has lost skin contact.
var ErrNoContact = errors.New("ble: no sensor contact")

// Heart-rate measurement flag bits.
const (
	flagUint16           = 0x01
	flagContactDetected  = 0x02
	flagContactSupported = 0x04
)

// ParseHeartRate extracts beats per minute from a heart-rate measurement
// notification. The value is byte 1, or bytes 1-2 little-endian when the
// format flag is set.
func ParseHeartRate(data []byte) (int, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("ble: heart rate payload too short (%d bytes)", len(data))
	}
	flags := data[0]
	if flags&flagContactSupported != 0 && flags&flagContactDetected == 0 {
		return 0, ErrNoContact
	}
	if flags&flagUint16 != 0 {
		if len(data) < 3 {
			return 0, fmt.Errorf("ble: heart rate payload too short for uint16 (%d bytes)", len(data))
		}
		return int(binary.LittleEndian.Uint16(data[1:3])), nil
	}
	return int(data[1]), nil
}
