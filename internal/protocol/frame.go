package protocol

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// Report frame constants
const (
	// ReportSize is the size of every vendor report, excluding the HID report ID
	ReportSize = 64

	// ReportID is the HID report ID prepended to every transfer
	ReportID = 0x00

	// Magic marks a vendor configuration report
	Magic = 0xA5

	// HeaderSize is magic + command + sequence + status + key(2) + arg + length
	HeaderSize = 8

	// MaxDataSize is the room left for data before the trailing checksum
	MaxDataSize = ReportSize - HeaderSize - 1
)

// Command codes. Setters are the getter code + 1.
const (
	CmdBaseInfo           = 0x01
	CmdBaseLayout         = 0x02
	CmdLayerKey           = 0x03
	CmdSetKey             = 0x04
	CmdGlobalTravel       = 0x10
	CmdSetGlobalTravel    = 0x11
	CmdPerformanceMode    = 0x12
	CmdSetPerformanceMode = 0x13
	CmdSingleTravel       = 0x14
	CmdSetSingleTravel    = 0x15
	CmdRtTravel           = 0x16
	CmdSetRtTravel        = 0x17
	CmdDeadZones          = 0x18
	CmdSetDeadZones       = 0x19
	CmdAxis               = 0x1A
	CmdSetAxis            = 0x1B
	CmdAdvanced           = 0x20
	CmdSetAdvanced        = 0x21
	CmdCustomLight        = 0x30
	CmdSetCustomLight     = 0x31
	CmdLighting           = 0x32
	CmdSetLighting        = 0x33
	CmdMacro              = 0x40
	CmdSetMacro           = 0x41
	CmdPollingRate        = 0x50
	CmdSetPollingRate     = 0x51
	CmdTopDeadBand        = 0x52
	CmdSetTopDeadBand     = 0x53
	CmdFactoryReset       = 0x5F
)

// Response status codes
const (
	StatusOK         = 0x00
	StatusUnknownCmd = 0x01
	StatusBadParam   = 0x02
	StatusBusy       = 0x03
)

// Frame is a decoded vendor report.
//
// Layout:
//
//	[0]      0xA5      Magic
//	[1]      command   Command code
//	[2]      sequence  Echoed by the keyboard
//	[3]      status    0 in requests, StatusOK on success
//	[4-5]    key       Key value (little-endian uint16)
//	[6]      arg       Layer, zone, advanced kind or page number
//	[7]      length    Data length
//	[8..62]  data      Command data, zero padded
//	[63]     checksum  Sum of bytes 0..62, mod 256
type Frame struct {
	Command  byte
	Sequence byte
	Status   byte
	Key      uint16
	Arg      byte
	Data     []byte
	Raw      []byte
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{cmd=0x%02x, seq=%d, status=0x%02x, key=%d, arg=%d, data_len=%d}",
		f.Command, f.Sequence, f.Status, f.Key, f.Arg, len(f.Data))
}

var sequenceCounter uint32

// NextSequence returns the next request sequence number (thread-safe).
func NextSequence() byte {
	return byte(atomic.AddUint32(&sequenceCounter, 1))
}

// BuildRequest encodes a request report without the HID report ID.
func BuildRequest(seq, command byte, key uint16, arg byte, data []byte) ([]byte, error) {
	if len(data) > MaxDataSize {
		return nil, fmt.Errorf("data too large: %d bytes (max %d)", len(data), MaxDataSize)
	}

	report := make([]byte, ReportSize)
	report[0] = Magic
	report[1] = command
	report[2] = seq
	binary.LittleEndian.PutUint16(report[4:6], key)
	report[6] = arg
	report[7] = byte(len(data))
	copy(report[HeaderSize:], data)
	report[ReportSize-1] = Checksum(report[:ReportSize-1])

	return report, nil
}

// Checksum sums b mod 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// ParseFrame decodes and validates a report. A leading HID report ID byte is
// accepted and skipped.
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) == ReportSize+1 && raw[0] == ReportID {
		raw = raw[1:]
	}
	if len(raw) < ReportSize {
		return nil, fmt.Errorf("report too short: %d bytes (need %d)", len(raw), ReportSize)
	}
	raw = raw[:ReportSize]

	if raw[0] != Magic {
		return nil, fmt.Errorf("invalid magic byte: expected 0x%02x, got 0x%02x", Magic, raw[0])
	}
	if want := Checksum(raw[:ReportSize-1]); raw[ReportSize-1] != want {
		return nil, fmt.Errorf("checksum mismatch: expected 0x%02x, got 0x%02x", want, raw[ReportSize-1])
	}
	length := int(raw[7])
	if length > MaxDataSize {
		return nil, fmt.Errorf("data length %d exceeds maximum %d", length, MaxDataSize)
	}

	data := make([]byte, length)
	copy(data, raw[HeaderSize:HeaderSize+length])

	return &Frame{
		Command:  raw[1],
		Sequence: raw[2],
		Status:   raw[3],
		Key:      binary.LittleEndian.Uint16(raw[4:6]),
		Arg:      raw[6],
		Data:     data,
		Raw:      raw,
	}, nil
}

// BuildResponse encodes a response report. The hidraw transport never sends
// one; tests and report replays use it.
func BuildResponse(req *Frame, status byte, data []byte) ([]byte, error) {
	report, err := BuildRequest(req.Sequence, req.Command, req.Key, req.Arg, data)
	if err != nil {
		return nil, err
	}
	report[3] = status
	report[ReportSize-1] = Checksum(report[:ReportSize-1])
	return report, nil
}
