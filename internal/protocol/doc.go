// Package protocol implements the vendor HID report format used to configure
// keytune keyboards.
//
// Every request and response is a single 64-byte report (plus the HID report
// ID byte on the wire):
//
//	[0]      0xA5      Magic
//	[1]      command   Command code (setters are getter + 1)
//	[2]      sequence  Request sequence, echoed by the keyboard
//	[3]      status    StatusOK on success
//	[4-5]    key       Key value, little-endian
//	[6]      arg       Layer, lighting zone, advanced kind or page number
//	[7]      length    Data length (max 55)
//	[8..62]  data
//	[63]     checksum  Sum of bytes 0..62, mod 256
//
// # Values
//
// Travel distances are uint16 hundredths of a millimetre. Colors are three
// bytes. The base layout and macros do not fit in one report and are paged
// through the arg byte; each page announces the total so the reader knows
// when to stop.
//
// # Usage Example
//
//	req, err := protocol.BuildRequest(protocol.NextSequence(), protocol.CmdRtTravel, 0x04, 0, nil)
//	...
//	frame, err := protocol.ParseFrame(resp)
//	pair, err := protocol.DecodeTravelPair(frame.Data)
package protocol
