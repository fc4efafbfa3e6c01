package hl7v2

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

const (
	// MLLPStartBlock is the MLLP start-of-message byte (VT / vertical tab).
	MLLPStartBlock = 0x0B

	// MLLPEndBlock is the MLLP end-of-message byte (FS / file separator).
	MLLPEndBlock = 0x1C

	// MLLPCarriageReturn is the trailing CR after the end block.
	MLLPCarriageReturn = 0x0D

	// MLLPMaxMessageSize is the maximum buffer size for a single MLLP message (1 MB).
	MLLPMaxMessageSize = 1 << 20
)

// FrameMessage wraps raw HL7v2 bytes in MLLP framing:
//
//	<0x0B> + message + <0x1C><0x0D>
func FrameMessage(data []byte) []byte {
	frame := make([]byte, 0, len(data)+3)
	frame = append(frame, MLLPStartBlock)
	frame = append(frame, data...)
	frame = append(frame, MLLPEndBlock, MLLPCarriageReturn)
	return frame
}

// UnframeMessage extracts HL7v2 bytes from an MLLP frame. It looks for the
// first start block byte, then reads until end block + CR. It returns the
// extracted message, any remaining bytes after the frame, and whether a
// complete frame was found.
func UnframeMessage(data []byte) (message []byte, rest []byte, found bool) {
	startIdx := bytes.IndexByte(data, MLLPStartBlock)
	if startIdx == -1 {
		return nil, data, false
	}

	endSeq := []byte{MLLPEndBlock, MLLPCarriageReturn}
	endIdx := bytes.Index(data[startIdx+1:], endSeq)
	if endIdx == -1 {
		return nil, data, false
	}
	endIdx = startIdx + 1 + endIdx

	message = data[startIdx+1 : endIdx]
	rest = data[endIdx+2:]
	found = true
	return
}

// GenerateACK creates an HL7v2 ACK message for the given incoming message.
// ackCode should be "AA" (accept), "AE" (error), or "AR" (reject).
//
// The ACK swaps the sending and receiving application/facility from the
// original message and references the original control ID in MSA-2.
// incoming may be nil when the inbound message could not be parsed; the ACK
// is then built with empty routing fields and version 2.5.
func GenerateACK(incoming *Message, ackCode string) *Message {
	trigger := ""
	version := "2.5"
	controlIDRef := ""
	var sendApp, sendFac, recvApp, recvFac string

	if incoming != nil {
		if parts := strings.SplitN(incoming.Type, "^", 2); len(parts) == 2 {
			trigger = parts[1]
		}
		if incoming.Version != "" {
			version = incoming.Version
		}
		controlIDRef = incoming.ControlID
		sendApp, sendFac = incoming.ReceivingApp, incoming.ReceivingFac
		recvApp, recvFac = incoming.SendingApp, incoming.SendingFac
	}

	now := time.Now().UTC()
	timestamp := now.Format("20060102150405")
	controlID := fmt.Sprintf("ACK%s", now.Format("20060102150405.000"))

	msgType := "ACK"
	if trigger != "" {
		msgType = "ACK^" + trigger
	}

	ack := &Message{
		Type:         msgType,
		ControlID:    controlID,
		Version:      version,
		Timestamp:    now,
		SendingApp:   sendApp,
		SendingFac:   sendFac,
		ReceivingApp: recvApp,
		ReceivingFac: recvFac,
	}

	msh := Segment{
		Name: "MSH",
		Fields: []Field{
			{Value: "|", Components: []string{"|"}},
			{Value: "^~\\&", Components: []string{"^~\\&"}},
			{Value: sendApp, Components: []string{sendApp}},
			{Value: sendFac, Components: []string{sendFac}},
			{Value: recvApp, Components: []string{recvApp}},
			{Value: recvFac, Components: []string{recvFac}},
			{Value: timestamp, Components: []string{timestamp}},
			{Value: "", Components: []string{""}},
			{Value: msgType, Components: strings.Split(msgType, "^")},
			{Value: controlID, Components: []string{controlID}},
			{Value: "P", Components: []string{"P"}},
			{Value: version, Components: []string{version}},
		},
	}

	msa := Segment{
		Name: "MSA",
		Fields: []Field{
			{Value: ackCode, Components: []string{ackCode}},
			{Value: controlIDRef, Components: []string{controlIDRef}},
		},
	}

	ack.Segments = []Segment{msh, msa}

	return ack
}

// SerializeMessage converts a Message struct back into raw HL7v2 bytes
// with \r segment separators.
func SerializeMessage(msg *Message) []byte {
	var segments []string
	for _, seg := range msg.Segments {
		segments = append(segments, serializeSegment(seg))
	}
	return []byte(strings.Join(segments, "\r"))
}

// serializeSegment converts a Segment back into its HL7v2 string form.
func serializeSegment(seg Segment) string {
	if seg.Name == "MSH" {
		// MSH is special: Fields[0] is the field separator itself (|).
		if len(seg.Fields) < 2 {
			return "MSH|"
		}
		parts := make([]string, 0, len(seg.Fields)-1)
		for i := 1; i < len(seg.Fields); i++ {
			parts = append(parts, seg.Fields[i].Value)
		}
		return "MSH|" + strings.Join(parts, "|")
	}

	parts := make([]string, len(seg.Fields))
	for i, f := range seg.Fields {
		parts[i] = f.Value
	}
	return seg.Name + "|" + strings.Join(parts, "|")
}
