// Package decoder turns raw HL7v2 wire bytes into typed clinical events.
// It is the boundary between the MLLP transport and the rest of the system:
// every inbound message yields exactly one event and one acknowledgment,
// whether or not the message was recognized.
package decoder

import (
	"strconv"
	"time"

	"github.com/renalert/renalert/internal/platform/hl7v2"
)

// Kind identifies the variant of a decoded event.
type Kind string

const (
	KindAdmission    Kind = "admission"
	KindDischarge    Kind = "discharge"
	KindLabResult    Kind = "lab_result"
	KindUnrecognized Kind = "unrecognized"
)

// Reason classifies why a message could not be decoded into a clinical event.
type Reason string

const (
	ReasonMalformed         Reason = "malformed"
	ReasonMissingIdentifier Reason = "missing_identifier"
)

// Event is the tagged union over the decoded clinical event kinds.
type Event interface {
	Kind() Kind
}

// Admission is an ADT^A01 event: the patient was admitted.
type Admission struct {
	MRN  int64
	Name string // empty when PID-5 is absent
	Age  *int   // nil when PID-7 is absent
	Sex  string // "M", "F", or "U"
}

func (Admission) Kind() Kind { return KindAdmission }

// Discharge is an ADT^A03 event: the patient was discharged.
type Discharge struct {
	MRN int64
}

func (Discharge) Kind() Kind { return KindDischarge }

// LabResult is an ORU^R01 event carrying one creatinine measurement.
type LabResult struct {
	MRN      int64
	TestTime time.Time
	Value    float64
}

func (LabResult) Kind() Kind { return KindLabResult }

// Unrecognized is a message that could not be decoded into a clinical event.
// No store mutation results from it; it is counted for observability only.
type Unrecognized struct {
	Raw    []byte
	Reason Reason
}

func (Unrecognized) Kind() Kind { return KindUnrecognized }

// messageKinds is the explicit type-code-to-variant lookup table (MSH-9).
var messageKinds = map[string]Kind{
	"ADT^A01": KindAdmission,
	"ADT^A03": KindDischarge,
	"ORU^R01": KindLabResult,
}

// Decoder decodes raw HL7v2 bytes into events. It holds no state across
// calls; the clock is injectable so age derivation is deterministic in tests.
type Decoder struct {
	now func() time.Time
}

// New returns a Decoder using the real clock.
func New() *Decoder {
	return &Decoder{now: time.Now}
}

// NewWithClock returns a Decoder whose age and fallback-timestamp derivation
// uses the given clock.
func NewWithClock(now func() time.Time) *Decoder {
	return &Decoder{now: now}
}

// Decode parses one unframed HL7v2 message and returns the decoded event
// together with the framed acknowledgment to write back to the feed. The
// acknowledgment is always syntactically valid: AA for recognized events,
// AE otherwise. Acknowledgment is a transport-layer receipt, not an
// application-level success signal.
func (d *Decoder) Decode(raw []byte) (Event, []byte) {
	msg, err := hl7v2.Parse(raw)
	if err != nil {
		return Unrecognized{Raw: raw, Reason: ReasonMalformed}, nak(nil)
	}

	kind, ok := messageKinds[msg.Type]
	if !ok {
		return Unrecognized{Raw: raw, Reason: ReasonMalformed}, nak(msg)
	}

	mrnStr := msg.PatientID()
	if mrnStr == "" {
		return Unrecognized{Raw: raw, Reason: ReasonMissingIdentifier}, nak(msg)
	}
	mrn, err := strconv.ParseInt(mrnStr, 10, 64)
	if err != nil {
		return Unrecognized{Raw: raw, Reason: ReasonMissingIdentifier}, nak(msg)
	}

	switch kind {
	case KindAdmission:
		return Admission{
			MRN:  mrn,
			Name: msg.PatientName(),
			Age:  d.ageFromDOB(msg.DateOfBirth()),
			Sex:  normalizeSex(msg.Sex()),
		}, ack(msg)

	case KindDischarge:
		return Discharge{MRN: mrn}, ack(msg)

	default: // KindLabResult
		value, ok := firstNumericOBX(msg)
		if !ok {
			return Unrecognized{Raw: raw, Reason: ReasonMalformed}, nak(msg)
		}
		testTime := msg.ObservationTime()
		if testTime.IsZero() {
			// OBR-7 missing: fall back to receipt time, matching the
			// upstream contract that test time is source truth when present.
			testTime = d.now()
		}
		return LabResult{MRN: mrn, TestTime: testTime, Value: value}, ack(msg)
	}
}

// ageFromDOB derives whole years from a PID-7 date of birth, or nil when the
// field is absent or unparseable.
func (d *Decoder) ageFromDOB(dob string) *int {
	if dob == "" {
		return nil
	}
	born, err := hl7v2.ParseTimestamp(dob)
	if err != nil {
		return nil
	}

	now := d.now()
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	if age < 0 {
		return nil
	}
	return &age
}

// normalizeSex maps PID-8 onto the single-character sex enum.
func normalizeSex(s string) string {
	switch s {
	case "M", "m":
		return "M"
	case "F", "f":
		return "F"
	default:
		return "U"
	}
}

// firstNumericOBX returns the first OBX-5 value that parses as a float.
func firstNumericOBX(msg *hl7v2.Message) (float64, bool) {
	for _, obx := range msg.GetSegments("OBX") {
		v, err := strconv.ParseFloat(obx.GetField(5), 64)
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

func ack(msg *hl7v2.Message) []byte {
	return hl7v2.FrameMessage(hl7v2.SerializeMessage(hl7v2.GenerateACK(msg, "AA")))
}

func nak(msg *hl7v2.Message) []byte {
	return hl7v2.FrameMessage(hl7v2.SerializeMessage(hl7v2.GenerateACK(msg, "AE")))
}
