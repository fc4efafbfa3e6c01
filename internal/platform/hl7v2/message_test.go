package hl7v2

import (
	"strings"
	"testing"
)

// =========== Sample Messages ===========

const sampleADT = "MSH|^~\\&|SIMULATION|SOUTH RIVERSIDE|||20240331224300||ADT^A01|||2.5\rPID|1||173305613||HAWWA HOOPER||19980114|F"

const sampleDischarge = "MSH|^~\\&|SIMULATION|SOUTH RIVERSIDE|||20240331225200||ADT^A03|||2.5\rPID|1||173305613"

const sampleORU = "MSH|^~\\&|SIMULATION|SOUTH RIVERSIDE|||20240331231400||ORU^R01|||2.5\rPID|1||173305613\rOBR|1||||||20240331231400\rOBX|1|SN|CREATININE||133.37"

// =========== Parser Tests ===========

func TestParse_ADT_A01(t *testing.T) {
	msg, err := Parse([]byte(sampleADT))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Type != "ADT^A01" {
		t.Errorf("expected Type 'ADT^A01', got %q", msg.Type)
	}
	if msg.Version != "2.5" {
		t.Errorf("expected Version '2.5', got %q", msg.Version)
	}
	if msg.SendingApp != "SIMULATION" {
		t.Errorf("expected SendingApp 'SIMULATION', got %q", msg.SendingApp)
	}
	if msg.SendingFac != "SOUTH RIVERSIDE" {
		t.Errorf("expected SendingFac 'SOUTH RIVERSIDE', got %q", msg.SendingFac)
	}
	if msg.Timestamp.Year() != 2024 || msg.Timestamp.Month() != 3 || msg.Timestamp.Day() != 31 {
		t.Errorf("unexpected timestamp: %v", msg.Timestamp)
	}
}

func TestParse_PID_Helpers(t *testing.T) {
	msg, err := Parse([]byte(sampleADT))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := msg.PatientID(); got != "173305613" {
		t.Errorf("PatientID: expected '173305613', got %q", got)
	}
	if got := msg.PatientName(); got != "HAWWA HOOPER" {
		t.Errorf("PatientName: expected 'HAWWA HOOPER', got %q", got)
	}
	if got := msg.DateOfBirth(); got != "19980114" {
		t.Errorf("DateOfBirth: expected '19980114', got %q", got)
	}
	if got := msg.Sex(); got != "F" {
		t.Errorf("Sex: expected 'F', got %q", got)
	}
}

func TestParse_ORU_Observation(t *testing.T) {
	msg, err := Parse([]byte(sampleORU))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Type != "ORU^R01" {
		t.Errorf("expected Type 'ORU^R01', got %q", msg.Type)
	}

	obsTime := msg.ObservationTime()
	if obsTime.IsZero() {
		t.Fatal("expected non-zero observation time")
	}
	if obsTime.Hour() != 23 || obsTime.Minute() != 14 {
		t.Errorf("unexpected observation time: %v", obsTime)
	}

	obx := msg.GetSegment("OBX")
	if obx == nil {
		t.Fatal("expected OBX segment")
	}
	if got := obx.GetField(5); got != "133.37" {
		t.Errorf("OBX-5: expected '133.37', got %q", got)
	}
	if got := obx.GetField(3); got != "CREATININE" {
		t.Errorf("OBX-3: expected 'CREATININE', got %q", got)
	}
}

func TestParse_LineEndings(t *testing.T) {
	variants := map[string]string{
		"cr":   sampleADT,
		"lf":   strings.ReplaceAll(sampleADT, "\r", "\n"),
		"crlf": strings.ReplaceAll(sampleADT, "\r", "\r\n"),
	}

	for name, raw := range variants {
		t.Run(name, func(t *testing.T) {
			msg, err := Parse([]byte(raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := msg.PatientID(); got != "173305613" {
				t.Errorf("PatientID: expected '173305613', got %q", got)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no MSH first", "PID|1||173305613"},
		{"whitespace only", "   \r\n  "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.raw)); err == nil {
				t.Error("expected parse error, got nil")
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"20240331231400", false},
		{"202403312314", false},
		{"20240331", false},
		{"2024", true},
		{"", true},
	}

	for _, tc := range cases {
		_, err := ParseTimestamp(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseTimestamp(%q): err=%v, wantErr=%v", tc.in, err, tc.wantErr)
		}
	}
}

func TestGetComponent_OutOfRange(t *testing.T) {
	msg, err := Parse([]byte(sampleADT))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pid := msg.GetSegment("PID")
	if pid == nil {
		t.Fatal("expected PID segment")
	}
	if got := pid.GetComponent(99, 1); got != "" {
		t.Errorf("expected empty string for out-of-range field, got %q", got)
	}
	if got := pid.GetComponent(3, 99); got != "" {
		t.Errorf("expected empty string for out-of-range component, got %q", got)
	}
}
