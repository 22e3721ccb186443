package capture

import "testing"

const pactlSample = `Sink Input #42
	Driver: protocol-native.c
	Sample Specification: s16le 2ch 44100Hz
	Volume: front-left: 52428 /  80% / -5.81 dB,   front-right: 52428 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
		media.name = "AudioStream"

Sink Input #57
	Driver: protocol-native.c
	Volume: front-left: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "murmurd"
`

func TestParseSinkInputs(t *testing.T) {
	inputs := parseSinkInputs(pactlSample)
	if len(inputs) != 2 {
		t.Fatalf("expected 2 sink inputs, got %d", len(inputs))
	}
	if inputs[0].ID != 42 || inputs[0].Volume != 80 || inputs[0].AppName != "Firefox" {
		t.Fatalf("unexpected first input: %+v", inputs[0])
	}
	if inputs[1].ID != 57 || inputs[1].Volume != 100 || inputs[1].AppName != "murmurd" {
		t.Fatalf("unexpected second input: %+v", inputs[1])
	}
}

func TestParseSinkInputsEmpty(t *testing.T) {
	if inputs := parseSinkInputs("no sink inputs here"); inputs != nil {
		t.Fatalf("expected nil, got %+v", inputs)
	}
}
