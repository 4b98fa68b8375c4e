package codec

import "testing"

func TestScanClientInput_Term(t *testing.T) {
	residual, events := ScanClientInput(EncodeTerm())
	if len(residual) != 0 {
		t.Errorf("residual = %q, want empty", residual)
	}
	if len(events) != 1 || events[0].Kind != Term {
		t.Fatalf("events = %+v, want [Term]", events)
	}
}

func TestScanClientInput_WinsizeSplicedOut(t *testing.T) {
	in := append([]byte("hello "), EncodeWinsize(120, 40)...)
	in = append(in, []byte(" world")...)

	residual, events := ScanClientInput(in)
	if string(residual) != "hello  world" {
		t.Errorf("residual = %q, want %q", residual, "hello  world")
	}
	if len(events) != 1 || events[0].Kind != Winsize || events[0].Cols != 120 || events[0].Rows != 40 {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanClientInput_ZeroDimensionIsMalformed(t *testing.T) {
	in := []byte{Esc, discWinsize, '0', ';', '2', '4', 'w'}
	residual, events := ScanClientInput(in)
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none for a zero-dimension WINSIZE", events)
	}
	if len(residual) != len(in) {
		t.Errorf("residual = %q, want the malformed sequence forwarded untouched", residual)
	}
}

func TestScanClientInput_OrdinaryData(t *testing.T) {
	residual, events := ScanClientInput([]byte("ls -la\n"))
	if string(residual) != "ls -la\n" {
		t.Errorf("residual = %q", residual)
	}
	if len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
}

func TestScanProgramOutput_ExerrSplicedOut(t *testing.T) {
	in := EncodeExerr(127)
	residual, events := ScanProgramOutput(in)
	if len(residual) != 0 {
		t.Errorf("residual = %q, want empty", residual)
	}
	if len(events) != 1 || events[0].Kind != Exerr || events[0].Errno != 127 {
		t.Fatalf("events = %+v", events)
	}
}

func TestScanProgramOutput_AltScreenKeptInResidual(t *testing.T) {
	in := append(EncodeAltEnter(), []byte("fullscreen app")...)
	residual, events := ScanProgramOutput(in)
	if string(residual) != string(in) {
		t.Errorf("residual = %q, want alt-screen sequence preserved", residual)
	}
	if len(events) != 1 || events[0].Kind != AltEnter {
		t.Fatalf("events = %+v, want [AltEnter]", events)
	}
}

func TestScanProgramOutput_UnrecognizedEscPassesThrough(t *testing.T) {
	in := []byte("\x1b[31mred\x1b[0m")
	residual, events := ScanProgramOutput(in)
	if string(residual) != string(in) {
		t.Errorf("residual = %q, want unrecognized ANSI forwarded verbatim", residual)
	}
	if len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
}
