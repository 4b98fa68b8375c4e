package broker

import (
	"fmt"
	"os"
)

// logf prints an operational message to stdout unless quiet is set,
// matching the original daety server's printf-based logging and
// spec.md §7's "logs on standard output when not in daemon/quiet mode".
func (b *Broker) logf(format string, args ...any) {
	if b.opts.Quiet {
		return
	}
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

// traceBytes renders a byte slice the way the original server's putesc
// does under --verbose: printable bytes pass through, control bytes
// render as ^X.
func traceBytes(buf []byte) string {
	out := make([]byte, 0, len(buf)*2)
	for _, c := range buf {
		if c < 0x20 {
			out = append(out, '^', c|0x40)
		} else {
			out = append(out, c)
		}
	}
	return string(out)
}

// traceData logs a chunk of traffic under --verbose, per SPEC_FULL.md
// §12's restored verbose-echo-logging behavior.
func (b *Broker) traceData(origin string, n int, buf []byte) {
	if b.opts.Quiet {
		return
	}
	if b.opts.Verbose {
		fmt.Fprintf(os.Stdout, "<%s> (%dB) %s\n", origin, n, traceBytes(buf))
		return
	}
	fmt.Fprintf(os.Stdout, "<%s> (%dB)\n", origin, n)
}
