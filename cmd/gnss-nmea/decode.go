package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gnss-nmea/internal/nmea"
)

// runDecode decodes each line of in, writing records to out and rejected
// lines to errOut.
func runDecode(in io.Reader, out, errOut io.Writer, opts nmea.Options) (decoded, invalid int, err error) {
	dec := nmea.NewDecoder(opts)
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 0, 4096), 64*1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		rec, derr := dec.Decode(line)
		if derr != nil {
			invalid++
			_, _ = fmt.Fprintf(errOut, "invalid line=%q err=%v\n", line, derr)
			continue
		}
		decoded++
		if _, err := fmt.Fprintln(out, rec.String()); err != nil {
			return decoded, invalid, err
		}
	}
	return decoded, invalid, s.Err()
}
