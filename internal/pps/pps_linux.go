//go:build linux

package pps

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

func openEdges(chipPath, lineName string, onEdge func(edge)) (io.Closer, error) {
	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventRisingEdge {
			return
		}
		onEdge(edge{at: time.Now().UTC(), mono: evt.Timestamp})
	}

	if chipPath != "" {
		if off, err := strconv.Atoi(lineName); err == nil {
			return requestEdges(chipPath, off, handler)
		}
	}

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	if chipPath != "" {
		chipCandidates = []string{chipPath}
	} else {
		entries, _ := os.ReadDir("/dev")
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "gpiochip") {
				chipCandidates = append(chipCandidates, filepath.Join("/dev", e.Name()))
			}
		}
	}

	for _, p := range chipCandidates {
		chip, err := gpiocdev.NewChip(p)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		_ = chip.Close()
		if err != nil {
			continue
		}
		if l, err := requestEdges(p, offset, handler); err == nil {
			return l, nil
		}
	}
	return nil, fmt.Errorf("pps: gpio line %q not found (or busy)", lineName)
}

func requestEdges(chipPath string, offset int, handler gpiocdev.EventHandler) (io.Closer, error) {
	l, err := gpiocdev.RequestLine(chipPath, offset,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(handler),
		gpiocdev.WithConsumer("gnss-nmea-pps"),
	)
	if err != nil {
		return nil, fmt.Errorf("pps: request %s:%d: %w", chipPath, offset, err)
	}
	return l, nil
}
