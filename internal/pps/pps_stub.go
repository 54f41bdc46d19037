//go:build !linux

package pps

import (
	"fmt"
	"io"
)

func openEdges(chip, line string, onEdge func(edge)) (io.Closer, error) {
	return nil, fmt.Errorf("pps: gpio edge events are only supported on linux")
}
