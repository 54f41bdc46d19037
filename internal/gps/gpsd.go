package gps

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"strings"
	"time"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

// gpsdWatchNMEA asks gpsd to pass the receiver's raw sentences through.
const gpsdWatchNMEA = "?WATCH={\"enable\":true,\"nmea\":true}\n"

type gpsdReport struct {
	Class   string `json:"class"`
	Release string `json:"release"`
	Devices []struct {
		Path string `json:"path"`
	} `json:"devices"`
}

// gpsdLine classifies a line received in NMEA watch mode. gpsd interleaves
// its own JSON reports (VERSION, DEVICES, WATCH) with the sentences.
func gpsdLine(line string) (sentence string, report *gpsdReport) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return line, nil
	}
	var r gpsdReport
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return "", nil
	}
	return "", &r
}

// startGPSDLocked reuses the TCP source: gpsd is a line feed once the
// watch command has been sent on each connection.
func (s *Service) startGPSDLocked(ctx context.Context) error {
	s.device.Store("gpsd")
	src, err := NewTCPSource(TCPConfig{
		Addr:         s.cfg.GPSDAddr,
		MaxLineBytes: 64 * 1024,
		OnConnect: func(conn net.Conn) error {
			_, err := conn.Write([]byte(gpsdWatchNMEA))
			return err
		},
	})
	if err != nil {
		return err
	}
	err = src.Start(ctx, func(line string) error {
		sentence, report := gpsdLine(line)
		if report != nil {
			if strings.EqualFold(report.Class, "DEVICES") && len(report.Devices) > 0 {
				s.device.Store(report.Devices[0].Path)
			}
			return nil
		}
		if sentence != "" {
			s.HandleLine(time.Now().UTC(), sentence)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.closer = src
	s.tcp = src
	log.Printf("gps enabled source=gpsd addr=%s", s.cfg.GPSDAddr)
	return nil
}
