// Copyright (c) Sony Research Inc. All rights reserved.

package playback

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/SonyResearch/metavision-driver/pkg/driver/event"
)

// Recording text format, one event per line:
//
//	# serial: FILE0001
//	# geometry: 640x480
//	1000,12,34,1
//	1010,13,34,0
//
// Header lines start with '#'; unknown headers are skipped.

var (
	serialRe   = regexp.MustCompile(`^#\s*serial:\s*(\S+)`)
	geometryRe = regexp.MustCompile(`^#\s*geometry:\s*(\d+)x(\d+)`)
)

// Header carries the recording's identity read from comment lines.
type Header struct {
	Serial string
	Width  int
	Height int
}

// parseHeaderLine folds one comment line into the header. Returns false
// when the line carried no recognized header field.
func parseHeaderLine(line string, h *Header) bool {
	if m := serialRe.FindStringSubmatch(line); m != nil {
		h.Serial = m[1]
		return true
	}
	if m := geometryRe.FindStringSubmatch(line); m != nil {
		h.Width, _ = strconv.Atoi(m[1])
		h.Height, _ = strconv.Atoi(m[2])
		return true
	}
	return false
}

// parseEventLine parses one "t,x,y,p" record.
func parseEventLine(line string) (event.Event, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return event.Event{}, fmt.Errorf("malformed event record %q: want t,x,y,p", line)
	}
	t, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return event.Event{}, fmt.Errorf("bad timestamp in %q: %w", line, err)
	}
	x, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 16)
	if err != nil {
		return event.Event{}, fmt.Errorf("bad x in %q: %w", line, err)
	}
	y, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 16)
	if err != nil {
		return event.Event{}, fmt.Errorf("bad y in %q: %w", line, err)
	}
	p, err := strconv.ParseUint(strings.TrimSpace(parts[3]), 10, 1)
	if err != nil {
		return event.Event{}, fmt.Errorf("bad polarity in %q: %w", line, err)
	}
	return event.Event{T: t, X: uint16(x), Y: uint16(y), P: uint8(p)}, nil
}
