package parser

import (
	"regexp"
	"strings"
)

// Format is the line grammar detected for an input.
type Format int

const (
	FormatUnknown Format = iota
	// FormatPowerLog is the standalone Power.log layout: "D <time> <Method>() - <payload>".
	FormatPowerLog
	// FormatOutputLog is the "[Power]" channel of the client output log. It has no timestamp.
	FormatOutputLog
)

func (f Format) String() string {
	switch f {
	case FormatPowerLog:
		return "power_log"
	case FormatOutputLog:
		return "output_log"
	default:
		return "unknown"
	}
}

// ParseFormatName is the inverse of Format.String. Unknown names map to
// FormatUnknown.
func ParseFormatName(s string) Format {
	switch s {
	case "power_log":
		return FormatPowerLog
	case "output_log":
		return FormatOutputLog
	default:
		return FormatUnknown
	}
}

var (
	rePowerLogLine = regexp.MustCompile(`^D ([\d:.]+) ([^(]+)\(\) - (.+)$`)
	reOutputLogLine = regexp.MustCompile(`^\[Power\] ([^(]+)\(\) - (.+)$`)
)

// RawLine is a classified physical line.
type RawLine struct {
	Timestamp string
	Method    string
	Payload   string
}

// Classify matches line against the known line grammars. When *format is
// FormatUnknown, the first grammar that matches is stored in *format and used
// exclusively for every later call. ok is false for lines that belong to
// neither grammar; such lines are simply not part of the power stream.
func Classify(line string, format *Format) (RawLine, bool) {
	line = strings.TrimRight(line, "\r\n")

	switch *format {
	case FormatPowerLog:
		return matchPowerLog(line)
	case FormatOutputLog:
		return matchOutputLog(line)
	}

	if rl, ok := matchPowerLog(line); ok {
		*format = FormatPowerLog
		return rl, true
	}
	if rl, ok := matchOutputLog(line); ok {
		*format = FormatOutputLog
		return rl, true
	}
	return RawLine{}, false
}

func matchPowerLog(line string) (RawLine, bool) {
	m := rePowerLogLine.FindStringSubmatch(line)
	if m == nil {
		return RawLine{}, false
	}
	return RawLine{Timestamp: m[1], Method: m[2], Payload: m[3]}, true
}

func matchOutputLog(line string) (RawLine, bool) {
	m := reOutputLogLine.FindStringSubmatch(line)
	if m == nil {
		return RawLine{}, false
	}
	return RawLine{Method: m[1], Payload: m[2]}, true
}
