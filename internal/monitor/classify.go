// Package monitor classifies the output of running devices and drives the
// parent's polling loop over the registry.
package monitor

import (
	"regexp"
	"strconv"

	"flowkeeper/internal/models"
)

var (
	metricPattern  = regexp.MustCompile(`^\[METRIC\] ([^,\s]+),(\d+) (\S+) (\d+)$`)
	controlPattern = regexp.MustCompile(`^(?:CONTROL_ACTION: )?([A-Z_]+) valid-for ([A-Z_]+)$`)
)

// LineKind is the classification of one output line.
type LineKind int

const (
	TextLine LineKind = iota
	MetricLine
	ControlLine
)

const (
	CommandQuit = "QUIT"
	ScopeAll    = "ALL"
	ScopeMe     = "ME"
)

// Line is one classified output line.
type Line struct {
	Kind    LineKind
	Text    string
	Key     string
	Sample  models.MetricSample
	Command string
	Scope   string
}

/**
 * Classify a device output line
 * @param {string} text - Line without newline
 * @returns {Line} MetricLine, ControlLine or TextLine, in that priority
 * @description
 * - Metric: [METRIC] <key>,<type> <value> <timestamp>
 * - Control: [CONTROL_ACTION: ]<COMMAND> valid-for <SCOPE>
 */
func Classify(text string) Line {
	if m := metricPattern.FindStringSubmatch(text); m != nil {
		typ, err1 := strconv.Atoi(m[2])
		ts, err2 := strconv.ParseInt(m[4], 10, 64)
		if err1 == nil && err2 == nil {
			return Line{
				Kind:   MetricLine,
				Text:   text,
				Key:    m[1],
				Sample: models.MetricSample{Type: models.MetricType(typ), Value: m[3], Timestamp: ts},
			}
		}
	}
	if m := controlPattern.FindStringSubmatch(text); m != nil {
		return Line{Kind: ControlLine, Text: text, Command: m[1], Scope: m[2]}
	}
	return Line{Kind: TextLine, Text: text}
}
