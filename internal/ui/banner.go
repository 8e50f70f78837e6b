package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

const (
	bannerRuleCharacterConstant = "="
	bannerWidthConstant         = 60
	bannerLineTemplateConstant  = "  %s %s\n"
)

// LineStatus selects the marker and colour of a banner line.
type LineStatus int

// Supported banner line statuses.
const (
	LineStatusNeutral LineStatus = iota
	LineStatusSuccess
	LineStatusFailure
	LineStatusSkipped
)

// Banner writes framed, optionally coloured summary sections.
type Banner struct {
	writer  io.Writer
	title   *color.Color
	success *color.Color
	failure *color.Color
	skipped *color.Color
}

// NewBanner constructs a Banner; colour is disabled when colorEnabled is false.
func NewBanner(writer io.Writer, colorEnabled bool) *Banner {
	if writer == nil {
		writer = io.Discard
	}
	banner := &Banner{
		writer:  writer,
		title:   color.New(color.Bold),
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		skipped: color.New(color.FgYellow),
	}
	for _, palette := range []*color.Color{banner.title, banner.success, banner.failure, banner.skipped} {
		if colorEnabled {
			palette.EnableColor()
		} else {
			palette.DisableColor()
		}
	}
	return banner
}

// Title writes a ruled heading.
func (banner *Banner) Title(text string) {
	rule := strings.Repeat(bannerRuleCharacterConstant, bannerWidthConstant)
	fmt.Fprintln(banner.writer, rule)
	banner.title.Fprintln(banner.writer, text)
	fmt.Fprintln(banner.writer, rule)
}

// Line writes one marker-prefixed line.
func (banner *Banner) Line(status LineStatus, text string) {
	switch status {
	case LineStatusSuccess:
		fmt.Fprintf(banner.writer, bannerLineTemplateConstant, banner.success.Sprint(SuccessMarker), text)
	case LineStatusFailure:
		fmt.Fprintf(banner.writer, bannerLineTemplateConstant, banner.failure.Sprint(FailureMarker), text)
	case LineStatusSkipped:
		fmt.Fprintf(banner.writer, bannerLineTemplateConstant, banner.skipped.Sprint(SkippedMarker), text)
	default:
		fmt.Fprintf(banner.writer, bannerLineTemplateConstant, " ", text)
	}
}

// Rule writes a closing rule.
func (banner *Banner) Rule() {
	fmt.Fprintln(banner.writer, strings.Repeat(bannerRuleCharacterConstant, bannerWidthConstant))
}

// ColorSupported reports whether standard output is a colour-capable terminal and NO_COLOR is unset.
func ColorSupported() bool {
	return !color.NoColor
}
