package osc

import (
	"fmt"
	"slices"
)

// Addresses understood by the arpeggiator service.
const (
	AddrBPM        = "/bpm"
	AddrDrums      = "/drums"
	AddrArpStyle   = "/arp/style"
	AddrNoteLength = "/note/length"
	AddrSlider     = "/slider"
)

// Ranges accepted by the controller.
const (
	MinBPM         = 60
	MaxBPM         = 180
	MaxSliderValue = 127
)

// ArpStyles lists the arpeggio styles, in menu order.
var ArpStyles = []string{"up", "down", "up down", "down up", "third octaved"}

// NoteLengths lists the note lengths, shortest first. They travel as strings.
var NoteLengths = []string{"1/32", "1/16", "1/12", "1/8", "1/6", "1/4", "1/2", "1", "1.5", "2"}

// BPM builds "/bpm ,i".
func BPM(bpm int) (Message, error) {
	if bpm < MinBPM || bpm > MaxBPM {
		return Message{}, fmt.Errorf("osc: bpm %d outside %d..%d", bpm, MinBPM, MaxBPM)
	}
	return NewMessage(AddrBPM, Int32(bpm)), nil
}

// Drums builds "/drums ,s" with "on" or "off".
func Drums(on bool) Message {
	state := "off"
	if on {
		state = "on"
	}
	return NewMessage(AddrDrums, String(state))
}

// ArpStyle builds "/arp/style ,s".
func ArpStyle(style string) (Message, error) {
	if !slices.Contains(ArpStyles, style) {
		return Message{}, fmt.Errorf("osc: unknown arpeggio style %q (want one of %q)", style, ArpStyles)
	}
	return NewMessage(AddrArpStyle, String(style)), nil
}

// NoteLength builds "/note/length ,s".
func NoteLength(length string) (Message, error) {
	if !slices.Contains(NoteLengths, length) {
		return Message{}, fmt.Errorf("osc: unknown note length %q (want one of %q)", length, NoteLengths)
	}
	return NewMessage(AddrNoteLength, String(length)), nil
}

// Slider builds "/slider ,ii" for a 1-based effect index.
func Slider(effect, value int) (Message, error) {
	if effect < 1 {
		return Message{}, fmt.Errorf("osc: effect index %d must be >= 1", effect)
	}
	if value < 0 || value > MaxSliderValue {
		return Message{}, fmt.Errorf("osc: slider value %d outside 0..%d", value, MaxSliderValue)
	}
	return NewMessage(AddrSlider, Int32(effect), Int32(value)), nil
}
