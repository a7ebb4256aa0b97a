package xmltv

import (
	"fmt"
	"time"
)

// Kind identifies the record variant produced by the Decoder.
type Kind int

const (
	KindChannel Kind = iota + 1
	KindProgramme
	KindSkipped
)

func (k Kind) String() string {
	switch k {
	case KindChannel:
		return "channel"
	case KindProgramme:
		return "programme"
	case KindSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Channel is a <channel> declaration.
type Channel struct {
	ID          string
	DisplayName string
	IconURL     string
}

// Credits lists the people attached to a programme.
type Credits struct {
	Actors     []string
	Directors  []string
	Presenters []string
	Writers    []string
	Producers  []string
}

// Programme is a <programme> declaration with its times already converted to UTC.
type Programme struct {
	ChannelID      string
	StartRaw       string
	StopRaw        string
	Start          time.Time
	Stop           time.Time
	Title          string
	SubTitle       string
	Description    string
	Category       string
	EpisodeNum     string
	Rating         string
	IconURL        string
	ProductionYear string
	Country        string
	Credits        Credits
}

// Skip reports a record that was dropped without ending the stream.
type Skip struct {
	Element   string // "channel" or "programme"
	ChannelID string // provider channel id, when known
	Reason    string
}

func (s *Skip) Error() string {
	if s.ChannelID != "" {
		return fmt.Sprintf("skipped %s (channel %q): %s", s.Element, s.ChannelID, s.Reason)
	}
	return fmt.Sprintf("skipped %s: %s", s.Element, s.Reason)
}

// Record is one element of the decoded stream. Exactly one of Channel,
// Programme or Skip is set, according to Kind.
type Record struct {
	Kind      Kind
	Channel   *Channel
	Programme *Programme
	Skip      *Skip
}

// DecodeError is a fatal envelope error; the stream cannot continue past it.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("xmltv: decode at byte %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
