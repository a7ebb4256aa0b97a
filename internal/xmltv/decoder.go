// Package xmltv decodes XMLTV schedule documents as a forward-only stream of
// channel and programme records, holding at most one element in memory.
package xmltv

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

// DefaultLang is the preferred language for multi-lingual text elements.
const DefaultLang = "en"

// Decoder pulls records from an XMLTV document. It is not restartable and
// not safe for concurrent use.
type Decoder struct {
	// Lang selects which lang="" variant of title/desc/display-name wins.
	// Elements without a lang attribute count as Lang.
	Lang string

	dec        *xml.Decoder
	rootSeen   bool
	rootClosed bool
	err        error
}

// NewDecoder returns a Decoder reading from r. Non-UTF-8 encodings declared in
// the XML prolog are transcoded.
func NewDecoder(r io.Reader) *Decoder {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity
	return &Decoder{Lang: DefaultLang, dec: dec}
}

// Next returns the next record. It returns io.EOF once the document has been
// fully consumed and a *DecodeError if the document is structurally broken;
// both are sticky.
func (d *Decoder) Next() (Record, error) {
	if d.err != nil {
		return Record{}, d.err
	}
	for {
		tok, err := d.dec.Token()
		if err == io.EOF {
			switch {
			case !d.rootSeen:
				return d.fail(errors.New("no <tv> root element"))
			case !d.rootClosed:
				return d.fail(io.ErrUnexpectedEOF)
			}
			d.err = io.EOF
			return Record{}, io.EOF
		}
		if err != nil {
			return d.fail(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !d.rootSeen {
				if t.Name.Local != "tv" {
					return d.fail(fmt.Errorf("root element is <%s>, want <tv>", t.Name.Local))
				}
				d.rootSeen = true
				continue
			}
			if d.rootClosed {
				return d.fail(fmt.Errorf("element <%s> after </tv>", t.Name.Local))
			}
			switch t.Name.Local {
			case "channel":
				return d.channel(t)
			case "programme":
				return d.programme(t)
			default:
				if err := d.dec.Skip(); err != nil {
					return d.fail(err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "tv" {
				d.rootClosed = true
			}
		}
	}
}

func (d *Decoder) fail(err error) (Record, error) {
	d.err = &DecodeError{Offset: d.dec.InputOffset(), Err: err}
	return Record{}, d.err
}

func (d *Decoder) channel(start xml.StartElement) (Record, error) {
	var raw xmlChannel
	if err := d.dec.DecodeElement(&raw, &start); err != nil {
		return d.fail(err)
	}
	id := clean(raw.ID)
	if id == "" {
		return skipped("channel", "", "missing id attribute"), nil
	}
	ch := &Channel{
		ID:          id,
		DisplayName: pickLang(raw.DisplayNames, d.Lang),
		IconURL:     firstIcon(raw.Icons),
	}
	if ch.DisplayName == "" {
		ch.DisplayName = id
	}
	return Record{Kind: KindChannel, Channel: ch}, nil
}

func (d *Decoder) programme(start xml.StartElement) (Record, error) {
	var raw xmlProgramme
	if err := d.dec.DecodeElement(&raw, &start); err != nil {
		return d.fail(err)
	}
	channelID := clean(raw.Channel)
	if channelID == "" {
		return skipped("programme", "", "missing channel attribute"), nil
	}
	if strings.TrimSpace(raw.Start) == "" {
		return skipped("programme", channelID, "missing start attribute"), nil
	}
	if strings.TrimSpace(raw.Stop) == "" {
		return skipped("programme", channelID, "missing stop attribute"), nil
	}
	startAt, err := ParseTimestamp(raw.Start)
	if err != nil {
		return skipped("programme", channelID, "invalid start: "+err.Error()), nil
	}
	stopAt, err := ParseTimestamp(raw.Stop)
	if err != nil {
		return skipped("programme", channelID, "invalid stop: "+err.Error()), nil
	}
	if !stopAt.After(startAt) {
		return skipped("programme", channelID, "stop is not after start"), nil
	}
	title := pickLang(raw.Titles, d.Lang)
	if title == "" {
		return skipped("programme", channelID, "missing title"), nil
	}

	p := &Programme{
		ChannelID:      channelID,
		StartRaw:       raw.Start,
		StopRaw:        raw.Stop,
		Start:          startAt,
		Stop:           stopAt,
		Title:          title,
		SubTitle:       pickLang(raw.SubTitles, d.Lang),
		Description:    pickLang(raw.Descs, d.Lang),
		Category:       pickLang(raw.Categories, d.Lang),
		EpisodeNum:     episodeNum(raw.EpisodeNums),
		Rating:         rating(raw.Ratings),
		IconURL:        firstIcon(raw.Icons),
		ProductionYear: clean(raw.Date),
		Country:        pickLang(raw.Countries, d.Lang),
	}
	if raw.Credits != nil {
		p.Credits = Credits{
			Actors:     texts(raw.Credits.Actors),
			Directors:  texts(raw.Credits.Directors),
			Presenters: texts(raw.Credits.Presenters),
			Writers:    texts(raw.Credits.Writers),
			Producers:  texts(raw.Credits.Producers),
		}
	}
	return Record{Kind: KindProgramme, Programme: p}, nil
}

func skipped(element, channelID, reason string) Record {
	return Record{Kind: KindSkipped, Skip: &Skip{Element: element, ChannelID: channelID, Reason: reason}}
}

// --- raw element shapes ---

type langText struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type icon struct {
	Src string `xml:"src,attr"`
}

type xmlChannel struct {
	ID           string     `xml:"id,attr"`
	DisplayNames []langText `xml:"display-name"`
	Icons        []icon     `xml:"icon"`
}

type xmlEpisodeNum struct {
	System string `xml:"system,attr"`
	Value  string `xml:",chardata"`
}

type xmlRating struct {
	System string `xml:"system,attr"`
	Value  string `xml:"value"`
}

type xmlCredits struct {
	Actors     []langText `xml:"actor"`
	Directors  []langText `xml:"director"`
	Presenters []langText `xml:"presenter"`
	Writers    []langText `xml:"writer"`
	Producers  []langText `xml:"producer"`
}

type xmlProgramme struct {
	Channel     string          `xml:"channel,attr"`
	Start       string          `xml:"start,attr"`
	Stop        string          `xml:"stop,attr"`
	Titles      []langText      `xml:"title"`
	SubTitles   []langText      `xml:"sub-title"`
	Descs       []langText      `xml:"desc"`
	Categories  []langText      `xml:"category"`
	EpisodeNums []xmlEpisodeNum `xml:"episode-num"`
	Ratings     []xmlRating     `xml:"rating"`
	Icons       []icon          `xml:"icon"`
	Date        string          `xml:"date"`
	Countries   []langText      `xml:"country"`
	Credits     *xmlCredits     `xml:"credits"`
}

// --- field helpers ---

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// pickLang returns the first non-empty text in lang, falling back to the first non-empty text.
func pickLang(items []langText, lang string) string {
	for _, it := range items {
		l := it.Lang
		if l == "" {
			l = DefaultLang
		}
		if strings.EqualFold(l, lang) {
			if v := clean(it.Value); v != "" {
				return v
			}
		}
	}
	for _, it := range items {
		if v := clean(it.Value); v != "" {
			return v
		}
	}
	return ""
}

func texts(items []langText) []string {
	var out []string
	for _, it := range items {
		if v := clean(it.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstIcon(icons []icon) string {
	for _, ic := range icons {
		if v := strings.TrimSpace(ic.Src); v != "" {
			return v
		}
	}
	return ""
}

// episodeNum prefers the human-readable onscreen numbering.
func episodeNum(nums []xmlEpisodeNum) string {
	for _, n := range nums {
		if n.System == "onscreen" {
			if v := clean(n.Value); v != "" {
				return v
			}
		}
	}
	for _, n := range nums {
		if v := clean(n.Value); v != "" {
			return v
		}
	}
	return ""
}

func rating(rs []xmlRating) string {
	for _, r := range rs {
		if v := clean(r.Value); v != "" {
			return v
		}
	}
	return ""
}
