package xmltv

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

const scenarioFeed = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE tv SYSTEM "xmltv.dtd">
<tv generator-info-name="test">
  <channel id="channel1">
    <display-name lang="de">Kanal Eins</display-name>
    <display-name lang="en">Channel One</display-name>
    <icon src="https://img.example.com/c1.png"/>
  </channel>
  <channel id="channel2">
    <display-name>Channel Two</display-name>
  </channel>
  <programme start="20251226120000 +0000" stop="20251226130000 +0000" channel="channel1">
    <title lang="en">News at Noon</title>
    <sub-title>Midday edition</sub-title>
    <desc lang="en">Headlines.</desc>
    <category lang="en">News</category>
    <episode-num system="xmltv_ns">0.4.</episode-num>
    <episode-num system="onscreen">S01E05</episode-num>
    <rating system="MPAA"><value>PG</value></rating>
    <credits>
      <director>Jane Roe</director>
      <actor role="Anchor">John Doe</actor>
      <actor>Mary Major</actor>
      <presenter>Sam Poe</presenter>
    </credits>
    <date>2025</date>
    <country>UK</country>
  </programme>
  <programme start="20251226130000 +0000" stop="20251226140000 +0000" channel="channel1">
    <title>Afternoon Film</title>
  </programme>
</tv>`

func collect(t *testing.T, doc string) ([]Record, error) {
	t.Helper()
	dec := NewDecoder(strings.NewReader(doc))
	var recs []Record
	for {
		rec, err := dec.Next()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

func TestDecodeScenarioFeed(t *testing.T) {
	recs, err := collect(t, scenarioFeed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("got %d records, want 4", len(recs))
	}

	ch := recs[0].Channel
	if recs[0].Kind != KindChannel || ch == nil {
		t.Fatalf("record 0 kind = %v, want channel", recs[0].Kind)
	}
	if ch.ID != "channel1" || ch.DisplayName != "Channel One" {
		t.Errorf("channel = %+v, want channel1 / Channel One", ch)
	}
	if ch.IconURL != "https://img.example.com/c1.png" {
		t.Errorf("icon = %q", ch.IconURL)
	}
	if recs[1].Channel.DisplayName != "Channel Two" {
		t.Errorf("channel2 display name = %q", recs[1].Channel.DisplayName)
	}

	p := recs[2].Programme
	if recs[2].Kind != KindProgramme || p == nil {
		t.Fatalf("record 2 kind = %v, want programme", recs[2].Kind)
	}
	wantStart := time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)
	if !p.Start.Equal(wantStart) || !p.Stop.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("programme times = %v..%v", p.Start, p.Stop)
	}
	if p.Title != "News at Noon" || p.SubTitle != "Midday edition" || p.Description != "Headlines." {
		t.Errorf("programme text = %+v", p)
	}
	if p.Category != "News" || p.EpisodeNum != "S01E05" || p.Rating != "PG" {
		t.Errorf("category/episode/rating = %q/%q/%q", p.Category, p.EpisodeNum, p.Rating)
	}
	if len(p.Credits.Actors) != 2 || p.Credits.Directors[0] != "Jane Roe" || p.Credits.Presenters[0] != "Sam Poe" {
		t.Errorf("credits = %+v", p.Credits)
	}
	if p.ProductionYear != "2025" || p.Country != "UK" {
		t.Errorf("year/country = %q/%q", p.ProductionYear, p.Country)
	}
	if recs[3].Programme.Title != "Afternoon Film" {
		t.Errorf("second programme title = %q", recs[3].Programme.Title)
	}
}

func TestDecodeSkipsMalformedRecordAndContinues(t *testing.T) {
	doc := `<tv>
  <channel id="c1"><display-name>One</display-name></channel>
  <programme start="20251226120000 +0000" stop="20251226130000 +0000" channel="c1"><title>First</title></programme>
  <programme start="2025-12-26 13:00" stop="20251226140000 +0000" channel="c1"><title>Broken</title></programme>
  <programme start="20251226140000 +0000" stop="20251226150000 +0000" channel="c1"><title>Third</title></programme>
</tv>`
	recs, err := collect(t, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var kinds []Kind
	for _, r := range recs {
		kinds = append(kinds, r.Kind)
	}
	want := []Kind{KindChannel, KindProgramme, KindSkipped, KindProgramme}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
	skip := recs[2].Skip
	if skip.ChannelID != "c1" || !strings.Contains(skip.Reason, "invalid start") {
		t.Errorf("skip = %+v", skip)
	}
	if recs[3].Programme.Title != "Third" {
		t.Errorf("record after skip = %+v", recs[3].Programme)
	}
}

func TestDecodeSkipReasons(t *testing.T) {
	tests := []struct {
		name   string
		elem   string
		reason string
	}{
		{"channel without id", `<channel><display-name>X</display-name></channel>`, "missing id"},
		{"no channel attr", `<programme start="20251226120000" stop="20251226130000"><title>T</title></programme>`, "missing channel"},
		{"no stop", `<programme start="20251226120000" channel="c"><title>T</title></programme>`, "missing stop"},
		{"no title", `<programme start="20251226120000" stop="20251226130000" channel="c"></programme>`, "missing title"},
		{"reversed", `<programme start="20251226130000" stop="20251226120000" channel="c"><title>T</title></programme>`, "not after start"},
		{"bad offset", `<programme start="20251226120000 +2500" stop="20251226130000" channel="c"><title>T</title></programme>`, "invalid start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := collect(t, "<tv>"+tt.elem+"</tv>")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(recs) != 1 || recs[0].Kind != KindSkipped {
				t.Fatalf("records = %+v, want one skip", recs)
			}
			if !strings.Contains(recs[0].Skip.Reason, tt.reason) {
				t.Errorf("reason = %q, want it to contain %q", recs[0].Skip.Reason, tt.reason)
			}
		})
	}
}

func TestDecodeFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"wrong root", `<rss><channel id="x"/></rss>`},
		{"truncated", `<tv><channel id="c1"><display-name>One</display-name></channel><programme start="2025`},
		{"mismatched tags", `<tv><channel id="c1"></programme></tv>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, tt.doc)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v, want *DecodeError", err)
			}
		})
	}
}

func TestDecodeErrorIsSticky(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`<tv><channel id="a"/><broken`))
	if rec, err := dec.Next(); err != nil || rec.Kind != KindChannel {
		t.Fatalf("first Next = %v, %v", rec.Kind, err)
	}
	_, err1 := dec.Next()
	_, err2 := dec.Next()
	if err1 == nil || err1 != err2 {
		t.Fatalf("errors = %v, %v; want the same fatal error twice", err1, err2)
	}
}

func TestDecodeIgnoresUnknownElements(t *testing.T) {
	doc := `<tv><meta><nested>x</nested></meta><channel id="c1"/></tv>`
	recs, err := collect(t, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || recs[0].Channel.ID != "c1" || recs[0].Channel.DisplayName != "c1" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestDecodeLatin1Document(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<tv><channel id=\"c1\"><display-name>Caf\xe9 TV</display-name></channel></tv>"
	recs, err := collect(t, doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := recs[0].Channel.DisplayName; got != "Café TV" {
		t.Errorf("display name = %q, want Café TV", got)
	}
}

func TestDecodeHonoursPreferredLang(t *testing.T) {
	doc := `<tv><programme start="20251226120000" stop="20251226130000" channel="c">
<title lang="en">Evening</title><title lang="fr">Soir</title></programme></tv>`
	dec := NewDecoder(strings.NewReader(doc))
	dec.Lang = "fr"
	rec, err := dec.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Programme.Title != "Soir" {
		t.Errorf("title = %q, want Soir", rec.Programme.Title)
	}
}
