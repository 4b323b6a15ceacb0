package feed

import (
	"encoding/xml"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/ligovirgo/seismon/internal/model"
)

// Parser turns one report file into event attributes. A nil result with a
// nil error means the file held no event.
type Parser interface {
	Parse(path, eventName string) (*model.Attributes, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(path, eventName string) (*model.Attributes, error)

func (f ParserFunc) Parse(path, eventName string) (*model.Attributes, error) {
	return f(path, eventName)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTime accepts ISO-8601 timestamps with or without a zone; zoneless
// values are UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func decodeFile(p string, v any) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := xml.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

// EQXML (ANSS EQMessage)

type eqMessage struct {
	XMLName xml.Name `xml:"EQMessage"`
	Sent    string   `xml:"Sent"`
	Event   *struct {
		DataSource string     `xml:"DataSource"`
		EventID    string     `xml:"EventID"`
		Origins    []eqOrigin `xml:"Origin"`
	} `xml:"Event"`
}

type eqOrigin struct {
	Time          string        `xml:"Time"`
	Latitude      *float64      `xml:"Latitude"`
	Longitude     *float64      `xml:"Longitude"`
	Depth         *float64      `xml:"Depth"` // km
	PreferredFlag string        `xml:"PreferredFlag"`
	Magnitudes    []eqMagnitude `xml:"Magnitude"`
}

type eqMagnitude struct {
	TypeKey string   `xml:"TypeKey"`
	Value   *float64 `xml:"Value"`
}

// EQXMLParser reads ANSS EQXML messages.
type EQXMLParser struct{}

func (EQXMLParser) Parse(p, eventName string) (*model.Attributes, error) {
	var msg eqMessage
	if err := decodeFile(p, &msg); err != nil {
		return nil, err
	}
	if msg.Event == nil || len(msg.Event.Origins) == 0 {
		return nil, nil
	}

	origin := msg.Event.Origins[0]
	for _, o := range msg.Event.Origins {
		if strings.EqualFold(strings.TrimSpace(o.PreferredFlag), "true") {
			origin = o
			break
		}
	}

	a := &model.Attributes{
		EventName: eventName,
		Latitude:  origin.Latitude,
		Longitude: origin.Longitude,
	}
	if a.EventName == "" {
		a.EventName = strings.ToLower(msg.Event.DataSource + msg.Event.EventID)
	}
	if origin.Depth != nil {
		a.Depth = *origin.Depth
	}
	for _, m := range origin.Magnitudes {
		if m.Value != nil {
			a.Magnitude = m.Value
			break
		}
	}

	var err error
	if a.Time, err = parseTime(origin.Time); err != nil {
		return nil, err
	}
	if a.Sent, err = parseTime(msg.Sent); err != nil {
		return nil, err
	}
	return a, nil
}

// QuakeML (BED 1.2)

type quakeML struct {
	XMLName         xml.Name `xml:"quakeml"`
	EventParameters struct {
		CreationInfo qmlCreationInfo `xml:"creationInfo"`
		Events       []qmlEvent      `xml:"event"`
	} `xml:"eventParameters"`
}

type qmlCreationInfo struct {
	CreationTime string `xml:"creationTime"`
}

type qmlEvent struct {
	PublicID             string          `xml:"publicID,attr"`
	PreferredOriginID    string          `xml:"preferredOriginID"`
	PreferredMagnitudeID string          `xml:"preferredMagnitudeID"`
	Origins              []qmlOrigin     `xml:"origin"`
	Magnitudes           []qmlMagnitude  `xml:"magnitude"`
	CreationInfo         qmlCreationInfo `xml:"creationInfo"`
}

type qmlOrigin struct {
	PublicID  string   `xml:"publicID,attr"`
	Time      string   `xml:"time>value"`
	Latitude  *float64 `xml:"latitude>value"`
	Longitude *float64 `xml:"longitude>value"`
	Depth     *float64 `xml:"depth>value"` // metres
}

type qmlMagnitude struct {
	PublicID string   `xml:"publicID,attr"`
	Mag      *float64 `xml:"mag>value"`
}

// QuakeMLParser reads QuakeML event parameters. Depths are converted from
// metres to kilometres.
type QuakeMLParser struct{}

func (QuakeMLParser) Parse(p, eventName string) (*model.Attributes, error) {
	var doc quakeML
	if err := decodeFile(p, &doc); err != nil {
		return nil, err
	}
	if len(doc.EventParameters.Events) == 0 {
		return nil, nil
	}
	ev := doc.EventParameters.Events[0]
	if len(ev.Origins) == 0 {
		return nil, nil
	}

	origin := ev.Origins[0]
	for _, o := range ev.Origins {
		if ev.PreferredOriginID != "" && o.PublicID == strings.TrimSpace(ev.PreferredOriginID) {
			origin = o
			break
		}
	}

	a := &model.Attributes{
		EventName: eventName,
		Latitude:  origin.Latitude,
		Longitude: origin.Longitude,
	}
	if a.EventName == "" && ev.PublicID != "" {
		a.EventName = path.Base(ev.PublicID)
	}
	if origin.Depth != nil {
		a.Depth = *origin.Depth / 1000
	}

	for _, m := range ev.Magnitudes {
		if m.Mag == nil {
			continue
		}
		if a.Magnitude == nil || m.PublicID == strings.TrimSpace(ev.PreferredMagnitudeID) {
			a.Magnitude = m.Mag
		}
	}

	var err error
	if a.Time, err = parseTime(origin.Time); err != nil {
		return nil, err
	}
	sent := ev.CreationInfo.CreationTime
	if sent == "" {
		sent = doc.EventParameters.CreationInfo.CreationTime
	}
	if a.Sent, err = parseTime(sent); err != nil {
		return nil, err
	}
	return a, nil
}
