package espi

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/jgoulah/espisync/pkg/models"
)

const (
	atomNS = "http://www.w3.org/2005/Atom"
	espiNS = "http://naesb.org/espi"

	// ElectricTitle is the entry title that marks electric interval data.
	ElectricTitle = "Electric readings"

	whPerKWh = 1000
)

// Document is a decoded Atom feed carrying ESPI interval data.
type Document struct {
	Entries []Entry // Atom entries found anywhere below the root, in document order
}

// UnmarshalXML collects Atom entries at any depth under the root element.
// An entry nested inside another entry is decoded as part of the outer one.
func (d *Document) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == atomNS && t.Name.Local == "entry" {
				var e Entry
				if err := dec.DecodeElement(&e, &t); err != nil {
					return err
				}
				d.Entries = append(d.Entries, e)
				continue
			}
			depth++
		case xml.EndElement:
			if depth == 0 {
				return nil
			}
			depth--
		}
	}
}

// Entry is one Atom entry. Title is nil when the entry has no title element.
type Entry struct {
	Title    *string   `xml:"http://www.w3.org/2005/Atom title"`
	Contents []Content `xml:"http://www.w3.org/2005/Atom content"`
}

// Content wraps the ESPI payload of an entry.
type Content struct {
	Blocks []IntervalBlock `xml:"http://naesb.org/espi IntervalBlock"`
}

// IntervalBlock groups the readings of one block.
type IntervalBlock struct {
	Readings []IntervalReading `xml:"http://naesb.org/espi IntervalReading"`
}

// IntervalReading is a raw reading as it appears in the feed. Fields are
// kept as text so absence can be told apart from zero.
type IntervalReading struct {
	TimePeriod *TimePeriod `xml:"http://naesb.org/espi timePeriod"`
	Value      *string     `xml:"http://naesb.org/espi value"`
}

// TimePeriod holds the local start epoch and duration of a reading.
type TimePeriod struct {
	Start    *string `xml:"http://naesb.org/espi start"`
	Duration *string `xml:"http://naesb.org/espi duration"`
}

// Decode parses raw feed bytes into a Document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	// Reject trailing garbage after the root element.
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return nil, fmt.Errorf("%w: unexpected content after root element", ErrMalformedDocument)
			}
		case xml.StartElement:
			return nil, fmt.Errorf("%w: multiple root elements", ErrMalformedDocument)
		}
	}
	return &doc, nil
}

// Readings yields one normalized Reading per IntervalReading under the
// "Electric readings" entries. Start times are resolved in loc. Iteration
// stops after the first error.
func (d *Document) Readings(loc *time.Location) iter.Seq2[models.Reading, error] {
	return func(yield func(models.Reading, error) bool) {
		entryIdx := 0
		for _, entry := range d.Entries {
			if entry.Title == nil || *entry.Title != ElectricTitle {
				continue
			}
			blockIdx := 0
			for _, content := range entry.Contents {
				for _, block := range content.Blocks {
					for readingIdx, raw := range block.Readings {
						reading, err := raw.normalize(loc)
						if err != nil {
							var fe *FieldError
							if errors.As(err, &fe) {
								fe.Entry, fe.Block, fe.Reading = entryIdx, blockIdx, readingIdx
							}
							yield(models.Reading{}, err)
							return
						}
						if !yield(reading, nil) {
							return
						}
					}
					blockIdx++
				}
			}
			entryIdx++
		}
	}
}

// Parse decodes data and collects all electric readings. A document without
// matching entries yields an empty, non-nil slice.
func Parse(data []byte, loc *time.Location) ([]models.Reading, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}

	readings := []models.Reading{}
	for r, err := range doc.Readings(loc) {
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (r IntervalReading) normalize(loc *time.Location) (models.Reading, error) {
	if r.TimePeriod == nil {
		return models.Reading{}, &FieldError{Field: "timePeriod", Err: ErrMissingField}
	}
	start, err := intField("timePeriod/start", r.TimePeriod.Start)
	if err != nil {
		return models.Reading{}, err
	}
	duration, err := intField("timePeriod/duration", r.TimePeriod.Duration)
	if err != nil {
		return models.Reading{}, err
	}
	if duration < 0 {
		return models.Reading{}, &FieldError{
			Field: "timePeriod/duration",
			Err:   fmt.Errorf("%w: negative duration %d", ErrInvalidField, duration),
		}
	}
	if r.Value == nil {
		return models.Reading{}, &FieldError{Field: "value", Err: ErrMissingField}
	}
	wh, err := strconv.ParseFloat(strings.TrimSpace(*r.Value), 64)
	if err != nil {
		return models.Reading{}, &FieldError{Field: "value", Err: fmt.Errorf("%w: %w", ErrInvalidField, err)}
	}

	return models.Reading{
		Timestamp: LocalToUTC(start, loc),
		Duration:  duration,
		Value:     wh / whPerKWh,
		Category:  models.CategoryElectric,
	}, nil
}

func intField(name string, text *string) (int64, error) {
	if text == nil {
		return 0, &FieldError{Field: name, Err: ErrMissingField}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(*text), 10, 64)
	if err != nil {
		return 0, &FieldError{Field: name, Err: fmt.Errorf("%w: %w", ErrInvalidField, err)}
	}
	return v, nil
}
