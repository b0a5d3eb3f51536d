package ana

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// parseRecords extracts every record element with the given tag from an ANA
// XML document as a flat field→text mapping. ANA payloads are one element
// per field with no attributes or nesting below the record, so a generic
// mapper covers both the inventory (<Table>) and series (<SerieHistorica>)
// responses.
func parseRecords(r io.Reader, recordTag string) ([]map[string]string, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var records []map[string]string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != recordTag {
			continue
		}
		rec, err := decodeRecord(dec)
		if err != nil {
			return nil, fmt.Errorf("decode %s record: %w", recordTag, err)
		}
		records = append(records, rec)
	}
}

// decodeRecord consumes tokens up to the record's end element, mapping each
// direct child element to its trimmed text. Anything nested deeper is
// ignored.
func decodeRecord(dec *xml.Decoder) (map[string]string, error) {
	rec := make(map[string]string)
	var field string
	var buf strings.Builder
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				field = t.Name.Local
				buf.Reset()
			}
		case xml.CharData:
			if depth == 1 && field != "" {
				buf.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				return rec, nil
			}
			if depth == 1 && field != "" {
				rec[field] = strings.TrimSpace(buf.String())
				field = ""
			}
			depth--
		}
	}
}
