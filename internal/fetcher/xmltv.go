package fetcher

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/voyagen/epgsync/internal/models"
)

type xmltvChannel struct {
	ID           string `xml:"id,attr"`
	DisplayNames []struct {
		Lang string `xml:"lang,attr"`
		Text string `xml:",chardata"`
	} `xml:"display-name"`
	Icons []struct {
		Src string `xml:"src,attr"`
	} `xml:"icon"`
}

// ParseXMLTV reads the <channel> elements of an XMLTV document. Programme
// data is skipped. The first display-name and icon are used; channels
// without an id are ignored and repeated ids keep their first occurrence.
func ParseXMLTV(r io.Reader) ([]models.CatalogEntry, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = charsetReader

	var entries []models.CatalogEntry
	seen := make(map[string]bool)
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmltv: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "tv":
			sawRoot = true
		case "channel":
			var c xmltvChannel
			if err := dec.DecodeElement(&c, &start); err != nil {
				return nil, fmt.Errorf("xmltv channel: %w", err)
			}
			e, ok := c.entry()
			if !ok || seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			entries = append(entries, e)
		case "programme":
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("xmltv programme: %w", err)
			}
		}
	}
	if !sawRoot {
		return nil, errors.New("xmltv: missing <tv> root element")
	}
	return entries, nil
}

func (c xmltvChannel) entry() (models.CatalogEntry, bool) {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return models.CatalogEntry{}, false
	}
	e := models.CatalogEntry{ID: id}
	for _, dn := range c.DisplayNames {
		if name := strings.TrimSpace(dn.Text); name != "" {
			e.Name, e.Language = name, strings.TrimSpace(dn.Lang)
			break
		}
	}
	for _, icon := range c.Icons {
		if src := strings.TrimSpace(icon.Src); src != "" {
			e.Icon = src
			break
		}
	}
	return e, true
}

// charsetReader accepts the legacy encodings guide providers still emit.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return input, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
}
