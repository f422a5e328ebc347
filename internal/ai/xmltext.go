package ai

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ValidateXML confirms the document is well formed. Malformed documents are
// permanent failures, not retried.
func ValidateXML(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed bill XML: %w", err)
		}
	}
}

// textElements are the legislative XML elements whose character data carries
// the readable bill text.
var textElements = map[string]bool{
	"official-title": true,
	"title":          true,
	"header":         true,
	"enum":           true,
	"text":           true,
	"paragraph":      true,
	"subsection":     true,
}

// ExtractText walks the document and collects the character data of the
// readable elements in document order, one line per element. The caller is
// expected to have validated the document first.
func ExtractText(data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var (
		builder bytes.Buffer
		depth   int
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed bill XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if textElements[t.Name.Local] {
				depth++
			}
		case xml.EndElement:
			if textElements[t.Name.Local] && depth > 0 {
				depth--
			}
		case xml.CharData:
			if depth == 0 {
				continue
			}
			trimmed := strings.TrimSpace(string(t))
			if trimmed == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteByte('\n')
			}
			builder.WriteString(trimmed)
		}
	}

	text := builder.String()
	if text == "" {
		return "", fmt.Errorf("no readable text found in bill XML")
	}
	return text, nil
}
