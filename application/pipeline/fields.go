package pipeline

import (
	"context"
	"regexp"
	"strings"
)

// ExtractedFields is the structured result of reading the document back.
type ExtractedFields struct {
	LastName  string
	FirstName string
	CompareID string
}

// TextFieldExtractor parses free-form OCR output from the back of a
// document into name fields and the secondary identifier.
type TextFieldExtractor struct {
	Recognizer TextRecognizer
	// CompareIDPrefix is the literal printed right before the secondary
	// identifier on the document back.
	CompareIDPrefix string
}

const defaultCompareIDPrefix = "IDN"

var (
	// LAST<<FIRST terminated by a filler run, e.g. DUPONT<<JEAN<<<<<
	mrzNameRegex = regexp.MustCompile(`([A-Za-z]+)<<([A-Za-z]+)<+`)

	surnameLabelRegex   = regexp.MustCompile(`(?i)surname\s*[:\-]?\s*([A-Za-z]+)`)
	givenNameLabelRegex = regexp.MustCompile(`(?i)given\s+names?\s*[:\-]?\s*([A-Za-z]+)`)

	alphaOnlyRegex = regexp.MustCompile(`[^A-Za-z]+`)
)

// Extract OCRs the image and parses names plus the secondary identifier.
// Name resolution prefers the machine readable zone token and falls back
// to locale labelled fields. Returns a Rejection for unusable output.
func (e *TextFieldExtractor) Extract(ctx context.Context, imagePath string) (*ExtractedFields, error) {
	fragments, err := e.Recognizer.Read(ctx, imagePath, OCROptions{Paragraph: true})
	if err != nil {
		return nil, &TransientError{Op: "back ocr", Err: err}
	}

	text := strings.Builder{}
	for _, fragment := range fragments {
		text.WriteString(fragment.Text)
		text.WriteString("\n")
	}
	raw := text.String()

	lastName, firstName, ok := ParseNameFields(raw)
	if !ok {
		return nil, newRejection(ReasonBackOCRFailed, "could not read name fields from document back", true)
	}

	compareID, ok := ParseCompareID(raw, e.prefix())
	if !ok {
		return nil, newRejection(ReasonIDExtractionFailed, "could not read document identifier from document back", true)
	}

	return &ExtractedFields{
		LastName:  lastName,
		FirstName: firstName,
		CompareID: compareID,
	}, nil
}

func (e *TextFieldExtractor) prefix() string {
	if e.CompareIDPrefix == "" {
		return defaultCompareIDPrefix
	}
	return e.CompareIDPrefix
}

// ParseNameFields finds the name pair in raw OCR text. The MRZ-style
// token wins; labelled fields are the fallback. Both fields must clean
// to at least two letters.
func ParseNameFields(raw string) (lastName string, firstName string, ok bool) {
	for _, token := range strings.Fields(raw) {
		match := mrzNameRegex.FindStringSubmatch(token)
		if match == nil {
			continue
		}
		last := cleanNameField(match[1])
		first := cleanNameField(match[2])
		if len(last) >= 2 && len(first) >= 2 {
			return last, first, true
		}
	}

	surnameMatch := surnameLabelRegex.FindStringSubmatch(raw)
	givenMatch := givenNameLabelRegex.FindStringSubmatch(raw)
	if surnameMatch != nil && givenMatch != nil {
		last := cleanNameField(surnameMatch[1])
		first := cleanNameField(givenMatch[1])
		if len(last) >= 2 && len(first) >= 2 {
			return last, first, true
		}
	}

	return "", "", false
}

func cleanNameField(field string) string {
	return strings.ToUpper(alphaOnlyRegex.ReplaceAllString(field, ""))
}

var allDigitRegex = regexp.MustCompile(`^\d+$`)

// ParseCompareID locates the secondary identifier after its literal
// prefix. OCR regularly confuses O/I/l for digits on this print, so the
// candidate is normalised before the all-digit check.
func ParseCompareID(raw string, prefix string) (string, bool) {
	index := strings.Index(raw, prefix)
	if index < 0 {
		return "", false
	}
	rest := strings.TrimLeft(raw[index+len(prefix):], " :\t")

	end := strings.IndexAny(rest, " \t\n\r")
	if end < 0 {
		end = len(rest)
	}
	candidate := normalizeConfusables(rest[:end])
	if candidate == "" || !allDigitRegex.MatchString(candidate) {
		return "", false
	}
	return candidate, true
}

func normalizeConfusables(value string) string {
	replacer := strings.NewReplacer("O", "0", "o", "0", "I", "1", "l", "1")
	return replacer.Replace(value)
}
