package constants

import "strings"

// PDFMediaType is the only document media type the bot converts.
const PDFMediaType = "application/pdf"

// pdfMagic is the byte signature every well-formed PDF starts with.
const pdfMagic = "%PDF-"

// IsPDFMediaType reports whether a declared media type is acceptable.
// Some clients send an empty media type for forwarded documents, so a
// ".pdf" display name is accepted as a fallback hint.
func IsPDFMediaType(mediaType, fileName string) bool {
	if strings.EqualFold(mediaType, PDFMediaType) {
		return true
	}
	return mediaType == "" && strings.HasSuffix(strings.ToLower(fileName), ".pdf")
}

// LooksLikePDF checks the payload signature. Declared media types lie;
// the magic bytes do not.
func LooksLikePDF(data []byte) bool {
	return len(data) > len(pdfMagic) && string(data[:len(pdfMagic)]) == pdfMagic
}
