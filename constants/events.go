package constants

// EventName is the canonical name for rows in the event log.
type EventName string

// Stable values (store these exact strings in DB).
const (
	EventConversionDirect     EventName = "CONVERSION_DIRECT"     // embedded text layer used
	EventConversionRecognized EventName = "CONVERSION_RECOGNIZED" // OCR path used
	EventConversionFailed     EventName = "CONVERSION_FAILED"     // no recoverable text / engine down
	EventLargeScanPrompted    EventName = "LARGE_SCAN_PROMPTED"   // user asked first-N vs split
	EventLargeScanFirstChunk  EventName = "LARGE_SCAN_FIRST_CHUNK"
	EventLargeScanSplit       EventName = "LARGE_SCAN_SPLIT"
	EventUploadRejected       EventName = "UPLOAD_REJECTED" // unsupported input
	EventRatingRecorded       EventName = "RATING_RECORDED"
	EventCommentRecorded      EventName = "COMMENT_RECORDED"
)
