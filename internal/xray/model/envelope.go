package model

// EnvelopeHeader is the fixed first line the collector's X-Ray receiver expects on every datagram.
const EnvelopeHeader = `{"format": "json", "version": 1}`

// Envelope is the wire payload for a single segment: the header, a newline, then the raw document.
type Envelope []byte
