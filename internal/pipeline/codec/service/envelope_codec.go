package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/Avi18971911/xray_forwarder/internal/xray/model"
)

var ErrMalformedDocument = errors.New("segment document is not valid JSON")

type EnvelopeCodec interface {
	// Encode decides whether a segment is forwardable and builds its envelope if so.
	// ok is false for segments that must be skipped; err is non-nil only for malformed documents.
	Encode(segment model.Segment) (envelope model.Envelope, ok bool, err error)
}

type EnvelopeCodecImpl struct{}

func NewEnvelopeCodecImpl() *EnvelopeCodecImpl {
	return &EnvelopeCodecImpl{}
}

func (ec *EnvelopeCodecImpl) Encode(segment model.Segment) (model.Envelope, bool, error) {
	if segment.Document == nil {
		return nil, false, nil
	}
	document := *segment.Document

	if !json.Valid([]byte(document)) {
		return nil, false, fmt.Errorf("%w: segment %s", ErrMalformedDocument, segment.ID)
	}
	if isInferred(document) {
		return nil, false, nil
	}

	return buildEnvelope(document), true, nil
}

// the document is appended byte for byte, never re-serialized
func buildEnvelope(document string) model.Envelope {
	envelope := make([]byte, 0, len(model.EnvelopeHeader)+1+len(document))
	envelope = append(envelope, model.EnvelopeHeader...)
	envelope = append(envelope, '\n')
	envelope = append(envelope, document...)
	return envelope
}

// a document that is not an object cannot carry the inferred flag
func isInferred(document string) bool {
	var parsed model.TraceDocument
	if err := json.Unmarshal([]byte(document), &parsed); err != nil {
		return false
	}
	return parsed.IsInferred()
}
