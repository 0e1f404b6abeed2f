package service

import (
	"github.com/Avi18971911/xray_forwarder/internal/xray/model"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestEnvelopeCodecImpl_Encode(t *testing.T) {
	codec := NewEnvelopeCodecImpl()

	t.Run("Skips segments without a document", func(t *testing.T) {
		envelope, ok, err := codec.Encode(model.Segment{})
		assert.Nil(t, err)
		assert.False(t, ok)
		assert.Nil(t, envelope)
	})

	t.Run("Skips inferred segments", func(t *testing.T) {
		envelope, ok, err := codec.Encode(segmentWithDocument(
			`{"name":"DynamoDB","id":"1","trace_id":"1-abc","inferred":true}`,
		))
		assert.Nil(t, err)
		assert.False(t, ok)
		assert.Nil(t, envelope)
	})

	t.Run("Emits header and raw document for non inferred segments", func(t *testing.T) {
		documents := []string{
			`{"name":"checkout","id":"70de5b6f19ff9a0a","trace_id":"1-581cf771-a006649127e371903a2de979"}`,
			`{"name":"checkout","id":"2","inferred":false}`,
			"{ \"name\" : \"spaced\",   \"id\": \"3\", \"annotations\": {\"k\": 1.50} }",
		}
		for _, document := range documents {
			envelope, ok, err := codec.Encode(segmentWithDocument(document))
			assert.Nil(t, err)
			assert.True(t, ok)
			assert.Equal(t, `{"format": "json", "version": 1}`+"\n"+document, string(envelope))
		}
	})

	t.Run("Emits valid documents regardless of their field shapes", func(t *testing.T) {
		documents := []string{
			`{"name": 5, "id": "a"}`,
			`{"id":"a","http":"GET /"}`,
			`{"id":"a","subsegments":[1]}`,
			`{"id":"a","metadata":[]}`,
			`{"id":"a","parent_id":12}`,
			`[{"id":"a","inferred":true}]`,
			`"just a string"`,
		}
		for _, document := range documents {
			envelope, ok, err := codec.Encode(segmentWithDocument(document))
			assert.Nil(t, err, document)
			assert.True(t, ok, document)
			assert.Equal(t, `{"format": "json", "version": 1}`+"\n"+document, string(envelope))
		}
	})

	t.Run("Skips inferred segments whose other fields have unexpected shapes", func(t *testing.T) {
		envelope, ok, err := codec.Encode(segmentWithDocument(`{"name": 5, "http": "GET /", "inferred": 1}`))
		assert.Nil(t, err)
		assert.False(t, ok)
		assert.Nil(t, envelope)
	})

	t.Run("Returns an error for malformed documents", func(t *testing.T) {
		envelope, ok, err := codec.Encode(segmentWithDocument(`{"name": "broken"`))
		assert.ErrorIs(t, err, ErrMalformedDocument)
		assert.False(t, ok)
		assert.Nil(t, envelope)
	})

	t.Run("Produces identical envelopes for the same segment", func(t *testing.T) {
		segment := segmentWithDocument(`{"name":"api","id":"4","subsegments":[{"name":"s3","inferred":true}]}`)
		first, ok, err := codec.Encode(segment)
		assert.Nil(t, err)
		assert.True(t, ok)
		second, ok, err := codec.Encode(segment)
		assert.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, first, second)
	})
}

func segmentWithDocument(document string) model.Segment {
	return model.Segment{ID: "segment", Document: &document}
}
