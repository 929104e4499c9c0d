package main

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	gmail "google.golang.org/api/gmail/v1"
)

func bodyData(s string) *gmail.MessagePartBody {
	return &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(s))}
}

func TestExtractBodyPrefersTextPart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{MimeType: "text/html", Body: bodyData("<p>html version</p>")},
			{MimeType: "text/plain", Body: bodyData("plain version")},
		},
	}

	assert.Equal(t, "plain version", extractBody(payload))
}

func TestExtractBodyStripsHTMLFallback(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{MimeType: "text/html", Body: bodyData("<p>hello <b>world</b></p>")},
		},
	}

	// No text part, so the HTML part is used with its tags stripped
	assert.Equal(t, "hello world", extractBody(payload))
}

func TestExtractBodySinglePart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     bodyData("direct body"),
	}

	assert.Equal(t, "direct body", extractBody(payload))
}

func TestExtractBodyNestedParts(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: bodyData("nested text")},
				},
			},
		},
	}

	assert.Equal(t, "nested text", extractBody(payload))
}

func TestExtractBodyEmptyPayload(t *testing.T) {
	assert.Equal(t, "", extractBody(nil))
	assert.Equal(t, "", extractBody(&gmail.MessagePart{}))
}
