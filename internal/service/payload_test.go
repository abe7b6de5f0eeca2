package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmailPayload(t *testing.T) {
	const marker = "X-FileName:"
	email := "Message-ID: <1>\nFrom: a@enron.com\nX-FileName: pallen.nsf\n\nHere is our forecast\n"

	require.Equal(t, "Here is our forecast\n", EmailPayload(email, true, marker))
	require.Equal(t, email, EmailPayload(email, false, marker))
	require.Equal(t, email, EmailPayload(email, true, ""))

	noMarker := "From: a@enron.com\n\nbody"
	require.Equal(t, noMarker, EmailPayload(noMarker, true, marker))

	blankBody := "From: a@enron.com\nX-FileName: x.nsf\n\n  \n"
	require.Equal(t, blankBody, EmailPayload(blankBody, true, marker))

	crlf := "From: a\r\n  X-FileName: x.nsf\r\n\r\nbody\r\n"
	require.Equal(t, "body\r\n", EmailPayload(crlf, true, marker))
}
