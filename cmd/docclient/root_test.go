package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8000":      "ws://localhost:8000/ws/document",
		"http://localhost:8000/":     "ws://localhost:8000/ws/document",
		"https://collab.example.com": "wss://collab.example.com/ws/document",
		"http://proxy.local/collab/": "ws://proxy.local/collab/ws/document",
	}
	for in, want := range cases {
		serverURL = in
		got, err := channelURL()
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
