package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/core"
)

func TestParseResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected core.ResolutionKind
	}{
		{"local", core.ResolutionLocal},
		{"remote", core.ResolutionRemote},
		{"both", core.ResolutionBoth},
		{"manual", core.ResolutionManual},
		{"garbage", core.ResolutionNone},
		{"", core.ResolutionNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, parseResolution(tt.input))
		})
	}
}

func TestIsControlUnavailable(t *testing.T) {
	t.Parallel()

	assert.True(t, isControlUnavailable(&errControlUnavailable{cause: assert.AnError}))
	assert.False(t, isControlUnavailable(assert.AnError))
}

func TestControlSocketPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/var/lib/airsync-lite/control.sock", controlSocketPath("/var/lib/airsync-lite"))
}

func TestControlBroadcaster_PublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	b := newControlBroadcaster()
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	b.publish([]core.FolderStatus{{FolderID: "a"}})
	b.publish([]core.FolderStatus{{FolderID: "b"}})

	got := <-ch
	assert.Equal(t, "a", got[0].FolderID)
}
