package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_SiteFiltering(t *testing.T) {
	bus := NewBus()

	var all, siteA []string
	bus.On(SyncCompleted, "", func(e Event) { all = append(all, e.SiteID) })
	bus.On(SyncCompleted, "a", func(e Event) { siteA = append(siteA, e.SiteID) })

	bus.Emit(SyncCompleted, SyncCompletedPayload{EntityID: "42"}, "a")
	bus.Emit(SyncCompleted, SyncCompletedPayload{EntityID: "43"}, "b")
	bus.Emit(PackageStatusChanged, PackageStatusPayload{}, "a")

	assert.Equal(t, []string{"a", "b"}, all)
	assert.Equal(t, []string{"a"}, siteA)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	count := 0
	off := bus.On(PackageStatusChanged, "", func(Event) { count++ })
	other := 0
	bus.On(PackageStatusChanged, "", func(Event) { other++ })

	bus.Emit(PackageStatusChanged, nil, "s")
	off()
	off()
	bus.Emit(PackageStatusChanged, nil, "s")

	assert.Equal(t, 1, count)
	assert.Equal(t, 2, other)
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus()

	bus.On(SyncCompleted, "", func(Event) { panic("boom") })
	delivered := false
	bus.On(SyncCompleted, "", func(e Event) {
		p, ok := e.Payload.(SyncCompletedPayload)
		delivered = ok && p.Updated
	})

	assert.NotPanics(t, func() {
		bus.Emit(SyncCompleted, SyncCompletedPayload{Updated: true}, "s")
	})
	assert.True(t, delivered)
}
