package api

import (
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/lunfardo314/ledgerchat/session"
	"github.com/lunfardo314/ledgerchat/views"
	"golang.org/x/exp/slices"
)

// ListenSlotEvents calls fun with the new value after each change of a cache slot,
// of the status and of the available view (when engine is not nil)
func ListenSlotEvents(cache *session.Cache, engine *views.Engine, fun func(ev SlotEvent)) {
	cache.OnChange(func(slot session.Slot) {
		if v, ok := cache.SlotValue(slot); ok {
			fun(SlotEvent{Slot: slot, Value: v})
		}
	})
	if engine != nil {
		engine.OnChange(func(available []model.DirectoryUser) {
			fun(SlotEvent{Slot: views.SlotAvailable, Value: available})
		})
	}
}

// CurrentSlotEvents returns events with current values of all slots, the status and the available view
func CurrentSlotEvents(cache *session.Cache, engine *views.Engine) []SlotEvent {
	ret := make([]SlotEvent, 0, len(session.AllSlots)+2)
	for _, s := range append(slices.Clone(session.AllSlots), session.SlotStatus) {
		v, _ := cache.SlotValue(s)
		ret = append(ret, SlotEvent{Slot: s, Value: v})
	}
	if engine != nil {
		ret = append(ret, SlotEvent{Slot: views.SlotAvailable, Value: engine.Available()})
	}
	return ret
}
