package main

import (
	"errors"

	"modhost/pkg/api"
)

// Load emits a "heartbeat" signal once per second of frame time.
func Load() api.Descriptor {
	beats := 0
	return api.Descriptor{
		Meta: api.Metadata{
			Name:     "Heartbeat",
			Requires: []string{api.ModuleSignals, api.ModuleScheduler},
		},
		Init: func(ctx *api.Context) error {
			schedule, ok := ctx.Get(api.KeySchedulerRegister)
			if !ok {
				return errors.New("scheduler not published")
			}
			emit, ok := ctx.Get(api.KeySignalEmitDeferred)
			if !ok {
				return errors.New("signals not published")
			}
			schedule.(api.ScheduleFunc)("heartbeat", 1.0, func(ctx *api.Context, userData interface{}) {
				beats++
				emit.(api.EmitDeferredFunc)("heartbeat", "Heartbeat", beats)
			}, nil)
			ctx.Infof("heartbeat scheduled")
			return nil
		},
		Shutdown: func(ctx *api.Context) error {
			if remove, ok := ctx.Get(api.KeySchedulerRemove); ok {
				remove.(api.UnscheduleFunc)("heartbeat")
			}
			ctx.Infof("heartbeat stopped after %d beats", beats)
			return nil
		},
	}
}
