package main

import (
	"errors"

	"modhost/pkg/api"
)

// Load runs a background sweep on every heartbeat and reports the result on
// the control thread.
func Load() api.Descriptor {
	var conn api.SignalID
	sweeps := 0
	return api.Descriptor{
		Meta: api.Metadata{
			Name:     "Janitor",
			Requires: []string{api.ModuleSignals, api.ModuleThreads},
			Optional: []string{"Heartbeat"},
		},
		Init: func(ctx *api.Context) error {
			connect, ok := ctx.Get(api.KeySignalConnect)
			if !ok {
				return errors.New("signals not published")
			}
			spawn, ok := ctx.Get(api.KeyThreadSpawnWithResult)
			if !ok {
				return errors.New("threads not published")
			}
			conn = connect.(api.ConnectFunc)("heartbeat", func(ctx *api.Context, sender, args, userData interface{}) {
				spawn.(api.SpawnWithResultFunc)(func(userData interface{}) error {
					return nil
				}, args, func(err error) {
					sweeps++
				})
			}, nil)
			return nil
		},
		Shutdown: func(ctx *api.Context) error {
			if disconnect, ok := ctx.Get(api.KeySignalDisconnect); ok {
				disconnect.(api.DisconnectFunc)(conn)
			}
			ctx.Infof("janitor finished %d sweeps", sweeps)
			return nil
		},
	}
}
