package host

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"modhost/pkg/api"
	"modhost/pkg/memory"
)

// Symbols exports the module API to interpreted modules. Generic helpers
// (api.Fetch, memory.Put, memory.Lookup) cannot cross the interpreter
// boundary; interpreted code uses Context.Get with a type assertion instead.
var Symbols = interp.Exports{
	"modhost/pkg/api/api": {
		// constants
		"LoadSymbol":               reflect.ValueOf(api.LoadSymbol),
		"KeyShouldRun":             reflect.ValueOf(api.KeyShouldRun),
		"KeyVersion":               reflect.ValueOf(api.KeyVersion),
		"KeyInstance":              reflect.ValueOf(api.KeyInstance),
		"KeySignalConnect":         reflect.ValueOf(api.KeySignalConnect),
		"KeySignalDisconnect":      reflect.ValueOf(api.KeySignalDisconnect),
		"KeySignalEmit":            reflect.ValueOf(api.KeySignalEmit),
		"KeySignalEmitDeferred":    reflect.ValueOf(api.KeySignalEmitDeferred),
		"KeySchedulerRegister":     reflect.ValueOf(api.KeySchedulerRegister),
		"KeySchedulerRemove":       reflect.ValueOf(api.KeySchedulerRemove),
		"KeyThreadSpawn":           reflect.ValueOf(api.KeyThreadSpawn),
		"KeyThreadSpawnWithResult": reflect.ValueOf(api.KeyThreadSpawnWithResult),
		"KeyThreadMutexLock":       reflect.ValueOf(api.KeyThreadMutexLock),
		"KeyThreadMutexTryLock":    reflect.ValueOf(api.KeyThreadMutexTryLock),
		"KeyThreadMutexUnlock":     reflect.ValueOf(api.KeyThreadMutexUnlock),
		"ModuleSignals":            reflect.ValueOf(api.ModuleSignals),
		"ModuleScheduler":          reflect.ValueOf(api.ModuleScheduler),
		"ModuleThreads":            reflect.ValueOf(api.ModuleThreads),

		// functions
		"NewContext": reflect.ValueOf(api.NewContext),

		// types
		"Context":             reflect.ValueOf((*api.Context)(nil)),
		"Descriptor":          reflect.ValueOf((*api.Descriptor)(nil)),
		"LifecycleFunc":       reflect.ValueOf((*api.LifecycleFunc)(nil)),
		"Metadata":            reflect.ValueOf((*api.Metadata)(nil)),
		"Module":              reflect.ValueOf((*api.Module)(nil)),
		"SignalID":            reflect.ValueOf((*api.SignalID)(nil)),
		"SignalCallback":      reflect.ValueOf((*api.SignalCallback)(nil)),
		"ConnectFunc":         reflect.ValueOf((*api.ConnectFunc)(nil)),
		"DisconnectFunc":      reflect.ValueOf((*api.DisconnectFunc)(nil)),
		"EmitFunc":            reflect.ValueOf((*api.EmitFunc)(nil)),
		"EmitDeferredFunc":    reflect.ValueOf((*api.EmitDeferredFunc)(nil)),
		"TaskFunc":            reflect.ValueOf((*api.TaskFunc)(nil)),
		"ScheduleFunc":        reflect.ValueOf((*api.ScheduleFunc)(nil)),
		"UnscheduleFunc":      reflect.ValueOf((*api.UnscheduleFunc)(nil)),
		"JobFunc":             reflect.ValueOf((*api.JobFunc)(nil)),
		"JobDoneFunc":         reflect.ValueOf((*api.JobDoneFunc)(nil)),
		"SpawnFunc":           reflect.ValueOf((*api.SpawnFunc)(nil)),
		"SpawnWithResultFunc": reflect.ValueOf((*api.SpawnWithResultFunc)(nil)),
		"MutexFunc":           reflect.ValueOf((*api.MutexFunc)(nil)),
		"TryMutexFunc":        reflect.ValueOf((*api.TryMutexFunc)(nil)),
	},
	"modhost/pkg/memory/memory": {
		"DefaultBuckets": reflect.ValueOf(memory.DefaultBuckets),
		"LoadThreshold":  reflect.ValueOf(memory.LoadThreshold),

		"ErrNotFound":     reflect.ValueOf(&memory.ErrNotFound).Elem(),
		"ErrTypeMismatch": reflect.ValueOf(&memory.ErrTypeMismatch).Elem(),

		"Hash": reflect.ValueOf(memory.Hash),
		"New":  reflect.ValueOf(memory.New),

		"Entry":             reflect.ValueOf((*memory.Entry)(nil)),
		"Registry":          reflect.ValueOf((*memory.Registry)(nil)),
		"Releaser":          reflect.ValueOf((*memory.Releaser)(nil)),
		"TypeMismatchError": reflect.ValueOf((*memory.TypeMismatchError)(nil)),
	},
}
