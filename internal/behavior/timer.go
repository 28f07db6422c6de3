package behavior

import (
	"errors"
	"math"
	"time"

	"github.com/dop251/goja"
	"github.com/warpdl/keypool/pkg/scheduler"
)

// timer starts a repeating timer:
//
//	var t = timer({
//	  duration: 0.5,             // seconds
//	  count: 3,                  // 0 or missing repeats forever
//	  data: {...},               // passed as event.data
//	  callback: function(event) {
//	    event.dispatcher.stop();
//	  }
//	});
//	t.stop();
func (r *Runtime) timer(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		panic(r.vm.NewTypeError("timer: expected an options object"))
	}
	opts := arg.ToObject(r.vm)

	seconds := math.NaN()
	if d := opts.Get("duration"); d != nil && !goja.IsUndefined(d) && !goja.IsNull(d) {
		seconds = d.ToFloat()
	}
	if math.IsNaN(seconds) || seconds <= 0 || math.IsInf(seconds, 0) {
		panic(r.vm.NewTypeError("timer: duration must be a positive number of seconds, not %v", opts.Get("duration")))
	}
	callback, ok := goja.AssertFunction(opts.Get("callback"))
	if !ok {
		panic(r.vm.NewTypeError("timer: callback must be a function, not %v", opts.Get("callback")))
	}
	count := 0
	if c := opts.Get("count"); c != nil && !goja.IsUndefined(c) && !goja.IsNull(c) {
		count = int(c.ToInteger())
	}
	data := goja.Null()
	if v := opts.Get("data"); v != nil && !goja.IsUndefined(v) {
		data = v
	}

	d := time.Duration(seconds * float64(time.Second))
	h, err := r.sched.Schedule(d, func(e scheduler.Event) {
		if _, err := callback(goja.Undefined(), r.eventObject(e)); err != nil {
			r.log.Error("timer %d: callback: %v", e.Dispatcher.Handle(), err)
		}
	}, scheduler.WithRepeat(count), scheduler.WithPayload(data))
	if errors.Is(err, scheduler.ErrInvalidArgument) {
		panic(r.vm.NewTypeError("timer: %s", err.Error()))
	}
	if err != nil {
		r.throwKey(err)
	}
	disp, _ := r.sched.Dispatcher(h)

	obj := r.vm.NewObject()
	obj.Set("handle", int64(h))
	obj.Set("stop", func(goja.FunctionCall) goja.Value {
		disp.Stop()
		return goja.Undefined()
	})
	return obj
}

func (r *Runtime) eventObject(e scheduler.Event) *goja.Object {
	d := e.Dispatcher
	dispatcher := r.vm.NewObject()
	dispatcher.Set("handle", int64(d.Handle()))
	dispatcher.Set("count", d.Count())
	dispatcher.Set("stop", func(goja.FunctionCall) goja.Value {
		d.Stop()
		return goja.Undefined()
	})

	ev := r.vm.NewObject()
	ev.Set("type", e.Type)
	ev.Set("data", e.Payload)
	ev.Set("dispatcher", dispatcher)
	return ev
}
