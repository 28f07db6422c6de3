package behavior

import (
	"github.com/dop251/goja"
	"github.com/warpdl/keypool/pkg/keypool"
)

// keyPool returns a script-facing pool:
//
//	var pool = keyPool();
//	pool.newKey();          // 0
//	pool.set('value');      // allocates 1 and stores 'value'
//	pool.set(7, 'x');       // stores 'x' under 7 without reserving it
//	pool.reserve(9);        // takes 9 out of the free ranges
//	pool.get(1);            // 'value'
//	pool.del(1);            // releases 1
func (r *Runtime) keyPool(call goja.FunctionCall) goja.Value {
	p := keypool.New[goja.Value](keypool.WithCeiling(r.ceiling))
	obj := r.vm.NewObject()

	obj.Set("newKey", func(goja.FunctionCall) goja.Value {
		h, err := p.Allocate()
		if err != nil {
			r.throwKey(err)
		}
		return r.vm.ToValue(int64(h))
	})
	obj.Set("set", func(call goja.FunctionCall) goja.Value {
		switch len(call.Arguments) {
		case 1:
			h, err := p.AllocateWith(call.Argument(0))
			if err != nil {
				r.throwKey(err)
			}
			return r.vm.ToValue(int64(h))
		case 2:
			h := r.handleArg(call, 0)
			if err := p.Assign(h, call.Argument(1)); err != nil {
				r.throwKey(err)
			}
			return r.vm.ToValue(int64(h))
		default:
			panic(r.vm.NewTypeError("keyPool.set: expected 1 or 2 arguments, got %d", len(call.Arguments)))
		}
	})
	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		v, ok := p.Get(r.handleArg(call, 0))
		if !ok {
			return goja.Undefined()
		}
		return v
	})
	obj.Set("del", func(call goja.FunctionCall) goja.Value {
		if err := p.Release(r.handleArg(call, 0)); err != nil {
			r.throwKey(err)
		}
		return r.vm.ToValue(true)
	})
	obj.Set("reserve", func(call goja.FunctionCall) goja.Value {
		h := r.handleArg(call, 0)
		if err := p.Reserve(h); err != nil {
			r.throwKey(err)
		}
		return r.vm.ToValue(int64(h))
	})
	obj.Set("size", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(p.Len())
	})
	obj.Set("ranges", func(goja.FunctionCall) goja.Value {
		free := p.FreeRanges()
		out := make([]interface{}, len(free))
		for i, rg := range free {
			out[i] = r.vm.NewArray(int64(rg.Start), int64(rg.End))
		}
		return r.vm.NewArray(out...)
	})
	return obj
}

// newUnique returns a recyclable id, lowest first.
func (r *Runtime) newUnique(goja.FunctionCall) goja.Value {
	h, err := r.unique.Allocate()
	if err != nil {
		r.throwKey(err)
	}
	return r.vm.ToValue(int64(h))
}

// forget gives an id from unique back.
func (r *Runtime) forget(call goja.FunctionCall) goja.Value {
	if err := r.unique.Release(r.handleArg(call, 0)); err != nil {
		r.throwKey(err)
	}
	return goja.Undefined()
}
