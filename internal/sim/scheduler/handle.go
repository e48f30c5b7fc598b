package scheduler

// Handle tracks an asynchronous operation. It doubles as a Wait so routines
// can suspend on it.
type Handle struct {
	done      bool
	callbacks []func()
}

func NewHandle() *Handle { return &Handle{} }

// CompletedHandle returns a handle that is already done.
func CompletedHandle() *Handle { return &Handle{done: true} }

func (h *Handle) Ready() bool { return h != nil && h.done }

// OnComplete registers fn to run when the handle completes. Callbacks run in
// registration order. On an already completed handle fn runs immediately.
func (h *Handle) OnComplete(fn func()) {
	if h == nil || fn == nil {
		return
	}
	if h.done {
		fn()
		return
	}
	h.callbacks = append(h.callbacks, fn)
}

// Complete marks the handle done and fires pending callbacks once.
func (h *Handle) Complete() {
	if h == nil || h.done {
		return
	}
	h.done = true
	cbs := h.callbacks
	h.callbacks = nil
	for _, fn := range cbs {
		fn()
	}
}
