package view

// --------------------------------------------------------------------------
// Transaction manager
// --------------------------------------------------------------------------

// Begin starts a transaction scope. Nesting is disallowed: a second Begin
// on an already-scoped handle fails with RetCTxState before any native
// call is made.
func (v *view) Begin() error {
	if err := v.live(); err != nil {
		return err
	}
	v.txMu.Lock()
	defer v.txMu.Unlock()
	if v.inTx {
		return NewError(RetCTxState, "transaction scope already active on this handle")
	}
	if err := v.engine.Begin(); err != nil {
		return fromNative(err)
	}
	v.inTx = true
	countOp(v.kind, "begin")
	log.Debugf("transaction scope opened on %s", v.Path())
	return nil
}

// Commit terminates the active scope, making its writes durable.
func (v *view) Commit() error {
	if err := v.live(); err != nil {
		return err
	}
	v.txMu.Lock()
	defer v.txMu.Unlock()
	if !v.inTx {
		return NewError(RetCTxState, "no active transaction scope")
	}
	v.inTx = false
	countOp(v.kind, "commit")
	return fromNative(v.engine.Commit())
}

// Abort terminates the active scope, discarding its writes.
func (v *view) Abort() error {
	if err := v.live(); err != nil {
		return err
	}
	v.txMu.Lock()
	defer v.txMu.Unlock()
	if !v.inTx {
		return NewError(RetCTxState, "no active transaction scope")
	}
	v.inTx = false
	countOp(v.kind, "abort")
	return fromNative(v.engine.Abort())
}

// RunInTransaction executes fn inside a scope with a guaranteed terminal
// action: commit when fn returns nil, abort when fn returns an error or
// panics. The error or panic propagates unchanged after the abort.
func (v *view) RunInTransaction(fn func(v IView) error) error {
	if err := v.Begin(); err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// failure exit: the scope still terminates, with abort
		if abortErr := v.Abort(); abortErr != nil {
			log.Errorf("abort failed on %s: %v", v.Path(), abortErr)
		}
	}()

	if err := fn(v.self); err != nil {
		return err
	}

	committed = true
	return v.Commit()
}
