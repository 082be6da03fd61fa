// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"context"
	"iter"
)

// walkState is the Walk/BulkWalk state machine (§4.9), mirroring the
// originating implementation's poll-based stream: Idle when no buffered
// varbinds remain (Next then issues the GetNext/GetBulk itself; there is
// no separate Requesting state), Emitting while draining a buffered batch,
// then Done or Failed terminally.
type walkState int

const (
	walkIdle walkState = iota
	walkEmitting
	walkDone
	walkFailed
)

// WalkMode selects how a Walk/BulkWalk reacts to an agent that returns a
// lexicographically non-increasing OID mid-walk (§4.9, termination
// condition 3).
type WalkMode int

const (
	// WalkStrict ends the walk with a WalkError{Kind: WalkLexicographicRegression}
	// the first time an OID fails to strictly increase.
	WalkStrict WalkMode = iota
	// WalkRelaxed silently drops any OID already seen (tracked in a set)
	// instead of erroring, so a misbehaving agent doesn't abort the walk.
	WalkRelaxed
)

// emitOutcome is emit's tri-state result: whether a candidate varbind
// should be handed to the caller, silently dropped (relaxed-mode dedup)
// and iteration continued, or the walk should end.
type emitOutcome int

const (
	emitYield emitOutcome = iota
	emitDrop
	emitDone
)

// Walk iterates a MIB subtree rooted at root using repeated GetNext
// requests, one varbind at a time (§4.9).
type Walk struct {
	client *Client
	root   Oid
	mode   WalkMode

	state   walkState
	current Oid
	started bool
	batch   []VarBind
	seen    map[string]struct{}
	err     error
}

// NewWalk starts a Walk rooted at root. mode selects strict-vs-relaxed
// lexicographic-order handling (§4.9, termination condition 3).
func (c *Client) NewWalk(root Oid, mode WalkMode) *Walk {
	w := &Walk{client: c, root: root, mode: mode, current: root.Clone()}
	if mode == WalkRelaxed {
		w.seen = make(map[string]struct{})
	}
	return w
}

// Walk starts a Walk rooted at root using ClientConfig.WalkMode.
func (c *Client) Walk(root Oid) *Walk {
	return c.NewWalk(root, c.cfg.WalkMode)
}

// Next advances the walk and returns the next varbind in the subtree. The
// second return value is false once the subtree (or the agent's MIB view)
// is exhausted; err is non-nil only on a genuine failure, never on normal
// termination.
func (w *Walk) Next(ctx context.Context) (VarBind, bool, error) {
	for {
		switch w.state {
		case walkDone:
			return VarBind{}, false, nil
		case walkFailed:
			return VarBind{}, false, w.err
		case walkEmitting:
			for len(w.batch) > 0 {
				vb := w.batch[0]
				w.batch = w.batch[1:]
				out, outcome, err := w.emit(vb)
				switch outcome {
				case emitYield:
					return out, true, err
				case emitDone:
					return VarBind{}, false, err
				case emitDrop:
					// keep draining the batch (or fall through to Idle)
				}
			}
			w.state = walkIdle
		}

		vbs, err := w.client.GetNext(ctx, []Oid{w.current})
		if err != nil {
			w.state = walkFailed
			w.err = err
			return VarBind{}, false, err
		}
		w.batch = vbs
		w.state = walkEmitting
	}
}

// emit applies the subtree-boundary, exception-value and lexicographic-
// order checks to one candidate varbind before handing it to the caller.
func (w *Walk) emit(vb VarBind) (VarBind, emitOutcome, error) {
	switch vb.Value.Kind {
	case KindEndOfMibView, KindNoSuchObject, KindNoSuchInstance:
		w.state = walkDone
		return VarBind{}, emitDone, nil
	}
	if !w.root.IsPrefixOf(vb.Oid) {
		w.state = walkDone
		return VarBind{}, emitDone, nil
	}
	if w.started && vb.Oid.LessEqual(w.current) {
		if w.mode == WalkRelaxed {
			if _, dup := w.seen[vb.Oid.String()]; dup {
				w.current = vb.Oid.Clone()
				return VarBind{}, emitDrop, nil
			}
		} else {
			err := &WalkError{Kind: WalkLexicographicRegression, Previous: w.current, Current: vb.Oid}
			w.state = walkFailed
			w.err = err
			return VarBind{}, emitDone, err
		}
	}
	w.current = vb.Oid.Clone()
	w.started = true
	if w.mode == WalkRelaxed {
		w.seen[vb.Oid.String()] = struct{}{}
	}
	return vb, emitYield, nil
}

// All adapts Next into a Go 1.23 range-over-func iterator for ergonomic
// use in a for/range loop. Iteration stops early, without error, if the
// loop body breaks.
func (w *Walk) All(ctx context.Context) iter.Seq2[VarBind, error] {
	return func(yield func(VarBind, error) bool) {
		for {
			vb, ok, err := w.Next(ctx)
			if err != nil {
				yield(VarBind{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(vb, nil) {
				return
			}
		}
	}
}

// BulkWalk iterates a MIB subtree using GetBulkRequest batches, buffering
// MaxRepetitions varbinds per round trip instead of one per RTT (§4.9).
type BulkWalk struct {
	client         *Client
	root           Oid
	mode           WalkMode
	maxRepetitions int32

	state   walkState
	current Oid
	started bool
	batch   []VarBind
	seen    map[string]struct{}
	err     error
}

// NewBulkWalk starts a BulkWalk rooted at root, requesting up to
// maxRepetitions varbinds per GetBulkRequest.
func (c *Client) NewBulkWalk(root Oid, maxRepetitions int32, mode WalkMode) *BulkWalk {
	if maxRepetitions <= 0 {
		maxRepetitions = 10
	}
	w := &BulkWalk{client: c, root: root, mode: mode, maxRepetitions: maxRepetitions, current: root.Clone()}
	if mode == WalkRelaxed {
		w.seen = make(map[string]struct{})
	}
	return w
}

// BulkWalk starts a BulkWalk rooted at root using ClientConfig.WalkMode
// and a fixed max-repetitions of 25; ClientConfig has no max-repetitions
// setting, so use NewBulkWalk for any other value.
func (c *Client) BulkWalk(root Oid) *BulkWalk {
	return c.NewBulkWalk(root, 25, c.cfg.WalkMode)
}

// Next advances the walk, refilling its internal batch with a
// GetBulkRequest whenever it runs dry. If a refill returns zero
// in-subtree varbinds, the walk ends (§4.9's GetBulk termination rule).
func (w *BulkWalk) Next(ctx context.Context) (VarBind, bool, error) {
	for {
		switch w.state {
		case walkDone:
			return VarBind{}, false, nil
		case walkFailed:
			return VarBind{}, false, w.err
		case walkEmitting:
			progressed := false
			for len(w.batch) > 0 {
				vb := w.batch[0]
				w.batch = w.batch[1:]
				out, outcome, err := w.emit(vb)
				switch outcome {
				case emitYield:
					return out, true, err
				case emitDone:
					return VarBind{}, false, err
				case emitDrop:
					progressed = true
				}
			}
			_ = progressed
			w.state = walkIdle
		}

		vbs, err := w.client.GetBulk(ctx, 0, w.maxRepetitions, []Oid{w.current})
		if err != nil {
			w.state = walkFailed
			w.err = err
			return VarBind{}, false, err
		}
		if len(vbs) == 0 {
			w.state = walkDone
			return VarBind{}, false, nil
		}
		w.batch = vbs
		w.state = walkEmitting
	}
}

func (w *BulkWalk) emit(vb VarBind) (VarBind, emitOutcome, error) {
	if vb.Value.Kind == KindEndOfMibView || !w.root.IsPrefixOf(vb.Oid) {
		w.state = walkDone
		return VarBind{}, emitDone, nil
	}
	if w.started && vb.Oid.LessEqual(w.current) {
		if w.mode == WalkRelaxed {
			if _, dup := w.seen[vb.Oid.String()]; dup {
				w.current = vb.Oid.Clone()
				return VarBind{}, emitDrop, nil
			}
		} else {
			err := &WalkError{Kind: WalkLexicographicRegression, Previous: w.current, Current: vb.Oid}
			w.state = walkFailed
			w.err = err
			return VarBind{}, emitDone, err
		}
	}
	w.current = vb.Oid.Clone()
	w.started = true
	if w.mode == WalkRelaxed {
		w.seen[vb.Oid.String()] = struct{}{}
	}
	return vb, emitYield, nil
}

// All adapts Next into a range-over-func iterator, as Walk.All does.
func (w *BulkWalk) All(ctx context.Context) iter.Seq2[VarBind, error] {
	return func(yield func(VarBind, error) bool) {
		for {
			vb, ok, err := w.Next(ctx)
			if err != nil {
				yield(VarBind{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(vb, nil) {
				return
			}
		}
	}
}
