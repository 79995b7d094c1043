// Package history implements the linear bounded undo/redo stack.
// Commands are deltas: each one stores just enough to re-apply and
// revert a single mutation, never a full project snapshot.
package history

import (
	"errors"

	"github.com/image-annotator/backend/internal/annotation"
)

// DefaultDepth is the number of undoable operations kept before the
// oldest is evicted.
const DefaultDepth = 50

var (
	// ErrNothingToUndo is returned by Undo on an empty undo stack.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned by Redo on an empty redo stack.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Command is one reversible mutation of an annotation model. Apply
// re-executes it (redo); Revert rolls it back (undo). The first
// execution happens through the model before the command is pushed,
// so Apply only runs on redo.
type Command interface {
	Apply(m *annotation.Model) error
	Revert(m *annotation.Model) error
	Name() string
}

// History is a bounded linear undo/redo stack. It is not safe for
// concurrent use; the owning session serializes access.
type History struct {
	depth int
	undo  []Command
	redo  []Command
}

// New creates a history keeping at most depth commands. Non-positive
// depths fall back to DefaultDepth.
func New(depth int) *History {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &History{depth: depth}
}

// Push records an already-applied command. The redo stack is
// discarded; when the undo stack is full the oldest command is
// evicted.
func (h *History) Push(c Command) {
	if len(h.undo) == h.depth {
		copy(h.undo, h.undo[1:])
		h.undo = h.undo[:len(h.undo)-1]
	}
	h.undo = append(h.undo, c)
	h.redo = h.redo[:0]
}

// Undo reverts the most recent command and moves it to the redo
// stack. The stacks are left unchanged when the revert fails.
func (h *History) Undo(m *annotation.Model) (Command, error) {
	if len(h.undo) == 0 {
		return nil, ErrNothingToUndo
	}
	c := h.undo[len(h.undo)-1]
	if err := c.Revert(m); err != nil {
		return nil, err
	}
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, c)
	return c, nil
}

// Redo re-applies the most recently undone command and moves it back
// to the undo stack.
func (h *History) Redo(m *annotation.Model) (Command, error) {
	if len(h.redo) == 0 {
		return nil, ErrNothingToRedo
	}
	c := h.redo[len(h.redo)-1]
	if err := c.Apply(m); err != nil {
		return nil, err
	}
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, c)
	return c, nil
}

// CanUndo reports whether the undo stack is non-empty.
func (h *History) CanUndo() bool { return len(h.undo) > 0 }

// CanRedo reports whether the redo stack is non-empty.
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Clear drops both stacks. Loading or importing a project resets
// history.
func (h *History) Clear() {
	h.undo = h.undo[:0]
	h.redo = h.redo[:0]
}

// Names returns the command names on each stack, oldest first.
func (h *History) Names() (undo, redo []string) {
	undo = make([]string, len(h.undo))
	for i, c := range h.undo {
		undo[i] = c.Name()
	}
	redo = make([]string, len(h.redo))
	for i, c := range h.redo {
		redo[i] = c.Name()
	}
	return undo, redo
}
