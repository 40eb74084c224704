package timeout

import (
	"maps"
	"sync"
)

type formState struct {
	fields map[string]string
	dirty  bool
}

// FormTracker holds the latest field values of open forms in one tab.
type FormTracker struct {
	mu    sync.Mutex
	forms map[string]formState
}

// NewFormTracker returns an empty tracker.
func NewFormTracker() *FormTracker {
	return &FormTracker{forms: make(map[string]formState)}
}

// Update replaces the recorded values of formID.
func (f *FormTracker) Update(formID string, fields map[string]string, dirty bool) {
	if formID == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forms[formID] = formState{fields: maps.Clone(fields), dirty: dirty}
}

// Remove forgets formID, typically after a successful save or when it closes.
func (f *FormTracker) Remove(formID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.forms, formID)
}

// HasUnsavedChanges reports whether any tracked form is dirty.
func (f *FormTracker) HasUnsavedChanges() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, st := range f.forms {
		if st.dirty {
			return true
		}
	}
	return false
}

// Snapshot copies every tracked form's values.
func (f *FormTracker) Snapshot() map[string]map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]map[string]string, len(f.forms))
	for id, st := range f.forms {
		out[id] = maps.Clone(st.fields)
	}
	return out
}

// Clear drops all form state.
func (f *FormTracker) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.forms)
}
