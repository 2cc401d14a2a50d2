package attendance

import (
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/schoolday"
)

var nowFunc = time.Now // mockable

// Entry is one member's pending mark inside a workspace.
type Entry struct {
	MemberID int    `json:"member_id"`
	Name     string `json:"name"`
	Present  bool   `json:"present"`
	Note     string `json:"note,omitempty"`
}

// Workspace holds one actor's uncommitted edits for one class day. Edits
// accumulate here and touch nothing until the actor confirms them; discarding
// the workspace loses them all.
type Workspace struct {
	ActorID int
	ClassID int
	Date    time.Time

	mu         sync.Mutex
	entries    map[int]*Entry
	lastTouch  time.Time
	maxNoteLen int
}

func (ws *Workspace) touch() {
	ws.lastTouch = nowFunc().UTC()
}

// Toggle flips a member's pending mark. Flipping to present drops the note.
func (ws *Workspace) Toggle(memberID int) (Entry, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	entry, ok := ws.entries[memberID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry.Present = !entry.Present
	if entry.Present {
		entry.Note = ""
	}
	ws.touch()
	return *entry, nil
}

// SetNote attaches an absence reason to a member's pending mark.
func (ws *Workspace) SetNote(memberID int, note string) (Entry, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	entry, ok := ws.entries[memberID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if entry.Present {
		return Entry{}, ErrNoteOnPresent
	}
	if utf8.RuneCountInString(note) > ws.maxNoteLen {
		return Entry{}, core.NewValidationError(ErrNoteTooLong, core.FieldError{Field: "note", Error: ErrNoteTooLong.Error()})
	}
	entry.Note = note
	ws.touch()
	return *entry, nil
}

// SetAll marks every entry at once. Marking all absent keeps the notes
// already entered; marking all present drops them.
func (ws *Workspace) SetAll(present bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	for _, entry := range ws.entries {
		entry.Present = present
		if present {
			entry.Note = ""
		}
	}
	ws.touch()
}

// Entries returns the pending marks ordered by member id.
func (ws *Workspace) Entries() []Entry {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	entries := make([]Entry, 0, len(ws.entries))
	for _, entry := range ws.entries {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].MemberID < entries[j].MemberID })
	return entries
}

func (ws *Workspace) expired(timeout time.Duration) bool {
	return nowFunc().UTC().Sub(ws.lastTouch) > timeout
}

type wsKey struct {
	actorID int
	classID int
	date    string
}

// Manager tracks the live workspaces, one per (actor, class, day). Idle
// workspaces expire lazily after the session timeout.
type Manager struct {
	mu         sync.Mutex
	workspaces map[wsKey]*Workspace
	timeout    time.Duration
	maxNoteLen int
}

func NewManager(conf *core.Config) *Manager {
	return &Manager{
		workspaces: make(map[wsKey]*Workspace),
		timeout:    conf.SessionTimeout,
		maxNoteLen: conf.MaxNoteLen,
	}
}

func key(actorID, classID int, date time.Time) wsKey {
	return wsKey{actorID: actorID, classID: classID, date: schoolday.Key(date)}
}

// Seed opens a fresh workspace pre-filled with the given entries, replacing
// any previous workspace for the same (actor, class, day).
func (mgr *Manager) Seed(actorID, classID int, date time.Time, entries []Entry) *Workspace {
	ws := &Workspace{
		ActorID:    actorID,
		ClassID:    classID,
		Date:       schoolday.Normalize(date),
		entries:    make(map[int]*Entry, len(entries)),
		maxNoteLen: mgr.maxNoteLen,
	}
	for i := range entries {
		entry := entries[i]
		ws.entries[entry.MemberID] = &entry
	}
	ws.touch()

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.workspaces[key(actorID, classID, date)] = ws
	return ws
}

// Get returns the actor's workspace for a class day, dropping it first if it
// sat idle past the session timeout.
func (mgr *Manager) Get(actorID, classID int, date time.Time) (*Workspace, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	k := key(actorID, classID, date)
	ws, ok := mgr.workspaces[k]
	if !ok {
		return nil, ErrNotFound
	}
	if ws.expired(mgr.timeout) {
		delete(mgr.workspaces, k)
		return nil, ErrWorkspaceExpired
	}
	return ws, nil
}

// Discard drops the actor's pending edits without applying them.
func (mgr *Manager) Discard(actorID, classID int, date time.Time) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	delete(mgr.workspaces, key(actorID, classID, date))
}

// Purge drops every expired workspace.
func (mgr *Manager) Purge() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	for k, ws := range mgr.workspaces {
		if ws.expired(mgr.timeout) {
			delete(mgr.workspaces, k)
		}
	}
}
