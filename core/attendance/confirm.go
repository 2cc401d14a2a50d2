package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beshoyehab/schoolbot/core"
	"github.com/beshoyehab/schoolbot/core/member"
)

var tokenFunc = func() string { return uuid.New().String() } // mockable

// RosterLoader resolves the live roster of a class.
type RosterLoader interface {
	Roster(ctx context.Context, classID int) ([]member.Member, error)
}

// proposalState tracks a proposal through its single-use lifecycle. Spent
// proposals are kept around past their expiry so a re-used token is told it
// was already applied instead of a bare not-found.
type proposalState int

const (
	proposalPending proposalState = iota
	proposalExecuted
	proposalCancelled
)

// Proposal is a staged bulk application of one workspace's edits. It must be
// confirmed with its token before it expires, and exactly once.
type Proposal struct {
	Token     string      `json:"token"`
	ActorID   int         `json:"-"`
	ClassID   int         `json:"class_id"`
	Date      time.Time   `json:"date"`
	Changes   []NewRecord `json:"changes"`
	Present   int         `json:"present"`
	Absent    int         `json:"absent"`
	ExpiresAt time.Time   `json:"expires_at"`

	state proposalState
}

// Confirmer stages workspace edits behind single-use confirmation tokens so
// a bulk apply always shows the actor what it is about to do first.
type Confirmer struct {
	svc    *Service
	mgr    *Manager
	roster RosterLoader
	ttl    time.Duration

	mu      sync.Mutex
	pending map[string]*Proposal
}

func NewConfirmer(svc *Service, mgr *Manager, roster RosterLoader, conf *core.Config) *Confirmer {
	return &Confirmer{
		svc:     svc,
		mgr:     mgr,
		roster:  roster,
		ttl:     conf.ConfirmTTL,
		pending: make(map[string]*Proposal),
	}
}

// Propose diffs a workspace against the stored records and stages the
// changes. The roster is re-read here so members added or removed since the
// workspace was opened are honored: only current roster members are applied.
func (cfm *Confirmer) Propose(ctx context.Context, ws *Workspace) (*Proposal, error) {
	roster, err := cfm.roster.Roster(ctx, ws.ClassID)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, ErrEmptyRoster
	}
	onRoster := make(map[int]bool, len(roster))
	for _, mbr := range roster {
		onRoster[mbr.ID] = true
	}

	stored, err := cfm.svc.RosterAttendance(ctx, ws.ClassID, ws.Date)
	if err != nil {
		return nil, err
	}
	current := make(map[int]Record, len(stored))
	for _, rec := range stored {
		current[rec.MemberID] = rec
	}

	prop := &Proposal{
		Token:     tokenFunc(),
		ActorID:   ws.ActorID,
		ClassID:   ws.ClassID,
		Date:      ws.Date,
		ExpiresAt: nowFunc().UTC().Add(cfm.ttl),
	}
	for _, entry := range ws.Entries() {
		if !onRoster[entry.MemberID] {
			continue
		}
		if entry.Present {
			prop.Present++
		} else {
			prop.Absent++
		}
		if rec, ok := current[entry.MemberID]; ok && rec.Present == entry.Present && rec.Note == entry.Note {
			continue
		}
		classID := ws.ClassID
		prop.Changes = append(prop.Changes, NewRecord{
			MemberID: entry.MemberID,
			ClassID:  &classID,
			Date:     ws.Date,
			Present:  entry.Present,
			Note:     entry.Note,
		})
	}
	if len(prop.Changes) == 0 {
		return nil, ErrNoChanges
	}

	cfm.mu.Lock()
	defer cfm.mu.Unlock()
	cfm.sweep()
	cfm.pending[prop.Token] = prop
	return prop, nil
}

// sweep drops proposals expired for longer than the TTL; callers hold mu.
func (cfm *Confirmer) sweep() {
	cutoff := nowFunc().UTC().Add(-cfm.ttl)
	for token, prop := range cfm.pending {
		if prop.ExpiresAt.Before(cutoff) {
			delete(cfm.pending, token)
		}
	}
}

// Confirm applies a staged proposal. The token must belong to the confirming
// actor, be unexpired and unspent; the whole batch lands atomically. A token
// already executed or cancelled reports ErrTokenAlreadyUsed.
func (cfm *Confirmer) Confirm(ctx context.Context, actorID int, token string) ([]Record, error) {
	cfm.mu.Lock()
	prop, ok := cfm.pending[token]
	if !ok {
		cfm.mu.Unlock()
		return nil, ErrNotFound
	}
	if prop.ActorID != actorID {
		cfm.mu.Unlock()
		return nil, ErrTokenMismatch
	}
	if prop.state != proposalPending {
		cfm.mu.Unlock()
		return nil, ErrTokenAlreadyUsed
	}
	if nowFunc().UTC().After(prop.ExpiresAt) {
		prop.state = proposalCancelled
		cfm.mu.Unlock()
		return nil, ErrTokenExpired
	}
	prop.state = proposalExecuted
	cfm.mu.Unlock()

	recs, err := cfm.svc.BulkUpsert(ctx, prop.Changes, actorID)
	if err != nil {
		// nothing was applied; withdraw the proposal so the actor can restage
		cfm.mu.Lock()
		delete(cfm.pending, token)
		cfm.mu.Unlock()
		return nil, err
	}

	cfm.mgr.Discard(prop.ActorID, prop.ClassID, prop.Date)
	return recs, nil
}

// Cancel withdraws a staged proposal; the workspace stays open for review.
func (cfm *Confirmer) Cancel(actorID int, token string) error {
	cfm.mu.Lock()
	defer cfm.mu.Unlock()

	prop, ok := cfm.pending[token]
	if !ok {
		return ErrNotFound
	}
	if prop.ActorID != actorID {
		return ErrTokenMismatch
	}
	if prop.state != proposalPending {
		return ErrTokenAlreadyUsed
	}
	prop.state = proposalCancelled
	return nil
}
