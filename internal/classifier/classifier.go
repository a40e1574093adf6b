// Package classifier decides whether a ledger change is the first appearance of the
// trigger tag on a transaction.
package classifier

import (
	"strings"

	"splitsync/internal/core"
	"splitsync/internal/log"
)

// Classifier detects newly tagged transactions. It owns no state besides the
// tracker it was given.
type Classifier struct {
	tracker *TagTracker
	tag     string
	logger  *log.Logger
}

// New creates a Classifier for tag.
func New(tracker *TagTracker, tag string, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.Discard()
	}
	return &Classifier{
		tracker: tracker,
		tag:     tag,
		logger:  logger.WithComponent(log.ComponentClassifier),
	}
}

// Tag returns the trigger tag.
func (c *Classifier) Tag() string {
	return c.tag
}

// Tracker returns the tracker the classifier updates.
func (c *Classifier) Tracker() *TagTracker {
	return c.tracker
}

// Classify reports whether change newly triggers current, the entity as loaded after
// the change was applied. It returns current when triggered.
//
// The tracker is updated only when the change carries the notes field, so edits to
// other columns never overwrite what was last seen. The old notes are checked for the
// absence of the tag and the full current notes, not the delta, for its presence.
func (c *Classifier) Classify(change core.ChangeRecord, current *core.Transaction) (*core.Transaction, bool) {
	if current == nil || current.ID == "" {
		c.logger.Warn("Changed transaction could not be resolved",
			"entity_id", change.EntityID)
		return nil, false
	}

	lastNotes, seen := c.tracker.Get(current.ID)
	if change.Has(core.FieldNotes) {
		if notes, ok := change.Text(core.FieldNotes); ok {
			c.tracker.Set(current.ID, &notes)
		} else {
			c.tracker.Set(current.ID, nil)
		}
	}

	if seen && strings.Contains(lastNotes, c.tag) {
		return nil, false
	}
	if !strings.Contains(current.Notes, c.tag) {
		return nil, false
	}

	c.logger.Debug("Trigger tag added",
		log.FieldOriginalID, current.ID,
		"tag", c.tag)
	return current, true
}

// Tagged reports whether notes carry the trigger tag.
func (c *Classifier) Tagged(notes string) bool {
	return strings.Contains(notes, c.tag)
}
