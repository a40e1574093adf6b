package splitter

import (
	"bytes"
	"encoding/json"

	"splitsync/internal/core"
)

// participantRef decodes either a participant object or a bare id.
type participantRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *participantRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &p.ID)
	}
	type plain participantRef
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = participantRef(v)
	return nil
}

type categoryRef struct {
	ID       int    `json:"id"`
	Grouping string `json:"grouping"`
	Name     string `json:"name"`
}

type apiShare struct {
	Participant participantRef `json:"participant"`
	// ParticipantID is used by payloads that reference participants by id only.
	ParticipantID string `json:"participantId"`
	Shares        *int64 `json:"shares"`
}

type apiExpense struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Amount          int64          `json:"amount"`
	ExpenseDate     string         `json:"expenseDate"`
	PaidBy          participantRef `json:"paidBy"`
	PaidByID        string         `json:"paidById"`
	Category        *categoryRef   `json:"category"`
	CategoryID      *int           `json:"categoryId"`
	SplitMode       string         `json:"splitMode"`
	PaidFor         []apiShare     `json:"paidFor"`
	IsReimbursement bool           `json:"isReimbursement"`
	Notes           string         `json:"notes"`
}

func (e apiExpense) toCore() core.Expense {
	out := core.Expense{
		ID:              e.ID,
		Title:           e.Title,
		Amount:          e.Amount,
		ExpenseDate:     e.ExpenseDate,
		PaidBy:          core.Participant(e.PaidBy),
		SplitMode:       core.ParseSplitMode(e.SplitMode),
		IsReimbursement: e.IsReimbursement,
		Notes:           e.Notes,
	}
	if out.PaidBy.ID == "" {
		out.PaidBy.ID = e.PaidByID
	}
	switch {
	case e.Category != nil:
		out.CategoryID = e.Category.ID
	case e.CategoryID != nil:
		out.CategoryID = *e.CategoryID
	}
	for _, s := range e.PaidFor {
		id := s.Participant.ID
		if id == "" {
			id = s.ParticipantID
		}
		out.PaidFor = append(out.PaidFor, core.Share{ParticipantID: id, Shares: s.Shares})
	}
	return out
}
