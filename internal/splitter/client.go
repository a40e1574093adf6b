package splitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"splitsync/internal/core"
	"splitsync/internal/log"
)

// DefaultBaseURL is the public Spliit instance.
const DefaultBaseURL = "https://spliit.app"

// Client calls Spliit's tRPC endpoints for one group.
type Client struct {
	baseURL    string
	groupID    string
	payerID    string
	httpClient *http.Client
	logger     *log.Logger

	mu           sync.Mutex
	participants []core.Participant
}

var _ Splitter = (*Client)(nil)

// NewClient creates a client for groupID acting as payerID.
func NewClient(baseURL, groupID, payerID string, httpClient *http.Client, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		groupID:    groupID,
		payerID:    payerID,
		httpClient: httpClient,
		logger:     logger.WithComponent(log.ComponentSplitter),
	}
}

// PayerID returns the participant id the client acts as.
func (c *Client) PayerID() string {
	return c.payerID
}

func (c *Client) procedureURL(procedure string) string {
	return c.baseURL + "/api/trpc/" + procedure
}

// query calls a tRPC query procedure. Input travels as ?input={"json":...}.
func (c *Client) query(ctx context.Context, procedure string, input any, out any) error {
	endpoint := c.procedureURL(procedure)
	if input != nil {
		encoded, err := json.Marshal(map[string]any{"json": input})
		if err != nil {
			return fmt.Errorf("marshal %s input: %w", procedure, err)
		}
		endpoint += "?input=" + url.QueryEscape(string(encoded))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", procedure, err)
	}
	return c.send(req, procedure, out)
}

// mutate calls a tRPC mutation procedure with a {"json": input} body.
func (c *Client) mutate(ctx context.Context, procedure string, input any, out any) error {
	body, err := json.Marshal(map[string]any{"json": input})
	if err != nil {
		return fmt.Errorf("marshal %s input: %w", procedure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.procedureURL(procedure), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", procedure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, procedure, out)
}

func (c *Client) send(req *http.Request, procedure string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrExternalService, procedure, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Splitter request",
		"procedure", procedure,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Error("Splitter API error",
			"procedure", procedure,
			log.FieldStatusCode, resp.StatusCode,
			"body", strings.TrimSpace(string(msg)))
		return fmt.Errorf("%w: %s: %s", core.ErrExternalService, procedure, resp.Status)
	}
	if out == nil {
		return nil
	}

	var envelope struct {
		Result struct {
			Data struct {
				JSON json.RawMessage `json:"json"`
			} `json:"data"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", core.ErrExternalService, procedure, err)
	}
	if len(envelope.Result.Data.JSON) == 0 {
		return fmt.Errorf("%w: %s: empty result", core.ErrExternalService, procedure)
	}
	if err := json.Unmarshal(envelope.Result.Data.JSON, out); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", core.ErrExternalService, procedure, err)
	}
	return nil
}

// Participants returns the group members; the list is fetched once.
func (c *Client) Participants(ctx context.Context) ([]core.Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.participants != nil {
		return c.participants, nil
	}

	var result struct {
		Group struct {
			Participants []participantRef `json:"participants"`
		} `json:"group"`
	}
	if err := c.query(ctx, "groups.get", map[string]any{"groupId": c.groupID}, &result); err != nil {
		return nil, err
	}
	participants := make([]core.Participant, 0, len(result.Group.Participants))
	for _, p := range result.Group.Participants {
		participants = append(participants, core.Participant(p))
	}
	c.participants = participants
	return participants, nil
}

// ParticipantName returns the member's name, "Unknown" when absent.
func (c *Client) ParticipantName(ctx context.Context, id string) string {
	participants, err := c.Participants(ctx)
	if err != nil {
		c.logger.Warn("Failed to list participants", log.FieldError, err)
		return "Unknown"
	}
	for _, p := range participants {
		if p.ID == id && p.Name != "" {
			return p.Name
		}
	}
	return "Unknown"
}

// Categories returns the category table.
func (c *Client) Categories(ctx context.Context) ([]core.ExternalCategory, error) {
	var result struct {
		Categories []categoryRef `json:"categories"`
	}
	if err := c.query(ctx, "categories.list", nil, &result); err != nil {
		return nil, err
	}
	out := make([]core.ExternalCategory, 0, len(result.Categories))
	for _, cat := range result.Categories {
		out = append(out, core.ExternalCategory(cat))
	}
	return out, nil
}

// ListExpenses returns up to limit recent expenses.
func (c *Client) ListExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	var result struct {
		Expenses []apiExpense `json:"expenses"`
	}
	input := map[string]any{"groupId": c.groupID, "limit": limit}
	if err := c.query(ctx, "groups.expenses.list", input, &result); err != nil {
		return nil, err
	}
	out := make([]core.Expense, 0, len(result.Expenses))
	for _, e := range result.Expenses {
		out = append(out, e.toCore())
	}
	return out, nil
}

// Expense fetches one expense.
func (c *Client) Expense(ctx context.Context, id string) (*core.Expense, error) {
	var result struct {
		Expense *apiExpense `json:"expense"`
	}
	input := map[string]any{"groupId": c.groupID, "expenseId": id}
	if err := c.query(ctx, "groups.expenses.get", input, &result); err != nil {
		return nil, err
	}
	if result.Expense == nil {
		return nil, nil
	}
	e := result.Expense.toCore()
	return &e, nil
}

// CreateExpense creates an expense paid by the local user and returns its id.
func (c *Client) CreateExpense(ctx context.Context, draft core.ExpenseDraft) (string, error) {
	values, err := c.formValues(ctx, draft)
	if err != nil {
		return "", err
	}
	input := map[string]any{
		"groupId":           c.groupID,
		"expenseFormValues": values,
		"participantId":     c.payerID,
	}
	var result struct {
		ExpenseID string `json:"expenseId"`
	}
	if err := c.mutate(ctx, "groups.expenses.create", input, &result); err != nil {
		return "", err
	}
	if result.ExpenseID == "" {
		return "", fmt.Errorf("%w: create expense: no id returned", core.ErrExternalService)
	}
	c.logger.Info("Created splitter expense", log.FieldExternalID, result.ExpenseID)
	return result.ExpenseID, nil
}

// UpdateExpense replaces the expense's form values.
func (c *Client) UpdateExpense(ctx context.Context, id string, draft core.ExpenseDraft) error {
	values, err := c.formValues(ctx, draft)
	if err != nil {
		return err
	}
	input := map[string]any{
		"expenseId":         id,
		"groupId":           c.groupID,
		"expenseFormValues": values,
		"participantId":     c.payerID,
	}
	return c.mutate(ctx, "groups.expenses.update", input, nil)
}

// DeleteExpense removes the expense.
func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	input := map[string]any{"groupId": c.groupID, "expenseId": id}
	return c.mutate(ctx, "groups.expenses.delete", input, nil)
}

type paidForValue struct {
	Participant string `json:"participant"`
	Shares      int64  `json:"shares"`
}

// formValues builds expenseFormValues; an empty PaidFor shares the expense among all
// members at 100 shares each.
func (c *Client) formValues(ctx context.Context, draft core.ExpenseDraft) (map[string]any, error) {
	ids := draft.PaidFor
	if len(ids) == 0 {
		participants, err := c.Participants(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range participants {
			ids = append(ids, p.ID)
		}
	}
	paidFor := make([]paidForValue, 0, len(ids))
	for _, id := range ids {
		paidFor = append(paidFor, paidForValue{Participant: id, Shares: 100})
	}

	mode := draft.SplitMode
	if mode == "" {
		mode = core.SplitEvenly
	}
	date := draft.Date
	if date.IsEmpty() {
		date = core.Today()
	}
	values := map[string]any{
		"title":                       draft.Title,
		"amount":                      draft.Amount,
		"expenseDate":                 date.String(),
		"category":                    draft.CategoryID,
		"paidBy":                      c.payerID,
		"paidFor":                     paidFor,
		"splitMode":                   string(mode),
		"isReimbursement":             draft.IsReimbursement,
		"saveDefaultSplittingOptions": false,
		"documents":                   []any{},
		"recurrenceRule":              "NONE",
	}
	if draft.Notes != "" {
		values["notes"] = draft.Notes
	}
	return values, nil
}
