// Package actualhttp talks to Actual Budget through an actual-http-api style REST
// bridge and derives a change feed by diffing snapshots of recent transactions.
package actualhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"splitsync/internal/cache"
	"splitsync/internal/core"
	"splitsync/internal/ledger"
	"splitsync/internal/log"
)

const (
	defaultTimeout  = 30 * time.Second
	lookupCacheSize = 512
	lookupCacheTTL  = 10 * time.Minute
)

// Client is a REST client for one budget.
type Client struct {
	baseURL    string
	budget     string
	apiKey     string
	password   string
	httpClient *http.Client
	logger     *log.Logger

	payees     *cache.LRU[core.Payee]
	accounts   *cache.LRU[core.Account]
	categories *cache.LRU[core.Category]
}

// Config holds the connection settings.
type Config struct {
	BaseURL string
	Budget  string // budget sync id
	APIKey  string
	// Password is sent as the budget encryption password when set.
	Password   string
	HTTPClient *http.Client
}

// NewClient creates a client. A nil logger discards output.
func NewClient(cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		budget:     cfg.Budget,
		apiKey:     cfg.APIKey,
		password:   cfg.Password,
		httpClient: httpClient,
		logger:     logger.WithComponent(log.ComponentLedger),
		payees:     cache.NewLRU[core.Payee](lookupCacheSize, lookupCacheTTL),
		accounts:   cache.NewLRU[core.Account](lookupCacheSize, lookupCacheTTL),
		categories: cache.NewLRU[core.Category](lookupCacheSize, lookupCacheTTL),
	}
}

// errNotFound is returned by do for 404 responses.
var errNotFound = errors.New("actual: not found")

type apiTransaction struct {
	ID            string  `json:"id,omitempty"`
	Account       string  `json:"account,omitempty"`
	Date          string  `json:"date,omitempty"`
	Amount        int64   `json:"amount"`
	Payee         *string `json:"payee,omitempty"`
	Category      *string `json:"category"`
	Notes         string  `json:"notes"`
	ImportedPayee string  `json:"imported_payee"`
	Cleared       bool    `json:"cleared"`
	Reconciled    bool    `json:"reconciled"`
	Tombstone     bool    `json:"tombstone,omitempty"`
}

type apiNamed struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed,omitempty"`
}

func (t apiTransaction) toCore() core.Transaction {
	out := core.Transaction{
		ID:                  t.ID,
		AccountID:           t.Account,
		Amount:              core.NewMoney(t.Amount),
		Notes:               t.Notes,
		ImportedDescription: t.ImportedPayee,
		Cleared:             t.Cleared,
		Reconciled:          t.Reconciled,
		Tombstone:           t.Tombstone,
	}
	if d, err := core.ParseDate(t.Date); err == nil {
		out.Date = d
	}
	if t.Payee != nil {
		out.PayeeID = *t.Payee
	}
	if t.Category != nil {
		out.CategoryID = *t.Category
	}
	return out
}

func fromCore(t core.Transaction) apiTransaction {
	out := apiTransaction{
		ID:            t.ID,
		Account:       t.AccountID,
		Date:          t.Date.String(),
		Amount:        t.Amount.Cents,
		Notes:         t.Notes,
		ImportedPayee: t.ImportedDescription,
		Cleared:       t.Cleared,
		Reconciled:    t.Reconciled,
	}
	if t.PayeeID != "" {
		out.Payee = &t.PayeeID
	}
	if t.CategoryID != "" {
		out.Category = &t.CategoryID
	}
	return out
}

func (c *Client) budgetPath(format string, args ...any) string {
	return fmt.Sprintf("%s/v1/budgets/%s", c.baseURL, url.PathEscape(c.budget)) + fmt.Sprintf(format, args...)
}

// do sends a request and decodes the "data" envelope into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.password != "" {
		req.Header.Set("budget-encryption-password", c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Ledger request",
		log.FieldMethod, method,
		log.FieldPath, req.URL.Path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: %s: %s", method, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// Accounts lists the open accounts.
func (c *Client) Accounts(ctx context.Context) ([]core.Account, error) {
	var raw []apiNamed
	if err := c.do(ctx, http.MethodGet, c.budgetPath("/accounts"), nil, &raw); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.Account, 0, len(raw))
	for _, a := range raw {
		if a.Closed {
			continue
		}
		acct := core.Account{ID: a.ID, Name: a.Name}
		c.accounts.Set("id:"+a.ID, acct)
		out = append(out, acct)
	}
	return out, nil
}

// AccountTransactions lists the transactions of one account dated on or after since.
func (c *Client) AccountTransactions(ctx context.Context, accountID string, since core.Date) ([]core.Transaction, error) {
	endpoint := c.budgetPath("/accounts/%s/transactions", url.PathEscape(accountID))
	if !since.IsEmpty() {
		endpoint += "?since_date=" + url.QueryEscape(since.String())
	}
	var raw []apiTransaction
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("list transactions for account %s: %w", accountID, err)
	}
	out := make([]core.Transaction, 0, len(raw))
	for _, t := range raw {
		if t.Account == "" {
			t.Account = accountID
		}
		out = append(out, t.toCore())
	}
	return out, nil
}

// RecentTransactions lists live transactions of every open account since the date.
func (c *Client) RecentTransactions(ctx context.Context, since core.Date) ([]core.Transaction, error) {
	accounts, err := c.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Transaction
	for _, a := range accounts {
		txns, err := c.AccountTransactions(ctx, a.ID, since)
		if err != nil {
			return nil, err
		}
		for _, t := range txns {
			if !t.Tombstone {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// Transaction fetches one transaction; nil when the ledger does not know it.
func (c *Client) Transaction(ctx context.Context, id string) (*core.Transaction, error) {
	var raw apiTransaction
	err := c.do(ctx, http.MethodGet, c.budgetPath("/transactions/%s", url.PathEscape(id)), nil, &raw)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	if raw.ID == "" {
		return nil, nil
	}
	t := raw.toCore()
	return &t, nil
}

// CreateTransaction adds t to its account. The id is generated client side so the
// caller learns it without a second lookup.
func (c *Client) CreateTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if t.AccountID == "" {
		return "", core.Validationf("create transaction: no account")
	}
	t.ID = uuid.NewString()
	body := map[string]any{"transaction": fromCore(t)}
	endpoint := c.budgetPath("/accounts/%s/transactions", url.PathEscape(t.AccountID))
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}
	return t.ID, nil
}

// UpdateTransaction applies patch. A tombstone patch deletes the transaction.
func (c *Client) UpdateTransaction(ctx context.Context, id string, patch ledger.Patch) error {
	endpoint := c.budgetPath("/transactions/%s", url.PathEscape(id))
	if patch.Tombstone != nil && *patch.Tombstone {
		if err := c.do(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
			return fmt.Errorf("delete transaction %s: %w", id, err)
		}
		return nil
	}

	fields := make(map[string]any)
	if patch.Amount != nil {
		fields["amount"] = patch.Amount.Cents
	}
	if patch.Date != nil {
		fields["date"] = patch.Date.String()
	}
	if patch.CategoryID != nil {
		if *patch.CategoryID == "" {
			fields["category"] = nil
		} else {
			fields["category"] = *patch.CategoryID
		}
	}
	if patch.Notes != nil {
		fields["notes"] = *patch.Notes
	}
	if patch.ImportedDescription != nil {
		fields["imported_payee"] = *patch.ImportedDescription
	}
	if len(fields) == 0 {
		return nil
	}
	if err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"transaction": fields}, nil); err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	return nil
}

// FindByImportedPrefix scans transactions since the given date for an imported
// description starting with prefix.
func (c *Client) FindByImportedPrefix(ctx context.Context, prefix string, since core.Date) ([]core.Transaction, error) {
	txns, err := c.RecentTransactions(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("find by imported prefix: %w", err)
	}
	var out []core.Transaction
	for _, t := range txns {
		if strings.HasPrefix(t.ImportedDescription, prefix) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Client) listNamed(ctx context.Context, path string) ([]apiNamed, error) {
	var raw []apiNamed
	if err := c.do(ctx, http.MethodGet, c.budgetPath(path), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Payee resolves a payee by id.
func (c *Client) Payee(ctx context.Context, id string) (*core.Payee, error) {
	return c.payee(ctx, "id:"+id, func(p apiNamed) bool { return p.ID == id })
}

// PayeeByName resolves a payee by exact name.
func (c *Client) PayeeByName(ctx context.Context, name string) (*core.Payee, error) {
	return c.payee(ctx, "name:"+name, func(p apiNamed) bool { return p.Name == name })
}

func (c *Client) payee(ctx context.Context, key string, match func(apiNamed) bool) (*core.Payee, error) {
	p, ok, err := c.payees.Load(ctx, key, func(ctx context.Context) (core.Payee, bool, error) {
		raw, err := c.listNamed(ctx, "/payees")
		if err != nil {
			return core.Payee{}, false, fmt.Errorf("list payees: %w", err)
		}
		for _, r := range raw {
			if match(r) {
				return core.Payee{ID: r.ID, Name: r.Name}, true, nil
			}
		}
		return core.Payee{}, false, nil
	})
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// Account resolves an account by id.
func (c *Client) Account(ctx context.Context, id string) (*core.Account, error) {
	return c.account(ctx, "id:"+id, func(a core.Account) bool { return a.ID == id })
}

// AccountByName resolves an account by exact name.
func (c *Client) AccountByName(ctx context.Context, name string) (*core.Account, error) {
	return c.account(ctx, "name:"+name, func(a core.Account) bool { return a.Name == name })
}

func (c *Client) account(ctx context.Context, key string, match func(core.Account) bool) (*core.Account, error) {
	a, ok, err := c.accounts.Load(ctx, key, func(ctx context.Context) (core.Account, bool, error) {
		accounts, err := c.Accounts(ctx)
		if err != nil {
			return core.Account{}, false, err
		}
		for _, a := range accounts {
			if match(a) {
				return a, true, nil
			}
		}
		return core.Account{}, false, nil
	})
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

// Category resolves a category by id.
func (c *Client) Category(ctx context.Context, id string) (*core.Category, error) {
	return c.category(ctx, "id:"+id, func(r apiNamed) bool { return r.ID == id })
}

// CategoryByName resolves a category by exact name.
func (c *Client) CategoryByName(ctx context.Context, name string) (*core.Category, error) {
	return c.category(ctx, "name:"+name, func(r apiNamed) bool { return r.Name == name })
}

func (c *Client) category(ctx context.Context, key string, match func(apiNamed) bool) (*core.Category, error) {
	cat, ok, err := c.categories.Load(ctx, key, func(ctx context.Context) (core.Category, bool, error) {
		raw, err := c.listNamed(ctx, "/categories")
		if err != nil {
			return core.Category{}, false, fmt.Errorf("list categories: %w", err)
		}
		for _, r := range raw {
			if match(r) {
				return core.Category{ID: r.ID, Name: r.Name}, true, nil
			}
		}
		return core.Category{}, false, nil
	})
	if err != nil || !ok {
		return nil, err
	}
	return &cat, nil
}
