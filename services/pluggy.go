package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/LovationAdmin/finance-api/models"
	"github.com/LovationAdmin/finance-api/sanitize"
	"github.com/LovationAdmin/finance-api/utils"
)

// ProviderAccount is one account as reported by the aggregator. Raw is the
// record exactly as received.
type ProviderAccount struct {
	ID       string
	ItemID   string
	Name     string
	Currency string
	Balance  decimal.Decimal
	Mask     *string
	Raw      json.RawMessage
}

type ProviderTransaction struct {
	ID          string
	AccountID   string
	Description string
	Category    *string
	Currency    string
	Amount      decimal.Decimal
	Date        time.Time
	Raw         json.RawMessage
}

// Aggregator is the open-finance data source behind provider accounts.
type Aggregator interface {
	ListAccounts(ctx context.Context, itemID string) ([]ProviderAccount, error)
	ListTransactions(ctx context.Context, accounts []ProviderAccount) ([]ProviderTransaction, error)
}

// APIError is a non-2xx answer from the aggregator.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pluggy request failed (%d): %s", e.Status, utils.MaskString(e.Body))
}

const (
	pluggyKeyLifetime   = 2 * time.Hour
	pluggyKeyMargin     = 5 * time.Minute
	pluggyPageSize      = 500
	pluggyMaxErrorBytes = 512
)

type PluggyConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

// PluggyClient talks to the Pluggy API. The API key is cached process-wide
// and every call goes through one circuit breaker.
type PluggyClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	keys         *CredentialCache
	breaker      *gobreaker.CircuitBreaker
}

func NewPluggyClient(cfg PluggyConfig) (*PluggyClient, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("PLUGGY_CLIENT_ID and PLUGGY_CLIENT_SECRET are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &PluggyClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		// Trim spaces to prevent 401 errors from accidental copy-pasting.
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		client:       httpClient,
	}
	c.keys = NewCredentialCache(c.authenticate, pluggyKeyMargin)
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pluggy",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors say nothing about the health of the API.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
	})
	return c, nil
}

func (c *PluggyClient) do(req *http.Request) ([]byte, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			if len(body) > pluggyMaxErrorBytes {
				body = body[:pluggyMaxErrorBytes]
			}
			return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("pluggy is currently unavailable: %w", err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *PluggyClient) authenticate(ctx context.Context) (string, time.Time, error) {
	payload, err := json.Marshal(map[string]string{
		"clientId":     c.clientID,
		"clientSecret": c.clientSecret,
	})
	if err != nil {
		return "", time.Time{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", bytes.NewReader(payload))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	issued := time.Now()
	body, err := c.do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("pluggy auth: %w", err)
	}

	var res struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(body, &res); err != nil || res.APIKey == "" {
		return "", time.Time{}, errors.New("pluggy auth: response without apiKey")
	}
	return res.APIKey, issued.Add(pluggyKeyLifetime), nil
}

func (c *PluggyClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	key, err := c.keys.Get(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", key)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		// Next call authenticates again.
		c.keys.Invalidate()
	}
	return body, err
}

type pluggyPage struct {
	Results    []json.RawMessage `json:"results"`
	Page       int               `json:"page"`
	TotalPages int               `json:"totalPages"`
}

func (c *PluggyClient) ListAccounts(ctx context.Context, itemID string) ([]ProviderAccount, error) {
	body, err := c.get(ctx, "/accounts", url.Values{"itemId": {itemID}})
	if err != nil {
		return nil, fmt.Errorf("list pluggy accounts: %w", err)
	}

	var page pluggyPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode pluggy accounts: %w", err)
	}

	accounts := make([]ProviderAccount, 0, len(page.Results))
	for _, raw := range page.Results {
		acc, err := parseAccount(raw, itemID)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

// ListTransactions walks every page of the given accounts.
func (c *PluggyClient) ListTransactions(ctx context.Context, accounts []ProviderAccount) ([]ProviderTransaction, error) {
	var txs []ProviderTransaction
	for _, acc := range accounts {
		for pageNum := 1; ; pageNum++ {
			body, err := c.get(ctx, "/transactions", url.Values{
				"accountId": {acc.ID},
				"page":      {strconv.Itoa(pageNum)},
				"pageSize":  {strconv.Itoa(pluggyPageSize)},
			})
			if err != nil {
				return nil, fmt.Errorf("list pluggy transactions: %w", err)
			}

			var page pluggyPage
			if err := json.Unmarshal(body, &page); err != nil {
				return nil, fmt.Errorf("decode pluggy transactions: %w", err)
			}
			for _, raw := range page.Results {
				tx, err := parseTransaction(raw, acc)
				if err != nil {
					return nil, err
				}
				txs = append(txs, tx)
			}

			if pageNum >= page.TotalPages || len(page.Results) == 0 {
				break
			}
		}
	}
	return txs, nil
}

// record is a decoded aggregator resource queried with JSONPath.
type record struct {
	doc any
}

func decodeRecord(raw json.RawMessage) (record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return record{}, err
	}
	return record{doc: doc}, nil
}

func (r record) value(path string) any {
	v, err := jsonpath.Get(path, r.doc)
	if err != nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

func (r record) str(path string) string {
	switch v := r.value(path).(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func (r record) optStr(path string) *string {
	if s := r.str(path); s != "" {
		return &s
	}
	return nil
}

func (r record) decimal(path string) (decimal.Decimal, error) {
	switch v := r.value(path).(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(v)
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected number %v at %s", v, path)
	}
}

// first returns the first non-empty string among paths.
func (r record) first(paths ...string) string {
	for _, p := range paths {
		if s := r.str(p); s != "" {
			return s
		}
	}
	return ""
}

// maskOf keeps the last four digits of an account number.
func maskOf(number string) *string {
	var digits []rune
	for _, ch := range number {
		if ch >= '0' && ch <= '9' {
			digits = append(digits, ch)
		}
	}
	if len(digits) == 0 {
		return nil
	}
	m := string(digits[max(0, len(digits)-4):])
	return &m
}

func parseAccount(raw json.RawMessage, itemID string) (ProviderAccount, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return ProviderAccount{}, fmt.Errorf("decode pluggy account: %w", err)
	}

	id := rec.str("$.id")
	if id == "" {
		return ProviderAccount{}, errors.New("pluggy account without id")
	}
	balance, err := rec.decimal("$.balance")
	if err != nil {
		return ProviderAccount{}, fmt.Errorf("pluggy account %s: %w", id, err)
	}

	if item := rec.str("$.itemId"); item != "" {
		itemID = item
	}

	return ProviderAccount{
		ID:       id,
		ItemID:   itemID,
		Name:     rec.first("$.marketingName", "$.name", "$.type"),
		Currency: models.NormalizeCurrency(rec.str("$.currencyCode")),
		Balance:  balance,
		Mask:     maskOf(rec.str("$.number")),
		Raw:      raw,
	}, nil
}

func parseTransaction(raw json.RawMessage, acc ProviderAccount) (ProviderTransaction, error) {
	rec, err := decodeRecord(raw)
	if err != nil {
		return ProviderTransaction{}, fmt.Errorf("decode pluggy transaction: %w", err)
	}

	id := rec.str("$.id")
	if id == "" {
		return ProviderTransaction{}, errors.New("pluggy transaction without id")
	}
	amount, err := rec.decimal("$.amount")
	if err != nil {
		return ProviderTransaction{}, fmt.Errorf("pluggy transaction %s: %w", id, err)
	}
	date, ok := sanitize.ParseDate(rec.str("$.date"))
	if !ok {
		return ProviderTransaction{}, fmt.Errorf("pluggy transaction %s: invalid date", id)
	}

	currency := acc.Currency
	if c := rec.str("$.currencyCode"); c != "" {
		currency = models.NormalizeCurrency(c)
	}
	accountID := rec.str("$.accountId")
	if accountID == "" {
		accountID = acc.ID
	}

	return ProviderTransaction{
		ID:          id,
		AccountID:   accountID,
		Description: rec.first("$.description", "$.descriptionRaw", "$.id"),
		Category:    rec.optStr("$.category"),
		Currency:    currency,
		Amount:      amount,
		Date:        date,
		Raw:         raw,
	}, nil
}

var _ Aggregator = (*PluggyClient)(nil)
