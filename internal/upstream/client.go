package upstream

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	account "gasledger/internal/account/domain"
)

const (
	energyAnalysisPath = "/livingpay/v3/xcx/electricity/getEnergyAnalysis.json"
	orderListPath      = "/v1/order/bizOrderList"

	defaultClientType = "gaswx"
	orderPageSize     = 50
	// orderStatCompleted filters paid-and-settled recharge orders.
	orderStatCompleted = 3
)

// Account identifies one remote account for snapshot fetches.
type Account struct {
	EntryID     string
	Token       string
	PaymentNo   string
	CompanyCode string
}

// Client fetches account snapshots from the remote energy API. Requests
// are signed with an appKey derived from a wall-clock timestamp and a
// shared secret.
type Client struct {
	baseURL    string
	secret     string
	clientType string
	client     *http.Client
	now        func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// WithClientType overrides the reported client type.
func WithClientType(clientType string) Option {
	return func(c *Client) {
		if clientType != "" {
			c.clientType = clientType
		}
	}
}

// WithClock overrides the signing clock.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs an upstream client.
func NewClient(baseURL, signingSecret string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("upstream: empty base url")
	}
	if signingSecret == "" {
		return nil, errors.New("upstream: empty signing secret")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     signingSecret,
		clientType: defaultClientType,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AppKey builds the request signature: a yyyymmddhhmmss timestamp
// concatenated with the MD5 hex digest of timestamp+secret.
func (c *Client) AppKey() string {
	ts := c.now().Format("20060102150405")
	sum := md5.Sum([]byte(ts + c.secret))
	return ts + hex.EncodeToString(sum[:])
}

// FetchSnapshot reads the account's energy analysis and its recharge
// order list, returning one consistent snapshot. Typed failures:
// ErrAuthExpired, ErrNetwork, ErrNoData.
func (c *Client) FetchSnapshot(ctx context.Context, acct Account) (account.AccountSnapshot, error) {
	if acct.Token == "" {
		return account.AccountSnapshot{}, fmt.Errorf("%w: empty token", ErrAuthExpired)
	}
	if acct.PaymentNo == "" {
		return account.AccountSnapshot{}, account.ErrEmptyEntryID
	}

	analysis, err := c.fetchEnergyAnalysis(ctx, acct)
	if err != nil {
		return account.AccountSnapshot{}, err
	}
	orders, err := c.fetchOrders(ctx, acct)
	if err != nil {
		return account.AccountSnapshot{}, err
	}

	snapshot := account.AccountSnapshot{
		Balance:            float64(analysis.Balance),
		Arrears:            float64(analysis.ArrearsAmount),
		ReportedMonthUsage: float64(analysis.CurrentMonthUsage),
		ReportedMonthCost:  float64(analysis.CurrentMonthCost),
		TotalUsage:         float64(analysis.TotalGasCount),
		AvailableDays:      int(analysis.AvailableDays),
		LastMonthBalance:   float64(analysis.LastMonthBalance),
		MonthEstimateCost:  float64(analysis.CurrentMonthEstimateCost),
		CycleDescription:   analysis.LadderCycleDesc,
		FetchedAt:          c.now(),
	}
	for i, tier := range analysis.LadderDtoList {
		snapshot.LadderTiers = append(snapshot.LadderTiers, account.LadderTier{
			Index:            i + 1,
			LowerBound:       float64(tier.LadderStartValue),
			UpperBound:       float64(tier.LadderEndValue),
			UnitPrice:        float64(tier.GasPrice),
			CycleDescription: analysis.LadderCycleDesc,
		})
	}
	for _, day := range analysis.DailyUsageList {
		snapshot.DailyUsage = append(snapshot.DailyUsage, account.ReportedDailyUsage{
			Date:  day.Date,
			Usage: float64(day.Usage),
		})
	}
	for _, order := range orders {
		if order.OrderStat != orderStatCompleted {
			continue
		}
		snapshot.RechargeEvents = append(snapshot.RechargeEvents, account.RechargeEvent{
			OrderID:      order.OrderID,
			Amount:       float64(order.NumDesc),
			CreatedAtRaw: order.CreateTime,
		})
	}
	return snapshot, nil
}

type energyAnalysisData struct {
	Balance                  flexFloat   `json:"balance"`
	ArrearsAmount            flexFloat   `json:"arrearsAmount"`
	CurrentMonthUsage        flexFloat   `json:"currentMonthUsage"`
	CurrentMonthCost         flexFloat   `json:"currentMonthCost"`
	TotalGasCount            flexFloat   `json:"totalGasCount"`
	AvailableDays            flexFloat   `json:"availableDays"`
	LastMonthBalance         flexFloat   `json:"lastMonthBalance"`
	CurrentMonthEstimateCost flexFloat   `json:"currentMonthEstimateCost"`
	LadderCycleDesc          string      `json:"ladderCycleDesc"`
	LadderDtoList            []ladderDTO `json:"ladderDtoList"`
	DailyUsageList           []dailyDTO  `json:"dailyUsageList"`
}

type ladderDTO struct {
	LadderStartValue flexFloat `json:"ladderStartValue"`
	LadderEndValue   flexFloat `json:"ladderEndValue"`
	GasPrice         flexFloat `json:"gasPrice"`
}

type dailyDTO struct {
	Date  string    `json:"date"`
	Usage flexFloat `json:"usage"`
}

type orderDTO struct {
	OrderID    string    `json:"orderId"`
	NumDesc    flexFloat `json:"numDesc"`
	CreateTime string    `json:"createTime"`
	OrderStat  int       `json:"orderStat"`
}

type analysisEnvelope struct {
	ResultCode int                 `json:"resultCode"`
	Message    string              `json:"message"`
	Data       *energyAnalysisData `json:"data"`
}

type orderEnvelope struct {
	ResultCode int        `json:"resultCode"`
	Message    string     `json:"message"`
	Data       []orderDTO `json:"data"`
}

func (c *Client) fetchEnergyAnalysis(ctx context.Context, acct Account) (*energyAnalysisData, error) {
	form := url.Values{
		"appKey":      {c.AppKey()},
		"token":       {acct.Token},
		"clientType":  {c.clientType},
		"paymentNo":   {acct.PaymentNo},
		"companyCode": {acct.CompanyCode},
	}
	var envelope analysisEnvelope
	if err := c.postForm(ctx, energyAnalysisPath, acct.Token, form, &envelope); err != nil {
		return nil, err
	}
	if err := checkResultCode(envelope.ResultCode, envelope.Message); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("%w: empty analysis payload", ErrNoData)
	}
	return envelope.Data, nil
}

func (c *Client) fetchOrders(ctx context.Context, acct Account) ([]orderDTO, error) {
	form := url.Values{
		"appKey":      {c.AppKey()},
		"orderStatus": {"0"},
		"pageNum":     {"1"},
		"pageSize":    {strconv.Itoa(orderPageSize)},
		"token":       {acct.Token},
		"type":        {"2"},
		"version":     {"1"},
	}
	var envelope orderEnvelope
	if err := c.postForm(ctx, orderListPath, acct.Token, form, &envelope); err != nil {
		return nil, err
	}
	if err := checkResultCode(envelope.ResultCode, envelope.Message); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

func (c *Client) postForm(ctx context.Context, path, token string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("token", token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: http %d", ErrAuthExpired, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http %d", ErrNetwork, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrNoData, err)
	}
	return nil
}

func checkResultCode(code int, message string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || strings.Contains(strings.ToLower(message), "token"):
		return fmt.Errorf("%w: result %d %s", ErrAuthExpired, code, message)
	default:
		return fmt.Errorf("%w: result %d %s", ErrNoData, code, message)
	}
}

// flexFloat decodes JSON numbers that the remote API sometimes encodes
// as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "" || trimmed == "null" {
		*f = 0
		return nil
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fmt.Errorf("upstream: parse number %q: %w", trimmed, err)
	}
	*f = flexFloat(value)
	return nil
}
