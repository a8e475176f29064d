package dmapi

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	apiSessionTransform = "mtop.damai.wireless.user.session.transform"
	apiBroadcastList    = "mtop.damai.wireless.search.broadcast.list"
	apiTicketDetail     = "mtop.alibaba.damai.detail.getdetail"
	apiPerformDetail    = "mtop.alibaba.detail.subpage.getdetail"
	apiOrderBuild       = "mtop.trade.order.build.h5"
	apiOrderCreate      = "mtop.trade.order.create.h5"
)

// Options parameterise the mtop client.
type Options struct {
	BaseURL   string
	AppKey    string
	Cookie    string
	UserAgent string
	BxToken   string
	BxUA      string
	Timeout   time.Duration
}

// Token is the _m_h5_tk cookie pair issued by mtop.
type Token struct {
	Token         string
	TokenWithTime string
	EncToken      string
}

// Client performs signed mtop requests.
type Client struct {
	opts    Options
	client  *http.Client
	baseURL string
	cookie  string
	token   Token
	logger  zerolog.Logger
}

// New scrubs the configured cookie, bootstraps the signing token, and
// returns a ready client.
func New(ctx context.Context, opts Options, logger zerolog.Logger) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://mtop.damai.cn"
	}
	if opts.AppKey == "" {
		opts.AppKey = "12574478"
	}

	c := &Client{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		cookie:  scrubCookie(opts.Cookie),
		logger:  logger.With().Str("component", "dmapi").Logger(),
	}

	token, err := c.fetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap mtop token: %w", err)
	}
	c.token = token
	c.cookie = fmt.Sprintf("%s;_m_h5_tk_enc=%s;_m_h5_tk=%s;", c.cookie, token.EncToken, token.TokenWithTime)

	return c, nil
}

// scrubCookie strips whitespace and any stale _m_h5_tk pairs so the fresh
// token pair is the only one presented.
func scrubCookie(cookie string) string {
	cookie = strings.ReplaceAll(cookie, " ", "")
	parts := strings.Split(cookie, ";")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || strings.HasPrefix(part, "_m_h5_tk") {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, ";")
}

// fetchToken hits a cheap listing endpoint and harvests the _m_h5_tk
// cookie pair mtop sets for unsigned callers.
func (c *Client) fetchToken(ctx context.Context) (Token, error) {
	endpoint := fmt.Sprintf("%s/h5/%s/1.0/", c.baseURL, apiBroadcastList)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Token{}, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return Token{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	var token Token
	for _, cookie := range resp.Cookies() {
		switch cookie.Name {
		case "_m_h5_tk":
			token.TokenWithTime = cookie.Value
			token.Token, _, _ = strings.Cut(cookie.Value, "_")
		case "_m_h5_tk_enc":
			token.EncToken = cookie.Value
		}
	}
	if token.Token == "" {
		return Token{}, fmt.Errorf("响应未携带 _m_h5_tk cookie")
	}
	return token, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("origin", c.baseURL)
	req.Header.Set("referer", c.baseURL)
	req.Header.Set("cookie", c.cookie)
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("user-agent", ua)
	}
}

// request signs and posts one mtop call. extra carries call-specific
// query params (e.g. the submit secret).
func (c *Client) request(ctx context.Context, api, version string, data any, extra url.Values) (*Res, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", api, err)
	}

	t := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := signPayload(c.token.Token, t, c.opts.AppKey, string(dataJSON))

	params := url.Values{}
	params.Set("jsv", "2.7.2")
	params.Set("appKey", c.opts.AppKey)
	params.Set("t", t)
	params.Set("sign", sign)
	params.Set("type", "originaljson")
	params.Set("dataType", "json")
	params.Set("api", api)
	params.Set("v", version)
	params.Set("H5Request", "true")
	if c.opts.BxToken != "" {
		params.Set("bx-umidtoken", c.opts.BxToken)
	}
	if c.opts.BxUA != "" {
		params.Set("bx-ua", c.opts.BxUA)
	}
	for key, values := range extra {
		for _, value := range values {
			params.Add(key, value)
		}
	}

	form := url.Values{}
	form.Set("data", string(dataJSON))

	endpoint := fmt.Sprintf("%s/h5/%s/%s/?%s", c.baseURL, api, version, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("content-type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", api, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", api, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s 响应码异常: %d", api, resp.StatusCode)
	}

	var res Res
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", api, err)
	}

	c.logger.Debug().Str("api", api).Str("ret", res.RetMsg()).Dur("elapsed", time.Since(start)).Msg("mtop call")
	return &res, nil
}

// signPayload computes the mtop h5 signature md5(token&t&appKey&data).
func signPayload(token, t, appKey, data string) string {
	sum := md5.Sum([]byte(token + "&" + t + "&" + appKey + "&" + data))
	return hex.EncodeToString(sum[:])
}

// FetchIdentity resolves the user behind the configured cookie.
func (c *Client) FetchIdentity(ctx context.Context) (*Identity, error) {
	res, err := c.request(ctx, apiSessionTransform, "1.0", map[string]string{}, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, newAPIError(res)
	}
	var identity Identity
	if err := json.Unmarshal(res.Data, &identity); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &identity, nil
}

// FetchCatalog loads the ticket detail page for a ticket id.
func (c *Client) FetchCatalog(ctx context.Context, ticketID string) (*TicketDetail, error) {
	data := map[string]string{
		"itemId":       ticketID,
		"platform":     "8",
		"comboChannel": "2",
		"bizCode":      "ali.china.damai",
	}
	res, err := c.request(ctx, apiTicketDetail, "1.2", data, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, newAPIError(res)
	}
	var detail TicketDetail
	if err := decodeResult(res.Data, &detail); err != nil {
		return nil, fmt.Errorf("decode ticket detail: %w", err)
	}
	return &detail, nil
}

// FetchSessionTiers loads the tier listing of one performance.
func (c *Client) FetchSessionTiers(ctx context.Context, ticketID, performID string) (*PerformDetail, error) {
	start := time.Now()
	data := map[string]string{
		"itemId":       ticketID,
		"performId":    performID,
		"platform":     "8",
		"comboChannel": "2",
		"bizCode":      "ali.china.damai",
	}
	res, err := c.request(ctx, apiPerformDetail, "2.0", data, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, newAPIError(res)
	}
	var detail PerformDetail
	if err := decodeResult(res.Data, &detail); err != nil {
		return nil, fmt.Errorf("decode perform detail: %w", err)
	}
	c.logger.Debug().Dur("elapsed", time.Since(start)).Msg("获取场次/票档信息")
	return &detail, nil
}

// BuildOrder creates an order draft for itemId/skuId/count.
func (c *Client) BuildOrder(ctx context.Context, itemID, skuID string, count int) (*OrderDraft, error) {
	data := map[string]string{
		"buyNow":    "true",
		"buyParam":  fmt.Sprintf("%s_%d_%s", itemID, count, skuID),
		"dmChannel": "damai@damaih5_h5",
	}
	res, err := c.request(ctx, apiOrderBuild, "4.0", data, nil)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, newAPIError(res)
	}
	var draft OrderDraft
	if err := json.Unmarshal(res.Data, &draft); err != nil {
		return nil, fmt.Errorf("decode order draft: %w", err)
	}
	return &draft, nil
}

// SubmitOrder shapes and submits a built order, binding the first
// viewerCount attendees. The envelope is returned even when the remote
// rejects the order; only transport and payload errors surface as error.
func (c *Client) SubmitOrder(ctx context.Context, draft *OrderDraft, viewerCount int) (*Res, error) {
	form, err := buildSubmitForm(draft, viewerCount)
	if err != nil {
		return nil, err
	}

	extra := url.Values{}
	if draft.Global.SecretValue != "" {
		extra.Set("submitref", draft.Global.SecretValue)
	}

	start := time.Now()
	res, err := c.request(ctx, apiOrderCreate, "4.0", form, extra)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("ret", res.RetMsg()).Dur("elapsed", time.Since(start)).Msg("提交订单结果")
	return res, nil
}

// decodeResult unwraps the data.result string envelope used by the detail
// endpoints, whose payload is JSON encoded inside a JSON string.
func decodeResult(data json.RawMessage, out any) error {
	var wrapper struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	if wrapper.Result == "" {
		return fmt.Errorf("缺少 result 字段")
	}
	return json.Unmarshal([]byte(wrapper.Result), out)
}

var _ Gateway = (*Client)(nil)
