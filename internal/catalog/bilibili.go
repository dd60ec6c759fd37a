package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"favsync/internal/config"
)

const defaultBaseURL = "https://api.bilibili.com"

// BilibiliClient talks to the favorites catalog's REST API with the
// configured cookie credential. It implements both Source and Mutator.
type BilibiliClient struct {
	baseURL    string
	httpClient *http.Client
	credential config.CredentialConfig
	logger     *slog.Logger
}

// NewBilibiliClient creates a catalog client. baseURL is overridable for tests;
// empty selects the production endpoint.
func NewBilibiliClient(credential config.CredentialConfig, requestTimeout time.Duration, baseURL string, logger *slog.Logger) *BilibiliClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &BilibiliClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		credential: credential,
		logger:     logger,
	}
}

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *BilibiliClient) do(ctx context.Context, method, path string, query url.Values, form url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build catalog request: %w", err)
	}

	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	c.attachCredential(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog returned HTTP %d for %s", resp.StatusCode, path)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}

	if envelope.Code != 0 {
		return fmt.Errorf("catalog error %d: %s", envelope.Code, envelope.Message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode catalog payload: %w", err)
		}
	}

	return nil
}

func (c *BilibiliClient) attachCredential(req *http.Request) {
	cookies := map[string]string{
		"SESSDATA":      c.credential.Sessdata,
		"bili_jct":      c.credential.BiliJct,
		"buvid3":        c.credential.Buvid3,
		"DedeUserID":    c.credential.Dedeuserid,
		"ac_time_value": c.credential.AcTimeValue,
	}

	for name, value := range cookies {
		if value != "" {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}
}

// ListItems returns every item id currently in a favorite list.
func (c *BilibiliClient) ListItems(ctx context.Context, favid string) ([]Item, error) {
	query := url.Values{"media_id": {favid}}

	var entries []struct {
		ID   int64  `json:"id"`
		Bvid string `json:"bvid"`
	}
	if err := c.do(ctx, http.MethodGet, "/x/v3/fav/resource/ids", query, nil, &entries); err != nil {
		return nil, fmt.Errorf("failed to list favorite list %s: %w", favid, err)
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry.Bvid == "" {
			continue
		}
		items = append(items, Item{Bvid: entry.Bvid, Aid: entry.ID})
	}

	c.logger.Debug("Fetched favorite list",
		slog.String("favid", favid),
		slog.Int("items", len(items)),
	)

	return items, nil
}

// VideoInfo fetches title/part metadata for one item.
func (c *BilibiliClient) VideoInfo(ctx context.Context, bvid string) (*VideoInfo, error) {
	query := url.Values{"bvid": {bvid}}

	var data struct {
		Aid    int64  `json:"aid"`
		Title  string `json:"title"`
		Videos int    `json:"videos"`
	}
	if err := c.do(ctx, http.MethodGet, "/x/web-interface/view", query, nil, &data); err != nil {
		return nil, fmt.Errorf("failed to get video info for %s: %w", bvid, err)
	}

	return &VideoInfo{Aid: data.Aid, Title: data.Title, Parts: data.Videos}, nil
}

// ResolveAid maps a bvid onto its numeric aid.
func (c *BilibiliClient) ResolveAid(ctx context.Context, bvid string) (int64, error) {
	info, err := c.VideoInfo(ctx, bvid)
	if err != nil {
		return 0, err
	}
	return info.Aid, nil
}

// Move relocates an item between favorite lists.
func (c *BilibiliClient) Move(ctx context.Context, aid int64, fromFid, toFid string) error {
	form := url.Values{
		"src_media_id": {fromFid},
		"tar_media_id": {toFid},
		"resources":    {fmt.Sprintf("%d:2", aid)},
		"csrf":         {c.credential.BiliJct},
	}

	if err := c.do(ctx, http.MethodPost, "/x/v3/fav/resource/move", nil, form, nil); err != nil {
		return fmt.Errorf("failed to move item %d from %s to %s: %w", aid, fromFid, toFid, err)
	}

	c.logger.Info("Moved item between favorite lists",
		slog.Int64("aid", aid),
		slog.String("from", fromFid),
		slog.String("to", toFid),
	)

	return nil
}

// Remove drops an item from a favorite list.
func (c *BilibiliClient) Remove(ctx context.Context, aid int64, fid string) error {
	form := url.Values{
		"media_id":  {fid},
		"resources": {fmt.Sprintf("%d:2", aid)},
		"csrf":      {c.credential.BiliJct},
	}

	if err := c.do(ctx, http.MethodPost, "/x/v3/fav/resource/batch-del", nil, form, nil); err != nil {
		return fmt.Errorf("failed to remove item %d from %s: %w", aid, fid, err)
	}

	c.logger.Info("Removed item from favorite list",
		slog.Int64("aid", aid),
		slog.String("fid", fid),
	)

	return nil
}
