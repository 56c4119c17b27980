package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dkp-ledger/internal/config"
	"dkp-ledger/internal/constants"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"
)

// Client is a read-only client for the raw event store's PostgREST
// query API. All mutation lives in external officer tooling; this
// client only ever issues GETs plus the opaque materialize RPC.
type Client struct {
	baseURL string
	apiKey  string
	client  *fasthttp.Client
	logger  zerolog.Logger
}

func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.StoreURL, "/"),
		apiKey:  cfg.StoreAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

func (c *Client) Characters(ctx context.Context) ([]CharacterRow, error) {
	return fetchAll[CharacterRow](ctx, c, "characters", "order=char_id.asc")
}

func (c *Client) CharacterAccounts(ctx context.Context) ([]CharacterAccountRow, error) {
	return fetchAll[CharacterAccountRow](ctx, c, "character_account", "order=char_id.asc")
}

func (c *Client) Accounts(ctx context.Context) ([]AccountRow, error) {
	return fetchAll[AccountRow](ctx, c, "accounts", "order=account_id.asc")
}

func (c *Client) Raids(ctx context.Context) ([]RaidRow, error) {
	return fetchAll[RaidRow](ctx, c, "raids", "order=raid_id.asc")
}

// RaidsByIDs fetches raid metadata for an explicit id set, chunked into
// concurrent in.(...) sub-requests. Results merge only after every
// sub-request has resolved.
func (c *Client) RaidsByIDs(ctx context.Context, raidIDs []int64) ([]RaidRow, error) {
	return fetchIn[RaidRow](ctx, c, "raids", "raid_id", raidIDs, "order=raid_id.asc")
}

func (c *Client) RaidEvents(ctx context.Context) ([]RaidEventRow, error) {
	return fetchAll[RaidEventRow](ctx, c, "raid_events", "order=raid_id.asc,event_id.asc")
}

func (c *Client) RaidAttendance(ctx context.Context) ([]RaidAttendanceRow, error) {
	return fetchAll[RaidAttendanceRow](ctx, c, "raid_attendance", "order=raid_id.asc")
}

func (c *Client) RaidEventAttendance(ctx context.Context) ([]RaidEventAttendanceRow, error) {
	return fetchAll[RaidEventAttendanceRow](ctx, c, "raid_event_attendance", "order=raid_id.asc,event_id.asc")
}

func (c *Client) RaidLoot(ctx context.Context) ([]RaidLootRow, error) {
	return fetchAll[RaidLootRow](ctx, c, "raid_loot", "order=id.asc")
}

// RaidLootSince fetches only loot rows with an id above the given
// watermark, for incremental catch-up.
func (c *Client) RaidLootSince(ctx context.Context, afterID int64) ([]RaidLootRow, error) {
	return fetchAll[RaidLootRow](ctx, c, "raid_loot",
		fmt.Sprintf("id=gt.%d&order=id.asc", afterID))
}

func (c *Client) Adjustments(ctx context.Context) ([]AdjustmentRow, error) {
	return fetchAll[AdjustmentRow](ctx, c, "dkp_adjustments", "order=character_name.asc")
}

func (c *Client) ActiveRaiders(ctx context.Context) ([]ActiveRaiderRow, error) {
	return fetchAll[ActiveRaiderRow](ctx, c, "active_raiders", "order=character_key.asc")
}

func (c *Client) CharacterSummaries(ctx context.Context) ([]CharacterSummaryRow, error) {
	return fetchAll[CharacterSummaryRow](ctx, c, "character_summaries", "order=char_id.asc")
}

func (c *Client) PeriodTotals(ctx context.Context) ([]PeriodTotalRow, error) {
	return fetchAll[PeriodTotalRow](ctx, c, "period_totals", "order=window_days.asc")
}

// MaterializeSummary asks the store to refresh its precomputed summary
// tables. The engine treats this as an opaque signal; whatever the RPC
// does happens entirely server-side.
func (c *Client) MaterializeSummary(ctx context.Context) error {
	url := fmt.Sprintf("%s/rest/v1/rpc/materialize_character_summaries", c.baseURL)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	c.setAuth(req)
	req.SetBodyString("{}")

	if err := c.do(ctx, req, resp); err != nil {
		return fmt.Errorf("materialize summary: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("materialize summary: store error %d", resp.StatusCode())
	}
	return nil
}

func (c *Client) setAuth(req *fasthttp.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if deadline, ok := ctx.Deadline(); ok {
		return c.client.DoDeadline(req, resp, deadline)
	}
	return c.client.Do(req, resp)
}

// fetchAll pages through a table with the fixed page size until the
// store returns a short page.
func fetchAll[T any](ctx context.Context, c *Client, table, query string) ([]T, error) {
	var out []T
	for offset := 0; ; offset += constants.StorePageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := fetchRange[T](ctx, c, table, query, offset, offset+constants.StorePageSize-1)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < constants.StorePageSize {
			c.logger.Debug().Str("table", table).Int("rows", len(out)).Msg("table fetched")
			return out, nil
		}
	}
}

func fetchRange[T any](ctx context.Context, c *Client, table, query string, from, to int) ([]T, error) {
	url := fmt.Sprintf("%s/rest/v1/%s?select=*", c.baseURL, table)
	if query != "" {
		url += "&" + query
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Range-Unit", "items")
	req.Header.Set("Range", fmt.Sprintf("%d-%d", from, to))
	c.setAuth(req)

	if err := c.do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}

	// 206 is the normal answer for a ranged read; 200 for a full one.
	if resp.StatusCode() != fasthttp.StatusOK && resp.StatusCode() != fasthttp.StatusPartialContent {
		return nil, fmt.Errorf("fetch %s: store error %d", table, resp.StatusCode())
	}

	var page []T
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return nil, fmt.Errorf("fetch %s: decode: %w", table, err)
	}
	return page, nil
}

// fetchIn splits an id set into chunks below the store's per-request
// limit and runs the sub-requests concurrently. Partial results are
// never exposed: the merge happens only after g.Wait.
func fetchIn[T any](ctx context.Context, c *Client, table, column string, ids []int64, query string) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var chunks [][]int64
	for i := 0; i < len(ids); i += constants.StoreChunkSize {
		end := i + constants.StoreChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}

	g, gCtx := errgroup.WithContext(ctx)
	results := make([][]T, len(chunks))
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			parts := make([]string, len(chunk))
			for j, id := range chunk {
				parts[j] = strconv.FormatInt(id, 10)
			}
			filter := fmt.Sprintf("%s=in.(%s)", column, strings.Join(parts, ","))
			if query != "" {
				filter += "&" + query
			}
			rows, err := fetchAll[T](gCtx, c, table, filter)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []T
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}
