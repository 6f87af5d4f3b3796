package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/milkmamado/biscal-sub002/domain"
	"github.com/milkmamado/biscal-sub002/helpers"
)

var logger = log.New(log.Writer(), "[binance] ", log.LstdFlags)

// RestAPI fetches full order-book snapshots from the futures depth endpoint.
// Concurrent requests for the same symbol+limit share a single in-flight
// call; the result does not mutate any shared state, installation is the
// caller's job.
type RestAPI struct {
	endpoint string
	client   *http.Client
	group    singleflight.Group
}

func NewRestAPI(endpoint string) *RestAPI {
	return &RestAPI{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (api *RestAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.BookSnapshot, error) {
	key := symbol.String() + ":" + helpers.IntToString(int64(limit))

	// The shared flight is detached from any single caller's context: a
	// cancelled caller stops waiting while the fetch completes for the
	// rest. The HTTP client timeout still bounds the request.
	ch := api.group.DoChan(key, func() (interface{}, error) {
		return api.fetchSnapshot(context.WithoutCancel(ctx), symbol, limit)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.BookSnapshot), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotUnavailable, ctx.Err())
	}
}

func (api *RestAPI) fetchSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.BookSnapshot, error) {
	query := url.Values{}
	query.Set("symbol", symbol.Upper())
	query.Set("limit", helpers.IntToString(int64(limit)))

	reqURL := fmt.Sprintf("%s/fapi/v1/depth?%s", api.endpoint, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotUnavailable, err)
	}

	resp, err := api.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrSnapshotUnavailable, resp.StatusCode, body)
	}

	var snapshot domain.BookSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrSnapshotUnavailable, err)
	}

	if snapshot.LastUpdateID == 0 {
		return nil, fmt.Errorf("%w: payload missing lastUpdateId", domain.ErrSnapshotUnavailable)
	}

	return &snapshot, nil
}
