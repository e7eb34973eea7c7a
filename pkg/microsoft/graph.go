package microsoft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flohub/flohub/pkg/oauth"
	log "github.com/sirupsen/logrus"
)

const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

// maxPages bounds @odata.nextLink following for one request.
const maxPages = 50

var ErrUnauthenticated = errors.New("user is unauthenticated in Microsoft, authentication is required")

// ClientProvider hands out HTTP clients authorized for a user's Microsoft account.
type ClientProvider interface {
	Client(ctx context.Context, userId int, label string) (*http.Client, error)
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("graph request failed with status %d: %s", e.StatusCode, e.Body)
}

// graphClient issues paged GET requests against Microsoft Graph.
type graphClient struct {
	auth    ClientProvider
	baseURL string
}

func (g *graphClient) httpClient(ctx context.Context, userId int, label string) (*http.Client, error) {
	client, err := g.auth.Client(ctx, userId, label)
	if err != nil {
		if errors.Is(err, oauth.ErrReconnectRequired) {
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("unable to retrieve Microsoft auth client: %w", err)
	}
	return client, nil
}

// getAll follows @odata.nextLink from endpoint and returns every "value" item.
func (g *graphClient) getAll(ctx context.Context, client *http.Client, endpoint string) ([]map[string]any, error) {
	items := make([]map[string]any, 0)
	for page := 0; endpoint != ""; page++ {
		if page == maxPages {
			log.Warnf("stopping after %d Graph pages", maxPages)
			break
		}
		var result struct {
			Value    []map[string]any `json:"value"`
			NextLink string           `json:"@odata.nextLink"`
		}
		if err := g.get(ctx, client, endpoint, &result); err != nil {
			return nil, err
		}
		items = append(items, result.Value...)
		endpoint = result.NextLink
	}
	return items, nil
}

func (g *graphClient) get(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode graph response: %w", err)
	}
	return nil
}
