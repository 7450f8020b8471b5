// Package roblox fetches group, asset, badge and gamepass metadata from the
// Roblox web API.
package roblox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/RoleBridge/internal/models"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBaseURL is the public groups API.
	DefaultBaseURL = "https://groups.roblox.com"
	// DefaultEconomyURL serves asset and gamepass details.
	DefaultEconomyURL = "https://economy.roblox.com"
	// DefaultBadgesURL serves badge details.
	DefaultBadgesURL = "https://badges.roblox.com"
)

var (
	// ErrNotFound is returned when Roblox reports the entity does not exist.
	ErrNotFound = errors.New("roblox entity not found")
	// ErrUnsupportedEntity is returned by GetEntity for types it cannot look up.
	ErrUnsupportedEntity = errors.New("unsupported roblox entity type")
)

// APIError is returned for any other failed request.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("roblox api %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// Down reports whether the error means Roblox itself is unavailable.
func (e *APIError) Down() bool {
	return e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == 0
}

// IsDown reports whether err carries an APIError saying Roblox is unavailable.
func IsDown(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Down()
}

// Roleset is one rank of a group.
type Roleset struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

func (r Roleset) String() string {
	return fmt.Sprintf("%s (%d)", r.Name, r.Rank)
}

// Group is a Roblox group with its rolesets ordered by rank.
type Group struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Rolesets []Roleset `json:"rolesets"`
}

// URL returns the group's page on roblox.com.
func (g *Group) URL() string {
	return fmt.Sprintf("https://www.roblox.com/groups/%d", g.ID)
}

// Roleset returns the roleset with the given rank.
func (g *Group) Roleset(rank int) (Roleset, bool) {
	for _, r := range g.Rolesets {
		if r.Rank == rank {
			return r, true
		}
	}
	return Roleset{}, false
}

// MatchRank resolves user input to a rank: a number must be an existing rank,
// text is matched against roleset names (exact, then prefix, then substring,
// all case-insensitive). It returns false when nothing matches.
func (g *Group) MatchRank(input string) (int, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(input); err == nil {
		_, ok := g.Roleset(n)
		return n, ok
	}
	q := strings.ToLower(input)
	matchers := []func(string) bool{
		func(name string) bool { return name == q },
		func(name string) bool { return strings.HasPrefix(name, q) },
		func(name string) bool { return strings.Contains(name, q) },
	}
	for _, match := range matchers {
		for _, r := range g.Rolesets {
			if r.Rank != 0 && match(strings.ToLower(r.Name)) {
				return r.Rank, true
			}
		}
	}
	return 0, false
}

// Entity is an asset, badge or gamepass.
type Entity struct {
	Type        models.BindType
	ID          int64
	Name        string
	Description string
}

// String renders the entity for messages, e.g. "**VIP** (123)".
func (e *Entity) String() string {
	name := "*(Unknown " + e.title() + ")*"
	if e.Name != "" {
		name = "**" + e.Name + "**"
	}
	return fmt.Sprintf("%s (%d)", name, e.ID)
}

func (e *Entity) title() string {
	s := string(e.Type)
	if s == "" {
		return "Entity"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Opts configures a Client.
type Opts struct {
	BaseURL    string
	EconomyURL string
	BadgesURL  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Option configures a Client.
type Option func(*Opts)

// WithBaseURL points the client at another host, e.g. an httptest server.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = strings.TrimRight(u, "/") }
}

// WithEconomyURL overrides DefaultEconomyURL.
func WithEconomyURL(u string) Option {
	return func(o *Opts) { o.EconomyURL = strings.TrimRight(u, "/") }
}

// WithBadgesURL overrides DefaultBadgesURL.
func WithBadgesURL(u string) Option {
	return func(o *Opts) { o.BadgesURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client talks to the Roblox web API. Concurrent lookups of the same entity
// share one request.
type Client struct {
	baseURL    string
	economyURL string
	badgesURL  string
	http       *http.Client
	timeout    time.Duration
	group      singleflight.Group
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	cfg := Opts{BaseURL: DefaultBaseURL, EconomyURL: DefaultEconomyURL, BadgesURL: DefaultBadgesURL, Timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		economyURL: cfg.EconomyURL,
		badgesURL:  cfg.BadgesURL,
		http:       cfg.HTTPClient,
		timeout:    cfg.Timeout,
	}
}

type groupPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type rolesPayload struct {
	Roles []Roleset `json:"roles"`
}

// GetGroup fetches a group and its rolesets.
func (c *Client) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
	key := strconv.FormatInt(groupID, 10)
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		return c.fetchGroup(ctx, groupID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("Client.GetGroup: shared in-flight lookup", "group_id", groupID)
	}
	g := *v.(*Group)
	g.Rolesets = append([]Roleset(nil), g.Rolesets...)
	return &g, nil
}

func (c *Client) fetchGroup(ctx context.Context, groupID int64) (*Group, error) {
	var info groupPayload
	if err := c.getJSON(ctx, c.baseURL, fmt.Sprintf("/v1/groups/%d", groupID), &info); err != nil {
		return nil, err
	}
	var roles rolesPayload
	if err := c.getJSON(ctx, c.baseURL, fmt.Sprintf("/v1/groups/%d/roles", groupID), &roles); err != nil {
		return nil, err
	}
	sort.SliceStable(roles.Roles, func(i, j int) bool { return roles.Roles[i].Rank < roles.Roles[j].Rank })
	slog.Debug("Client.GetGroup: fetched group", "group_id", groupID, "rolesets", len(roles.Roles))
	return &Group{ID: info.ID, Name: info.Name, Rolesets: roles.Roles}, nil
}

// entityPayload covers the detail endpoints: the economy API capitalizes its
// keys and the badges API does not. encoding/json matches either.
type entityPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GetEntity fetches an asset, badge or gamepass. Unknown IDs give ErrNotFound.
func (c *Client) GetEntity(ctx context.Context, t models.BindType, id int64) (*Entity, error) {
	var base, path string
	switch t {
	case models.BindTypeAsset:
		base, path = c.economyURL, fmt.Sprintf("/v2/assets/%d/details", id)
	case models.BindTypeBadge:
		base, path = c.badgesURL, fmt.Sprintf("/v1/badges/%d", id)
	case models.BindTypeGamepass:
		base, path = c.economyURL, fmt.Sprintf("/v1/game-pass/%d/game-pass-product-info", id)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEntity, t)
	}
	v, err, _ := c.group.Do(string(t)+":"+strconv.FormatInt(id, 10), func() (interface{}, error) {
		var payload entityPayload
		if err := c.getJSON(ctx, base, path, &payload); err != nil {
			return nil, err
		}
		slog.Debug("Client.GetEntity: fetched entity", "type", t, "id", id)
		return &Entity{Type: t, ID: id, Name: payload.Name, Description: payload.Description}, nil
	})
	if err != nil {
		return nil, err
	}
	e := *v.(*Entity)
	return &e, nil
}

func (c *Client) getJSON(ctx context.Context, base, path string, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	url := base + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{URL: url, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", url, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(string(body)), "invalid"):
		// Roblox answers 400 for group IDs that never existed.
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode != http.StatusOK:
		return &APIError{StatusCode: resp.StatusCode, URL: url, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}
