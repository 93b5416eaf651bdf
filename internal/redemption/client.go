// Package redemption reads rewards and their redemptions from the event backend.
package redemption

import (
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

	"devfest/internal/draw"
)

var (
	// ErrUnauthorized is returned when the backend rejects the bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRemote is returned for any other failed backend call.
	ErrRemote = errors.New("remote api error")
)

const (
	// RedemptionCompleted marks a redemption as eligible for a lucky draw.
	RedemptionCompleted = "completed"
	// RewardInstant is the reward type lucky draws are held for.
	RewardInstant = "instant"
)

// Reward is a reward as the backend lists it.
type Reward struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	RedemptionType string `json:"redemption_type"`
	Stock          int    `json:"stock"`
}

// Redemption is one participant's claim of a reward.
type Redemption struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	UserName       string `json:"user_name"`
	RedemptionCode string `json:"redemption_code"`
	Status         string `json:"status"`
}

// Client talks to the organizer endpoints of the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. Paths are appended directly, so a missing
// trailing slash is added.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// ListRewards returns the instant rewards visible to the token holder.
func (c *Client) ListRewards(ctx context.Context, token string) ([]Reward, error) {
	var all []Reward
	if err := c.get(ctx, token, "api/v1/organizers/rewards", &all); err != nil {
		return nil, err
	}

	rewards := make([]Reward, 0, len(all))
	for _, r := range all {
		if r.RedemptionType == RewardInstant {
			rewards = append(rewards, r)
		}
	}
	return rewards, nil
}

// ListRedemptions returns the completed redemptions of rewardID.
func (c *Client) ListRedemptions(ctx context.Context, token, rewardID string) ([]Redemption, error) {
	var all []Redemption
	path := "api/v1/organizers/rewards/" + url.PathEscape(rewardID) + "/redemptions"
	if err := c.get(ctx, token, path, &all); err != nil {
		return nil, err
	}

	completed := make([]Redemption, 0, len(all))
	for _, r := range all {
		if r.Status == RedemptionCompleted {
			completed = append(completed, r)
		}
	}
	return completed, nil
}

func (c *Client) get(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: GET %s: http %d: %s", ErrRemote, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// the backend answers null for an empty list
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrRemote, path, err)
	}
	return nil
}

// ToEntries turns redemptions into draw entries.
func ToEntries(redemptions []Redemption) []draw.Entry {
	entries := make([]draw.Entry, 0, len(redemptions))
	for _, r := range redemptions {
		entries = append(entries, draw.Entry{
			ID:          strconv.FormatInt(r.ID, 10),
			DisplayName: r.UserName,
			Code:        r.RedemptionCode,
		})
	}
	return entries
}
