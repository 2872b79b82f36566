package vod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/glefebvre/vodharvest/internal/errors"
)

// StatusSuccess is the envelope status of a successful call
const StatusSuccess = "SUCCESS"

// Endpoint labels
const (
	EndpointLogin    = "login"
	EndpointChannels = "updatechannels"
	EndpointShows    = "vod"
	EndpointEpisodes = "vod_show"
	EndpointStream   = "vod_episode"
)

// Envelope is the common wrapper of every upstream response
type Envelope struct {
	Status string          `json:"status"`
	Module string          `json:"module,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// DecodeEnvelope decodes the wrapper of a response. A body that is not a JSON
// object decodes to an empty envelope.
func DecodeEnvelope(body json.RawMessage) Envelope {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}
	}
	return env
}

// Succeeded reports whether the upstream flagged the call as successful
func (e Envelope) Succeeded() bool {
	return e.Status == StatusSuccess
}

// Login opens the provider session. The call is never cached.
func (c *Client) Login(ctx context.Context) error {
	body, err := c.FetchJSON(ctx, Request{
		Method:   http.MethodPost,
		URL:      c.url(c.module + "/login"),
		Headers:  map[string]string{"Content-Type": "application/json"},
		Body:     "{}",
		Endpoint: EndpointLogin,
	})
	if err != nil {
		return err
	}

	env := DecodeEnvelope(body)
	if !env.Succeeded() {
		return errors.AuthenticationFailure("Login failed", body)
	}

	var tokens []json.RawMessage
	if err := json.Unmarshal(env.Data, &tokens); err != nil || len(tokens) == 0 || !truthy(tokens[0]) {
		return errors.AuthenticationFailure("Login returned no token", body)
	}

	c.logger.WithFields(map[string]interface{}{
		"module": c.module,
	}).Info("logged in to provider")
	return nil
}

// RefreshChannels asks the provider to refresh its channel list. Never cached.
func (c *Client) RefreshChannels(ctx context.Context) error {
	body, err := c.FetchJSON(ctx, Request{
		Method:   http.MethodGet,
		URL:      c.url(c.module + "/updatechannels"),
		Endpoint: EndpointChannels,
	})
	if err != nil {
		return err
	}

	if !DecodeEnvelope(body).Succeeded() {
		return errors.New(errors.CodeInvalidResponse, "updatechannels failed").WithPayload(body)
	}
	return nil
}

// ShowsPage fetches one page of the show catalog, optionally filtered by a search query
func (c *Client) ShowsPage(ctx context.Context, page int, search string) (json.RawMessage, error) {
	params := map[string]string{"page": strconv.Itoa(page)}
	if search != "" {
		params["search"] = search
	}

	return c.FetchJSON(ctx, Request{
		Method:    http.MethodGet,
		URL:       c.url(c.module + "/vod"),
		Params:    params,
		Endpoint:  EndpointShows,
		Cacheable: true,
	})
}

// EpisodesPage fetches one page of a show's episode list
func (c *Client) EpisodesPage(ctx context.Context, showID string, page int) (json.RawMessage, error) {
	return c.FetchJSON(ctx, Request{
		Method:    http.MethodGet,
		URL:       c.url(fmt.Sprintf("%s/vod/%s", c.module, url.PathEscape(showID))),
		Params:    map[string]string{"page": strconv.Itoa(page)},
		Endpoint:  EndpointEpisodes,
		Cacheable: true,
	})
}

// EpisodeStream fetches the stream lookup response of one episode
func (c *Client) EpisodeStream(ctx context.Context, showID, episodeID string) (json.RawMessage, error) {
	return c.FetchJSON(ctx, Request{
		Method:    http.MethodGet,
		URL:       c.url(fmt.Sprintf("%s/vod/%s/%s", c.module, url.PathEscape(showID), url.PathEscape(episodeID))),
		Endpoint:  EndpointStream,
		Cacheable: true,
	})
}

// truthy mirrors JSON truthiness: null, false, 0, "" and empty containers are false
func truthy(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	switch {
	case len(v) == 0:
		return false
	case bytes.Equal(v, []byte("null")), bytes.Equal(v, []byte("false")):
		return false
	case bytes.Equal(v, []byte(`""`)), bytes.Equal(v, []byte("[]")), bytes.Equal(v, []byte("{}")):
		return false
	}

	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return n != 0
	}
	return true
}
