package sentry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/outpace-network/validatorworker/internal/logging"
	"github.com/outpace-network/validatorworker/outpace"
)

// HTTPClient is the real sentry Client, a thin typed wrapper over the REST
// surface of spec.md §6 in the style of tosclient.Client's typed RPC
// wrappers, built on net/http rather than an RPC transport since the
// sentry's API is plain REST, not JSON-RPC.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
	log     *logging.Logger
}

// NewHTTPClient returns an HTTPClient against baseURL (e.g.
// "http://127.0.0.1:8005"), using hc for transport. A nil hc uses
// http.DefaultClient.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, hc: hc, log: logging.With("component", "sentry")}
}

type messagesEnvelope struct {
	Messages []outpace.Envelope `json:"messages"`
}

type channelListEnvelope struct {
	Channels []outpace.Channel `json:"channels"`
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSentryUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s returned %d", ErrSentryUnreachable, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) postMessages(ctx context.Context, channelID string, envelope outpace.Envelope) error {
	body, err := json.Marshal(messagesEnvelope{Messages: []outpace.Envelope{envelope}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/channel/%s/validator-messages", c.baseURL, url.PathEscape(channelID)),
		bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSentryUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: POST validator-messages returned %d", ErrSentryUnreachable, resp.StatusCode)
	}
	return nil
}

// GetLatestMsg implements Client.GetLatestMsg against
// GET /channel/{id}/validator-messages?from=...&type=....
func (c *HTTPClient) GetLatestMsg(ctx context.Context, channelID, from string, msgType outpace.MessageType) (*outpace.Envelope, error) {
	path := fmt.Sprintf("/channel/%s/validator-messages?from=%s&type=%s",
		url.PathEscape(channelID), url.QueryEscape(from), url.QueryEscape(string(msgType)))
	var env messagesEnvelope
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}
	return latestBySeq(env.Messages), nil
}

// GetOurLatestMsg implements Client.GetOurLatestMsg by querying each
// candidate type and keeping the newest result, per spec.md §4.4.
func (c *HTTPClient) GetOurLatestMsg(ctx context.Context, channelID string, ourIdentity string, types []outpace.MessageType) (*outpace.Envelope, error) {
	var latest *outpace.Envelope
	for _, t := range types {
		env, err := c.GetLatestMsg(ctx, channelID, ourIdentity, t)
		if err != nil {
			return nil, err
		}
		if env == nil {
			continue
		}
		if latest == nil || env.Seq > latest.Seq {
			latest = env
		}
	}
	return latest, nil
}

// GetLastApproved implements Client.GetLastApproved.
func (c *HTTPClient) GetLastApproved(ctx context.Context, channelID string) (*LastApproved, error) {
	path := fmt.Sprintf("/channel/%s/validator-messages?type=%s", url.PathEscape(channelID), outpace.TypeApproveState)
	var env messagesEnvelope
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}
	approve := latestBySeq(env.Messages)
	if approve == nil {
		return nil, nil
	}

	newPath := fmt.Sprintf("/channel/%s/validator-messages?type=%s", url.PathEscape(channelID), outpace.TypeNewState)
	var newEnv messagesEnvelope
	if err := c.get(ctx, newPath, &newEnv); err != nil {
		return nil, err
	}
	var newState *outpace.Envelope
	for i := range newEnv.Messages {
		m := &newEnv.Messages[i]
		if m.Msg.NewState != nil && m.Msg.NewState.StateRoot == approve.Msg.ApproveState.StateRoot {
			if newState == nil || m.Seq > newState.Seq {
				newState = m
			}
		}
	}
	if newState == nil {
		return nil, ErrApprovedStateCorrupt
	}
	return &LastApproved{NewState: newState, ApproveState: approve}, nil
}

// Propagate implements Client.Propagate: POST to each peer's
// /validator-messages endpoint. Per-peer failures are logged and
// swallowed, per spec.md §4.4/§7's PropagationFailure policy.
func (c *HTTPClient) Propagate(ctx context.Context, channelID string, validators []outpace.Validator, ourIdentity string, msg outpace.Message) error {
	for _, v := range validators {
		if v.ID == ourIdentity {
			continue
		}
		peer := NewHTTPClient(v.URL, c.hc)
		env := outpace.Envelope{ChannelID: channelID, From: ourIdentity, Msg: msg}
		if err := peer.postMessages(ctx, channelID, env); err != nil {
			c.log.Warn("propagation failed", "peer", v.ID, "url", v.URL, "err", err)
		}
	}
	return nil
}

// PersistAndPropagate implements Client.PersistAndPropagate: local persist
// (POST to our own sentry) happens before propagation to the peers, and
// always stands regardless of propagation outcome.
func (c *HTTPClient) PersistAndPropagate(ctx context.Context, ch *outpace.Channel, ourIdentity string, otherValidators []outpace.Validator, msg outpace.Message) error {
	env := outpace.Envelope{ChannelID: ch.ID, From: ourIdentity, Msg: msg}
	if err := c.postMessages(ctx, ch.ID, env); err != nil {
		return err
	}
	return c.Propagate(ctx, ch.ID, otherValidators, ourIdentity, msg)
}

// GetEventAggregates implements Client.GetEventAggregates against
// GET /channel/{id}/validator-messages's sibling aggregates resource.
func (c *HTTPClient) GetEventAggregates(ctx context.Context, channelID string, afterCursor time.Time) ([]outpace.EventAggregate, error) {
	path := fmt.Sprintf("/channel/%s/events?after=%s", url.PathEscape(channelID), url.QueryEscape(afterCursor.Format(time.RFC3339Nano)))
	var out struct {
		Aggregates []outpace.EventAggregate `json:"aggregates"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	sort.Slice(out.Aggregates, func(i, j int) bool { return out.Aggregates[i].Seq < out.Aggregates[j].Seq })
	return out.Aggregates, nil
}

// ListChannels implements Client.ListChannels against
// GET /channel/list?validator=<id>.
func (c *HTTPClient) ListChannels(ctx context.Context, validatorIdentity string) ([]outpace.Channel, error) {
	path := "/channel/list?validator=" + url.QueryEscape(validatorIdentity)
	var env channelListEnvelope
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}
	return env.Channels, nil
}

func latestBySeq(envs []outpace.Envelope) *outpace.Envelope {
	var latest *outpace.Envelope
	for i := range envs {
		if latest == nil || envs[i].Seq > latest.Seq {
			latest = &envs[i]
		}
	}
	return latest
}

var _ Client = (*HTTPClient)(nil)
var _ Client = (*MemoryClient)(nil)
