// Package session acquires translation session credentials over an
// authenticated REST handshake.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"go.palabra.dev/client/errs"
)

// Credentials are the opaque strings needed to identify a caller and the
// derived values returned once a session has been created. They are
// treated as secret: LogValue and String report only the base URL, the
// room, and whether the secrets are set, so a %v or slog call never leaks
// a token.
type Credentials struct {
	ClientID     string
	ClientSecret string
	BaseURL      string

	// Derived once CreateSession succeeds.
	Room            string
	PublisherToken  string
	SubscriberToken string
	ControlURL      string
	StreamURL       string
}

// LogValue implements slog.LogValuer, redacting every secret field.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", c.BaseURL),
		slog.String("room", c.Room),
		slog.Bool("has_client_secret", c.ClientSecret != ""),
		slog.Bool("has_publisher_token", c.PublisherToken != ""),
	)
}

// String implements fmt.Stringer with the same redaction as LogValue.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{base_url=%s room=%s has_client_secret=%t has_publisher_token=%t}",
		c.BaseURL, c.Room, c.ClientSecret != "", c.PublisherToken != "")
}

// FromEnv reads CLIENT_ID, CLIENT_SECRET, and API_URL as opaque strings.
// It performs no validation; Client.CreateSession rejects empty values.
func FromEnv() Credentials {
	return Credentials{
		ClientID:     os.Getenv("CLIENT_ID"),
		ClientSecret: os.Getenv("CLIENT_SECRET"),
		BaseURL:      os.Getenv("API_URL"),
	}
}

// DefaultConnectTimeout is the request timeout used by Client unless
// overridden. It bounds each handshake request as a whole, connection
// setup included.
const DefaultConnectTimeout = 5 * time.Second

// Client acquires sessions over HTTPS. It holds no credentials of its
// own: each CreateSession call takes them, so one Client can serve any
// number of Credentials values.
type Client struct {
	http *resty.Client
}

// New creates a Client whose requests are each bounded by timeout,
// connection setup included. A zero timeout uses DefaultConnectTimeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Client{http: resty.New().SetTimeout(timeout)}
}

type createSessionRequest struct {
	Data createSessionData `json:"data"`
}

type createSessionData struct {
	SubscriberCount     int  `json:"subscriber_count"`
	PublisherCanSubcribe bool `json:"publisher_can_subscribe"`
}

type apiError struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Code     string `json:"error_code"`
	Status   int    `json:"status"`
	Type     string `json:"type"`
	Instance string `json:"instance"`
}

type createSessionResponse struct {
	OK   bool      `json:"ok"`
	Data *sessData `json:"data"`
	Errors []apiError `json:"errors"`
}

// sessData mirrors the server's session-storage payload. Later aliases in
// this struct take precedence over earlier ones when both are present,
// per the handshake's alias-resolution rule.
type sessData struct {
	Publisher  string `json:"publisher"`
	Subscriber string `json:"subscriber"`

	WebRTCRoomName string `json:"webrtc_room_name"`
	RoomName       string `json:"room_name"`

	WebRTCURL string `json:"webrtc_url"`
	StreamURL string `json:"stream_url"`

	WSURL      string `json:"ws_url"`
	ControlURL string `json:"control_url"`
}

func (d sessData) room() string {
	if d.RoomName != "" {
		return d.RoomName
	}
	return d.WebRTCRoomName
}

func (d sessData) stream() string {
	if d.StreamURL != "" {
		return d.StreamURL
	}
	return d.WebRTCURL
}

func (d sessData) control() string {
	if d.ControlURL != "" {
		return d.ControlURL
	}
	return d.WSURL
}

// CreateSession performs the REST handshake and returns Credentials
// populated with the derived session fields. It never retries; a new
// session is always allocated, which is idempotent from the caller's
// perspective.
func (c *Client) CreateSession(ctx context.Context, cred Credentials, subscriberCount int) (Credentials, error) {
	const op = "session.CreateSession"

	if cred.ClientID == "" || cred.ClientSecret == "" || cred.BaseURL == "" {
		return Credentials{}, errs.New(errs.InvalidArgument, op, nil)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("ClientId", cred.ClientID).
		SetHeader("ClientSecret", cred.ClientSecret).
		SetBody(createSessionRequest{Data: createSessionData{
			SubscriberCount:      subscriberCount,
			PublisherCanSubcribe: true,
		}}).
		Post(cred.BaseURL + "/session-storage/session")
	if err != nil {
		return Credentials{}, errs.New(errs.SessionCreation, op, err)
	}

	// The body is decoded whatever the status code and Content-Type, so a
	// non-2xx reply still yields the server's error details.
	var out createSessionResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		out = createSessionResponse{}
	}

	if !out.OK || out.Data == nil {
		msg := "no error details provided"
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			msg = fmt.Sprintf("%s - %s", e.Title, e.Detail)
		}
		slog.Error("session creation failed", "status", resp.StatusCode(), "detail", msg)
		return Credentials{}, errs.New(errs.SessionCreation, op, fmt.Errorf("%s", msg))
	}

	d := *out.Data
	result := cred
	result.Room = d.room()
	result.PublisherToken = d.Publisher
	result.SubscriberToken = d.Subscriber
	result.ControlURL = d.control()
	result.StreamURL = d.stream()
	return result, nil
}
