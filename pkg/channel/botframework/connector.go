package botframework

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"flowbridge/pkg/config"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	tokenURL   = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	tokenScope = "https://api.botframework.com/.default"

	replyPath = "/v3/conversations/{conversationId}/activities/{activityId}"
)

// errUntrustedServiceURL guards the connector token from hosts outside the
// trusted set.
var errUntrustedServiceURL = errors.New("serviceUrl host is not trusted")

// Connector posts reply activities to the Bot Framework connector service.
type Connector struct {
	http    *resty.Client
	tokens  oauth2.TokenSource
	trusted serviceHosts
}

// NewConnector builds a connector client. Without app credentials (local
// emulator) requests carry no bearer token.
func NewConnector(cfg config.BotFrameworkConfig) *Connector {
	return newConnector(cfg, tokenURL)
}

func newConnector(cfg config.BotFrameworkConfig, tokenEndpoint string) *Connector {
	timeout := time.Duration(cfg.SendTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultSendTimeoutSeconds * time.Second
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	connector := &Connector{http: httpClient, trusted: newServiceHosts(cfg.TrustedServiceHosts)}

	appID := strings.TrimSpace(cfg.AppID)
	if appID != "" {
		credentials := clientcredentials.Config{
			ClientID:     appID,
			ClientSecret: cfg.AppPassword,
			TokenURL:     tokenEndpoint,
			Scopes:       []string{tokenScope},
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient.GetClient())
		connector.tokens = credentials.TokenSource(tokenCtx)
	}

	return connector
}

// ReplyToActivity posts reply into conversationID as a response to activityID.
func (c *Connector) ReplyToActivity(ctx context.Context, serviceURL string, conversationID string, activityID string, reply Activity) error {
	base := strings.TrimRight(strings.TrimSpace(serviceURL), "/")
	if base == "" {
		return errors.New("activity has no serviceUrl")
	}
	if _, err := url.Parse(base); err != nil {
		return fmt.Errorf("parse serviceUrl: %w", err)
	}
	if conversationID == "" {
		return errors.New("activity has no conversation id")
	}

	request := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"conversationId": conversationID,
			"activityId":     activityID,
		}).
		SetBody(reply)

	if c.tokens != nil {
		if !c.trusted.allows(base) {
			return fmt.Errorf("post reply activity to %s: %w", base, errUntrustedServiceURL)
		}
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("acquire connector token: %w", err)
		}
		request.SetAuthToken(token.AccessToken)
	}

	response, err := request.Post(base + replyPath)
	if err != nil {
		return fmt.Errorf("post reply activity: %w", err)
	}
	if !response.IsSuccess() {
		return fmt.Errorf("post reply activity: status %d: %s", response.StatusCode(), strings.TrimSpace(response.String()))
	}
	return nil
}
