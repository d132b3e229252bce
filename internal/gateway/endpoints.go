package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mpataki/padeploy/internal/models"
)

// Endpoints is every API operation a deployment uses.
type Endpoints interface {
	Consoles(ctx context.Context) ([]models.Console, error)
	LatestOutput(ctx context.Context, id models.ConsoleID) (string, error)
	SendInput(ctx context.Context, id models.ConsoleID, input string) error
	WebApps(ctx context.Context) ([]models.WebApp, error)
	ReloadWebApp(ctx context.Context, domainName string) error
}

var _ Endpoints = (*Client)(nil)

func (c *Client) Consoles(ctx context.Context) ([]models.Console, error) {
	var consoles []models.Console
	if err := c.Call(ctx, http.MethodGet, "/consoles/", nil, &consoles); err != nil {
		return nil, err
	}
	return consoles, nil
}

func (c *Client) LatestOutput(ctx context.Context, id models.ConsoleID) (string, error) {
	var resp struct {
		Output string `json:"output"`
	}
	path := fmt.Sprintf("/consoles/%s/get_latest_output/", url.PathEscape(id.String()))
	if err := c.Call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Output, nil
}

// SendInput types input into the console. The API acknowledges receipt only.
func (c *Client) SendInput(ctx context.Context, id models.ConsoleID, input string) error {
	body := map[string]string{"input": input}
	path := fmt.Sprintf("/consoles/%s/send_input/", url.PathEscape(id.String()))
	return c.Call(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) WebApps(ctx context.Context) ([]models.WebApp, error) {
	var apps []models.WebApp
	if err := c.Call(ctx, http.MethodGet, "/webapps/", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func (c *Client) ReloadWebApp(ctx context.Context, domainName string) error {
	path := fmt.Sprintf("/webapps/%s/reload/", url.PathEscape(domainName))
	return c.Call(ctx, http.MethodPost, path, nil, nil)
}
