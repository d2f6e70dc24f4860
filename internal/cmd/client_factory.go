package cmd

import (
	"fmt"
	"time"

	"github.com/openhands/ohc/internal/api"
	"github.com/openhands/ohc/internal/config"
)

type clientFactory struct {
	timeout   time.Duration
	userAgent string
}

func newClientFactory() *clientFactory {
	return &clientFactory{
		timeout:   flags.Timeout,
		userAgent: fmt.Sprintf("ohc/%s", version),
	}
}

func (f *clientFactory) client() (*api.Client, error) {
	server, err := config.LoadServer(flags.Server)
	if err != nil {
		return nil, err
	}
	return f.newClient(server), nil
}

func (f *clientFactory) newClient(server config.Server) *api.Client {
	client := api.New(server.BaseURL, server.APIKey)
	if f.timeout > 0 {
		client.HTTP.Timeout = f.timeout
	}
	if f.userAgent != "" {
		client.UserAgent = f.userAgent
	}
	return client
}
