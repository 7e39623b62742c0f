package oauth

import "github.com/identio/identio-server-sub001/internal/config"

// Client is a registered OAuth 2 relying party.
type Client struct {
	ClientID      string
	Name          string
	ResponseURIs  []string
	AllowedScopes []string
	ResponseTypes []string
	ConsentNeeded bool
}

func (c *Client) allowsResponseType(responseType string) bool {
	for _, rt := range c.ResponseTypes {
		if rt == responseType {
			return true
		}
	}
	return false
}

func (c *Client) allowsRedirectURI(uri string) bool {
	for _, u := range c.ResponseURIs {
		if u == uri {
			return true
		}
	}
	return false
}

func (c *Client) allowsScope(name string) bool {
	for _, s := range c.AllowedScopes {
		if s == name {
			return true
		}
	}
	return false
}

func buildClients(cfgs []config.OAuthClientConfig) map[string]*Client {
	clients := make(map[string]*Client, len(cfgs))
	for _, cc := range cfgs {
		clients[cc.ClientID] = &Client{
			ClientID:      cc.ClientID,
			Name:          cc.Name,
			ResponseURIs:  cc.ResponseURIs,
			AllowedScopes: cc.AllowedScopes,
			ResponseTypes: cc.ResponseTypes,
			ConsentNeeded: cc.ConsentNeeded,
		}
	}
	return clients
}
