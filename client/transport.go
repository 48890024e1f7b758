package client

import (
	"context"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/wippyai/opcua-bridge/config"
)

// Transport is the OPC UA session a Client drives. The default
// implementation is a *opcua.Client.
type Transport interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	State() opcua.ConnState
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
	Write(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error)
	Browse(ctx context.Context, req *ua.BrowseRequest) (*ua.BrowseResponse, error)
	BrowseNext(ctx context.Context, req *ua.BrowseNextRequest) (*ua.BrowseNextResponse, error)
	Subscribe(ctx context.Context, params *opcua.SubscriptionParameters, notify chan<- *opcua.PublishNotificationData) (Subscription, error)
}

// Subscription is a server-side subscription created through a Transport.
type Subscription interface {
	ID() uint32
	Monitor(ctx context.Context, ts ua.TimestampsToReturn, items ...*ua.MonitoredItemCreateRequest) (*ua.CreateMonitoredItemsResponse, error)
	Cancel(ctx context.Context) error
}

// Dialer creates an unconnected transport for a matched endpoint.
type Dialer func(ctx context.Context, endpointURL string, ep *ua.EndpointDescription, cfg config.Client) (Transport, error)

// Discoverer lists the endpoints a server offers.
type Discoverer func(ctx context.Context, endpointURL string) ([]*ua.EndpointDescription, error)

type gopcuaTransport struct {
	*opcua.Client
}

func (t gopcuaTransport) Subscribe(ctx context.Context, params *opcua.SubscriptionParameters, notify chan<- *opcua.PublishNotificationData) (Subscription, error) {
	sub, err := t.Client.Subscribe(ctx, params, notify)
	if err != nil {
		return nil, err
	}
	return gopcuaSubscription{sub}, nil
}

type gopcuaSubscription struct {
	*opcua.Subscription
}

func (s gopcuaSubscription) ID() uint32 { return s.SubscriptionID }

// DialGopcua builds a gopcua client with security None and anonymous identity.
func DialGopcua(ctx context.Context, endpointURL string, ep *ua.EndpointDescription, cfg config.Client) (Transport, error) {
	opts := []opcua.Option{
		opcua.ApplicationName(cfg.ApplicationName),
		opcua.ApplicationURI(cfg.ApplicationURI),
		opcua.ProductURI(cfg.ProductURI),
		opcua.SecurityPolicy(ua.SecurityPolicyURINone),
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.SecurityFromEndpoint(ep, ua.UserTokenTypeAnonymous),
		opcua.AuthAnonymous(),
		opcua.SessionTimeout(cfg.SessionTimeout.D()),
		opcua.RequestTimeout(cfg.RequestTimeout.D()),
		opcua.AutoReconnect(cfg.AutoReconnect),
	}
	c, err := opcua.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	return gopcuaTransport{c}, nil
}

// DiscoverGopcua queries the server's GetEndpoints service.
func DiscoverGopcua(ctx context.Context, endpointURL string) ([]*ua.EndpointDescription, error) {
	return opcua.GetEndpoints(ctx, endpointURL)
}

// MatchEndpoint returns the first endpoint with security policy None,
// security mode None and an anonymous user token, or nil.
func MatchEndpoint(eps []*ua.EndpointDescription) *ua.EndpointDescription {
	for _, ep := range eps {
		if ep == nil {
			continue
		}
		if ep.SecurityPolicyURI != ua.SecurityPolicyURINone || ep.SecurityMode != ua.MessageSecurityModeNone {
			continue
		}
		for _, tok := range ep.UserIdentityTokens {
			if tok != nil && tok.TokenType == ua.UserTokenTypeAnonymous {
				return ep
			}
		}
	}
	return nil
}
