package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/gustavo/tradeguard/internal/errors"
	"github.com/gustavo/tradeguard/internal/registry"
)

// ClientPool hands out one ethclient per chain, dialing lazily. RPC
// endpoints come from configuration overrides, falling back to the registry
// defaults.
type ClientPool struct {
	mu        sync.Mutex
	clients   map[int64]*ethclient.Client
	overrides map[int64]string
}

func NewClientPool(rpcOverrides map[int64]string) *ClientPool {
	return &ClientPool{
		clients:   make(map[int64]*ethclient.Client),
		overrides: rpcOverrides,
	}
}

func (p *ClientPool) Client(ctx context.Context, chainID int64) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[chainID]; ok {
		return client, nil
	}
	url, err := registry.ResolveRPCURL(p.overrides[chainID], chainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeRPC, "resolve rpc url", err)
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeRPC, "connect rpc", err)
	}
	p.clients[chainID] = client
	return client, nil
}

func (p *ClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, client := range p.clients {
		client.Close()
	}
	p.clients = make(map[int64]*ethclient.Client)
}
