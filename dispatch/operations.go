package dispatch

import (
	"context"
	"errors"

	"github.com/ewbankkit/wascc-keyvalue/store"
)

func (p *Provider) add(ctx context.Context, req AddRequest) (AddResponse, error) {
	total, err := p.store.AtomicAdd(ctx, req.Key, req.Value)
	return AddResponse{Value: total}, err
}

// get reports a missing key as Exists=false rather than an error.
func (p *Provider) get(ctx context.Context, req GetRequest) (GetResponse, error) {
	value, err := p.store.Get(ctx, req.Key)
	if errors.Is(err, store.ErrNotFound) {
		return GetResponse{}, nil
	}
	if err != nil {
		return GetResponse{}, err
	}
	return GetResponse{Value: value, Exists: true}, nil
}

func (p *Provider) set(ctx context.Context, req SetRequest) (SetResponse, error) {
	if err := p.store.Set(ctx, req.Key, req.Value); err != nil {
		return SetResponse{}, err
	}
	return SetResponse{Value: req.Value}, nil
}

func (p *Provider) del(ctx context.Context, req KeyRequest) (KeyResponse, error) {
	if err := p.store.DelKey(ctx, req.Key); err != nil {
		return KeyResponse{}, err
	}
	return KeyResponse{Key: req.Key}, nil
}

func (p *Provider) push(ctx context.Context, req ItemRequest) (CountResponse, error) {
	n, err := p.store.ListAdd(ctx, req.Key, req.Value)
	return CountResponse{NewCount: n}, err
}

// listDel answers the number of items removed.
func (p *Provider) listDel(ctx context.Context, req ItemRequest) (CountResponse, error) {
	n, err := p.store.ListDelItem(ctx, req.Key, req.Value)
	return CountResponse{NewCount: n}, err
}

func (p *Provider) listRange(ctx context.Context, req RangeRequest) (ValuesResponse, error) {
	values, err := p.store.ListRange(ctx, req.Key, req.Start, req.Stop)
	return ValuesResponse{Values: values}, err
}

func (p *Provider) clear(ctx context.Context, req KeyRequest) (KeyResponse, error) {
	if err := p.store.ListClear(ctx, req.Key); err != nil {
		return KeyResponse{}, err
	}
	return KeyResponse{Key: req.Key}, nil
}

func (p *Provider) setAdd(ctx context.Context, req ItemRequest) (CountResponse, error) {
	n, err := p.store.SetAdd(ctx, req.Key, req.Value)
	return CountResponse{NewCount: n}, err
}

func (p *Provider) setRemove(ctx context.Context, req ItemRequest) (CountResponse, error) {
	n, err := p.store.SetRemove(ctx, req.Key, req.Value)
	return CountResponse{NewCount: n}, err
}

func (p *Provider) setUnion(ctx context.Context, req KeysRequest) (ValuesResponse, error) {
	values, err := p.store.SetUnion(ctx, req.Keys...)
	return ValuesResponse{Values: values}, err
}

func (p *Provider) setIntersection(ctx context.Context, req KeysRequest) (ValuesResponse, error) {
	values, err := p.store.SetIntersect(ctx, req.Keys...)
	return ValuesResponse{Values: values}, err
}

func (p *Provider) setQuery(ctx context.Context, req KeyRequest) (ValuesResponse, error) {
	values, err := p.store.SetMembers(ctx, req.Key)
	return ValuesResponse{Values: values}, err
}

func (p *Provider) keyExists(ctx context.Context, req KeyRequest) (ExistsResponse, error) {
	ok, err := p.store.Exists(ctx, req.Key)
	return ExistsResponse{Exists: ok}, err
}
