package memkv

import (
	"context"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

// Factory opens a fresh Backend on every call. memkv never persists
// anything, so ExistingCfs always reports none, and every CF an Open
// call declares is always reported "created" — CfOptionsReuseLast is
// therefore always a misconfiguration against this backend.
type Factory struct{}

// NewFactory returns a memkv Factory.
func NewFactory() *Factory { return &Factory{} }

func (f *Factory) ExistingCfs(ctx context.Context) ([]string, error) { return nil, nil }

func (f *Factory) Open(ctx context.Context, cfs []backend.CfConfig, dropUnknownCfs bool) (backend.Backend, map[string]bool, error) {
	names := make([]string, len(cfs))
	created := make(map[string]bool, len(cfs))
	for i, c := range cfs {
		names[i] = c.Name
		created[c.Name] = true
	}
	return newBackend(names), created, nil
}
