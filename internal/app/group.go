package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

type Service interface {
	Name() string
	Run(context.Context) error
}

type serviceFunc struct {
	name string
	run  func(context.Context) error
}

func (s serviceFunc) Name() string { return s.name }
func (s serviceFunc) Run(ctx context.Context) error { return s.run(ctx) }

func NewService(name string, run func(context.Context) error) Service {
	return serviceFunc{name: name, run: run}
}

// Group runs services side by side. The first one to return, with or without an
// error, stops the rest.
type Group []Service

func (g Group) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var wg sync.WaitGroup
	errCh := make(chan error, len(g))
	wg.Add(len(g))
	for _, s := range g {
		go func(s Service) {
			defer wg.Done()
			defer cancelFn()
			if err := s.Run(runCtx); err != nil {
				errCh <- fmt.Errorf("%s: %w", s.Name(), err)
			}
		}(s)
	}

	<-runCtx.Done()
	wg.Wait()

	var err error
	close(errCh)
	for srvErr := range errCh {
		err = multierror.Append(err, srvErr)
	}
	return err
}
