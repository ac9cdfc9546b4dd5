package main

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnippetCancel(t *testing.T) {
	var running snippetCancel

	running.cancel() // nothing in flight

	ctx, done := running.start(context.Background())
	running.cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	done()

	ctx, done = running.start(context.Background())
	done()
	running.cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled, "done releases the context")
}

func TestSnippetCancelConcurrent(t *testing.T) {
	var running snippetCancel

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				running.cancel()
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		_, done := running.start(context.Background())
		done()
	}
	close(stop)
	wg.Wait()
}
