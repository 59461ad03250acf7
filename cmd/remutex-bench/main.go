package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-remutex/v1/lock"
	"github.com/mirkobrombin/go-remutex/v1/remutex"
)

var (
	concurrency = flag.Int("c", 8, "Concurrency")
	iterations  = flag.Int("n", 100000, "Iterations per worker")
	depth       = flag.Int("depth", 3, "Reentrant depth per keyed iteration")
	keys        = flag.Int("keys", 16, "Distinct keys for the keyed benchmark")
	target      = flag.String("target", "all", "Target: mutex, keyed")
)

func main() {
	flag.Parse()

	run := func(name string, fn func() error) {
		start := time.Now()
		if err := fn(); err != nil {
			log.Fatalf("%s: %v", name, err)
		}
		elapsed := time.Since(start)
		total := *concurrency * *iterations
		fmt.Printf("%-8s %d ops in %v (%.0f ops/sec)\n",
			name, total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	}

	switch *target {
	case "mutex":
		run("mutex", benchMutex)
	case "keyed":
		run("keyed", benchKeyed)
	case "all":
		run("mutex", benchMutex)
		run("keyed", benchKeyed)
	default:
		log.Fatalf("unknown target %q", *target)
	}
}

func benchMutex() error {
	m := remutex.New(0)
	var eg errgroup.Group
	for w := 0; w < *concurrency; w++ {
		eg.Go(func() error {
			for i := 0; i < *iterations; i++ {
				if err := m.Do(func(v *int) error {
					*v++
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

func benchKeyed() error {
	k := lock.NewKeyed()
	var eg errgroup.Group
	for w := 0; w < *concurrency; w++ {
		eg.Go(func() error {
			ctx := context.Background()
			handles := make([]*lock.Handle, 0, *depth)
			for i := 0; i < *iterations; i++ {
				key := fmt.Sprintf("key-%d", i%*keys)
				handles = handles[:0]
				for d := 0; d < *depth; d++ {
					h, err := k.Acquire(ctx, key)
					if err != nil {
						return err
					}
					handles = append(handles, h)
				}
				for j := len(handles) - 1; j >= 0; j-- {
					if err := handles[j].Unlock(); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return eg.Wait()
}
