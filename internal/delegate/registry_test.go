package delegate

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("noop", Func(func(context.Context, Execution) error {
		called = true
		return nil
	}))

	d, err := r.Resolve("noop")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := d.Execute(context.Background(), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Error("delegate was not called")
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("missing"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Resolve error = %v, want ErrNotRegistered", err)
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	first := errors.New("first")
	second := errors.New("second")
	r.Register("d", Func(func(context.Context, Execution) error { return first }))
	r.Register("d", Func(func(context.Context, Execution) error { return second }))

	d, _ := r.Resolve("d")
	if err := d.Execute(context.Background(), nil); !errors.Is(err, second) {
		t.Errorf("Execute error = %v, want second registration", err)
	}
	if names := r.Names(); len(names) != 1 {
		t.Errorf("Names = %v, want one entry", names)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(name, Func(func(context.Context, Execution) error { return nil }))
	}

	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Go(func() {
			r.Register("d", Func(func(context.Context, Execution) error { return nil }))
			_, _ = r.Resolve("d")
			_ = r.Names()
		})
	}
	wg.Wait()
}
