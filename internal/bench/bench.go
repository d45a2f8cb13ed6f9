// Package bench provides N-dimensional benchmark objectives from
// http://en.wikipedia.org/wiki/Test_functions_for_optimization.
package bench

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	cos  = math.Cos
	exp  = math.Exp
	sqrt = math.Sqrt
)

// Func is a benchmark objective. Lower values are better.
type Func interface {
	Name() string
	Eval(x []float64) float64
	Bounds() (low, up float64)
	Optimum() float64
}

// Rastrigin is 10n + sum(x^2 - 10cos(2 pi x)).
type Rastrigin struct {
	NDim int
}

func (fn Rastrigin) Name() string { return fmt.Sprintf("Rastrigin_%vD", fn.NDim) }

func (fn Rastrigin) Eval(x []float64) float64 {
	tot := 10 * float64(len(x))
	for _, v := range x {
		tot += v*v - 10*cos(2*math.Pi*v)
	}
	return tot
}

func (fn Rastrigin) Bounds() (low, up float64) { return -5.12, 5.12 }
func (fn Rastrigin) Optimum() float64          { return 0 }

type Sphere struct {
	NDim int
}

func (fn Sphere) Name() string { return fmt.Sprintf("Sphere_%vD", fn.NDim) }

func (fn Sphere) Eval(x []float64) float64 {
	tot := 0.0
	for _, v := range x {
		tot += v * v
	}
	return tot
}

func (fn Sphere) Bounds() (low, up float64) { return -5, 5 }
func (fn Sphere) Optimum() float64          { return 0 }

// Ackley is the N-dimensional generalization of the two-dimensional
// Ackley function.
type Ackley struct {
	NDim int
}

func (fn Ackley) Name() string { return fmt.Sprintf("Ackley_%vD", fn.NDim) }

func (fn Ackley) Eval(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	n := float64(len(x))
	sq, cs := 0.0, 0.0
	for _, v := range x {
		sq += v * v
		cs += cos(2 * math.Pi * v)
	}
	return -20*exp(-0.2*sqrt(sq/n)) - exp(cs/n) + 20 + math.E
}

func (fn Ackley) Bounds() (low, up float64) { return -5, 5 }
func (fn Ackley) Optimum() float64          { return 0 }

type Rosenbrock struct {
	NDim int
}

func (fn Rosenbrock) Name() string { return fmt.Sprintf("Rosenbrock_%vD", fn.NDim) }

func (fn Rosenbrock) Eval(x []float64) float64 {
	tot := 0.0
	for i := 0; i < len(x)-1; i++ {
		a := x[i+1] - x[i]*x[i]
		b := x[i] - 1
		tot += 100*a*a + b*b
	}
	return tot
}

func (fn Rosenbrock) Bounds() (low, up float64) { return -5, 5 }
func (fn Rosenbrock) Optimum() float64          { return 0 }

type Styblinski struct {
	NDim int
}

func (fn Styblinski) Name() string { return fmt.Sprintf("Styblinski_%vD", fn.NDim) }

func (fn Styblinski) Eval(x []float64) float64 {
	tot := 0.0
	for _, v := range x {
		v2 := v * v
		tot += v2*v2 - 16*v2 + 5*v
	}
	return tot / 2
}

func (fn Styblinski) Bounds() (low, up float64) { return -5, 5 }
func (fn Styblinski) Optimum() float64          { return -39.16616570377142 * float64(fn.NDim) }

// Constant returns Value everywhere.
type Constant struct {
	Value float64
}

func (fn Constant) Name() string              { return "Constant" }
func (fn Constant) Eval([]float64) float64    { return fn.Value }
func (fn Constant) Bounds() (low, up float64) { return -5, 5 }
func (fn Constant) Optimum() float64          { return fn.Value }

var registry = map[string]func(ndim int) Func{
	"rastrigin":  func(n int) Func { return Rastrigin{NDim: n} },
	"sphere":     func(n int) Func { return Sphere{NDim: n} },
	"ackley":     func(n int) Func { return Ackley{NDim: n} },
	"rosenbrock": func(n int) Func { return Rosenbrock{NDim: n} },
	"styblinski": func(n int) Func { return Styblinski{NDim: n} },
	"constant":   func(int) Func { return Constant{} },
}

// Lookup returns the named benchmark for ndim dimensions. Names are case
// insensitive.
func Lookup(name string, ndim int) (Func, error) {
	mk, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown objective %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	if ndim <= 0 {
		return nil, fmt.Errorf("objective %q needs a positive dimension, got %d", name, ndim)
	}
	return mk(ndim), nil
}

// Names lists the registered benchmarks in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InsideBounds reports whether every coordinate of x lies within fn's bounds.
func InsideBounds(x []float64, fn Func) bool {
	low, up := fn.Bounds()
	for _, v := range x {
		if v < low || v > up {
			return false
		}
	}
	return true
}
