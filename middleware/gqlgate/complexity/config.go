package complexity

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeWeight       = errors.New("negative type weight")
	ErrUnknownType          = errors.New("unresolved type reference")
	ErrUnboundedList        = errors.New("unbounded list field")
	ErrMissingType          = errors.New("type not present in weight table")
	ErrMissingField         = errors.New("field not present in weight table")
	ErrUnsupportedSelection = errors.New("unsupported selection")
	ErrInvalidMultiplier    = errors.New("slicing value is not a non-negative integer")
)

// TypeWeights define o custo base de materializar um valor de cada categoria
// de tipo do schema.
type TypeWeights struct {
	Mutation   int
	Object     int
	Scalar     int
	Connection int
}

// DefaultTypeWeights retorna os pesos padrão {10, 1, 0, 2}.
func DefaultTypeWeights() TypeWeights {
	return TypeWeights{Mutation: 10, Object: 1, Scalar: 0, Connection: 2}
}

func (w TypeWeights) validate() error {
	for _, v := range []struct {
		name   string
		weight int
	}{
		{"mutation", w.Mutation},
		{"object", w.Object},
		{"scalar", w.Scalar},
		{"connection", w.Connection},
	} {
		if v.weight < 0 {
			return fmt.Errorf("%w: %s=%d", ErrNegativeWeight, v.name, v.weight)
		}
	}
	return nil
}

type buildConfig struct {
	weights      TypeWeights
	slicingArgs  []string
	enforceLists bool
	listFallback int
}

type BuildOption func(*buildConfig)

// WithTypeWeights substitui os pesos padrão.
func WithTypeWeights(w TypeWeights) BuildOption {
	return func(c *buildConfig) { c.weights = w }
}

// WithSlicingArguments substitui o conjunto de nomes de argumento que limitam
// a cardinalidade de listas. O padrão é first, last e limit.
func WithSlicingArguments(names ...string) BuildOption {
	return func(c *buildConfig) { c.slicingArgs = names }
}

// WithEnforceBoundedLists faz o build falhar quando o schema tem alguma lista
// sem argumento de slicing.
func WithEnforceBoundedLists(enforce bool) BuildOption {
	return func(c *buildConfig) { c.enforceLists = enforce }
}

// WithDefaultListSize define o multiplicador sentinela usado quando nenhum
// valor pode ser resolvido: lista sem argumento de slicing (com
// EnforceBoundedLists desligado) ou argumento ausente sem default no schema.
func WithDefaultListSize(n int) BuildOption {
	return func(c *buildConfig) { c.listFallback = n }
}
