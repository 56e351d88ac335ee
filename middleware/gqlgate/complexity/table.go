package complexity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// FieldKind discrimina a variante de um descritor de campo.
type FieldKind int

const (
	// FieldLeaf é um campo escalar/enum: custo fixo, sem subseleção relevante.
	FieldLeaf FieldKind = iota
	// FieldRef aponta para outro tipo da tabela, sem multiplicador.
	FieldRef
	// FieldList aponta para o tipo do elemento e carrega uma Rule que resolve
	// a cardinalidade declarada da lista.
	FieldList
)

// Field é o descritor de um campo na tabela de pesos.
type Field struct {
	Kind FieldKind

	// Weight é o custo do campo quando Kind == FieldLeaf.
	Weight int

	// ResolveTo é a chave (minúscula) do tipo apontado quando Kind é
	// FieldRef ou FieldList.
	ResolveTo string

	// Rule resolve o multiplicador quando Kind == FieldList.
	Rule Rule
}

// Rule é uma função pura de (argumentos do AST, variáveis da request) para a
// cardinalidade declarada de uma lista.
//
// As variáveis recebidas já devem estar com os defaults das variable
// definitions aplicados (ver Analyze).
type Rule interface {
	Multiplier(args ast.ArgumentList, vars map[string]any) (int, error)
}

type typeEntry struct {
	weight int
	fields map[string]Field
}

// Table é a tabela de pesos derivada do schema. Imutável após BuildTable;
// compartilhável entre requests sem sincronização.
type Table struct {
	types map[string]*typeEntry
}

// Weight retorna o peso base do tipo (chave minúscula).
func (t *Table) Weight(name string) (int, bool) {
	e, ok := t.types[name]
	if !ok {
		return 0, false
	}
	return e.weight, true
}

// Field retorna o descritor de um campo do tipo.
func (t *Table) Field(typeName, field string) (Field, bool) {
	e, ok := t.types[typeName]
	if !ok {
		return Field{}, false
	}
	f, ok := e.fields[field]
	return f, ok
}

// Has informa se o tipo existe na tabela.
func (t *Table) Has(name string) bool {
	_, ok := t.types[name]
	return ok
}

// BuildTable varre o schema e monta a tabela de pesos.
//
// Erros de configuração (peso negativo), referência de tipo não resolvida e
// lista sem slicing com WithEnforceBoundedLists(true) são fatais aqui, antes
// de qualquer request.
func BuildTable(schema *ast.Schema, opts ...BuildOption) (*Table, error) {
	cfg := buildConfig{
		weights:      DefaultTypeWeights(),
		slicingArgs:  []string{"first", "last", "limit"},
		listFallback: 1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.weights.validate(); err != nil {
		return nil, err
	}
	if cfg.listFallback < 0 {
		return nil, fmt.Errorf("%w: defaultListSize=%d", ErrNegativeWeight, cfg.listFallback)
	}

	t := &Table{types: make(map[string]*typeEntry, len(schema.Types))}

	// Primeira passada: registra todos os tipos com seu peso base, para que a
	// segunda passada consiga resolver referências em qualquer ordem.
	for name, def := range schema.Types {
		if strings.HasPrefix(name, "__") {
			continue
		}
		t.types[strings.ToLower(name)] = &typeEntry{
			weight: baseWeight(def, schema, cfg.weights),
			fields: make(map[string]Field, len(def.Fields)),
		}
	}

	// Os tipos raiz ficam acessíveis também pela chave da operação.
	for kind, def := range map[string]*ast.Definition{
		"query":        schema.Query,
		"mutation":     schema.Mutation,
		"subscription": schema.Subscription,
	} {
		if def == nil {
			continue
		}
		entry, ok := t.types[strings.ToLower(def.Name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s root %q", ErrUnknownType, kind, def.Name)
		}
		t.types[kind] = entry
	}

	// Segunda passada: descritores de campo.
	for name, def := range schema.Types {
		if strings.HasPrefix(name, "__") {
			continue
		}
		switch def.Kind {
		case ast.Object, ast.Interface:
		default:
			continue
		}
		entry := t.types[strings.ToLower(name)]
		for _, fd := range def.Fields {
			if strings.HasPrefix(fd.Name, "__") {
				continue
			}
			f, err := buildField(name, fd, schema, t, cfg)
			if err != nil {
				return nil, err
			}
			entry.fields[fd.Name] = f
		}
	}

	return t, nil
}

func baseWeight(def *ast.Definition, schema *ast.Schema, w TypeWeights) int {
	switch def.Kind {
	case ast.Scalar, ast.Enum, ast.InputObject:
		return w.Scalar
	}
	if schema.Mutation != nil && def.Name == schema.Mutation.Name {
		return w.Mutation
	}
	if def.Kind == ast.Object && isConnection(def) {
		return w.Connection
	}
	return w.Object
}

// isConnection detecta o padrão Relay: sufixo "Connection" ou o par de campos
// edges + pageInfo.
func isConnection(def *ast.Definition) bool {
	if strings.HasSuffix(def.Name, "Connection") {
		return true
	}
	var edges, pageInfo bool
	for _, f := range def.Fields {
		switch f.Name {
		case "edges":
			edges = true
		case "pageInfo":
			pageInfo = true
		}
	}
	return edges && pageInfo
}

func buildField(typeName string, fd *ast.FieldDefinition, schema *ast.Schema, t *Table, cfg buildConfig) (Field, error) {
	elem := fd.Type
	isList := false
	for elem.Elem != nil {
		isList = true
		elem = elem.Elem
	}

	target, ok := schema.Types[elem.NamedType]
	if !ok {
		return Field{}, fmt.Errorf("%w: %s.%s -> %s", ErrUnknownType, typeName, fd.Name, elem.NamedType)
	}
	resolveTo := strings.ToLower(elem.NamedType)

	if isList {
		rule, err := buildRule(typeName, fd, cfg)
		if err != nil {
			return Field{}, err
		}
		if !t.Has(resolveTo) {
			return Field{}, fmt.Errorf("%w: %s.%s -> %s", ErrUnknownType, typeName, fd.Name, elem.NamedType)
		}
		return Field{Kind: FieldList, ResolveTo: resolveTo, Rule: rule}, nil
	}

	switch target.Kind {
	case ast.Scalar, ast.Enum:
		return Field{Kind: FieldLeaf, Weight: cfg.weights.Scalar}, nil
	}
	if !t.Has(resolveTo) {
		return Field{}, fmt.Errorf("%w: %s.%s -> %s", ErrUnknownType, typeName, fd.Name, elem.NamedType)
	}
	return Field{Kind: FieldRef, ResolveTo: resolveTo}, nil
}

func buildRule(typeName string, fd *ast.FieldDefinition, cfg buildConfig) (Rule, error) {
	for _, name := range cfg.slicingArgs {
		arg := fd.Arguments.ForName(name)
		if arg == nil {
			continue
		}
		r := sliceRule{arg: name, fallback: cfg.listFallback}
		if arg.DefaultValue != nil {
			def, err := intFromValue(arg.DefaultValue)
			if err != nil {
				return nil, fmt.Errorf("%w: default of %s.%s(%s)", ErrInvalidMultiplier, typeName, fd.Name, name)
			}
			r.def = def
			r.hasDefault = true
		}
		return r, nil
	}

	if cfg.enforceLists {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnboundedList, typeName, fd.Name)
	}
	return sentinelRule{n: cfg.listFallback}, nil
}

// sliceRule resolve o multiplicador de uma lista limitada por um argumento de
// slicing. Ordem de resolução: literal no AST; variável referenciada pelo AST
// (já com defaults de variable definition aplicados); default declarado no
// schema; sentinela configurado.
type sliceRule struct {
	arg        string
	def        int
	hasDefault bool
	fallback   int
}

func (r sliceRule) Multiplier(args ast.ArgumentList, vars map[string]any) (int, error) {
	arg := args.ForName(r.arg)
	if arg == nil || arg.Value == nil || arg.Value.Kind == ast.NullValue {
		return r.absent()
	}

	switch arg.Value.Kind {
	case ast.IntValue:
		n, err := strconv.Atoi(arg.Value.Raw)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %s=%s", ErrInvalidMultiplier, r.arg, arg.Value.Raw)
		}
		return n, nil
	case ast.Variable:
		v, ok := vars[arg.Value.Raw]
		if !ok {
			return r.absent()
		}
		n, err := coerceInt(v)
		if err != nil {
			return 0, fmt.Errorf("%w: $%s", ErrInvalidMultiplier, arg.Value.Raw)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidMultiplier, r.arg)
}

func (r sliceRule) absent() (int, error) {
	if r.hasDefault {
		return r.def, nil
	}
	return r.fallback, nil
}

// sentinelRule cobre listas sem argumento de slicing quando o build não é
// estrito. FIXME: custear listas realmente sem limite continua em aberto; o
// sentinela apenas dá um chão configurável.
type sentinelRule struct {
	n int
}

func (r sentinelRule) Multiplier(ast.ArgumentList, map[string]any) (int, error) {
	return r.n, nil
}

// intFromValue converte um literal do AST em inteiro não-negativo.
func intFromValue(v *ast.Value) (int, error) {
	if v == nil || v.Kind != ast.IntValue {
		return 0, ErrInvalidMultiplier
	}
	n, err := strconv.Atoi(v.Raw)
	if err != nil || n < 0 {
		return 0, ErrInvalidMultiplier
	}
	return n, nil
}

// coerceInt aceita apenas valores de variável com tipagem inteira (inclui
// float64 vindo de JSON quando o valor é exato).
func coerceInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, ErrInvalidMultiplier
		}
		return n, nil
	case int64:
		if n < 0 {
			return 0, ErrInvalidMultiplier
		}
		return int(n), nil
	case float64:
		if n < 0 || n != float64(int(n)) {
			return 0, ErrInvalidMultiplier
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return 0, ErrInvalidMultiplier
		}
		return int(i), nil
	}
	return 0, ErrInvalidMultiplier
}
