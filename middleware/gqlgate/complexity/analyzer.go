package complexity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// Result é a saída da análise de uma query.
type Result struct {
	// Cost é o custo estático da query, sempre >= 0.
	Cost int
	// Depth é a profundidade máxima de aninhamento de campos.
	Depth int
}

// Analyze caminha o AST da query guiado pela tabela de pesos e devolve o
// custo e a profundidade. Puro: mesma entrada, mesma saída.
//
// A contribuição de cada nó:
//
//   - operação: peso do tipo raiz (chave = kind da operação) + custo da seleção;
//   - campo cujo nome (minúsculo) é um tipo da tabela: peso do tipo + seleção;
//   - campo folha: peso da folha;
//   - campo de objeto: peso do tipo apontado + seleção;
//   - lista limitada: multiplicador × (peso do elemento + seleção).
//
// Fragments e inline fragments não são suportados e retornam erro.
func Analyze(doc *ast.QueryDocument, vars map[string]any, table *Table) (Result, error) {
	w := walker{table: table}

	var res Result
	for _, op := range doc.Operations {
		key := strings.ToLower(string(op.Operation))
		weight, ok := table.Weight(key)
		if !ok {
			continue
		}
		effVars := effectiveVariables(op, vars)
		cost, depth, err := w.selectionSet(op.SelectionSet, key, effVars, 1)
		if err != nil {
			return Result{}, err
		}
		res.Cost += weight + cost
		if depth > res.Depth {
			res.Depth = depth
		}
	}
	return res, nil
}

type walker struct {
	table *Table
}

func (w walker) selectionSet(sels ast.SelectionSet, typeName string, vars map[string]any, depth int) (int, int, error) {
	cost := 0
	maxDepth := depth
	for _, sel := range sels {
		f, ok := sel.(*ast.Field)
		if !ok {
			return 0, 0, fmt.Errorf("%w: fragments are not supported", ErrUnsupportedSelection)
		}
		c, d, err := w.field(f, typeName, vars, depth)
		if err != nil {
			return 0, 0, err
		}
		cost += c
		if d > maxDepth {
			maxDepth = d
		}
	}
	return cost, maxDepth, nil
}

// field resolve a contribuição de um campo. Aliases não afetam o custo: a
// resolução é sempre pelo nome do campo, contra o tipo pai.
func (w walker) field(f *ast.Field, parent string, vars map[string]any, depth int) (int, int, error) {
	// Campo cujo nome coincide com um tipo da tabela: raiz de objeto.
	if key := strings.ToLower(f.Name); w.table.Has(key) {
		weight, _ := w.table.Weight(key)
		cost, d, err := w.subselection(f, key, vars, depth)
		if err != nil {
			return 0, 0, err
		}
		return weight + cost, d, nil
	}

	fd, ok := w.table.Field(parent, f.Name)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s.%s", ErrMissingField, parent, f.Name)
	}

	switch fd.Kind {
	case FieldLeaf:
		return fd.Weight, depth, nil

	case FieldRef:
		weight, ok := w.table.Weight(fd.ResolveTo)
		if !ok {
			return 0, 0, fmt.Errorf("%w: %s", ErrMissingType, fd.ResolveTo)
		}
		cost, d, err := w.subselection(f, fd.ResolveTo, vars, depth)
		if err != nil {
			return 0, 0, err
		}
		return weight + cost, d, nil

	case FieldList:
		m, err := fd.Rule.Multiplier(f.Arguments, vars)
		if err != nil {
			return 0, 0, fmt.Errorf("%s.%s: %w", parent, f.Name, err)
		}
		weight, ok := w.table.Weight(fd.ResolveTo)
		if !ok {
			return 0, 0, fmt.Errorf("%w: %s", ErrMissingType, fd.ResolveTo)
		}
		cost, d, err := w.subselection(f, fd.ResolveTo, vars, depth)
		if err != nil {
			return 0, 0, err
		}
		return m * (weight + cost), d, nil
	}
	return 0, 0, fmt.Errorf("%w: %s.%s", ErrMissingField, parent, f.Name)
}

func (w walker) subselection(f *ast.Field, typeName string, vars map[string]any, depth int) (int, int, error) {
	if len(f.SelectionSet) == 0 {
		return 0, depth, nil
	}
	return w.selectionSet(f.SelectionSet, typeName, vars, depth+1)
}

// effectiveVariables materializa as variáveis visíveis para a operação:
// valor fornecido na request vence; senão vale o default da variable
// definition. Variáveis não declaradas pela operação ficam de fora, então um
// valor avulso na request (ex: um "first" sem relação com a query) nunca
// influencia multiplicador nenhum.
func effectiveVariables(op *ast.OperationDefinition, vars map[string]any) map[string]any {
	if len(op.VariableDefinitions) == 0 {
		return nil
	}
	out := make(map[string]any, len(op.VariableDefinitions))
	for _, vd := range op.VariableDefinitions {
		if v, ok := vars[vd.Variable]; ok {
			out[vd.Variable] = v
			continue
		}
		if vd.DefaultValue != nil {
			out[vd.Variable] = valueToAny(vd.DefaultValue)
		}
	}
	return out
}

// valueToAny converte um literal de default para o equivalente dinâmico.
// Tipos não inteiros são mantidos como estão: se uma Rule consultar o valor,
// coerceInt rejeita com ErrInvalidMultiplier.
func valueToAny(v *ast.Value) any {
	switch v.Kind {
	case ast.IntValue:
		if n, err := strconv.Atoi(v.Raw); err == nil {
			return n
		}
	case ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Raw, 64); err == nil {
			return f
		}
	case ast.BooleanValue:
		return v.Raw == "true"
	}
	return v.Raw
}
