// Package complexity calcula o custo estático de queries GraphQL.
//
// O pacote tem duas metades:
//
//   - BuildTable: varre o schema introspectado (gqlparser) uma única vez e
//     produz uma tabela imutável de pesos por tipo/campo. Campos que retornam
//     listas limitadas por argumento de slicing (first/last/limit) ganham uma
//     Rule que resolve a cardinalidade declarada a partir dos argumentos do
//     AST e das variáveis da request.
//
//   - Analyze: caminha o AST da query guiado pela tabela e devolve um inteiro
//     não-negativo (custo) e a profundidade máxima de aninhamento.
//
// Analyze é puro e determinístico: sem I/O, seguro para uso concorrente com
// uma mesma tabela compartilhada.
package complexity
