// Package application contém os casos de uso (regras de aplicação) do gate.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Admit(ctx, key, now, cost) serializa a chamada por chave e retorna uma
// Decision (allow/deny + retry-after + saldo de tokens).
package application
