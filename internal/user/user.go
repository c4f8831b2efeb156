package user

/*
* Usar o pacote de negógio user dentro de internal garante que ele vai estar protegido pois arquivos dentro de um
* diretório `internal` só podem ser importados por
* pacotes que estejam em diretórios ancestrais (pais) ao diretório `internal`.
* Isso gera uma barreira efetiva para que códigos de fora daquele módulo ou projeto não consigam
* acessar o conteúdo interno.
 */

import "context"

type contextKey struct{}

// WithID stores the authenticated user id in ctx
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the authenticated user id, false for anonymous requests
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
