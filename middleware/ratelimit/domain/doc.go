// Package domain define contratos e tipos de domínio para admissão de requests:
// chaves, decisões de rate limit, armazenamento de contadores e estatísticas.
//
// Este pacote não depende de net/http nem de implementações concretas.
package domain
