// Package infra contém implementações concretas para os contratos do pacote domain.
//
//   - WindowTable: janelas fixas locais (reset no primeiro hit) com pruner
//   - RESTCounterStore / RedisCounterStore: contadores remotos atômicos
//   - BurstStore: token bucket por cliente usando golang.org/x/time/rate
//   - MemoryStatsStore / RedisStatsStore: estatísticas de admissão
//   - ChanPool: semáforo para limite de requests em voo
package infra
