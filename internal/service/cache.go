// cache.go — LRU-кэш записей с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/content-registry/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cr_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш записей.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cr_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша записей.",
	})
)

// CacheService — LRU-кэш записей по content address.
// Хранит копии: вызывающий код может изменять полученную запись.
//
// epoch увеличивается при каждой инвалидации. Заполнение после чтения из
// хранилища (SetIfCurrent) отбрасывается, если за время чтения была инвалидация:
// иначе снимок, прочитанный до изменения, пережил бы Delete.
type CacheService struct {
	mu    sync.Mutex
	epoch uint64
	cache *expirable.LRU[string, *model.ContentRecord]
}

// NewCacheService создаёт кэш на maxSize записей со временем жизни ttl.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{cache: expirable.NewLRU[string, *model.ContentRecord](maxSize, nil, ttl)}
}

// Get возвращает копию записи при hit.
func (c *CacheService) Get(address string) (*model.ContentRecord, bool) {
	val, ok := c.cache.Get(address)
	if ok {
		cacheHitsTotal.Inc()
		return val.Clone(), true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись.
func (c *CacheService) Set(rec *model.ContentRecord) {
	c.cache.Add(rec.ContentAddress, rec.Clone())
}

// Epoch — текущее поколение кэша. Берётся до чтения из хранилища.
func (c *CacheService) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// SetIfCurrent кладёт запись, только если с момента Epoch() не было инвалидаций.
// Возвращает false, если заполнение отброшено.
func (c *CacheService) SetIfCurrent(rec *model.ContentRecord, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.cache.Add(rec.ContentAddress, rec.Clone())
	return true
}

// Delete инвалидирует запись после изменения.
func (c *CacheService) Delete(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.cache.Remove(address)
}

// Len — количество записей в кэше.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
