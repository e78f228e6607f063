package db

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// keyGroup remembers which cache keys belong to one kind of entry so the
// whole kind can be dropped at once.
type keyGroup struct {
	sync.RWMutex
	m map[string]struct{}
}

func newKeyGroup() *keyGroup {
	return &keyGroup{m: make(map[string]struct{})}
}

var (
	Cache                *ristretto.Cache
	RuleCacheKeys        = newKeyGroup()
	TransactionCacheKeys = newKeyGroup()
	AccountCacheKeys     = newKeyGroup()
)

// Cache names accepted by ClearCacheByName.
const (
	CacheRules        = "rules"
	CacheTransactions = "transactions"
	CacheAccounts     = "accounts"
	CacheAll          = "all"
)

func InitCache(maxCost int64) error {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10, // number of keys to track frequency of
		MaxCost:     maxCost,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	Cache = c
	return nil
}

func (g *keyGroup) set(key string, value interface{}) {
	if Cache == nil {
		return
	}
	g.Lock()
	g.m[key] = struct{}{}
	g.Unlock()
	Cache.Set(key, value, 1)
	Cache.Wait()
}

func (g *keyGroup) del(key string) {
	g.Lock()
	delete(g.m, key)
	g.Unlock()
	if Cache != nil {
		Cache.Del(key)
	}
}

func (g *keyGroup) clear() {
	g.Lock()
	defer g.Unlock()
	if Cache != nil {
		for key := range g.m {
			Cache.Del(key)
		}
	}
	g.m = make(map[string]struct{})
}

func (g *keyGroup) len() int {
	g.RLock()
	defer g.RUnlock()
	return len(g.m)
}

func get(key string) (interface{}, bool) {
	if Cache == nil {
		return nil, false
	}
	return Cache.Get(key)
}

// Rule cache, keyed per user. Holds the user's active rules.
func RuleCacheKey(userID int64) string {
	return fmt.Sprintf("rules:%d", userID)
}

func SetRuleCache(userID int64, value interface{}) {
	RuleCacheKeys.set(RuleCacheKey(userID), value)
}

func GetRuleCache(userID int64) (interface{}, bool) {
	return get(RuleCacheKey(userID))
}

func DelRuleCache(userID int64) {
	RuleCacheKeys.del(RuleCacheKey(userID))
}

func ClearAllRuleCaches() {
	RuleCacheKeys.clear()
}

// Transaction cache, keyed per user and account.
func TransactionCacheKey(userID, accountID int64) string {
	return fmt.Sprintf("transactions:%d:%d", userID, accountID)
}

func SetTransactionCache(cacheKey string, value interface{}) {
	TransactionCacheKeys.set(cacheKey, value)
}

func GetTransactionCache(cacheKey string) (interface{}, bool) {
	return get(cacheKey)
}

func DelTransactionCache(cacheKey string) {
	TransactionCacheKeys.del(cacheKey)
}

func ClearAllTransactionCaches() {
	TransactionCacheKeys.clear()
}

// Account cache, keyed per user and Plaid item.
func AccountCacheKey(userID, itemID int64) string {
	return fmt.Sprintf("accounts:%d:%d", userID, itemID)
}

func SetAccountCache(cacheKey string, value interface{}) {
	AccountCacheKeys.set(cacheKey, value)
}

func GetAccountCache(cacheKey string) (interface{}, bool) {
	return get(cacheKey)
}

func DelAccountCache(cacheKey string) {
	AccountCacheKeys.del(cacheKey)
}

func ClearAllAccountCaches() {
	AccountCacheKeys.clear()
}

// ClearCacheByName drops one cache kind, or every kind for CacheAll.
func ClearCacheByName(name string) error {
	switch name {
	case CacheRules:
		ClearAllRuleCaches()
	case CacheTransactions:
		ClearAllTransactionCaches()
	case CacheAccounts:
		ClearAllAccountCaches()
	case CacheAll:
		ClearAllRuleCaches()
		ClearAllTransactionCaches()
		ClearAllAccountCaches()
	default:
		return fmt.Errorf("unknown cache %q", name)
	}
	return nil
}
