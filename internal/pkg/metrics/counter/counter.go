package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PricePilot/PricePilot/internal/pkg/cache"
	"github.com/PricePilot/PricePilot/internal/pkg/database"
)

const (
	conditionAppliedKey = "market_condition:counters:applied"
	couponValidatedKey  = "coupon:counters:validated"
)

// AddConditionApplied increments the pending times-applied counter for a
// market condition in Redis
func AddConditionApplied(conditionID uint) error {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(conditionID), 10)
	return cache.GetClient().HIncrBy(ctx, conditionAppliedKey, field, 1).Err()
}

// AddCouponValidated increments the pending validation counter for a coupon
// in Redis. Validation counts are observability only and are flushed to the
// coupon row's times_validated column; redemption counts are transactional
// and maintained by RedeemInTx.
func AddCouponValidated(couponID uint) error {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(couponID), 10)
	return cache.GetClient().HIncrBy(ctx, couponValidatedKey, field, 1).Err()
}

// FlushAll flushes pending counters to the database
func FlushAll() error {
	if err := flushHashToTable(conditionAppliedKey, "market_conditions", "times_applied"); err != nil {
		return err
	}
	return flushHashToTable(couponValidatedKey, "coupons", "times_validated")
}

// flushHashToTable drains a Redis hash atomically and applies batched increments to the target table.
// Uses RENAME to a temporary key for atomic drain without losing in-flight increments.
func flushHashToTable(redisKey, table, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		// Some Redis libs return redis.Nil; treat as empty
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	// Build batched UPDATE using CASE WHEN id THEN inc
	// Collect ids and increments; also sort ids for stable SQL
	type pair struct {
		id  uint64
		inc int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{id: id, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	// Compose SQL
	// UPDATE market_conditions SET <column> = <column> + CASE id WHEN ? THEN ? ... END WHERE id IN ( ... )
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*2+len(pairs))
	builder.WriteString("UPDATE ")
	builder.WriteString(table)
	builder.WriteString(" SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE id ")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	builder.WriteString(" END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.id)
	}
	builder.WriteString(")")

	sql := builder.String()
	db := database.GetDB()
	if err := db.Exec(sql, args...).Error; err != nil {
		return err
	}
	return nil
}
