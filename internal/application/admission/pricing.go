package admission

import (
	"math"
	"strings"

	"sitegen-ai-api/internal/config"
	"sitegen-ai-api/internal/domain/entity"
)

// 默认计费表，配置缺省时使用
var (
	DefaultOperationCosts = map[entity.Operation]int64{
		entity.OperationGeneratePage:      10,
		entity.OperationGenerateComponent: 4,
		entity.OperationContentRewrite:    2,
		entity.OperationDesignSuggestion:  2,
		entity.OperationCodeOptimization:  3,
	}

	DefaultDailyLimits = map[entity.Operation]int64{
		entity.OperationGeneratePage:      2,
		entity.OperationGenerateComponent: 5,
		entity.OperationContentRewrite:    10,
		entity.OperationDesignSuggestion:  10,
		entity.OperationCodeOptimization:  5,
	}

	DefaultPlanCredits = map[entity.Plan]int64{
		entity.PlanFree:    0,
		entity.PlanStarter: 500,
		entity.PlanPro:     3000,
	}
)

// Pricing 计费表：操作成本、单位费率、免费档每日上限与套餐额度
type Pricing struct {
	operationCosts map[entity.Operation]int64
	dailyLimits    map[entity.Operation]int64
	planCredits    map[entity.Plan]int64
	costPerUnit    float64
}

// NewPricing 从计费配置构建；viper 会把 map 键转为小写，这里按小写匹配
func NewPricing(cfg config.BillingConfig) *Pricing {
	p := &Pricing{
		operationCosts: make(map[entity.Operation]int64, len(entity.Operations)),
		dailyLimits:    make(map[entity.Operation]int64, len(entity.Operations)),
		planCredits:    make(map[entity.Plan]int64, len(DefaultPlanCredits)),
		costPerUnit:    cfg.CostPerUnit,
	}
	if p.costPerUnit <= 0 {
		p.costPerUnit = 1
	}

	for _, op := range entity.Operations {
		key := strings.ToLower(string(op))
		p.operationCosts[op] = lookup(cfg.OperationCosts, key, DefaultOperationCosts[op])
		p.dailyLimits[op] = lookup(cfg.DailyLimits, key, DefaultDailyLimits[op])
	}
	for plan, credits := range DefaultPlanCredits {
		p.planCredits[plan] = lookup(cfg.PlanCredits, string(plan), credits)
	}
	return p
}

// DefaultPricing 默认计费表
func DefaultPricing() *Pricing {
	return NewPricing(config.BillingConfig{})
}

// OperationCost 单次操作的预留额，至少为 1
func (p *Pricing) OperationCost(op entity.Operation) int64 {
	return max(1, p.operationCosts[op])
}

// UnitCost 按量计费：max(1, ceil(units * costPerUnit))
func (p *Pricing) UnitCost(units float64) int64 {
	return max(1, int64(math.Ceil(units*p.costPerUnit)))
}

// DailyLimit 免费档每日次数上限，0 表示不限
func (p *Pricing) DailyLimit(op entity.Operation) int64 {
	return p.dailyLimits[op]
}

// PlanCredits 套餐每月额度
func (p *Pricing) PlanCredits(plan entity.Plan) int64 {
	return p.planCredits[plan]
}

func lookup(m map[string]int64, key string, def int64) int64 {
	for k, v := range m {
		if strings.ToLower(k) == key {
			return v
		}
	}
	return def
}
