package billing

import (
	"github.com/qs3c/cake_billing_server/internal/model"
)

type tierBracket struct {
	tier         model.Tier
	maxEmployees int // 0 表示无上限
	baseCost     int64
	perEmployee  int64
}

// 档位区间 [1,5] [6,10] [11,20] [21,∞)，按顺序匹配
var tierTable = []tierBracket{
	{tier: model.TierSmall, maxEmployees: 5, baseCost: 3000},
	{tier: model.TierMedium, maxEmployees: 10, baseCost: 5000},
	{tier: model.TierLarge, maxEmployees: 20, baseCost: 10000},
	{tier: model.TierEnterprise, maxEmployees: 0, baseCost: 15000},
}

// ClassifyTier 根据员工人数返回档位和月费。
// 员工数为 0 时返回 (enterprise, 0, false)，这是一个兜底值，调用方应拒绝而不是直接使用。
func ClassifyTier(employeeCount int) (model.Tier, int64, bool) {
	if employeeCount <= 0 {
		return model.TierEnterprise, 0, false
	}
	for _, b := range tierTable {
		if b.maxEmployees == 0 || employeeCount <= b.maxEmployees {
			return b.tier, b.baseCost + b.perEmployee*int64(employeeCount), true
		}
	}
	// 表最后一项无上限，不会走到这里
	last := tierTable[len(tierTable)-1]
	return last.tier, last.baseCost, true
}
