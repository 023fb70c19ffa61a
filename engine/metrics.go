package engine

import (
	"math"
	"sort"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// MetricSet 指标名到读数的映射。交给下游后不再修改，需要修改时先Clone。
type MetricSet map[string]float64

func (m MetricSet) Clone() MetricSet {
	out := make(MetricSet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal 两个集合的键和值完全相同
func (m MetricSet) Equal(other MetricSet) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Names 按字典序返回指标名
func (m MetricSet) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

////

// DeriveRule 两个因子都存在，且Name与Supersedes都不存在时，
// 增加 Name = Factors[0] * Factors[1]，保留Precision位小数。
type DeriveRule struct {
	Name       string
	Factors    [2]string
	Precision  int
	Supersedes []string
}

var PowerRule = DeriveRule{
	Name:       "power_w",
	Factors:    [2]string{"voltage", "current"},
	Precision:  2,
	Supersedes: []string{"power"},
}

type DeriveOptions struct {
	Enabled bool
	Rules   []DeriveRule
}

func DefaultDeriveOptions() DeriveOptions {
	return DeriveOptions{Enabled: true, Rules: []DeriveRule{PowerRule}}
}

// Normalize 由解码字段生成新的MetricSet，丢弃NaN和Inf读数
func Normalize(fields map[string]float64, opts DeriveOptions) MetricSet {
	set := make(MetricSet, len(fields)+len(opts.Rules))
	for k, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		set[k] = v
	}
	if !opts.Enabled {
		return set
	}
	for _, rule := range opts.Rules {
		rule.apply(set)
	}
	return set
}

func (r DeriveRule) apply(set MetricSet) {
	if _, exists := set[r.Name]; exists {
		return
	}
	for _, name := range r.Supersedes {
		if _, exists := set[name]; exists {
			return
		}
	}
	a, okA := set[r.Factors[0]]
	b, okB := set[r.Factors[1]]
	if !okA || !okB {
		return
	}
	set[r.Name] = Round(a*b, r.Precision)
}

// Round 四舍五入到指定小数位
func Round(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}
