// Package rule 用 CEL 表达式实现 domain.LoyaltyRule
package rule

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"shopflow/internal/contract"
)

// DefaultLoyaltyExpression 严格大于：500.0 不发放，500.01 发放
const DefaultLoyaltyExpression = "order.totalCost > 500.0"

// CELLoyaltyRule 是 domain.LoyaltyRule 接口的一个具体实现。
// 表达式中可以使用 order.totalCost (double)、order.customerId (string)、order.lines (int)。
type CELLoyaltyRule struct {
	expression string
	program    cel.Program
}

// NewCELLoyaltyRule 编译表达式，语法或类型错误在启动时暴露
func NewCELLoyaltyRule(expression string) (*CELLoyaltyRule, error) {
	env, err := cel.NewEnv(cel.Variable("order", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid loyalty rule %q: %w", expression, iss.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("invalid loyalty rule %q: %w", expression, err)
	}
	return &CELLoyaltyRule{expression: expression, program: program}, nil
}

// Eligible 实现了 domain.LoyaltyRule 接口。
func (r *CELLoyaltyRule) Eligible(order contract.Order) (bool, error) {
	fact := map[string]interface{}{
		"order": map[string]interface{}{
			"totalCost":  order.TotalCost.InexactFloat64(),
			"customerId": order.CustomerID,
			"lines":      int64(len(order.Cart)),
		},
	}
	out, _, err := r.program.Eval(fact)
	if err != nil {
		return false, fmt.Errorf("evaluate loyalty rule %q: %w", r.expression, err)
	}
	eligible, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("loyalty rule %q returned %T, want bool", r.expression, out.Value())
	}
	return eligible, nil
}
